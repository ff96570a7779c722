// Package payload defines the connect/disconnect event reported to the
// collector. The same JSON encoding is used on the wire and as the durable
// cache entry format.
package payload

import (
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// TimestampLayout is the fixed local-time format carried in every payload.
const TimestampLayout = "2006-01-02 15:04:05"

// Status is the connection state reported for the debugger.
type Status string

const (
	Connected    Status = "connected"
	Disconnected Status = "disconnected"
)

// DeviceInfo identifies one half of the debugger (head or body).
type DeviceInfo struct {
	SerialNumber string `json:"serial_number"`
}

// Payload is one presence event for the collector.
type Payload struct {
	Username   string     `json:"username"`
	Hostname   string     `json:"hostname"`
	Timestamp  string     `json:"timestamp"`
	HeadDevice DeviceInfo `json:"head_device"`
	BodyDevice DeviceInfo `json:"body_device"`
	Status     Status     `json:"status"`
}

// Identity is the workstation user and host stamped into payloads.
type Identity struct {
	Username string
	Hostname string
}

var codec = sonic.ConfigStd

// NewConnected builds a connected payload for the given serials.
func NewConnected(id Identity, head, body string, at time.Time) Payload {
	return Payload{
		Username:   id.Username,
		Hostname:   id.Hostname,
		Timestamp:  at.Format(TimestampLayout),
		HeadDevice: DeviceInfo{SerialNumber: head},
		BodyDevice: DeviceInfo{SerialNumber: body},
		Status:     Connected,
	}
}

// Disconnected derives the disconnect event from a connect event. Only the
// status and timestamp change; serials and identity are preserved.
func (p Payload) Disconnected(at time.Time) Payload {
	p.Status = Disconnected
	p.Timestamp = at.Format(TimestampLayout)
	return p
}

// Marshal encodes p as UTF-8 JSON.
func Marshal(p Payload) ([]byte, error) {
	return codec.Marshal(p)
}

// Unmarshal decodes a cache entry back into a Payload. Entries with an
// unknown status are rejected so a corrupt row never reaches the collector.
func Unmarshal(data []byte) (Payload, error) {
	var p Payload
	if len(data) == 0 {
		return p, errors.New("payload: empty entry")
	}
	if err := codec.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("payload: decode: %w", err)
	}
	switch p.Status {
	case Connected, Disconnected:
	default:
		return p, fmt.Errorf("payload: unknown status %q", p.Status)
	}
	return p, nil
}

func (p Payload) String() string {
	return fmt.Sprintf("%s@%s %s head=%s body=%s at %s",
		p.Username, p.Hostname, p.Status,
		p.HeadDevice.SerialNumber, p.BodyDevice.SerialNumber, p.Timestamp)
}
