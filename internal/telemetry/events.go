// Package telemetry defines the typed events ldsentineld streams to its
// WebSocket clients. Every event embeds Event so clients can switch on Type
// before decoding the rest.
package telemetry

import "time"

// EventType identifies the kind of WebSocket event.
type EventType string

const (
	EventHeartbeat EventType = "heartbeat"
	EventState     EventType = "state"
	EventPresence  EventType = "presence"
	EventDelivery  EventType = "delivery"
	EventLog       EventType = "log"
)

// Event is the base envelope shared by every event type.
type Event struct {
	Type      EventType `json:"type"`
	TS        string    `json:"ts"`
	Component string    `json:"component,omitempty"`
}

// NowTS returns the current UTC time as an RFC 3339 nano string.
func NowTS() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func newEvent(t EventType, component string) Event {
	return Event{Type: t, TS: NowTS(), Component: component}
}

// Heartbeat is sent periodically so clients can detect connectivity and
// track uptime.
type Heartbeat struct {
	Event
	State         string `json:"state"`
	Presence      string `json:"presence"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Queued        int    `json:"queued"`
}

func NewHeartbeat(state, presence string, uptime time.Duration, queued int) Heartbeat {
	return Heartbeat{
		Event:         newEvent(EventHeartbeat, "ldsentineld"),
		State:         state,
		Presence:      presence,
		UptimeSeconds: int64(uptime.Seconds()),
		Queued:        queued,
	}
}

// StateTransition is emitted when the daemon lifecycle state changes
// (BOOTING, RUNNING, STOPPING).
type StateTransition struct {
	Event
	From string `json:"from"`
	To   string `json:"to"`
}

func NewStateTransition(from, to string) StateTransition {
	return StateTransition{Event: newEvent(EventState, "ldsentineld"), From: from, To: to}
}

// PresenceChange is emitted on every edge of the presence state machine.
type PresenceChange struct {
	Event
	From  string `json:"from"`
	To    string `json:"to"`
	Head  string `json:"head,omitempty"`
	Body  string `json:"body,omitempty"`
	Error string `json:"error,omitempty"`
}

func NewPresenceChange(from, to string) PresenceChange {
	return PresenceChange{Event: newEvent(EventPresence, "monitor"), From: from, To: to}
}

// Delivery reports one attempt to post a payload to the collector.
type Delivery struct {
	Event
	Status    string `json:"status"`
	Head      string `json:"head"`
	Body      string `json:"body"`
	Delivered bool   `json:"delivered"`
	Resend    bool   `json:"resend"`
	ElapsedMs int64  `json:"elapsed_ms"`
	Error     string `json:"error,omitempty"`
}

func NewDelivery() Delivery {
	return Delivery{Event: newEvent(EventDelivery, "delivery")}
}

// LogLine carries a log record at info level or above.
type LogLine struct {
	Event
	Level   string `json:"level"`
	Message string `json:"message"`
}

func NewLogLine(component, level, message string) LogLine {
	return LogLine{Event: newEvent(EventLog, component), Level: level, Message: message}
}
