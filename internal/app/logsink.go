package app

import (
	"sync"

	"github.com/large-farva/ldsentinel/internal/telemetry"
	"github.com/large-farva/ldsentinel/internal/ws"
)

const defaultLogBuffer = 200

// LogSink keeps the most recent log lines for GET /api/logs and forwards
// each one to the hub. It implements logging.Sink.
type LogSink struct {
	hub *ws.Hub
	max int

	mu  sync.Mutex
	buf []telemetry.LogLine
}

func NewLogSink(hub *ws.Hub, max int) *LogSink {
	if max < 1 {
		max = defaultLogBuffer
	}
	return &LogSink{hub: hub, max: max}
}

func (s *LogSink) PublishLog(component, level, message string) {
	if component == "" {
		component = "ldsentineld"
	}
	line := telemetry.NewLogLine(component, level, message)

	s.mu.Lock()
	if len(s.buf) == s.max {
		copy(s.buf, s.buf[1:])
		s.buf = s.buf[:s.max-1]
	}
	s.buf = append(s.buf, line)
	s.mu.Unlock()

	if s.hub != nil {
		s.hub.BroadcastJSON(line)
	}
}

// Recent returns buffered lines, oldest first, optionally filtered by level
// and limited to the newest limit entries.
func (s *LogSink) Recent(level string, limit int) []telemetry.LogLine {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]telemetry.LogLine, 0, len(s.buf))
	for _, l := range s.buf {
		if level == "" || l.Level == level {
			out = append(out, l)
		}
	}
	if limit > 0 && limit < len(out) {
		out = out[len(out)-limit:]
	}
	return out
}
