package telemetry

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestEventsCarryTypeAndTimestamp(t *testing.T) {
	events := []any{
		NewHeartbeat("RUNNING", "present", 90*time.Second, 3),
		NewStateTransition("BOOTING", "RUNNING"),
		NewPresenceChange("absent", "present"),
		NewDelivery(),
		NewLogLine("fetcher", "error", "boom"),
	}
	want := []EventType{EventHeartbeat, EventState, EventPresence, EventDelivery, EventLog}

	for i, ev := range events {
		b, err := json.Marshal(ev)
		if err != nil {
			t.Fatalf("marshal %T: %v", ev, err)
		}
		var base Event
		if err := json.Unmarshal(b, &base); err != nil {
			t.Fatalf("unmarshal %T: %v", ev, err)
		}
		if base.Type != want[i] {
			t.Fatalf("%T type = %q, want %q", ev, base.Type, want[i])
		}
		if _, err := time.Parse(time.RFC3339Nano, base.TS); err != nil {
			t.Fatalf("%T ts %q: %v", ev, base.TS, err)
		}
	}
}

func TestHeartbeatUptimeSeconds(t *testing.T) {
	b, _ := json.Marshal(NewHeartbeat("RUNNING", "absent", 90*time.Second, 0))
	if !strings.Contains(string(b), `"uptime_seconds":90`) {
		t.Fatalf("heartbeat = %s", b)
	}
}
