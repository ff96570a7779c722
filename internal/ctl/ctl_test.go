package ctl

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := out
	out = &buf
	t.Cleanup(func() { out = prev })
	return &buf
}

func fakeDaemon(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"name":           "ldsentinel",
			"state":          "RUNNING",
			"uptime_seconds": 3725,
			"presence":       "present",
			"serials":        map[string]string{"head": "C2", "body": "C1"},
			"collector":      "http://127.0.0.1:8000/api/v1/ld-logs",
			"delivery":       map[string]int{"delivered": 4, "resent": 1, "queued": 2},
			"last_connected": map[string]string{"timestamp": "2022-03-21 18:05:00"},
		})
	})
	mux.HandleFunc("/api/cache", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"path": "cache.db", "entries": 10, "max_entries": 10,
			"max_retries": 20, "retry_period_ms": 30000, "size_bytes": 12288,
		})
	})
	mux.HandleFunc("/api/resend", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "dispatched": 3, "queued": 7})
	})
	mux.HandleFunc("/api/config", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"path": "/etc/ldsentinel/agent.toml",
			"config": map[string]any{
				"cache":   map[string]any{"max_entries": 10},
				"fetcher": map[string]any{"method": "command", "command": map[string]any{"executable_path": "t32rem"}},
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestStatusRendersSummary(t *testing.T) {
	buf := captureOutput(t)
	srv := fakeDaemon(t)

	if err := Status(srv.URL, false); err != nil {
		t.Fatalf("Status: %v", err)
	}
	got := buf.String()
	for _, want := range []string{"RUNNING", "present", "C2", "C1", "1 hour 2 minutes", "4 (1 resent)", "2022-03-21 18:05:00"} {
		if !strings.Contains(got, want) {
			t.Fatalf("status output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "\x1b[") {
		t.Fatal("escape codes written to a non-terminal")
	}
}

func TestStatusJSON(t *testing.T) {
	buf := captureOutput(t)
	srv := fakeDaemon(t)

	if err := Status(srv.URL, true); err != nil {
		t.Fatalf("Status: %v", err)
	}
	var s StatusResponse
	if err := json.Unmarshal(buf.Bytes(), &s); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if s.Serials.Head != "C2" || s.Delivery.Queued != 2 {
		t.Fatalf("decoded %+v", s)
	}
}

func TestHealth(t *testing.T) {
	buf := captureOutput(t)
	srv := fakeDaemon(t)
	if err := Health(srv.URL, false); err != nil {
		t.Fatalf("Health: %v", err)
	}
	if !strings.Contains(buf.String(), "HEALTHY") {
		t.Fatalf("output = %s", buf.String())
	}
}

func TestCacheInfoShowsFullCache(t *testing.T) {
	buf := captureOutput(t)
	srv := fakeDaemon(t)
	if err := CacheInfo(srv.URL, false); err != nil {
		t.Fatalf("CacheInfo: %v", err)
	}
	got := buf.String()
	if !strings.Contains(got, "full, evicting oldest") || !strings.Contains(got, "12 KiB") {
		t.Fatalf("output = %s", got)
	}
}

func TestResend(t *testing.T) {
	buf := captureOutput(t)
	srv := fakeDaemon(t)
	if err := Resend(srv.URL, false); err != nil {
		t.Fatalf("Resend: %v", err)
	}
	if !strings.Contains(buf.String(), "dispatched 3 cached payloads, 7 still queued") {
		t.Fatalf("output = %s", buf.String())
	}
}

func TestConfigPrintsNestedSections(t *testing.T) {
	buf := captureOutput(t)
	srv := fakeDaemon(t)
	if err := Config(srv.URL, false); err != nil {
		t.Fatalf("Config: %v", err)
	}
	got := buf.String()
	for _, want := range []string{"[cache]", "max_entries:", "[fetcher]", "[command]", "t32rem"} {
		if !strings.Contains(got, want) {
			t.Fatalf("config output missing %q:\n%s", want, got)
		}
	}
}

func TestUnreachableDaemon(t *testing.T) {
	captureOutput(t)
	if err := Status("http://127.0.0.1:1", false); err == nil {
		t.Fatal("expected error")
	}
}

func TestWSURL(t *testing.T) {
	cases := map[string]string{
		"http://127.0.0.1:8089": "ws://127.0.0.1:8089/ws",
		"https://agent.lan/":    "wss://agent.lan/ws",
		"http://h:1/api?x=1":    "ws://h:1/ws",
	}
	for in, want := range cases {
		got, err := wsURL(in)
		if err != nil || got != want {
			t.Fatalf("wsURL(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := wsURL("ftp://x"); err == nil {
		t.Fatal("expected error for ftp scheme")
	}
}

func TestRenderEvent(t *testing.T) {
	buf := captureOutput(t)
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	renderEvent([]byte(`{"type":"presence","ts":"` + ts + `","from":"absent","to":"present","head":"C2","body":"C1"}`))
	renderEvent([]byte(`{"type":"delivery","ts":"` + ts + `","status":"connected","delivered":false,"resend":true,"head":"C2","body":"C1","elapsed_ms":12,"error":"collector responded 503"}`))

	got := buf.String()
	for _, want := range []string{"DEBUGGER", "head=C2 body=C1", "FAILED", "connected (resend)", "503"} {
		if !strings.Contains(got, want) {
			t.Fatalf("render output missing %q:\n%s", want, got)
		}
	}
}

func TestWantedFilter(t *testing.T) {
	f := map[string]bool{"log": true}
	if !wanted([]byte(`{"type":"log"}`), f) || wanted([]byte(`{"type":"heartbeat"}`), f) {
		t.Fatal("filter mismatch")
	}
	if !wanted([]byte(`{"type":"heartbeat"}`), nil) {
		t.Fatal("empty filter should pass everything")
	}
}
