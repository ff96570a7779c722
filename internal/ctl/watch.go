package ctl

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// WatchOptions controls the watch command.
type WatchOptions struct {
	Filter []string // event types to show; empty shows all
	JSON   bool     // print raw JSON per event
}

// wsURL turns the daemon base URL into its /ws endpoint.
func wsURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

// Watch streams agent events to the terminal until interrupted.
func Watch(baseURL string, opts WatchOptions) error {
	target, err := wsURL(baseURL)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if !opts.JSON {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "  %s %s\n", colorize(green, "connected"), colorize(dim, target))
		if len(opts.Filter) > 0 {
			fmt.Fprintf(out, "  %s %s\n", colorize(dim, "filter:"), colorize(dim, strings.Join(opts.Filter, ", ")))
		}
		fmt.Fprintln(out, rule(50))
		fmt.Fprintln(out)
	}

	filter := make(map[string]bool, len(opts.Filter))
	for _, f := range opts.Filter {
		filter[f] = true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if !wanted(msg, filter) {
				continue
			}
			if opts.JSON {
				fmt.Fprintln(out, string(msg))
			} else {
				renderEvent(msg)
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case <-sig:
		if !opts.JSON {
			fmt.Fprintln(out)
			fmt.Fprintln(out, colorize(dim, "  disconnecting..."))
		}
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second),
		)
	case <-done:
	}
	return nil
}

func wanted(msg []byte, filter map[string]bool) bool {
	if len(filter) == 0 {
		return true
	}
	var ev struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &ev); err != nil {
		return true
	}
	return filter[ev.Type]
}

// renderEvent prints one event in a human-friendly format, falling back to
// indented JSON for unknown types.
func renderEvent(raw []byte) {
	var ev map[string]any
	if err := json.Unmarshal(raw, &ev); err != nil {
		fmt.Fprintf(out, "  %s\n", string(raw))
		return
	}

	str := func(k string) string { s, _ := ev[k].(string); return s }
	num := func(k string) float64 { f, _ := ev[k].(float64); return f }
	ts := colorize(dim, formatEventTime(str("ts")))

	switch str("type") {
	case "heartbeat":
		fmt.Fprintf(out, "  %s %s  %s  %s  queued %d  up %s\n",
			ts,
			colorize(dim, "heartbeat"),
			colorize(stateStyle(str("state")), str("state")),
			colorize(stateStyle(str("presence")), str("presence")),
			int(num("queued")),
			colorize(dim, formatDuration(time.Duration(num("uptime_seconds"))*time.Second)),
		)

	case "state":
		fmt.Fprintf(out, "  %s %s  %s %s %s\n",
			ts, colorize(bold, "STATE"),
			colorize(stateStyle(str("from")), str("from")),
			colorize(dim, "->"),
			colorize(stateStyle(str("to")), str("to")),
		)

	case "presence":
		line := fmt.Sprintf("  %s %s  %s %s %s",
			ts, colorize(cyan, "DEBUGGER"),
			colorize(stateStyle(str("from")), str("from")),
			colorize(dim, "->"),
			colorize(stateStyle(str("to")), str("to")),
		)
		if h := str("head"); h != "" {
			line += fmt.Sprintf("  head=%s body=%s", h, str("body"))
		}
		if e := str("error"); e != "" {
			line += "  " + colorize(red, e)
		}
		fmt.Fprintln(out, line)

	case "delivery":
		label := colorize(green, "SENT  ")
		if d, _ := ev["delivered"].(bool); !d {
			label = colorize(red, "FAILED")
		}
		kind := str("status")
		if r, _ := ev["resend"].(bool); r {
			kind += " (resend)"
		}
		line := fmt.Sprintf("  %s %s  %s head=%s body=%s %s",
			ts, label, kind, str("head"), str("body"),
			colorize(dim, fmt.Sprintf("%dms", int(num("elapsed_ms")))))
		if e := str("error"); e != "" {
			line += "  " + colorize(dim, e)
		}
		fmt.Fprintln(out, line)

	case "log":
		fmt.Fprintf(out, "  %s %s  %s%s\n", ts, formatLogLevel(str("level")), componentTag(str("component")), str("message"))

	default:
		pretty, err := json.MarshalIndent(ev, "  ", "  ")
		if err != nil {
			fmt.Fprintf(out, "  %s\n", string(raw))
			return
		}
		fmt.Fprintf(out, "  %s\n", string(pretty))
	}
}

// formatEventTime shortens an RFC 3339 timestamp to local HH:MM:SS.
func formatEventTime(ts string) string {
	if ts == "" {
		return "        "
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("15:04:05")
}
