package ctl

import (
	"fmt"
	"strings"
	"time"
)

// StatusResponse mirrors the JSON returned by GET /api/status.
type StatusResponse struct {
	Name          string `json:"name"`
	State         string `json:"state"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Presence      string `json:"presence"`
	FetchFailed   bool   `json:"fetch_failed"`
	Detection     struct {
		Method string `json:"method"`
		Target string `json:"target"`
	} `json:"detection"`
	Serials struct {
		Head string `json:"head"`
		Body string `json:"body"`
	} `json:"serials"`
	Collector string `json:"collector"`
	Delivery  struct {
		Delivered uint64 `json:"delivered"`
		Failed    uint64 `json:"failed"`
		Cached    uint64 `json:"cached"`
		Evicted   uint64 `json:"evicted"`
		Resent    uint64 `json:"resent"`
		Queued    int    `json:"queued"`
	} `json:"delivery"`
	LastConnected *struct {
		Timestamp string `json:"timestamp"`
	} `json:"last_connected"`
	WSClients int `json:"ws_clients"`
}

// Status fetches the agent status and prints a summary.
func Status(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var s StatusResponse
	if err := getJSON(baseURL, "/api/status", &s); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(s)
	}

	presence := colorize(stateStyle(s.Presence), s.Presence)
	if s.FetchFailed {
		presence += colorize(red, "  (fetch failed, waiting for restart)")
	}
	since := "never"
	if s.LastConnected != nil {
		since = s.LastConnected.Timestamp
	}
	d := s.Delivery

	row := func(label, value string) {
		fmt.Fprintf(out, "  %-14s %s\n", colorize(dim, label), value)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, header("  LD SENTINEL STATUS"))
	fmt.Fprintln(out, rule(44))
	row("State:", colorize(stateStyle(s.State), s.State))
	row("Uptime:", formatDuration(time.Duration(s.UptimeSeconds)*time.Second))
	row("Detection:", s.Detection.Method+" "+colorize(dim, s.Detection.Target))
	row("Debugger:", presence)
	row("Head:", s.Serials.Head)
	row("Body:", s.Serials.Body)
	row("Connected:", since)
	row("Collector:", s.Collector)
	row("Delivered:", fmt.Sprintf("%d (%d resent)", d.Delivered, d.Resent))
	row("Failed:", fmt.Sprintf("%d", d.Failed))
	row("Queued:", fmt.Sprintf("%d (%d evicted)", d.Queued, d.Evicted))
	row("Host:", baseURL)
	fmt.Fprintln(out)
	return nil
}
