package ctl

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// LogsOptions configures the logs command.
type LogsOptions struct {
	Level string
	Limit int
	Tail  bool
	JSON  bool
}

// Logs shows recent agent log lines, or streams them live with Tail.
func Logs(baseURL string, opts LogsOptions) error {
	baseURL = strings.TrimRight(baseURL, "/")

	if opts.Tail {
		return Watch(baseURL, WatchOptions{Filter: []string{"log"}, JSON: opts.JSON})
	}

	q := url.Values{}
	if opts.Level != "" {
		q.Set("level", opts.Level)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	path := "/api/logs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Logs []struct {
			TS        string `json:"ts"`
			Level     string `json:"level"`
			Message   string `json:"message"`
			Component string `json:"component"`
		} `json:"logs"`
	}
	if err := getJSON(baseURL, path, &resp); err != nil {
		return err
	}
	if opts.JSON {
		return printJSON(resp)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, header("  AGENT LOGS"))
	fmt.Fprintln(out, rule(70))
	if len(resp.Logs) == 0 {
		fmt.Fprintln(out, "  No log entries found.")
	}
	for _, e := range resp.Logs {
		ts := e.TS
		if t, err := time.Parse(time.RFC3339Nano, e.TS); err == nil {
			ts = t.Local().Format("15:04:05")
		}
		fmt.Fprintf(out, "  %s %s  %s%s\n", colorize(dim, ts), formatLogLevel(e.Level), componentTag(e.Component), e.Message)
	}
	fmt.Fprintln(out)
	return nil
}

func componentTag(c string) string {
	if c == "" {
		return ""
	}
	return colorize(dim, "["+c+"] ")
}

// formatLogLevel returns a colored, fixed-width level label.
func formatLogLevel(level string) string {
	switch level {
	case "info":
		return colorize(green, "INFO ")
	case "warn":
		return colorize(yellow, "WARN ")
	case "error":
		return colorize(red, "ERROR")
	default:
		return padRight(strings.ToUpper(level), 5)
	}
}
