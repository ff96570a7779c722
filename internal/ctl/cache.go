package ctl

import (
	"fmt"
	"strings"
	"time"
)

// CacheInfo shows the durable payload cache.
func CacheInfo(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var resp struct {
		Path          string `json:"path"`
		Entries       int    `json:"entries"`
		MaxEntries    int    `json:"max_entries"`
		MaxRetries    int    `json:"max_retries"`
		RetryPeriodMs int    `json:"retry_period_ms"`
		SizeBytes     *int64 `json:"size_bytes"`
	}
	if err := getJSON(baseURL, "/api/cache", &resp); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}

	fill := colorize(green, fmt.Sprintf("%d / %d", resp.Entries, resp.MaxEntries))
	if resp.Entries >= resp.MaxEntries {
		fill = colorize(red, fmt.Sprintf("%d / %d (full, evicting oldest)", resp.Entries, resp.MaxEntries))
	} else if resp.Entries > 0 {
		fill = colorize(yellow, fmt.Sprintf("%d / %d", resp.Entries, resp.MaxEntries))
	}
	size := "n/a"
	if resp.SizeBytes != nil {
		size = formatBytes(*resp.SizeBytes)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, header("  PAYLOAD CACHE"))
	fmt.Fprintln(out, rule(42))
	fmt.Fprintf(out, "  %-14s %s\n", colorize(dim, "File:"), resp.Path)
	fmt.Fprintf(out, "  %-14s %s\n", colorize(dim, "Size:"), size)
	fmt.Fprintf(out, "  %-14s %s\n", colorize(dim, "Entries:"), fill)
	fmt.Fprintf(out, "  %-14s %d per tick, every %s\n", colorize(dim, "Resend:"),
		resp.MaxRetries, formatDuration(time.Duration(resp.RetryPeriodMs)*time.Millisecond))
	fmt.Fprintln(out)
	return nil
}
