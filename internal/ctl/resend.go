package ctl

import (
	"fmt"
	"strings"
)

// Resend asks the agent to run one resend tick now.
func Resend(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var resp struct {
		OK         bool   `json:"ok"`
		Dispatched int    `json:"dispatched"`
		Queued     int    `json:"queued"`
		Error      string `json:"error,omitempty"`
	}
	if err := postJSON(baseURL, "/api/resend", nil, &resp); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}

	if !resp.OK {
		fmt.Fprintf(out, "\n  %s  %s\n\n", colorize(red, "ERROR"), resp.Error)
		return nil
	}
	fmt.Fprintf(out, "\n  %s  dispatched %d cached payloads, %d still queued\n\n",
		colorize(green, "RESENT"), resp.Dispatched, resp.Queued)
	return nil
}
