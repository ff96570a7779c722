package ctl

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Config fetches and prints the agent's running configuration, one section
// at a time.
func Config(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var resp struct {
		Path   string                     `json:"path"`
		Config map[string]json.RawMessage `json:"config"`
	}
	if err := getJSON(baseURL, "/api/config", &resp); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, header("  AGENT CONFIGURATION"))
	fmt.Fprintln(out, rule(50))
	if resp.Path != "" {
		fmt.Fprintf(out, "  %s %s\n", colorize(dim, "file:"), resp.Path)
	}

	for _, name := range []string{"logging", "server", "network", "cache", "detection", "fetcher"} {
		raw, ok := resp.Config[name]
		if !ok {
			continue
		}
		fmt.Fprintf(out, "\n  %s\n", colorize(bold, "["+name+"]"))
		printSection(raw, "    ")
	}
	fmt.Fprintln(out)
	return nil
}

// printSection prints scalar fields first, then nested tables.
func printSection(raw json.RawMessage, indent string) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		fmt.Fprintf(out, "%s%s\n", indent, string(raw))
		return
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var nested []string
	for _, k := range keys {
		if _, ok := fields[k].(map[string]any); ok {
			nested = append(nested, k)
			continue
		}
		fmt.Fprintf(out, "%s%-26s %v\n", indent, colorize(dim, k+":"), fields[k])
	}
	for _, k := range nested {
		fmt.Fprintf(out, "%s%s\n", indent, colorize(bold, "["+k+"]"))
		b, _ := json.Marshal(fields[k])
		printSection(b, indent+"  ")
	}
}
