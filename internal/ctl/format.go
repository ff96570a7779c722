// Package ctl implements the client-side commands for ldctl. It talks to a
// running ldsentineld over HTTP and WebSocket and renders the results to
// the terminal.
package ctl

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
	"golang.org/x/term"
)

// out is where every command writes. Tests replace it.
var out io.Writer = os.Stdout

var (
	dim    = lipgloss.NewStyle().Faint(true)
	bold   = lipgloss.NewStyle().Bold(true)
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	blue   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	plain  = lipgloss.NewStyle()
)

// colorEnabled reports whether output goes to a terminal. Piped or
// redirected output stays free of escape codes.
func colorEnabled() bool {
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// colorize renders text with style when color output is enabled.
func colorize(style lipgloss.Style, text string) string {
	if !colorEnabled() {
		return text
	}
	return style.Render(text)
}

func header(title string) string {
	return colorize(bold, title)
}

func rule(width int) string {
	return colorize(dim, "  "+strings.Repeat("─", width))
}

// stateStyle picks a style for daemon lifecycle and presence states.
func stateStyle(state string) lipgloss.Style {
	switch state {
	case "RUNNING", "present":
		return green
	case "STOPPING":
		return yellow
	case "absent":
		return blue
	case "BOOTING":
		return dim
	default:
		return plain
	}
}

// formatDuration renders d as "2 hours 14 minutes" style text.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "0 seconds"
	}
	return durafmt.Parse(d.Truncate(time.Second)).LimitFirstN(2).String()
}

func formatBytes(b int64) string {
	if b < 0 {
		b = 0
	}
	return humanize.IBytes(uint64(b))
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
