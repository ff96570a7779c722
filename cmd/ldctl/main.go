// Ldctl is the command-line client for a running ldsentineld agent. It
// talks to the agent's status server over HTTP and WebSocket.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/large-farva/ldsentinel/internal/ctl"
)

func main() {
	var (
		host    = pflag.StringP("host", "H", "http://127.0.0.1:8089", "Agent status server URL")
		jsonOut = pflag.Bool("json", false, "Output raw JSON instead of formatted text")
		filter  = pflag.StringSlice("filter", nil, "Event types to show in watch (e.g. --filter presence,delivery)")
	)

	// Stop at the command name so command flags like --level reach the
	// command's own flag set.
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	if pflag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cmd := pflag.Arg(0)
	subArgs := pflag.Args()[1:]

	var err error
	switch cmd {
	case "status":
		err = ctl.Status(*host, *jsonOut)

	case "health":
		err = ctl.Health(*host, *jsonOut)

	case "version":
		err = ctl.VersionInfo(*host, *jsonOut)

	case "config":
		err = ctl.Config(*host, *jsonOut)

	case "cache":
		err = ctl.CacheInfo(*host, *jsonOut)

	case "resend":
		err = ctl.Resend(*host, *jsonOut)

	case "logs":
		opts := ctl.LogsOptions{JSON: *jsonOut}
		logFlags := pflag.NewFlagSet("logs", pflag.ContinueOnError)
		logFlags.StringVar(&opts.Level, "level", "", "Filter by log level (info, warn, error)")
		logFlags.IntVar(&opts.Limit, "limit", 0, "Limit number of log entries shown")
		logFlags.BoolVar(&opts.Tail, "tail", false, "Stream live log events")
		_ = logFlags.Parse(subArgs)
		err = ctl.Logs(*host, opts)

	case "watch":
		err = ctl.Watch(*host, ctl.WatchOptions{
			Filter: *filter,
			JSON:   *jsonOut,
		})

	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Print(`
  ldctl, control CLI for the LD sentinel agent

  USAGE
    ldctl [flags] <command> [command-flags]

  COMMANDS
    status          Show agent state, debugger presence, and delivery counters
    health          Check that the agent is reachable
    version         Show CLI and agent version information
    config          Show the agent's running configuration
    cache           Show the payload cache
    resend          Run one resend pass over the cache now
    logs            Show recent agent log messages
    watch           Stream live events from the agent (Ctrl-C to stop)

  GLOBAL FLAGS
    -H, --host URL      Agent base URL (default: http://127.0.0.1:8089)
        --json          Output raw JSON instead of formatted text
        --filter TYPE   Event types to show in watch (comma-separated)

  COMMAND FLAGS
    logs:
        --level LEVEL       Filter by log level (info, warn, error)
        --limit N           Limit number of log entries shown
        --tail              Stream live log events

  EXAMPLES
    ldctl status
    ldctl --json status
    ldctl cache
    ldctl resend
    ldctl logs --level warn --limit 20
    ldctl watch --filter presence,delivery

`)
}
