// Ldsentineld is the LD debugger presence agent.
//
// It loads configuration, watches for the debugger, fetches the head and
// body serial numbers when the debugger appears, and delivers presence
// payloads to the collector. Payloads that cannot be delivered are cached
// on disk and resent in the background. Shutdown is handled gracefully on
// SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/large-farva/ldsentinel/internal/app"
	"github.com/large-farva/ldsentinel/internal/config"
	"github.com/large-farva/ldsentinel/internal/logging"
	"github.com/large-farva/ldsentinel/internal/presence"
	"github.com/large-farva/ldsentinel/internal/ws"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "ldsentinel.toml", "Path to config file (.toml, .yaml, .jsonc)")
		bind       = pflag.String("bind", "", "Status server bind address (overrides server.bind)")
	)
	pflag.Parse()

	if err := run(*configPath, *bind); err != nil {
		fmt.Fprintln(os.Stderr, "ldsentineld:", err)
		os.Exit(1)
	}
}

func run(configPath, bind string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	// Only one agent per workstation: a second one would double every
	// payload and fight over the info file.
	self := filepath.Base(os.Args[0])
	n, err := presence.CountInstances(context.Background(), self)
	if err != nil {
		return fmt.Errorf("count running instances: %w", err)
	}
	if n > 1 {
		return fmt.Errorf("another %s is already running", self)
	}

	hub := ws.NewHub()
	sink := app.NewLogSink(hub, 0)

	logger, logCloser, err := logging.New(cfg.Logging, sink)
	if err != nil {
		return fmt.Errorf("logging setup failed: %w", err)
	}
	defer logCloser.Close()

	a, err := app.New(app.Options{
		Logger:     logger,
		Cfg:        cfg,
		ConfigPath: configPath,
		Bind:       bind,
		Hub:        hub,
		Logs:       sink,
	})
	if err != nil {
		logger.Error("agent setup failed", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("agent failed", "error", err)
		return err
	}

	// Brief pause so in-flight log writes can flush before exit.
	time.Sleep(50 * time.Millisecond)
	return nil
}
