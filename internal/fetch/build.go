package fetch

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/large-farva/ldsentinel/internal/config"
	"github.com/large-farva/ldsentinel/internal/t32"
)

// Build assembles the fetcher selected by cfg.Method.
func Build(cfg config.FetcherConfig, logger *slog.Logger) (*InfoFetcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "fetcher", "method", cfg.Method)

	opts := Options{
		InfoFilePath: cfg.InfoFilePath,
		MaxAttempts:  cfg.MaxAttempts,
		WaitPeriod:   cfg.WaitPeriod(),
		Logger:       logger,
	}

	switch cfg.Method {
	case config.FetchCommand:
		opts.Trigger = &CommandTrigger{
			Executable:      cfg.Command.ExecutablePath,
			Arguments:       cfg.Command.Arguments,
			SuccessExitCode: cfg.Command.SuccessExitCode,
			Timeout:         time.Duration(cfg.Command.WaitTimeoutMs) * time.Millisecond,
			Log:             logger,
		}

	case config.FetchSession:
		s := cfg.Session
		api, err := t32.Open(s.LibraryPath)
		if err != nil {
			return nil, err
		}
		trig, err := NewSessionTrigger(SessionOptions{
			Session:         api,
			Address:         s.Address,
			Port:            s.Port,
			PacketLength:    s.PacketLength,
			Commands:        s.Commands,
			UseScript:       s.UsePracticeScript,
			ScriptPath:      s.PracticeScriptPath,
			ConnectAttempts: cfg.MaxAttempts,
			ConnectWait:     cfg.WaitPeriod(),
			PollPeriod:      time.Duration(s.PracticePollPeriodMs) * time.Millisecond,
			PollTimeout:     time.Duration(s.PracticeTimeoutMs) * time.Millisecond,
			Logger:          logger,
		})
		if err != nil {
			api.Close()
			return nil, err
		}
		opts.Trigger = trig
		opts.Closer = api

	default:
		return nil, fmt.Errorf("fetch: unknown method %q", cfg.Method)
	}

	return New(opts)
}
