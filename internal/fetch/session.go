package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Session is the narrow view of the vendor remote API that the
// native-session trigger needs. t32.API implements it.
type Session interface {
	Config(key, value string) error
	Init() error
	Attach(device int) error
	Cmd(command string) error
	PracticeState() (int, error)
	Exit() error
}

// deviceICD is the debugger device the session attaches to.
const deviceICD = 1

// SessionError reports the session step that failed.
type SessionError struct {
	Op  string
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("fetch: session %s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// SessionOptions configures a SessionTrigger.
type SessionOptions struct {
	Session      Session
	Address      string
	Port         string
	PacketLength string
	Commands     []string

	// When UseScript is set the commands are written to ScriptPath at
	// construction and run through a single DO command.
	UseScript  bool
	ScriptPath string

	ConnectAttempts int
	ConnectWait     time.Duration
	PollPeriod      time.Duration
	PollTimeout     time.Duration

	Logger *slog.Logger
	Sleep  func(time.Duration)
}

// SessionTrigger drives the debugger through a live API session.
type SessionTrigger struct {
	opts SessionOptions
	log  *slog.Logger

	// script is the absolute path of the practice script, if any.
	script string

	mu sync.Mutex
}

// NewSessionTrigger validates opts and, in script mode, writes the script.
func NewSessionTrigger(opts SessionOptions) (*SessionTrigger, error) {
	if opts.Session == nil {
		return nil, errors.New("fetch: session required")
	}
	if len(opts.Commands) == 0 {
		return nil, ErrNoCommands
	}
	if opts.ConnectAttempts < 1 {
		opts.ConnectAttempts = 1
	}
	if opts.PollPeriod <= 0 {
		opts.PollPeriod = 500 * time.Millisecond
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	t := &SessionTrigger{opts: opts, log: opts.Logger}
	if t.log == nil {
		t.log = slog.Default()
	}

	if opts.UseScript {
		abs, err := filepath.Abs(opts.ScriptPath)
		if err != nil {
			return nil, fmt.Errorf("fetch: resolve script path: %w", err)
		}
		body := strings.Join(opts.Commands, "\n")
		if err := os.WriteFile(abs, []byte(body), 0o644); err != nil {
			return nil, fmt.Errorf("fetch: write practice script: %w", err)
		}
		t.script = abs
		t.log.Debug("practice script written", "path", abs, "commands", len(opts.Commands))
	}
	return t, nil
}

// ScriptPath returns the absolute script path, or "" outside script mode.
func (t *SessionTrigger) ScriptPath() string { return t.script }

// Trigger connects, runs the commands, and closes the session. A started
// trigger runs to completion even if ctx is cancelled; ConnectAttempts and
// PollTimeout bound it.
func (t *SessionTrigger) Trigger(ctx context.Context) (err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ctx = context.WithoutCancel(ctx)

	if err := t.connect(ctx); err != nil {
		return err
	}
	t.log.Info("connected to the debugger", "address", t.opts.Address, "port", t.opts.Port)

	defer func() {
		if exitErr := t.opts.Session.Exit(); exitErr != nil {
			t.log.Error("failed to close the debugger session", "error", exitErr)
			if err == nil {
				err = &SessionError{Op: "exit", Err: exitErr}
			}
		}
	}()

	if t.script != "" {
		return t.execute(ctx, "DO "+t.script, true)
	}
	for _, c := range t.opts.Commands {
		if err := t.execute(ctx, c, false); err != nil {
			return err
		}
	}
	return nil
}

func (t *SessionTrigger) connect(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= t.opts.ConnectAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return &SessionError{Op: "connect", Err: err}
		}
		lastErr = t.connectOnce()
		if lastErr == nil {
			return nil
		}
		t.log.Warn("failed to connect to the debugger", "attempt", attempt, "max_attempts", t.opts.ConnectAttempts, "error", lastErr)
		if attempt < t.opts.ConnectAttempts {
			t.opts.Sleep(t.opts.ConnectWait)
		}
	}
	return lastErr
}

func (t *SessionTrigger) connectOnce() error {
	s := t.opts.Session
	settings := [][2]string{
		{"NODE=", t.opts.Address},
		{"PORT=", t.opts.Port},
		{"PACKLEN=", t.opts.PacketLength},
	}
	for _, kv := range settings {
		if err := s.Config(kv[0], kv[1]); err != nil {
			return &SessionError{Op: "config " + kv[0] + kv[1], Err: err}
		}
	}
	if err := s.Init(); err != nil {
		return &SessionError{Op: "init", Err: err}
	}
	if err := s.Attach(deviceICD); err != nil {
		return &SessionError{Op: "attach", Err: err}
	}
	return nil
}

func (t *SessionTrigger) execute(ctx context.Context, command string, waitAfter bool) error {
	if err := t.waitIdle(ctx); err != nil {
		return err
	}
	t.log.Debug("executing debugger command", "command", command)
	if err := t.opts.Session.Cmd(command); err != nil {
		return &SessionError{Op: "cmd " + command, Err: err}
	}
	if waitAfter {
		return t.waitIdle(ctx)
	}
	return nil
}

// waitIdle polls the practice state until no script is running.
func (t *SessionTrigger) waitIdle(ctx context.Context) error {
	var deadline time.Time
	if t.opts.PollTimeout > 0 {
		deadline = time.Now().Add(t.opts.PollTimeout)
	}
	for {
		state, err := t.opts.Session.PracticeState()
		if err != nil {
			return &SessionError{Op: "practice state", Err: err}
		}
		if state == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return &SessionError{Op: "practice state", Err: err}
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return &SessionError{Op: "practice state", Err: fmt.Errorf("script still running after %s", t.opts.PollTimeout)}
		}
		t.opts.Sleep(t.opts.PollPeriod)
	}
}
