package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/mattn/go-shellwords"
)

// ErrNoCommands means the batch-command fetcher has nothing to run.
var ErrNoCommands = errors.New("fetch: no commands configured")

// CommandError describes a helper invocation that did not finish cleanly.
type CommandError struct {
	Command  string
	ExitCode int // -1 when the process never produced an exit code
	TimedOut bool
	Err      error
}

func (e *CommandError) Error() string {
	switch {
	case e.TimedOut:
		return fmt.Sprintf("fetch: %q did not exit within the timeout", e.Command)
	case e.ExitCode >= 0:
		return fmt.Sprintf("fetch: %q exited with code %d", e.Command, e.ExitCode)
	default:
		return fmt.Sprintf("fetch: %q failed: %v", e.Command, e.Err)
	}
}

func (e *CommandError) Unwrap() error { return e.Err }

// CommandTrigger runs an external helper once per argument string, in
// order. Each run must exit within Timeout with SuccessExitCode; the first
// run that does not aborts the batch.
type CommandTrigger struct {
	Executable      string
	Arguments       []string
	SuccessExitCode int
	Timeout         time.Duration
	Log             *slog.Logger
}

// Trigger runs the batch.
func (c *CommandTrigger) Trigger(ctx context.Context) error {
	if len(c.Arguments) == 0 {
		return fmt.Errorf("%w for %s", ErrNoCommands, c.Executable)
	}
	for _, arg := range c.Arguments {
		if err := c.run(ctx, arg); err != nil {
			return err
		}
	}
	return nil
}

func (c *CommandTrigger) run(ctx context.Context, arg string) error {
	display := c.Executable + " " + arg

	argv, err := shellwords.Parse(arg)
	if err != nil {
		return &CommandError{Command: display, ExitCode: -1, Err: err}
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.Executable, argv...)

	start := time.Now()
	err = cmd.Run()
	elapsed := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		c.logger().Error("command timed out", "command", display, "timeout", c.Timeout)
		return &CommandError{Command: display, ExitCode: -1, TimedOut: true, Err: runCtx.Err()}
	}

	code := -1
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		code = cmd.ProcessState.ExitCode()
	case errors.As(err, &exitErr):
		code = exitErr.ExitCode()
	default:
		c.logger().Error("failed to run command", "command", display, "error", err)
		return &CommandError{Command: display, ExitCode: -1, Err: err}
	}

	if code != c.SuccessExitCode {
		c.logger().Error("command exited with unexpected code", "command", display, "exit_code", code, "want", c.SuccessExitCode)
		return &CommandError{Command: display, ExitCode: code, Err: err}
	}

	c.logger().Debug("command finished", "command", display, "elapsed", elapsed)
	return nil
}

func (c *CommandTrigger) logger() *slog.Logger {
	if c.Log == nil {
		return slog.Default()
	}
	return c.Log
}
