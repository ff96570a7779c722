// Package t32 is a thin adapter over the debugger vendor's remote API shared
// library. Only the calls the agent needs are bound: configure the link,
// initialise, attach, run a command, query the practice interpreter, and
// exit.
package t32

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// OK is the status code the library returns on success.
const OK = 0

// Error wraps a non-zero status returned by a library call.
type Error struct {
	Op   string
	Code int32
}

func (e *Error) Error() string {
	return fmt.Sprintf("t32: %s returned %d", e.Op, e.Code)
}

// ErrClosed is returned for calls made after Close.
var ErrClosed = errors.New("t32: library closed")

// ErrNulInString is returned when a string argument contains a NUL byte and
// so cannot be passed as a C string.
var ErrNulInString = errors.New("t32: string argument contains NUL")

// codeBadString is reported by a binding that could not build a C string.
const codeBadString int32 = -1

// funcs holds the bound library entry points. Each platform fills it in.
type funcs struct {
	config        func(key, value string) int32
	init          func() int32
	attach        func(device int32) int32
	cmd           func(command string) int32
	practiceState func(state *int32) int32
	exit          func() int32
	release       func() error
}

// API is a loaded remote API library. It is not safe for concurrent use;
// callers serialise access.
type API struct {
	path string

	mu     sync.Mutex
	fn     *funcs
	closed bool
}

// Open loads the library at path and resolves its entry points.
func Open(path string) (*API, error) {
	fn, err := load(path)
	if err != nil {
		return nil, fmt.Errorf("t32: load %s: %w", path, err)
	}
	return &API{path: path, fn: fn}, nil
}

// Path returns the file the library was loaded from.
func (a *API) Path() string { return a.path }

func (a *API) call(op string, f func(*funcs) int32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	if code := f(a.fn); code != OK {
		return &Error{Op: op, Code: code}
	}
	return nil
}

// Config sets one link parameter, e.g. Config("NODE=", "localhost").
func (a *API) Config(key, value string) error {
	if err := cString("T32_Config", key, value); err != nil {
		return err
	}
	return a.call("T32_Config", func(fn *funcs) int32 { return fn.config(key, value) })
}

func (a *API) Init() error {
	return a.call("T32_Init", func(fn *funcs) int32 { return fn.init() })
}

func (a *API) Attach(device int) error {
	return a.call("T32_Attach", func(fn *funcs) int32 { return fn.attach(int32(device)) })
}

func (a *API) Cmd(command string) error {
	if err := cString("T32_Cmd", command); err != nil {
		return err
	}
	return a.call("T32_Cmd", func(fn *funcs) int32 { return fn.cmd(command) })
}

// PracticeState reports the script interpreter state; 0 means idle.
func (a *API) PracticeState() (int, error) {
	var state int32
	err := a.call("T32_GetPracticeState", func(fn *funcs) int32 { return fn.practiceState(&state) })
	return int(state), err
}

// Exit closes the link to the debugger. The library stays loaded.
func (a *API) Exit() error {
	return a.call("T32_Exit", func(fn *funcs) int32 { return fn.exit() })
}

// Close releases the library handle.
func (a *API) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if a.fn.release != nil {
		return a.fn.release()
	}
	return nil
}

func cString(op string, args ...string) error {
	for _, s := range args {
		if strings.IndexByte(s, 0) >= 0 {
			return fmt.Errorf("%s %q: %w", op, s, ErrNulInString)
		}
	}
	return nil
}
