// Package fetch retrieves the head and body serial numbers of the attached
// debugger. A Trigger asks the debugger software to write its hardware
// report to an info file; the InfoFetcher then polls that file until it
// parses or the attempt budget runs out.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Undefined is the serial value reported before the first successful fetch.
const Undefined = "undefined"

// ErrArtifactUnavailable means the info file never appeared or never
// parsed within the configured attempts.
var ErrArtifactUnavailable = errors.New("fetch: info file unavailable")

// Serials holds the two identifiers of a debugger.
type Serials struct {
	Head string `json:"head"`
	Body string `json:"body"`
}

// Fetcher is the capability the presence monitor drives.
type Fetcher interface {
	// Fetch triggers acquisition and waits for the result.
	Fetch(ctx context.Context) (Serials, error)
	// Last returns the most recently fetched serials, or Undefined values.
	Last() Serials
}

// Trigger asks the debugger software to produce the info file.
type Trigger interface {
	Trigger(ctx context.Context) error
}

// Options configures an InfoFetcher.
type Options struct {
	Trigger      Trigger
	InfoFilePath string
	MaxAttempts  int
	WaitPeriod   time.Duration
	Logger       *slog.Logger

	// Closer, if set, is released by Close. It owns whatever the trigger
	// holds open, such as a loaded API library.
	Closer io.Closer

	// Sleep and ReadFile default to time.Sleep and os.ReadFile.
	Sleep    func(time.Duration)
	ReadFile func(string) ([]byte, error)
}

// InfoFetcher runs a Trigger and polls the resulting info file.
type InfoFetcher struct {
	trigger     Trigger
	path        string
	maxAttempts int
	wait        time.Duration
	log         *slog.Logger
	sleep       func(time.Duration)
	readFile    func(string) ([]byte, error)
	closer      io.Closer

	mu   sync.Mutex
	last Serials
}

// New creates an InfoFetcher. Serials start as Undefined.
func New(opts Options) (*InfoFetcher, error) {
	if opts.Trigger == nil {
		return nil, errors.New("fetch: trigger required")
	}
	if opts.InfoFilePath == "" {
		return nil, errors.New("fetch: info file path required")
	}
	if opts.MaxAttempts < 1 {
		return nil, errors.New("fetch: max attempts must be >= 1")
	}
	f := &InfoFetcher{
		trigger:     opts.Trigger,
		path:        opts.InfoFilePath,
		maxAttempts: opts.MaxAttempts,
		wait:        opts.WaitPeriod,
		log:         opts.Logger,
		sleep:       opts.Sleep,
		readFile:    opts.ReadFile,
		closer:      opts.Closer,
		last:        Serials{Head: Undefined, Body: Undefined},
	}
	if f.log == nil {
		f.log = slog.Default()
	}
	if f.sleep == nil {
		f.sleep = time.Sleep
	}
	if f.readFile == nil {
		f.readFile = os.ReadFile
	}
	return f, nil
}

// Fetch triggers the debugger and polls the info file. A trigger failure
// returns immediately without polling. On success the info file is removed.
func (f *InfoFetcher) Fetch(ctx context.Context) (Serials, error) {
	f.log.Info("fetching data from the debugger", "info_file", f.path)

	if err := f.trigger.Trigger(ctx); err != nil {
		f.log.Error("failed to trigger the debugger", "error", err)
		return Serials{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		f.log.Debug("parsing info file", "attempt", attempt, "max_attempts", f.maxAttempts)

		s, err := f.retrieve()
		if err == nil {
			f.mu.Lock()
			f.last = s
			f.mu.Unlock()

			f.log.Info("info file parsed", "head", s.Head, "body", s.Body, "attempt", attempt)
			if rmErr := os.Remove(f.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				f.log.Warn("failed to remove info file", "path", f.path, "error", rmErr)
			}
			return s, nil
		}
		lastErr = err

		if attempt < f.maxAttempts {
			f.sleep(f.wait)
		}
	}

	f.log.Error("failed to parse the info file", "path", f.path, "attempts", f.maxAttempts, "error", lastErr)
	return Serials{}, fmt.Errorf("%w after %d attempts: %w", ErrArtifactUnavailable, f.maxAttempts, lastErr)
}

func (f *InfoFetcher) retrieve() (Serials, error) {
	b, err := f.readFile(f.path)
	if err != nil {
		return Serials{}, err
	}
	return ParseSerials(string(b))
}

// Last returns the most recently fetched serials.
func (f *InfoFetcher) Last() Serials {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// Close releases resources held by the trigger.
func (f *InfoFetcher) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}
