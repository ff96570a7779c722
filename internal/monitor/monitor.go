// Package monitor runs the presence state machine. Each tick asks a Checker
// whether the debugger software is running; on the absent-to-present edge
// the debugger is interrogated and a connected payload is submitted, and on
// the present-to-absent edge the matching disconnected payload follows.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/large-farva/ldsentinel/internal/fetch"
	"github.com/large-farva/ldsentinel/internal/payload"
)

// Checker reports whether the debugger software is present.
type Checker interface {
	IsPresent(ctx context.Context) (bool, error)
}

// Submitter delivers a payload. delivery.Engine implements it.
type Submitter interface {
	Send(ctx context.Context, p payload.Payload) bool
}

// Presence is the observed state of the debugger software.
type Presence string

const (
	Absent  Presence = "absent"
	Present Presence = "present"
)

// State is owned by the monitor loop. Snapshot returns a copy.
type State struct {
	ProcessActive bool             `json:"process_active"`
	FetchFailed   bool             `json:"fetch_failed"`
	LastConnected *payload.Payload `json:"last_connected,omitempty"`
}

func (s State) Presence() Presence {
	if s.ProcessActive {
		return Present
	}
	return Absent
}

// Transition describes one edge of the state machine.
type Transition struct {
	From    Presence
	To      Presence
	At      time.Time
	Serials *fetch.Serials
	Err     error
}

// Options configures a Monitor.
type Options struct {
	Checker   Checker
	Fetcher   fetch.Fetcher
	Submitter Submitter
	Identity  payload.Identity
	Period    time.Duration
	Logger    *slog.Logger

	// OnTransition is called synchronously from the loop.
	OnTransition func(Transition)

	// Now defaults to time.Now.
	Now func() time.Time
}

type Monitor struct {
	checker   Checker
	fetcher   fetch.Fetcher
	submitter Submitter
	identity  payload.Identity
	period    time.Duration
	log       *slog.Logger
	onTrans   func(Transition)
	now       func() time.Time

	mu    sync.Mutex
	state State
}

func New(opts Options) (*Monitor, error) {
	if opts.Checker == nil || opts.Fetcher == nil || opts.Submitter == nil {
		return nil, errors.New("monitor: checker, fetcher and submitter are required")
	}
	m := &Monitor{
		checker:   opts.Checker,
		fetcher:   opts.Fetcher,
		submitter: opts.Submitter,
		identity:  opts.Identity,
		period:    opts.Period,
		log:       opts.Logger,
		onTrans:   opts.OnTransition,
		now:       opts.Now,
	}
	if m.period <= 0 {
		m.period = 5 * time.Second
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

// Snapshot returns a copy of the current state.
func (m *Monitor) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state
	if s.LastConnected != nil {
		p := *s.LastConnected
		s.LastConnected = &p
	}
	return s
}

// DetectOnce runs a single tick of the state machine.
func (m *Monitor) DetectOnce(ctx context.Context) {
	present, err := m.checker.IsPresent(ctx)
	if err != nil {
		m.log.Warn("presence check failed", "error", err)
		return
	}

	m.mu.Lock()
	active := m.state.ProcessActive
	m.mu.Unlock()

	switch {
	case present && !active:
		m.connected(ctx)
	case !present && active:
		m.disconnected(ctx)
	}
}

func (m *Monitor) connected(ctx context.Context) {
	m.log.Info("debugger software started")

	m.mu.Lock()
	m.state.ProcessActive = true
	skip := m.state.FetchFailed
	m.mu.Unlock()

	t := Transition{From: Absent, To: Present, At: m.now()}
	if skip {
		m.log.Debug("skipping fetch until the debugger software stops")
		m.emit(t)
		return
	}

	serials, err := m.fetcher.Fetch(ctx)
	if err != nil {
		m.log.Error("failed to fetch debugger info", "error", err)
		m.mu.Lock()
		m.state.FetchFailed = true
		m.mu.Unlock()
		t.Err = err
		m.emit(t)
		return
	}
	t.Serials = &serials

	p := payload.NewConnected(m.identity, serials.Head, serials.Body, m.now())
	m.submitter.Send(ctx, p)

	m.mu.Lock()
	m.state.LastConnected = &p
	m.mu.Unlock()
	m.emit(t)
}

func (m *Monitor) disconnected(ctx context.Context) {
	m.log.Info("debugger software stopped")

	m.mu.Lock()
	m.state.ProcessActive = false
	m.state.FetchFailed = false
	last := m.state.LastConnected
	m.state.LastConnected = nil
	m.mu.Unlock()

	if last != nil {
		m.submitter.Send(ctx, last.Disconnected(m.now()))
	}
	m.emit(Transition{From: Present, To: Absent, At: m.now()})
}

func (m *Monitor) emit(t Transition) {
	if m.onTrans != nil {
		m.onTrans(t)
	}
}

// Run ticks every period until ctx is done. The first tick runs
// immediately.
func (m *Monitor) Run(ctx context.Context) {
	m.log.Info("presence monitor started", "period", m.period)
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()

	for {
		m.DetectOnce(ctx)
		select {
		case <-ctx.Done():
			m.log.Info("presence monitor stopped")
			return
		case <-ticker.C:
		}
	}
}
