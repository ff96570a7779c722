// Package app wires the presence monitor, the delivery engine, the local
// status API, and the WebSocket hub together. It owns the daemon lifecycle
// and is the single source of truth for the current operating state.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/large-farva/ldsentinel/internal/cache"
	"github.com/large-farva/ldsentinel/internal/config"
	"github.com/large-farva/ldsentinel/internal/delivery"
	"github.com/large-farva/ldsentinel/internal/fetch"
	"github.com/large-farva/ldsentinel/internal/monitor"
	"github.com/large-farva/ldsentinel/internal/payload"
	"github.com/large-farva/ldsentinel/internal/presence"
	"github.com/large-farva/ldsentinel/internal/telemetry"
	"github.com/large-farva/ldsentinel/internal/ws"
)

// Daemon lifecycle states.
const (
	StateBooting  = "BOOTING"
	StateRunning  = "RUNNING"
	StateStopping = "STOPPING"
)

const heartbeatPeriod = 10 * time.Second

// Options holds everything the App needs from the caller. Checker, Fetcher,
// Queue and Identity are built from Cfg when left empty.
type Options struct {
	Logger     *slog.Logger
	Cfg        config.Config
	ConfigPath string
	Bind       string
	Hub        *ws.Hub
	Logs       *LogSink

	Checker    monitor.Checker
	Fetcher    fetch.Fetcher
	Queue      cache.Queue
	Identity   *payload.Identity
	HTTPClient *http.Client
}

// App is the top-level daemon process.
type App struct {
	log        *slog.Logger
	cfg        config.Config
	configPath string
	bind       string

	hub     *ws.Hub
	logs    *LogSink
	server  *http.Server
	addr    atomic.Value // bound listen address, set once serving
	closers []io.Closer

	checker monitor.Checker
	fetcher fetch.Fetcher
	queue   cache.Queue
	engine  *delivery.Engine
	monitor *monitor.Monitor

	startedAt time.Time
	state     atomic.Value
}

// New builds every component in the BOOTING state. Call Run to start.
func New(opts Options) (*App, error) {
	a := &App{
		log:        opts.Logger,
		cfg:        opts.Cfg,
		configPath: opts.ConfigPath,
		bind:       opts.Bind,
		hub:        opts.Hub,
		logs:       opts.Logs,
		checker:    opts.Checker,
		fetcher:    opts.Fetcher,
		queue:      opts.Queue,
		startedAt:  time.Now(),
	}
	a.state.Store(StateBooting)
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.hub == nil {
		a.hub = ws.NewHub()
	}
	if a.logs == nil {
		a.logs = NewLogSink(a.hub, defaultLogBuffer)
	}

	if err := a.build(opts); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(opts Options) error {
	cfg := a.cfg

	if a.queue == nil {
		q, err := cache.Open(cfg.Cache.Path)
		if err != nil {
			return fmt.Errorf("open cache %s: %w", cfg.Cache.Path, err)
		}
		a.queue = q
		a.closers = append(a.closers, q)
	}

	if a.fetcher == nil {
		f, err := fetch.Build(cfg.Fetcher, a.log)
		if err != nil {
			return fmt.Errorf("build fetcher: %w", err)
		}
		a.fetcher = f
		a.closers = append(a.closers, f)
	}

	if a.checker == nil {
		c, err := newChecker(cfg.Detection)
		if err != nil {
			return err
		}
		a.checker = c
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Network.Timeout()}
	}
	engine, err := delivery.New(delivery.Options{
		URL:         cfg.Network.CollectorURL(),
		Client:      client,
		Queue:       a.queue,
		MaxEntries:  cfg.Cache.MaxEntries,
		MaxRetries:  cfg.Cache.MaxRetries,
		RetryPeriod: cfg.Cache.RetryPeriod(),
		Logger:      a.log.With("component", "delivery"),
		OnDelivery:  a.onDelivery,
	})
	if err != nil {
		return err
	}
	a.engine = engine

	id := monitor.LocalIdentity()
	if opts.Identity != nil {
		id = *opts.Identity
	}
	m, err := monitor.New(monitor.Options{
		Checker:      a.checker,
		Fetcher:      a.fetcher,
		Submitter:    a.engine,
		Identity:     id,
		Period:       cfg.Detection.Period(),
		Logger:       a.log.With("component", "monitor"),
		OnTransition: a.onTransition,
	})
	if err != nil {
		return err
	}
	a.monitor = m
	return nil
}

func newChecker(d config.DetectionConfig) (monitor.Checker, error) {
	switch d.Method {
	case config.DetectProcess:
		return presence.NewProcessChecker(d.ProcessName), nil
	case config.DetectPort:
		return &presence.PortChecker{Address: d.Address, Port: d.Port, Timeout: time.Second}, nil
	default:
		return nil, fmt.Errorf("unknown detection method %q", d.Method)
	}
}

// Run starts the hub, the status server, the presence monitor, and the
// resend loop. It blocks until ctx is cancelled or the server fails, then
// waits for both loops to finish their current tick and releases the cache.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.hub.Run(runCtx)

	srvErr := make(chan error, 1)
	if a.cfg.Server.Enabled {
		ln, err := a.listen()
		if err != nil {
			a.close()
			return err
		}
		go func() { srvErr <- a.server.Serve(ln) }()
	}

	a.transition(StateRunning)
	a.log.Info("agent started",
		"collector", a.cfg.Network.CollectorURL(),
		"detection", a.cfg.Detection.Method,
		"fetcher", a.cfg.Fetcher.Method,
		"queued", a.queue.EstimatedCount())

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); a.monitor.Run(runCtx) }()
	go func() { defer wg.Done(); a.engine.Run(runCtx) }()
	go func() { defer wg.Done(); a.heartbeatLoop(runCtx) }()

	var err error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown requested")
	case err = <-srvErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		a.log.Error("status server stopped", "error", err)
	}

	a.transition(StateStopping)
	cancel()
	if a.server != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.server.Shutdown(shutdownCtx)
		done()
	}
	wg.Wait()
	a.close()
	a.log.Info("agent stopped")
	return err
}

func (a *App) listen() (net.Listener, error) {
	bind := a.bind
	if bind == "" {
		bind = a.cfg.Server.Bind
	}
	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return nil, fmt.Errorf("status server: %w", err)
	}
	a.server = &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.addr.Store(ln.Addr().String())
	a.log.Info("status server listening", "url", "http://"+ln.Addr().String())
	return ln, nil
}

// Addr returns the status server address once it is listening.
func (a *App) Addr() string {
	s, _ := a.addr.Load().(string)
	return s
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

// State returns the current lifecycle state.
func (a *App) State() string { return a.state.Load().(string) }

// transition updates the lifecycle state and broadcasts the change.
func (a *App) transition(to string) {
	from := a.state.Swap(to).(string)
	if from == to {
		return
	}
	a.hub.BroadcastJSON(telemetry.NewStateTransition(from, to))
}

func (a *App) onTransition(t monitor.Transition) {
	ev := telemetry.NewPresenceChange(string(t.From), string(t.To))
	if t.Serials != nil {
		ev.Head, ev.Body = t.Serials.Head, t.Serials.Body
	}
	if t.Err != nil {
		ev.Error = t.Err.Error()
	}
	a.hub.BroadcastJSON(ev)
}

func (a *App) onDelivery(o delivery.Outcome) {
	ev := telemetry.NewDelivery()
	ev.Status = string(o.Payload.Status)
	ev.Head = o.Payload.HeadDevice.SerialNumber
	ev.Body = o.Payload.BodyDevice.SerialNumber
	ev.Delivered = o.Delivered
	ev.Resend = o.Resend
	ev.ElapsedMs = o.Elapsed.Milliseconds()
	if o.Err != nil {
		ev.Error = o.Err.Error()
	}
	a.hub.BroadcastJSON(ev)
}

// heartbeatLoop lets clients detect connectivity without polling.
func (a *App) heartbeatLoop(ctx context.Context) {
	t := time.NewTicker(heartbeatPeriod)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.hub.BroadcastJSON(telemetry.NewHeartbeat(
				a.State(),
				string(a.monitor.Snapshot().Presence()),
				time.Since(a.startedAt),
				a.queue.EstimatedCount(),
			))
		}
	}
}
