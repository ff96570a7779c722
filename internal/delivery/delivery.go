// Package delivery posts presence payloads to the collector. Payloads that
// cannot be delivered are kept in a bounded durable cache and retried from a
// background loop.
package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/remeh/sizedwaitgroup"

	"github.com/large-farva/ldsentinel/internal/cache"
	"github.com/large-farva/ldsentinel/internal/payload"
)

// Outcome is reported to OnDelivery after every send attempt.
type Outcome struct {
	Payload   payload.Payload
	Delivered bool
	Resend    bool
	Elapsed   time.Duration
	Err       error
}

// Options configures an Engine.
type Options struct {
	URL         string
	Client      *http.Client
	Queue       cache.Queue
	MaxEntries  int
	MaxRetries  int
	RetryPeriod time.Duration

	// Concurrency bounds in-flight resends; it defaults to MaxRetries.
	Concurrency int

	Logger     *slog.Logger
	OnDelivery func(Outcome)
}

// Stats is a snapshot of the engine counters.
type Stats struct {
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Cached    uint64 `json:"cached"`
	Evicted   uint64 `json:"evicted"`
	Resent    uint64 `json:"resent"`
	Queued    int    `json:"queued"`
}

// Engine sends payloads and owns the cache. All cache sessions are
// serialised by cacheMu.
type Engine struct {
	url         string
	client      *http.Client
	queue       cache.Queue
	maxEntries  int
	maxRetries  int
	retryPeriod time.Duration
	concurrency int
	log         *slog.Logger
	onDelivery  func(Outcome)

	cacheMu sync.Mutex

	delivered atomic.Uint64
	failed    atomic.Uint64
	cached    atomic.Uint64
	evicted   atomic.Uint64
	resent    atomic.Uint64
}

func New(opts Options) (*Engine, error) {
	if opts.URL == "" {
		return nil, errors.New("delivery: collector URL required")
	}
	if opts.Queue == nil {
		return nil, errors.New("delivery: queue required")
	}
	if opts.MaxEntries < 1 || opts.MaxRetries < 1 {
		return nil, errors.New("delivery: max entries and max retries must be >= 1")
	}
	e := &Engine{
		url:         opts.URL,
		client:      opts.Client,
		queue:       opts.Queue,
		maxEntries:  opts.MaxEntries,
		maxRetries:  opts.MaxRetries,
		retryPeriod: opts.RetryPeriod,
		concurrency: opts.Concurrency,
		log:         opts.Logger,
		onDelivery:  opts.OnDelivery,
	}
	if e.client == nil {
		e.client = &http.Client{Timeout: 10 * time.Second}
	}
	if e.concurrency < 1 {
		e.concurrency = e.maxRetries
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	return e, nil
}

// Send posts p once. On failure the payload is cached for a later resend
// and Send reports false. The request is not cancelled when ctx is; the
// client timeout bounds it.
func (e *Engine) Send(ctx context.Context, p payload.Payload) bool {
	return e.send(ctx, p, false)
}

func (e *Engine) send(ctx context.Context, p payload.Payload, resend bool) bool {
	start := time.Now()
	err := e.post(context.WithoutCancel(ctx), p)
	elapsed := time.Since(start)

	if err != nil {
		e.failed.Add(1)
		e.log.Error("failed to send payload", "payload", p.String(), "resend", resend, "error", err)
		if cerr := e.CachePayload(p); cerr != nil {
			e.log.Error("failed to cache payload", "payload", p.String(), "error", cerr)
		}
	} else {
		e.delivered.Add(1)
		if resend {
			e.resent.Add(1)
		}
		e.log.Info("payload delivered", "status", p.Status, "head", p.HeadDevice.SerialNumber,
			"body", p.BodyDevice.SerialNumber, "elapsed_ms", elapsed.Milliseconds(), "resend", resend)
	}

	if e.onDelivery != nil {
		e.onDelivery(Outcome{Payload: p, Delivered: err == nil, Resend: resend, Elapsed: elapsed, Err: err})
	}
	return err == nil
}

func (e *Engine) post(ctx context.Context, p payload.Payload) error {
	body, err := payload.Marshal(p)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("collector responded %s", resp.Status)
	}
	return nil
}

// CachePayload stores p, evicting the oldest entry when the cache is full.
func (e *Engine) CachePayload(p payload.Payload) error {
	data, err := payload.Marshal(p)
	if err != nil {
		return err
	}

	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()

	s, err := e.queue.OpenSession()
	if err != nil {
		return err
	}
	defer s.Close()

	evicted := false
	if e.queue.EstimatedCount() >= e.maxEntries {
		_, err := s.Dequeue()
		switch {
		case err == nil:
			evicted = true
		case !errors.Is(err, cache.ErrEmpty):
			return fmt.Errorf("evict oldest: %w", err)
		}
	}
	if err := s.Enqueue(data); err != nil {
		return err
	}
	if err := s.Flush(); err != nil {
		return err
	}

	e.cached.Add(1)
	if evicted {
		e.evicted.Add(1)
		e.log.Warn("cache full, dropped the oldest payload", "max_entries", e.maxEntries)
	}
	e.log.Info("payload cached", "payload", p.String(), "queued", e.queue.EstimatedCount())
	return nil
}

// ResendOnce takes up to MaxRetries payloads off the cache and sends them
// concurrently. It returns how many were dispatched.
func (e *Engine) ResendOnce(ctx context.Context) int {
	batch, err := e.takeBatch()
	if err != nil {
		e.log.Error("failed to read the cache", "error", err)
		return 0
	}
	if len(batch) == 0 {
		return 0
	}
	e.log.Info("resending cached payloads", "count", len(batch))

	swg := sizedwaitgroup.New(e.concurrency)
	for _, p := range batch {
		swg.Add()
		go func(p payload.Payload) {
			defer swg.Done()
			e.send(ctx, p, true)
		}(p)
	}
	swg.Wait()
	return len(batch)
}

func (e *Engine) takeBatch() ([]payload.Payload, error) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()

	n := min(e.maxRetries, e.queue.EstimatedCount())
	if n <= 0 {
		return nil, nil
	}

	s, err := e.queue.OpenSession()
	if err != nil {
		return nil, err
	}
	defer s.Close()

	batch := make([]payload.Payload, 0, n)
	for i := 0; i < n; i++ {
		data, err := s.Dequeue()
		if errors.Is(err, cache.ErrEmpty) {
			break
		}
		if err != nil {
			return nil, err
		}
		p, err := payload.Unmarshal(data)
		if err != nil {
			e.log.Warn("dropping undecodable cache entry", "error", err)
			continue
		}
		batch = append(batch, p)
	}
	if err := s.Flush(); err != nil {
		return nil, err
	}
	return batch, nil
}

// Run calls ResendOnce every RetryPeriod until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	period := e.retryPeriod
	if period <= 0 {
		period = 30 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.ResendOnce(ctx)
		}
	}
}

// Stats returns the current counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Delivered: e.delivered.Load(),
		Failed:    e.failed.Load(),
		Cached:    e.cached.Load(),
		Evicted:   e.evicted.Load(),
		Resent:    e.resent.Load(),
		Queued:    e.queue.EstimatedCount(),
	}
}
