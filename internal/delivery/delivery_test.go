package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/large-farva/ldsentinel/internal/cache"
	"github.com/large-farva/ldsentinel/internal/payload"
)

type collector struct {
	srv  *httptest.Server
	fail atomic.Bool

	mu       sync.Mutex
	received []payload.Payload
	requests int
}

func newCollector(t *testing.T) *collector {
	t.Helper()
	c := &collector{}
	c.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		c.requests++
		c.mu.Unlock()

		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if c.fail.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		b, _ := io.ReadAll(r.Body)
		p, err := payload.Unmarshal(b)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		c.mu.Lock()
		c.received = append(c.received, p)
		c.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(c.srv.Close)
	return c
}

func (c *collector) got() []payload.Payload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]payload.Payload(nil), c.received...)
}

func (c *collector) requestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests
}

func newEngine(t *testing.T, url string, q cache.Queue, maxEntries, maxRetries int) *Engine {
	t.Helper()
	e, err := New(Options{
		URL:        url,
		Client:     &http.Client{Timeout: 2 * time.Second},
		Queue:      q,
		MaxEntries: maxEntries,
		MaxRetries: maxRetries,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func samplePayload(i int) payload.Payload {
	id := payload.Identity{Username: "user", Hostname: "host"}
	at := time.Date(2022, 3, 21, 18, 5, i, 0, time.Local)
	return payload.NewConnected(id, fmt.Sprintf("HEAD%02d", i), fmt.Sprintf("BODY%02d", i), at)
}

func cachedHeads(t *testing.T, q cache.Queue) []string {
	t.Helper()
	s, err := q.OpenSession()
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	defer s.Close()
	var heads []string
	for {
		b, err := s.Dequeue()
		if errors.Is(err, cache.ErrEmpty) {
			return heads
		}
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		p, err := payload.Unmarshal(b)
		if err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		heads = append(heads, p.HeadDevice.SerialNumber)
	}
}

func TestSendSuccess(t *testing.T) {
	c := newCollector(t)
	q := cache.NewMemoryQueue()
	e := newEngine(t, c.srv.URL, q, 10, 5)

	if !e.Send(context.Background(), samplePayload(1)) {
		t.Fatal("Send reported failure")
	}
	if got := c.got(); len(got) != 1 || got[0] != samplePayload(1) {
		t.Fatalf("collector got %+v", got)
	}
	if q.EstimatedCount() != 0 {
		t.Fatal("delivered payload was cached")
	}
	if s := e.Stats(); s.Delivered != 1 || s.Failed != 0 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestSendFailureCaches(t *testing.T) {
	c := newCollector(t)
	c.fail.Store(true)
	q := cache.NewMemoryQueue()
	e := newEngine(t, c.srv.URL, q, 10, 5)

	if e.Send(context.Background(), samplePayload(1)) {
		t.Fatal("Send reported success on 503")
	}
	if q.EstimatedCount() != 1 {
		t.Fatalf("cached = %d, want 1", q.EstimatedCount())
	}
}

func TestSendUnreachableCollectorCaches(t *testing.T) {
	c := newCollector(t)
	url := c.srv.URL
	c.srv.Close()

	q := cache.NewMemoryQueue()
	e := newEngine(t, url, q, 10, 5)
	if e.Send(context.Background(), samplePayload(1)) {
		t.Fatal("Send reported success with the collector down")
	}
	if q.EstimatedCount() != 1 {
		t.Fatalf("cached = %d, want 1", q.EstimatedCount())
	}
}

func TestSendIgnoresCancelledContext(t *testing.T) {
	c := newCollector(t)
	e := newEngine(t, c.srv.URL, cache.NewMemoryQueue(), 10, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if !e.Send(ctx, samplePayload(1)) {
		t.Fatal("in-flight send was cancelled by the caller context")
	}
}

func TestCacheEvictsOldest(t *testing.T) {
	q := cache.NewMemoryQueue()
	e := newEngine(t, "http://127.0.0.1:1/unused", q, 10, 5)

	for i := 0; i < 15; i++ {
		if err := e.CachePayload(samplePayload(i)); err != nil {
			t.Fatalf("CachePayload %d: %v", i, err)
		}
	}

	heads := cachedHeads(t, q)
	if len(heads) != 10 {
		t.Fatalf("cached %d entries, want 10", len(heads))
	}
	for i, h := range heads {
		if want := fmt.Sprintf("HEAD%02d", i+5); h != want {
			t.Fatalf("entry %d = %s, want %s", i, h, want)
		}
	}
	if s := e.Stats(); s.Evicted != 5 || s.Cached != 15 {
		t.Fatalf("stats = %+v", s)
	}
}

// staleCountQueue reports a fixed count regardless of what it holds.
type staleCountQueue struct {
	cache.Queue
	count int
}

func (q staleCountQueue) EstimatedCount() int { return q.count }

func TestCacheEvictionCountsOnlyRemovedEntries(t *testing.T) {
	q := staleCountQueue{Queue: cache.NewMemoryQueue(), count: 10}
	e := newEngine(t, "http://127.0.0.1:1/unused", q, 10, 5)

	if err := e.CachePayload(samplePayload(0)); err != nil {
		t.Fatalf("CachePayload: %v", err)
	}
	if s := e.Stats(); s.Evicted != 0 || s.Cached != 1 {
		t.Fatalf("stats = %+v, want no eviction from an empty queue", s)
	}
	if heads := cachedHeads(t, q.Queue); len(heads) != 1 || heads[0] != "HEAD00" {
		t.Fatalf("cached = %v", heads)
	}
}

func TestCacheEvictsOldestSQLite(t *testing.T) {
	q, err := cache.OpenSQLite(t.TempDir() + "/cache.db")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer q.Close()
	e := newEngine(t, "http://127.0.0.1:1/unused", q, 3, 5)

	for i := 0; i < 5; i++ {
		if err := e.CachePayload(samplePayload(i)); err != nil {
			t.Fatalf("CachePayload %d: %v", i, err)
		}
	}
	if got := fmt.Sprint(cachedHeads(t, q)); got != "[HEAD02 HEAD03 HEAD04]" {
		t.Fatalf("cached %s", got)
	}
}

func TestResendSendsAtMostMaxRetries(t *testing.T) {
	c := newCollector(t)
	q := cache.NewMemoryQueue()
	e := newEngine(t, c.srv.URL, q, 100, 4)

	for i := 0; i < 10; i++ {
		if err := e.CachePayload(samplePayload(i)); err != nil {
			t.Fatal(err)
		}
	}

	if n := e.ResendOnce(context.Background()); n != 4 {
		t.Fatalf("first tick dispatched %d, want 4", n)
	}
	if len(c.got()) != 4 || q.EstimatedCount() != 6 {
		t.Fatalf("after first tick: delivered %d, queued %d", len(c.got()), q.EstimatedCount())
	}

	e.ResendOnce(context.Background())
	if n := e.ResendOnce(context.Background()); n != 2 {
		t.Fatalf("third tick dispatched %d, want 2", n)
	}
	if q.EstimatedCount() != 0 || len(c.got()) != 10 {
		t.Fatalf("delivered %d, queued %d", len(c.got()), q.EstimatedCount())
	}
	if n := e.ResendOnce(context.Background()); n != 0 {
		t.Fatalf("empty cache dispatched %d", n)
	}
	if e.Stats().Resent != 10 {
		t.Fatalf("resent = %d", e.Stats().Resent)
	}
}

func TestFailedResendIsRecached(t *testing.T) {
	c := newCollector(t)
	c.fail.Store(true)
	q := cache.NewMemoryQueue()
	e := newEngine(t, c.srv.URL, q, 100, 5)

	for i := 0; i < 3; i++ {
		e.CachePayload(samplePayload(i))
	}
	if n := e.ResendOnce(context.Background()); n != 3 {
		t.Fatalf("dispatched %d, want 3", n)
	}
	if q.EstimatedCount() != 3 {
		t.Fatalf("queued %d after failed resend, want 3", q.EstimatedCount())
	}
	if c.requestCount() != 3 {
		t.Fatalf("collector saw %d requests", c.requestCount())
	}

	c.fail.Store(false)
	e.ResendOnce(context.Background())
	if q.EstimatedCount() != 0 || len(c.got()) != 3 {
		t.Fatalf("queued %d, delivered %d", q.EstimatedCount(), len(c.got()))
	}
}

func TestResendSkipsUndecodableEntries(t *testing.T) {
	c := newCollector(t)
	q := cache.NewMemoryQueue()
	e := newEngine(t, c.srv.URL, q, 100, 5)

	s, _ := q.OpenSession()
	s.Enqueue([]byte("not json"))
	s.Flush()
	s.Close()
	e.CachePayload(samplePayload(1))

	if n := e.ResendOnce(context.Background()); n != 1 {
		t.Fatalf("dispatched %d, want 1", n)
	}
	if q.EstimatedCount() != 0 {
		t.Fatalf("queued %d, want 0", q.EstimatedCount())
	}
}

func TestOnDeliveryReportsOutcome(t *testing.T) {
	c := newCollector(t)
	var outcomes []Outcome
	e, err := New(Options{
		URL:        c.srv.URL,
		Queue:      cache.NewMemoryQueue(),
		MaxEntries: 5,
		MaxRetries: 5,
		OnDelivery: func(o Outcome) { outcomes = append(outcomes, o) },
	})
	if err != nil {
		t.Fatal(err)
	}
	e.Send(context.Background(), samplePayload(1))
	if len(outcomes) != 1 || !outcomes[0].Delivered || outcomes[0].Resend {
		t.Fatalf("outcomes = %+v", outcomes)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	c := newCollector(t)
	q := cache.NewMemoryQueue()
	e, err := New(Options{
		URL:         c.srv.URL,
		Queue:       q,
		MaxEntries:  10,
		MaxRetries:  10,
		RetryPeriod: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	e.CachePayload(samplePayload(1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for q.EstimatedCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if q.EstimatedCount() != 0 {
		t.Fatal("resend loop never drained the cache")
	}
}
