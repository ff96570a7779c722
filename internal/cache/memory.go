package cache

import (
	"sync"
)

// MemoryQueue keeps entries in process memory. It honours the session
// contract but nothing survives a restart.
type MemoryQueue struct {
	mu      sync.Mutex
	entries [][]byte
}

func NewMemoryQueue() *MemoryQueue { return &MemoryQueue{} }

func (q *MemoryQueue) OpenSession() (Session, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return &memorySession{q: q, work: cloneEntries(q.entries)}, nil
}

func (q *MemoryQueue) EstimatedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *MemoryQueue) Close() error { return nil }

type memorySession struct {
	q      *MemoryQueue
	work   [][]byte
	closed bool
}

func (s *memorySession) Enqueue(data []byte) error {
	if s.closed {
		return ErrSessionClosed
	}
	s.work = append(s.work, append([]byte(nil), data...))
	return nil
}

func (s *memorySession) Dequeue() ([]byte, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if len(s.work) == 0 {
		return nil, ErrEmpty
	}
	head := s.work[0]
	s.work = s.work[1:]
	return head, nil
}

func (s *memorySession) Flush() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.q.mu.Lock()
	s.q.entries = cloneEntries(s.work)
	s.q.mu.Unlock()
	return nil
}

func (s *memorySession) Close() error {
	s.closed = true
	s.work = nil
	return nil
}

func cloneEntries(in [][]byte) [][]byte {
	out := make([][]byte, len(in))
	copy(out, in)
	return out
}
