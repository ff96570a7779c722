// Package cache is a durable FIFO queue of opaque entries. Work happens in
// sessions: changes made through a Session become durable on Flush and are
// discarded by Close if not flushed.
package cache

import (
	"errors"
)

// MemoryPath selects the in-process queue instead of a database file.
const MemoryPath = ":memory:"

// ErrEmpty is returned by Dequeue when the queue has no entries.
var ErrEmpty = errors.New("cache: queue is empty")

// ErrSessionClosed is returned for calls on a closed session.
var ErrSessionClosed = errors.New("cache: session closed")

type Queue interface {
	// OpenSession starts a unit of work. Only one session should be open
	// at a time; callers serialise.
	OpenSession() (Session, error)
	// EstimatedCount returns the number of entries as of the last flush.
	EstimatedCount() int
	Close() error
}

type Session interface {
	Enqueue(data []byte) error
	// Dequeue removes and returns the oldest entry, or ErrEmpty.
	Dequeue() ([]byte, error)
	Flush() error
	Close() error
}

// Open returns a SQLite queue at path, or a MemoryQueue for MemoryPath.
func Open(path string) (Queue, error) {
	if path == MemoryPath {
		return NewMemoryQueue(), nil
	}
	return OpenSQLite(path)
}
