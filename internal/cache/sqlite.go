package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	_ "modernc.org/sqlite"
)

// SQLiteQueue stores entries in a single table ordered by rowid.
type SQLiteQueue struct {
	db    *sql.DB
	path  string
	count atomic.Int64
}

func OpenSQLite(path string) (*SQLiteQueue, error) {
	if path == "" {
		return nil, os.ErrInvalid
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			data BLOB NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		_ = db.Close()
		return nil, err
	}

	q := &SQLiteQueue{db: db, path: path}
	var n int64
	if err := db.QueryRow("SELECT COUNT(*) FROM entries").Scan(&n); err != nil {
		_ = db.Close()
		return nil, err
	}
	q.count.Store(n)
	return q, nil
}

func (q *SQLiteQueue) OpenSession() (Session, error) {
	tx, err := q.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("cache: begin: %w", err)
	}
	return &sqliteSession{q: q, tx: tx}, nil
}

func (q *SQLiteQueue) EstimatedCount() int { return int(q.count.Load()) }

// JournalMode reports the journal mode the database is running in.
func (q *SQLiteQueue) JournalMode() (string, error) {
	var mode string
	err := q.db.QueryRow("PRAGMA journal_mode").Scan(&mode)
	return mode, err
}

// Path returns the database file.
func (q *SQLiteQueue) Path() string { return q.path }

func (q *SQLiteQueue) Close() error { return q.db.Close() }

type sqliteSession struct {
	q     *SQLiteQueue
	tx    *sql.Tx
	delta int64
}

func (s *sqliteSession) Enqueue(data []byte) error {
	if s.tx == nil {
		return ErrSessionClosed
	}
	if _, err := s.tx.Exec("INSERT INTO entries (data) VALUES (?)", data); err != nil {
		return fmt.Errorf("cache: enqueue: %w", err)
	}
	s.delta++
	return nil
}

func (s *sqliteSession) Dequeue() ([]byte, error) {
	if s.tx == nil {
		return nil, ErrSessionClosed
	}
	var (
		id   int64
		data []byte
	)
	err := s.tx.QueryRow("SELECT id, data FROM entries ORDER BY id LIMIT 1").Scan(&id, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("cache: dequeue: %w", err)
	}
	if _, err := s.tx.Exec("DELETE FROM entries WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("cache: dequeue: %w", err)
	}
	s.delta--
	return data, nil
}

// Flush commits the session's work and opens a fresh transaction.
func (s *sqliteSession) Flush() error {
	if s.tx == nil {
		return ErrSessionClosed
	}
	if err := s.tx.Commit(); err != nil {
		s.tx = nil
		return fmt.Errorf("cache: flush: %w", err)
	}
	s.q.count.Add(s.delta)
	s.delta = 0

	tx, err := s.q.db.Begin()
	if err != nil {
		s.tx = nil
		return fmt.Errorf("cache: begin: %w", err)
	}
	s.tx = tx
	return nil
}

// Close rolls back anything not flushed.
func (s *sqliteSession) Close() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}
