// Package kvstore is the companion's durable key/value storage. Several
// companion processes may share one database file; each sees the others'
// writes through Watch.
package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kvstore: closed")

// Storage is string key/value storage. Implementations may fail (disk full,
// locked file); callers decide whether a failure matters.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Change describes one write observed in storage.
type Change struct {
	Key     string
	Value   string
	Deleted bool
	Rev     int64
	Origin  string
}

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL DEFAULT '',
	deleted    INTEGER NOT NULL DEFAULT 0,
	rev        INTEGER NOT NULL,
	origin     TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS kv_rev ON kv(rev);
`

// Store is a SQLite-backed Storage. Every Store gets its own origin id so
// that its watcher can skip writes it made itself.
type Store struct {
	db     *sql.DB
	origin string

	mu     sync.RWMutex
	closed bool
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("kvstore: mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("kvstore: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("kvstore: schema: %w", err)
	}

	return &Store{db: db, origin: uuid.NewString()}, nil
}

// Origin returns the id stamped on this store's writes.
func (s *Store) Origin() string { return s.origin }

// Close releases the database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Get returns the value for key and whether it exists.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := s.check(); err != nil {
		return "", false, err
	}
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ? AND deleted = 0`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kvstore: get %s: %w", key, err)
	}
	return value, true, nil
}

// Set writes value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.check(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, deleted, rev, origin, updated_at)
		VALUES (?, ?, 0, (SELECT COALESCE(MAX(rev), 0) + 1 FROM kv), ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			deleted = 0,
			rev = excluded.rev,
			origin = excluded.origin,
			updated_at = excluded.updated_at`,
		key, value, s.origin, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("kvstore: set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. The row is kept as a tombstone so watchers in other
// processes observe the removal.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.check(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE kv SET
			value = '',
			deleted = 1,
			rev = (SELECT COALESCE(MAX(rev), 0) + 1 FROM kv),
			origin = ?,
			updated_at = ?
		WHERE key = ? AND deleted = 0`,
		s.origin, time.Now().UTC().Format(time.RFC3339Nano), key)
	if err != nil {
		return fmt.Errorf("kvstore: delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) maxRev(ctx context.Context) (int64, error) {
	var rev int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(rev), 0) FROM kv`).Scan(&rev)
	return rev, err
}

func (s *Store) changesSince(ctx context.Context, rev int64) ([]Change, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, deleted, rev, origin FROM kv WHERE rev > ? ORDER BY rev`, rev)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Change
	for rows.Next() {
		var c Change
		var deleted int
		if err := rows.Scan(&c.Key, &c.Value, &deleted, &c.Rev, &c.Origin); err != nil {
			return nil, err
		}
		c.Deleted = deleted != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// Watch blocks until ctx is cancelled, polling every interval for writes made
// by other stores on the same file and passing them to fn in revision order.
func (s *Store) Watch(ctx context.Context, interval time.Duration, fn func(Change)) {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}

	last, err := s.maxRev(ctx)
	if err != nil {
		slog.Warn("kvstore watch: initial revision check failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Debug("kvstore watch: started", "interval", interval, "rev", last)
	for {
		select {
		case <-ctx.Done():
			slog.Debug("kvstore watch: stopped")
			return
		case <-ticker.C:
			if s.check() != nil {
				return
			}
			cur, err := s.maxRev(ctx)
			if err != nil {
				slog.Debug("kvstore watch: revision check failed", "error", err)
				continue
			}
			if cur <= last {
				continue
			}
			changes, err := s.changesSince(ctx, last)
			if err != nil {
				slog.Debug("kvstore watch: read changes failed", "error", err)
				continue
			}
			for _, c := range changes {
				if c.Rev > last {
					last = c.Rev
				}
				if c.Origin == s.origin {
					continue
				}
				fn(c)
			}
		}
	}
}
