// Package tokenstore keeps the auth token in durable storage and tells
// interested components when it changes.
package tokenstore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dgnsrekt/eglc_companion/internal/broadcast"
	"github.com/dgnsrekt/eglc_companion/internal/kvstore"
)

// Key is the storage key holding the token.
const Key = "eglc.auth.token"

const storageTimeout = 2 * time.Second

// Listener receives the new token value. An empty string means logged out.
type Listener = func(token string)

// Store is the process-wide token holder. The in-memory value is the source
// of truth for this process; storage is written best-effort.
type Store struct {
	storage kvstore.Storage
	pub     broadcast.Publisher

	mu        sync.Mutex
	token     string
	nextID    int
	listeners map[int]Listener
}

// New loads the persisted token, if any. A storage failure is treated as
// "no token".
func New(storage kvstore.Storage, pub broadcast.Publisher) *Store {
	if pub == nil {
		pub = broadcast.Discard{}
	}
	s := &Store{storage: storage, pub: pub, listeners: make(map[int]Listener)}

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	if v, ok, err := storage.Get(ctx, Key); err != nil {
		slog.Debug("token read failed", "error", err)
	} else if ok {
		s.token = v
	}
	return s
}

// Read returns the current token or "".
func (s *Store) Read() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Write persists (or clears, for "") the token and notifies listeners.
func (s *Store) Write(token string) {
	s.mu.Lock()
	if s.token == token {
		s.mu.Unlock()
		return
	}
	s.token = token
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	var err error
	if token == "" {
		err = s.storage.Delete(ctx, Key)
	} else {
		err = s.storage.Set(ctx, Key, token)
	}
	if err != nil {
		slog.Debug("token write failed, keeping in-memory value", "error", err)
	}

	s.emit(token)
}

// Subscribe registers fn for token changes. The returned func removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// ApplyExternal reconciles a storage change written by another process.
// The value is adopted without writing it back.
func (s *Store) ApplyExternal(c kvstore.Change) {
	if c.Key != Key {
		return
	}
	token := c.Value
	if c.Deleted {
		token = ""
	}

	s.mu.Lock()
	if s.token == token {
		s.mu.Unlock()
		return
	}
	s.token = token
	s.mu.Unlock()

	slog.Debug("token changed by another process", "logged_in", token != "")
	s.emit(token)
}

func (s *Store) emit(token string) {
	s.mu.Lock()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(token)
	}
	s.pub.Publish(broadcast.NewEvent(broadcast.TopicToken, map[string]bool{"present": token != ""}))
}
