package session

import (
	"context"
	"errors"
	"sync"
)

// ErrUnavailable wraps every backend I/O failure surfaced by [Store].
var ErrUnavailable = errors.New("session backend unavailable")

// ErrCorrupt is returned when stored fields cannot be decoded into a [Session].
var ErrCorrupt = errors.New("session record corrupt")

// Backend persists the flat session record. Implementations must apply Put and
// Reset atomically: a concurrent Get sees either all or none of their effect.
type Backend interface {
	// Get returns every stored field. A missing record is an empty map.
	Get(ctx context.Context) (map[string]string, error)
	// Put upserts the given fields and leaves the others untouched.
	Put(ctx context.Context, fields map[string]string) error
	// Reset removes every field.
	Reset(ctx context.Context) error
}

// Store is the only component that performs durable I/O on the session. It
// serializes writers against readers in-process, on top of the per-operation
// atomicity each [Backend] guarantees, so Load never observes a half-applied
// Save or Clear.
type Store struct {
	backend Backend
	mu      sync.RWMutex
}

// NewStore returns a Store over backend. A nil backend gets an in-memory one.
func NewStore(backend Backend) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	return &Store{backend: backend}
}

// Save writes the non-nil fields of p.
func (s *Store) Save(ctx context.Context, p Patch) error {
	if p.Empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.backend.Put(ctx, p.encode())
}

// Load reads the current session. An absent record yields the zero Session.
func (s *Store) Load(ctx context.Context) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields, err := s.backend.Get(ctx)
	if err != nil {
		return Session{}, err
	}
	return decode(fields)
}

// Clear resets every field to its zero value.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.backend.Reset(ctx)
}
