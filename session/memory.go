package session

import (
	"context"
	"maps"
	"sync"
)

// MemoryBackend keeps the record in process memory. It does not survive a
// restart and is meant for tests and ephemeral tooling.
type MemoryBackend struct {
	mu     sync.Mutex
	fields map[string]string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{fields: map[string]string{}}
}

func (m *MemoryBackend) Get(context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.fields), nil
}

func (m *MemoryBackend) Put(_ context.Context, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	maps.Copy(m.fields, fields)
	return nil
}

func (m *MemoryBackend) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.fields)
	return nil
}
