package storage

import (
	"context"
	"errors"
	"sync"
)

// Storage keys of a session area.
const (
	KeyUser         = "user"
	KeyTokenExpiry  = "tokenExpiry"
	KeyRefreshToken = "refreshToken"
)

var ErrClosed = errors.New("storage area closed")

// Area is a string key/value store scoped to a single tab session.
// Get reports ok=false for missing keys; only I/O problems are errors.
type Area interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// MemoryArea keeps values for the lifetime of the process.
type MemoryArea struct {
	mu    sync.RWMutex
	store map[string]string
}

func NewMemoryArea() *MemoryArea {
	return &MemoryArea{store: make(map[string]string)}
}

func (m *MemoryArea) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.store[key]
	return v, ok, nil
}

func (m *MemoryArea) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[key] = value
	return nil
}

func (m *MemoryArea) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, key)
	return nil
}
