// Package persist stores design blobs. A Backend holds exactly one design;
// the blob format is owned by the canvas package.
package persist

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Load when nothing has been saved yet.
var ErrNotFound = errors.New("persist: design not found")

// Backend saves and loads one design blob.
type Backend interface {
	Save(ctx context.Context, blob []byte) error
	Load(ctx context.Context) ([]byte, error)
	// Name labels the backend in logs and metrics.
	Name() string
}

// Memory is a Backend kept in process memory.
type Memory struct {
	mu    sync.Mutex
	blob  []byte
	saves int
}

var _ Backend = (*Memory)(nil)

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Save(ctx context.Context, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.blob = append([]byte(nil), blob...)
	m.saves++
	m.mu.Unlock()
	return nil
}

func (m *Memory) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blob == nil {
		return nil, ErrNotFound
	}
	return append([]byte(nil), m.blob...), nil
}

func (m *Memory) Name() string { return "memory" }

// Saves returns how many times Save succeeded.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
