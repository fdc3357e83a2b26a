package state

import (
	"context"
	"errors"
	"sync"

	"github.com/moat-io/moat/internal/ir"
)

var errLocked = errors.New("state is already locked")

// MemoryBackend keeps state in memory. Used by tests and throwaway runs.
type MemoryBackend struct {
	mu     sync.Mutex
	state  *ir.State
	locked bool
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (b *MemoryBackend) Read(ctx context.Context) (*ir.State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == nil {
		return &ir.State{Version: 1, Serial: 0}, nil
	}
	return b.state, nil
}

func (b *MemoryBackend) Write(ctx context.Context, state *ir.State) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = state
	return nil
}

func (b *MemoryBackend) Lock() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.locked {
		return errLocked
	}
	b.locked = true
	return nil
}

func (b *MemoryBackend) Unlock() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.locked = false
	return nil
}
