package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/ruteri/data-exchange-registry/interfaces"
)

// MemoryBackend keeps the snapshot in process memory. State does not
// survive a restart.
type MemoryBackend struct {
	mu          sync.Mutex
	name        string
	data        []byte
	unavailable bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend(name string) *MemoryBackend {
	return &MemoryBackend{name: name}
}

func (b *MemoryBackend) Load(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.unavailable {
		return nil, interfaces.ErrBackendUnavailable
	}
	if b.data == nil {
		return nil, interfaces.ErrStateNotFound
	}
	return append([]byte(nil), b.data...), nil
}

func (b *MemoryBackend) Save(ctx context.Context, data []byte) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.unavailable {
		return id, interfaces.ErrBackendUnavailable
	}
	b.data = append([]byte{}, data...)
	return id, nil
}

// SetAvailable toggles simulated availability. While unavailable, Load and
// Save fail with ErrBackendUnavailable.
func (b *MemoryBackend) SetAvailable(available bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unavailable = !available
}

func (b *MemoryBackend) Available(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.unavailable
}

func (b *MemoryBackend) Name() string {
	return fmt.Sprintf("memory-%s", b.name)
}

func (b *MemoryBackend) LocationURI() string {
	return fmt.Sprintf("memory://%s", b.name)
}
