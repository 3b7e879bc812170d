package persist

import (
	"context"
	"sync"

	"github.com/vango-dev/campusdesk/internal/errors"
)

// Storage defines the interface for snapshot persistence backends.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Load returns the stored bytes for key.
	// Returns (nil, nil) if nothing is stored under key.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save replaces the bytes stored under key.
	Save(ctx context.Context, key string, data []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the backend.
	Close() error
}

// ErrStorageClosed is returned when a closed storage is used.
var ErrStorageClosed = errors.New("E023")

// MemoryStorage keeps snapshots in process memory.
type MemoryStorage struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string][]byte)}
}

// Load returns a copy of the stored bytes.
func (m *MemoryStorage) Load(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	d, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(d))
	copy(out, d)
	return out, nil
}

// Save stores a copy of data.
func (m *MemoryStorage) Save(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	m.data[key] = dataCopy
	return nil
}

// Delete removes key.
func (m *MemoryStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	delete(m.data, key)
	return nil
}

// Close marks the storage closed and drops its contents.
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.data = nil
	return nil
}

// Count returns the number of stored keys.
func (m *MemoryStorage) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
