package testsupport

import (
	"context"
	"sync"

	"newsdesk/internal/domain/persistence"
)

// MemoryKV is an in-memory persistence.KV with the same version guard as Redis
type MemoryKV struct {
	mu       sync.Mutex
	values   map[string][]byte
	versions map[string]int64
	stores   int
	FailWith error // returned by every call when set
}

// NewMemoryKV creates an empty store
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: make(map[string][]byte), versions: make(map[string]int64)}
}

func (m *MemoryKV) Load(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, false, m.FailWith
	}
	v, ok := m.values[key]
	return append([]byte(nil), v...), ok, nil
}

func (m *MemoryKV) Store(_ context.Context, key string, value []byte, opts persistence.StoreOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	if opts.Version > 0 && m.versions[key] >= opts.Version {
		return nil
	}
	m.values[key] = append([]byte(nil), value...)
	m.versions[key] = opts.Version
	m.stores++
	return nil
}

// Stores counts accepted writes
func (m *MemoryKV) Stores() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stores
}
