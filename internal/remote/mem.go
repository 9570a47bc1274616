package remote

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"
)

// MemStore is an in-process store.
type MemStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	puts    int
}

var _ Store = &MemStore{}

func openMem(ctx context.Context, u *url.URL, opts Options) (Store, error) {
	return NewMemStore(), nil
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[string][]byte)}
}

func (m *MemStore) Location() string { return "mem://" }

func (m *MemStore) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.objects))
	for k := range m.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemStore) Get(ctx context.Context, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemStore) Put(ctx context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = append([]byte(nil), data...)
	m.puts++
	return nil
}

// Puts returns how many Put calls the store has served.
func (m *MemStore) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}
