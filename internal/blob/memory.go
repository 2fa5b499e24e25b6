package blob

import (
	"context"
	"sync"
)

// MemoryStore keeps payloads in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, entityID, hash, _ string, data []byte) (string, bool, error) {
	if err := checkKey(entityID, hash); err != nil {
		return "", false, err
	}
	key := Key("", entityID, hash)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; ok {
		return "mem://" + key, false, nil
	}
	m.objects[key] = append([]byte(nil), data...)
	return "mem://" + key, true, nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, entityID, hash string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[Key("", entityID, hash)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

// Exists implements Store.
func (m *MemoryStore) Exists(_ context.Context, entityID, hash string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[Key("", entityID, hash)]
	return ok, nil
}

// Len returns the number of stored payloads.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
