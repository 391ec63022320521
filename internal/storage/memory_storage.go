// internal/storage/memory_storage.go
package storage

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

// MemoryStorage keeps collections as encoded JSON in memory. Encoding keeps
// the same copy semantics as the durable backends.
type MemoryStorage struct {
	mu          sync.RWMutex
	collections map[string][]byte
}

// NewMemoryStorage 创建内存存储
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{collections: make(map[string][]byte)}
}

func (m *MemoryStorage) LoadCollection(name string, v any) (bool, error) {
	m.mu.RLock()
	data, ok := m.collections[name]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, v)
}

func (m *MemoryStorage) SaveCollection(name string, v any) error {
	if err := validCollectionName(name); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.collections[name] = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) DeleteCollection(name string) error {
	m.mu.Lock()
	delete(m.collections, name)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) ListCollections(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for name := range m.collections {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStorage) Close() error { return nil }
