package kcache

import (
	"sort"
	"sync"
)

// MemStore is an in-process Store. Entries are copied on the way in and out.
type MemStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[string]*Entry)}
}

func (m *MemStore) Save(entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Key] = cloneEntry(entry)
	return nil
}

func (m *MemStore) Load(key string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, &NotFoundError{Key: key}
	}
	return cloneEntry(e), nil
}

func (m *MemStore) List() ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make([]Info, 0, len(m.entries))
	for _, e := range m.entries {
		infos = append(infos, e.ToInfo())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Created.Before(infos[j].Created) })
	return infos, nil
}

func (m *MemStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; !ok {
		return &NotFoundError{Key: key}
	}
	delete(m.entries, key)
	return nil
}

func cloneEntry(e *Entry) *Entry {
	out := *e
	out.Devices = append([]string(nil), e.Devices...)
	out.Binaries = make([][]byte, len(e.Binaries))
	for i, b := range e.Binaries {
		out.Binaries[i] = append([]byte(nil), b...)
	}
	return &out
}
