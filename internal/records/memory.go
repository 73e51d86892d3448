package records

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore is a mutex-guarded slice with a text index.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	byText  map[string]int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byText: make(map[string]int)}
}

func (m *MemoryStore) Append(_ context.Context, rec Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byText[rec.Text]; ok {
		return false, nil
	}
	m.byText[rec.Text] = len(m.records)
	m.records = append(m.records, rec)
	return true, nil
}

func (m *MemoryStore) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := slices.IndexFunc(m.records, func(r Record) bool { return r.ID == id })
	if idx < 0 {
		return ErrNotFound
	}
	m.records = slices.Delete(m.records, idx, idx+1)
	m.reindex()
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	clear(m.byText)
	return nil
}

func (m *MemoryStore) All(context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.records), nil
}

func (m *MemoryStore) Lookup(_ context.Context, text string) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.byText[text]
	if !ok {
		return Record{}, false, nil
	}
	return m.records[idx], true, nil
}

func (m *MemoryStore) Len(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) reindex() {
	clear(m.byText)
	for i, rec := range m.records {
		m.byText[rec.Text] = i
	}
}
