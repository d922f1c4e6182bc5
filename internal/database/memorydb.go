package database

import (
	"context"
	"sync"

	"github.com/y0ug/hashguard/internal/database/models"
)

// MemoryDB keeps entries in process memory. Nothing survives a restart.
type MemoryDB struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{entries: make(map[string][]byte)}
}

func (m *MemoryDB) Initialize(context.Context) error { return nil }

func (m *MemoryDB) Close(context.Context) error { return nil }

func (m *MemoryDB) GetEntry(_ context.Context, key string) (models.ReputationEntry, error) {
	m.mu.RLock()
	data, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return models.ReputationEntry{}, ErrEntryNotFound
	}
	return decodeEntry(data)
}

func (m *MemoryDB) PutEntry(_ context.Context, entry models.ReputationEntry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[entry.URLKey] = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryDB) DeleteEntry(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryDB) CountEntries(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}
