package kvstore

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"
)

// MemBackend is the in-process storage tier.
//
// It doubles as the fallback mirror for failed operations against a durable
// tier. Contents are lost on process exit.
type MemBackend struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemBackend creates an empty in-memory backend.
func NewMemBackend() *MemBackend {
	return &MemBackend{entries: make(map[string]*Entry)}
}

// Get returns a copy of the stored entry, or (nil, nil) when absent.
func (m *MemBackend) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	c := *e
	c.Data = bytes.Clone(e.Data)
	return &c, nil
}

// Put stores a copy of value with its size and a write timestamp.
func (m *MemBackend) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = &Entry{
		Key:       key,
		Data:      bytes.Clone(value),
		Timestamp: time.Now(),
		Size:      int64(len(value)),
	}
	return nil
}

// Delete removes an entry. Deleting an absent key is not an error.
func (m *MemBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// List returns metadata for all entries, sorted by key.
func (m *MemBackend) List(_ context.Context) ([]EntryInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make([]EntryInfo, 0, len(m.entries))
	for _, e := range m.entries {
		infos = append(infos, EntryInfo{Key: e.Key, Size: e.Size, Timestamp: e.Timestamp})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// Name returns the tier name.
func (m *MemBackend) Name() string {
	return "memory"
}

// Close implements Backend. Nothing to release.
func (m *MemBackend) Close() error {
	return nil
}
