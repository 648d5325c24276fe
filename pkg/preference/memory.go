package preference

import (
	"sync"
	"time"
)

// MemoryStore is a volatile Store for tests and ephemeral deployments
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
	}
}

// Get implements Store
func (s *MemoryStore) Get(identity string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[identity]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Set implements Store
func (s *MemoryStore) Set(identity, key, value string) (Record, error) {
	if key != KeyColor {
		return Record{}, ErrUnsupportedKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.records[identity]
	rec.Color = value
	rec.LastUpdated = time.Now().UTC()
	s.records[identity] = rec
	return rec, nil
}

// Close implements Store
func (s *MemoryStore) Close() error {
	return nil
}
