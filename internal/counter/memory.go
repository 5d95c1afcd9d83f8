package counter

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store for tests and local runs. Counts do not
// survive a restart.
type MemoryStore struct {
	mu   sync.Mutex
	hits map[string]int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{hits: make(map[string]int64)}
}

func (s *MemoryStore) Increment(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	s.hits[key]++
	n := s.hits[key]
	s.mu.Unlock()
	return n, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[key], nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]Record, error) {
	s.mu.Lock()
	records := make([]Record, 0, len(s.hits))
	for path, hits := range s.hits {
		records = append(records, Record{Path: path, Hits: hits})
	}
	s.mu.Unlock()
	return sortRecords(records, limit), nil
}

// Set overwrites a count. Tests use it to seed a starting value.
func (s *MemoryStore) Set(key string, hits int64) {
	s.mu.Lock()
	s.hits[key] = hits
	s.mu.Unlock()
}

func (s *MemoryStore) Close() error { return nil }
