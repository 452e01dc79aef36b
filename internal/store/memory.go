package store

import (
	"context"
	"sync"

	"github.com/aplatt/steamrail/backend/internal/model/chat"
)

// MemoryStore is an in-memory Store used by tests. Durability semantics match
// the SQL backends: counters increment atomically, the chat log is append-only.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]int64
	log      []chat.Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]int64)}
}

func (s *MemoryStore) Close() {}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

func (s *MemoryStore) EnsureCounter(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.counters[key]; !ok {
		s.counters[key] = 0
	}
	return nil
}

func (s *MemoryStore) Counter(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[key], nil
}

func (s *MemoryStore) IncrementCounter(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.counters[key]; !ok {
		return 0, ErrCounterNotFound
	}
	s.counters[key]++
	return s.counters[key], nil
}

func (s *MemoryStore) AppendChat(_ context.Context, rec chat.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, rec)
	return nil
}

func (s *MemoryStore) RecentChat(_ context.Context, limit int) ([]chat.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []chat.Record
	for i := len(s.log) - 1; i >= 0 && len(records) < limit; i-- {
		if s.log[i].Deleted {
			continue
		}
		records = append(records, s.log[i])
	}
	reverse(records)
	return records, nil
}

// SoftDelete flags a record as deleted. Exposed for tests; there is no
// moderation endpoint yet.
func (s *MemoryStore) SoftDelete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.log {
		if s.log[i].ID == id {
			s.log[i].Deleted = true
		}
	}
}
