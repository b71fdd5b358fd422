package attrs

import (
	"context"
	"sync"
)

// MemoryStore keeps attributes in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	blocks map[string]map[string]string
	writes int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blocks: make(map[string]map[string]string)}
}

func (s *MemoryStore) Read(ctx context.Context, id string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.blocks[id]), nil
}

func (s *MemoryStore) Write(ctx context.Context, id string, attrs map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	cur, ok := s.blocks[id]
	if !ok {
		cur = make(map[string]string, len(attrs))
		s.blocks[id] = cur
	}
	merge(cur, attrs)
	if len(cur) == 0 {
		delete(s.blocks, id)
	}
	return nil
}

// Writes returns the number of Write calls served. Tests use it to check
// that state is flushed in a single batch.
func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
