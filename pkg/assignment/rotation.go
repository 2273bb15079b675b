package assignment

import (
	"context"
	"sync"
)

// MemoryRotationStore keeps round-robin cursors in process memory. Suitable
// for tests and single-replica deployments.
type MemoryRotationStore struct {
	mu      sync.Mutex
	cursors map[string]int
}

func NewMemoryRotationStore() *MemoryRotationStore {
	return &MemoryRotationStore{cursors: make(map[string]int)}
}

func (s *MemoryRotationStore) NextIndex(_ context.Context, poolKey string, poolSize int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.cursors[poolKey] % poolSize
	s.cursors[poolKey]++

	return index, nil
}
