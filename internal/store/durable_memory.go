package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// memoryDurableStore is the degraded fallback used when the sqlite backend
// is unavailable. State survives the process only; the allow-list is still
// enforced so callers cannot widen their persistence surface by accident.
type memoryDurableStore struct {
	mu         sync.RWMutex
	partitions map[string][]byte
	allowed    map[string]struct{}
}

// NewMemoryDurableStore returns an in-memory [DurableStore] limited to the
// same partitions as the sqlite store.
func NewMemoryDurableStore() DurableStore {
	return &memoryDurableStore{
		partitions: make(map[string][]byte),
		allowed: map[string]struct{}{
			PartitionSettings: {},
			PartitionOffline:  {},
		},
	}
}

func (s *memoryDurableStore) Persist(ctx context.Context, partition string, state any) error {
	if _, ok := s.allowed[partition]; !ok {
		return fmt.Errorf("partition %q: %w", partition, ErrPartitionNotAllowed)
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode partition %s: %w", partition, err)
	}

	s.mu.Lock()
	s.partitions[partition] = payload
	s.mu.Unlock()
	return nil
}

func (s *memoryDurableStore) Rehydrate(ctx context.Context, partition string, out any) error {
	if _, ok := s.allowed[partition]; !ok {
		return fmt.Errorf("partition %q: %w", partition, ErrPartitionNotAllowed)
	}

	s.mu.RLock()
	payload, ok := s.partitions[partition]
	s.mu.RUnlock()
	if !ok {
		return ErrPartitionNotFound
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode partition %s: %w", partition, err)
	}
	return nil
}

func (s *memoryDurableStore) Close() error { return nil }
