package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/lbp/pool-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu      sync.RWMutex
	pools   map[string]*model.PoolSnapshot
	journal []model.Event
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pools: make(map[string]*model.PoolSnapshot),
	}
}

func (s *MemoryStore) SavePool(_ context.Context, snap *model.PoolSnapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("store: snapshot without id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	cp := *snap
	s.pools[snap.ID] = &cp
	return nil
}

func (s *MemoryStore) GetPool(_ context.Context, id string) (*model.PoolSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.pools[id]
	if !ok {
		return nil, fmt.Errorf("pool %s: %w", id, ErrNotFound)
	}
	cp := *snap
	return &cp, nil
}

func (s *MemoryStore) ListPools(_ context.Context) ([]model.PoolSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pools := make([]model.PoolSnapshot, 0, len(s.pools))
	for _, snap := range s.pools {
		pools = append(pools, *snap)
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].ID < pools[j].ID })
	return pools, nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.journal = append(s.journal, *e)
	return nil
}

func (s *MemoryStore) EventsByPool(_ context.Context, poolID string) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Event
	for _, e := range s.journal {
		if e.PoolID == poolID {
			result = append(result, e)
		}
	}
	return result, nil
}

// EventsByUser matches addresses case-insensitively since callers may pass
// either the checksummed or the lower-case hex form.
func (s *MemoryStore) EventsByUser(_ context.Context, user string) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Event
	for _, e := range s.journal {
		if e.User != "" && strings.EqualFold(e.User, user) {
			result = append(result, e)
		}
	}
	return result, nil
}
