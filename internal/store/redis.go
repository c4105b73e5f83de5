package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lbp/pool-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and refresh or invalidate the cache;
// reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, refresh or invalidate cache) ---

func (s *CachedStore) SavePool(ctx context.Context, snap *model.PoolSnapshot) error {
	if err := s.primary.SavePool(ctx, snap); err != nil {
		return err
	}
	s.cachePool(ctx, snap)
	return nil
}

func (s *CachedStore) AppendEvent(ctx context.Context, e *model.Event) error {
	if err := s.primary.AppendEvent(ctx, e); err != nil {
		return err
	}
	// Invalidate the journal caches this event belongs to.
	keys := []string{poolEventsKey(e.PoolID)}
	if e.User != "" {
		keys = append(keys, userEventsKey(e.User))
	}
	s.rdb.Del(ctx, keys...)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetPool(ctx context.Context, id string) (*model.PoolSnapshot, error) {
	data, err := s.rdb.Get(ctx, poolKey(id)).Bytes()
	if err == nil {
		var snap model.PoolSnapshot
		if json.Unmarshal(data, &snap) == nil {
			return &snap, nil
		}
	}

	// Cache miss: read from primary.
	snap, err := s.primary.GetPool(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cachePool(ctx, snap)
	return snap, nil
}

func (s *CachedStore) EventsByPool(ctx context.Context, poolID string) ([]model.Event, error) {
	return s.cachedEvents(ctx, poolEventsKey(poolID), func() ([]model.Event, error) {
		return s.primary.EventsByPool(ctx, poolID)
	})
}

func (s *CachedStore) EventsByUser(ctx context.Context, user string) ([]model.Event, error) {
	return s.cachedEvents(ctx, userEventsKey(user), func() ([]model.Event, error) {
		return s.primary.EventsByUser(ctx, user)
	})
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListPools(ctx context.Context) ([]model.PoolSnapshot, error) {
	return s.primary.ListPools(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cachedEvents(ctx context.Context, key string, load func() ([]model.Event, error)) ([]model.Event, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var events []model.Event
		if json.Unmarshal(data, &events) == nil {
			return events, nil
		}
	}

	events, err := load()
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(events); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return events, nil
}

func (s *CachedStore) cachePool(ctx context.Context, snap *model.PoolSnapshot) {
	if data, err := json.Marshal(snap); err == nil {
		s.rdb.Set(ctx, poolKey(snap.ID), data, s.ttl)
	}
}

func poolKey(id string) string         { return fmt.Sprintf("pool:%s", id) }
func poolEventsKey(id string) string   { return fmt.Sprintf("pool-events:%s", id) }
func userEventsKey(addr string) string { return fmt.Sprintf("user-events:%s", strings.ToLower(addr)) }
