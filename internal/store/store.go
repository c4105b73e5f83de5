// Package store defines the persistence interface for the pool engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing and development mode).
//
// The engine state itself lives in process; the store keeps the journal of
// successful pool calls and the latest snapshot of every pool.
package store

import (
	"context"
	"errors"

	"github.com/lbp/pool-engine/internal/model"
)

// ErrNotFound is returned when a pool snapshot does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Pool snapshots ---

	// SavePool upserts the latest snapshot of a pool.
	SavePool(ctx context.Context, snap *model.PoolSnapshot) error

	// GetPool retrieves the snapshot of a pool by its ID.
	GetPool(ctx context.Context, id string) (*model.PoolSnapshot, error)

	// ListPools returns every stored snapshot.
	ListPools(ctx context.Context) ([]model.PoolSnapshot, error)

	// --- Immutable journal ---

	// AppendEvent records a successful pool call.
	AppendEvent(ctx context.Context, e *model.Event) error

	// EventsByPool returns the journal of a pool, oldest first.
	EventsByPool(ctx context.Context, poolID string) ([]model.Event, error)

	// EventsByUser returns every event that names user, oldest first.
	EventsByUser(ctx context.Context, user string) ([]model.Event, error)
}
