// Package storage defines the Backend interface that persists memory items for
// a single tier, and the errors backends report.
//
// Backends are plain CRUD stores. Tier semantics (promotion, decay, cleanup)
// live in pkg/tier, which wraps a Backend.
package storage

import (
	"context"

	"github.com/papercomputeco/strata/pkg/memory"
)

// Backend persists memory items for one tier.
type Backend interface {
	// Put upserts an item and returns its id. Items without an id are
	// assigned a new one.
	Put(ctx context.Context, item *memory.Item) (string, error)

	// Get retrieves an item by id. Returns NotFoundError when absent.
	Get(ctx context.Context, id string) (*memory.Item, error)

	// Delete removes an item and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// List returns items matching filter, oldest first.
	List(ctx context.Context, filter memory.Filter) ([]*memory.Item, error)

	// PutBatch upserts several items and returns their ids in order.
	PutBatch(ctx context.Context, items []*memory.Item) ([]string, error)

	// DeleteBatch removes several items and returns how many existed.
	DeleteBatch(ctx context.Context, ids []string) (int, error)

	// Stats reports the backend's size.
	Stats(ctx context.Context) (Stats, error)

	// Close releases backend resources.
	Close() error
}

// Stats is a size snapshot of a backend.
type Stats struct {
	Count int   `json:"count"`
	Bytes int64 `json:"bytes"`
}
