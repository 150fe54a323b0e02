// Package inmemory provides a map-backed storage.Backend, used for the
// short-term tier and in tests.
package inmemory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/storage"
)

// Driver implements storage.Backend using an in-memory map.
type Driver struct {
	// mu guards items
	mu sync.RWMutex

	// items maps item id -> item. Items are cloned on the way in and out so
	// callers never alias stored state.
	items map[string]*memory.Item

	closed bool
}

// NewDriver creates a new in-memory backend.
func NewDriver() *Driver {
	return &Driver{
		items: make(map[string]*memory.Item),
	}
}

// Put upserts an item, assigning a uuid when the item has no id.
func (d *Driver) Put(_ context.Context, item *memory.Item) (string, error) {
	if item == nil {
		return "", memory.ErrNilItem
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return "", storage.ErrClosed
	}

	stored := item.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	d.items[stored.ID] = stored
	return stored.ID, nil
}

// Get retrieves an item by id.
func (d *Driver) Get(_ context.Context, id string) (*memory.Item, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	item, ok := d.items[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}
	return item.Clone(), nil
}

// Delete removes an item and reports whether it existed.
func (d *Driver) Delete(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.items[id]; !ok {
		return false, nil
	}
	delete(d.items, id)
	return true, nil
}

// List returns matching items ordered by creation time.
func (d *Driver) List(_ context.Context, filter memory.Filter) ([]*memory.Item, error) {
	d.mu.RLock()
	result := make([]*memory.Item, 0, len(d.items))
	for _, item := range d.items {
		if filter.Match(item) {
			result = append(result, item.Clone())
		}
	}
	d.mu.RUnlock()

	slices.SortFunc(result, func(a, b *memory.Item) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// PutBatch upserts items in order.
func (d *Driver) PutBatch(ctx context.Context, items []*memory.Item) ([]string, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		id, err := d.Put(ctx, item)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// DeleteBatch removes ids and returns how many existed.
func (d *Driver) DeleteBatch(ctx context.Context, ids []string) (int, error) {
	removed := 0
	for _, id := range ids {
		ok, err := d.Delete(ctx, id)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// Stats reports item count and content bytes.
func (d *Driver) Stats(_ context.Context) (storage.Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := storage.Stats{Count: len(d.items)}
	for _, item := range d.items {
		stats.Bytes += int64(len(item.Content))
	}
	return stats, nil
}

// Close marks the driver closed; subsequent Puts fail.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
