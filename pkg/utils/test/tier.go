package testutils

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/papercomputeco/strata/pkg/memory"
)

// ErrMockFault is returned by MockTier operations configured to fail.
var ErrMockFault = errors.New("mock tier fault")

// MockTier is an in-process memory.Tier. Every stored item is a promotion
// candidate.
type MockTier struct {
	name memory.TierName

	mu    sync.Mutex
	items map[string]*memory.Item
	seq   int

	// FailCleanup and FailDecay make the maintenance calls return ErrMockFault.
	FailCleanup bool
	FailDecay   bool

	// Removed is reported by every successful Cleanup.
	Removed int
}

func NewMockTier(name memory.TierName) *MockTier {
	return &MockTier{
		name:  name,
		items: make(map[string]*memory.Item),
	}
}

func (t *MockTier) Name() memory.TierName {
	return t.name
}

func (t *MockTier) Store(_ context.Context, item *memory.Item) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := item.Clone()
	if c.ID == "" {
		t.seq++
		c.ID = fmt.Sprintf("%s-%d", t.name, t.seq)
	}
	t.items[c.ID] = c
	return c.ID, nil
}

func (t *MockTier) Retrieve(_ context.Context, id string) (*memory.Item, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	item, ok := t.items[id]
	if !ok {
		return nil, nil
	}
	return item.Clone(), nil
}

func (t *MockTier) Delete(_ context.Context, id string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.items[id]
	delete(t.items, id)
	return ok, nil
}

func (t *MockTier) Query(_ context.Context, _ memory.Filter) ([]*memory.Item, error) {
	return t.All(), nil
}

func (t *MockTier) GetPromotionCandidates(_ context.Context, limit int) ([]*memory.Item, error) {
	items := t.All()
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (t *MockTier) Cleanup(_ context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.FailCleanup {
		return 0, ErrMockFault
	}
	return t.Removed, nil
}

func (t *MockTier) Decay(_ context.Context) (memory.DecaySummary, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.FailDecay {
		return memory.DecaySummary{}, ErrMockFault
	}
	return memory.DecaySummary{Processed: len(t.items)}, nil
}

// All returns clones of every stored item ordered by id.
func (t *MockTier) All() []*memory.Item {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*memory.Item, 0, len(t.items))
	for _, item := range t.items {
		out = append(out, item.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of stored items.
func (t *MockTier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}
