// Package tier implements memory.Tier over a storage.Backend.
//
// A tier owns its retention policy: the short-term tier expires items by TTL
// and promotes frequently used or important ones; the medium and long-term
// tiers decay item strength with a strength.Model and forget items that fall
// below their threshold.
package tier

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/papercomputeco/strata/pkg/audit"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/storage"
	"github.com/papercomputeco/strata/pkg/strength"
	"github.com/papercomputeco/strata/pkg/vector"
)

// Config configures a Tier.
type Config struct {
	Name    memory.TierName
	Backend storage.Backend
	Policy  Policy

	// Model drives strength bookkeeping and decay. Tiers without a model
	// (typically stm) do not decay.
	Model *strength.Model

	// Index mirrors item embeddings. Optional.
	Index vector.Driver

	// Audit records item creations. Optional.
	Audit *audit.Recorder

	Logger *slog.Logger

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Tier is a memory.Tier backed by a storage.Backend.
type Tier struct {
	name    memory.TierName
	backend storage.Backend
	model   *strength.Model
	index   vector.Driver
	audit   *audit.Recorder
	logger  *slog.Logger
	now     func() time.Time

	// mu serializes read-modify-write operations (decay, cleanup,
	// reinforcement) and deletes so they never lose each other's updates.
	mu sync.Mutex

	policyMu sync.RWMutex
	policy   Policy
}

var _ memory.Tier = (*Tier)(nil)

// New returns a Tier.
func New(c Config) (*Tier, error) {
	if !c.Name.Valid() {
		return nil, fmt.Errorf("unknown tier %q", c.Name)
	}
	if c.Backend == nil {
		return nil, fmt.Errorf("tier %s: backend is required", c.Name)
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return &Tier{
		name:    c.Name,
		backend: c.Backend,
		model:   c.Model,
		index:   c.Index,
		audit:   c.Audit,
		policy:  c.Policy,
		logger:  logger.OrNop(c.Logger).With("component", "tier", "tier", string(c.Name)),
		now:     c.Clock,
	}, nil
}

// Name returns the tier's name.
func (t *Tier) Name() memory.TierName {
	return t.name
}

// Policy returns the current policy.
func (t *Tier) Policy() Policy {
	t.policyMu.RLock()
	defer t.policyMu.RUnlock()
	return t.policy
}

// SetFailMaintenance toggles fault injection for Cleanup and Decay.
func (t *Tier) SetFailMaintenance(fail bool) {
	t.policyMu.Lock()
	defer t.policyMu.Unlock()
	t.policy.FailMaintenance = fail
}

// Model returns the tier's strength model, or nil.
func (t *Tier) Model() *strength.Model {
	return t.model
}

// Store persists a copy of item. It declines (empty id, nil error) when the
// tier is at capacity.
func (t *Tier) Store(ctx context.Context, item *memory.Item) (string, error) {
	if item == nil {
		return "", memory.ErrNilItem
	}
	policy := t.Policy()
	now := t.now().UTC()

	if policy.Capacity > 0 {
		stats, err := t.backend.Stats(ctx)
		if err != nil {
			return "", fmt.Errorf("reading %s stats: %w", t.name, err)
		}
		if stats.Count >= policy.Capacity {
			t.logger.Debug("tier full, declining item", "capacity", policy.Capacity)
			return "", nil
		}
	}

	stored := item.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if policy.TTL > 0 && stored.Metadata.ExpiresAt.IsZero() {
		stored.Metadata.ExpiresAt = now.Add(policy.TTL)
	}
	if t.model != nil && stored.Metadata.Strength == 0 && stored.Metadata.ReinforcementLevel == nil {
		t.model.NewState(stored.Importance, now).ApplyTo(&stored.Metadata)
	}

	id, err := t.backend.Put(ctx, stored)
	if err != nil {
		return "", fmt.Errorf("storing in %s: %w", t.name, err)
	}
	stored.ID = id

	t.indexItem(ctx, stored)

	if t.audit != nil && stored.Metadata.PromotedFrom == "" {
		if _, err := t.audit.RecordCreation(ctx, stored, t.name, stored.Scope); err != nil {
			t.logger.Warn("audit creation failed", "id", id, "error", err)
		}
	}
	return id, nil
}

// Retrieve returns the item, or nil when absent.
func (t *Tier) Retrieve(ctx context.Context, id string) (*memory.Item, error) {
	item, err := t.backend.Get(ctx, id)
	if storage.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("retrieving %s from %s: %w", id, t.name, err)
	}
	return item, nil
}

// Delete removes the item and its index entry. It waits for in-flight
// access signals on the tier so an update never rewrites a deleted item.
func (t *Tier) Delete(ctx context.Context, id string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ok, err := t.backend.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("deleting %s from %s: %w", id, t.name, err)
	}
	if ok {
		t.unindex(ctx, id)
	}
	return ok, nil
}

// Query returns items matching filter, oldest first.
func (t *Tier) Query(ctx context.Context, filter memory.Filter) ([]*memory.Item, error) {
	items, err := t.backend.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", t.name, err)
	}
	return items, nil
}

// Stats reports the backend size.
func (t *Tier) Stats(ctx context.Context) (storage.Stats, error) {
	return t.backend.Stats(ctx)
}

// GetPromotionCandidates returns up to limit items that satisfy the tier's
// promotion rules, most important first. Expired items are never
// candidates.
func (t *Tier) GetPromotionCandidates(ctx context.Context, limit int) ([]*memory.Item, error) {
	policy := t.Policy()
	if !policy.promotes() {
		return nil, nil
	}

	items, err := t.backend.List(ctx, memory.Filter{})
	if err != nil {
		return nil, fmt.Errorf("listing %s candidates: %w", t.name, err)
	}

	now := t.now().UTC()
	var candidates []*memory.Item
	for _, item := range items {
		if expired(item, now) {
			continue
		}
		if policy.PromoteMinAge > 0 && now.Sub(arrivedAt(item)) < policy.PromoteMinAge {
			continue
		}
		if t.qualifies(item, policy) {
			candidates = append(candidates, item)
		}
	}

	slices.SortStableFunc(candidates, func(a, b *memory.Item) int {
		return cmp.Compare(b.Importance, a.Importance)
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (t *Tier) qualifies(item *memory.Item, policy Policy) bool {
	if policy.PromoteAccessCount > 0 && item.AccessCount >= policy.PromoteAccessCount {
		return true
	}
	if policy.PromoteImportance > 0 && item.Importance >= policy.PromoteImportance {
		return true
	}
	if policy.PromoteStrength > 0 && t.model != nil {
		s := t.model.StateFromMetadata(item.Metadata, item.Importance)
		return s.Strength >= policy.PromoteStrength
	}
	return false
}

// Cleanup removes expired items, items the strength model has forgotten, and
// the weakest items above capacity.
func (t *Tier) Cleanup(ctx context.Context) (int, error) {
	policy := t.Policy()
	if policy.FailMaintenance {
		return 0, fmt.Errorf("cleanup %s: %w", t.name, ErrMaintenanceFault)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	items, err := t.backend.List(ctx, memory.Filter{})
	if err != nil {
		return 0, fmt.Errorf("listing %s for cleanup: %w", t.name, err)
	}

	now := t.now().UTC()
	var (
		remove []string
		keep   []*memory.Item
	)
	for _, item := range items {
		if expired(item, now) || t.forgotten(item) {
			remove = append(remove, item.ID)
			continue
		}
		keep = append(keep, item)
	}

	if policy.Capacity > 0 && len(keep) > policy.Capacity {
		slices.SortStableFunc(keep, func(a, b *memory.Item) int {
			if c := cmp.Compare(t.strengthOf(a), t.strengthOf(b)); c != 0 {
				return c
			}
			return a.CreatedAt.Compare(b.CreatedAt)
		})
		for _, item := range keep[:len(keep)-policy.Capacity] {
			remove = append(remove, item.ID)
		}
	}

	if len(remove) == 0 {
		return 0, nil
	}
	n, err := t.backend.DeleteBatch(ctx, remove)
	if err != nil {
		return 0, fmt.Errorf("cleanup %s: %w", t.name, err)
	}
	t.unindex(ctx, remove...)

	t.logger.Debug("cleanup complete", "removed", n)
	return n, nil
}

// Decay applies passive decay to every item, persisting changed state and
// deleting items that fall to their forgetting threshold. Staleness is the
// time since an item was last touched.
func (t *Tier) Decay(ctx context.Context) (memory.DecaySummary, error) {
	if t.Policy().FailMaintenance {
		return memory.DecaySummary{}, fmt.Errorf("decay %s: %w", t.name, ErrMaintenanceFault)
	}
	if t.model == nil {
		return memory.DecaySummary{}, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	items, err := t.backend.List(ctx, memory.Filter{})
	if err != nil {
		return memory.DecaySummary{}, fmt.Errorf("listing %s for decay: %w", t.name, err)
	}

	now := t.now().UTC()
	var (
		summary memory.DecaySummary
		updated []*memory.Item
		forget  []string
	)
	for _, item := range items {
		summary.Processed++

		before := t.model.StateFromMetadata(item.Metadata, item.Importance)
		staleness := now.Sub(item.LastTouched())
		after := t.model.ApplyPassiveDecay(before, now, &staleness)

		if t.model.ShouldForget(after) {
			forget = append(forget, item.ID)
			continue
		}
		if after != before {
			after.ApplyTo(&item.Metadata)
			updated = append(updated, item)
		}
	}

	if len(updated) > 0 {
		if _, err := t.backend.PutBatch(ctx, updated); err != nil {
			return summary, fmt.Errorf("persisting %s decay: %w", t.name, err)
		}
		summary.Updated = len(updated)
	}
	if len(forget) > 0 {
		n, err := t.backend.DeleteBatch(ctx, forget)
		if err != nil {
			return summary, fmt.Errorf("forgetting %s items: %w", t.name, err)
		}
		t.unindex(ctx, forget...)
		summary.Forgotten = n
	}

	t.logger.Debug("decay complete",
		"processed", summary.Processed,
		"updated", summary.Updated,
		"forgotten", summary.Forgotten,
	)
	return summary, nil
}

// Touch records an access: bumps AccessCount and LastAccessedAt.
func (t *Tier) Touch(ctx context.Context, id string) (*memory.Item, error) {
	return t.update(ctx, id, func(item *memory.Item, now time.Time) {
		item.AccessCount++
		item.LastAccessedAt = now
	})
}

// Reinforce applies a positive signal of the given amount to the item's
// strength. It fails on tiers without a strength model.
func (t *Tier) Reinforce(ctx context.Context, id string, amount float64) (*memory.Item, error) {
	if t.model == nil {
		return nil, fmt.Errorf("tier %s: %w", t.name, ErrNoStrength)
	}
	return t.update(ctx, id, func(item *memory.Item, now time.Time) {
		s := t.model.StateFromMetadata(item.Metadata, item.Importance)
		t.model.ApplyReinforcement(s, amount, now).ApplyTo(&item.Metadata)
	})
}

// Weaken applies an explicit negative signal. Items that fall to their
// forgetting threshold are deleted and nil is returned.
func (t *Tier) Weaken(ctx context.Context, id string, amount float64) (*memory.Item, error) {
	item, _, err := t.weaken(ctx, id, amount)
	return item, err
}

// weaken also reports whether the item existed, so callers can tell a
// forgotten item from a missing one.
func (t *Tier) weaken(ctx context.Context, id string, amount float64) (*memory.Item, bool, error) {
	if t.model == nil {
		return nil, false, fmt.Errorf("tier %s: %w", t.name, ErrNoStrength)
	}

	var forget bool
	item, err := t.update(ctx, id, func(item *memory.Item, now time.Time) {
		s := t.model.ApplyManualDecay(t.model.StateFromMetadata(item.Metadata, item.Importance), amount, now)
		s.ApplyTo(&item.Metadata)
		forget = t.model.ShouldForget(s)
	})
	if err != nil || item == nil {
		return nil, false, err
	}
	if !forget {
		return item, true, nil
	}
	if _, err := t.Delete(ctx, id); err != nil {
		return nil, true, err
	}
	return nil, true, nil
}

func (t *Tier) update(ctx context.Context, id string, fn func(*memory.Item, time.Time)) (*memory.Item, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	item, err := t.Retrieve(ctx, id)
	if err != nil || item == nil {
		return nil, err
	}
	fn(item, t.now().UTC())
	if _, err := t.backend.Put(ctx, item); err != nil {
		return nil, fmt.Errorf("updating %s in %s: %w", id, t.name, err)
	}
	return item, nil
}

func (t *Tier) forgotten(item *memory.Item) bool {
	if t.model == nil {
		return false
	}
	return t.model.ShouldForget(t.model.StateFromMetadata(item.Metadata, item.Importance))
}

func (t *Tier) strengthOf(item *memory.Item) float64 {
	if t.model == nil {
		return item.Importance
	}
	return t.model.StateFromMetadata(item.Metadata, item.Importance).Strength
}

func (t *Tier) indexItem(ctx context.Context, item *memory.Item) {
	if t.index == nil || len(item.Embedding) == 0 {
		return
	}
	err := t.index.Add(ctx, []vector.Document{{ID: item.ID, Tier: t.name, Embedding: item.Embedding}})
	if err != nil {
		t.logger.Warn("indexing embedding failed", "id", item.ID, "error", err)
	}
}

func (t *Tier) unindex(ctx context.Context, ids ...string) {
	if t.index == nil || len(ids) == 0 {
		return
	}
	if err := t.index.Delete(ctx, ids); err != nil {
		t.logger.Warn("removing embeddings failed", "count", len(ids), "error", err)
	}
}

func expired(item *memory.Item, now time.Time) bool {
	return !item.Metadata.ExpiresAt.IsZero() && !now.Before(item.Metadata.ExpiresAt)
}

// arrivedAt is when the item entered its current tier.
func arrivedAt(item *memory.Item) time.Time {
	if !item.Metadata.PromotedAt.IsZero() {
		return item.Metadata.PromotedAt
	}
	return item.CreatedAt
}
