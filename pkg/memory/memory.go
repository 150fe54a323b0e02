// Package memory defines the domain types shared by every layer of the strata
// tiered memory store.
//
// Items flow through three tiers: a fast, volatile short-term tier (stm), a
// medium-priority tier (mtm), and a durable semantic tier (ltm). Each tier is
// reached through the [Tier] interface; the maintenance engine moves items
// between tiers and decays them in place.
//
// Tiers are configured per name:
//
//	[tiers.mtm]
//	capacity = 5000
//	promote_access_count = 10
//	promote_strength = 0.6
package memory

import (
	"slices"
	"time"
)

// TierName identifies one stage of the promotion chain.
type TierName string

const (
	// TierShortTerm is the fast, volatile tier.
	TierShortTerm TierName = "stm"

	// TierMediumTerm is the medium-priority tier.
	TierMediumTerm TierName = "mtm"

	// TierLongTerm is the durable, semantic tier.
	TierLongTerm TierName = "ltm"
)

// Tiers lists the tier names in promotion order.
var Tiers = []TierName{TierShortTerm, TierMediumTerm, TierLongTerm}

// String implements fmt.Stringer.
func (t TierName) String() string {
	return string(t)
}

// Valid reports whether t is one of the known tiers.
func (t TierName) Valid() bool {
	return slices.Contains(Tiers, t)
}

// Item is a single stored memory.
type Item struct {
	// ID is assigned by the tier that stores the item. It is empty for items
	// that have not been stored yet.
	ID string `json:"id"`

	// Content is the memory text.
	Content string `json:"content"`

	// Tags group related items (e.g. "project:strata").
	Tags []string `json:"tags,omitempty"`

	// Importance in [0,1] weights both baseline strength and the forgetting
	// threshold.
	Importance float64 `json:"importance"`

	// Scope is the owner namespace of the item (agent, user, session).
	Scope string `json:"scope,omitempty"`

	// Embedding is the optional vector representation of Content.
	Embedding []float32 `json:"embedding,omitempty"`

	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	AccessCount    int       `json:"access_count"`

	Metadata Metadata `json:"metadata"`
}

// Metadata carries the typed bookkeeping fields the maintenance engine reads
// and writes, plus an open-ended bag for everything else.
type Metadata struct {
	// Strength is the current retention strength. Zero means "not yet set".
	Strength float64 `json:"strength,omitempty"`

	// ReinforcementLevel is the accumulator strength is derived from. Nil when
	// the item was written by a client that only knows about Strength; the
	// level is then back-derived on read.
	ReinforcementLevel *float64 `json:"reinforcement_level,omitempty"`

	ReinforcementCount int       `json:"reinforcement_count,omitempty"`
	LastDecayAt        time.Time `json:"last_decay_at,omitzero"`
	LastReinforcedAt   time.Time `json:"last_reinforced_at,omitzero"`

	// PromotedFrom and PromotedAt record the most recent consolidation.
	PromotedFrom TierName  `json:"promoted_from,omitempty"`
	PromotedAt   time.Time `json:"promoted_at,omitzero"`

	// SourceID is the item's id in the tier it was promoted from.
	SourceID string `json:"source_id,omitempty"`

	// ExpiresAt is honored by the short-term tier's cleanup.
	ExpiresAt time.Time `json:"expires_at,omitzero"`

	Extra map[string]any `json:"extra,omitempty"`
}

// Clone returns a deep copy of the item so tiers never share mutable state
// with callers.
func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	c := *i
	c.Tags = slices.Clone(i.Tags)
	c.Embedding = slices.Clone(i.Embedding)
	if i.Metadata.ReinforcementLevel != nil {
		level := *i.Metadata.ReinforcementLevel
		c.Metadata.ReinforcementLevel = &level
	}
	if i.Metadata.Extra != nil {
		c.Metadata.Extra = make(map[string]any, len(i.Metadata.Extra))
		for k, v := range i.Metadata.Extra {
			c.Metadata.Extra[k] = v
		}
	}
	return &c
}

// HasTag reports whether the item carries tag.
func (i *Item) HasTag(tag string) bool {
	return slices.Contains(i.Tags, tag)
}

// LastTouched returns the most recent access time, falling back to the
// creation time for items that were never accessed.
func (i *Item) LastTouched() time.Time {
	if i.LastAccessedAt.IsZero() {
		return i.CreatedAt
	}
	return i.LastAccessedAt
}

// Filter narrows a Query. Zero values mean "no constraint".
type Filter struct {
	Tags           []string
	Scope          string
	MinImportance  float64
	AccessedBefore time.Time
	Limit          int
}

// Match reports whether item satisfies every constraint in f.
// Limit is applied by the caller.
func (f Filter) Match(item *Item) bool {
	if f.Scope != "" && item.Scope != f.Scope {
		return false
	}
	if item.Importance < f.MinImportance {
		return false
	}
	if !f.AccessedBefore.IsZero() && !item.LastTouched().Before(f.AccessedBefore) {
		return false
	}
	for _, tag := range f.Tags {
		if !item.HasTag(tag) {
			return false
		}
	}
	return true
}
