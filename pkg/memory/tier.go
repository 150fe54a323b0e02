package memory

import "context"

// Tier is one storage stage in the promotion chain.
type Tier interface {
	// Name returns the tier's name.
	Name() TierName

	// Store persists item and returns the id assigned by the tier. An empty
	// id with a nil error means the tier declined the item.
	Store(ctx context.Context, item *Item) (string, error)

	// Retrieve returns the item with the given id, or nil when absent.
	Retrieve(ctx context.Context, id string) (*Item, error)

	// Delete removes the item and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// Query returns items matching filter.
	Query(ctx context.Context, filter Filter) ([]*Item, error)

	// GetPromotionCandidates returns up to limit items ready to move to the
	// next tier.
	GetPromotionCandidates(ctx context.Context, limit int) ([]*Item, error)

	// Cleanup removes items the tier no longer wants and returns how many
	// were removed.
	Cleanup(ctx context.Context) (int, error)

	// Decay applies the tier's time-based decay to its items.
	Decay(ctx context.Context) (DecaySummary, error)
}

// DecaySummary is the outcome of one Tier.Decay call.
type DecaySummary struct {
	Processed int `json:"processed"`
	Updated   int `json:"updated"`
	Forgotten int `json:"forgotten"`
}
