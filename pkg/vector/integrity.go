package vector

import (
	"context"
	"fmt"

	"github.com/papercomputeco/strata/pkg/memory"
)

// IntegrityResult summarizes one comparison of tier embeddings against the
// vector index.
type IntegrityResult struct {
	// Checked is the number of embedded items sampled.
	Checked int `json:"checked"`

	// Missing lists sampled items with no index entry.
	Missing []string `json:"missing,omitempty"`

	// Drifted lists sampled items whose indexed embedding is further than the
	// threshold (cosine distance) from the stored one.
	Drifted []string `json:"drifted,omitempty"`

	MaxDistance float64 `json:"max_distance"`
}

// IntegrityChecker compares the embeddings stored on tier items with the
// copies held by a vector index.
type IntegrityChecker struct {
	index Driver
	tiers []memory.Tier
}

// NewIntegrityChecker returns a checker sampling the given tiers in order.
func NewIntegrityChecker(index Driver, tiers ...memory.Tier) *IntegrityChecker {
	return &IntegrityChecker{index: index, tiers: tiers}
}

// Check samples up to sampleSize embedded items across the tiers and reports
// those missing from the index or drifted beyond threshold. A non-positive
// sampleSize checks every item.
func (c *IntegrityChecker) Check(ctx context.Context, threshold float64, sampleSize int) (*IntegrityResult, error) {
	var sample []*memory.Item
	for _, tier := range c.tiers {
		limit := 0
		if sampleSize > 0 {
			limit = sampleSize - len(sample)
			if limit <= 0 {
				break
			}
		}

		items, err := tier.Query(ctx, memory.Filter{Limit: limit})
		if err != nil {
			return nil, fmt.Errorf("sampling tier %s: %w", tier.Name(), err)
		}
		for _, item := range items {
			if len(item.Embedding) > 0 {
				sample = append(sample, item)
			}
		}
	}

	result := &IntegrityResult{Checked: len(sample)}
	if len(sample) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(sample))
	for _, item := range sample {
		ids = append(ids, item.ID)
	}
	docs, err := c.index.Get(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("reading index: %w", err)
	}
	indexed := make(map[string][]float32, len(docs))
	for _, doc := range docs {
		indexed[doc.ID] = doc.Embedding
	}

	for _, item := range sample {
		emb, ok := indexed[item.ID]
		if !ok {
			result.Missing = append(result.Missing, item.ID)
			continue
		}
		dist, ok := CosineDistance(item.Embedding, emb)
		if !ok {
			// Dimension change counts as maximal drift.
			dist = 1
		}
		result.MaxDistance = max(result.MaxDistance, dist)
		if dist > threshold {
			result.Drifted = append(result.Drifted, item.ID)
		}
	}
	return result, nil
}
