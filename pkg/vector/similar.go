package vector

import (
	"context"
	"fmt"

	"github.com/papercomputeco/strata/pkg/memory"
)

// DefaultSimilarLimit is the neighbour count Similar returns when topK is
// not positive.
const DefaultSimilarLimit = 10

// Similar returns up to topK indexed documents nearest to item's embedding,
// most similar first. The item itself is never part of the result.
func Similar(ctx context.Context, d Driver, item *memory.Item, topK int) ([]QueryResult, error) {
	if len(item.Embedding) == 0 {
		return nil, fmt.Errorf("%s: %w", item.ID, ErrNoEmbedding)
	}
	if topK <= 0 {
		topK = DefaultSimilarLimit
	}

	results, err := d.Query(ctx, item.Embedding, topK+1)
	if err != nil {
		return nil, fmt.Errorf("querying neighbours of %s: %w", item.ID, err)
	}

	out := make([]QueryResult, 0, min(len(results), topK))
	for _, r := range results {
		if r.ID == item.ID {
			continue
		}
		out = append(out, r)
		if len(out) == topK {
			break
		}
	}
	return out, nil
}
