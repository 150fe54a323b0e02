package testutils

import (
	"time"

	"github.com/papercomputeco/strata/pkg/memory"
)

// NewTestItem creates an unstored item with the given content and tags.
func NewTestItem(content string, tags ...string) *memory.Item {
	now := time.Now()
	return &memory.Item{
		Content:        content,
		Tags:           tags,
		Importance:     0.5,
		Scope:          "test",
		CreatedAt:      now,
		LastAccessedAt: now,
	}
}
