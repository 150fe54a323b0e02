// Package vector provides the vector index that mirrors item embeddings, and an
// integrity check that compares the index against the tiers it mirrors.
package vector

import (
	"context"

	"github.com/papercomputeco/strata/pkg/memory"
)

// Document is one indexed embedding.
type Document struct {
	// ID is the id of the memory item the embedding belongs to.
	ID string

	// Tier is the tier holding the item when it was indexed.
	Tier memory.TierName

	// Embedding is the vector representation of the item content.
	Embedding []float32
}

// QueryResult represents a search result with similarity score.
type QueryResult struct {
	Document

	// Score represents the similarity score (higher = more similar).
	Score float32
}

// Driver handles storage and retrieval of vector embeddings.
type Driver interface {
	// Add stores documents with their embeddings.
	// If a document with the same ID already exists, implementers should update
	// the document.
	Add(ctx context.Context, docs []Document) error

	// Query finds the topK most similar documents to the given embedding.
	Query(ctx context.Context, embedding []float32, topK int) ([]QueryResult, error)

	// Get retrieves documents by their IDs. Unknown ids are omitted.
	Get(ctx context.Context, ids []string) ([]Document, error)

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the driver.
	Close() error
}
