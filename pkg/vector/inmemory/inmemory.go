// Package inmemory provides an in-process vector.Driver using brute-force
// cosine search. It backs tests and single-process deployments without a
// vector database.
package inmemory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/papercomputeco/strata/pkg/vector"
)

// Driver is a map-backed vector.Driver.
type Driver struct {
	mu   sync.RWMutex
	docs map[string]vector.Document
}

// NewDriver returns an empty Driver.
func NewDriver() *Driver {
	return &Driver{docs: make(map[string]vector.Document)}
}

// Add upserts documents.
func (d *Driver) Add(_ context.Context, docs []vector.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, doc := range docs {
		doc.Embedding = slices.Clone(doc.Embedding)
		d.docs[doc.ID] = doc
	}
	return nil
}

// Query returns the topK documents by cosine similarity. Documents whose
// embedding cannot be compared with the query are skipped.
func (d *Driver) Query(_ context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	d.mu.RLock()
	results := make([]vector.QueryResult, 0, len(d.docs))
	for _, doc := range d.docs {
		sim, ok := vector.CosineSimilarity(embedding, doc.Embedding)
		if !ok {
			continue
		}
		doc.Embedding = slices.Clone(doc.Embedding)
		results = append(results, vector.QueryResult{Document: doc, Score: float32(sim)})
	}
	d.mu.RUnlock()

	slices.SortFunc(results, func(a, b vector.QueryResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Get returns the documents for ids in request order, omitting unknown ids.
func (d *Driver) Get(_ context.Context, ids []string) ([]vector.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	docs := make([]vector.Document, 0, len(ids))
	for _, id := range ids {
		doc, ok := d.docs[id]
		if !ok {
			continue
		}
		doc.Embedding = slices.Clone(doc.Embedding)
		docs = append(docs, doc)
	}
	return docs, nil
}

// Delete removes documents by id.
func (d *Driver) Delete(_ context.Context, ids []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range ids {
		delete(d.docs, id)
	}
	return nil
}

// Close is a no-op.
func (d *Driver) Close() error {
	return nil
}
