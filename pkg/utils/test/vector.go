package testutils

import (
	"context"
	"sort"
	"sync"

	"github.com/papercomputeco/strata/pkg/vector"
)

// MockVectorDriver is a test vector driver that keeps documents in a map and
// ranks queries by cosine similarity.
type MockVectorDriver struct {
	mu        sync.Mutex
	documents map[string]vector.Document

	// FailAdd causes Add to return vector.ErrConnection.
	FailAdd bool

	// FailGet causes Get to return vector.ErrConnection.
	FailGet bool
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{
		documents: make(map[string]vector.Document),
	}
}

func (m *MockVectorDriver) Add(_ context.Context, docs []vector.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAdd {
		return vector.ErrConnection
	}
	for _, d := range docs {
		m.documents[d.ID] = d
	}
	return nil
}

func (m *MockVectorDriver) Query(_ context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]vector.QueryResult, 0, len(m.documents))
	for _, d := range m.documents {
		sim, ok := vector.CosineSimilarity(embedding, d.Embedding)
		if !ok {
			continue
		}
		results = append(results, vector.QueryResult{Document: d, Score: float32(sim)})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *MockVectorDriver) Get(_ context.Context, ids []string) ([]vector.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailGet {
		return nil, vector.ErrConnection
	}
	out := make([]vector.Document, 0, len(ids))
	for _, id := range ids {
		if d, ok := m.documents[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *MockVectorDriver) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		delete(m.documents, id)
	}
	return nil
}

func (m *MockVectorDriver) Close() error {
	return nil
}
