package audit

import (
	"context"
	"sync"
)

// MemorySink keeps entries in process memory.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
	seen    map[string]struct{}
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{seen: make(map[string]struct{})}
}

func (s *MemorySink) Append(_ context.Context, e Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[e.Fingerprint]; ok {
		return false, nil
	}
	s.seen[e.Fingerprint] = struct{}{}
	s.entries = append(s.entries, e)
	return true, nil
}

func (s *MemorySink) List(_ context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, n)
	copy(out, s.entries[:n])
	return out, nil
}

func (s *MemorySink) Close() error {
	return nil
}
