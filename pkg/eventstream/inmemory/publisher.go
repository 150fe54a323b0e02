// Package inmemory provides an eventstream publisher that keeps the most recent
// events in a bounded ring, so the API can serve them without a broker.
package inmemory

import (
	"context"
	"sync"

	"github.com/papercomputeco/strata/pkg/eventstream"
)

// DefaultCapacity is used when NewPublisher is given a non-positive capacity.
const DefaultCapacity = 256

// Publisher retains the last N published events.
type Publisher struct {
	mu   sync.RWMutex
	ring []*eventstream.Event
	next int
	full bool
}

// NewPublisher creates a publisher retaining up to capacity events.
func NewPublisher(capacity int) *Publisher {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Publisher{ring: make([]*eventstream.Event, capacity)}
}

// Publish records event, evicting the oldest when the ring is full.
func (p *Publisher) Publish(_ context.Context, event *eventstream.Event) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.ring[p.next] = event
	p.next = (p.next + 1) % len(p.ring)
	if p.next == 0 {
		p.full = true
	}
	return nil
}

// Recent returns up to limit events, oldest first. A non-positive limit
// returns everything retained. When eventType is non-empty only events of
// that type are returned.
func (p *Publisher) Recent(limit int, eventType string) []*eventstream.Event {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var ordered []*eventstream.Event
	if p.full {
		ordered = append(ordered, p.ring[p.next:]...)
	}
	ordered = append(ordered, p.ring[:p.next]...)

	out := make([]*eventstream.Event, 0, len(ordered))
	for _, e := range ordered {
		if eventType != "" && e.EventType != eventType {
			continue
		}
		out = append(out, e)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
