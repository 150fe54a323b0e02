package consolidation

import (
	"context"
	"sync"
)

// Decision is the answer to Guard.Reserve.
//
// When Proceed is true the caller holds Reservation and must Commit or Abort
// it. Otherwise another holder already resolved the key: Result carries its
// committed value, or is nil when the holder aborted, in which case the caller
// should reserve again.
type Decision[T any] struct {
	Proceed     bool
	Reservation *Reservation[T]
	Result      *T
}

// Reservation is the exclusive right to run the work for one key.
type Reservation[T any] struct {
	key    string
	guard  *Guard[T]
	done   chan struct{}
	once   sync.Once
	result *T

	// waiters is guarded by guard.mu.
	waiters int
}

// Key returns the reserved key.
func (r *Reservation[T]) Key() string {
	return r.key
}

// Commit releases the key and hands value to every waiter.
func (r *Reservation[T]) Commit(value T) {
	r.resolve(&value)
}

// Abort releases the key without a value. Waiters receive a nil result.
func (r *Reservation[T]) Abort() {
	r.resolve(nil)
}

func (r *Reservation[T]) resolve(value *T) {
	r.once.Do(func() {
		r.result = value
		r.guard.release(r)
		close(r.done)
	})
}

// Guard admits at most one holder per key. Callers arriving while a key is
// held wait for the holder and receive its result instead of repeating the
// work.
type Guard[T any] struct {
	mu       sync.Mutex
	inflight map[string]*Reservation[T]
}

// NewGuard returns an empty Guard.
func NewGuard[T any]() *Guard[T] {
	return &Guard[T]{inflight: make(map[string]*Reservation[T])}
}

// Reserve claims key, or waits for the current holder to resolve it. It
// returns ctx.Err() if ctx ends while waiting.
func (g *Guard[T]) Reserve(ctx context.Context, key string) (Decision[T], error) {
	g.mu.Lock()
	existing, held := g.inflight[key]
	if !held {
		r := &Reservation[T]{key: key, guard: g, done: make(chan struct{})}
		g.inflight[key] = r
		g.mu.Unlock()
		return Decision[T]{Proceed: true, Reservation: r}, nil
	}
	existing.waiters++
	g.mu.Unlock()

	select {
	case <-existing.done:
		return Decision[T]{Result: existing.result}, nil
	case <-ctx.Done():
		g.mu.Lock()
		existing.waiters--
		g.mu.Unlock()
		return Decision[T]{}, ctx.Err()
	}
}

// Do runs fn under the reservation for key. Concurrent callers for the same
// key share one execution. If the holder aborts (fn panics) waiters reserve
// again.
func (g *Guard[T]) Do(ctx context.Context, key string, fn func() T) (T, bool, error) {
	for {
		d, err := g.Reserve(ctx, key)
		if err != nil {
			var zero T
			return zero, false, err
		}
		if !d.Proceed {
			if d.Result == nil {
				continue
			}
			return *d.Result, true, nil
		}

		value := func() T {
			defer d.Reservation.Abort()
			v := fn()
			d.Reservation.Commit(v)
			return v
		}()
		return value, false, nil
	}
}

// InFlight returns the number of held keys.
func (g *Guard[T]) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inflight)
}

// Waiting returns how many callers are blocked on the current holder of key.
func (g *Guard[T]) Waiting(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.inflight[key]; ok {
		return r.waiters
	}
	return 0
}

func (g *Guard[T]) release(r *Reservation[T]) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inflight[r.key] == r {
		delete(g.inflight, r.key)
	}
}
