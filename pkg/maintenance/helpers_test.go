package maintenance_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/storage/inmemory"
	"github.com/papercomputeco/strata/pkg/strength"
	"github.com/papercomputeco/strata/pkg/tier"
)

// stack is the three standard tiers over in-memory backends.
type stack struct {
	stm, mtm, ltm *tier.Tier
}

func (s stack) tiers() []memory.Tier {
	return []memory.Tier{s.stm, s.mtm, s.ltm}
}

func newStack() stack {
	return newClockedStack(nil)
}

// newClockedStack builds the stack on clock; nil means time.Now.
func newClockedStack(clock func() time.Time) stack {
	model, err := strength.NewModel(strength.DefaultParams())
	Expect(err).NotTo(HaveOccurred())

	build := func(name memory.TierName, withModel bool) *tier.Tier {
		c := tier.Config{
			Name:    name,
			Backend: inmemory.NewDriver(),
			Policy:  tier.DefaultPolicy(name),
			Clock:   clock,
		}
		if withModel {
			c.Model = model
		}
		t, err := tier.New(c)
		Expect(err).NotTo(HaveOccurred())
		return t
	}
	return stack{
		stm: build(memory.TierShortTerm, false),
		mtm: build(memory.TierMediumTerm, true),
		ltm: build(memory.TierLongTerm, true),
	}
}

func count(ctx context.Context, t memory.Tier) int {
	items, err := t.Query(ctx, memory.Filter{})
	Expect(err).NotTo(HaveOccurred())
	return len(items)
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// blockingTier holds Cleanup until release is closed or ctx ends.
type blockingTier struct {
	memory.Tier
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingTier) Cleanup(ctx context.Context) (int, error) {
	b.once.Do(func() { close(b.entered) })
	select {
	case <-b.release:
		return b.Tier.Cleanup(ctx)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
