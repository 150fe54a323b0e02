package tier

import (
	"context"
	"fmt"

	"github.com/papercomputeco/strata/pkg/memory"
)

// Signal is an access or strength signal sent to one item.
type Signal string

const (
	SignalTouch     Signal = "touch"
	SignalReinforce Signal = "reinforce"
	SignalWeaken    Signal = "weaken"
)

// Signals lists every signal kind Apply accepts.
var Signals = []Signal{SignalTouch, SignalReinforce, SignalWeaken}

// SignalResult is the outcome of Apply. Item is nil when the signal made the
// item fall to its forgetting threshold.
type SignalResult struct {
	Tier      memory.TierName `json:"tier"`
	ID        string          `json:"id"`
	Signal    Signal          `json:"signal"`
	Item      *memory.Item    `json:"item,omitempty"`
	Forgotten bool            `json:"forgotten"`
}

// Apply sends signal to the item with the given id. Amount is ignored by
// touch. It returns ErrItemNotFound when the tier has no such item.
func (t *Tier) Apply(ctx context.Context, signal Signal, id string, amount float64) (SignalResult, error) {
	res := SignalResult{Tier: t.name, ID: id, Signal: signal}

	var (
		item *memory.Item
		err  error
	)
	switch signal {
	case SignalTouch:
		item, err = t.Touch(ctx, id)
	case SignalReinforce:
		item, err = t.Reinforce(ctx, id, amount)
	case SignalWeaken:
		var existed bool
		item, existed, err = t.weaken(ctx, id, amount)
		if err == nil && existed && item == nil {
			res.Forgotten = true
			return res, nil
		}
	default:
		return res, fmt.Errorf("%w %q", ErrUnknownSignal, signal)
	}
	if err != nil {
		return res, err
	}
	if item == nil {
		return res, fmt.Errorf("%s in %s: %w", id, t.name, ErrItemNotFound)
	}
	res.Item = item
	return res, nil
}
