// Package consolidation moves memory items between tiers.
//
// A move runs under an InFlight guard keyed by source, item and target, so a
// given item is never moved twice at once, and inside a Pipeline whose stages
// are "store in target" (undone by deleting from target) followed by "delete
// from source". Transient storage failures are retried by the Consolidator
// with exponential backoff; the pipeline itself never retries.
package consolidation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/papercomputeco/strata/pkg/audit"
	"github.com/papercomputeco/strata/pkg/eventstream"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/storage"
)

// Status is the result class of one consolidation attempt.
type Status string

const (
	StatusPromoted     Status = "promoted"
	StatusSkipped      Status = "skipped"
	StatusFailed       Status = "failed"
	StatusDeduplicated Status = "deduplicated"
)

// Outcome describes one consolidation attempt.
type Outcome struct {
	Key    string          `json:"key"`
	ItemID string          `json:"item_id"`
	Source memory.TierName `json:"source"`
	Target memory.TierName `json:"target"`
	Status Status          `json:"status"`
	NewID  string          `json:"new_id,omitempty"`
	Reason string          `json:"reason,omitempty"`
	Err    error           `json:"-"`

	// Attempts counts pipeline runs, including transient retries.
	Attempts int `json:"attempts"`
}

// Key returns the guard key for moving id from source to target.
func Key(source memory.TierName, id string, target memory.TierName) string {
	return fmt.Sprintf("%s:%s->%s", source, id, target)
}

const (
	DefaultMaxTries             uint = 3
	DefaultRetryInitialInterval      = 100 * time.Millisecond
)

// Config configures a Consolidator. Guard and Pipeline are owned by the
// caller so one instance can be shared by everything that moves items.
type Config struct {
	Guard    *Guard[Outcome]
	Pipeline *Pipeline

	Audit     *audit.Recorder
	Publisher eventstream.Publisher
	Source    eventstream.EventSource

	// MaxTries bounds pipeline runs per move (default 3).
	MaxTries uint

	// RetryInitialInterval is the first backoff delay (default 100ms).
	RetryInitialInterval time.Duration

	Logger *slog.Logger
	Clock  func() time.Time
}

// Consolidator moves items between tiers.
type Consolidator struct {
	guard     *Guard[Outcome]
	pipeline  *Pipeline
	audit     *audit.Recorder
	publisher eventstream.Publisher
	source    eventstream.EventSource
	maxTries  uint
	initial   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewConsolidator returns a Consolidator. Nil Guard and Pipeline are replaced
// by fresh instances.
func NewConsolidator(c Config) *Consolidator {
	log := logger.OrNop(c.Logger)
	if c.Guard == nil {
		c.Guard = NewGuard[Outcome]()
	}
	if c.Pipeline == nil {
		c.Pipeline = NewPipeline(log)
	}
	if c.MaxTries == 0 {
		c.MaxTries = DefaultMaxTries
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = DefaultRetryInitialInterval
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return &Consolidator{
		guard:     c.Guard,
		pipeline:  c.Pipeline,
		audit:     c.Audit,
		publisher: c.Publisher,
		source:    c.Source,
		maxTries:  c.MaxTries,
		initial:   c.RetryInitialInterval,
		logger:    log.With("component", "consolidator"),
		now:       c.Clock,
	}
}

// Guard returns the in-flight guard.
func (c *Consolidator) Guard() *Guard[Outcome] {
	return c.guard
}

// Consolidate moves item from source to target. Concurrent calls for the same
// key share one execution and return the same Outcome.
func (c *Consolidator) Consolidate(ctx context.Context, item *memory.Item, source, target memory.Tier) Outcome {
	key := Key(source.Name(), item.ID, target.Name())

	outcome, shared, err := c.guard.Do(ctx, key, func() Outcome {
		o := c.move(ctx, key, item, source, target)
		c.publish(ctx, o)
		return o
	})
	if err != nil {
		return Outcome{
			Key:    key,
			ItemID: item.ID,
			Source: source.Name(),
			Target: target.Name(),
			Status: StatusFailed,
			Err:    err,
			Reason: err.Error(),
		}
	}
	if shared {
		c.logger.Debug("joined in-flight consolidation", "key", key, "status", outcome.Status)
	}
	return outcome
}

func (c *Consolidator) move(ctx context.Context, key string, item *memory.Item, source, target memory.Tier) Outcome {
	o := Outcome{Key: key, ItemID: item.ID, Source: source.Name(), Target: target.Name()}

	current, err := source.Retrieve(ctx, item.ID)
	if err != nil {
		return c.fail(o, err)
	}
	if current == nil {
		o.Status = StatusDeduplicated
		o.Reason = ErrSourceGone.Error()
		return o
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initial

	op := func() (string, error) {
		o.Attempts++
		res, err := c.pipeline.Run(ctx, key, func(tx *Transaction) (any, error) {
			return c.stage(tx, current, source, target)
		})
		if err != nil {
			if storage.IsTransient(err) {
				c.logger.Warn("transient consolidation failure, retrying", "key", key, "attempt", o.Attempts, "error", err)
				return "", err
			}
			return "", backoff.Permanent(err)
		}
		return res.(string), nil
	}

	newID, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.maxTries),
	)
	switch {
	case errors.Is(err, ErrSkip):
		o.Status = StatusSkipped
		o.Reason = err.Error()
		return o
	case errors.Is(err, ErrSourceGone):
		o.Status = StatusDeduplicated
		o.Reason = err.Error()
		return o
	case err != nil:
		return c.fail(o, err)
	}

	o.Status = StatusPromoted
	o.NewID = newID

	if c.audit != nil {
		if _, err := c.audit.RecordConsolidation(ctx, current, source.Name(), target.Name(), newID); err != nil {
			c.logger.Warn("audit consolidation failed", "key", key, "error", err)
		}
	}
	c.logger.Debug("item promoted", "key", key, "new_id", newID)
	return o
}

// stage stores a promoted copy in target, then deletes the original from
// source. A failed delete rolls the target copy back.
func (c *Consolidator) stage(tx *Transaction, item *memory.Item, source, target memory.Tier) (any, error) {
	promoted := item.Clone()
	promoted.ID = ""
	promoted.Metadata.PromotedFrom = source.Name()
	promoted.Metadata.PromotedAt = c.now().UTC()
	promoted.Metadata.SourceID = item.ID
	promoted.Metadata.ExpiresAt = time.Time{}

	v, err := tx.Stage(
		func(ctx context.Context) (any, error) {
			id, err := target.Store(ctx, promoted)
			if err != nil {
				return nil, err
			}
			if id == "" {
				return nil, Skip("target tier declined item")
			}
			return id, nil
		},
		func(ctx context.Context, v any) error {
			_, err := target.Delete(ctx, v.(string))
			return err
		},
		"store in "+string(target.Name()),
	)
	if err != nil {
		return nil, err
	}

	_, err = tx.Stage(
		func(ctx context.Context) (any, error) {
			ok, err := source.Delete(ctx, item.ID)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, ErrSourceGone
			}
			return nil, nil
		},
		nil,
		"delete from "+string(source.Name()),
	)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (c *Consolidator) fail(o Outcome, err error) Outcome {
	o.Status = StatusFailed
	o.Err = err
	o.Reason = err.Error()
	c.logger.Error("consolidation failed", "key", o.Key, "error", err)
	return o
}

func (c *Consolidator) publish(ctx context.Context, o Outcome) {
	if c.publisher == nil {
		return
	}
	payload := eventstream.ConsolidationOutcomePayload{
		Key:        o.Key,
		ItemID:     o.ItemID,
		SourceTier: string(o.Source),
		TargetTier: string(o.Target),
		Status:     string(o.Status),
		NewID:      o.NewID,
	}
	if o.Err != nil {
		payload.Error = o.Err.Error()
	}
	event := eventstream.NewEvent(eventstream.EventTypeConsolidationOutcome, c.source, payload)
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.logger.Warn("publishing consolidation outcome failed", "key", o.Key, "error", err)
	}
}
