// Package audit records item creations and consolidations in an append-only
// log. Recording is idempotent: a redelivered record with the same
// fingerprint is accepted and ignored.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/memory"
)

// Kind distinguishes audit entries.
type Kind string

const (
	KindCreation      Kind = "creation"
	KindConsolidation Kind = "consolidation"
)

// Entry is one audit record.
type Entry struct {
	Fingerprint string          `json:"fingerprint"`
	Kind        Kind            `json:"kind"`
	ItemID      string          `json:"item_id"`
	Tier        memory.TierName `json:"tier,omitempty"`
	Scope       string          `json:"scope,omitempty"`
	SourceTier  memory.TierName `json:"source_tier,omitempty"`
	TargetTier  memory.TierName `json:"target_tier,omitempty"`
	NewID       string          `json:"new_id,omitempty"`
	RecordedAt  time.Time       `json:"recorded_at"`
}

// Sink persists entries.
type Sink interface {
	// Append stores e unless an entry with the same fingerprint exists.
	// It reports whether e was newly stored.
	Append(ctx context.Context, e Entry) (bool, error)

	// List returns up to limit entries, oldest first. A non-positive limit
	// returns all entries.
	List(ctx context.Context, limit int) ([]Entry, error)

	Close() error
}

// Recorder builds fingerprinted entries and appends them to a Sink.
type Recorder struct {
	sink   Sink
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = l
	}
}

// NewRecorder returns a Recorder writing to sink.
func NewRecorder(sink Sink, opts ...Option) *Recorder {
	r := &Recorder{sink: sink, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logger.OrNop(r.logger).With("component", "audit")
	return r
}

// RecordCreation records that item was stored in tier on behalf of scope.
// It reports false when the same creation was already recorded.
func (r *Recorder) RecordCreation(ctx context.Context, item *memory.Item, tier memory.TierName, scope string) (bool, error) {
	if item == nil {
		return false, memory.ErrNilItem
	}
	e := Entry{
		Kind:       KindCreation,
		ItemID:     item.ID,
		Tier:       tier,
		Scope:      scope,
		RecordedAt: r.now().UTC(),
	}
	e.Fingerprint = Fingerprint(e.Kind, item.ID, string(tier), scope)
	return r.append(ctx, e)
}

// RecordConsolidation records that item moved from source to target where it
// was assigned newID. It reports false when the same move was already
// recorded.
func (r *Recorder) RecordConsolidation(ctx context.Context, item *memory.Item, source, target memory.TierName, newID string) (bool, error) {
	if item == nil {
		return false, memory.ErrNilItem
	}
	e := Entry{
		Kind:       KindConsolidation,
		ItemID:     item.ID,
		Scope:      item.Scope,
		SourceTier: source,
		TargetTier: target,
		NewID:      newID,
		RecordedAt: r.now().UTC(),
	}
	e.Fingerprint = Fingerprint(e.Kind, item.ID, string(source), string(target), newID)
	return r.append(ctx, e)
}

// Entries returns up to limit recorded entries, oldest first.
func (r *Recorder) Entries(ctx context.Context, limit int) ([]Entry, error) {
	return r.sink.List(ctx, limit)
}

// Close closes the sink.
func (r *Recorder) Close() error {
	return r.sink.Close()
}

func (r *Recorder) append(ctx context.Context, e Entry) (bool, error) {
	added, err := r.sink.Append(ctx, e)
	if err != nil {
		return false, fmt.Errorf("recording %s of %s: %w", e.Kind, e.ItemID, err)
	}
	if !added {
		r.logger.Debug("duplicate audit record ignored", "kind", e.Kind, "item_id", e.ItemID)
	}
	return added, nil
}

// Fingerprint is the hex sha256 of the kind and identifying fields.
func Fingerprint(kind Kind, fields ...string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(fields, "\x00")))
	return hex.EncodeToString(h.Sum(nil))
}
