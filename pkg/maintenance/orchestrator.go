// Package maintenance runs the periodic maintenance cycle of a strata store.
//
// A cycle snapshots backpressure, asks the circuit breaker whether
// consolidation may run, promotes candidates along each tier pair, runs every
// tier's cleanup and decay, scores the durable tier, and updates the loop's
// telemetry. Per-item and per-tier failures are contained and reported in the
// cycle's Report; only the cycle status feeds the breaker.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/strata/pkg/consolidation"
	"github.com/papercomputeco/strata/pkg/eventstream"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/quality"
	"github.com/papercomputeco/strata/pkg/worker"
)

const (
	DefaultInterval    = 5 * time.Minute
	DefaultMinInterval = 30 * time.Second
	DefaultBatchSize   = 100

	// TriggerSchedule and TriggerManual are the usual triggeredBy values.
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// BackpressureSource reports queued and in-flight consolidation work per
// tier. *worker.Pool satisfies it.
type BackpressureSource interface {
	Backpressure() map[memory.TierName]worker.Load
}

// peakResetter is implemented by sources that track a peak queue depth,
// such as *worker.Pool. The orchestrator starts a new peak window after each
// snapshot so every cycle sees the backlog built since the previous one.
type peakResetter interface {
	ResetPeaks()
}

// BackpressureFunc adapts a function to BackpressureSource.
type BackpressureFunc func() map[memory.TierName]worker.Load

// Backpressure implements BackpressureSource.
func (f BackpressureFunc) Backpressure() map[memory.TierName]worker.Load {
	return f()
}

// Config configures an Orchestrator.
type Config struct {
	// Tiers in promotion order. Consecutive tiers form the consolidation
	// pairs; the last tier is the one scored for quality.
	Tiers []memory.Tier

	Consolidator *consolidation.Consolidator

	// Pool runs consolidations concurrently. Without it candidates are
	// consolidated one after another.
	Pool *worker.Pool

	// Backpressure defaults to Pool.
	Backpressure BackpressureSource

	Analyzer  *quality.Analyzer
	Publisher eventstream.Publisher
	Source    eventstream.EventSource

	Breaker BreakerConfig

	// Interval is the nominal delay between cycles; MinInterval floors the
	// backed-off delay.
	Interval    time.Duration
	MinInterval time.Duration

	// BatchSize caps promotion candidates per pair per cycle.
	BatchSize int

	Logger *slog.Logger
	Clock  func() time.Time
}

// Orchestrator runs maintenance cycles. Cycles are serialised: a cycle
// requested while another runs waits for it.
type Orchestrator struct {
	tiers        []memory.Tier
	consolidator *consolidation.Consolidator
	pool         *worker.Pool
	backpressure BackpressureSource
	analyzer     *quality.Analyzer
	publisher    eventstream.Publisher
	source       eventstream.EventSource
	batchSize    int
	logger       *slog.Logger
	now          func() time.Time

	cycleMu sync.Mutex

	mu          sync.RWMutex
	stopped     bool
	breaker     breaker
	interval    time.Duration
	minInterval time.Duration
	telemetry   Telemetry
	last        *Report
	lastQuality *quality.Report
}

// NewOrchestrator validates c and returns an Orchestrator.
func NewOrchestrator(c Config) (*Orchestrator, error) {
	if len(c.Tiers) == 0 {
		return nil, ErrNoTiers
	}
	for i, t := range c.Tiers {
		if t == nil {
			return nil, fmt.Errorf("tier %d is nil", i)
		}
	}
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.MinInterval == 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.Interval < 0 || c.MinInterval < 0 {
		return nil, errors.New("maintenance intervals must not be negative")
	}
	if c.MinInterval > c.Interval {
		c.MinInterval = c.Interval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Backpressure == nil && c.Pool != nil {
		c.Backpressure = c.Pool
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}

	return &Orchestrator{
		tiers:        c.Tiers,
		consolidator: c.Consolidator,
		pool:         c.Pool,
		backpressure: c.Backpressure,
		analyzer:     c.Analyzer,
		publisher:    c.Publisher,
		source:       c.Source,
		batchSize:    c.BatchSize,
		logger:       logger.OrNop(c.Logger).With("component", "maintenance"),
		now:          c.Clock,
		breaker:      breaker{cfg: c.Breaker},
		interval:     c.Interval,
		minInterval:  c.MinInterval,
	}, nil
}

// RunMaintenance runs one on-demand cycle.
func (o *Orchestrator) RunMaintenance(ctx context.Context) *Report {
	return o.RunCycle(ctx, TriggerManual)
}

// Stop makes every later RunCycle return a StatusStopped report without
// running. A cycle already running finishes normally.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.stopped {
		o.stopped = true
		o.logger.Info("maintenance stopped, refusing new cycles")
	}
}

// Stopped reports whether Stop was called.
func (o *Orchestrator) Stopped() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.stopped
}

// RunCycle runs one maintenance cycle and returns its report. It never
// returns nil.
func (o *Orchestrator) RunCycle(ctx context.Context, triggeredBy string) *Report {
	if o.Stopped() {
		return o.refuse(triggeredBy)
	}
	o.cycleMu.Lock()
	defer o.cycleMu.Unlock()
	// Stop may have been called while this cycle waited for the previous one.
	if o.Stopped() {
		return o.refuse(triggeredBy)
	}

	r := &Report{
		CycleID:     uuid.NewString(),
		TriggeredBy: triggeredBy,
		StartedAt:   o.now().UTC(),
		Cleanup:     make(map[memory.TierName]int),
		Decay:       make(map[memory.TierName]memory.DecaySummary),
		Errors:      []TierError{},
	}
	log := o.logger.With("cycle_id", r.CycleID, "triggered_by", triggeredBy)
	log.Info("maintenance cycle started")

	o.emit(ctx, eventstream.EventTypeMaintenanceStarted, eventstream.MaintenanceStartedPayload{
		CycleID:     r.CycleID,
		TriggeredBy: triggeredBy,
		StartedAt:   r.StartedAt,
	})

	r.Backpressure = o.snapshotBackpressure()

	o.mu.Lock()
	decision := o.breaker.evaluate(r.Backpressure, &o.telemetry, r.StartedAt)
	o.telemetry.HalfOpen = decision.halfOpen
	o.mu.Unlock()

	switch {
	case decision.open:
		r.Consolidation = ConsolidationSummary{Status: StatusCircuitOpen, Pairs: []PairSummary{}, SkippedReason: decision.skip}
		log.Warn("circuit open, skipping consolidation", "reason", decision.skip.Reason)
	case decision.halfOpen:
		log.Info("circuit half-open, running trial cycle")
		fallthrough
	default:
		r.Consolidation = o.consolidate(ctx, r)
	}

	o.maintainTiers(ctx, r)
	o.evaluateQuality(ctx, r)

	switch {
	case ctx.Err() != nil:
		r.Status = StatusCancelled
	case decision.open:
		r.Status = StatusCircuitOpen
	case len(r.Errors) > 0:
		r.Status = StatusError
	default:
		r.Status = StatusOK
	}
	r.FinishedAt = o.now().UTC()

	o.mu.Lock()
	o.record(r)
	r.Telemetry = o.telemetry
	o.last = r
	if r.Quality != nil {
		o.lastQuality = r.Quality
	}
	o.mu.Unlock()

	log.Info("maintenance cycle finished",
		"status", r.Status,
		"duration", r.Duration(),
		"promoted", r.Consolidation.Promoted,
		"errors", len(r.Errors),
	)
	o.emit(ctx, eventstream.EventTypeMaintenanceCompleted, r)
	return r
}

// refuse returns the report of a cycle that was not run.
func (o *Orchestrator) refuse(triggeredBy string) *Report {
	now := o.now().UTC()
	o.logger.Warn("maintenance stopped, cycle refused", "triggered_by", triggeredBy)
	return &Report{
		CycleID:       uuid.NewString(),
		TriggeredBy:   triggeredBy,
		Status:        StatusStopped,
		StartedAt:     now,
		FinishedAt:    now,
		Consolidation: ConsolidationSummary{Status: StatusStopped, Pairs: []PairSummary{}},
		Cleanup:       map[memory.TierName]int{},
		Decay:         map[memory.TierName]memory.DecaySummary{},
		Errors:        []TierError{},
		Telemetry:     o.Telemetry(),
	}
}

func (o *Orchestrator) snapshotBackpressure() map[memory.TierName]worker.Load {
	if o.backpressure == nil {
		return map[memory.TierName]worker.Load{}
	}
	snap := o.backpressure.Backpressure()
	if r, ok := o.backpressure.(peakResetter); ok {
		r.ResetPeaks()
	}
	if snap == nil {
		return map[memory.TierName]worker.Load{}
	}
	return maps.Clone(snap)
}

// consolidate promotes candidates along each consecutive tier pair.
func (o *Orchestrator) consolidate(ctx context.Context, r *Report) ConsolidationSummary {
	summary := ConsolidationSummary{Status: StatusOK, Pairs: []PairSummary{}}
	if o.consolidator == nil || len(o.tiers) < 2 {
		summary.Status = StatusDisabled
		return summary
	}

	for i := 0; i+1 < len(o.tiers); i++ {
		source, target := o.tiers[i], o.tiers[i+1]
		pair := PairSummary{Source: source.Name(), Target: target.Name()}

		candidates, err := source.GetPromotionCandidates(ctx, o.batchSize)
		if err != nil {
			r.fail(source.Name(), StageConsolidation, fmt.Errorf("selecting promotion candidates: %w", err))
			summary.add(pair)
			continue
		}
		pair.Candidates = len(candidates)

		for _, outcome := range o.consolidateAll(ctx, candidates, source, target) {
			switch outcome.Status {
			case consolidation.StatusPromoted:
				pair.Promoted++
			case consolidation.StatusSkipped:
				pair.Skipped++
			case consolidation.StatusDeduplicated:
				pair.Deduplicated++
			default:
				pair.Failed++
			}
		}
		summary.add(pair)
	}
	return summary
}

func (o *Orchestrator) consolidateAll(ctx context.Context, items []*memory.Item, source, target memory.Tier) []consolidation.Outcome {
	outcomes := make([]consolidation.Outcome, len(items))
	if o.pool == nil {
		for i, item := range items {
			outcomes[i] = o.consolidator.Consolidate(ctx, item, source, target)
		}
		return outcomes
	}

	var wg sync.WaitGroup
	for i, item := range items {
		key := consolidation.Key(source.Name(), item.ID, target.Name())
		wg.Add(1)
		queued := o.pool.Enqueue(worker.Job{
			Source: source.Name(),
			Key:    key,
			Run: func() {
				defer wg.Done()
				outcomes[i] = o.consolidator.Consolidate(ctx, item, source, target)
			},
		})
		if !queued {
			wg.Done()
			outcomes[i] = consolidation.Outcome{
				Key:    key,
				ItemID: item.ID,
				Source: source.Name(),
				Target: target.Name(),
				Status: consolidation.StatusSkipped,
				Reason: "worker queue full",
			}
		}
	}
	wg.Wait()
	return outcomes
}

// maintainTiers runs Cleanup then Decay on every tier. A failing tier is
// recorded and the remaining tiers still run.
func (o *Orchestrator) maintainTiers(ctx context.Context, r *Report) {
	for _, t := range o.tiers {
		removed, err := t.Cleanup(ctx)
		if err != nil {
			o.logger.Error("tier cleanup failed", "tier", t.Name(), "error", err)
			r.fail(t.Name(), StageCleanup, err)
		} else {
			r.Cleanup[t.Name()] = removed
		}

		summary, err := t.Decay(ctx)
		if err != nil {
			o.logger.Error("tier decay failed", "tier", t.Name(), "error", err)
			r.fail(t.Name(), StageDecay, err)
		} else {
			r.Decay[t.Name()] = summary
		}
	}
}

func (o *Orchestrator) evaluateQuality(ctx context.Context, r *Report) {
	if o.analyzer == nil {
		return
	}
	durable := o.tiers[len(o.tiers)-1]
	report, err := o.analyzer.EvaluateTier(ctx, durable, o.now().UTC())
	if err != nil {
		o.logger.Error("quality analysis failed", "tier", durable.Name(), "error", err)
		r.fail(durable.Name(), StageQuality, err)
		return
	}
	r.Quality = report
}

// record folds a finished cycle into the telemetry. Callers hold mu.
func (o *Orchestrator) record(r *Report) {
	t := &o.telemetry
	t.LastStatus = r.Status
	t.LastCycleAt = r.FinishedAt

	switch r.Status {
	case StatusCancelled:
		t.CancelledCycles++
	case StatusCircuitOpen:
		t.CircuitOpenCycles++
		t.LastOpenAt = r.FinishedAt
	case StatusError:
		t.ConsecutiveFailures++
		t.FailedCycles++
		if o.breaker.cfg.FailureThreshold > 0 && t.ConsecutiveFailures >= o.breaker.cfg.FailureThreshold &&
			(t.OpenedAt.IsZero() || t.HalfOpen) {
			t.OpenedAt = r.FinishedAt
			t.LastOpenAt = r.FinishedAt
		}
	default:
		t.ConsecutiveFailures = 0
		t.SuccessfulCycles++
		t.OpenedAt = time.Time{}
	}
	t.HalfOpen = false
}

func (o *Orchestrator) emit(ctx context.Context, eventType string, payload any) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, eventstream.NewEvent(eventType, o.source, payload)); err != nil {
		o.logger.Warn("publishing maintenance event failed", "event_type", eventType, "error", err)
	}
}

// ComputeNextDelay returns the delay before the next cycle: base after a
// successful cycle, and base halved once per consecutive failure otherwise,
// never below the minimum interval.
func (o *Orchestrator) ComputeNextDelay(base time.Duration) time.Duration {
	o.mu.RLock()
	failures := o.telemetry.ConsecutiveFailures
	floor := o.minInterval
	o.mu.RUnlock()

	if failures == 0 || base <= floor {
		return base
	}
	delay := base
	for range failures {
		delay /= 2
		if delay <= floor {
			return floor
		}
	}
	return delay
}

// NextDelay is ComputeNextDelay of the configured interval.
func (o *Orchestrator) NextDelay() time.Duration {
	return o.ComputeNextDelay(o.Interval())
}

// Interval returns the nominal cycle interval.
func (o *Orchestrator) Interval() time.Duration {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.interval
}

// SetInterval changes the nominal and minimum intervals. Non-positive values
// are ignored.
func (o *Orchestrator) SetInterval(interval, minInterval time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if interval > 0 {
		o.interval = interval
	}
	if minInterval > 0 {
		o.minInterval = minInterval
	}
	if o.minInterval > o.interval {
		o.minInterval = o.interval
	}
}

// SetBreakerConfig replaces the circuit breaker thresholds. It takes effect
// at the next cycle.
func (o *Orchestrator) SetBreakerConfig(c BreakerConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.breaker = breaker{cfg: c}
}

// BreakerConfig returns the current circuit breaker thresholds.
func (o *Orchestrator) BreakerConfig() BreakerConfig {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.breaker.cfg
}

// Telemetry returns a snapshot of the loop's health counters.
func (o *Orchestrator) Telemetry() Telemetry {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.telemetry
}

// LastReport returns the most recent cycle report, or nil.
func (o *Orchestrator) LastReport() *Report {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.last
}

// GetLastQualityReport returns the most recent quality report, or nil.
func (o *Orchestrator) GetLastQualityReport() *quality.Report {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastQuality
}

// QualityReport implements drift.QualityProvider: the last cycle's report,
// or a fresh evaluation of the durable tier before the first cycle.
func (o *Orchestrator) QualityReport(ctx context.Context) (*quality.Report, error) {
	if r := o.GetLastQualityReport(); r != nil {
		return r, nil
	}
	return o.EvaluateQuality(ctx)
}

// EvaluateQuality scores the durable tier now without touching the cached
// report. It returns nil without an analyzer.
func (o *Orchestrator) EvaluateQuality(ctx context.Context) (*quality.Report, error) {
	if o.analyzer == nil {
		return nil, nil
	}
	return o.analyzer.EvaluateTier(ctx, o.tiers[len(o.tiers)-1], o.now().UTC())
}

// Tiers returns the tiers in promotion order.
func (o *Orchestrator) Tiers() []memory.Tier {
	return o.tiers
}
