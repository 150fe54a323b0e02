package maintenance

import (
	"time"

	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/quality"
	"github.com/papercomputeco/strata/pkg/worker"
)

// Status is the terminal state of a cycle, or of its consolidation phase.
type Status string

const (
	StatusOK          Status = "ok"
	StatusError       Status = "error"
	StatusCircuitOpen Status = "circuit_open"

	// StatusCancelled marks a cycle whose context ended before it finished,
	// typically a scheduled cycle cut off by the shutdown drain timeout. It
	// does not count as a failure.
	StatusCancelled Status = "cancelled"

	// StatusStopped marks a cycle refused because the orchestrator is
	// shutting down. Nothing ran and nothing was recorded.
	StatusStopped Status = "stopped"

	// StatusDisabled marks a consolidation phase with nothing configured to
	// run (a single tier or no consolidator).
	StatusDisabled Status = "disabled"
)

// Stage names the part of a cycle a TierError came from.
type Stage string

const (
	StageConsolidation Stage = "consolidation"
	StageCleanup       Stage = "cleanup"
	StageDecay         Stage = "decay"
	StageQuality       Stage = "quality"
)

// TierError is a contained failure of one tier during one stage.
type TierError struct {
	Tier  memory.TierName `json:"tier"`
	Stage Stage           `json:"stage"`
	Error string          `json:"error"`
}

// SkipInfo says why the circuit breaker held consolidation back.
type SkipInfo struct {
	Reason              string                  `json:"reason"`
	QueuedBacklog       map[memory.TierName]int `json:"queued_backlog,omitempty"`
	ConsecutiveFailures int                     `json:"consecutive_failures,omitempty"`
}

const (
	SkipReasonQueuedBacklog       = "queued_backlog"
	SkipReasonConsecutiveFailures = "consecutive_failures"
)

// PairSummary counts consolidation outcomes for one source->target pair.
type PairSummary struct {
	Source       memory.TierName `json:"source"`
	Target       memory.TierName `json:"target"`
	Candidates   int             `json:"candidates"`
	Promoted     int             `json:"promoted"`
	Skipped      int             `json:"skipped"`
	Failed       int             `json:"failed"`
	Deduplicated int             `json:"deduplicated"`
}

// ConsolidationSummary aggregates the consolidation phase of a cycle.
type ConsolidationSummary struct {
	Status        Status        `json:"status"`
	Total         int           `json:"total"`
	Promoted      int           `json:"promoted"`
	Skipped       int           `json:"skipped"`
	Failed        int           `json:"failed"`
	Deduplicated  int           `json:"deduplicated"`
	Pairs         []PairSummary `json:"pairs"`
	SkippedReason *SkipInfo     `json:"skipped_reason,omitempty"`
}

func (c *ConsolidationSummary) add(p PairSummary) {
	c.Pairs = append(c.Pairs, p)
	c.Total += p.Candidates
	c.Promoted += p.Promoted
	c.Skipped += p.Skipped
	c.Failed += p.Failed
	c.Deduplicated += p.Deduplicated
}

// Report is the outcome of one maintenance cycle.
type Report struct {
	CycleID     string    `json:"cycle_id"`
	Status      Status    `json:"status"`
	TriggeredBy string    `json:"triggered_by"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`

	Backpressure  map[memory.TierName]worker.Load         `json:"backpressure"`
	Consolidation ConsolidationSummary                    `json:"consolidation"`
	Cleanup       map[memory.TierName]int                 `json:"cleanup"`
	Decay         map[memory.TierName]memory.DecaySummary `json:"decay"`
	Quality       *quality.Report                         `json:"quality,omitempty"`
	Telemetry     Telemetry                               `json:"telemetry"`
	Errors        []TierError                             `json:"errors"`
}

// Duration returns how long the cycle took.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Report) fail(tier memory.TierName, stage Stage, err error) {
	r.Errors = append(r.Errors, TierError{Tier: tier, Stage: stage, Error: err.Error()})
}
