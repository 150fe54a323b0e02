package maintenance

import (
	"time"

	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/worker"
)

const (
	DefaultQueuedBacklogThreshold = 50
	DefaultFailureThreshold       = 3
	DefaultCooldown               = 5 * time.Minute
)

// BreakerConfig holds the circuit breaker thresholds. A non-positive
// threshold disables that trip condition.
type BreakerConfig struct {
	// QueuedBacklogThreshold opens the breaker when any tier has at least
	// this many consolidation jobs queued, either now or at the peak reached
	// since the previous cycle's snapshot.
	QueuedBacklogThreshold int `json:"queued_backlog_threshold"`

	// FailureThreshold opens the breaker after this many consecutive failed
	// cycles.
	FailureThreshold int `json:"failure_threshold"`

	// Cooldown is how long a failure-opened breaker stays open before a
	// single trial cycle is admitted.
	Cooldown time.Duration `json:"cooldown"`
}

// DefaultBreakerConfig returns the default thresholds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		QueuedBacklogThreshold: DefaultQueuedBacklogThreshold,
		FailureThreshold:       DefaultFailureThreshold,
		Cooldown:               DefaultCooldown,
	}
}

// Telemetry is the health of the maintenance loop.
type Telemetry struct {
	ConsecutiveFailures int `json:"consecutive_failures"`
	SuccessfulCycles    int `json:"successful_cycles"`
	FailedCycles        int `json:"failed_cycles"`
	CircuitOpenCycles   int `json:"circuit_open_cycles"`
	CancelledCycles     int `json:"cancelled_cycles"`

	LastStatus  Status    `json:"last_status,omitempty"`
	LastCycleAt time.Time `json:"last_cycle_at,omitzero"`
	LastOpenAt  time.Time `json:"last_open_at,omitzero"`

	// OpenedAt is when the breaker last opened on consecutive failures. It
	// is zero while the breaker is closed.
	OpenedAt time.Time `json:"opened_at,omitzero"`

	// HalfOpen is set while a trial cycle runs after the cooldown.
	HalfOpen bool `json:"half_open,omitempty"`
}

// breaker decides whether consolidation may run. It owns no state; the
// orchestrator passes in telemetry and applies the returned changes.
type breaker struct {
	cfg BreakerConfig
}

type breakerDecision struct {
	open     bool
	skip     *SkipInfo
	halfOpen bool
}

func (b breaker) evaluate(load map[memory.TierName]worker.Load, t *Telemetry, now time.Time) breakerDecision {
	if b.cfg.QueuedBacklogThreshold > 0 {
		backlog := make(map[memory.TierName]int)
		for tier, l := range load {
			if n := l.Backlog(); n >= b.cfg.QueuedBacklogThreshold {
				backlog[tier] = n
			}
		}
		if len(backlog) > 0 {
			return breakerDecision{
				open: true,
				skip: &SkipInfo{Reason: SkipReasonQueuedBacklog, QueuedBacklog: backlog},
			}
		}
	}

	if b.cfg.FailureThreshold > 0 && t.ConsecutiveFailures >= b.cfg.FailureThreshold {
		if t.OpenedAt.IsZero() {
			t.OpenedAt = now
		}
		if now.Sub(t.OpenedAt) < b.cfg.Cooldown {
			return breakerDecision{
				open: true,
				skip: &SkipInfo{Reason: SkipReasonConsecutiveFailures, ConsecutiveFailures: t.ConsecutiveFailures},
			}
		}
		return breakerDecision{halfOpen: true}
	}

	return breakerDecision{}
}
