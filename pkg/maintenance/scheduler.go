package maintenance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/papercomputeco/strata/pkg/drift"
	"github.com/papercomputeco/strata/pkg/logger"
)

// DefaultDrainTimeout bounds how long Shutdown waits for a running cycle.
const DefaultDrainTimeout = 30 * time.Second

// oneShot fires once at a fixed time. The cycle entry is replaced by a new
// oneShot after every run so the delay can follow the outcome of the cycle
// that just finished.
type oneShot struct {
	at time.Time
}

func (s oneShot) Next(t time.Time) time.Time {
	if t.Before(s.at) {
		return s.at
	}
	return time.Time{}
}

// Scheduler drives an Orchestrator, and optionally a drift Monitor, on a
// robfig/cron runner.
type Scheduler struct {
	orch    *Orchestrator
	monitor *drift.Monitor
	cron    *cron.Cron
	logger  *slog.Logger
	now     func() time.Time

	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	cycleEntry cron.EntryID
	started    bool
	stopped    bool
}

// NewScheduler returns a stopped Scheduler. monitor may be nil.
func NewScheduler(orch *Orchestrator, monitor *drift.Monitor, l *slog.Logger) *Scheduler {
	log := logger.OrNop(l).With("component", "scheduler")
	cl := cronLogger{logger: log}
	return &Scheduler{
		orch:    orch,
		monitor: monitor,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: log,
		now:    time.Now,
	}
}

// Start schedules the first cycle one interval from now and starts the drift
// monitor entry. Jobs run with a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerStopped
	}
	if s.started {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	s.scheduleCycleLocked(s.orch.Interval())
	if s.monitor != nil {
		s.cron.Schedule(cron.Every(s.monitor.Interval()), cron.FuncJob(s.checkDrift))
	}
	s.cron.Start()

	s.logger.Info("maintenance scheduler started",
		"interval", s.orch.Interval(),
		"drift_monitor", s.monitor != nil,
	)
	return nil
}

// NextCycleAt returns when the next scheduled cycle fires, or the zero time
// when none is scheduled.
func (s *Scheduler) NextCycleAt() time.Time {
	s.mu.Lock()
	id := s.cycleEntry
	s.mu.Unlock()
	if id == 0 {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// Shutdown stops scheduling new runs and waits up to drainTimeout for a
// running cycle. On timeout the cycle's context is cancelled and
// ErrDrainTimeout is returned.
func (s *Scheduler) Shutdown(drainTimeout time.Duration) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	if drainTimeout <= 0 {
		drainTimeout = DefaultDrainTimeout
	}

	stopCtx := s.cron.Stop()
	defer func() {
		if cancel != nil {
			cancel()
		}
	}()

	select {
	case <-stopCtx.Done():
		s.logger.Info("maintenance scheduler stopped")
		return nil
	case <-time.After(drainTimeout):
		s.logger.Warn("maintenance scheduler stop timed out waiting for running cycle", "drain_timeout", drainTimeout)
		return ErrDrainTimeout
	}
}

func (s *Scheduler) runCycle() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	s.orch.RunCycle(ctx, TriggerSchedule)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.scheduleCycleLocked(s.orch.NextDelay())
}

// scheduleCycleLocked replaces the cycle entry with one firing after delay.
// Callers hold mu.
func (s *Scheduler) scheduleCycleLocked(delay time.Duration) {
	if s.cycleEntry != 0 {
		s.cron.Remove(s.cycleEntry)
	}
	at := s.now().Add(delay)
	s.cycleEntry = s.cron.Schedule(oneShot{at: at}, cron.FuncJob(s.runCycle))
	s.logger.Debug("next maintenance cycle scheduled", "at", at, "delay", delay)
}

func (s *Scheduler) checkDrift() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if _, err := s.monitor.Check(ctx); err != nil {
		s.logger.Warn("drift check failed", "error", err)
	}
}

// cronLogger routes robfig/cron's logging onto slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
