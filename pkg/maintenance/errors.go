package maintenance

import "errors"

var (
	// ErrNoTiers is returned by NewOrchestrator without tiers to maintain.
	ErrNoTiers = errors.New("maintenance needs at least one tier")

	// ErrDrainTimeout is returned by Scheduler.Shutdown when the running
	// cycle outlives the drain timeout.
	ErrDrainTimeout = errors.New("maintenance cycle still running after drain timeout")

	// ErrSchedulerStopped is returned when starting a scheduler that was
	// already shut down.
	ErrSchedulerStopped = errors.New("maintenance scheduler stopped")
)
