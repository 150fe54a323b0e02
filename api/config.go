// Package api provides an HTTP API server for triggering and inspecting
// strata maintenance.
package api

import (
	"context"
	"time"

	"github.com/papercomputeco/strata/pkg/audit"
	"github.com/papercomputeco/strata/pkg/drift"
	"github.com/papercomputeco/strata/pkg/eventstream"
	"github.com/papercomputeco/strata/pkg/maintenance"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/quality"
	"github.com/papercomputeco/strata/pkg/tier"
	"github.com/papercomputeco/strata/pkg/vector"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8090")
	ListenAddr string

	// Maintainer runs and reports maintenance cycles. Required.
	Maintainer Maintainer

	// Scheduler reports when the next scheduled cycle is due. Optional.
	Scheduler Schedule

	// Monitor serves /drift. Optional.
	Monitor *drift.Monitor

	// Events serves /events. Optional.
	Events EventLog

	// Audit serves /audit. Optional.
	Audit *audit.Recorder

	// Signals serves /memories/:tier/:id/:signal. Optional.
	Signals Signaler

	// Neighbours serves /memories/:tier/:id/similar. Optional.
	Neighbours NeighbourFinder

	// NoMCP disables the /mcp route.
	NoMCP bool
}

// Maintainer is the slice of *maintenance.Orchestrator the API drives.
type Maintainer interface {
	RunCycle(ctx context.Context, triggeredBy string) *maintenance.Report
	LastReport() *maintenance.Report
	Telemetry() maintenance.Telemetry
	BreakerConfig() maintenance.BreakerConfig
	Interval() time.Duration
	NextDelay() time.Duration
	EvaluateQuality(ctx context.Context) (*quality.Report, error)
	GetLastQualityReport() *quality.Report
}

// Signaler sends access and strength signals to stored items. It is
// implemented by *engine.Engine.
type Signaler interface {
	Signal(ctx context.Context, name memory.TierName, signal tier.Signal, id string, amount float64) (tier.SignalResult, error)
}

// NeighbourFinder looks up memories with embeddings close to a stored one.
// It is implemented by *engine.Engine.
type NeighbourFinder interface {
	Similar(ctx context.Context, name memory.TierName, id string, topK int) ([]vector.QueryResult, error)
}

// Schedule is implemented by *maintenance.Scheduler.
type Schedule interface {
	NextCycleAt() time.Time
}

// EventLog is implemented by the in-memory event publisher.
type EventLog interface {
	Recent(limit int, eventType string) []*eventstream.Event
}
