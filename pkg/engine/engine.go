// Package engine assembles the maintenance engine from a config.Config:
// storage backends and tiers, the consolidator and its worker pool, the
// quality analyzer, event publishers, the audit trail, the vector index, the
// drift monitor and the scheduler that drives them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/papercomputeco/strata/pkg/audit"
	auditsqlite "github.com/papercomputeco/strata/pkg/audit/sqlite"
	"github.com/papercomputeco/strata/pkg/config"
	"github.com/papercomputeco/strata/pkg/consolidation"
	"github.com/papercomputeco/strata/pkg/drift"
	"github.com/papercomputeco/strata/pkg/eventstream"
	"github.com/papercomputeco/strata/pkg/eventstream/inmemory"
	"github.com/papercomputeco/strata/pkg/eventstream/kafka"
	"github.com/papercomputeco/strata/pkg/eventstream/nop"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/maintenance"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/quality"
	"github.com/papercomputeco/strata/pkg/storage"
	storageutils "github.com/papercomputeco/strata/pkg/storage/utils"
	"github.com/papercomputeco/strata/pkg/strength"
	"github.com/papercomputeco/strata/pkg/tier"
	"github.com/papercomputeco/strata/pkg/vector"
	vectorutils "github.com/papercomputeco/strata/pkg/vector/utils"
	"github.com/papercomputeco/strata/pkg/worker"
)

const (
	storageDBFile = "strata.db"
	auditDBFile   = "audit.db"
	vectorDBFile  = "vectors.db"
)

// Options carries process-level settings that are not part of config.toml.
type Options struct {
	// DataDir is where relative sqlite databases default to. Usually the
	// resolved .strata/ directory.
	DataDir string

	Logger *slog.Logger
}

// Engine is a fully wired maintenance engine.
type Engine struct {
	Tiers        []*tier.Tier
	Pool         *worker.Pool
	Consolidator *consolidation.Consolidator
	Analyzer     *quality.Analyzer
	Orchestrator *maintenance.Orchestrator
	Monitor      *drift.Monitor
	Scheduler    *maintenance.Scheduler
	Audit        *audit.Recorder

	// Events keeps recent events for the API. Every event is also sent to
	// the configured external publisher.
	Events *inmemory.Publisher

	publisher eventstream.Publisher
	index     vector.Driver
	backends  []storage.Backend
	logger    *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// New builds an Engine from cfg. Nothing runs until Scheduler.Start is
// called. On error every resource opened so far is released.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	e := &Engine{
		logger: logger.OrNop(opts.Logger).With("component", "engine"),
	}
	if err := e.build(ctx, cfg, opts); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) build(ctx context.Context, cfg *config.Config, opts Options) error {
	log := logger.OrNop(opts.Logger)
	source := eventstream.DefaultSource()

	e.Events = inmemory.NewPublisher(cfg.Events.BufferSize)
	external, err := newPublisher(cfg.Events, log)
	if err != nil {
		return fmt.Errorf("creating event publisher: %w", err)
	}
	e.publisher = eventstream.Multi(e.Events, external)

	sink, err := newAuditSink(cfg.Audit, opts.DataDir)
	if err != nil {
		return fmt.Errorf("creating audit sink: %w", err)
	}
	e.Audit = audit.NewRecorder(sink, audit.WithLogger(log))

	e.index, err = vectorutils.NewVectorDriver(ctx, &vectorutils.NewVectorDriverOpts{
		ProviderType: cfg.VectorStore.Provider,
		Target:       dataPath(cfg.VectorStore.Target, opts.DataDir, vectorDBFile, cfg.VectorStore.Provider == "sqlite-vec"),
		Port:         cfg.VectorStore.Port,
		APIKey:       cfg.VectorStore.APIKey,
		Collection:   cfg.VectorStore.Collection,
		Dimensions:   uint(cfg.VectorStore.Dimensions),
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("creating vector index: %w", err)
	}

	model, err := strength.NewModel(cfg.Strength.Params())
	if err != nil {
		return fmt.Errorf("creating strength model: %w", err)
	}

	tiers := make([]memory.Tier, 0, len(memory.Tiers))
	for _, name := range memory.Tiers {
		t, err := e.buildTier(ctx, cfg, opts, name, model, log)
		if err != nil {
			return err
		}
		e.Tiers = append(e.Tiers, t)
		tiers = append(tiers, t)
	}

	e.Pool, err = worker.NewPool(&worker.Config{
		NumWorkers: uint(max(cfg.Maintenance.Workers, 0)),
		QueueSize:  uint(max(cfg.Maintenance.QueueSize, 0)),
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}

	e.Consolidator = consolidation.NewConsolidator(consolidation.Config{
		Audit:     e.Audit,
		Publisher: e.publisher,
		Source:    source,
		MaxTries:  uint(max(cfg.Maintenance.MaxTries, 0)),
		Logger:    log,
	})

	e.Analyzer, err = quality.NewAnalyzer(cfg.Quality.AnalyzerConfig())
	if err != nil {
		return fmt.Errorf("creating quality analyzer: %w", err)
	}

	e.Orchestrator, err = maintenance.NewOrchestrator(maintenance.Config{
		Tiers:        tiers,
		Consolidator: e.Consolidator,
		Pool:         e.Pool,
		Analyzer:     e.Analyzer,
		Publisher:    e.publisher,
		Source:       source,
		Breaker:      cfg.CircuitBreaker.BreakerConfig(),
		Interval:     cfg.Maintenance.Interval,
		MinInterval:  cfg.Maintenance.MinInterval,
		BatchSize:    cfg.Maintenance.BatchSize,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	if cfg.Drift.Enabled {
		mc := cfg.Drift.MonitorConfig()
		if e.index != nil {
			mc.Integrity = vector.NewIntegrityChecker(e.index, tiers...)
		}
		mc.Quality = e.Orchestrator
		mc.Publisher = e.publisher
		mc.Source = source
		mc.Logger = log
		e.Monitor, err = drift.NewMonitor(mc)
		if err != nil {
			return fmt.Errorf("creating drift monitor: %w", err)
		}
	}

	e.Scheduler = maintenance.NewScheduler(e.Orchestrator, e.Monitor, log)

	e.logger.Info("engine assembled",
		"storage", cfg.Storage.Provider,
		"events", cfg.Events.Provider,
		"audit", cfg.Audit.Provider,
		"vector_store", cfg.VectorStore.Provider,
		"drift_monitor", e.Monitor != nil,
	)
	return nil
}

func (e *Engine) buildTier(ctx context.Context, cfg *config.Config, opts Options, name memory.TierName, model *strength.Model, log *slog.Logger) (*tier.Tier, error) {
	backend, err := storageutils.NewBackend(ctx, &storageutils.NewBackendOpts{
		ProviderType: cfg.Storage.Provider,
		SQLitePath:   dataPath(cfg.Storage.SQLitePath, opts.DataDir, storageDBFile, cfg.Storage.Provider == "sqlite"),
		PostgresDSN:  cfg.Storage.PostgresDSN,
		Tier:         name,
	})
	if err != nil {
		return nil, fmt.Errorf("creating %s storage: %w", name, err)
	}
	e.backends = append(e.backends, backend)

	tc := tier.Config{
		Name:    name,
		Backend: backend,
		Policy:  cfg.Tiers.Tier(name).Policy(),
		Index:   e.index,
		Audit:   e.Audit,
		Logger:  log,
	}
	// The short-term tier expires by TTL instead of decaying.
	if name != memory.TierShortTerm {
		tc.Model = model
	}

	t, err := tier.New(tc)
	if err != nil {
		return nil, fmt.Errorf("creating %s tier: %w", name, err)
	}
	return t, nil
}

// Tier returns the tier with the given name, or nil.
func (e *Engine) Tier(name memory.TierName) *tier.Tier {
	for _, t := range e.Tiers {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

// Signal sends an access or strength signal to an item in the named tier.
func (e *Engine) Signal(ctx context.Context, name memory.TierName, signal tier.Signal, id string, amount float64) (tier.SignalResult, error) {
	t := e.Tier(name)
	if t == nil {
		return tier.SignalResult{}, fmt.Errorf("unknown tier %q", name)
	}
	res, err := t.Apply(ctx, signal, id, amount)
	if err != nil {
		return res, err
	}
	e.logger.Debug("applied signal", "tier", name, "id", id, "signal", signal, "forgotten", res.Forgotten)
	return res, nil
}

// Similar returns the indexed memories nearest to the embedding of item id
// in the named tier. Neighbours may live in any tier.
func (e *Engine) Similar(ctx context.Context, name memory.TierName, id string, topK int) ([]vector.QueryResult, error) {
	if e.index == nil {
		return nil, vector.ErrNoIndex
	}
	t := e.Tier(name)
	if t == nil {
		return nil, fmt.Errorf("unknown tier %q", name)
	}
	item, err := t.Retrieve(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%s in %s: %w", id, name, tier.ErrItemNotFound)
	}
	return vector.Similar(ctx, e.index, item, topK)
}

// Apply pushes the hot-reloadable parts of cfg into the running engine:
// cycle intervals, circuit breaker thresholds and per-tier fault injection.
// Everything else requires a restart.
func (e *Engine) Apply(cfg *config.Config) {
	e.Orchestrator.SetInterval(cfg.Maintenance.Interval, cfg.Maintenance.MinInterval)
	e.Orchestrator.SetBreakerConfig(cfg.CircuitBreaker.BreakerConfig())
	for _, t := range e.Tiers {
		t.SetFailMaintenance(cfg.Tiers.Tier(t.Name()).FailMaintenance)
	}
	e.logger.Info("applied config",
		"interval", cfg.Maintenance.Interval,
		"min_interval", cfg.Maintenance.MinInterval,
		"failure_threshold", cfg.CircuitBreaker.FailureThreshold,
	)
}

// Close drains the worker pool and releases every backend. It does not stop
// the scheduler; call Scheduler.Shutdown first.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		var errs []error
		if e.Pool != nil {
			e.Pool.Close()
		}
		for _, b := range e.backends {
			errs = append(errs, b.Close())
		}
		if e.index != nil {
			errs = append(errs, e.index.Close())
		}
		if e.Audit != nil {
			errs = append(errs, e.Audit.Close())
		}
		if e.publisher != nil {
			errs = append(errs, e.publisher.Close())
		}
		e.closeErr = errors.Join(errs...)
	})
	return e.closeErr
}

func newPublisher(c config.EventsConfig, log *slog.Logger) (eventstream.Publisher, error) {
	switch c.Provider {
	case "", "nop", "inmemory":
		return nop.NewPublisher(), nil
	case "kafka":
		return kafka.NewPublisher(kafka.Config{
			Brokers: c.BrokerList(),
			Topic:   c.Topic,
			Logger:  log,
		})
	default:
		return nil, fmt.Errorf("unsupported events provider: %s", c.Provider)
	}
}

func newAuditSink(c config.AuditConfig, dataDir string) (audit.Sink, error) {
	switch c.Provider {
	case "", "inmemory":
		return audit.NewMemorySink(), nil
	case "sqlite":
		return auditsqlite.NewSink(dataPath(c.SQLitePath, dataDir, auditDBFile, true))
	default:
		return nil, fmt.Errorf("unsupported audit provider: %s", c.Provider)
	}
}

// dataPath resolves a database path: explicit absolute paths win, relative
// ones are joined onto dataDir, and an empty path falls back to file inside
// dataDir when the provider needs one.
func dataPath(path, dataDir, file string, needed bool) string {
	switch {
	case path != "" && (filepath.IsAbs(path) || dataDir == ""):
		return path
	case path != "":
		return filepath.Join(dataDir, path)
	case needed && dataDir != "":
		return filepath.Join(dataDir, file)
	default:
		return path
	}
}
