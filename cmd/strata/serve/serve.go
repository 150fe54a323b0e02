// Package servecmder provides the serve command, which runs the maintenance
// scheduler, the drift monitor and the API server in one process.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/strata/api"
	"github.com/papercomputeco/strata/pkg/config"
	"github.com/papercomputeco/strata/pkg/dotdir"
	"github.com/papercomputeco/strata/pkg/engine"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/maintenance"
)

type ServeCommander struct {
	configDir string
	debug     bool
	jsonLogs  bool
	logFile   string
	noMCP     bool

	// Flag targets. Their values reach the engine through viper so that
	// flags, env vars and config.toml share one precedence chain.
	listen           string
	storageProvider  string
	sqlitePath       string
	postgresDSN      string
	eventsProvider   string
	kafkaBrokers     string
	kafkaTopic       string
	vectorProvider   string
	vectorTarget     string
	auditProvider    string
	auditSQLitePath  string
	batchSize        int
	workers          int
	backlogThreshold int

	interval      time.Duration
	minInterval   time.Duration
	drainTimeout  time.Duration
	driftInterval time.Duration

	viper  *viper.Viper
	cfg    *config.Config
	logger *slog.Logger
}

const serveLongDesc string = `Run the strata maintenance engine.

Starts the adaptive maintenance scheduler, the drift monitor and the API
server. Cycles promote memories between tiers, clean up and decay each tier,
and score the long-term tier. The API exposes the last report, breaker
telemetry, quality, drift and recent events, and can trigger a cycle on
demand. An MCP endpoint is served on /mcp unless --no-mcp is given.

Settings resolve in order: flags, STRATA_* environment variables, config.toml,
then defaults. Edits to config.toml that change intervals, circuit breaker
thresholds or tiers.*.fail_maintenance are applied without a restart.

Examples:
  strata serve
  strata serve --storage-provider postgres --postgres-dsn postgres://localhost/strata
  strata serve --interval 1m --events-provider kafka --kafka-brokers localhost:9092`

const serveShortDesc string = "Run the strata maintenance engine"

var serveFlags = []string{
	config.FlagAPIListen,
	config.FlagStorageProvider,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagInterval,
	config.FlagMinInterval,
	config.FlagDrainTimeout,
	config.FlagBatchSize,
	config.FlagWorkers,
	config.FlagEventsProvider,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagAuditProvider,
	config.FlagAuditSQLite,
	config.FlagDriftInterval,
	config.FlagBacklogThreshold,
}

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.loadConfig(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context())
		},
	}

	fs := config.Flags
	config.AddStringFlag(cmd, fs, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, fs, config.FlagStorageProvider, &cmder.storageProvider)
	config.AddStringFlag(cmd, fs, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, fs, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddDurationFlag(cmd, fs, config.FlagInterval, &cmder.interval)
	config.AddDurationFlag(cmd, fs, config.FlagMinInterval, &cmder.minInterval)
	config.AddDurationFlag(cmd, fs, config.FlagDrainTimeout, &cmder.drainTimeout)
	config.AddIntFlag(cmd, fs, config.FlagBatchSize, &cmder.batchSize)
	config.AddIntFlag(cmd, fs, config.FlagWorkers, &cmder.workers)
	config.AddStringFlag(cmd, fs, config.FlagEventsProvider, &cmder.eventsProvider)
	config.AddStringFlag(cmd, fs, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, fs, config.FlagKafkaTopic, &cmder.kafkaTopic)
	config.AddStringFlag(cmd, fs, config.FlagVectorStoreProv, &cmder.vectorProvider)
	config.AddStringFlag(cmd, fs, config.FlagVectorStoreTgt, &cmder.vectorTarget)
	config.AddStringFlag(cmd, fs, config.FlagAuditProvider, &cmder.auditProvider)
	config.AddStringFlag(cmd, fs, config.FlagAuditSQLite, &cmder.auditSQLitePath)
	config.AddDurationFlag(cmd, fs, config.FlagDriftInterval, &cmder.driftInterval)
	config.AddIntFlag(cmd, fs, config.FlagBacklogThreshold, &cmder.backlogThreshold)

	cmd.Flags().BoolVar(&cmder.jsonLogs, "log-json", false, "Write JSON logs instead of human-readable ones")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also append JSON logs to this file")
	cmd.Flags().BoolVar(&cmder.noMCP, "no-mcp", false, "Do not serve the MCP endpoint on /mcp")

	return cmd
}

// loadConfig resolves the effective configuration through viper.
func (c *ServeCommander) loadConfig(cmd *cobra.Command) error {
	v, err := config.InitViper(c.configDir)
	if err != nil {
		return err
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, serveFlags)

	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}

	c.viper = v
	c.cfg = cfg
	return nil
}

func (c *ServeCommander) run(ctx context.Context) error {
	closeLog, err := c.setupLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	ddm := dotdir.NewManager()
	dataDir, err := ddm.Target(c.configDir)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eng, err := engine.New(ctx, c.cfg, engine.Options{
		DataDir: dataDir,
		Logger:  c.logger,
	})
	if err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			c.logger.Warn("closing engine", "error", err)
		}
	}()

	server, err := api.NewServer(api.Config{
		ListenAddr: c.cfg.API.Listen,
		Maintainer: eng.Orchestrator,
		Scheduler:  eng.Scheduler,
		Monitor:    eng.Monitor,
		Events:     eng.Events,
		Audit:      eng.Audit,
		Signals:    eng,
		Neighbours: eng,
		NoMCP:      c.noMCP,
	}, c.logger)
	if err != nil {
		return fmt.Errorf("creating api server: %w", err)
	}

	if c.cfg.Maintenance.Enabled {
		if err := eng.Scheduler.Start(ctx); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
	} else {
		c.logger.Info("scheduled maintenance disabled, cycles run on demand only")
	}

	config.WatchConfig(c.viper, c.logger, eng.Apply)

	// Channel to capture errors from goroutines
	errChan := make(chan error, 1)

	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case runErr = <-errChan:
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	return errors.Join(runErr, c.shutdown(eng, server, ddm))
}

// setupLogger builds the console logger and, with --log-file, tees every
// record as JSON into that file.
func (c *ServeCommander) setupLogger() (func(), error) {
	console := logger.New(
		logger.WithDebug(c.debug),
		logger.WithSource(c.debug),
		logger.WithPretty(!c.jsonLogs),
		logger.WithJSON(c.jsonLogs),
	)
	if c.logFile == "" {
		c.logger = console
		return func() {}, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	file := logger.New(
		logger.WithDebug(c.debug),
		logger.WithJSON(true),
		logger.WithWriter(f),
	)
	c.logger = logger.Multi(console, file)
	return func() { _ = f.Close() }, nil
}

// shutdown refuses new cycles, stops the API server, then stops scheduling
// and waits for a running cycle up to the drain timeout. The last report is
// cached once nothing can start another cycle.
func (c *ServeCommander) shutdown(eng *engine.Engine, server *api.Server, ddm *dotdir.Manager) error {
	drain := c.cfg.Maintenance.DrainTimeout
	if drain <= 0 {
		drain = maintenance.DefaultDrainTimeout
	}

	var errs []error
	eng.Orchestrator.Stop()
	if err := server.ShutdownWithTimeout(drain); err != nil {
		errs = append(errs, fmt.Errorf("stopping api server: %w", err))
	}
	if err := eng.Scheduler.Shutdown(drain); err != nil {
		errs = append(errs, fmt.Errorf("stopping scheduler: %w", err))
	}

	if report := eng.Orchestrator.LastReport(); report != nil {
		if err := ddm.SaveLastReport(report, c.configDir); err != nil {
			c.logger.Warn("could not cache last report", "error", err)
		}
	}

	c.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
