package api

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/strata/api/mcp"
	"github.com/papercomputeco/strata/pkg/logger"
)

// Server is the API server for triggering and inspecting maintenance.
type Server struct {
	config Config
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server. The maintainer is injected so the
// scheduler and the API drive the same orchestrator.
func NewServer(config Config, log *slog.Logger) (*Server, error) {
	if config.Maintainer == nil {
		return nil, errors.New("maintainer is required")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		logger: logger.OrNop(log).With("component", "api"),
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/maintenance/report", s.handleLastReport)
	app.Post("/maintenance/run", s.handleRunMaintenance)
	app.Get("/maintenance/telemetry", s.handleTelemetry)
	app.Get("/quality", s.handleQuality)
	app.Get("/drift", s.handleDrift)
	app.Post("/drift/check", s.handleDriftCheck)
	app.Get("/events", s.handleEvents)
	app.Get("/audit", s.handleAudit)
	app.Get("/memories/:tier/:id/similar", s.handleSimilar)
	app.Post("/memories/:tier/:id/:signal", s.handleSignal)

	if !config.NoMCP {
		mcpServer, err := mcp.NewServer(mcp.Config{
			Maintainer: config.Maintainer,
			Signals:    config.Signals,
			Logger:     s.logger,
		})
		if err != nil {
			return nil, err
		}
		app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// ShutdownWithTimeout stops accepting connections and waits up to timeout
// for in-flight requests, such as a manual cycle, before closing them.
func (s *Server) ShutdownWithTimeout(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}
