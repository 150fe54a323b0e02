package api

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/strata/pkg/maintenance"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/tier"
	"github.com/papercomputeco/strata/pkg/vector"
)

const (
	defaultListLimit    = 50
	maxListLimit        = 1000
	defaultSignalAmount = 1.0
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SimilarMemory is one neighbour returned by /memories/:tier/:id/similar.
type SimilarMemory struct {
	ID    string          `json:"id"`
	Tier  memory.TierName `json:"tier"`
	Score float32         `json:"score"`
}

// TelemetryResponse reports the scheduler state next to the breaker counters.
type TelemetryResponse struct {
	maintenance.Telemetry

	Interval    string                    `json:"interval"`
	NextDelay   string                    `json:"next_delay"`
	NextCycleAt *time.Time                `json:"next_cycle_at,omitempty"`
	Breaker     maintenance.BreakerConfig `json:"breaker"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleLastReport returns the report of the most recent cycle.
func (s *Server) handleLastReport(c *fiber.Ctx) error {
	report := s.config.Maintainer.LastReport()
	if report == nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "no maintenance cycle has run yet"})
	}
	return c.JSON(report)
}

// handleRunMaintenance runs one manual cycle and returns its report. The
// cycle runs even when the circuit breaker is open; the report says so.
// While the server shuts down the cycle is refused with 503.
func (s *Server) handleRunMaintenance(c *fiber.Ctx) error {
	triggeredBy := c.Query("triggered_by", maintenance.TriggerManual)

	s.logger.Info("manual maintenance requested", "triggered_by", triggeredBy)
	report := s.config.Maintainer.RunCycle(c.UserContext(), triggeredBy)

	status := fiber.StatusOK
	switch report.Status {
	case maintenance.StatusError:
		status = fiber.StatusMultiStatus
	case maintenance.StatusStopped:
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(report)
}

// handleTelemetry returns breaker telemetry and scheduling state.
func (s *Server) handleTelemetry(c *fiber.Ctx) error {
	m := s.config.Maintainer
	resp := TelemetryResponse{
		Telemetry: m.Telemetry(),
		Interval:  m.Interval().String(),
		NextDelay: m.NextDelay().String(),
		Breaker:   m.BreakerConfig(),
	}
	if s.config.Scheduler != nil {
		if next := s.config.Scheduler.NextCycleAt(); !next.IsZero() {
			resp.NextCycleAt = &next
		}
	}
	return c.JSON(resp)
}

// handleQuality returns the quality report of the last cycle, or evaluates
// a fresh one when ?fresh=true is given or no cycle has run yet.
func (s *Server) handleQuality(c *fiber.Ctx) error {
	if !c.QueryBool("fresh") {
		if report := s.config.Maintainer.GetLastQualityReport(); report != nil {
			return c.JSON(report)
		}
	}

	report, err := s.config.Maintainer.EvaluateQuality(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}
	if report == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "quality analysis is not configured"})
	}
	return c.JSON(report)
}

// handleDrift returns the most recent drift check.
func (s *Server) handleDrift(c *fiber.Ctx) error {
	if s.config.Monitor == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "drift monitoring is not configured"})
	}
	last := s.config.Monitor.Last()
	if last == nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "no drift check has run yet"})
	}
	return c.JSON(last)
}

// handleDriftCheck runs a drift check now.
func (s *Server) handleDriftCheck(c *fiber.Ctx) error {
	if s.config.Monitor == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "drift monitoring is not configured"})
	}
	res, err := s.config.Monitor.Check(c.UserContext())
	if err != nil {
		s.logger.Warn("drift check finished with errors", "error", err)
	}
	return c.JSON(res)
}

// handleEvents returns recently published events, oldest first.
// Query parameters:
//   - limit (optional, default 50): number of events to return
//   - type (optional): only return events of this type
func (s *Server) handleEvents(c *fiber.Ctx) error {
	if s.config.Events == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "event log is not configured"})
	}
	limit, err := parseLimit(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}
	return c.JSON(s.config.Events.Recent(limit, c.Query("type")))
}

// handleAudit returns recent audit entries.
func (s *Server) handleAudit(c *fiber.Ctx) error {
	if s.config.Audit == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "audit log is not configured"})
	}
	limit, err := parseLimit(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}
	entries, err := s.config.Audit.Entries(c.UserContext(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list audit entries"})
	}
	return c.JSON(entries)
}

// handleSignal sends a touch, reinforce or weaken signal to one item.
// Query parameters:
//   - amount (optional, default 1): signal strength, ignored by touch
func (s *Server) handleSignal(c *fiber.Ctx) error {
	if s.config.Signals == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "memory signals are not configured"})
	}

	name := memory.TierName(c.Params("tier"))
	if !name.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: fmt.Sprintf("unknown tier %q", name)})
	}
	amount := defaultSignalAmount
	if raw := c.Query("amount"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 || math.IsInf(v, 0) {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "amount must be a positive number"})
		}
		amount = v
	}

	res, err := s.config.Signals.Signal(c.UserContext(), name, tier.Signal(c.Params("signal")), c.Params("id"), amount)
	switch {
	case errors.Is(err, tier.ErrItemNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: err.Error()})
	case errors.Is(err, tier.ErrUnknownSignal), errors.Is(err, tier.ErrNoStrength):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	case err != nil:
		s.logger.Error("memory signal failed", "tier", name, "id", c.Params("id"), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to apply signal"})
	}
	return c.JSON(res)
}

// handleSimilar returns the indexed memories whose embeddings are closest to
// the given item's, most similar first.
// Query parameters:
//   - limit (optional, default 10): number of neighbours to return
func (s *Server) handleSimilar(c *fiber.Ctx) error {
	if s.config.Neighbours == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "similarity search is not configured"})
	}

	name := memory.TierName(c.Params("tier"))
	if !name.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: fmt.Sprintf("unknown tier %q", name)})
	}
	limit := vector.DefaultSimilarLimit
	if c.Query("limit") != "" {
		n, err := parseLimit(c)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
		}
		limit = n
	}

	results, err := s.config.Neighbours.Similar(c.UserContext(), name, c.Params("id"), limit)
	switch {
	case errors.Is(err, tier.ErrItemNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: err.Error()})
	case errors.Is(err, vector.ErrNoEmbedding):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	case errors.Is(err, vector.ErrNoIndex):
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: err.Error()})
	case err != nil:
		s.logger.Error("similarity search failed", "tier", name, "id", c.Params("id"), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to search similar memories"})
	}

	out := make([]SimilarMemory, 0, len(results))
	for _, r := range results {
		out = append(out, SimilarMemory{ID: r.ID, Tier: r.Tier, Score: r.Score})
	}
	return c.JSON(out)
}

func parseLimit(c *fiber.Ctx) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "limit must be a positive integer")
	}
	return min(n, maxListLimit), nil
}
