package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/strata/pkg/maintenance"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/quality"
	"github.com/papercomputeco/strata/pkg/tier"
)

var (
	runMaintenanceToolName    = "run_maintenance"
	runMaintenanceDescription = "Run one strata maintenance cycle now: promote qualifying memories between tiers, clean up and decay every tier, and evaluate memory quality. Returns a summary of the cycle."

	qualityReportToolName    = "quality_report"
	qualityReportDescription = "Report the quality of long-term memory: overall score, redundancy, stale clusters and embedding drift, with the ids of flagged memories."

	statusToolName    = "maintenance_status"
	statusDescription = "Report the health of the strata maintenance loop: consecutive failures, circuit breaker state and the delay until the next cycle."

	signalToolName    = "memory_signal"
	signalDescription = "Record that a stored memory was used or judged. touch counts an access, reinforce strengthens it and weaken lowers its strength until it is forgotten. Frequently touched or reinforced memories are promoted to long-term memory."
)

// RunMaintenanceInput represents the input arguments for the run_maintenance tool.
type RunMaintenanceInput struct {
	Reason string `json:"reason,omitempty" jsonschema:"why the cycle is being requested, recorded as the trigger"`
}

// RunMaintenanceOutput summarizes one cycle.
type RunMaintenanceOutput struct {
	CycleID       string   `json:"cycle_id"`
	Status        string   `json:"status"`
	TriggeredBy   string   `json:"triggered_by"`
	DurationMs    int64    `json:"duration_ms"`
	Promoted      int      `json:"promoted"`
	Skipped       int      `json:"skipped"`
	Failed        int      `json:"failed"`
	Deduplicated  int      `json:"deduplicated"`
	SkippedReason string   `json:"skipped_reason,omitempty"`
	CleanedUp     int      `json:"cleaned_up"`
	Forgotten     int      `json:"forgotten"`
	QualityScore  *float64 `json:"quality_score,omitempty"`
	Errors        []string `json:"errors"`
}

// QualityReportInput represents the input arguments for the quality_report tool.
type QualityReportInput struct {
	Fresh bool `json:"fresh,omitempty" jsonschema:"evaluate now instead of returning the report of the last cycle"`
}

// QualityAlert is one quality finding.
type QualityAlert struct {
	Kind     string   `json:"kind"`
	Severity string   `json:"severity"`
	Detail   string   `json:"detail"`
	ItemIDs  []string `json:"item_ids"`
}

// QualityReportOutput is the flattened quality report.
type QualityReportOutput struct {
	Score            float64        `json:"score"`
	TotalItems       int            `json:"total_items"`
	RedundancyRatio  float64        `json:"redundancy_ratio"`
	StaleRatio       float64        `json:"stale_ratio"`
	DriftScore       float64        `json:"drift_score"`
	FlaggedMemoryIDs []string       `json:"flagged_memory_ids"`
	Alerts           []QualityAlert `json:"alerts"`
	EvaluatedAt      string         `json:"evaluated_at"`
}

// StatusInput is empty; the status tool takes no arguments.
type StatusInput struct{}

// StatusOutput reports breaker telemetry.
type StatusOutput struct {
	LastStatus          string `json:"last_status"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	SuccessfulCycles    int    `json:"successful_cycles"`
	FailedCycles        int    `json:"failed_cycles"`
	CircuitOpenCycles   int    `json:"circuit_open_cycles"`
	CircuitOpen         bool   `json:"circuit_open"`
	HalfOpen            bool   `json:"half_open"`
	NextDelay           string `json:"next_delay"`
}

// SignalInput represents the input arguments for the memory_signal tool.
type SignalInput struct {
	Tier   string  `json:"tier" jsonschema:"tier holding the memory: stm, mtm or ltm"`
	ID     string  `json:"id" jsonschema:"id of the memory"`
	Signal string  `json:"signal" jsonschema:"one of touch, reinforce or weaken"`
	Amount float64 `json:"amount,omitempty" jsonschema:"signal strength for reinforce and weaken, defaults to 1"`
}

// SignalOutput reports the item's state after the signal.
type SignalOutput struct {
	Tier        string  `json:"tier"`
	ID          string  `json:"id"`
	Signal      string  `json:"signal"`
	Forgotten   bool    `json:"forgotten"`
	AccessCount int     `json:"access_count"`
	Strength    float64 `json:"strength"`
}

func (s *Server) handleRunMaintenance(ctx context.Context, _ *mcp.CallToolRequest, input RunMaintenanceInput) (*mcp.CallToolResult, RunMaintenanceOutput, error) {
	triggeredBy := "mcp"
	if input.Reason != "" {
		triggeredBy = "mcp: " + input.Reason
	}

	s.config.Logger.Debug("MCP maintenance request", "triggered_by", triggeredBy)
	report := s.config.Maintainer.RunCycle(ctx, triggeredBy)

	return textResult(summarizeReport(report))
}

func (s *Server) handleQualityReport(ctx context.Context, _ *mcp.CallToolRequest, input QualityReportInput) (*mcp.CallToolResult, QualityReportOutput, error) {
	var report *quality.Report
	if !input.Fresh {
		report = s.config.Maintainer.GetLastQualityReport()
	}
	if report == nil {
		var err error
		report, err = s.config.Maintainer.EvaluateQuality(ctx)
		if err != nil {
			s.config.Logger.Error("failed to evaluate quality", "error", err)
			return errorResult(fmt.Sprintf("Quality evaluation failed: %v", err)), QualityReportOutput{}, nil
		}
	}
	if report == nil {
		return errorResult("quality analysis is not configured"), QualityReportOutput{}, nil
	}

	return textResult(flattenQuality(report))
}

func (s *Server) handleStatus(_ context.Context, _ *mcp.CallToolRequest, _ StatusInput) (*mcp.CallToolResult, StatusOutput, error) {
	t := s.config.Maintainer.Telemetry()
	return textResult(StatusOutput{
		LastStatus:          string(t.LastStatus),
		ConsecutiveFailures: t.ConsecutiveFailures,
		SuccessfulCycles:    t.SuccessfulCycles,
		FailedCycles:        t.FailedCycles,
		CircuitOpenCycles:   t.CircuitOpenCycles,
		CircuitOpen:         !t.OpenedAt.IsZero(),
		HalfOpen:            t.HalfOpen,
		NextDelay:           s.config.Maintainer.NextDelay().String(),
	})
}

func (s *Server) handleSignal(ctx context.Context, _ *mcp.CallToolRequest, input SignalInput) (*mcp.CallToolResult, SignalOutput, error) {
	name := memory.TierName(input.Tier)
	if !name.Valid() {
		return errorResult(fmt.Sprintf("unknown tier %q", input.Tier)), SignalOutput{}, nil
	}
	amount := input.Amount
	if amount <= 0 {
		amount = 1
	}

	res, err := s.config.Signals.Signal(ctx, name, tier.Signal(input.Signal), input.ID, amount)
	if err != nil {
		return errorResult(fmt.Sprintf("Signal failed: %v", err)), SignalOutput{}, nil
	}

	out := SignalOutput{
		Tier:      string(res.Tier),
		ID:        res.ID,
		Signal:    string(res.Signal),
		Forgotten: res.Forgotten,
	}
	if res.Item != nil {
		out.AccessCount = res.Item.AccessCount
		out.Strength = res.Item.Metadata.Strength
	}
	return textResult(out)
}

// summarizeReport flattens a cycle report into tool output.
func summarizeReport(r *maintenance.Report) RunMaintenanceOutput {
	out := RunMaintenanceOutput{
		CycleID:      r.CycleID,
		Status:       string(r.Status),
		TriggeredBy:  r.TriggeredBy,
		DurationMs:   r.Duration().Milliseconds(),
		Promoted:     r.Consolidation.Promoted,
		Skipped:      r.Consolidation.Skipped,
		Failed:       r.Consolidation.Failed,
		Deduplicated: r.Consolidation.Deduplicated,
		Errors:       []string{},
	}
	if r.Consolidation.SkippedReason != nil {
		out.SkippedReason = r.Consolidation.SkippedReason.Reason
	}
	for _, n := range r.Cleanup {
		out.CleanedUp += n
	}
	for _, d := range r.Decay {
		out.Forgotten += d.Forgotten
	}
	if r.Quality != nil {
		score := r.Quality.Score
		out.QualityScore = &score
	}
	for _, e := range r.Errors {
		out.Errors = append(out.Errors, fmt.Sprintf("%s %s: %s", e.Tier, e.Stage, e.Error))
	}
	return out
}

// flattenQuality converts a quality report into tool output.
func flattenQuality(r *quality.Report) QualityReportOutput {
	out := QualityReportOutput{
		Score:            r.Score,
		TotalItems:       r.Metrics.TotalItems,
		RedundancyRatio:  r.Metrics.RedundancyRatio,
		StaleRatio:       r.Metrics.StaleRatio,
		DriftScore:       r.Metrics.DriftScore,
		FlaggedMemoryIDs: append([]string{}, r.FlaggedMemoryIDs...),
		Alerts:           make([]QualityAlert, 0, len(r.Alerts)),
		EvaluatedAt:      r.EvaluatedAt.UTC().Format(time.RFC3339),
	}
	for _, a := range r.Alerts {
		out.Alerts = append(out.Alerts, QualityAlert{
			Kind:     string(a.Kind),
			Severity: string(a.Severity),
			Detail:   a.Detail,
			ItemIDs:  append([]string{}, a.ItemIDs...),
		})
	}
	return out
}
