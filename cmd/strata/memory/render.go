package memorycmder

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/strata/api"
	"github.com/papercomputeco/strata/pkg/cliui"
	"github.com/papercomputeco/strata/pkg/maintenance"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/quality"
	"github.com/papercomputeco/strata/pkg/tier"
	"github.com/papercomputeco/strata/pkg/utils"
)

const maxListedIDs = 5

func renderReport(w io.Writer, r *maintenance.Report) {
	fmt.Fprintf(w, "\n  %s %s  %s\n",
		cliui.HeaderStyle.Render("Maintenance cycle"),
		cliui.DimStyle.Render(r.CycleID),
		cliui.Badge(string(r.Status)),
	)
	fmt.Fprintf(w, "  %s %s   %s %s   %s %s\n\n",
		cliui.KeyStyle.Render("triggered by"), cliui.ValueStyle.Render(r.TriggeredBy),
		cliui.KeyStyle.Render("started"), cliui.ValueStyle.Render(r.StartedAt.Local().Format(time.DateTime)),
		cliui.KeyStyle.Render("took"), cliui.ValueStyle.Render(cliui.FormatDuration(r.Duration())),
	)

	c := r.Consolidation
	fmt.Fprintf(w, "  %s %s\n", cliui.HeaderStyle.Render("Consolidation"), cliui.Badge(string(c.Status)))
	if c.SkippedReason != nil {
		fmt.Fprintf(w, "  %s %s\n", cliui.DimStyle.Render("skipped:"), describeSkip(c.SkippedReason))
	}
	rows := [][]string{{"PAIR", "CANDIDATES", "PROMOTED", "DEDUPLICATED", "SKIPPED", "FAILED"}}
	for _, p := range c.Pairs {
		rows = append(rows, []string{
			string(p.Source) + " -> " + string(p.Target),
			strconv.Itoa(p.Candidates),
			strconv.Itoa(p.Promoted),
			strconv.Itoa(p.Deduplicated),
			strconv.Itoa(p.Skipped),
			strconv.Itoa(p.Failed),
		})
	}
	if len(rows) > 1 {
		cliui.Table(w, rows)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  %s\n", cliui.HeaderStyle.Render("Tiers"))
	tierRows := [][]string{{"TIER", "CLEANED", "DECAYED", "FORGOTTEN"}}
	for _, name := range memory.Tiers {
		cleaned, hasCleanup := r.Cleanup[name]
		decay, hasDecay := r.Decay[name]
		if !hasCleanup && !hasDecay {
			continue
		}
		tierRows = append(tierRows, []string{
			string(name),
			strconv.Itoa(cleaned),
			strconv.Itoa(decay.Updated),
			strconv.Itoa(decay.Forgotten),
		})
	}
	cliui.Table(w, tierRows)
	fmt.Fprintln(w)

	if r.Quality != nil {
		fmt.Fprintf(w, "  %s %s  %s\n\n",
			cliui.HeaderStyle.Render("Quality score"),
			cliui.ValueStyle.Render(fmt.Sprintf("%.3f", r.Quality.Score)),
			cliui.DimStyle.Render(fmt.Sprintf("%d alerts", len(r.Quality.Alerts))),
		)
	}

	if len(r.Errors) > 0 {
		fmt.Fprintf(w, "  %s\n", cliui.HeaderStyle.Render("Errors"))
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  %s %s %s %s\n",
				cliui.FailMark,
				cliui.KeyStyle.Render(string(e.Tier)),
				cliui.DimStyle.Render(string(e.Stage)),
				e.Error,
			)
		}
		fmt.Fprintln(w)
	}
}

func describeSkip(s *maintenance.SkipInfo) string {
	switch s.Reason {
	case maintenance.SkipReasonConsecutiveFailures:
		return fmt.Sprintf("circuit open after %d consecutive failures", s.ConsecutiveFailures)
	case maintenance.SkipReasonQueuedBacklog:
		parts := make([]string, 0, len(s.QueuedBacklog))
		for _, name := range memory.Tiers {
			if n, ok := s.QueuedBacklog[name]; ok {
				parts = append(parts, fmt.Sprintf("%s=%d", name, n))
			}
		}
		return "queued backlog " + strings.Join(parts, " ")
	default:
		return s.Reason
	}
}

func renderQuality(w io.Writer, r *quality.Report) {
	fmt.Fprintf(w, "\n  %s %s  %s\n\n",
		cliui.HeaderStyle.Render("Quality score"),
		cliui.ValueStyle.Render(fmt.Sprintf("%.3f", r.Score)),
		cliui.DimStyle.Render("evaluated "+r.EvaluatedAt.Local().Format(time.DateTime)),
	)

	m := r.Metrics
	cliui.Table(w, [][]string{
		{"METRIC", "VALUE"},
		{"items", strconv.Itoa(m.TotalItems)},
		{"redundant", fmt.Sprintf("%d (%.1f%%)", m.RedundantItems, m.RedundancyRatio*100)},
		{"stale", fmt.Sprintf("%d (%.1f%%)", m.StaleItems, m.StaleRatio*100)},
		{"stale clusters", strconv.Itoa(m.StaleClusters)},
		{"embedded", strconv.Itoa(m.EmbeddedItems)},
		{"mean drift", fmt.Sprintf("%.3f", m.MeanDriftDistance)},
	})
	fmt.Fprintln(w)

	if len(r.Alerts) == 0 {
		fmt.Fprintf(w, "  %s %s\n\n", cliui.SuccessMark, cliui.DimStyle.Render("no alerts"))
		return
	}

	alerts := slices.Clone(r.Alerts)
	slices.SortStableFunc(alerts, func(a, b quality.Alert) int {
		return severityRank(b.Severity) - severityRank(a.Severity)
	})
	fmt.Fprintf(w, "  %s\n", cliui.HeaderStyle.Render("Alerts"))
	for _, a := range alerts {
		fmt.Fprintf(w, "  %s %s %s\n",
			cliui.Badge(string(a.Severity)),
			cliui.KeyStyle.Render(string(a.Kind)),
			utils.Preview(a.Detail, 100),
		)
		if len(a.ItemIDs) > 0 {
			fmt.Fprintf(w, "    %s\n", cliui.DimStyle.Render(formatIDs(a.ItemIDs)))
		}
	}
	fmt.Fprintln(w)
}

func severityRank(s quality.Severity) int {
	switch s {
	case quality.SeverityCritical:
		return 2
	case quality.SeverityWarning:
		return 1
	default:
		return 0
	}
}

func formatIDs(ids []string) string {
	if len(ids) <= maxListedIDs {
		return strings.Join(ids, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(ids[:maxListedIDs], ", "), len(ids)-maxListedIDs)
}

func renderTelemetry(w io.Writer, t *api.TelemetryResponse) {
	breaker := cliui.Badge("closed")
	switch {
	case t.HalfOpen:
		breaker = cliui.Badge("half_open")
	case !t.OpenedAt.IsZero():
		breaker = cliui.Badge("circuit_open")
	}

	next := "not scheduled"
	if t.NextCycleAt != nil {
		next = t.NextCycleAt.Local().Format(time.DateTime)
	}
	last := "never"
	if !t.LastCycleAt.IsZero() {
		last = fmt.Sprintf("%s (%s)", t.LastCycleAt.Local().Format(time.DateTime), t.LastStatus)
	}

	fmt.Fprintf(w, "\n  %s %s\n\n", cliui.HeaderStyle.Render("Circuit breaker"), breaker)
	cliui.Table(w, [][]string{
		{"FIELD", "VALUE"},
		{"last cycle", last},
		{"next cycle", next},
		{"interval", t.Interval},
		{"next delay", t.NextDelay},
		{"successful cycles", strconv.Itoa(t.SuccessfulCycles)},
		{"failed cycles", strconv.Itoa(t.FailedCycles)},
		{"circuit open cycles", strconv.Itoa(t.CircuitOpenCycles)},
		{"consecutive failures", fmt.Sprintf("%d / %d", t.ConsecutiveFailures, t.Breaker.FailureThreshold)},
		{"backlog threshold", strconv.Itoa(t.Breaker.QueuedBacklogThreshold)},
		{"cooldown", t.Breaker.Cooldown.String()},
	})
	fmt.Fprintln(w)
}

// qualityMarkdown builds a markdown digest of a quality report.
func qualityMarkdown(r *quality.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Quality report\n\nScore **%.3f** over %d items, evaluated %s.\n\n",
		r.Score, r.Metrics.TotalItems, r.EvaluatedAt.Local().Format(time.DateTime))

	m := r.Metrics
	b.WriteString("| Metric | Value |\n| --- | --- |\n")
	fmt.Fprintf(&b, "| redundant | %d (%.1f%%) |\n", m.RedundantItems, m.RedundancyRatio*100)
	fmt.Fprintf(&b, "| stale | %d (%.1f%%) |\n", m.StaleItems, m.StaleRatio*100)
	fmt.Fprintf(&b, "| stale clusters | %d |\n", m.StaleClusters)
	fmt.Fprintf(&b, "| mean drift | %.3f |\n\n", m.MeanDriftDistance)

	if len(r.Alerts) == 0 {
		b.WriteString("No alerts.\n")
		return b.String()
	}

	alerts := slices.Clone(r.Alerts)
	slices.SortStableFunc(alerts, func(x, y quality.Alert) int {
		return severityRank(y.Severity) - severityRank(x.Severity)
	})
	b.WriteString("## Alerts\n\n")
	for _, a := range alerts {
		fmt.Fprintf(&b, "- **%s** `%s`: %s", a.Severity, a.Kind, utils.Preview(a.Detail, 100))
		if len(a.ItemIDs) > 0 {
			fmt.Fprintf(&b, " (%s)", formatIDs(a.ItemIDs))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderSignal(w io.Writer, res tier.SignalResult) {
	if res.Forgotten || res.Item == nil {
		fmt.Fprintf(w, "\n  %s %s  %s\n\n",
			cliui.HeaderStyle.Render(string(res.Signal)),
			cliui.DimStyle.Render(string(res.Tier)+"/"+res.ID),
			cliui.Badge("forgotten"),
		)
		return
	}
	fmt.Fprintf(w, "\n  %s %s  %s\n",
		cliui.HeaderStyle.Render(string(res.Signal)),
		cliui.DimStyle.Render(string(res.Tier)+"/"+res.ID),
		cliui.Badge("ok"),
	)
	fmt.Fprintf(w, "  %s %s   %s %s\n\n",
		cliui.KeyStyle.Render("accesses"), cliui.ValueStyle.Render(strconv.Itoa(res.Item.AccessCount)),
		cliui.KeyStyle.Render("strength"), cliui.ValueStyle.Render(fmt.Sprintf("%.3f", res.Item.Metadata.Strength)),
	)
}
