// Package drift watches for embedding drift between checks.
//
// A Monitor combines two signals: an integrity check comparing stored
// embeddings against the vector index, and the corpus quality score. It
// raises alerts when either crosses its threshold and publishes a
// strata.drift.detected event only when the set of alerts changes.
package drift

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/strata/pkg/eventstream"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/quality"
	"github.com/papercomputeco/strata/pkg/vector"
)

// IntegrityChecker compares stored embeddings with the vector index.
// *vector.IntegrityChecker satisfies it.
type IntegrityChecker interface {
	Check(ctx context.Context, threshold float64, sampleSize int) (*vector.IntegrityResult, error)
}

// QualityProvider supplies the quality report a check scores against.
type QualityProvider interface {
	QualityReport(ctx context.Context) (*quality.Report, error)
}

// QualityProviderFunc adapts a function to QualityProvider.
type QualityProviderFunc func(ctx context.Context) (*quality.Report, error)

// QualityReport implements QualityProvider.
func (f QualityProviderFunc) QualityReport(ctx context.Context) (*quality.Report, error) {
	return f(ctx)
}

// AlertKind classifies a drift alert.
type AlertKind string

const (
	AlertQualityDrift     AlertKind = "quality_drift"
	AlertVectorIndexDrift AlertKind = "vector_index_drift"
)

// Alert is one drift finding.
type Alert struct {
	Kind     AlertKind        `json:"kind"`
	Severity quality.Severity `json:"severity"`
	Detail   string           `json:"detail"`
	ItemIDs  []string         `json:"item_ids,omitempty"`
	Score    *float64         `json:"score,omitempty"`
}

// CheckResult is the outcome of one Monitor.Check.
type CheckResult struct {
	CheckedAt    time.Time               `json:"checked_at"`
	Integrity    *vector.IntegrityResult `json:"integrity,omitempty"`
	QualityScore *float64                `json:"quality_score,omitempty"`
	Alerts       []Alert                 `json:"alerts"`

	// Published reports whether this check emitted a drift event.
	Published bool `json:"published"`

	Errors []string `json:"errors,omitempty"`
}

const (
	DefaultInterval                 = 15 * time.Minute
	DefaultDriftThreshold           = 0.1
	DefaultSampleSize               = 100
	DefaultQualityAlertThreshold    = 0.7
	DefaultQualityCriticalThreshold = 0.5
	DefaultMinScoreDelta            = 0.05
)

// Config configures a Monitor.
type Config struct {
	// Interval is how often the scheduler runs Check.
	Interval time.Duration

	// DriftThreshold is the cosine distance past which an indexed embedding
	// counts as drifted.
	DriftThreshold float64
	SampleSize     int

	// MaxDrifted is the number of drifted items tolerated before a
	// vector_index_drift alert is raised.
	MaxDrifted int

	QualityAlertThreshold    float64
	QualityCriticalThreshold float64

	// MinScoreDelta is the score change needed to re-publish an otherwise
	// unchanged quality alert.
	MinScoreDelta float64

	Integrity IntegrityChecker
	Quality   QualityProvider
	Publisher eventstream.Publisher
	Source    eventstream.EventSource

	Logger *slog.Logger
	Clock  func() time.Time
}

// Monitor runs drift checks. It is safe for concurrent use; checks are
// serialised.
type Monitor struct {
	cfg    Config
	logger *slog.Logger

	mu                 sync.Mutex
	lastSignature      string
	lastPublishedScore *float64
	last               *CheckResult
}

// NewMonitor returns a Monitor with zero config fields defaulted.
func NewMonitor(c Config) (*Monitor, error) {
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.DriftThreshold == 0 {
		c.DriftThreshold = DefaultDriftThreshold
	}
	if c.SampleSize == 0 {
		c.SampleSize = DefaultSampleSize
	}
	if c.QualityAlertThreshold == 0 {
		c.QualityAlertThreshold = DefaultQualityAlertThreshold
	}
	if c.QualityCriticalThreshold == 0 {
		c.QualityCriticalThreshold = DefaultQualityCriticalThreshold
	}
	if c.MinScoreDelta == 0 {
		c.MinScoreDelta = DefaultMinScoreDelta
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Interval < 0 || c.MaxDrifted < 0 || c.SampleSize < 0 {
		return nil, errors.New("drift interval, sample size and max drifted must not be negative")
	}
	if c.QualityCriticalThreshold > c.QualityAlertThreshold {
		return nil, fmt.Errorf("quality critical threshold %.2f above alert threshold %.2f",
			c.QualityCriticalThreshold, c.QualityAlertThreshold)
	}

	return &Monitor{
		cfg:    c,
		logger: logger.OrNop(c.Logger).With("component", "drift-monitor"),
	}, nil
}

// Interval returns the configured check interval.
func (m *Monitor) Interval() time.Duration {
	return m.cfg.Interval
}

// Last returns the most recent check result, or nil before the first check.
func (m *Monitor) Last() *CheckResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Check runs the integrity check and the quality evaluation, raises alerts
// and publishes them when they differ from the last published set. Failures
// of either collaborator are reported in the result and the returned error;
// the other signal is still evaluated.
func (m *Monitor) Check(ctx context.Context) (*CheckResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := &CheckResult{CheckedAt: m.cfg.Clock().UTC(), Alerts: []Alert{}}
	var errs []error

	if m.cfg.Integrity != nil {
		integrity, err := m.cfg.Integrity.Check(ctx, m.cfg.DriftThreshold, m.cfg.SampleSize)
		if err != nil {
			errs = append(errs, fmt.Errorf("integrity check: %w", err))
		} else {
			res.Integrity = integrity
			if alert, ok := m.indexAlert(integrity); ok {
				res.Alerts = append(res.Alerts, alert)
			}
		}
	}

	if m.cfg.Quality != nil {
		report, err := m.cfg.Quality.QualityReport(ctx)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("quality report: %w", err))
		case report != nil:
			score := report.Score
			res.QualityScore = &score
			if alert, ok := m.qualityAlert(score); ok {
				res.Alerts = append(res.Alerts, alert)
			}
		}
	}

	for _, err := range errs {
		res.Errors = append(res.Errors, err.Error())
	}

	if m.changed(res) {
		m.publish(ctx, res)
	}
	m.last = res
	return res, errors.Join(errs...)
}

func (m *Monitor) indexAlert(r *vector.IntegrityResult) (Alert, bool) {
	if len(r.Drifted) <= m.cfg.MaxDrifted {
		return Alert{}, false
	}
	ids := slices.Clone(r.Drifted)
	slices.Sort(ids)

	severity := quality.SeverityWarning
	if r.Checked > 0 && len(r.Drifted)*2 >= r.Checked {
		severity = quality.SeverityCritical
	}
	return Alert{
		Kind:     AlertVectorIndexDrift,
		Severity: severity,
		ItemIDs:  ids,
		Detail: fmt.Sprintf("%d of %d sampled embeddings drifted from the index (max distance %.3f, %d missing)",
			len(r.Drifted), r.Checked, r.MaxDistance, len(r.Missing)),
	}, true
}

func (m *Monitor) qualityAlert(score float64) (Alert, bool) {
	if score >= m.cfg.QualityAlertThreshold {
		return Alert{}, false
	}
	severity := quality.SeverityWarning
	threshold := m.cfg.QualityAlertThreshold
	if score < m.cfg.QualityCriticalThreshold {
		severity = quality.SeverityCritical
		threshold = m.cfg.QualityCriticalThreshold
	}
	return Alert{
		Kind:     AlertQualityDrift,
		Severity: severity,
		Score:    &score,
		Detail:   fmt.Sprintf("quality score %.3f below %.2f", score, threshold),
	}, true
}

// changed reports whether res should be published and, if so, records it as
// the last published state. An empty alert set clears the state so a
// recurring condition fires again.
func (m *Monitor) changed(res *CheckResult) bool {
	sig := signature(res.Alerts)
	if len(res.Alerts) == 0 {
		m.lastSignature = ""
		m.lastPublishedScore = nil
		return false
	}

	var score *float64
	for _, a := range res.Alerts {
		if a.Kind == AlertQualityDrift {
			score = a.Score
		}
	}

	moved := score != nil && m.lastPublishedScore != nil &&
		math.Abs(*score-*m.lastPublishedScore) >= m.cfg.MinScoreDelta
	if sig == m.lastSignature && !moved {
		return false
	}

	m.lastSignature = sig
	m.lastPublishedScore = score
	return true
}

func (m *Monitor) publish(ctx context.Context, res *CheckResult) {
	res.Published = true
	m.logger.Warn("drift detected", "alerts", len(res.Alerts), "signature", m.lastSignature)
	if m.cfg.Publisher == nil {
		return
	}
	event := eventstream.NewEvent(eventstream.EventTypeDriftDetected, m.cfg.Source, res)
	if err := m.cfg.Publisher.Publish(ctx, event); err != nil {
		m.logger.Warn("publishing drift event failed", "error", err)
	}
}

// signature identifies an alert set by kind, severity and item ids. Scores
// and details are left out so jitter does not count as a new condition.
func signature(alerts []Alert) string {
	parts := make([]string, 0, len(alerts))
	for _, a := range alerts {
		parts = append(parts, fmt.Sprintf("%s/%s/%s", a.Kind, a.Severity, strings.Join(a.ItemIDs, ",")))
	}
	slices.Sort(parts)
	return strings.Join(parts, "|")
}
