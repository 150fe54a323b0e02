// Package quality scores the health of a memory corpus.
//
// An Analyzer looks at a snapshot of items and measures three things:
// near-duplicate text (redundancy), items nobody has read in a long time
// (staleness, including whole tag groups gone cold), and embeddings that sit
// far from the corpus centroid (drift). The composite score is
//
//	score = 1 - (0.4*redundancy_ratio + 0.4*stale_ratio + 0.2*drift_score)
//
// Analysis is read-only.
package quality

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/agext/levenshtein"

	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/vector"
)

const (
	redundancyWeight = 0.4
	staleWeight      = 0.4
	driftWeight      = 0.2
)

// thresholdSlack keeps pairs that sit exactly on the redundancy threshold
// inside the edit distance cutoff despite float rounding.
const thresholdSlack = 1e-9

// Analyzer evaluates item snapshots.
type Analyzer struct {
	cfg Config

	// similarity is read-only after NewAnalyzer; levenshtein clones it per
	// call.
	similarity *levenshtein.Params
}

// NewAnalyzer returns an Analyzer. Zero config fields take their defaults.
func NewAnalyzer(c Config) (*Analyzer, error) {
	c = c.withDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid quality config: %w", err)
	}
	return &Analyzer{
		cfg:        c,
		similarity: levenshtein.NewParams().MinScore(max(c.RedundancyThreshold-thresholdSlack, 0)),
	}, nil
}

// Similarity returns the normalized edit similarity of x and y, or 0 when
// the pair is below the redundancy threshold. The edit distance computation
// stops as soon as the pair can no longer reach the threshold.
func (a *Analyzer) Similarity(x, y string) float64 {
	return levenshtein.Similarity(x, y, a.similarity)
}

// Config returns the effective configuration.
func (a *Analyzer) Config() Config {
	return a.cfg
}

// EvaluateTier evaluates every item currently held by tier.
func (a *Analyzer) EvaluateTier(ctx context.Context, tier memory.Tier, now time.Time) (*Report, error) {
	items, err := tier.Query(ctx, memory.Filter{})
	if err != nil {
		return nil, fmt.Errorf("reading tier %s: %w", tier.Name(), err)
	}
	return a.Evaluate(items, now), nil
}

// Evaluate scores items as of now.
func (a *Analyzer) Evaluate(items []*memory.Item, now time.Time) *Report {
	r := &Report{
		EvaluatedAt:      now,
		FlaggedMemoryIDs: []string{},
		Alerts:           []Alert{},
	}
	r.Metrics.TotalItems = len(items)
	if len(items) == 0 {
		r.Score = 1
		return r
	}

	sorted := slices.Clone(items)
	slices.SortFunc(sorted, func(x, y *memory.Item) int { return strings.Compare(x.ID, y.ID) })

	flagged := make(map[string]struct{})
	flag := func(ids []string) {
		for _, id := range ids {
			flagged[id] = struct{}{}
		}
	}

	for _, alert := range a.redundancy(sorted, &r.Metrics) {
		r.Alerts = append(r.Alerts, alert)
		flag(alert.ItemIDs)
	}
	for _, alert := range a.staleness(sorted, now, &r.Metrics) {
		r.Alerts = append(r.Alerts, alert)
		flag(alert.ItemIDs)
	}
	if alert, ok := a.drift(sorted, &r.Metrics); ok {
		r.Alerts = append(r.Alerts, alert)
		flag(alert.ItemIDs)
	}

	for id := range flagged {
		r.FlaggedMemoryIDs = append(r.FlaggedMemoryIDs, id)
	}
	slices.Sort(r.FlaggedMemoryIDs)

	m := r.Metrics
	penalty := redundancyWeight*m.RedundancyRatio + staleWeight*m.StaleRatio + driftWeight*m.DriftScore
	r.Score = clamp01(1 - penalty)
	return r
}

// redundancy groups near-duplicate items into connected components of the
// similarity graph. RedundantItems counts the copies beyond the first of each
// group.
func (a *Analyzer) redundancy(items []*memory.Item, m *Metrics) []Alert {
	var candidates []*memory.Item
	var texts []string
	for _, item := range items {
		text := normalize(item.Content)
		if text == "" {
			continue
		}
		candidates = append(candidates, item)
		texts = append(texts, text)
		if len(candidates) == a.cfg.MaxPairwiseItems {
			break
		}
	}
	m.ComparedItems = len(candidates)

	uf := newUnionFind(len(candidates))
	for i := range candidates {
		for j := i + 1; j < len(candidates); j++ {
			if uf.find(i) == uf.find(j) {
				continue
			}
			if a.Similarity(texts[i], texts[j]) >= a.cfg.RedundancyThreshold {
				uf.union(i, j)
			}
		}
	}

	var alerts []Alert
	for _, group := range uf.groups() {
		if len(group) < 2 {
			continue
		}
		ids := make([]string, len(group))
		for k, idx := range group {
			ids[k] = candidates[idx].ID
		}
		m.RedundantItems += len(group) - 1
		alerts = append(alerts, Alert{
			Kind:     AlertRedundancy,
			Severity: SeverityWarning,
			ItemIDs:  ids,
			Detail:   fmt.Sprintf("%d items share near-identical content", len(ids)),
		})
	}
	m.RedundancyRatio = ratio(m.RedundantItems, m.TotalItems)
	return alerts
}

// staleness counts items unread for longer than StaleAfter and reports tags
// whose every item is stale.
func (a *Analyzer) staleness(items []*memory.Item, now time.Time, m *Metrics) []Alert {
	cutoff := now.Add(-a.cfg.StaleAfter)

	type group struct {
		ids   []string
		stale bool
	}
	byTag := make(map[string]*group)
	var tags []string

	for _, item := range items {
		touched := item.LastTouched()
		stale := !touched.IsZero() && touched.Before(cutoff)
		if stale {
			m.StaleItems++
		}
		for _, tag := range item.Tags {
			g, ok := byTag[tag]
			if !ok {
				g = &group{stale: true}
				byTag[tag] = g
				tags = append(tags, tag)
			}
			g.ids = append(g.ids, item.ID)
			g.stale = g.stale && stale
		}
	}
	m.StaleRatio = ratio(m.StaleItems, m.TotalItems)

	slices.Sort(tags)
	var alerts []Alert
	for _, tag := range tags {
		g := byTag[tag]
		if !g.stale || len(g.ids) < a.cfg.MinClusterSize {
			continue
		}
		m.StaleClusters++
		alerts = append(alerts, Alert{
			Kind:     AlertStaleCluster,
			Severity: SeverityInfo,
			ItemIDs:  g.ids,
			Detail:   fmt.Sprintf("all %d items tagged %q unread for over %s", len(g.ids), tag, a.cfg.StaleAfter),
		})
	}
	return alerts
}

// drift measures the cosine distance of each embedding to the centroid of
// the embeddings sharing the corpus's most common dimension.
func (a *Analyzer) drift(items []*memory.Item, m *Metrics) (Alert, bool) {
	dim := dominantDimension(items)
	if dim == 0 {
		return Alert{}, false
	}

	var embedded []*memory.Item
	centroid := make([]float32, dim)
	for _, item := range items {
		if len(item.Embedding) != dim {
			continue
		}
		embedded = append(embedded, item)
		for i, v := range item.Embedding {
			centroid[i] += v
		}
	}
	m.EmbeddedItems = len(embedded)
	if len(embedded) < 2 {
		return Alert{}, false
	}
	for i := range centroid {
		centroid[i] /= float32(len(embedded))
	}

	var (
		sum     float64
		counted int
		maxDist float64
		drifted []string
	)
	for _, item := range embedded {
		d, ok := vector.CosineDistance(item.Embedding, centroid)
		if !ok {
			continue
		}
		sum += d
		counted++
		maxDist = math.Max(maxDist, d)
		if d > a.cfg.DriftAlertThreshold {
			drifted = append(drifted, item.ID)
		}
	}
	if counted == 0 {
		return Alert{}, false
	}

	m.MeanDriftDistance = sum / float64(counted)
	m.DriftedItems = len(drifted)
	if a.cfg.DriftTolerance > 0 {
		m.DriftScore = math.Min(1, m.MeanDriftDistance/a.cfg.DriftTolerance)
	} else if m.MeanDriftDistance > 0 {
		m.DriftScore = 1
	}

	if len(drifted) == 0 {
		return Alert{}, false
	}
	severity := SeverityWarning
	if maxDist >= 2*a.cfg.DriftAlertThreshold {
		severity = SeverityCritical
	}
	return Alert{
		Kind:     AlertEmbeddingDrift,
		Severity: severity,
		ItemIDs:  drifted,
		Detail:   fmt.Sprintf("%d embeddings beyond %.2f of the centroid (max %.3f)", len(drifted), a.cfg.DriftAlertThreshold, maxDist),
	}, true
}

func dominantDimension(items []*memory.Item) int {
	counts := make(map[int]int)
	for _, item := range items {
		if n := len(item.Embedding); n > 0 {
			counts[n]++
		}
	}
	best, bestCount := 0, 0
	for dim, n := range counts {
		if n > bestCount || (n == bestCount && dim < best) {
			best, bestCount = dim, n
		}
	}
	return best
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
