package quality

import "time"

// AlertKind classifies a quality finding.
type AlertKind string

const (
	AlertRedundancy     AlertKind = "redundancy"
	AlertStaleCluster   AlertKind = "stale_cluster"
	AlertEmbeddingDrift AlertKind = "embedding_drift"
)

// Severity orders alerts for operators.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is one finding of an evaluation.
type Alert struct {
	Kind     AlertKind `json:"kind"`
	Severity Severity  `json:"severity"`
	ItemIDs  []string  `json:"item_ids"`
	Detail   string    `json:"detail"`
}

// Metrics are the raw measurements behind a Report's score.
type Metrics struct {
	TotalItems int `json:"total_items"`

	// ComparedItems is the number of items that took part in the pairwise
	// redundancy scan.
	ComparedItems   int     `json:"compared_items"`
	RedundantItems  int     `json:"redundant_items"`
	RedundancyRatio float64 `json:"redundancy_ratio"`

	StaleItems    int     `json:"stale_items"`
	StaleRatio    float64 `json:"stale_ratio"`
	StaleClusters int     `json:"stale_clusters"`

	EmbeddedItems     int     `json:"embedded_items"`
	MeanDriftDistance float64 `json:"mean_drift_distance"`
	DriftedItems      int     `json:"drifted_items"`
	DriftScore        float64 `json:"drift_score"`
}

// Report is a corpus health snapshot.
type Report struct {
	Score            float64   `json:"score"`
	Metrics          Metrics   `json:"metrics"`
	FlaggedMemoryIDs []string  `json:"flagged_memory_ids"`
	Alerts           []Alert   `json:"alerts"`
	EvaluatedAt      time.Time `json:"evaluated_at"`
}

// AlertsOf returns the alerts of the given kind.
func (r *Report) AlertsOf(kind AlertKind) []Alert {
	var out []Alert
	for _, a := range r.Alerts {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}
