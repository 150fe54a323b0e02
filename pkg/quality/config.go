package quality

import (
	"errors"
	"time"
)

// Config tunes the analyzer. Zero fields take the defaults below.
type Config struct {
	// RedundancyThreshold is the normalized text similarity at or above which
	// two items count as duplicates.
	RedundancyThreshold float64 `toml:"redundancy_threshold" json:"redundancy_threshold"`

	// StaleAfter is how long an item may go unaccessed before it is stale.
	StaleAfter time.Duration `toml:"stale_after" json:"stale_after"`

	// MinClusterSize is the smallest tag group reported as a stale cluster.
	MinClusterSize int `toml:"min_cluster_size" json:"min_cluster_size"`

	// DriftAlertThreshold is the cosine distance from the centroid above
	// which an embedding is flagged.
	DriftAlertThreshold float64 `toml:"drift_alert_threshold" json:"drift_alert_threshold"`

	// DriftTolerance is the mean centroid distance that maps to a drift
	// score of 1.
	DriftTolerance float64 `toml:"drift_tolerance" json:"drift_tolerance"`

	// MaxPairwiseItems caps the quadratic redundancy scan.
	MaxPairwiseItems int `toml:"max_pairwise_items" json:"max_pairwise_items"`
}

const (
	DefaultRedundancyThreshold = 0.9
	DefaultStaleAfter          = 30 * 24 * time.Hour
	DefaultMinClusterSize      = 3
	DefaultDriftAlertThreshold = 0.35
	DefaultDriftTolerance      = 0.25
	DefaultMaxPairwiseItems    = 500
)

// DefaultConfig returns the default analyzer configuration.
func DefaultConfig() Config {
	return Config{
		RedundancyThreshold: DefaultRedundancyThreshold,
		StaleAfter:          DefaultStaleAfter,
		MinClusterSize:      DefaultMinClusterSize,
		DriftAlertThreshold: DefaultDriftAlertThreshold,
		DriftTolerance:      DefaultDriftTolerance,
		MaxPairwiseItems:    DefaultMaxPairwiseItems,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RedundancyThreshold == 0 {
		c.RedundancyThreshold = d.RedundancyThreshold
	}
	if c.StaleAfter == 0 {
		c.StaleAfter = d.StaleAfter
	}
	if c.MinClusterSize == 0 {
		c.MinClusterSize = d.MinClusterSize
	}
	if c.DriftAlertThreshold == 0 {
		c.DriftAlertThreshold = d.DriftAlertThreshold
	}
	if c.DriftTolerance == 0 {
		c.DriftTolerance = d.DriftTolerance
	}
	if c.MaxPairwiseItems == 0 {
		c.MaxPairwiseItems = d.MaxPairwiseItems
	}
	return c
}

// Validate reports out-of-range settings.
func (c Config) Validate() error {
	var errs []error
	if c.RedundancyThreshold < 0 || c.RedundancyThreshold > 1 {
		errs = append(errs, errors.New("redundancy_threshold must be in [0,1]"))
	}
	if c.StaleAfter < 0 {
		errs = append(errs, errors.New("stale_after must not be negative"))
	}
	if c.MinClusterSize < 0 {
		errs = append(errs, errors.New("min_cluster_size must not be negative"))
	}
	if c.DriftAlertThreshold < 0 || c.DriftAlertThreshold > 2 {
		errs = append(errs, errors.New("drift_alert_threshold must be in [0,2]"))
	}
	if c.DriftTolerance < 0 {
		errs = append(errs, errors.New("drift_tolerance must not be negative"))
	}
	if c.MaxPairwiseItems < 0 {
		errs = append(errs, errors.New("max_pairwise_items must not be negative"))
	}
	return errors.Join(errs...)
}
