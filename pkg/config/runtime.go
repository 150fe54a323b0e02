package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/papercomputeco/strata/pkg/drift"
	"github.com/papercomputeco/strata/pkg/maintenance"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/quality"
	"github.com/papercomputeco/strata/pkg/strength"
	"github.com/papercomputeco/strata/pkg/tier"
)

// Validate reports settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains([]string{"inmemory", "sqlite", "postgres"}, c.Storage.Provider) {
		errs = append(errs, fmt.Errorf("unsupported storage provider %q", c.Storage.Provider))
	}
	if !slices.Contains([]string{"nop", "inmemory", "kafka"}, c.Events.Provider) {
		errs = append(errs, fmt.Errorf("unsupported events provider %q", c.Events.Provider))
	}
	if c.Events.Provider == "kafka" && len(c.Events.BrokerList()) == 0 {
		errs = append(errs, errors.New("kafka events require at least one broker"))
	}
	if !slices.Contains([]string{"", "inmemory", "sqlite-vec", "qdrant"}, c.VectorStore.Provider) {
		errs = append(errs, fmt.Errorf("unsupported vector store provider %q", c.VectorStore.Provider))
	}
	if !slices.Contains([]string{"inmemory", "sqlite"}, c.Audit.Provider) {
		errs = append(errs, fmt.Errorf("unsupported audit provider %q", c.Audit.Provider))
	}

	if err := c.Strength.Params().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("strength: %w", err))
	}
	if err := c.Quality.AnalyzerConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("quality: %w", err))
	}

	if c.Maintenance.Interval <= 0 {
		errs = append(errs, errors.New("maintenance.interval must be positive"))
	}
	if c.Drift.QualityCriticalThreshold > c.Drift.QualityAlertThreshold {
		errs = append(errs, errors.New("drift.quality_critical_threshold must not exceed drift.quality_alert_threshold"))
	}

	return errors.Join(errs...)
}

// Tier returns the policy section of the named tier.
func (t TiersConfig) Tier(name memory.TierName) TierConfig {
	switch name {
	case memory.TierShortTerm:
		return t.STM
	case memory.TierMediumTerm:
		return t.MTM
	default:
		return t.LTM
	}
}

// Policy converts the section into a tier.Policy.
func (t TierConfig) Policy() tier.Policy {
	return tier.Policy{
		TTL:                t.TTL,
		Capacity:           t.Capacity,
		PromoteAccessCount: t.PromoteAccessCount,
		PromoteImportance:  t.PromoteImportance,
		PromoteStrength:    t.PromoteStrength,
		PromoteMinAge:      t.PromoteMinAge,
		FailMaintenance:    t.FailMaintenance,
	}
}

// Params converts the section into strength.Params.
func (s StrengthConfig) Params() strength.Params {
	return strength.Params{
		MinStrength:               s.MinStrength,
		MaxStrength:               s.MaxStrength,
		BaselineStrength:          s.BaselineStrength,
		ImportanceWeight:          s.ImportanceWeight,
		PassiveHalfLife:           s.PassiveHalfLife,
		ReinforcementHalfLife:     s.ReinforcementHalfLife,
		StalenessHalfLife:         s.StalenessHalfLife,
		ReinforcementScale:        s.ReinforcementScale,
		ReinforcementUnit:         s.ReinforcementUnit,
		InitialReinforcement:      s.InitialReinforcement,
		MaxReinforcementLevel:     s.MaxReinforcementLevel,
		MaxReinforcementStep:      s.MaxReinforcementStep,
		MaxDecayPerCycle:          s.MaxDecayPerCycle,
		ManualDecayMultiplier:     s.ManualDecayMultiplier,
		ForgettingThreshold:       s.ForgettingThreshold,
		ForgettingImportanceShift: s.ForgettingImportanceShift,
	}
}

// AnalyzerConfig converts the section into a quality.Config.
func (q QualityConfig) AnalyzerConfig() quality.Config {
	return quality.Config{
		RedundancyThreshold: q.RedundancyThreshold,
		StaleAfter:          q.StaleAfter,
		MinClusterSize:      q.MinClusterSize,
		DriftAlertThreshold: q.DriftAlertThreshold,
		DriftTolerance:      q.DriftTolerance,
		MaxPairwiseItems:    q.MaxPairwiseItems,
	}
}

// BreakerConfig converts the section into a maintenance.BreakerConfig.
func (b CircuitBreakerConfig) BreakerConfig() maintenance.BreakerConfig {
	return maintenance.BreakerConfig{
		QueuedBacklogThreshold: b.QueuedBacklogThreshold,
		FailureThreshold:       b.FailureThreshold,
		Cooldown:               b.Cooldown,
	}
}

// MonitorConfig converts the section into a drift.Config. The caller wires
// the integrity checker, quality provider and publisher.
func (d DriftConfig) MonitorConfig() drift.Config {
	return drift.Config{
		Interval:                 d.Interval,
		DriftThreshold:           d.DriftThreshold,
		SampleSize:               d.SampleSize,
		MaxDrifted:               d.MaxDrifted,
		QualityAlertThreshold:    d.QualityAlertThreshold,
		QualityCriticalThreshold: d.QualityCriticalThreshold,
		MinScoreDelta:            d.MinScoreDelta,
	}
}

// BrokerList splits the comma separated broker list.
func (e EventsConfig) BrokerList() []string {
	var brokers []string
	for b := range strings.SplitSeq(e.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
