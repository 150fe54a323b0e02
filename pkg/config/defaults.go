package config

import (
	"github.com/papercomputeco/strata/pkg/consolidation"
	"github.com/papercomputeco/strata/pkg/drift"
	"github.com/papercomputeco/strata/pkg/eventstream/inmemory"
	"github.com/papercomputeco/strata/pkg/maintenance"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/quality"
	"github.com/papercomputeco/strata/pkg/strength"
	"github.com/papercomputeco/strata/pkg/tier"
)

const (
	defaultStorageProvider = "sqlite"
	defaultEventsProvider  = "inmemory"
	defaultEventsTopic     = "strata.maintenance"
	defaultAuditProvider   = "inmemory"

	defaultAPIListen       = ":8090"
	defaultClientAPITarget = "http://localhost:8090"

	defaultVectorCollection = "strata"
	defaultVectorDimensions = 768
	defaultQdrantPort       = 6334

	defaultWorkers   = 4
	defaultQueueSize = 256
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	breaker := maintenance.DefaultBreakerConfig()
	q := quality.DefaultConfig()

	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Provider: defaultStorageProvider,
		},
		Tiers: TiersConfig{
			STM: tierConfigFrom(tier.DefaultPolicy(memory.TierShortTerm)),
			MTM: tierConfigFrom(tier.DefaultPolicy(memory.TierMediumTerm)),
			LTM: tierConfigFrom(tier.DefaultPolicy(memory.TierLongTerm)),
		},
		Strength: strengthConfigFrom(strength.DefaultParams()),
		Maintenance: MaintenanceConfig{
			Enabled:      true,
			Interval:     maintenance.DefaultInterval,
			MinInterval:  maintenance.DefaultMinInterval,
			DrainTimeout: maintenance.DefaultDrainTimeout,
			BatchSize:    maintenance.DefaultBatchSize,
			Workers:      defaultWorkers,
			QueueSize:    defaultQueueSize,
			MaxTries:     int(consolidation.DefaultMaxTries),
		},
		CircuitBreaker: CircuitBreakerConfig{
			QueuedBacklogThreshold: breaker.QueuedBacklogThreshold,
			FailureThreshold:       breaker.FailureThreshold,
			Cooldown:               breaker.Cooldown,
		},
		Quality: QualityConfig{
			RedundancyThreshold: q.RedundancyThreshold,
			StaleAfter:          q.StaleAfter,
			MinClusterSize:      q.MinClusterSize,
			DriftAlertThreshold: q.DriftAlertThreshold,
			DriftTolerance:      q.DriftTolerance,
			MaxPairwiseItems:    q.MaxPairwiseItems,
		},
		Drift: DriftConfig{
			Enabled:                  true,
			Interval:                 drift.DefaultInterval,
			DriftThreshold:           drift.DefaultDriftThreshold,
			SampleSize:               drift.DefaultSampleSize,
			QualityAlertThreshold:    drift.DefaultQualityAlertThreshold,
			QualityCriticalThreshold: drift.DefaultQualityCriticalThreshold,
			MinScoreDelta:            drift.DefaultMinScoreDelta,
		},
		Events: EventsConfig{
			Provider:   defaultEventsProvider,
			Topic:      defaultEventsTopic,
			BufferSize: inmemory.DefaultCapacity,
		},
		VectorStore: VectorStoreConfig{
			Port:       defaultQdrantPort,
			Collection: defaultVectorCollection,
			Dimensions: defaultVectorDimensions,
		},
		Audit: AuditConfig{
			Provider: defaultAuditProvider,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
	}
}

func tierConfigFrom(p tier.Policy) TierConfig {
	return TierConfig{
		TTL:                p.TTL,
		Capacity:           p.Capacity,
		PromoteAccessCount: p.PromoteAccessCount,
		PromoteImportance:  p.PromoteImportance,
		PromoteStrength:    p.PromoteStrength,
		PromoteMinAge:      p.PromoteMinAge,
		FailMaintenance:    p.FailMaintenance,
	}
}

func strengthConfigFrom(p strength.Params) StrengthConfig {
	return StrengthConfig{
		MinStrength:               p.MinStrength,
		MaxStrength:               p.MaxStrength,
		BaselineStrength:          p.BaselineStrength,
		ImportanceWeight:          p.ImportanceWeight,
		PassiveHalfLife:           p.PassiveHalfLife,
		ReinforcementHalfLife:     p.ReinforcementHalfLife,
		StalenessHalfLife:         p.StalenessHalfLife,
		ReinforcementScale:        p.ReinforcementScale,
		ReinforcementUnit:         p.ReinforcementUnit,
		InitialReinforcement:      p.InitialReinforcement,
		MaxReinforcementLevel:     p.MaxReinforcementLevel,
		MaxReinforcementStep:      p.MaxReinforcementStep,
		MaxDecayPerCycle:          p.MaxDecayPerCycle,
		ManualDecayMultiplier:     p.ManualDecayMultiplier,
		ForgettingThreshold:       p.ForgettingThreshold,
		ForgettingImportanceShift: p.ForgettingImportanceShift,
	}
}
