package config

import "time"

// Config represents the persistent strata configuration stored as config.toml
// in the .strata/ directory. The TOML layout uses sections for logical
// grouping.
type Config struct {
	Version        int                  `toml:"version"`
	Storage        StorageConfig        `toml:"storage"`
	Tiers          TiersConfig          `toml:"tiers"`
	Strength       StrengthConfig       `toml:"strength"`
	Maintenance    MaintenanceConfig    `toml:"maintenance"`
	CircuitBreaker CircuitBreakerConfig `toml:"circuit_breaker"`
	Quality        QualityConfig        `toml:"quality"`
	Drift          DriftConfig          `toml:"drift"`
	Events         EventsConfig         `toml:"events"`
	VectorStore    VectorStoreConfig    `toml:"vector_store"`
	Audit          AuditConfig          `toml:"audit"`
	API            APIConfig            `toml:"api"`
	Client         ClientConfig         `toml:"client"`
}

// StorageConfig selects the tier backend shared by all three tiers.
type StorageConfig struct {
	// Provider is one of "inmemory", "sqlite" or "postgres".
	Provider    string `toml:"provider,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// TiersConfig holds one policy section per tier.
type TiersConfig struct {
	STM TierConfig `toml:"stm"`
	MTM TierConfig `toml:"mtm"`
	LTM TierConfig `toml:"ltm"`
}

// TierConfig is the retention and promotion policy of one tier.
type TierConfig struct {
	TTL                time.Duration `toml:"ttl"`
	Capacity           int           `toml:"capacity"`
	PromoteAccessCount int           `toml:"promote_access_count"`
	PromoteImportance  float64       `toml:"promote_importance"`
	PromoteStrength    float64       `toml:"promote_strength"`
	PromoteMinAge      time.Duration `toml:"promote_min_age"`
	FailMaintenance    bool          `toml:"fail_maintenance"`
}

// StrengthConfig parameterizes the strength model of the mtm and ltm tiers.
type StrengthConfig struct {
	MinStrength               float64       `toml:"min_strength"`
	MaxStrength               float64       `toml:"max_strength"`
	BaselineStrength          float64       `toml:"baseline_strength"`
	ImportanceWeight          float64       `toml:"importance_weight"`
	PassiveHalfLife           time.Duration `toml:"passive_half_life"`
	ReinforcementHalfLife     time.Duration `toml:"reinforcement_half_life"`
	StalenessHalfLife         time.Duration `toml:"staleness_half_life"`
	ReinforcementScale        float64       `toml:"reinforcement_scale"`
	ReinforcementUnit         float64       `toml:"reinforcement_unit"`
	InitialReinforcement      float64       `toml:"initial_reinforcement"`
	MaxReinforcementLevel     float64       `toml:"max_reinforcement_level"`
	MaxReinforcementStep      float64       `toml:"max_reinforcement_step"`
	MaxDecayPerCycle          float64       `toml:"max_decay_per_cycle"`
	ManualDecayMultiplier     float64       `toml:"manual_decay_multiplier"`
	ForgettingThreshold       float64       `toml:"forgetting_threshold"`
	ForgettingImportanceShift float64       `toml:"forgetting_importance_shift"`
}

// MaintenanceConfig holds scheduler and worker pool settings.
type MaintenanceConfig struct {
	Enabled      bool          `toml:"enabled"`
	Interval     time.Duration `toml:"interval"`
	MinInterval  time.Duration `toml:"min_interval"`
	DrainTimeout time.Duration `toml:"drain_timeout"`
	BatchSize    int           `toml:"batch_size"`
	Workers      int           `toml:"workers"`
	QueueSize    int           `toml:"queue_size"`
	MaxTries     int           `toml:"max_tries"`
}

// CircuitBreakerConfig holds the maintenance circuit breaker thresholds.
type CircuitBreakerConfig struct {
	QueuedBacklogThreshold int           `toml:"queued_backlog_threshold"`
	FailureThreshold       int           `toml:"failure_threshold"`
	Cooldown               time.Duration `toml:"cooldown"`
}

// QualityConfig tunes the quality analyzer.
type QualityConfig struct {
	RedundancyThreshold float64       `toml:"redundancy_threshold"`
	StaleAfter          time.Duration `toml:"stale_after"`
	MinClusterSize      int           `toml:"min_cluster_size"`
	DriftAlertThreshold float64       `toml:"drift_alert_threshold"`
	DriftTolerance      float64       `toml:"drift_tolerance"`
	MaxPairwiseItems    int           `toml:"max_pairwise_items"`
}

// DriftConfig tunes the embedding drift monitor.
type DriftConfig struct {
	Enabled                  bool          `toml:"enabled"`
	Interval                 time.Duration `toml:"interval"`
	DriftThreshold           float64       `toml:"drift_threshold"`
	SampleSize               int           `toml:"sample_size"`
	MaxDrifted               int           `toml:"max_drifted"`
	QualityAlertThreshold    float64       `toml:"quality_alert_threshold"`
	QualityCriticalThreshold float64       `toml:"quality_critical_threshold"`
	MinScoreDelta            float64       `toml:"min_score_delta"`
}

// EventsConfig selects where maintenance events are published. The
// in-memory buffer backing the API's /events route is always kept.
type EventsConfig struct {
	// Provider is one of "nop", "inmemory" or "kafka".
	Provider   string `toml:"provider,omitempty"`
	Brokers    string `toml:"brokers,omitempty"`
	Topic      string `toml:"topic,omitempty"`
	BufferSize int    `toml:"buffer_size"`
}

// VectorStoreConfig holds vector index settings.
type VectorStoreConfig struct {
	// Provider is one of "", "inmemory", "sqlite-vec" or "qdrant".
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Port       int    `toml:"port"`
	APIKey     string `toml:"api_key,omitempty"`
	Collection string `toml:"collection,omitempty"`
	Dimensions int    `toml:"dimensions"`
}

// AuditConfig selects the audit sink.
type AuditConfig struct {
	// Provider is one of "inmemory" or "sqlite".
	Provider   string `toml:"provider,omitempty"`
	SQLitePath string `toml:"sqlite_path,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that talk to a running
// strata server. Values are full URLs (scheme + host + port).
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}
