package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// configKeyInfo describes how one dotted config key maps onto Config.
type configKeyInfo struct {
	get func(*Config) string
	set func(*Config, string) error

	// value returns the typed field value, used for viper defaults.
	value func(*Config) any

	// load copies the key's resolved viper value into the Config.
	load func(*Config, *viper.Viper, string)
}

type configKey struct {
	name string
	info configKeyInfo
}

// configKeyOrder lists every supported key in the order of the TOML
// section layout.
var configKeyOrder = []configKey{
	{"storage.provider", enumKey(func(c *Config) *string { return &c.Storage.Provider }, "inmemory", "sqlite", "postgres")},
	{"storage.sqlite_path", stringKey(func(c *Config) *string { return &c.Storage.SQLitePath })},
	{"storage.postgres_dsn", stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN })},

	{"tiers.stm.ttl", durationKey(func(c *Config) *time.Duration { return &c.Tiers.STM.TTL })},
	{"tiers.stm.capacity", intKey(func(c *Config) *int { return &c.Tiers.STM.Capacity })},
	{"tiers.stm.promote_access_count", intKey(func(c *Config) *int { return &c.Tiers.STM.PromoteAccessCount })},
	{"tiers.stm.promote_importance", floatKey(func(c *Config) *float64 { return &c.Tiers.STM.PromoteImportance })},
	{"tiers.stm.promote_strength", floatKey(func(c *Config) *float64 { return &c.Tiers.STM.PromoteStrength })},
	{"tiers.stm.promote_min_age", durationKey(func(c *Config) *time.Duration { return &c.Tiers.STM.PromoteMinAge })},
	{"tiers.stm.fail_maintenance", boolKey(func(c *Config) *bool { return &c.Tiers.STM.FailMaintenance })},
	{"tiers.mtm.ttl", durationKey(func(c *Config) *time.Duration { return &c.Tiers.MTM.TTL })},
	{"tiers.mtm.capacity", intKey(func(c *Config) *int { return &c.Tiers.MTM.Capacity })},
	{"tiers.mtm.promote_access_count", intKey(func(c *Config) *int { return &c.Tiers.MTM.PromoteAccessCount })},
	{"tiers.mtm.promote_importance", floatKey(func(c *Config) *float64 { return &c.Tiers.MTM.PromoteImportance })},
	{"tiers.mtm.promote_strength", floatKey(func(c *Config) *float64 { return &c.Tiers.MTM.PromoteStrength })},
	{"tiers.mtm.promote_min_age", durationKey(func(c *Config) *time.Duration { return &c.Tiers.MTM.PromoteMinAge })},
	{"tiers.mtm.fail_maintenance", boolKey(func(c *Config) *bool { return &c.Tiers.MTM.FailMaintenance })},
	{"tiers.ltm.ttl", durationKey(func(c *Config) *time.Duration { return &c.Tiers.LTM.TTL })},
	{"tiers.ltm.capacity", intKey(func(c *Config) *int { return &c.Tiers.LTM.Capacity })},
	{"tiers.ltm.fail_maintenance", boolKey(func(c *Config) *bool { return &c.Tiers.LTM.FailMaintenance })},

	{"strength.min_strength", floatKey(func(c *Config) *float64 { return &c.Strength.MinStrength })},
	{"strength.max_strength", floatKey(func(c *Config) *float64 { return &c.Strength.MaxStrength })},
	{"strength.baseline_strength", floatKey(func(c *Config) *float64 { return &c.Strength.BaselineStrength })},
	{"strength.importance_weight", floatKey(func(c *Config) *float64 { return &c.Strength.ImportanceWeight })},
	{"strength.passive_half_life", durationKey(func(c *Config) *time.Duration { return &c.Strength.PassiveHalfLife })},
	{"strength.reinforcement_half_life", durationKey(func(c *Config) *time.Duration { return &c.Strength.ReinforcementHalfLife })},
	{"strength.staleness_half_life", durationKey(func(c *Config) *time.Duration { return &c.Strength.StalenessHalfLife })},
	{"strength.reinforcement_scale", floatKey(func(c *Config) *float64 { return &c.Strength.ReinforcementScale })},
	{"strength.reinforcement_unit", floatKey(func(c *Config) *float64 { return &c.Strength.ReinforcementUnit })},
	{"strength.initial_reinforcement", floatKey(func(c *Config) *float64 { return &c.Strength.InitialReinforcement })},
	{"strength.max_reinforcement_level", floatKey(func(c *Config) *float64 { return &c.Strength.MaxReinforcementLevel })},
	{"strength.max_reinforcement_step", floatKey(func(c *Config) *float64 { return &c.Strength.MaxReinforcementStep })},
	{"strength.max_decay_per_cycle", floatKey(func(c *Config) *float64 { return &c.Strength.MaxDecayPerCycle })},
	{"strength.manual_decay_multiplier", floatKey(func(c *Config) *float64 { return &c.Strength.ManualDecayMultiplier })},
	{"strength.forgetting_threshold", floatKey(func(c *Config) *float64 { return &c.Strength.ForgettingThreshold })},
	{"strength.forgetting_importance_shift", floatKey(func(c *Config) *float64 { return &c.Strength.ForgettingImportanceShift })},

	{"maintenance.enabled", boolKey(func(c *Config) *bool { return &c.Maintenance.Enabled })},
	{"maintenance.interval", durationKey(func(c *Config) *time.Duration { return &c.Maintenance.Interval })},
	{"maintenance.min_interval", durationKey(func(c *Config) *time.Duration { return &c.Maintenance.MinInterval })},
	{"maintenance.drain_timeout", durationKey(func(c *Config) *time.Duration { return &c.Maintenance.DrainTimeout })},
	{"maintenance.batch_size", intKey(func(c *Config) *int { return &c.Maintenance.BatchSize })},
	{"maintenance.workers", intKey(func(c *Config) *int { return &c.Maintenance.Workers })},
	{"maintenance.queue_size", intKey(func(c *Config) *int { return &c.Maintenance.QueueSize })},
	{"maintenance.max_tries", intKey(func(c *Config) *int { return &c.Maintenance.MaxTries })},

	{"circuit_breaker.queued_backlog_threshold", intKey(func(c *Config) *int { return &c.CircuitBreaker.QueuedBacklogThreshold })},
	{"circuit_breaker.failure_threshold", intKey(func(c *Config) *int { return &c.CircuitBreaker.FailureThreshold })},
	{"circuit_breaker.cooldown", durationKey(func(c *Config) *time.Duration { return &c.CircuitBreaker.Cooldown })},

	{"quality.redundancy_threshold", floatKey(func(c *Config) *float64 { return &c.Quality.RedundancyThreshold })},
	{"quality.stale_after", durationKey(func(c *Config) *time.Duration { return &c.Quality.StaleAfter })},
	{"quality.min_cluster_size", intKey(func(c *Config) *int { return &c.Quality.MinClusterSize })},
	{"quality.drift_alert_threshold", floatKey(func(c *Config) *float64 { return &c.Quality.DriftAlertThreshold })},
	{"quality.drift_tolerance", floatKey(func(c *Config) *float64 { return &c.Quality.DriftTolerance })},
	{"quality.max_pairwise_items", intKey(func(c *Config) *int { return &c.Quality.MaxPairwiseItems })},

	{"drift.enabled", boolKey(func(c *Config) *bool { return &c.Drift.Enabled })},
	{"drift.interval", durationKey(func(c *Config) *time.Duration { return &c.Drift.Interval })},
	{"drift.drift_threshold", floatKey(func(c *Config) *float64 { return &c.Drift.DriftThreshold })},
	{"drift.sample_size", intKey(func(c *Config) *int { return &c.Drift.SampleSize })},
	{"drift.max_drifted", intKey(func(c *Config) *int { return &c.Drift.MaxDrifted })},
	{"drift.quality_alert_threshold", floatKey(func(c *Config) *float64 { return &c.Drift.QualityAlertThreshold })},
	{"drift.quality_critical_threshold", floatKey(func(c *Config) *float64 { return &c.Drift.QualityCriticalThreshold })},
	{"drift.min_score_delta", floatKey(func(c *Config) *float64 { return &c.Drift.MinScoreDelta })},

	{"events.provider", enumKey(func(c *Config) *string { return &c.Events.Provider }, "nop", "inmemory", "kafka")},
	{"events.brokers", stringKey(func(c *Config) *string { return &c.Events.Brokers })},
	{"events.topic", stringKey(func(c *Config) *string { return &c.Events.Topic })},
	{"events.buffer_size", intKey(func(c *Config) *int { return &c.Events.BufferSize })},

	{"vector_store.provider", enumKey(func(c *Config) *string { return &c.VectorStore.Provider }, "", "inmemory", "sqlite-vec", "qdrant")},
	{"vector_store.target", stringKey(func(c *Config) *string { return &c.VectorStore.Target })},
	{"vector_store.port", intKey(func(c *Config) *int { return &c.VectorStore.Port })},
	{"vector_store.api_key", stringKey(func(c *Config) *string { return &c.VectorStore.APIKey })},
	{"vector_store.collection", stringKey(func(c *Config) *string { return &c.VectorStore.Collection })},
	{"vector_store.dimensions", intKey(func(c *Config) *int { return &c.VectorStore.Dimensions })},

	{"audit.provider", enumKey(func(c *Config) *string { return &c.Audit.Provider }, "inmemory", "sqlite")},
	{"audit.sqlite_path", stringKey(func(c *Config) *string { return &c.Audit.SQLitePath })},

	{"api.listen", stringKey(func(c *Config) *string { return &c.API.Listen })},
	{"client.api_target", stringKey(func(c *Config) *string { return &c.Client.APITarget })},
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = indexKeys(configKeyOrder)

func indexKeys(keys []configKey) map[string]configKeyInfo {
	m := make(map[string]configKeyInfo, len(keys))
	for _, k := range keys {
		m[k.name] = k.info
	}
	return m
}

func stringKey(field func(*Config) *string) configKeyInfo {
	return configKeyInfo{
		get:   func(c *Config) string { return *field(c) },
		set:   func(c *Config, v string) error { *field(c) = v; return nil },
		value: func(c *Config) any { return *field(c) },
		load:  func(c *Config, v *viper.Viper, key string) { *field(c) = v.GetString(key) },
	}
}

func enumKey(field func(*Config) *string, allowed ...string) configKeyInfo {
	info := stringKey(field)
	info.set = func(c *Config, v string) error {
		if !slices.Contains(allowed, v) {
			return fmt.Errorf("invalid value %q (allowed: %s)", v, strings.Join(allowed, ", "))
		}
		*field(c) = v
		return nil
	}
	return info
}

func intKey(field func(*Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid integer %q: %w", v, err)
			}
			if n < 0 {
				return fmt.Errorf("invalid integer %q: must not be negative", v)
			}
			*field(c) = n
			return nil
		},
		value: func(c *Config) any { return *field(c) },
		load:  func(c *Config, v *viper.Viper, key string) { *field(c) = v.GetInt(key) },
	}
}

func floatKey(field func(*Config) *float64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatFloat(*field(c), 'f', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid number %q: %w", v, err)
			}
			*field(c) = f
			return nil
		},
		value: func(c *Config) any { return *field(c) },
		load:  func(c *Config, v *viper.Viper, key string) { *field(c) = v.GetFloat64(key) },
	}
}

func durationKey(field func(*Config) *time.Duration) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return field(c).String() },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid duration %q: %w", v, err)
			}
			if d < 0 {
				return fmt.Errorf("invalid duration %q: must not be negative", v)
			}
			*field(c) = d
			return nil
		},
		value: func(c *Config) any { return *field(c) },
		load:  func(c *Config, v *viper.Viper, key string) { *field(c) = v.GetDuration(key) },
	}
}

func boolKey(field func(*Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid boolean %q: %w", v, err)
			}
			*field(c) = b
			return nil
		},
		value: func(c *Config) any { return *field(c) },
		load:  func(c *Config, v *viper.Viper, key string) { *field(c) = v.GetBool(key) },
	}
}
