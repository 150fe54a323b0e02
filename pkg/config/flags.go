package config

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --sqlite
// on both "strata serve" and "strata memory quality").
type Flag struct {
	// Name is the long flag name (e.g. "storage-provider").
	Name string

	// Shorthand is the one-letter short flag (e.g. "s"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "storage.provider").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddIntFlag, AddDurationFlag
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagAPIListen        = "api-listen"
	FlagAPITarget        = "api-target"
	FlagStorageProvider  = "storage-provider"
	FlagSQLite           = "sqlite"
	FlagPostgresDSN      = "postgres-dsn"
	FlagInterval         = "interval"
	FlagMinInterval      = "min-interval"
	FlagDrainTimeout     = "drain-timeout"
	FlagBatchSize        = "batch-size"
	FlagWorkers          = "workers"
	FlagEventsProvider   = "events-provider"
	FlagKafkaBrokers     = "kafka-brokers"
	FlagKafkaTopic       = "kafka-topic"
	FlagVectorStoreProv  = "vector-store-provider"
	FlagVectorStoreTgt   = "vector-store-target"
	FlagAuditProvider    = "audit-provider"
	FlagAuditSQLite      = "audit-sqlite"
	FlagDriftInterval    = "drift-interval"
	FlagBacklogThreshold = "backlog-threshold"
)

// Flags is the registry shared by every strata command.
var Flags = FlagSet{
	FlagAPIListen:        {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for the API server to listen on"},
	FlagAPITarget:        {Name: "api-target", Shorthand: "a", ViperKey: "client.api_target", Description: "strata API server URL"},
	FlagStorageProvider:  {Name: "storage-provider", ViperKey: "storage.provider", Description: "Tier storage provider (inmemory, sqlite, postgres)"},
	FlagSQLite:           {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to the SQLite database"},
	FlagPostgresDSN:      {Name: "postgres-dsn", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string"},
	FlagInterval:         {Name: "interval", ViperKey: "maintenance.interval", Description: "Nominal interval between maintenance cycles"},
	FlagMinInterval:      {Name: "min-interval", ViperKey: "maintenance.min_interval", Description: "Lower bound of the backed-off cycle interval"},
	FlagDrainTimeout:     {Name: "drain-timeout", ViperKey: "maintenance.drain_timeout", Description: "How long shutdown waits for a running cycle"},
	FlagBatchSize:        {Name: "batch-size", ViperKey: "maintenance.batch_size", Description: "Promotion candidates fetched per tier pair per cycle"},
	FlagWorkers:          {Name: "workers", ViperKey: "maintenance.workers", Description: "Consolidation worker count"},
	FlagEventsProvider:   {Name: "events-provider", ViperKey: "events.provider", Description: "Event publisher (nop, inmemory, kafka)"},
	FlagKafkaBrokers:     {Name: "kafka-brokers", ViperKey: "events.brokers", Description: "Comma separated Kafka broker addresses"},
	FlagKafkaTopic:       {Name: "kafka-topic", ViperKey: "events.topic", Description: "Kafka topic for maintenance events"},
	FlagVectorStoreProv:  {Name: "vector-store-provider", ViperKey: "vector_store.provider", Description: "Vector index provider (inmemory, sqlite-vec, qdrant)"},
	FlagVectorStoreTgt:   {Name: "vector-store-target", ViperKey: "vector_store.target", Description: "Vector index database path or host"},
	FlagAuditProvider:    {Name: "audit-provider", ViperKey: "audit.provider", Description: "Audit sink (inmemory, sqlite)"},
	FlagAuditSQLite:      {Name: "audit-sqlite", ViperKey: "audit.sqlite_path", Description: "Path to the audit SQLite database"},
	FlagDriftInterval:    {Name: "drift-interval", ViperKey: "drift.interval", Description: "Interval between drift checks"},
	FlagBacklogThreshold: {Name: "backlog-threshold", ViperKey: "circuit_breaker.queued_backlog_threshold", Description: "Queued jobs per tier that open the circuit breaker"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddIntFlag registers an int flag on cmd from the given FlagSet.
func AddIntFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *int) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaults().GetInt(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().IntVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().IntVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddDurationFlag registers a duration flag on cmd from the given FlagSet.
func AddDurationFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *time.Duration) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaults().GetDuration(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().DurationVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().DurationVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

func defaults() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	return v
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	return defaults().GetString(viperKey)
}
