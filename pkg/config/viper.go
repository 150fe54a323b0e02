package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/papercomputeco/strata/pkg/dotdir"
	"github.com/papercomputeco/strata/pkg/logger"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the STRATA_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (STRATA_API_LISTEN, STRATA_MAINTENANCE_INTERVAL, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: STRATA_API_LISTEN, STRATA_STORAGE_SQLITE_PATH, etc.
	v.SetEnvPrefix("STRATA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper resolves every registered key through v's precedence chain into
// a Config and validates it.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := NewDefaultConfig()
	for _, k := range configKeyOrder {
		k.info.load(cfg, v, k.name)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// WatchConfig re-resolves the configuration whenever the config file
// backing v changes and hands the result to onChange. Changes that do not
// validate are logged and dropped. It is a no-op when v has no config file.
func WatchConfig(v *viper.Viper, log *slog.Logger, onChange func(*Config)) {
	if v.ConfigFileUsed() == "" {
		return
	}
	log = logger.OrNop(log).With("component", "config-watcher")

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := FromViper(v)
		if err != nil {
			log.Warn("ignoring config change", "file", e.Name, "error", err)
			return
		}
		log.Info("config reloaded", "file", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)
	for _, k := range configKeyOrder {
		v.SetDefault(k.name, k.info.value(d))
	}
}
