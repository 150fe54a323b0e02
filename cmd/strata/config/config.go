// Package configcmder provides the config command for managing persistent
// strata configuration stored in the .strata/ directory.
package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/strata/pkg/cliui"
	"github.com/papercomputeco/strata/pkg/config"
)

const configLongDesc string = `Manage persistent strata configuration.

Configuration is stored as config.toml in the .strata/ directory and provides
default values for "strata serve" and the memory commands. CLI flags and
STRATA_* environment variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure, for example:
  storage.provider, storage.sqlite_path,
  tiers.stm.ttl, tiers.mtm.promote_strength, tiers.ltm.fail_maintenance,
  maintenance.interval, maintenance.min_interval, maintenance.workers,
  circuit_breaker.failure_threshold, circuit_breaker.cooldown,
  quality.redundancy_threshold, drift.interval,
  events.provider, events.brokers, vector_store.provider, api.listen

Run "strata config list" for every key.

Use subcommands to get, set, or list configuration values:
  strata config set <key> <value>    Set a configuration value
  strata config get <key>            Get a configuration value
  strata config list                 List all configuration values

Examples:
  strata config set maintenance.interval 10m
  strata config set events.provider kafka
  strata config get circuit_breaker.failure_threshold
  strata config list`

const configShortDesc string = "Manage persistent strata configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// completeKeys offers config keys for the first positional argument.
func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func printTarget(w io.Writer, cfger *config.Configer) {
	target := cfger.GetTarget()
	if target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
	} else {
		fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
	}
}

func unknownKey(key string) error {
	return fmt.Errorf("unknown config key: %q\n\nRun \"strata config list\" to see valid keys", key)
}
