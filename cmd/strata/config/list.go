package configcmder

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/strata/pkg/cliui"
	"github.com/papercomputeco/strata/pkg/config"
)

const listLongDesc string = `List configuration values.

Displays every configuration key and its effective value: the value from
config.toml in the .strata/ directory, or the default when the key is not
set there. An optional section name (for example "maintenance" or
"tiers.stm") limits the listing to keys under that section.

Examples:
  strata config list
  strata config list circuit_breaker`

const listShortDesc string = "List configuration values"

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [section]",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			section := ""
			if len(args) == 1 {
				section = args[0]
			}
			return runList(cmd.OutOrStdout(), configDir, section)
		},
	}

	return cmd
}

func runList(w io.Writer, configDir, section string) error {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	prefix := ""
	if section != "" {
		prefix = strings.TrimSuffix(section, ".") + "."
	}

	rows := [][]string{{"KEY", "VALUE"}}
	for _, key := range config.ValidConfigKeys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		value, _ := config.Value(cfg, key)
		if value == "" {
			rows = append(rows, []string{key, cliui.DimStyle.Render("<not set>")})
		} else {
			rows = append(rows, []string{key, strconv.Quote(value)})
		}
	}
	if len(rows) == 1 {
		return fmt.Errorf("no config keys under section %q", section)
	}

	if _, err := os.Stat(cfger.GetTarget()); err == nil {
		fmt.Fprintf(w, "\n  %s %s\n\n", cliui.DimStyle.Render("config file:"), cfger.GetTarget())
	} else {
		fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("no config file, showing defaults"))
	}
	cliui.Table(w, rows)
	fmt.Fprintln(w)

	return nil
}
