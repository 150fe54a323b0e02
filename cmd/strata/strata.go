// Package stratacmder
package stratacmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/strata/cmd/strata/config"
	initcmder "github.com/papercomputeco/strata/cmd/strata/init"
	memorycmder "github.com/papercomputeco/strata/cmd/strata/memory"
	servecmder "github.com/papercomputeco/strata/cmd/strata/serve"
	versioncmder "github.com/papercomputeco/strata/cmd/version"
)

const strataLongDesc string = `Strata keeps a tiered memory store healthy.

It promotes memories from short-term to medium-term to long-term storage,
decays and forgets what is no longer reinforced, scores the quality of the
long-term tier and watches the vector index for drift.

Run the engine using:
  strata serve                 Run the scheduler and the API server
  strata memory consolidate    Run one maintenance cycle now
  strata memory quality        Show the long-term quality report`

const strataShortDesc string = "Strata - tiered memory maintenance"

func NewStrataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "strata",
		Short:        strataShortDesc,
		Long:         strataLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .strata/ directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(memorycmder.NewMemoryCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
