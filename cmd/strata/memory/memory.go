// Package memorycmder provides the memory command group: run a maintenance
// cycle, inspect the last report, breaker telemetry and quality, and send
// access signals to stored memories.
package memorycmder

import (
	"github.com/spf13/cobra"
)

const memoryLongDesc string = `Inspect and maintain the tiered memory store.

By default each subcommand talks to a running "strata serve" through its
API. Pass --local to open the configured storage directly and run in this
process instead, which is useful for sqlite-backed stores and cron jobs.

Use subcommands:
  strata memory consolidate    Run one maintenance cycle and print its report
  strata memory quality        Show the long-term tier quality report
  strata memory status         Show circuit breaker telemetry and scheduling
  strata memory report         Show the last cycle report
  strata memory signal         Touch, reinforce or weaken a memory`

const memoryShortDesc string = "Inspect and maintain the memory store"

func NewMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: memoryShortDesc,
		Long:  memoryLongDesc,
	}

	cmd.AddCommand(newConsolidateCmd())
	cmd.AddCommand(newQualityCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newReportCmd())
	cmd.AddCommand(newSignalCmd())

	return cmd
}
