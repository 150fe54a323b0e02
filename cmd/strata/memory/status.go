package memorycmder

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/strata/api"
	"github.com/papercomputeco/strata/pkg/cliui"
	"github.com/papercomputeco/strata/pkg/dotdir"
	"github.com/papercomputeco/strata/pkg/maintenance"
)

const statusLongDesc string = `Show circuit breaker telemetry and scheduling state of a running
strata server: cycle counters, consecutive failures, whether the breaker is
open, the current interval and when the next cycle fires.

Examples:
  strata memory status
  strata memory status --json`

const statusShortDesc string = "Show breaker telemetry and scheduling"

func newStatusCmd() *cobra.Command {
	cmder := &options{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.prepare(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmder.local {
				return errors.New("status reports a running server; --local is not supported")
			}
			resp := &api.TelemetryResponse{}
			if err := cmder.client().do(cmd.Context(), http.MethodGet, "/maintenance/telemetry", nil, resp); err != nil {
				return err
			}
			if cmder.jsonOut {
				return cmder.printJSON(resp)
			}
			renderTelemetry(cmder.out, resp)
			return nil
		},
	}

	cmder.addFlags(cmd)

	return cmd
}

type reportCommander struct {
	options
}

const reportLongDesc string = `Show the report of the last maintenance cycle.

Fetches the report from the running server. With --local the report cached
in the .strata/ directory is shown instead; "strata serve" writes it on
shutdown and "strata memory consolidate --local" after every run.

Examples:
  strata memory report
  strata memory report --local`

const reportShortDesc string = "Show the last cycle report"

func newReportCmd() *cobra.Command {
	cmder := &reportCommander{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: reportShortDesc,
		Long:  reportLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.prepare(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context())
		},
	}

	cmder.addFlags(cmd)

	return cmd
}

func (c *reportCommander) run(ctx context.Context) error {
	report := &maintenance.Report{}
	if c.local {
		found, err := dotdir.NewManager().LoadLastReport(report, c.configDir)
		if err != nil {
			return err
		}
		if !found {
			fmt.Fprintf(c.out, "\n  %s\n\n", cliui.DimStyle.Render("No cached report. Run \"strata memory consolidate --local\" first."))
			return nil
		}
	} else {
		err := c.client().do(ctx, http.MethodGet, "/maintenance/report", nil, report)
		if errors.Is(err, errNotFound) {
			fmt.Fprintf(c.out, "\n  %s\n\n", cliui.DimStyle.Render("No maintenance cycle has run yet."))
			return nil
		}
		if err != nil {
			return err
		}
	}

	if c.jsonOut {
		return c.printJSON(report)
	}
	renderReport(c.out, report)
	return nil
}
