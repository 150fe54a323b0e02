package memorycmder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/strata/pkg/cliui"
	"github.com/papercomputeco/strata/pkg/dotdir"
	"github.com/papercomputeco/strata/pkg/maintenance"
)

// errCycleFailed makes the command exit non-zero when a cycle reports
// tier failures. The report has already been printed.
var errCycleFailed = errors.New("maintenance cycle finished with errors")

type consolidateCommander struct {
	options
	triggeredBy string
}

const consolidateLongDesc string = `Run one maintenance cycle now and print its report.

A cycle promotes eligible memories stm -> mtm -> ltm, cleans up and decays
every tier, and scores the long-term tier. If a scheduled cycle is running
the request waits for it to finish. The circuit breaker still applies: when
it is open, consolidation is skipped and the report says why.

The command exits non-zero when any tier failed.

Examples:
  strata memory consolidate
  strata memory consolidate --api-target http://strata:8090
  strata memory consolidate --local --sqlite ./strata.db
  strata memory consolidate --json`

const consolidateShortDesc string = "Run one maintenance cycle"

func newConsolidateCmd() *cobra.Command {
	cmder := &consolidateCommander{}

	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: consolidateShortDesc,
		Long:  consolidateLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.prepare(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context())
		},
	}

	cmder.addFlags(cmd)
	cmd.Flags().StringVar(&cmder.triggeredBy, "triggered-by", "cli", "Label recorded as the cycle's trigger")

	return cmd
}

func (c *consolidateCommander) run(ctx context.Context) error {
	var (
		report *maintenance.Report
		err    error
	)
	if c.local {
		report, err = c.runLocal(ctx)
	} else {
		report, err = c.runRemote(ctx)
	}
	if err != nil {
		return err
	}

	if c.jsonOut {
		if err := c.printJSON(report); err != nil {
			return err
		}
	} else {
		renderReport(c.out, report)
	}

	if report.Status == maintenance.StatusError {
		return errCycleFailed
	}
	return nil
}

func (c *consolidateCommander) runRemote(ctx context.Context) (*maintenance.Report, error) {
	report := &maintenance.Report{}
	query := url.Values{"triggered_by": {c.triggeredBy}}
	if err := c.client().do(ctx, http.MethodPost, "/maintenance/run", query, report); err != nil {
		return nil, err
	}
	return report, nil
}

func (c *consolidateCommander) runLocal(ctx context.Context) (*maintenance.Report, error) {
	eng, err := c.openEngine(ctx)
	if err != nil {
		return nil, err
	}
	defer eng.Close()

	var report *maintenance.Report
	run := func() error {
		report = eng.Orchestrator.RunCycle(ctx, c.triggeredBy)
		if report.Status == maintenance.StatusError {
			return errCycleFailed
		}
		return nil
	}
	if c.jsonOut {
		_ = run()
	} else {
		_ = cliui.Step(c.out, "Running maintenance cycle", run)
	}

	if err := dotdir.NewManager().SaveLastReport(report, c.configDir); err != nil {
		return nil, fmt.Errorf("caching report: %w", err)
	}
	return report, nil
}
