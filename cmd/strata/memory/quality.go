package memorycmder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/strata/pkg/cliui"
	"github.com/papercomputeco/strata/pkg/quality"
)

type qualityCommander struct {
	options
	fresh    bool
	markdown bool
}

const qualityLongDesc string = `Show the quality report of the long-term tier.

The report scores redundancy (near-duplicate memories), staleness and
embedding drift, and lists the alerts raised for each. By default the report
from the last maintenance cycle is shown; --fresh evaluates the tier now.
--local always evaluates the tier now. --markdown prints a markdown digest
of the alerts, rendered for the terminal.

Examples:
  strata memory quality
  strata memory quality --fresh
  strata memory quality --local --json
  strata memory quality --markdown`

const qualityShortDesc string = "Show the long-term quality report"

func newQualityCmd() *cobra.Command {
	cmder := &qualityCommander{}

	cmd := &cobra.Command{
		Use:   "quality",
		Short: qualityShortDesc,
		Long:  qualityLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.prepare(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context())
		},
	}

	cmder.addFlags(cmd)
	cmd.Flags().BoolVar(&cmder.fresh, "fresh", false, "Evaluate the tier now instead of showing the last cycle's report")
	cmd.Flags().BoolVar(&cmder.markdown, "markdown", false, "Print the report as rendered markdown")

	return cmd
}

func (c *qualityCommander) run(ctx context.Context) error {
	var (
		report *quality.Report
		err    error
	)
	if c.local {
		report, err = c.evaluateLocal(ctx)
	} else {
		report = &quality.Report{}
		query := url.Values{}
		if c.fresh {
			query.Set("fresh", "true")
		}
		err = c.client().do(ctx, http.MethodGet, "/quality", query, report)
	}
	if err != nil {
		return err
	}

	switch {
	case c.jsonOut:
		return c.printJSON(report)
	case c.markdown:
		rendered, err := cliui.RenderMarkdown(qualityMarkdown(report))
		if err != nil {
			c.logger.Debug("markdown rendering failed, printing raw", "error", err)
		}
		fmt.Fprint(c.out, rendered)
		return nil
	default:
		renderQuality(c.out, report)
		return nil
	}
}

func (c *qualityCommander) evaluateLocal(ctx context.Context) (*quality.Report, error) {
	eng, err := c.openEngine(ctx)
	if err != nil {
		return nil, err
	}
	defer eng.Close()

	report, err := eng.Orchestrator.EvaluateQuality(ctx)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, errors.New("quality analysis is not configured")
	}
	return report, nil
}
