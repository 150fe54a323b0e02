package memorycmder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/tier"
)

type signalCommander struct {
	options
	amount float64
}

const signalLongDesc string = `Send an access or strength signal to one stored memory.

  touch       count an access; frequently accessed memories are promoted
  reinforce   strengthen the memory by --amount
  weaken      lower its strength by --amount; weak memories are forgotten

Reinforce and weaken only apply to tiers that track strength (mtm, ltm).

Examples:
  strata memory signal touch stm 7f0c...
  strata memory signal reinforce mtm 7f0c... --amount 2
  strata memory signal weaken ltm 7f0c... --local --sqlite ./strata.db`

const signalShortDesc string = "Touch, reinforce or weaken a memory"

func newSignalCmd() *cobra.Command {
	cmder := &signalCommander{}

	cmd := &cobra.Command{
		Use:       "signal <touch|reinforce|weaken> <tier> <id>",
		Short:     signalShortDesc,
		Long:      signalLongDesc,
		Args:      cobra.ExactArgs(3),
		ValidArgs: []string{string(tier.SignalTouch), string(tier.SignalReinforce), string(tier.SignalWeaken)},
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.prepare(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), tier.Signal(args[0]), memory.TierName(args[1]), args[2])
		},
	}

	cmder.addFlags(cmd)
	cmd.Flags().Float64Var(&cmder.amount, "amount", 1, "Signal strength for reinforce and weaken")

	return cmd
}

func (c *signalCommander) run(ctx context.Context, signal tier.Signal, name memory.TierName, id string) error {
	if !slices.Contains(tier.Signals, signal) {
		return fmt.Errorf("unknown signal %q: want touch, reinforce or weaken", signal)
	}
	if !name.Valid() {
		return fmt.Errorf("unknown tier %q", name)
	}
	if c.amount <= 0 {
		return errors.New("--amount must be positive")
	}

	var (
		res tier.SignalResult
		err error
	)
	if c.local {
		res, err = c.signalLocal(ctx, signal, name, id)
	} else {
		query := url.Values{}
		query.Set("amount", strconv.FormatFloat(c.amount, 'f', -1, 64))
		path := "/memories/" + url.PathEscape(string(name)) + "/" + url.PathEscape(id) + "/" + string(signal)
		err = c.client().do(ctx, http.MethodPost, path, query, &res)
	}
	if err != nil {
		return err
	}

	if c.jsonOut {
		return c.printJSON(res)
	}
	renderSignal(c.out, res)
	return nil
}

func (c *signalCommander) signalLocal(ctx context.Context, signal tier.Signal, name memory.TierName, id string) (tier.SignalResult, error) {
	eng, err := c.openEngine(ctx)
	if err != nil {
		return tier.SignalResult{}, err
	}
	defer eng.Close()
	return eng.Signal(ctx, name, signal, id, c.amount)
}
