package cli

import (
	"context"
	"fmt"

	"github.com/rustyeddy/carry/job"
	"github.com/rustyeddy/carry/planner"
	"github.com/rustyeddy/carry/protect"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newAccumulateCmd(rc *RootConfig) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "accumulate",
		Short: "Buy today's share of the monthly budget",
		Long: `Split the monthly amount evenly over the weekdays of the month and buy one
basket with today's share, provided the account can carry it.

Examples:
  carry accumulate
  carry accumulate --paper --date 2024-10-01`,
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDate(date)
			if err != nil {
				return err
			}
			rt, err := rc.load(cmd.Context())
			if err != nil {
				return err
			}
			return rt.run(cmd.Context(), "accumulate", func(ctx context.Context, log *zap.Logger) (job.Report, error) {
				res, err := rt.accumulator("accumulate", log).Run(ctx, rt.cfg.Strategy.MonthlyAmount, day)
				return planReport(res), err
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to invest for (YYYY-MM-DD, default today UTC)")
	return cmd
}

func newCompoundCmd(rc *RootConfig) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "compound",
		Short: "Reinvest the financing credited since the last business day",
		Long: `Sum the DAILY_FINANCING transactions of the last business day (Friday
through Monday when run on a Monday) and buy a basket with the total.

Examples:
  carry compound
  carry compound --date 2024-09-30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseDate(date)
			if err != nil {
				return err
			}
			rt, err := rc.load(cmd.Context())
			if err != nil {
				return err
			}
			return rt.run(cmd.Context(), "compound", func(ctx context.Context, log *zap.Logger) (job.Report, error) {
				c := planner.NewCompounder(rt.accumulator("compound", log), rt.platform, rt.rec)
				res, err := c.Run(ctx, ref)
				return planReport(res), err
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "reference day (YYYY-MM-DD, default today UTC)")
	return cmd
}

func newProtectCmd(rc *RootConfig) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "protect",
		Short: "Close the worst trades while the maintenance ratio is under threshold",
		Long: `Check the maintenance ratio (NAV / margin used) and, while it is under the
protection threshold, close the worst trade of each instrument. Does nothing
outside the trading week or during the daily rollover.

Examples:
  carry protect
  carry protect --at 2024-10-02T12:00:00+09:00`,
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := parseAt(at)
			if err != nil {
				return err
			}
			rt, err := rc.load(cmd.Context())
			if err != nil {
				return err
			}
			return rt.run(cmd.Context(), "protect", func(ctx context.Context, log *zap.Logger) (job.Report, error) {
				p := protect.NewProtector(rt.platform, rt.universe.List(),
					protect.WithThreshold(rt.cfg.Protect.ThresholdPct),
					protect.WithTopN(rt.cfg.Protect.TopN),
					protect.WithSession(rt.session()),
					protect.WithLogger(log),
					protect.WithRecorder(rt.rec),
				)
				res, err := p.Run(ctx, now)
				return protectReport(res), err
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "instant to judge the session against (RFC3339, default now)")
	return cmd
}

func planReport(res planner.Result) job.Report {
	rep := job.Report{Status: string(res.Status)}
	switch res.Status {
	case planner.StatusSubmitted:
		rep.OK = true
		rep.Message = fmt.Sprintf("amount %s: %s", res.Amount.StringFixed(0), res.Basket)
	case planner.StatusNothingToInvest:
		rep.OK = true
		rep.Message = fmt.Sprintf("nothing to invest (amount %s)", res.Amount.String())
	case planner.StatusInsufficientMargin:
		rep.Message = res.Decision.Reason()
	}
	return rep
}

func protectReport(res protect.Result) job.Report {
	rep := job.Report{Status: res.State.String()}
	ratio := "n/a"
	if res.HasMaintenance {
		ratio = res.MaintenancePct.StringFixed(2) + "%"
	}
	switch res.State {
	case protect.Healthy:
		rep.OK = true
		rep.Message = fmt.Sprintf("ratio %s, closed %d", ratio, len(res.Closed))
	case protect.OutsideSession:
		rep.OK = true
		rep.Message = "outside trading session"
	case protect.Exhausted:
		if res.OpenTracked > 0 {
			rep.Message = fmt.Sprintf("ratio %s still under threshold, %s has no trades and %d remain open (closed %d)", ratio, res.BlockedOn, res.OpenTracked, len(res.Closed))
		} else {
			rep.Message = fmt.Sprintf("ratio %s still under threshold, nothing left to trim (closed %d)", ratio, len(res.Closed))
		}
	default:
		rep.Message = fmt.Sprintf("ratio %s, closed %d", ratio, len(res.Closed))
	}
	return rep
}
