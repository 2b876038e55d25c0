package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"execution-sim-go/internal/backtest"
	"execution-sim-go/internal/id"
	"execution-sim-go/journal"
	"execution-sim-go/risk"
)

func newNotchCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notch",
		Short: "Inspect the adaptive daily loss ladder",
	}

	var ledgerName string
	replay := &cobra.Command{
		Use:   "replay <daily_pnl.csv>",
		Short: "Replay a date,pnl series through the notch adjuster",
		Long: `replay 逐日把已实现盈亏记入账本并执行日终调档，打印每日的档位变化。
配置了 journal 时，从 --ledger 指定的快照继续，并在结束后写回。`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			days, err := backtest.LoadDailyPnL(f)
			f.Close()
			if err != nil {
				return err
			}

			j, err := a.openJournal()
			if err != nil {
				return err
			}
			if j != nil {
				defer j.Close()
			}
			ledger, err := restoreLedger(j, ledgerName, a.cfg.LedgerConfig())
			if err != nil {
				return err
			}
			adj, err := risk.NewNotchAdjuster(a.cfg.AdjusterConfig(), a.log)
			if err != nil {
				return err
			}
			out, err := backtest.Replay(adj, ledger, days)
			writeAdjustments(cmd.OutOrStdout(), out)
			if err != nil {
				return err
			}
			if j != nil {
				runID := id.New()
				for _, x := range out {
					if err := j.RecordNotch(runID, x); err != nil {
						return err
					}
				}
				if err := j.SaveLedger(ledgerName, ledger.State()); err != nil {
					return err
				}
			}
			return nil
		},
	}
	replay.Flags().StringVar(&ledgerName, "ledger", "main", "journal 中的账本快照名称")
	cmd.AddCommand(replay)
	return cmd
}

// restoreLedger journal 中有快照时从快照恢复，否则按配置新建。
func restoreLedger(j *journal.SQLite, name string, cfg risk.LedgerConfig) (*risk.Ledger, error) {
	if j == nil {
		return risk.NewLedger(cfg)
	}
	st, err := j.LoadLedger(name)
	if err != nil {
		if errors.Is(err, journal.ErrNotFound) {
			return risk.NewLedger(cfg)
		}
		return nil, err
	}
	return risk.RestoreLedger(cfg, st)
}

func writeAdjustments(out io.Writer, adj []risk.NotchAdjustment) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tPNL\tLIMIT\tRULE\tTIER\tREQUESTED\tINDEX\tNEW_LIMIT\tSTREAK")
	for _, a := range adj {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%s\t%.2f\t%+d\t%d→%d\t%.2f\t%d\n",
			a.Day.Format("2006-01-02"), a.DailyPnL, a.Limit, a.Reason, a.Tier,
			a.Requested, a.OldIndex, a.NewIndex, a.NewLimit, a.ProfitStreak)
	}
	_ = tw.Flush()
}
