package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"execution-sim-go/posttrade"
)

// ErrAuditRejected 审计结论为 REJECT
var ErrAuditRejected = errors.New("audit rejected")

func newAuditCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit [run-id]",
		Short: "Audit execution quality of a journaled backtest run",
		Long: `audit 读取 journal 中某次运行（默认最近一次）的成交与日终记录，检查：
NBBO±容忍内成交比例、中间价或更优成交比例、滑点压力下的盈亏因子、日亏损越限次数。
结论为 REJECT 时以非零状态退出。`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.close()

			j, err := a.openJournal()
			if err != nil {
				return err
			}
			if j == nil {
				return fmt.Errorf("audit requires a journal (--db or journal.path)")
			}
			defer j.Close()

			runID := ""
			if len(args) == 1 {
				runID = args[0]
			} else {
				run, err := j.LatestRun()
				if err != nil {
					return err
				}
				runID = run.RunID
			}
			rep, err := j.Audit(runID, a.cfg.Audit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s\n", runID)
			writeReport(cmd.OutOrStdout(), rep)
			if !rep.Approved {
				return ErrAuditRejected
			}
			return nil
		},
	}
}

func writeReport(out io.Writer, r posttrade.Report) {
	fmt.Fprintf(out, "audit: %s\n", r.Decision())
	fmt.Fprintf(out, "  fills %d  checked %d  within NBBO %.2f%%  mid-or-better %.2f%%\n",
		r.Fills, r.Checked, r.PctWithin, r.PctMidOrBetter)
	fmt.Fprintf(out, "  days %d  net %.2f  guardrail breaches %d\n", r.Days, r.NetPnL, len(r.Breaches))
	for _, s := range r.Stress {
		pf := "n/a"
		if s.Defined {
			pf = fmt.Sprintf("%.2f", s.ProfitFactor)
		}
		fmt.Fprintf(out, "  stress $%.2f/contract  pf %s (min %.2f)  net %.2f\n", s.Slippage, pf, s.Min, s.NetPnL)
	}
	for _, reason := range r.Reasons {
		fmt.Fprintf(out, "  - %s\n", reason)
	}
}
