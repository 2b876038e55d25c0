package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"execution-sim-go/infrastructure/alert"
	"execution-sim-go/infrastructure/monitor"
	"execution-sim-go/internal/backtest"
	"execution-sim-go/posttrade"
	"execution-sim-go/risk"
)

type backtestOptions struct {
	profile     string
	all         bool
	seed        int64
	parallelism int
}

func newBacktestCmd(opts *globalOptions) *cobra.Command {
	bo := &backtestOptions{}
	cmd := &cobra.Command{
		Use:   "backtest <candidates.csv>",
		Short: "Replay candidate trades day by day through the gate, simulator and notch ladder",
		Long: `backtest 读取候选交易 CSV（一行一条腿，表头：
  date,decision_time,order_id,instrument,side,quantity,limit,bid,ask,bid_size,ask_size,exit,multiplier,max_loss）
逐日执行：风控准入 → 模拟成交（含重试）→ 按平仓价记账 → 日终调档。
--all-profiles 时每个 profile 作为独立场景并发运行。`,
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
			days, err := backtest.LoadCandidates(f)
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
			seed := a.cfg.Simulation.Seed
			if cmd.Flags().Changed("seed") {
				seed = bo.seed
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			alerts := alert.NewManager([]alert.Channel{alert.NewLogChannel("log", a.log)}, 24*time.Hour)

			if bo.all {
				audit := a.cfg.Audit
				setup := backtest.Setup{
					Profiles:    a.profiles,
					Ledger:      a.cfg.LedgerConfig(),
					Adjuster:    a.cfg.AdjusterConfig(),
					Audit:       &audit,
					Retry:       a.retry(),
					Alerts:      alerts,
					Logger:      a.log,
					Parallelism: bo.parallelism,
				}
				if j != nil {
					setup.Journal = j
				}
				results, err := backtest.RunScenarios(ctx, setup, backtest.ScenariosFromProfiles(a.profiles, seed), days)
				if err != nil {
					return err
				}
				for _, r := range backtest.Rank(results) {
					writeSummary(cmd.OutOrStdout(), r.Summary)
				}
				return nil
			}

			name := bo.profile
			if name == "" {
				name = a.cfg.Simulation.Profile
			}
			p, err := a.profiles.Get(name)
			if err != nil {
				return err
			}
			ledger, err := risk.NewLedger(a.cfg.LedgerConfig())
			if err != nil {
				return err
			}
			adj, err := risk.NewNotchAdjuster(a.cfg.AdjusterConfig(), a.log)
			if err != nil {
				return err
			}
			auditor, err := posttrade.NewAuditor(a.cfg.Audit)
			if err != nil {
				return err
			}
			mon := monitor.New(monitor.DefaultConfig())
			if addr := a.cfg.Metrics.Listen; addr != "" {
				srv := &http.Server{Addr: addr, Handler: mon.Handler(), ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.log.LogError(err, zap.String("listen", addr))
					}
				}()
				defer func() {
					sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					_ = srv.Shutdown(sctx)
				}()
			}

			comps := backtest.Components{
				Gate:     risk.NewGate(a.profiles, a.log),
				Adjuster: adj,
				Ledger:   ledger,
				Monitor:  mon,
				Auditor:  auditor,
				Alerts:   alerts,
				Logger:   a.log,
			}
			if j != nil {
				comps.Journal = j
			}
			eng, err := backtest.NewEngine(backtest.Config{Profile: p, Seed: seed, Retry: a.retry(), Note: args[0]}, comps)
			if err != nil {
				return err
			}
			sum, err := eng.Run(ctx, days)
			if err != nil {
				return err
			}
			writeSummary(cmd.OutOrStdout(), sum)
			return nil
		},
	}
	cmd.Flags().StringVarP(&bo.profile, "profile", "p", "", "profile 名称（默认取配置 simulation.profile）")
	cmd.Flags().BoolVar(&bo.all, "all-profiles", false, "每个 profile 作为独立场景并发运行")
	cmd.Flags().Int64Var(&bo.seed, "seed", 1, "基础随机种子（默认取配置 simulation.seed）")
	cmd.Flags().IntVar(&bo.parallelism, "parallelism", 0, "场景并发上限，0 不限制")
	return cmd
}

func writeSummary(out io.Writer, s backtest.Summary) {
	fmt.Fprintf(out, "run %s  profile %s  days %d  net %.2f  final notch %d (limit %.2f)\n",
		s.RunID, s.Profile, len(s.Days), s.NetPnL, s.Final.NotchIndex, s.Final.Limit())
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tCANDIDATES\tADMITTED\tREJECTED\tFILLED\tPARTIAL\tPNL\tLIMIT\tNEXT\tRULE")
	for _, d := range s.Days {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%d\t%d\t%.2f\t%.2f\t%.2f\t%s\n",
			d.Date.Format("2006-01-02"), d.Candidates, d.Admitted, formatCounts(d.Rejected),
			d.Filled, d.Partial, d.PnL, d.Adjustment.Limit, d.Adjustment.NewLimit, d.Adjustment.Reason)
	}
	_ = tw.Flush()
	if s.Report != nil {
		writeReport(out, *s.Report)
	}
}

func formatCounts(m map[string]int) string {
	if len(m) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(parts, ",")
}
