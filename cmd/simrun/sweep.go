package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"execution-sim-go/config"
	"execution-sim-go/sim"
)

type sweepOptions struct {
	profile string
	orders  int
	seed    int64
	all     bool
	watch   bool
}

func newSweepCmd(opts *globalOptions) *cobra.Command {
	so := &sweepOptions{}
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a profile over a randomized NBBO order set",
		Long: `sweep 生成随机单腿 NBBO 订单（限价在对手价或中间价），统计成交率、
中间价成交率与平均滑点。--watch 时监听配置文件，profile 变更后自动重跑。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.close()

			run := func(cfg config.AppConfig, set *sim.ProfileSet) error {
				ps, err := sweepProfiles(cfg, set, so)
				if err != nil {
					return err
				}
				sc := sim.SweepConfig{Orders: so.orders, Seed: so.seed}
				if sc.Orders <= 0 {
					sc.Orders = cfg.Simulation.SweepOrders
				}
				if !cmd.Flags().Changed("seed") {
					sc.Seed = cfg.Simulation.Seed
				}
				stats := make([]sim.SweepStats, 0, len(ps))
				for _, p := range ps {
					st, err := sim.Sweep(p, sc)
					if err != nil {
						return err
					}
					stats = append(stats, st)
				}
				writeSweep(cmd.OutOrStdout(), stats)
				return nil
			}
			if err := run(a.cfg, a.profiles); err != nil {
				return err
			}
			if !so.watch {
				return nil
			}
			if opts.configPath == "" {
				return fmt.Errorf("--watch requires --config")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			w, err := config.NewWatcher(opts.configPath, 300*time.Millisecond, a.log)
			if err != nil {
				return err
			}
			a.log.Info("监听配置变更", zap.String("path", opts.configPath))
			err = w.Run(ctx, func(cfg config.AppConfig, set *sim.ProfileSet) {
				if err := run(cfg, set); err != nil {
					a.log.LogError(err, zap.String("command", "sweep"))
				}
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&so.profile, "profile", "p", "", "profile 名称（默认取配置 simulation.profile）")
	cmd.Flags().IntVarP(&so.orders, "orders", "n", 0, "随机订单数（默认取配置 simulation.sweepOrders）")
	cmd.Flags().Int64Var(&so.seed, "seed", 1, "随机种子")
	cmd.Flags().BoolVar(&so.all, "all", false, "对全部 profile 运行")
	cmd.Flags().BoolVar(&so.watch, "watch", false, "监听配置文件并在变更后重跑")
	return cmd
}

func sweepProfiles(cfg config.AppConfig, set *sim.ProfileSet, so *sweepOptions) ([]sim.Profile, error) {
	if so.all {
		return set.All(), nil
	}
	name := so.profile
	if name == "" {
		name = cfg.Simulation.Profile
	}
	p, err := set.Get(name)
	if err != nil {
		return nil, err
	}
	return []sim.Profile{p}, nil
}

func writeSweep(out io.Writer, stats []sim.SweepStats) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROFILE\tORDERS\tFILLED\tPARTIAL\tNOT_FILLED\tFILL_RATE\tMID_RATE\tAVG_SLIP\tWITHIN_NBBO")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%.2f%%\t%.2f%%\t%.4f\t%d\n",
			s.Profile, s.Orders, s.Filled, s.Partial, s.NotFilled,
			s.FillRate*100, s.MidFillRate*100, s.AvgSlippage, s.WithinNBBO)
	}
	_ = tw.Flush()
}
