package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"execution-sim-go/config"
	"execution-sim-go/infrastructure/logger"
	"execution-sim-go/journal"
	"execution-sim-go/sim"
)

type globalOptions struct {
	configPath string
	logLevel   string
	journal    string
}

// app 每条命令执行前加载的运行时依赖
type app struct {
	cfg      config.AppConfig
	profiles *sim.ProfileSet
	log      *logger.Logger
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "simrun",
		Short: "NBBO execution simulator and adaptive daily risk notches",
		Long: `simrun 在历史 NBBO 快照上模拟多腿限价单的成交，并用自适应日亏损档位做准入。

子命令：
  profiles  列出成交 profile 及其最坏情形组合
  sweep     在随机 NBBO 订单集上统计 profile 的成交率与中间价成交率
  backtest  按交易日回放候选交易：准入、模拟、记账、日终调档
  notch     用日盈亏序列重放档位调整
  audit     对已落盘的回测做执行质量审计`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML 配置文件（为空使用内置默认）")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "覆盖日志级别")
	root.PersistentFlags().StringVarP(&opts.journal, "db", "d", "", "覆盖 SQLite journal 路径")

	root.AddCommand(
		newProfilesCmd(opts),
		newSweepCmd(opts),
		newBacktestCmd(opts),
		newNotchCmd(opts),
		newAuditCmd(opts),
	)
	return root
}

func loadApp(opts *globalOptions) (*app, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.LoadWithEnvOverrides(opts.configPath); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.journal != "" {
		cfg.Journal.Path = opts.journal
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	set, err := cfg.ProfileSet()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return &app{cfg: cfg, profiles: set, log: log}, nil
}

// openJournal journal 路径为空时返回 nil。
func (a *app) openJournal() (*journal.SQLite, error) {
	if a.cfg.Journal.Path == "" {
		return nil, nil
	}
	j, err := journal.NewSQLite(a.cfg.Journal.Path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return j, nil
}

func (a *app) retry() sim.RetryPolicy {
	return sim.RetryPolicy{
		Attempts:  a.cfg.Simulation.RetryAttempts,
		StepTicks: a.cfg.Simulation.RetryStepTicks,
	}.Normalized()
}

func (a *app) close() {
	_ = a.log.Close()
}
