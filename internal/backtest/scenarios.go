package backtest

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"execution-sim-go/infrastructure/alert"
	"execution-sim-go/infrastructure/logger"
	"execution-sim-go/journal"
	"execution-sim-go/posttrade"
	"execution-sim-go/risk"
	"execution-sim-go/sim"
)

// Scenario 一个独立回测场景：profile + 种子。
type Scenario struct {
	Name    string
	Profile sim.Profile
	Seed    int64
}

// Setup 各场景共享的只读配置。每个场景拥有独立的账本、调档器与审计器。
type Setup struct {
	Profiles    *sim.ProfileSet
	Ledger      risk.LedgerConfig
	Adjuster    risk.AdjusterConfig
	Audit       *posttrade.AuditConfig // 为空则不审计
	Retry       sim.RetryPolicy
	Journal     journal.Journal // 可选，需并发安全
	Alerts      *alert.Manager  // 可选
	Logger      *logger.Logger
	Parallelism int // <=0 不限制
}

// ScenarioResult 场景结果，按输入顺序返回。
type ScenarioResult struct {
	Scenario Scenario
	Summary  Summary
}

// ScenariosFromProfiles 为 ProfileSet 中每个 profile 生成一个场景，种子由 base 派生。
func ScenariosFromProfiles(set *sim.ProfileSet, base int64) []Scenario {
	names := set.Names()
	out := make([]Scenario, 0, len(names))
	for i, name := range names {
		p, _ := set.Get(name)
		out = append(out, Scenario{Name: name, Profile: p, Seed: sim.DeriveSeed(base, int64(i))})
	}
	return out
}

// RunScenarios 并发运行互不共享状态的场景。任一场景出错时取消其余场景并返回首个错误。
func RunScenarios(ctx context.Context, setup Setup, scenarios []Scenario, days []Day) ([]ScenarioResult, error) {
	if setup.Profiles == nil {
		return nil, fmt.Errorf("%w: profile set is required", ErrNotInitialized)
	}
	log := setup.Logger
	if log == nil {
		log = logger.Nop()
	}

	results := make([]ScenarioResult, len(scenarios))
	g, gctx := errgroup.WithContext(ctx)
	if setup.Parallelism > 0 {
		g.SetLimit(setup.Parallelism)
	}
	for i, sc := range scenarios {
		i, sc := i, sc
		g.Go(func() error {
			eng, err := newScenarioEngine(setup, sc, log)
			if err != nil {
				return fmt.Errorf("scenario %s: %w", sc.Name, err)
			}
			sum, err := eng.Run(gctx, days)
			if err != nil {
				return fmt.Errorf("scenario %s: %w", sc.Name, err)
			}
			results[i] = ScenarioResult{Scenario: sc, Summary: sum}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Info("场景回测完成", zap.Int("scenarios", len(results)))
	return results, nil
}

func newScenarioEngine(setup Setup, sc Scenario, log *logger.Logger) (*Engine, error) {
	ledger, err := risk.NewLedger(setup.Ledger)
	if err != nil {
		return nil, err
	}
	adj, err := risk.NewNotchAdjuster(setup.Adjuster, log)
	if err != nil {
		return nil, err
	}
	var auditor *posttrade.Auditor
	if setup.Audit != nil {
		if auditor, err = posttrade.NewAuditor(*setup.Audit); err != nil {
			return nil, err
		}
	}
	return NewEngine(Config{
		Profile: sc.Profile,
		Seed:    sc.Seed,
		Retry:   setup.Retry,
		Note:    sc.Name,
	}, Components{
		Gate:     risk.NewGate(setup.Profiles, log),
		Adjuster: adj,
		Ledger:   ledger,
		Journal:  setup.Journal,
		Auditor:  auditor,
		Alerts:   setup.Alerts,
		Logger:   log.With(zap.String("scenario", sc.Name)),
	})
}

// Rank 按净盈亏从高到低排序（相同时按名称）。
func Rank(results []ScenarioResult) []ScenarioResult {
	out := append([]ScenarioResult(nil), results...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Summary.NetPnL != out[j].Summary.NetPnL {
			return out[i].Summary.NetPnL > out[j].Summary.NetPnL
		}
		return out[i].Scenario.Name < out[j].Scenario.Name
	})
	return out
}
