// Package backtest 按交易日驱动 准入 → 模拟成交 → 记账 → 日终调档 的回测流程。
package backtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"execution-sim-go/infrastructure/alert"
	"execution-sim-go/infrastructure/logger"
	"execution-sim-go/infrastructure/monitor"
	"execution-sim-go/internal/id"
	"execution-sim-go/journal"
	"execution-sim-go/market"
	"execution-sim-go/order"
	"execution-sim-go/posttrade"
	"execution-sim-go/risk"
	"execution-sim-go/sim"
)

var (
	// ErrInvalidCandidate 候选交易缺少退出价等输入
	ErrInvalidCandidate = errors.New("backtest: invalid candidate")
	// ErrNotInitialized 缺少必需组件
	ErrNotInitialized = errors.New("backtest: engine not initialized")
	// ErrDayOrder 交易日未按时间递增
	ErrDayOrder = errors.New("backtest: days out of order")
)

// Candidate 一笔候选交易：订单、决策时刻的行情快照，以及各腿平仓价（每张合约）。
type Candidate struct {
	Order      order.Order
	Snapshot   market.Snapshot
	ExitPrices []float64
}

// Day 一个交易日的候选交易，按决策时间顺序处理。
type Day struct {
	Date       time.Time
	Candidates []Candidate
}

// Config 引擎配置
type Config struct {
	RunID   string
	Profile sim.Profile
	Seed    int64
	Retry   sim.RetryPolicy
	Note    string
}

// Components 引擎依赖组件；Journal / Monitor / Auditor / Alerts 可为空。
type Components struct {
	Gate     *risk.Gate
	Adjuster *risk.NotchAdjuster
	Ledger   *risk.Ledger
	Journal  journal.Journal
	Monitor  *monitor.Monitor
	Auditor  *posttrade.Auditor
	Alerts   *alert.Manager
	Logger   *logger.Logger
}

// DaySummary 单日汇总
type DaySummary struct {
	Date       time.Time
	Candidates int
	Admitted   int
	Rejected   map[string]int
	Filled     int
	Partial    int
	NotFilled  int
	Attempts   int
	PnL        float64
	Adjustment risk.NotchAdjustment
}

// Summary 整个回测的汇总
type Summary struct {
	RunID   string
	Profile string
	Days    []DaySummary
	NetPnL  float64
	Final   risk.LedgerState
	Report  *posttrade.Report
}

// Engine 单场景回测引擎。同一 Engine 不支持并发 Run。
type Engine struct {
	cfg Config

	gate     *risk.Gate
	adjuster *risk.NotchAdjuster
	ledger   *risk.Ledger
	journal  journal.Journal
	monitor  *monitor.Monitor
	auditor  *posttrade.Auditor
	alerts   *alert.Manager
	log      *logger.Logger

	mu      sync.Mutex
	lastDay time.Time
}

// NewEngine 创建引擎；RunID 为空时生成 ULID。
func NewEngine(cfg Config, comps Components) (*Engine, error) {
	if comps.Gate == nil || comps.Adjuster == nil || comps.Ledger == nil {
		return nil, fmt.Errorf("%w: gate, adjuster and ledger are required", ErrNotInitialized)
	}
	if err := cfg.Profile.Validate(); err != nil {
		return nil, err
	}
	if cfg.RunID == "" {
		cfg.RunID = id.New()
	}
	cfg.Retry = cfg.Retry.Normalized()
	log := comps.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		cfg:      cfg,
		gate:     comps.Gate,
		adjuster: comps.Adjuster,
		ledger:   comps.Ledger,
		journal:  comps.Journal,
		monitor:  comps.Monitor,
		auditor:  comps.Auditor,
		alerts:   comps.Alerts,
		log:      log.Named("backtest").With(zap.String("run_id", cfg.RunID), zap.String("profile", cfg.Profile.Name)),
	}, nil
}

// RunID 本次运行 ID
func (e *Engine) RunID() string { return e.cfg.RunID }

// Run 顺序处理全部交易日。ctx 取消时在候选之间停止，已完成的交易日保留在汇总中。
func (e *Engine) Run(ctx context.Context, days []Day) (Summary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sum := Summary{RunID: e.cfg.RunID, Profile: e.cfg.Profile.Name}
	if e.journal != nil {
		if err := e.journal.StartRun(journal.RunRecord{
			RunID:     e.cfg.RunID,
			Profile:   e.cfg.Profile.Name,
			Seed:      e.cfg.Seed,
			StartedAt: time.Now(),
			Note:      e.cfg.Note,
		}); err != nil {
			return sum, fmt.Errorf("journal start run: %w", err)
		}
	}
	if e.monitor != nil {
		e.monitor.UpdateLedger(e.ledger.State())
	}

	net := decimal.Zero
	for i, day := range days {
		ds, err := e.runDay(ctx, int64(i), day)
		if err != nil {
			sum.Final = e.ledger.State()
			sum.NetPnL = net.Round(2).InexactFloat64()
			return sum, err
		}
		net = net.Add(decimal.NewFromFloat(ds.PnL))
		sum.Days = append(sum.Days, ds)
	}
	sum.NetPnL = net.Round(2).InexactFloat64()
	sum.Final = e.ledger.State()
	if e.auditor != nil {
		rep := e.auditor.Report()
		sum.Report = &rep
	}
	e.log.Info("回测完成",
		zap.Int("days", len(sum.Days)),
		zap.Float64("net_pnl", sum.NetPnL),
		zap.Int("notch_index", sum.Final.NotchIndex),
	)
	return sum, nil
}

func (e *Engine) runDay(ctx context.Context, dayIdx int64, day Day) (DaySummary, error) {
	date := truncateDay(day.Date)
	if !e.lastDay.IsZero() && !date.After(e.lastDay) {
		return DaySummary{}, fmt.Errorf("%w: %s after %s", ErrDayOrder, date.Format("2006-01-02"), e.lastDay.Format("2006-01-02"))
	}

	ds := DaySummary{Date: date, Candidates: len(day.Candidates), Rejected: make(map[string]int)}
	for i, c := range day.Candidates {
		if err := ctx.Err(); err != nil {
			return ds, err
		}
		if err := e.process(dayIdx, int64(i), c, &ds); err != nil {
			return ds, err
		}
	}

	adj, err := e.adjuster.Apply(e.ledger, date)
	if err != nil {
		return ds, err
	}
	e.lastDay = date
	ds.Adjustment = adj
	ds.PnL = adj.DailyPnL

	if e.monitor != nil {
		e.monitor.RecordNotch(adj)
	}
	if e.auditor != nil {
		e.auditor.OnDayClose(journal.AuditDay(adj))
	}
	if e.alerts != nil {
		if err := e.alerts.OnNotch(e.cfg.RunID, adj, e.ledger.Len()-1); err != nil {
			e.log.LogError(err, zap.String("stage", "alert"))
		}
	}
	if e.journal != nil {
		if err := e.journal.RecordNotch(e.cfg.RunID, adj); err != nil {
			return ds, fmt.Errorf("journal notch: %w", err)
		}
		if err := e.journal.SaveLedger(e.cfg.RunID, e.ledger.State()); err != nil {
			return ds, fmt.Errorf("journal ledger: %w", err)
		}
	}
	e.log.Debug("交易日结束",
		zap.Time("day", date),
		zap.Int("admitted", ds.Admitted),
		zap.Int("filled", ds.Filled),
		zap.Float64("pnl", ds.PnL),
	)
	return ds, nil
}

func (e *Engine) process(dayIdx, idx int64, c Candidate, ds *DaySummary) error {
	o := c.Order
	if len(c.ExitPrices) != len(o.Legs) {
		return fmt.Errorf("%w: order %s has %d legs but %d exit prices", ErrInvalidCandidate, o.ID, len(o.Legs), len(c.ExitPrices))
	}

	// 准入按策略可能走到的最激进限价评估
	gated := sim.MostAggressive(o, e.cfg.Retry, e.cfg.Profile.TickSize)
	d := e.gate.Admit(gated, c.Snapshot, e.cfg.Profile, e.ledger)
	if e.monitor != nil {
		e.monitor.RecordDecision(d)
	}
	if e.journal != nil {
		if err := e.journal.RecordDecision(journal.DecisionFrom(e.cfg.RunID, o, d)); err != nil {
			return fmt.Errorf("journal decision: %w", err)
		}
	}
	if !d.Admitted {
		ds.Rejected[d.Reason]++
		return nil
	}
	ds.Admitted++

	seed := sim.DeriveSeed(e.cfg.Seed, dayIdx, idx)
	res, attempts, err := sim.SimulateWithRetries(o, c.Snapshot, e.cfg.Profile, seed, e.cfg.Retry)
	ds.Attempts += attempts
	if err != nil {
		// 准入已校验过订单与行情，这里出错说明准入链与模拟器不一致
		e.log.LogError(err, zap.String("order_id", o.ID))
		return fmt.Errorf("%w: order %s: %w", ErrInvalidCandidate, o.ID, err)
	}
	switch res.Status {
	case sim.Filled:
		ds.Filled++
	case sim.PartiallyFilled:
		ds.Partial++
	default:
		ds.NotFilled++
	}

	legPnL, total := LegPnL(o, res, c.ExitPrices)
	e.ledger.RecordFill(total)

	if e.monitor != nil {
		e.monitor.RecordFill(res)
	}
	recs := journal.FillsFromResult(e.cfg.RunID, o, res, legPnL)
	for _, rec := range recs {
		if e.auditor != nil {
			e.auditor.OnFill(journal.AuditFill(rec))
		}
		if e.journal != nil {
			if err := e.journal.RecordFill(rec); err != nil {
				return fmt.Errorf("journal fill: %w", err)
			}
		}
	}
	e.log.LogFill(o.ID, res.Profile, res.Status.String(),
		zap.Int("attempts", attempts),
		zap.Float64("pnl", total),
		zap.Float64("slippage_cost", res.SlippageCost),
	)
	return nil
}

// LegPnL 按平仓价计算各腿已实现盈亏（美元）：买入腿 (exit-price)，卖出腿 (price-exit)，
// 乘以成交张数与合约乘数。未成交腿为 0。
func LegPnL(o order.Order, res sim.FillResult, exits []float64) ([]float64, float64) {
	mult := decimal.NewFromFloat(o.Multiplier)
	out := make([]float64, len(res.Legs))
	total := decimal.Zero
	for i, l := range res.Legs {
		if l.Filled == 0 || i >= len(exits) {
			continue
		}
		diff := decimal.NewFromFloat(exits[i]).Sub(decimal.NewFromFloat(l.Price))
		if l.Side == order.Sell {
			diff = diff.Neg()
		}
		v := diff.Mul(decimal.NewFromInt(int64(l.Filled))).Mul(mult).Round(2)
		out[i] = v.InexactFloat64()
		total = total.Add(v)
	}
	return out, total.InexactFloat64()
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
