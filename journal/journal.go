// Package journal 将模拟成交、风控决策、档位调整与账本状态落盘到 SQLite。
package journal

import (
	"errors"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"execution-sim-go/internal/id"
	"execution-sim-go/order"
	"execution-sim-go/risk"
	"execution-sim-go/sim"
)

// ErrNotFound 查询的记录不存在。
var ErrNotFound = errors.New("journal: not found")

// RunRecord 一次回测 / 扫描运行。
type RunRecord struct {
	RunID     string
	Profile   string
	Seed      int64
	StartedAt time.Time
	Note      string
}

// FillRecord 单腿成交记录，PnL 为该腿已实现盈亏（美元）。
type FillRecord struct {
	FillID       string
	RunID        string
	OrderID      string
	LegIndex     int
	Profile      string
	Seed         int64
	DecisionTime time.Time
	Multiplier   float64
	Leg          sim.LegFill
	PnL          float64
}

// DecisionRecord 一次准入决策。
type DecisionRecord struct {
	DecisionID    string
	RunID         string
	OrderID       string
	DecisionTime  time.Time
	Admitted      bool
	Reason        string
	Detail        string
	WorstCaseLoss float64
	Limit         float64
	RealizedToday float64
	NotchIndex    int
}

// Journal 持久化接口，回测引擎只依赖它。
type Journal interface {
	StartRun(run RunRecord) error
	RecordFill(rec FillRecord) error
	RecordDecision(rec DecisionRecord) error
	RecordNotch(runID string, adj risk.NotchAdjustment) error
	SaveLedger(name string, st risk.LedgerState) error
	LoadLedger(name string) (risk.LedgerState, error)
	Close() error
}

// FillsFromResult 将一次模拟结果展开为逐腿记录；pnl 与腿一一对应，缺失按 0。
func FillsFromResult(runID string, o order.Order, res sim.FillResult, pnl []float64) []FillRecord {
	out := make([]FillRecord, 0, len(res.Legs))
	for i, leg := range res.Legs {
		rec := FillRecord{
			FillID:       id.At(o.DecisionTime),
			RunID:        runID,
			OrderID:      o.ID,
			LegIndex:     i,
			Profile:      res.Profile,
			Seed:         res.Seed,
			DecisionTime: o.DecisionTime,
			Multiplier:   o.Multiplier,
			Leg:          leg,
		}
		if i < len(pnl) {
			rec.PnL = pnl[i]
		}
		out = append(out, rec)
	}
	return out
}

// DecisionFrom 由网关决策构造记录。
func DecisionFrom(runID string, o order.Order, d risk.Decision) DecisionRecord {
	return DecisionRecord{
		DecisionID:    id.At(o.DecisionTime),
		RunID:         runID,
		OrderID:       o.ID,
		DecisionTime:  o.DecisionTime,
		Admitted:      d.Admitted,
		Reason:        d.Reason,
		Detail:        d.Detail,
		WorstCaseLoss: d.WorstCaseLoss,
		Limit:         d.Limit,
		RealizedToday: d.RealizedToday,
		NotchIndex:    d.NotchIndex,
	}
}

// 非有限值按 0 落盘，列均为 NOT NULL。
func cents(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func price(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(6).InexactFloat64()
}
