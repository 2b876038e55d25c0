package posttrade

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"execution-sim-go/order"
)

// AuditConfig 执行真实性审计的阈值
type AuditConfig struct {
	Tolerance            float64   `yaml:"tolerance"`            // NBBO 容忍价差（美元）
	MinWithinNBBOPct     float64   `yaml:"minWithinNbboPct"`     // 成交价落在 NBBO±容忍内的最低比例
	MaxMidOrBetterPct    float64   `yaml:"maxMidOrBetterPct"`    // 中间价或更优成交的最高比例
	StressSlippage       []float64 `yaml:"stressSlippage"`       // 每张合约额外滑点压力
	MinProfitFactor      []float64 `yaml:"minProfitFactor"`      // 与 StressSlippage 一一对应
	MaxGuardrailBreaches int       `yaml:"maxGuardrailBreaches"` // 日亏损超过当日上限的最大次数
}

// DefaultAuditConfig 默认阈值
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Tolerance:            0.01,
		MinWithinNBBOPct:     98,
		MaxMidOrBetterPct:    60,
		StressSlippage:       []float64{0.05, 0.10},
		MinProfitFactor:      []float64{1.30, 1.15},
		MaxGuardrailBreaches: 0,
	}
}

func (c AuditConfig) Validate() error {
	if c.Tolerance < 0 {
		return fmt.Errorf("audit tolerance must be >= 0")
	}
	if c.MinWithinNBBOPct < 0 || c.MinWithinNBBOPct > 100 || c.MaxMidOrBetterPct < 0 || c.MaxMidOrBetterPct > 100 {
		return fmt.Errorf("audit percentages must be in [0,100]")
	}
	if len(c.StressSlippage) != len(c.MinProfitFactor) {
		return fmt.Errorf("audit stressSlippage and minProfitFactor must have the same length")
	}
	if c.MaxGuardrailBreaches < 0 {
		return fmt.Errorf("audit maxGuardrailBreaches must be >= 0")
	}
	return nil
}

// FillRecord 一条已成交的腿及其决策时报价
type FillRecord struct {
	OrderID    string
	Day        time.Time
	Instrument string
	Side       order.Side
	Quantity   int
	Multiplier float64
	Price      float64
	Bid        float64
	Ask        float64
	PnL        float64 // 该腿已实现盈亏（美元）
}

// DayRecord 一个交易日的盈亏与当日生效的亏损上限
type DayRecord struct {
	Day   time.Time
	PnL   float64
	Limit float64
}

// Breach 日亏损超过上限
type Breach struct {
	Day     time.Time
	PnL     float64
	Allowed float64
}

// StressResult 额外滑点压力下的盈亏因子
type StressResult struct {
	Slippage     float64
	ProfitFactor float64 // 无亏损日时为 0，视为不可判定
	Defined      bool
	NetPnL       float64
	Min          float64
	Pass         bool
}

// Report 审计结论
type Report struct {
	Fills          int
	Checked        int
	Within         int
	PctWithin      float64
	MidOrBetter    int
	PctMidOrBetter float64
	Outliers       []FillRecord
	Breaches       []Breach
	Stress         []StressResult
	Days           int
	NetPnL         float64
	Approved       bool
	Reasons        []string
}

// Decision APPROVE 或 REJECT
func (r Report) Decision() string {
	if r.Approved {
		return "APPROVE"
	}
	return "REJECT"
}

// Auditor 收集模拟成交与日终结果，输出执行真实性审计。
type Auditor struct {
	cfg   AuditConfig
	mu    sync.RWMutex
	fills []FillRecord
	days  map[time.Time]DayRecord
}

// NewAuditor creates a new auditor
func NewAuditor(cfg AuditConfig) (*Auditor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Auditor{cfg: cfg, days: make(map[time.Time]DayRecord)}, nil
}

// OnFill records a filled leg
func (a *Auditor) OnFill(rec FillRecord) {
	if rec.Quantity <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fills = append(a.fills, rec)
}

// OnDayClose records the day's realized P&L and the loss limit in force
func (a *Auditor) OnDayClose(day DayRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.days[truncateDay(day.Day)] = day
}

// Report computes the audit over everything recorded so far
func (a *Auditor) Report() Report {
	a.mu.RLock()
	fills := append([]FillRecord(nil), a.fills...)
	days := make([]DayRecord, 0, len(a.days))
	for _, d := range a.days {
		days = append(days, d)
	}
	a.mu.RUnlock()
	sort.Slice(days, func(i, j int) bool { return days[i].Day.Before(days[j].Day) })

	r := Report{Fills: len(fills), Days: len(days), Approved: true}
	tol := a.cfg.Tolerance
	for _, f := range fills {
		if f.Ask <= 0 {
			continue
		}
		r.Checked++
		if f.Price >= f.Bid-tol && f.Price <= f.Ask+tol {
			r.Within++
		} else {
			r.Outliers = append(r.Outliers, f)
		}
		mid := (f.Bid + f.Ask) / 2
		if (f.Side == order.Sell && f.Price >= mid) || (f.Side == order.Buy && f.Price <= mid) {
			r.MidOrBetter++
		}
	}
	if r.Checked > 0 {
		r.PctWithin = pct(r.Within, r.Checked)
		r.PctMidOrBetter = pct(r.MidOrBetter, r.Checked)
	}

	net := decimal.Zero
	for _, d := range days {
		net = net.Add(decimal.NewFromFloat(d.PnL))
		if d.PnL < 0 && -d.PnL > d.Limit+1e-9 {
			r.Breaches = append(r.Breaches, Breach{Day: d.Day, PnL: d.PnL, Allowed: d.Limit})
		}
	}
	r.NetPnL = net.Round(2).InexactFloat64()

	for i, slip := range a.cfg.StressSlippage {
		sr := stress(fills, slip)
		sr.Min = a.cfg.MinProfitFactor[i]
		sr.Pass = !sr.Defined || sr.ProfitFactor >= sr.Min
		r.Stress = append(r.Stress, sr)
	}

	if len(r.Breaches) > a.cfg.MaxGuardrailBreaches {
		r.reject("guardrail breaches present")
	}
	if r.Checked > 0 && r.PctWithin < a.cfg.MinWithinNBBOPct {
		r.reject("NBBO coverage below threshold")
	}
	if r.Checked > 0 && r.PctMidOrBetter > a.cfg.MaxMidOrBetterPct {
		r.reject("mid-or-better rate too high")
	}
	for _, s := range r.Stress {
		if !s.Pass {
			r.reject(fmt.Sprintf("profit factor under $%.2f slippage below %.2f", s.Slippage, s.Min))
		}
	}
	return r
}

func (r *Report) reject(reason string) {
	r.Approved = false
	r.Reasons = append(r.Reasons, reason)
}

// stress 每张合约扣除 slip 后按日汇总，计算盈亏因子。
func stress(fills []FillRecord, slip float64) StressResult {
	daily := make(map[time.Time]decimal.Decimal)
	s := decimal.NewFromFloat(slip)
	for _, f := range fills {
		day := truncateDay(f.Day)
		cost := s.Mul(decimal.NewFromInt(int64(f.Quantity))).Mul(decimal.NewFromFloat(f.Multiplier))
		daily[day] = daily[day].Add(decimal.NewFromFloat(f.PnL)).Sub(cost)
	}
	wins, losses, net := decimal.Zero, decimal.Zero, decimal.Zero
	for _, v := range daily {
		net = net.Add(v)
		if v.IsPositive() {
			wins = wins.Add(v)
		} else if v.IsNegative() {
			losses = losses.Add(v.Neg())
		}
	}
	res := StressResult{Slippage: slip, NetPnL: net.Round(2).InexactFloat64()}
	if losses.IsPositive() {
		res.Defined = true
		res.ProfitFactor = wins.DivRound(losses, 4).Round(2).InexactFloat64()
	}
	return res
}

func pct(n, d int) float64 {
	return decimal.NewFromInt(int64(n)).Mul(decimal.NewFromInt(100)).DivRound(decimal.NewFromInt(int64(d)), 2).InexactFloat64()
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
