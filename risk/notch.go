package risk

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"execution-sim-go/infrastructure/logger"
)

// 档位调整原因
const (
	ReasonFlat            = "flat"
	ReasonLossTier        = "loss_tier"
	ReasonMajorProfit     = "major_profit"
	ReasonSustainedProfit = "sustained_profit"
	ReasonProfitPending   = "profit_pending"
)

// LossTier 亏损达到当前上限的 Fraction 时向保守方向移动 Notches 档。
type LossTier struct {
	Fraction float64 `yaml:"fraction"`
	Notches  int     `yaml:"notches"`
}

// AdjusterConfig 日终档位调整参数
type AdjusterConfig struct {
	LossTiers   []LossTier
	MajorProfit float64 // 单日盈利 >= 上限的该比例，立即放宽一档
	MinorProfit float64 // 连续 SustainDays 天盈利 >= 该比例，放宽一档
	SustainDays int
}

// DefaultAdjusterConfig 默认配置：亏损快速收紧，盈利需确认才放宽。
func DefaultAdjusterConfig() AdjusterConfig {
	return AdjusterConfig{
		LossTiers: []LossTier{
			{Fraction: 0.80, Notches: 3},
			{Fraction: 0.50, Notches: 2},
			{Fraction: 0.25, Notches: 1},
			{Fraction: 0.10, Notches: 1},
		},
		MajorProfit: 0.30,
		MinorProfit: 0.10,
		SustainDays: 2,
	}
}

func (c AdjusterConfig) Validate() error {
	if len(c.LossTiers) == 0 {
		return fmt.Errorf("%w: loss tiers must not be empty", ErrInvalidAdjusterCfg)
	}
	for i, t := range c.LossTiers {
		if !(t.Fraction > 0) {
			return fmt.Errorf("%w: loss tier %d fraction must be > 0", ErrInvalidAdjusterCfg, i)
		}
		if t.Notches <= 0 {
			return fmt.Errorf("%w: loss tier %d notches must be > 0", ErrInvalidAdjusterCfg, i)
		}
	}
	if !(c.MinorProfit > 0) || c.MajorProfit <= c.MinorProfit {
		return fmt.Errorf("%w: need 0 < minor profit < major profit", ErrInvalidAdjusterCfg)
	}
	if c.SustainDays <= 0 {
		return fmt.Errorf("%w: sustain days must be > 0", ErrInvalidAdjusterCfg)
	}
	return nil
}

// NotchAdjustment 一天的档位调整记录，供审计追溯。
type NotchAdjustment struct {
	Day          time.Time
	DailyPnL     float64
	Limit        float64
	NewLimit     float64
	OldIndex     int
	NewIndex     int
	Requested    int // 规则给出的位移，正数为收紧
	Delta        int // 截断到 [0,N-1] 后实际位移
	Reason       string
	Tier         float64 // 命中的亏损/盈利比例
	ProfitStreak int     // 当日结束后的连续盈利天数
}

// Evaluation 纯函数 Evaluate 的输出
type Evaluation struct {
	Requested int
	Reason    string
	Tier      float64
	Streak    int
}

type decimalTier struct {
	fraction decimal.Decimal
	raw      float64
	notches  int
}

// NotchAdjuster 日终唯一的账本写入方
type NotchAdjuster struct {
	cfg   AdjusterConfig
	tiers []decimalTier
	major decimal.Decimal
	minor decimal.Decimal
	log   *logger.Logger
}

// NewNotchAdjuster 创建调整器，log 为空时不输出。
func NewNotchAdjuster(cfg AdjusterConfig, log *logger.Logger) (*NotchAdjuster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	tiers := make([]decimalTier, 0, len(cfg.LossTiers))
	for _, t := range cfg.LossTiers {
		tiers = append(tiers, decimalTier{fraction: decimal.NewFromFloat(t.Fraction), raw: t.Fraction, notches: t.Notches})
	}
	// 严重程度从高到低匹配，只取第一个命中的档
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].fraction.GreaterThan(tiers[j].fraction) })
	return &NotchAdjuster{
		cfg:   cfg,
		tiers: tiers,
		major: decimal.NewFromFloat(cfg.MajorProfit),
		minor: decimal.NewFromFloat(cfg.MinorProfit),
		log:   log,
	}, nil
}

// Evaluate 根据当日盈亏、当前上限与之前的连续盈利天数计算档位位移，不修改任何状态。
func (a *NotchAdjuster) Evaluate(pnl, limit float64, streak int) Evaluation {
	p := decimal.NewFromFloat(pnl)
	lim := decimal.NewFromFloat(limit)

	switch p.Sign() {
	case -1:
		loss := p.Neg()
		for _, t := range a.tiers {
			if loss.GreaterThanOrEqual(lim.Mul(t.fraction)) {
				return Evaluation{Requested: t.notches, Reason: ReasonLossTier, Tier: t.raw}
			}
		}
		return Evaluation{Reason: ReasonFlat}
	case 1:
		if p.GreaterThanOrEqual(lim.Mul(a.major)) {
			return Evaluation{Requested: -1, Reason: ReasonMajorProfit, Tier: a.cfg.MajorProfit}
		}
		if p.GreaterThanOrEqual(lim.Mul(a.minor)) {
			next := streak + 1
			if next >= a.cfg.SustainDays {
				return Evaluation{Requested: -1, Reason: ReasonSustainedProfit, Tier: a.cfg.MinorProfit}
			}
			return Evaluation{Reason: ReasonProfitPending, Tier: a.cfg.MinorProfit, Streak: next}
		}
	}
	return Evaluation{Reason: ReasonFlat}
}

// Apply 日终对账本做一次独占修改：按当日已实现盈亏移动档位（截断到 [0,N-1]），
// 更新连续盈利天数与历史，并清零当日盈亏。必须在当天所有准入与成交结束之后调用。
func (a *NotchAdjuster) Apply(l *Ledger, day time.Time) (NotchAdjustment, error) {
	if l == nil {
		return NotchAdjustment{}, ErrLedgerUnavailable
	}
	l.mu.Lock()
	pnl := l.realizedToday
	old := l.notch
	limit := l.limits[old]
	ev := a.Evaluate(pnl, limit, l.profitStreak)

	next := old + ev.Requested
	if next < 0 {
		next = 0
	}
	if next > len(l.limits)-1 {
		next = len(l.limits) - 1
	}
	l.notch = next
	l.profitStreak = ev.Streak
	l.realizedToday = 0
	l.history = trimHistory(append(l.history, DayRecord{Day: day, PnL: pnl}), l.window)
	newLimit := l.limits[next]
	l.mu.Unlock()

	adj := NotchAdjustment{
		Day:          day,
		DailyPnL:     pnl,
		Limit:        limit,
		NewLimit:     newLimit,
		OldIndex:     old,
		NewIndex:     next,
		Requested:    ev.Requested,
		Delta:        next - old,
		Reason:       ev.Reason,
		Tier:         ev.Tier,
		ProfitStreak: ev.Streak,
	}
	a.log.LogNotch(old, next, ev.Reason,
		zap.Time("day", day),
		zap.Float64("daily_pnl", pnl),
		zap.Float64("limit", limit),
		zap.Float64("new_limit", newLimit),
		zap.Int("requested", ev.Requested),
		zap.Int("profit_streak", ev.Streak),
	)
	return adj, nil
}
