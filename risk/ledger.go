package risk

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// DefaultLimits 从宽到严的日内亏损上限（美元）。
var DefaultLimits = []float64{500, 300, 200, 100}

// LedgerConfig 档位数组与历史窗口
type LedgerConfig struct {
	Limits        []float64
	StartIndex    int
	HistoryWindow int
}

// DefaultLedgerConfig 默认配置
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		Limits:        append([]float64(nil), DefaultLimits...),
		StartIndex:    0,
		HistoryWindow: 20,
	}
}

// Validate 档位必须为正且严格递减。
func (c LedgerConfig) Validate() error {
	if len(c.Limits) == 0 {
		return fmt.Errorf("%w: limits must not be empty", ErrInvalidLedger)
	}
	for i, v := range c.Limits {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: limit[%d] must be > 0", ErrInvalidLedger, i)
		}
		if i > 0 && v >= c.Limits[i-1] {
			return fmt.Errorf("%w: limits must be strictly descending", ErrInvalidLedger)
		}
	}
	if c.StartIndex < 0 || c.StartIndex >= len(c.Limits) {
		return fmt.Errorf("%w: start index %d out of [0,%d]", ErrInvalidLedger, c.StartIndex, len(c.Limits)-1)
	}
	if c.HistoryWindow <= 0 {
		return fmt.Errorf("%w: history window must be > 0", ErrInvalidLedger)
	}
	return nil
}

// DayRecord 一个交易日的已实现盈亏
type DayRecord struct {
	Day time.Time
	PnL float64
}

// LedgerState Ledger 的只读快照，准入检查基于它并发进行。
type LedgerState struct {
	Limits        []float64
	NotchIndex    int
	RealizedToday float64
	ProfitStreak  int
	History       []DayRecord
}

// Limit 当前档位对应的亏损上限
func (s LedgerState) Limit() float64 {
	if s.NotchIndex < 0 || s.NotchIndex >= len(s.Limits) {
		return 0
	}
	return s.Limits[s.NotchIndex]
}

// Ledger 进程级的风险账本：档位、当日已实现盈亏、连续盈利天数、近期日盈亏。
// 日内只有成交累计写入 RealizedToday；档位只由 NotchAdjuster.Apply 修改。
type Ledger struct {
	mu sync.RWMutex

	limits []float64
	window int

	notch         int
	realizedToday float64
	profitStreak  int
	history       []DayRecord
}

// NewLedger 创建账本
func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Ledger{
		limits: append([]float64(nil), cfg.Limits...),
		window: cfg.HistoryWindow,
		notch:  cfg.StartIndex,
	}, nil
}

// RestoreLedger 从外部存储的状态恢复；若状态里带有档位数组，必须与配置一致。
func RestoreLedger(cfg LedgerConfig, st LedgerState) (*Ledger, error) {
	l, err := NewLedger(cfg)
	if err != nil {
		return nil, err
	}
	if len(st.Limits) > 0 {
		if len(st.Limits) != len(cfg.Limits) {
			return nil, fmt.Errorf("%w: stored limits %v differ from config %v", ErrInvalidLedger, st.Limits, cfg.Limits)
		}
		for i := range st.Limits {
			if st.Limits[i] != cfg.Limits[i] {
				return nil, fmt.Errorf("%w: stored limits %v differ from config %v", ErrInvalidLedger, st.Limits, cfg.Limits)
			}
		}
	}
	if st.NotchIndex < 0 || st.NotchIndex >= len(cfg.Limits) {
		return nil, fmt.Errorf("%w: stored notch index %d out of range", ErrInvalidLedger, st.NotchIndex)
	}
	if st.ProfitStreak < 0 {
		return nil, fmt.Errorf("%w: negative profit streak", ErrInvalidLedger)
	}
	l.notch = st.NotchIndex
	l.realizedToday = st.RealizedToday
	l.profitStreak = st.ProfitStreak
	l.history = trimHistory(append([]DayRecord(nil), st.History...), l.window)
	return l, nil
}

// State 返回一致的只读快照
func (l *Ledger) State() LedgerState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return LedgerState{
		Limits:        append([]float64(nil), l.limits...),
		NotchIndex:    l.notch,
		RealizedToday: l.realizedToday,
		ProfitStreak:  l.profitStreak,
		History:       append([]DayRecord(nil), l.history...),
	}
}

func (l *Ledger) Limit() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limits[l.notch]
}

func (l *Ledger) NotchIndex() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.notch
}

func (l *Ledger) RealizedToday() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.realizedToday
}

// Len 档位数量 N
func (l *Ledger) Len() int { return len(l.limits) }

// RecordFill 累计一笔已实现盈亏到当日
func (l *Ledger) RecordFill(pnl float64) {
	if math.IsNaN(pnl) || math.IsInf(pnl, 0) {
		return
	}
	l.mu.Lock()
	l.realizedToday += pnl
	l.mu.Unlock()
}

func trimHistory(h []DayRecord, window int) []DayRecord {
	if window > 0 && len(h) > window {
		return append([]DayRecord(nil), h[len(h)-window:]...)
	}
	return h
}
