package backtest

import (
	"fmt"

	"execution-sim-go/risk"
)

// Replay 将外部日盈亏序列逐日记入账本并做日终调档，返回每日调整。
// 账本的当日已实现盈亏必须为 0（上一日已收盘）。
func Replay(adj *risk.NotchAdjuster, l *risk.Ledger, days []risk.DayRecord) ([]risk.NotchAdjustment, error) {
	if adj == nil || l == nil {
		return nil, fmt.Errorf("%w: adjuster and ledger are required", ErrNotInitialized)
	}
	if l.RealizedToday() != 0 {
		return nil, fmt.Errorf("%w: ledger has open day pnl %.2f", ErrDayOrder, l.RealizedToday())
	}
	out := make([]risk.NotchAdjustment, 0, len(days))
	for i, d := range days {
		day := truncateDay(d.Day)
		if i > 0 && !day.After(truncateDay(days[i-1].Day)) {
			return out, fmt.Errorf("%w: %s", ErrDayOrder, day.Format("2006-01-02"))
		}
		l.RecordFill(d.PnL)
		a, err := adj.Apply(l, day)
		if err != nil {
			return out, err
		}
		out = append(out, a)
	}
	return out, nil
}
