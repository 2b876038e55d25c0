package journal

import (
	"execution-sim-go/posttrade"
	"execution-sim-go/risk"
)

// AuditFill 将落盘的腿记录转换为审计输入。
func AuditFill(f FillRecord) posttrade.FillRecord {
	return posttrade.FillRecord{
		OrderID:    f.OrderID,
		Day:        f.DecisionTime,
		Instrument: f.Leg.Instrument,
		Side:       f.Leg.Side,
		Quantity:   f.Leg.Filled,
		Multiplier: f.Multiplier,
		Price:      f.Leg.Price,
		Bid:        f.Leg.DecisionBid,
		Ask:        f.Leg.DecisionAsk,
		PnL:        f.PnL,
	}
}

// AuditDay 档位调整记录即当日收盘：当日盈亏与当日生效上限。
func AuditDay(a risk.NotchAdjustment) posttrade.DayRecord {
	return posttrade.DayRecord{Day: a.Day, PnL: a.DailyPnL, Limit: a.Limit}
}

// Audit 对某次运行的落盘记录重放审计。
func (j *SQLite) Audit(runID string, cfg posttrade.AuditConfig) (posttrade.Report, error) {
	a, err := posttrade.NewAuditor(cfg)
	if err != nil {
		return posttrade.Report{}, err
	}
	fills, err := j.ListFills(runID)
	if err != nil {
		return posttrade.Report{}, err
	}
	for _, f := range fills {
		a.OnFill(AuditFill(f))
	}
	days, err := j.ListNotch(runID)
	if err != nil {
		return posttrade.Report{}, err
	}
	for _, d := range days {
		a.OnDayClose(AuditDay(d))
	}
	return a.Report(), nil
}
