package journal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"execution-sim-go/internal/id"
	"execution-sim-go/order"
	"execution-sim-go/risk"
	"execution-sim-go/sim"
)

type SQLite struct {
	db *sql.DB
}

var _ Journal = (*SQLite)(nil)

// NewSQLite 打开（或创建）数据库并建表。path 可为 ":memory:"。
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// 内存库每个连接独立，限制为单连接
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (j *SQLite) StartRun(r RunRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO runs (run_id, profile, seed, started_at, note)
		VALUES (?, ?, ?, ?, ?)`,
		r.RunID, r.Profile, r.Seed, r.StartedAt.UTC(), r.Note,
	)
	return err
}

func (j *SQLite) RecordFill(f FillRecord) error {
	l := f.Leg
	_, err := j.db.Exec(`
		INSERT INTO fills
		(fill_id, run_id, order_id, leg_index, profile, seed, decision_time,
		 instrument, side, requested, filled, multiplier, limit_price, price,
		 decision_bid, decision_ask, status, reason, mid_fill, within_nbbo,
		 slippage, latency_ms, pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.FillID, f.RunID, f.OrderID, f.LegIndex, f.Profile, f.Seed, f.DecisionTime.UTC(),
		l.Instrument, string(l.Side), l.Requested, l.Filled, f.Multiplier, price(l.Limit), price(l.Price),
		price(l.DecisionBid), price(l.DecisionAsk), l.Status.String(), l.Reason, l.MidFill, l.WithinNBBO,
		price(l.Slippage), l.LatencyMs, cents(f.PnL),
	)
	return err
}

func (j *SQLite) RecordDecision(d DecisionRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO decisions
		(decision_id, run_id, order_id, decision_time, admitted, reason, detail,
		 worst_case_loss, limit_in_force, realized_today, notch_index)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DecisionID, d.RunID, d.OrderID, d.DecisionTime.UTC(), d.Admitted, d.Reason, d.Detail,
		cents(d.WorstCaseLoss), cents(d.Limit), cents(d.RealizedToday), d.NotchIndex,
	)
	return err
}

func (j *SQLite) RecordNotch(runID string, a risk.NotchAdjustment) error {
	_, err := j.db.Exec(`
		INSERT INTO notch_adjustments
		(adjustment_id, run_id, day, daily_pnl, limit_in_force, new_limit, old_index,
		 new_index, requested, delta, reason, tier, profit_streak)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.At(a.Day), runID, a.Day.UTC(), cents(a.DailyPnL), cents(a.Limit), cents(a.NewLimit), a.OldIndex,
		a.NewIndex, a.Requested, a.Delta, a.Reason, a.Tier, a.ProfitStreak,
	)
	return err
}

type historyRow struct {
	Day time.Time `json:"day"`
	PnL float64   `json:"pnl"`
}

// SaveLedger 覆盖保存指定名称的账本快照。
func (j *SQLite) SaveLedger(name string, st risk.LedgerState) error {
	limits, err := json.Marshal(st.Limits)
	if err != nil {
		return err
	}
	rows := make([]historyRow, len(st.History))
	for i, h := range st.History {
		rows[i] = historyRow{Day: h.Day.UTC(), PnL: cents(h.PnL)}
	}
	history, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	_, err = j.db.Exec(`
		INSERT INTO ledger_state
		(name, limits, notch_index, realized_today, profit_streak, history, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			limits = excluded.limits,
			notch_index = excluded.notch_index,
			realized_today = excluded.realized_today,
			profit_streak = excluded.profit_streak,
			history = excluded.history,
			updated_at = excluded.updated_at`,
		name, string(limits), st.NotchIndex, cents(st.RealizedToday), st.ProfitStreak,
		string(history), time.Now().UTC(),
	)
	return err
}

// LoadLedger 读取账本快照；不存在时返回 ErrNotFound。
// 结果需经 risk.RestoreLedger 校验后再使用。
func (j *SQLite) LoadLedger(name string) (risk.LedgerState, error) {
	var (
		st      risk.LedgerState
		limits  string
		history string
	)
	err := j.db.QueryRow(`
		SELECT limits, notch_index, realized_today, profit_streak, history
		FROM ledger_state WHERE name = ?`, name).Scan(
		&limits, &st.NotchIndex, &st.RealizedToday, &st.ProfitStreak, &history,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return risk.LedgerState{}, fmt.Errorf("%w: ledger %q", ErrNotFound, name)
		}
		return risk.LedgerState{}, err
	}
	if err := json.Unmarshal([]byte(limits), &st.Limits); err != nil {
		return risk.LedgerState{}, fmt.Errorf("%w: decode limits: %v", risk.ErrInvalidLedger, err)
	}
	var rows []historyRow
	if err := json.Unmarshal([]byte(history), &rows); err != nil {
		return risk.LedgerState{}, fmt.Errorf("%w: decode history: %v", risk.ErrInvalidLedger, err)
	}
	for _, r := range rows {
		st.History = append(st.History, risk.DayRecord{Day: r.Day, PnL: r.PnL})
	}
	return st, nil
}

// ListFills 返回某次运行的全部腿记录，按决策时间排序。
func (j *SQLite) ListFills(runID string) ([]FillRecord, error) {
	rows, err := j.db.Query(`
		SELECT fill_id, run_id, order_id, leg_index, profile, seed, decision_time,
		       instrument, side, requested, filled, multiplier, limit_price, price,
		       decision_bid, decision_ask, status, reason, mid_fill, within_nbbo,
		       slippage, latency_ms, pnl
		FROM fills
		WHERE run_id = ?
		ORDER BY decision_time ASC, order_id ASC, leg_index ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FillRecord
	for rows.Next() {
		var (
			rec    FillRecord
			side   string
			status string
		)
		if err := rows.Scan(
			&rec.FillID, &rec.RunID, &rec.OrderID, &rec.LegIndex, &rec.Profile, &rec.Seed, &rec.DecisionTime,
			&rec.Leg.Instrument, &side, &rec.Leg.Requested, &rec.Leg.Filled, &rec.Multiplier,
			&rec.Leg.Limit, &rec.Leg.Price, &rec.Leg.DecisionBid, &rec.Leg.DecisionAsk,
			&status, &rec.Leg.Reason, &rec.Leg.MidFill, &rec.Leg.WithinNBBO,
			&rec.Leg.Slippage, &rec.Leg.LatencyMs, &rec.PnL,
		); err != nil {
			return nil, err
		}
		rec.Leg.Side = order.Side(side)
		rec.Leg.Status = parseStatus(status)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListNotch 返回某次运行的档位调整，按日期排序。
func (j *SQLite) ListNotch(runID string) ([]risk.NotchAdjustment, error) {
	rows, err := j.db.Query(`
		SELECT day, daily_pnl, limit_in_force, new_limit, old_index, new_index,
		       requested, delta, reason, tier, profit_streak
		FROM notch_adjustments
		WHERE run_id = ?
		ORDER BY day ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []risk.NotchAdjustment
	for rows.Next() {
		var a risk.NotchAdjustment
		if err := rows.Scan(
			&a.Day, &a.DailyPnL, &a.Limit, &a.NewLimit, &a.OldIndex, &a.NewIndex,
			&a.Requested, &a.Delta, &a.Reason, &a.Tier, &a.ProfitStreak,
		); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DecisionCounts 按拒绝原因统计决策数（admitted 也作为一个原因）。
func (j *SQLite) DecisionCounts(runID string) (map[string]int, error) {
	rows, err := j.db.Query(`
		SELECT reason, COUNT(*) FROM decisions
		WHERE run_id = ?
		GROUP BY reason`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			reason string
			n      int
		)
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, err
		}
		out[reason] = n
	}
	return out, rows.Err()
}

// LatestRun 返回最近开始的一次运行。
func (j *SQLite) LatestRun() (RunRecord, error) {
	var r RunRecord
	err := j.db.QueryRow(`
		SELECT run_id, profile, seed, started_at, note
		FROM runs ORDER BY started_at DESC, run_id DESC LIMIT 1`).Scan(
		&r.RunID, &r.Profile, &r.Seed, &r.StartedAt, &r.Note,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: no runs", ErrNotFound)
	}
	return r, err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

func parseStatus(s string) sim.Status {
	switch s {
	case sim.Filled.String():
		return sim.Filled
	case sim.PartiallyFilled.String():
		return sim.PartiallyFilled
	}
	return sim.NotFilled
}
