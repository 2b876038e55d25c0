package backtest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"execution-sim-go/market"
	"execution-sim-go/order"
	"execution-sim-go/risk"
)

// candidateColumns 候选交易 CSV 表头，一行一条腿，同一 order_id 的行组成一笔组合单。
var candidateColumns = []string{
	"date", "decision_time", "order_id", "instrument", "side", "quantity", "limit",
	"bid", "ask", "bid_size", "ask_size", "exit", "multiplier", "max_loss",
}

// LoadCandidates 读取候选交易 CSV，按日期分组，组内按决策时间排序。
// 同一订单以首行的 date / decision_time / multiplier / max_loss 为准。
func LoadCandidates(r io.Reader) ([]Day, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrInvalidCandidate, err)
	}
	col, err := columnIndex(header, candidateColumns)
	if err != nil {
		return nil, err
	}

	byDay := make(map[time.Time]*Day)
	byOrder := make(map[string]*Candidate)
	var orderIDs []string
	orderDay := make(map[string]time.Time)

	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidCandidate, line, err)
		}
		get := func(name string) string { return strings.TrimSpace(rec[col[name]]) }
		fail := func(field string, err error) error {
			return fmt.Errorf("%w: line %d %s: %v", ErrInvalidCandidate, line, field, err)
		}

		id := get("order_id")
		c, ok := byOrder[id]
		if !ok {
			day, err := time.Parse("2006-01-02", get("date"))
			if err != nil {
				return nil, fail("date", err)
			}
			at, err := time.Parse(time.RFC3339, get("decision_time"))
			if err != nil {
				return nil, fail("decision_time", err)
			}
			mult, err := strconv.ParseFloat(get("multiplier"), 64)
			if err != nil {
				return nil, fail("multiplier", err)
			}
			maxLoss, err := strconv.ParseFloat(get("max_loss"), 64)
			if err != nil {
				return nil, fail("max_loss", err)
			}
			c = &Candidate{
				Order:    order.Order{ID: id, DecisionTime: at, Multiplier: mult, MaxLoss: maxLoss},
				Snapshot: market.NewSnapshot(at),
			}
			byOrder[id] = c
			orderIDs = append(orderIDs, id)
			orderDay[id] = day
		}

		side, ok := order.ParseSide(get("side"))
		if !ok {
			return nil, fail("side", fmt.Errorf("unknown side %q", get("side")))
		}
		qty, err := strconv.Atoi(get("quantity"))
		if err != nil {
			return nil, fail("quantity", err)
		}
		bidSize, err := strconv.Atoi(get("bid_size"))
		if err != nil {
			return nil, fail("bid_size", err)
		}
		askSize, err := strconv.Atoi(get("ask_size"))
		if err != nil {
			return nil, fail("ask_size", err)
		}
		nums := make(map[string]float64, 4)
		for _, name := range []string{"limit", "bid", "ask", "exit"} {
			v, err := strconv.ParseFloat(get(name), 64)
			if err != nil {
				return nil, fail(name, err)
			}
			nums[name] = v
		}

		inst := get("instrument")
		c.Order.Legs = append(c.Order.Legs, order.Leg{Instrument: inst, Side: side, Quantity: qty, LimitPrice: nums["limit"]})
		c.ExitPrices = append(c.ExitPrices, nums["exit"])
		c.Snapshot.Add(inst, market.Quote{
			Bid:       nums["bid"],
			Ask:       nums["ask"],
			BidSize:   bidSize,
			AskSize:   askSize,
			Timestamp: c.Order.DecisionTime,
		})
	}

	for _, id := range orderIDs {
		day := orderDay[id]
		d, ok := byDay[day]
		if !ok {
			d = &Day{Date: day}
			byDay[day] = d
		}
		d.Candidates = append(d.Candidates, *byOrder[id])
	}
	days := make([]Day, 0, len(byDay))
	for _, d := range byDay {
		sort.SliceStable(d.Candidates, func(i, j int) bool {
			return d.Candidates[i].Order.DecisionTime.Before(d.Candidates[j].Order.DecisionTime)
		})
		days = append(days, *d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })
	return days, nil
}

// LoadDailyPnL 读取 date,pnl 两列的日盈亏 CSV（带表头），按日期排序。
func LoadDailyPnL(r io.Reader) ([]risk.DayRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrInvalidCandidate, err)
	}
	col, err := columnIndex(header, []string{"date", "pnl"})
	if err != nil {
		return nil, err
	}
	var out []risk.DayRecord
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidCandidate, line, err)
		}
		day, err := time.Parse("2006-01-02", strings.TrimSpace(rec[col["date"]]))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d date: %v", ErrInvalidCandidate, line, err)
		}
		pnl, err := strconv.ParseFloat(strings.TrimSpace(rec[col["pnl"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d pnl: %v", ErrInvalidCandidate, line, err)
		}
		out = append(out, risk.DayRecord{Day: day, PnL: pnl})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func columnIndex(header, want []string) (map[string]int, error) {
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range want {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrInvalidCandidate, name)
		}
	}
	return col, nil
}
