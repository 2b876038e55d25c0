package backtest

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"execution-sim-go/order"
	"execution-sim-go/risk"
)

const candidatesCSV = `date,decision_time,order_id,instrument,side,quantity,limit,bid,ask,bid_size,ask_size,exit,multiplier,max_loss
2024-03-15,2024-03-15T15:00:00Z,O2,SPY240315P500,sell,1,1.00,1.00,1.10,50,50,0.20,100,400
2024-03-15,2024-03-15T15:00:00Z,O2,SPY240315P495,buy,1,0.40,0.35,0.40,50,50,0.05,100,400
2024-03-15,2024-03-15T14:00:00Z,O1,SPY240315C510,BUY,2,0.50,0.45,0.50,20,20,0.80,100,100
2024-03-14,2024-03-14T14:00:00Z,O0,SPY240315C505,buy,1,0.70,0.65,0.70,10,10,0.60,100,70
`

func TestLoadCandidates(t *testing.T) {
	days, err := LoadCandidates(strings.NewReader(candidatesCSV))
	require.NoError(t, err)
	require.Len(t, days, 2)

	assert.True(t, days[0].Date.Equal(time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)))
	require.Len(t, days[0].Candidates, 1)

	d := days[1]
	require.Len(t, d.Candidates, 2)
	assert.Equal(t, "O1", d.Candidates[0].Order.ID)

	spread := d.Candidates[1]
	require.Len(t, spread.Order.Legs, 2)
	assert.Equal(t, order.Sell, spread.Order.Legs[0].Side)
	assert.Equal(t, []float64{0.20, 0.05}, spread.ExitPrices)
	assert.Equal(t, 400.0, spread.Order.MaxLoss)
	assert.NoError(t, order.Validate(spread.Order))

	q, ok := spread.Snapshot.QuoteAt("SPY240315P495", spread.Order.DecisionTime)
	require.True(t, ok)
	assert.Equal(t, 0.35, q.Bid)
	assert.Equal(t, 50, q.AskSize)
}

func TestLoadCandidatesErrors(t *testing.T) {
	cases := map[string]string{
		"missing column": "date,order_id\n2024-03-15,O1\n",
		"bad side":       strings.Replace(candidatesCSV, "sell", "hold", 1),
		"bad date":       strings.Replace(candidatesCSV, "2024-03-14,", "14/03/2024,", 1),
		"bad size":       strings.Replace(candidatesCSV, ",10,10,", ",ten,10,", 1),
		"empty":          "",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadCandidates(strings.NewReader(in))
			assert.True(t, errors.Is(err, ErrInvalidCandidate), "%v", err)
		})
	}
}

func TestLoadDailyPnLAndReplay(t *testing.T) {
	recs, err := LoadDailyPnL(strings.NewReader("date,pnl\n2024-03-13,60\n2024-03-11,-150\n2024-03-12,200\n2024-03-14,60\n"))
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, -150.0, recs[0].PnL)

	l, err := risk.NewLedger(risk.LedgerConfig{Limits: []float64{750, 500, 300, 200, 100, 50}, StartIndex: 1, HistoryWindow: 20})
	require.NoError(t, err)
	adj, err := risk.NewNotchAdjuster(risk.DefaultAdjusterConfig(), nil)
	require.NoError(t, err)

	out, err := Replay(adj, l, recs)
	require.NoError(t, err)
	require.Len(t, out, 4)

	// -150 对 500：25% 档收紧一档 → 300
	assert.Equal(t, 2, out[0].NewIndex)
	// +200 对 300：超过 30% 立即放宽 → 500
	assert.Equal(t, risk.ReasonMajorProfit, out[1].Reason)
	assert.Equal(t, 1, out[1].NewIndex)
	// +60, +60 对 500：连续两日 ≥10% → 750
	assert.Equal(t, risk.ReasonProfitPending, out[2].Reason)
	assert.Equal(t, risk.ReasonSustainedProfit, out[3].Reason)
	assert.Equal(t, 0, out[3].NewIndex)
	assert.Equal(t, 750.0, l.Limit())
}

func TestReplayRejectsUnorderedDays(t *testing.T) {
	l, err := risk.NewLedger(risk.DefaultLedgerConfig())
	require.NoError(t, err)
	adj, err := risk.NewNotchAdjuster(risk.DefaultAdjusterConfig(), nil)
	require.NoError(t, err)

	d := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	out, err := Replay(adj, l, []risk.DayRecord{{Day: d, PnL: 1}, {Day: d, PnL: 2}})
	assert.True(t, errors.Is(err, ErrDayOrder))
	assert.Len(t, out, 1)

	_, err = Replay(nil, l, nil)
	assert.True(t, errors.Is(err, ErrNotInitialized))
}
