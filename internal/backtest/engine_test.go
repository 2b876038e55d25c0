package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"execution-sim-go/infrastructure/alert"
	"execution-sim-go/infrastructure/logger"
	"execution-sim-go/infrastructure/monitor"
	"execution-sim-go/journal"
	"execution-sim-go/market"
	"execution-sim-go/order"
	"execution-sim-go/posttrade"
	"execution-sim-go/risk"
	"execution-sim-go/sim"
)

var day1 = time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)

// quiet 无逆向漂移、无中间价成交：可成交限价单的价格与种子无关。
func quiet() sim.Profile {
	p := sim.Base()
	p.Name = "quiet"
	p.AdverseSelectionBps = 0
	p.MidFillProbTight = 0
	p.MidFillProbWide = 0
	return p
}

// buyA 买 1 张 A，限价 1.10 等于卖一价，成交价 1.10 + 0.03。
func buyA(id string, at time.Time, maxLoss, exit float64) Candidate {
	snap := market.NewSnapshot(at)
	snap.Add("A", market.Quote{Bid: 1.00, Ask: 1.10, BidSize: 50, AskSize: 50, Timestamp: at})
	return Candidate{
		Order: order.Order{
			ID:           id,
			DecisionTime: at,
			Multiplier:   100,
			MaxLoss:      maxLoss,
			Legs:         []order.Leg{{Instrument: "A", Side: order.Buy, Quantity: 1, LimitPrice: 1.10}},
		},
		Snapshot:   snap,
		ExitPrices: []float64{exit},
	}
}

func testDays() []Day {
	d2 := day1.AddDate(0, 0, 1)
	return []Day{
		{Date: day1, Candidates: []Candidate{
			buyA("d1-1", day1.Add(14*time.Hour), 110, 0.10), // -103
			buyA("d1-2", day1.Add(15*time.Hour), 420, 2.00), // 最坏 423，-103-423 < -500
		}},
		{Date: d2, Candidates: []Candidate{
			buyA("d2-1", d2.Add(14*time.Hour), 110, 3.00), // +187
		}},
	}
}

type fixture struct {
	engine  *Engine
	ledger  *risk.Ledger
	journal *journal.SQLite
	monitor *monitor.Monitor
	alerts  *alert.MockChannel
	logs    *observer.ObservedLogs
}

func newFixture(t *testing.T, seed int64) fixture {
	t.Helper()

	set, err := sim.NewProfileSet(quiet())
	require.NoError(t, err)
	ledger, err := risk.NewLedger(risk.LedgerConfig{Limits: []float64{500, 300, 200, 100}, HistoryWindow: 20})
	require.NoError(t, err)

	core, logs := observer.New(zap.DebugLevel)
	log := logger.Wrap(zap.New(core))
	adj, err := risk.NewNotchAdjuster(risk.DefaultAdjusterConfig(), log)
	require.NoError(t, err)
	auditor, err := posttrade.NewAuditor(posttrade.DefaultAuditConfig())
	require.NoError(t, err)
	j, err := journal.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	mon := monitor.New(monitor.DefaultConfig())
	alerts := alert.NewMockChannel("mock")

	eng, err := NewEngine(Config{RunID: "RUN1", Profile: quiet(), Seed: seed}, Components{
		Gate:     risk.NewGate(set, log),
		Adjuster: adj,
		Ledger:   ledger,
		Journal:  j,
		Monitor:  mon,
		Auditor:  auditor,
		Alerts:   alert.NewManager([]alert.Channel{alerts}, 0),
		Logger:   log,
	})
	require.NoError(t, err)
	return fixture{engine: eng, ledger: ledger, journal: j, monitor: mon, alerts: alerts, logs: logs}
}

func TestEngineRun(t *testing.T) {
	f := newFixture(t, 7)

	sum, err := f.engine.Run(context.Background(), testDays())
	require.NoError(t, err)
	require.Len(t, sum.Days, 2)

	d1 := sum.Days[0]
	assert.Equal(t, 2, d1.Candidates)
	assert.Equal(t, 1, d1.Admitted)
	assert.Equal(t, 1, d1.Filled)
	assert.Equal(t, 1, d1.Rejected[risk.RejectRiskLimitExceeded])
	assert.InDelta(t, -103, d1.PnL, 1e-9)
	assert.Equal(t, risk.ReasonLossTier, d1.Adjustment.Reason)
	assert.Equal(t, 1, d1.Adjustment.NewIndex)

	d2 := sum.Days[1]
	assert.InDelta(t, 187, d2.PnL, 1e-9)
	assert.Equal(t, risk.ReasonMajorProfit, d2.Adjustment.Reason)
	assert.Equal(t, 300.0, d2.Adjustment.Limit)
	assert.Equal(t, 0, d2.Adjustment.NewIndex)

	assert.InDelta(t, 84, sum.NetPnL, 1e-9)
	assert.Equal(t, 0, sum.Final.NotchIndex)
	assert.Equal(t, 0.0, sum.Final.RealizedToday)
	require.Len(t, sum.Final.History, 2)

	require.NotNil(t, sum.Report)
	assert.Equal(t, 2, sum.Report.Fills)
	assert.Equal(t, 2, sum.Report.Days)
	assert.Empty(t, sum.Report.Breaches)
}

func TestEngineRunPersistsAndObserves(t *testing.T) {
	f := newFixture(t, 7)
	_, err := f.engine.Run(context.Background(), testDays())
	require.NoError(t, err)

	counts, err := f.journal.DecisionCounts("RUN1")
	require.NoError(t, err)
	assert.Equal(t, 2, counts[risk.Admitted])
	assert.Equal(t, 1, counts[risk.RejectRiskLimitExceeded])

	fills, err := f.journal.ListFills("RUN1")
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.InDelta(t, 1.13, fills[0].Leg.Price, 1e-9)
	assert.InDelta(t, -103, fills[0].PnL, 1e-9)

	st, err := f.journal.LoadLedger("RUN1")
	require.NoError(t, err)
	assert.Equal(t, 0, st.NotchIndex)

	adj, err := f.journal.ListNotch("RUN1")
	require.NoError(t, err)
	assert.Len(t, adj, 2)

	n, err := testutil.GatherAndCount(f.monitor.Registry(), "execsim_backtest_gate_decisions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sent := f.alerts.Alerts()
	require.Len(t, sent, 1)
	assert.Equal(t, alert.LevelWarning, sent[0].Level)
	assert.True(t, sent[0].Timestamp.Equal(day1))
	assert.Equal(t, "RUN1", sent[0].Source)

	assert.Equal(t, 2, f.logs.FilterMessage("fill_event").Len())
	assert.Equal(t, 1, f.logs.FilterMessage("risk_event").FilterField(zap.String("reason", risk.RejectRiskLimitExceeded)).Len())
}

func TestEngineDeterministicAcrossSeeds(t *testing.T) {
	a, err := newFixture(t, 1).engine.Run(context.Background(), testDays())
	require.NoError(t, err)
	b, err := newFixture(t, 99).engine.Run(context.Background(), testDays())
	require.NoError(t, err)
	assert.Equal(t, a.NetPnL, b.NetPnL)
}

func TestEngineRejectsBadInput(t *testing.T) {
	t.Run("missing exit price", func(t *testing.T) {
		f := newFixture(t, 1)
		c := buyA("x", day1.Add(time.Hour), 110, 1.0)
		c.ExitPrices = nil
		_, err := f.engine.Run(context.Background(), []Day{{Date: day1, Candidates: []Candidate{c}}})
		assert.True(t, errors.Is(err, ErrInvalidCandidate))
	})

	t.Run("days out of order", func(t *testing.T) {
		f := newFixture(t, 1)
		days := testDays()
		days[0], days[1] = days[1], days[0]
		sum, err := f.engine.Run(context.Background(), days)
		assert.True(t, errors.Is(err, ErrDayOrder))
		assert.Len(t, sum.Days, 1)
	})

	t.Run("canceled context", func(t *testing.T) {
		f := newFixture(t, 1)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := f.engine.Run(ctx, testDays())
		assert.True(t, errors.Is(err, context.Canceled))
		assert.Equal(t, 0.0, f.ledger.RealizedToday())
	})

	t.Run("missing components", func(t *testing.T) {
		_, err := NewEngine(Config{Profile: quiet()}, Components{})
		assert.True(t, errors.Is(err, ErrNotInitialized))
	})
}

type admitAll struct{}

func (admitAll) PreOrder(*risk.Check) error { return nil }

func TestEngineAbortsWhenAdmittedOrderCannotSimulate(t *testing.T) {
	ledger, err := risk.NewLedger(risk.DefaultLedgerConfig())
	require.NoError(t, err)
	adj, err := risk.NewNotchAdjuster(risk.DefaultAdjusterConfig(), nil)
	require.NoError(t, err)
	eng, err := NewEngine(Config{RunID: "RUN2", Profile: quiet(), Seed: 1}, Components{
		Gate:     risk.NewGateWithGuard(admitAll{}, nil),
		Adjuster: adj,
		Ledger:   ledger,
	})
	require.NoError(t, err)

	c := buyA("crossed", day1.Add(time.Hour), 110, 1.0)
	c.Snapshot = market.NewSnapshot(c.Order.DecisionTime)
	c.Snapshot.Add("A", market.Quote{Bid: 1.20, Ask: 1.10, BidSize: 50, AskSize: 50, Timestamp: c.Order.DecisionTime})

	sum, err := eng.Run(context.Background(), []Day{{Date: day1, Candidates: []Candidate{c}}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCandidate))
	assert.True(t, errors.Is(err, order.ErrInvalidOrder))
	assert.Empty(t, sum.Days)
	assert.Equal(t, 0.0, ledger.RealizedToday())
}

func TestEngineFailsClosedOnMissingQuote(t *testing.T) {
	f := newFixture(t, 1)
	c := buyA("nq", day1.Add(time.Hour), 110, 1.0)
	c.Snapshot = market.NewSnapshot(c.Order.DecisionTime)

	sum, err := f.engine.Run(context.Background(), []Day{{Date: day1, Candidates: []Candidate{c}}})
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Days[0].Admitted)
	assert.Equal(t, 1, sum.Days[0].Rejected[risk.RejectMissingQuote])
	assert.Equal(t, risk.ReasonFlat, sum.Days[0].Adjustment.Reason)
}

func TestLegPnL(t *testing.T) {
	o := order.Order{
		Multiplier: 100,
		Legs: []order.Leg{
			{Instrument: "A", Side: order.Sell, Quantity: 2, LimitPrice: 1.00},
			{Instrument: "B", Side: order.Buy, Quantity: 2, LimitPrice: 0.40},
			{Instrument: "C", Side: order.Buy, Quantity: 1, LimitPrice: 0.10},
		},
	}
	res := sim.FillResult{Legs: []sim.LegFill{
		{Side: order.Sell, Filled: 2, Price: 0.97},
		{Side: order.Buy, Filled: 2, Price: 0.43},
		{Side: order.Buy, Filled: 0},
	}}
	legs, total := LegPnL(o, res, []float64{0.20, 0.05, 5.00})

	assert.InDelta(t, 154, legs[0], 1e-9)
	assert.InDelta(t, -76, legs[1], 1e-9)
	assert.Equal(t, 0.0, legs[2])
	assert.InDelta(t, 78, total, 1e-9)
}
