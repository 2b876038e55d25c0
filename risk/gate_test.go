package risk

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"execution-sim-go/infrastructure/logger"
	"execution-sim-go/market"
	"execution-sim-go/order"
	"execution-sim-go/sim"
)

var decisionTs = time.Date(2024, 3, 4, 15, 30, 0, 0, time.UTC)

func gateSnap() market.Snapshot {
	s := market.NewSnapshot(decisionTs)
	s.Add("P5000", market.Quote{Bid: 1.00, Ask: 1.10, BidSize: 50, AskSize: 50, Timestamp: decisionTs})
	s.Add("P4995", market.Quote{Bid: 2.00, Ask: 2.10, BidSize: 50, AskSize: 50, Timestamp: decisionTs})
	return s
}

func gateOrder() order.Order {
	return order.Order{
		ID:           "g1",
		DecisionTime: decisionTs,
		Multiplier:   100,
		MaxLoss:      400,
		Legs: []order.Leg{
			{Instrument: "P5000", Side: order.Sell, Quantity: 1, LimitPrice: 1.00},
			{Instrument: "P4995", Side: order.Buy, Quantity: 1, LimitPrice: 2.10},
		},
	}
}

func ledgerAt(t *testing.T, idx int, realized float64) *Ledger {
	t.Helper()
	l, err := RestoreLedger(DefaultLedgerConfig(), LedgerState{NotchIndex: idx, RealizedToday: realized})
	require.NoError(t, err)
	return l
}

func TestGateAdmitsWithinLimit(t *testing.T) {
	g := NewGate(sim.DefaultProfiles(), nil)
	d := g.Admit(gateOrder(), gateSnap(), sim.Base(), ledgerAt(t, 0, 0))
	require.True(t, d.Admitted, d.Detail)
	assert.NoError(t, d.Err())
	assert.Equal(t, Admitted, d.Reason)
	// 每腿最坏偏移 0.05 * 100
	assert.InDelta(t, 410, d.WorstCaseLoss, 1e-9)
	assert.Equal(t, 500.0, d.Limit)
	assert.Equal(t, sim.Filled, d.WorstCase.Status)
}

func TestGateRejectsOverLimit(t *testing.T) {
	g := NewGate(sim.DefaultProfiles(), nil)
	d := g.Admit(gateOrder(), gateSnap(), sim.Base(), ledgerAt(t, 1, 0))
	assert.False(t, d.Admitted)
	assert.Equal(t, RejectRiskLimitExceeded, d.Reason)
	assert.True(t, errors.Is(d.Err(), ErrRiskLimitExceeded))
	assert.Equal(t, 300.0, d.Limit)

	d = g.Admit(gateOrder(), gateSnap(), sim.Base(), ledgerAt(t, 0, -100))
	assert.Equal(t, RejectRiskLimitExceeded, d.Reason)

	d = g.Admit(gateOrder(), gateSnap(), sim.Base(), ledgerAt(t, 0, -90))
	assert.True(t, d.Admitted, "exactly at the limit is admitted")
}

func TestGateFailClosed(t *testing.T) {
	g := NewGate(sim.DefaultProfiles(), nil)
	l := ledgerAt(t, 0, 0)

	missing := market.NewSnapshot(decisionTs)
	missing.Add("P5000", market.Quote{Bid: 1.00, Ask: 1.10, BidSize: 50, AskSize: 50, Timestamp: decisionTs})
	d := g.Admit(gateOrder(), missing, sim.Base(), l)
	assert.Equal(t, RejectMissingQuote, d.Reason)
	assert.True(t, errors.Is(d.Err(), sim.ErrMissingQuote))

	bad := gateOrder()
	bad.Legs = append([]order.Leg(nil), bad.Legs...)
	bad.Legs[0].Quantity = 0
	d = g.Admit(bad, gateSnap(), sim.Base(), l)
	assert.Equal(t, RejectInvalidOrder, d.Reason)
	assert.True(t, errors.Is(d.Err(), order.ErrInvalidOrder))

	noMax := gateOrder()
	noMax.MaxLoss = 0
	d = g.Admit(noMax, gateSnap(), sim.Base(), l)
	assert.Equal(t, RejectInvalidOrder, d.Reason)

	crossed := market.NewSnapshot(decisionTs)
	crossed.Add("P5000", market.Quote{Bid: 1.20, Ask: 1.10, BidSize: 50, AskSize: 50, Timestamp: decisionTs})
	crossed.Add("P4995", market.Quote{Bid: 2.00, Ask: 2.10, BidSize: 50, AskSize: 50, Timestamp: decisionTs})
	d = g.Admit(gateOrder(), crossed, sim.Base(), l)
	assert.Equal(t, RejectInvalidOrder, d.Reason)

	far := gateOrder()
	far.Legs = append([]order.Leg(nil), far.Legs...)
	far.Legs[1].LimitPrice = 1.00
	d = g.Admit(far, gateSnap(), sim.Base(), l)
	assert.Equal(t, RejectNoFill, d.Reason)
	assert.True(t, errors.Is(d.Err(), ErrRejected))

	d = g.Admit(gateOrder(), gateSnap(), sim.Base(), nil)
	assert.Equal(t, RejectLedgerUnavailable, d.Reason)

	badProfile := sim.Base()
	badProfile.TickSize = 0
	d = g.Admit(gateOrder(), gateSnap(), badProfile, l)
	assert.Equal(t, RejectInvalidProfile, d.Reason)
	assert.True(t, errors.Is(d.Err(), sim.ErrConfiguration))
}

func TestGateMissingQuoteAlwaysRejectedEvenWithHugeLimit(t *testing.T) {
	l, err := NewLedger(LedgerConfig{Limits: []float64{1e9}, HistoryWindow: 1})
	require.NoError(t, err)
	snap := market.NewSnapshot(decisionTs)
	d := NewGate(nil, nil).Admit(gateOrder(), snap, sim.Optimistic(), l)
	assert.False(t, d.Admitted)
	assert.Equal(t, RejectMissingQuote, d.Reason)
}

func TestGateLogsRejection(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	g := NewGate(sim.DefaultProfiles(), logger.Wrap(zap.New(core)))
	g.Admit(gateOrder(), gateSnap(), sim.Base(), ledgerAt(t, 2, 0))

	entries := logs.FilterMessage("risk_event").AllUntimed()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	ctx := entries[0].ContextMap()
	assert.Equal(t, RejectRiskLimitExceeded, ctx["reason"])
	assert.Equal(t, 410.0, ctx["worst_case_loss"])
	assert.Equal(t, 200.0, ctx["limit"])
}

func TestGateConcurrentReadOnly(t *testing.T) {
	g := NewGate(sim.DefaultProfiles(), nil)
	l := ledgerAt(t, 0, -50)
	st := l.State()
	var wg sync.WaitGroup
	results := make([]Decision, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = g.AdmitState(gateOrder(), gateSnap(), sim.Base(), st)
		}(i)
	}
	wg.Wait()
	for _, d := range results {
		assert.Equal(t, results[0], d)
	}
	assert.Equal(t, st, l.State())
}

type denyAll struct{}

func (denyAll) PreOrder(*Check) error { return errors.New("maintenance window") }

func TestGateCustomGuardChain(t *testing.T) {
	g := NewGateWithGuard(BuildGuards(sim.DefaultProfiles(), denyAll{}), nil)
	d := g.Admit(gateOrder(), gateSnap(), sim.Base(), ledgerAt(t, 0, 0))
	assert.False(t, d.Admitted)
	assert.Contains(t, d.Detail, "maintenance")
}
