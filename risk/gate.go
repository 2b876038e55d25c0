package risk

import (
	"errors"

	"go.uber.org/zap"

	"execution-sim-go/infrastructure/logger"
	"execution-sim-go/market"
	"execution-sim-go/order"
	"execution-sim-go/sim"
)

// Decision 准入结果。拒单是正常结果而非错误，Err() 可转换成哨兵错误。
type Decision struct {
	Admitted      bool
	Reason        string
	Detail        string
	WorstCaseLoss float64
	Limit         float64
	RealizedToday float64
	NotchIndex    int
	WorstCase     sim.FillResult
	cause         error
}

// Err 准入时为 nil；拒单时可 errors.Is 到 ErrRiskLimitExceeded、order.ErrInvalidOrder、
// sim.ErrMissingQuote、sim.ErrConfiguration 或 ErrRejected。
func (d Decision) Err() error {
	if d.Admitted {
		return nil
	}
	if d.cause != nil {
		return &Rejection{Reason: d.Reason, Detail: d.Detail, Err: d.cause}
	}
	return &Rejection{Reason: d.Reason, Detail: d.Detail, Err: ErrRejected}
}

// Gate 风控准入（RiskGate）。只读账本，可并发调用。
type Gate struct {
	guard Guard
	log   *logger.Logger
}

// NewGate 使用 BuildGuards 的默认链；profiles 参与最坏情形取值。
func NewGate(profiles *sim.ProfileSet, log *logger.Logger) *Gate {
	return NewGateWithGuard(BuildGuards(profiles), log)
}

// NewGateWithGuard 自定义准入链
func NewGateWithGuard(g Guard, log *logger.Logger) *Gate {
	if log == nil {
		log = logger.Nop()
	}
	return &Gate{guard: g, log: log}
}

// Admit 基于账本当前快照做准入；ledger 为空时拒绝。
func (g *Gate) Admit(o order.Order, snap market.Snapshot, p sim.Profile, l *Ledger) Decision {
	if l == nil {
		d := Decision{Reason: RejectLedgerUnavailable, Detail: "no ledger", cause: ErrLedgerUnavailable}
		g.logDecision(o, d)
		return d
	}
	return g.AdmitState(o, snap, p, l.State())
}

// AdmitState 对给定账本快照做准入，任何不确定都拒绝。
func (g *Gate) AdmitState(o order.Order, snap market.Snapshot, p sim.Profile, st LedgerState) Decision {
	c := &Check{Order: o, Snapshot: snap, Profile: p, State: st}
	d := Decision{
		Limit:         st.Limit(),
		RealizedToday: st.RealizedToday,
		NotchIndex:    st.NotchIndex,
	}

	var err error
	if g.guard == nil {
		err = reject(RejectLedgerUnavailable, ErrRejected, "no guards configured")
	} else {
		err = g.guard.PreOrder(c)
	}
	d.WorstCase = c.WorstCase
	d.WorstCaseLoss = c.WorstCaseLoss

	if err == nil {
		d.Admitted = true
		d.Reason = Admitted
		g.logDecision(o, d)
		return d
	}
	var rej *Rejection
	if errors.As(err, &rej) {
		d.Reason = rej.Reason
		d.Detail = rej.Detail
		d.cause = rej.Err
	} else {
		d.Reason = RejectInvalidOrder
		d.Detail = err.Error()
		d.cause = err
	}
	g.logDecision(o, d)
	return d
}

func (g *Gate) logDecision(o order.Order, d Decision) {
	g.log.LogRisk(d.Admitted, d.Reason,
		zap.String("order_id", o.ID),
		zap.Float64("worst_case_loss", d.WorstCaseLoss),
		zap.Float64("limit", d.Limit),
		zap.Float64("realized_today", d.RealizedToday),
		zap.Int("notch_index", d.NotchIndex),
		zap.String("detail", d.Detail),
	)
}
