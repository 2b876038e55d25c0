package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"execution-sim-go/market"
	"execution-sim-go/order"
	"execution-sim-go/sim"
)

// 拒单原因
const (
	Admitted                = "admitted"
	RejectInvalidOrder      = "invalid_order"
	RejectInvalidProfile    = "invalid_profile"
	RejectMissingQuote      = "missing_quote"
	RejectNoFill            = "no_fill"
	RejectRiskLimitExceeded = "risk_limit_exceeded"
	RejectLedgerUnavailable = "ledger_unavailable"
)

// Check 一次准入检查的输入，以及 guard 之间传递的中间结果。
type Check struct {
	Order    order.Order
	Snapshot market.Snapshot
	Profile  sim.Profile
	State    LedgerState

	WorstCase     sim.FillResult
	WorstCaseLoss float64
	simulated     bool
}

// Rejection 是 guard 返回的拒单，Unwrap 到对应的哨兵错误。
type Rejection struct {
	Reason string
	Detail string
	Err    error
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return r.Reason
	}
	return r.Reason + ": " + r.Detail
}

func (r *Rejection) Unwrap() error { return r.Err }

func reject(reason string, err error, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...), Err: err}
}

// Guard 是通用接口，结构校验、最坏成交、额度检查都实现它。
type Guard interface {
	PreOrder(c *Check) error
}

// MultiGuard 顺序执行多个 Guard，只要有一个返回错误则中止。
type MultiGuard struct {
	Guards []Guard
}

func (m MultiGuard) PreOrder(c *Check) error {
	for _, g := range m.Guards {
		if g == nil {
			continue
		}
		if err := g.PreOrder(c); err != nil {
			return err
		}
	}
	return nil
}

// StructureGuard 订单必须合法且带有理论最大亏损。
type StructureGuard struct{}

func (StructureGuard) PreOrder(c *Check) error {
	if err := order.Validate(c.Order); err != nil {
		return reject(RejectInvalidOrder, err, "%v", err)
	}
	if !(c.Order.MaxLoss > 0) {
		return reject(RejectInvalidOrder, order.ErrInvalidOrder, "max loss must be > 0 for risk admission")
	}
	return nil
}

// WorstCaseGuard 用最悲观的确定性 profile 模拟，任何无法成交的腿都拒绝。
type WorstCaseGuard struct {
	Profiles *sim.ProfileSet
}

func (g WorstCaseGuard) PreOrder(c *Check) error {
	if err := c.Profile.Validate(); err != nil {
		return reject(RejectInvalidProfile, err, "%v", err)
	}
	candidates := []sim.Profile{c.Profile}
	if g.Profiles != nil {
		candidates = append(candidates, g.Profiles.All()...)
	}
	worst := sim.WorstCaseOf(candidates...)

	res, err := sim.SimulateWorstCase(c.Order, c.Snapshot, worst)
	if err != nil {
		if errors.Is(err, sim.ErrConfiguration) {
			return reject(RejectInvalidProfile, err, "%v", err)
		}
		return reject(RejectInvalidOrder, err, "%v", err)
	}
	c.WorstCase = res
	c.simulated = true
	if res.MissingQuote() {
		return reject(RejectMissingQuote, sim.ErrMissingQuote, "worst case: %s", res.FirstReason())
	}
	if res.Status != sim.Filled {
		return reject(RejectNoFill, ErrRejected, "worst case %s: %s", res.Status, res.FirstReason())
	}
	c.WorstCaseLoss = WorstCaseLoss(c.Order, res)
	return nil
}

// WorstCaseLoss 结构理论最大亏损加上最坏成交价相对限价的不利偏移。
func WorstCaseLoss(o order.Order, res sim.FillResult) float64 {
	loss := decimal.NewFromFloat(o.MaxLoss)
	mult := decimal.NewFromFloat(o.Multiplier)
	for _, l := range res.Legs {
		if l.Filled == 0 {
			continue
		}
		adverse := decimal.NewFromFloat(l.Side.Sign() * (l.Price - l.Limit))
		loss = loss.Add(adverse.Mul(decimal.NewFromInt(int64(l.Filled))).Mul(mult))
	}
	return loss.Round(2).InexactFloat64()
}

// LimitGuard 当日已实现盈亏减去最坏亏损不得低于 -limit。
type LimitGuard struct{}

func (LimitGuard) PreOrder(c *Check) error {
	if !c.simulated {
		return reject(RejectNoFill, ErrRejected, "worst case not evaluated")
	}
	limit := c.State.Limit()
	if !(limit > 0) {
		return reject(RejectLedgerUnavailable, ErrLedgerUnavailable, "notch index %d has no limit", c.State.NotchIndex)
	}
	projected := decimal.NewFromFloat(c.State.RealizedToday).Sub(decimal.NewFromFloat(c.WorstCaseLoss))
	floor := decimal.NewFromFloat(limit).Neg()
	if projected.LessThan(floor) {
		return reject(RejectRiskLimitExceeded, ErrRiskLimitExceeded,
			"realized %.2f - worst case %.2f = %s < -%.2f", c.State.RealizedToday, c.WorstCaseLoss, projected.StringFixed(2), limit)
	}
	return nil
}
