package sim

import (
	"math"

	"execution-sim-go/market"
	"execution-sim-go/order"
)

// MaxRetryAttempts 单个决策窗口内最多尝试次数（含首次）。
const MaxRetryAttempts = 5

// RetryPolicy 逐次把限价向市场方向推进 StepTicks 个 tick。
type RetryPolicy struct {
	Attempts  int
	StepTicks int
}

// Normalized 把尝试次数限制在 [1, MaxRetryAttempts]。
func (rp RetryPolicy) Normalized() RetryPolicy {
	if rp.Attempts < 1 {
		rp.Attempts = 1
	}
	if rp.Attempts > MaxRetryAttempts {
		rp.Attempts = MaxRetryAttempts
	}
	if rp.StepTicks < 0 {
		rp.StepTicks = 0
	}
	return rp
}

// Escalate 返回第 attempt 次尝试（0 为原单）的订单：买单限价上调、卖单限价下调（不低于 0），
// MaxLoss 同步增加让出的权利金。
func Escalate(o order.Order, attempt, stepTicks int, tick float64) order.Order {
	if attempt <= 0 || stepTicks <= 0 || tick <= 0 {
		return o
	}
	step := float64(attempt*stepTicks) * tick
	limits := make([]float64, len(o.Legs))
	var conceded float64
	for i, l := range o.Legs {
		next := l.LimitPrice + l.Side.Sign()*step
		if next < 0 {
			next = 0
		}
		next = math.Round(next/tick) * tick
		conceded += math.Abs(next-l.LimitPrice) * float64(l.Quantity)
		limits[i] = next
	}
	out := o.WithLimits(limits)
	out.MaxLoss = o.MaxLoss + conceded*o.Multiplier
	return out
}

// MostAggressive 策略允许的最后一次尝试对应的订单，供风控按最坏限价准入。
func MostAggressive(o order.Order, rp RetryPolicy, tick float64) order.Order {
	rp = rp.Normalized()
	return Escalate(o, rp.Attempts-1, rp.StepTicks, tick)
}

// SimulateWithRetries 依次尝试，直到有成交或用完次数。第 0 次使用 seed，之后用派生种子。
// 返回最后一次尝试的结果和实际尝试次数。
func SimulateWithRetries(o order.Order, snap market.Snapshot, p Profile, seed int64, rp RetryPolicy) (FillResult, int, error) {
	rp = rp.Normalized()
	var (
		res FillResult
		err error
	)
	for attempt := 0; attempt < rp.Attempts; attempt++ {
		s := seed
		if attempt > 0 {
			s = DeriveSeed(seed, int64(attempt))
		}
		res, err = SimulateFill(Escalate(o, attempt, rp.StepTicks, p.TickSize), snap, p, s)
		if err != nil {
			return FillResult{}, attempt + 1, err
		}
		if res.Status != NotFilled {
			return res, attempt + 1, nil
		}
	}
	return res, rp.Attempts, nil
}
