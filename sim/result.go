package sim

import "execution-sim-go/order"

// Status 订单或单腿的成交状态。
type Status int

const (
	NotFilled Status = iota
	PartiallyFilled
	Filled
)

func (s Status) String() string {
	switch s {
	case Filled:
		return "filled"
	case PartiallyFilled:
		return "partially_filled"
	default:
		return "not_filled"
	}
}

// 单腿未成交或部分成交的原因。
const (
	ReasonMissingQuote    = "missing_quote"
	ReasonNoLiquidity     = "no_liquidity"
	ReasonLimitTooFar     = "limit_too_far"
	ReasonLimitNotReached = "limit_not_reached"
	ReasonNegativePrice   = "negative_price"
	ReasonWindowExpired   = "window_expired"
	ReasonAtomicRejected  = "atomic_rejected"
)

// LegFill 单腿模拟结果。Price 为每张合约成交价；Slippage 相对决策时中间价，正数为不利。
type LegFill struct {
	Instrument string
	Side       order.Side
	Requested  int
	Filled     int
	Limit      float64
	Price      float64
	Status     Status
	Reason     string

	MidFill    bool
	WithinNBBO bool
	Slippage   float64
	Bucket     int
	LatencyMs  float64

	DecisionBid float64
	DecisionAsk float64
}

// FillResult 一次 SimulateFill 的完整输出。
type FillResult struct {
	OrderID string
	Profile string
	Seed    int64
	Status  Status
	Legs    []LegFill

	// SlippageCost 全部成交腿的滑点（美元，正数为不利）。
	SlippageCost float64
	// NetPremium 按成交价计算的净权利金（美元），买正卖负。
	NetPremium float64
	MidFills   int
	LatencyMs  float64
}

func (r FillResult) Filled() bool { return r.Status == Filled }

// MissingQuote 是否有任一腿缺少报价。
func (r FillResult) MissingQuote() bool {
	for _, l := range r.Legs {
		if l.Reason == ReasonMissingQuote {
			return true
		}
	}
	return false
}

// FilledQuantity 全部腿的成交张数。
func (r FillResult) FilledQuantity() int {
	n := 0
	for _, l := range r.Legs {
		n += l.Filled
	}
	return n
}

// AllMid 所有已成交腿都按中间价成交。
func (r FillResult) AllMid() bool {
	seen := false
	for _, l := range r.Legs {
		if l.Filled == 0 {
			continue
		}
		if !l.MidFill {
			return false
		}
		seen = true
	}
	return seen
}

// FirstReason 第一个非空原因，用于日志与拒单说明。
func (r FillResult) FirstReason() string {
	for _, l := range r.Legs {
		if l.Reason != "" && l.Reason != ReasonAtomicRejected {
			return l.Reason
		}
	}
	for _, l := range r.Legs {
		if l.Reason != "" {
			return l.Reason
		}
	}
	return ""
}
