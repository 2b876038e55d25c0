package order

import (
	"strings"
	"time"
)

// Side 买卖方向。
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// ParseSide 接受大小写不敏感的 buy/sell。
func ParseSide(s string) (Side, bool) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case Buy:
		return Buy, true
	case Sell:
		return Sell, true
	}
	return "", false
}

// Sign 买为 +1，卖为 -1。
func (s Side) Sign() float64 {
	if s == Sell {
		return -1
	}
	return 1
}

// Leg 组合单中的一条腿。LimitPrice 为每张合约的价格（非负），
// 成本符号由方向决定：买入为正（借记），卖出为负（贷记）。
type Leg struct {
	Instrument string
	Side       Side
	Quantity   int
	LimitPrice float64
}

// SignedCost 返回该腿按限价计算的带符号成本（每单位结构）。
func (l Leg) SignedCost() float64 {
	return l.Side.Sign() * l.LimitPrice * float64(l.Quantity)
}

// Order 多腿限价单，所有腿共享同一决策时间。
type Order struct {
	ID           string
	DecisionTime time.Time
	Legs         []Leg
	// Multiplier 合约乘数（期权通常为 100）。
	Multiplier float64
	// MaxLoss 结构在限价下的理论最大亏损（美元），由调用方计算。
	MaxLoss float64
}

// NetPremium 按限价计算的净权利金（美元）；负数表示收取贷记。
func (o Order) NetPremium() float64 {
	var total float64
	for _, l := range o.Legs {
		total += l.SignedCost()
	}
	return total * o.Multiplier
}

// IsCredit 净收取权利金的结构。
func (o Order) IsCredit() bool {
	return o.NetPremium() < 0
}

// WithLimits 返回替换了各腿限价的副本，原订单不变。
func (o Order) WithLimits(limits []float64) Order {
	legs := make([]Leg, len(o.Legs))
	copy(legs, o.Legs)
	for i := range legs {
		if i < len(limits) {
			legs[i].LimitPrice = limits[i]
		}
	}
	o.Legs = legs
	return o
}
