package sim

import (
	"fmt"
	"math"

	"execution-sim-go/market"
	"execution-sim-go/order"
)

const priceEps = 1e-9

// SimulateFill 在给定快照与 profile 下模拟一笔多腿订单的成交。
// 相同的 (order, snapshot, profile, seed) 总是得到相同结果；随机量全部来自 seed 构造的独立随机流。
// 订单非法、快照早于决策时间或报价交叉时返回包装了 order.ErrInvalidOrder 的错误；
// profile 非法时返回 ConfigError。缺少报价不是错误，对应腿记为 NotFilled。
func SimulateFill(o order.Order, snap market.Snapshot, p Profile, seed int64) (FillResult, error) {
	var d drawer = newStream(seed)
	if p.worstCase {
		d = worstDrawer{}
	}
	return simulate(o, snap, p, seed, d)
}

// SimulateWorstCase 以 p 的最悲观确定性变体模拟，仅用于风控准入。
func SimulateWorstCase(o order.Order, snap market.Snapshot, p Profile) (FillResult, error) {
	if !p.worstCase {
		p = p.WorstCase()
	}
	return simulate(o, snap, p, 0, worstDrawer{})
}

func simulate(o order.Order, snap market.Snapshot, p Profile, seed int64, d drawer) (FillResult, error) {
	if err := order.Validate(o); err != nil {
		return FillResult{}, err
	}
	if err := p.Validate(); err != nil {
		return FillResult{}, err
	}
	if err := snap.CheckDecision(o.DecisionTime); err != nil {
		return FillResult{}, fmt.Errorf("%w: %w", order.ErrInvalidOrder, err)
	}

	// 先完成全部校验再消耗随机数。
	quotes := make([]market.Quote, len(o.Legs))
	found := make([]bool, len(o.Legs))
	for i, leg := range o.Legs {
		q, ok := snap.QuoteAt(leg.Instrument, o.DecisionTime)
		if !ok {
			continue
		}
		if err := q.Validate(); err != nil {
			return FillResult{}, fmt.Errorf("%w: leg %s: %w", order.ErrInvalidOrder, leg.Instrument, err)
		}
		quotes[i], found[i] = q, true
	}

	plans := make([]legPlan, len(o.Legs))
	for i, leg := range o.Legs {
		if !found[i] {
			plans[i] = missingPlan(leg, p)
			continue
		}
		plans[i] = planLeg(leg, quotes[i], p, d)
	}

	res := FillResult{OrderID: o.ID, Profile: p.Name, Seed: seed}
	if p.LegPolicy == LegPolicyPermissive {
		res.Legs = settlePermissive(plans)
	} else {
		res.Legs = settleAtomic(o, plans)
	}
	res.Status = orderStatus(res.Legs)
	for _, f := range res.Legs {
		res.LatencyMs = math.Max(res.LatencyMs, f.LatencyMs)
		if f.Filled == 0 {
			continue
		}
		qty := float64(f.Filled) * o.Multiplier
		res.SlippageCost += f.Slippage * qty
		res.NetPremium += f.Side.Sign() * f.Price * qty
		if f.MidFill {
			res.MidFills++
		}
	}
	return res, nil
}

// legPlan 单腿触价结果，数量与价格在对账时确定。
type legPlan struct {
	leg      order.Leg
	quote    market.Quote
	fill     LegFill
	ok       bool
	cap      int
	buckets  int
	bucket   int
	base     float64
	walk     float64
	tick     float64
	fullSize bool
}

func missingPlan(leg order.Leg, p Profile) legPlan {
	return legPlan{
		leg:     leg,
		buckets: p.Buckets(),
		tick:    p.TickSize,
		fill: LegFill{
			Instrument: leg.Instrument,
			Side:       leg.Side,
			Requested:  leg.Quantity,
			Limit:      leg.LimitPrice,
			Reason:     ReasonMissingQuote,
		},
	}
}

func planLeg(leg order.Leg, q market.Quote, p Profile, d drawer) legPlan {
	pl := legPlan{
		leg:      leg,
		quote:    q,
		buckets:  p.Buckets(),
		tick:     p.TickSize,
		fullSize: d.deterministic(),
		fill: LegFill{
			Instrument:  leg.Instrument,
			Side:        leg.Side,
			Requested:   leg.Quantity,
			Limit:       leg.LimitPrice,
			DecisionBid: q.Bid,
			DecisionAsk: q.Ask,
		},
	}
	buy := leg.Side == order.Buy

	// 1. 参与率上限
	tob := q.BidSize
	if buy {
		tob = q.AskSize
	}
	pl.cap = int(math.Floor(p.MaxParticipation*float64(tob) + priceEps))
	if pl.cap <= 0 || (buy && q.Ask <= 0) || (!buy && q.Bid <= 0) {
		pl.fill.Reason = ReasonNoLiquidity
		return pl
	}

	// 2. 延迟期间对手价向不利方向漂移
	lat := d.latencyMs(p.LatencyMeanMs, p.LatencyStdMs)
	pl.fill.LatencyMs = lat
	bid, ask := q.Bid, q.Ask
	if lat > 0 && p.AdverseSelectionBps > 0 {
		shift := p.AdverseSelectionBps / 1e4 * d.adverse()
		if buy {
			ask *= 1 + shift
		} else {
			bid *= 1 - shift
		}
	}
	spread := math.Max(ask-bid, 0)
	mid := (bid + ask) / 2
	pl.walk = math.Max(spread, p.TickSize)

	// 3. 中间价成交
	prob := p.MidFillProbWide
	if spread <= p.TightSpreadThreshold+priceEps {
		prob = p.MidFillProbTight
	}
	// 单边报价没有中间价
	twoSided := q.Bid > 0 && q.Ask > 0
	if d.midFill(prob) && twoSided && respectsLimit(leg, mid) {
		pl.ok = true
		pl.base = mid
		pl.fill.MidFill = true
		return pl
	}

	// 4. 限价触价 + 滑点下限
	gapPx := leg.LimitPrice - bid
	if buy {
		gapPx = ask - leg.LimitPrice
	}
	gap := 0
	if gapPx > priceEps {
		gap = int(math.Ceil(gapPx/p.TickSize - priceEps))
	}
	if gap > p.MaxAdverseTicks {
		pl.fill.Reason = ReasonLimitTooFar
		return pl
	}
	if gap > 0 && !d.deterministic() {
		touched := false
		for b := 0; b < pl.buckets; b++ {
			gap -= d.walkStep()
			if gap <= 0 {
				pl.bucket = b
				touched = true
				break
			}
		}
		if !touched {
			pl.fill.Reason = ReasonLimitNotReached
			return pl
		}
	}
	pl.base = leg.LimitPrice + leg.Side.Sign()*SlippageFloor(p, spread)
	pl.ok = true
	return pl
}

// SlippageFloor 非中间价成交相对限价的最小不利偏移。
func SlippageFloor(p Profile, spread float64) float64 {
	return math.Max(p.PerContractSlippage, p.PctOfSpreadSlippage*spread)
}

func respectsLimit(leg order.Leg, price float64) bool {
	if leg.Side == order.Buy {
		return price <= leg.LimitPrice+priceEps
	}
	return price >= leg.LimitPrice-priceEps
}

// settle 在 bucket 开始成交，maxQty<0 表示不额外限制数量。
func (pl legPlan) settle(bucket, maxQty int) LegFill {
	f := pl.fill
	f.Status = NotFilled
	if !pl.ok {
		f.MidFill = false
		return f
	}
	qty := pl.leg.Quantity
	if !pl.fullSize {
		qty = min(qty, pl.cap*(pl.buckets-bucket))
	}
	if maxQty >= 0 && maxQty < qty {
		qty = maxQty
	}
	if qty <= 0 {
		f.MidFill = false
		f.Reason = ReasonWindowExpired
		return f
	}

	sign := pl.leg.Side.Sign()
	price := pl.base
	// 5. 超出顶档参与上限的数量按吃深度计价
	if qty > pl.cap {
		price += sign * pl.walk * float64(qty-pl.cap) / float64(qty)
	}
	if price < 0 {
		f.MidFill = false
		f.Reason = ReasonNegativePrice
		return f
	}

	f.Filled = qty
	f.Price = price
	f.Bucket = bucket
	f.Slippage = sign * (price - decisionMid(pl.quote))
	upper := math.Inf(1)
	if pl.quote.Ask > 0 {
		upper = pl.quote.Ask + pl.tick + priceEps
	}
	f.WithinNBBO = price >= pl.quote.Bid-pl.tick-priceEps && price <= upper
	if qty == pl.leg.Quantity {
		f.Status = Filled
	} else {
		f.Status = PartiallyFilled
		f.Reason = ReasonWindowExpired
	}
	return f
}

func decisionMid(q market.Quote) float64 {
	if q.Ask <= 0 {
		return q.Bid
	}
	return q.Mid()
}

func settlePermissive(plans []legPlan) []LegFill {
	out := make([]LegFill, len(plans))
	for i, pl := range plans {
		out[i] = pl.settle(pl.bucket, -1)
	}
	return out
}

// settleAtomic 所有腿在同一时间桶完成；数量按腿比例缩到都能成交的整数单位，任一腿为零则整单拒绝。
func settleAtomic(o order.Order, plans []legPlan) []LegFill {
	common := 0
	for _, pl := range plans {
		if pl.ok && pl.bucket > common {
			common = pl.bucket
		}
	}
	g := order.Ratio(o)
	units := g
	first := make([]LegFill, len(plans))
	for i, pl := range plans {
		first[i] = pl.settle(common, -1)
		units = min(units, first[i].Filled/(pl.leg.Quantity/g))
	}
	if units <= 0 {
		return rejectAll(first)
	}
	out := make([]LegFill, len(plans))
	for i, pl := range plans {
		out[i] = pl.settle(common, units*(pl.leg.Quantity/g))
	}
	return out
}

func rejectAll(fills []LegFill) []LegFill {
	out := make([]LegFill, len(fills))
	for i, f := range fills {
		if f.Filled > 0 || f.Reason == "" {
			f.Reason = ReasonAtomicRejected
		}
		f.Filled = 0
		f.Price = 0
		f.Slippage = 0
		f.MidFill = false
		f.WithinNBBO = false
		f.Status = NotFilled
		out[i] = f
	}
	return out
}

func orderStatus(legs []LegFill) Status {
	full, none := true, true
	for _, l := range legs {
		if l.Status != Filled {
			full = false
		}
		if l.Filled > 0 {
			none = false
		}
	}
	switch {
	case full:
		return Filled
	case none:
		return NotFilled
	default:
		return PartiallyFilled
	}
}
