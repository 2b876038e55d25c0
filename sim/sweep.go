package sim

import (
	"math"
	"math/rand"
	"time"

	"execution-sim-go/market"
	"execution-sim-go/order"
)

// SweepConfig 随机 NBBO 订单集的规模与种子。
type SweepConfig struct {
	Orders int
	Seed   int64
}

// SweepStats 某个 profile 在随机订单集上的成交统计。
type SweepStats struct {
	Profile      string
	Orders       int
	Filled       int
	Partial      int
	NotFilled    int
	MidFills     int
	MidFillRate  float64
	FillRate     float64
	AvgSlippage  float64
	WithinNBBO   int
	SlippageCost float64
}

// Sweep 在随机生成的单腿订单上运行 profile；每笔订单使用派生的独立种子。
// MidFillRate 以有成交的订单为分母。
func Sweep(p Profile, cfg SweepConfig) (SweepStats, error) {
	if err := p.Validate(); err != nil {
		return SweepStats{}, err
	}
	if cfg.Orders <= 0 {
		cfg.Orders = 10000
	}
	gen := rand.New(rand.NewSource(cfg.Seed))
	decision := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	stats := SweepStats{Profile: p.Name, Orders: cfg.Orders}
	var slipContracts int
	for i := 0; i < cfg.Orders; i++ {
		o, snap := RandomOrder(gen, decision.Add(time.Duration(i)*time.Second), p.TickSize)
		res, err := SimulateFill(o, snap, p, DeriveSeed(cfg.Seed, int64(i)))
		if err != nil {
			return stats, err
		}
		switch res.Status {
		case Filled:
			stats.Filled++
		case PartiallyFilled:
			stats.Partial++
		default:
			stats.NotFilled++
		}
		if res.AllMid() {
			stats.MidFills++
		}
		for _, l := range res.Legs {
			if l.Filled == 0 {
				continue
			}
			slipContracts += l.Filled
			stats.SlippageCost += l.Slippage * float64(l.Filled)
			if l.WithinNBBO {
				stats.WithinNBBO++
			}
		}
	}
	if executed := stats.Filled + stats.Partial; executed > 0 {
		stats.MidFillRate = float64(stats.MidFills) / float64(executed)
	}
	stats.FillRate = float64(stats.Filled+stats.Partial) / float64(stats.Orders)
	if slipContracts > 0 {
		stats.AvgSlippage = stats.SlippageCost / float64(slipContracts)
	}
	return stats, nil
}

// RandomOrder 生成一笔单腿订单与对应快照：价差 1~6 个 tick，限价落在中间价到对手价之间。
func RandomOrder(gen *rand.Rand, decision time.Time, tick float64) (order.Order, market.Snapshot) {
	if tick <= 0 {
		tick = 0.05
	}
	mid := math.Round((0.5+gen.Float64()*9.5)/tick) * tick
	spreadTicks := 1 + gen.Intn(6)
	half := float64(spreadTicks) * tick / 2
	q := market.Quote{
		Bid:       math.Max(mid-half, 0),
		Ask:       mid + half,
		BidSize:   1 + gen.Intn(50),
		AskSize:   1 + gen.Intn(50),
		Timestamp: decision,
	}
	side := order.Buy
	limit := q.Ask
	if gen.Intn(2) == 1 {
		side = order.Sell
		limit = q.Bid
	}
	if gen.Intn(2) == 1 {
		limit = math.Round(q.Mid()/tick) * tick
	}
	inst := "SWEEP"
	snap := market.NewSnapshot(decision)
	snap.Add(inst, q)
	o := order.Order{
		DecisionTime: decision,
		Multiplier:   100,
		Legs: []order.Leg{{
			Instrument: inst,
			Side:       side,
			Quantity:   1 + gen.Intn(10),
			LimitPrice: limit,
		}},
	}
	return o, snap
}
