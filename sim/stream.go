package sim

import "math/rand"

// drawer 是模拟中所有随机量的唯一来源。
type drawer interface {
	latencyMs(mean, std float64) float64
	adverse() float64
	midFill(p float64) bool
	// walkStep 对手价在一个时间桶内向限价移动的 tick 数：+1 靠近，0 不动，-1 远离。
	walkStep() int
	deterministic() bool
}

type streamDrawer struct {
	r *rand.Rand
}

func newStream(seed int64) *streamDrawer {
	return &streamDrawer{r: rand.New(rand.NewSource(seed))}
}

func (s *streamDrawer) latencyMs(mean, std float64) float64 {
	v := mean + std*s.r.NormFloat64()
	if v < 0 {
		return 0
	}
	return v
}

func (s *streamDrawer) adverse() float64 { return s.r.Float64() }

func (s *streamDrawer) midFill(p float64) bool {
	if p <= 0 {
		return false
	}
	return s.r.Float64() < p
}

func (s *streamDrawer) walkStep() int { return 1 - s.r.Intn(3) }

func (s *streamDrawer) deterministic() bool { return false }

// worstDrawer 风控准入用：延迟取 mean（WorstCaseOf 已折算 +3σ），逆向漂移取满。
type worstDrawer struct{}

func (worstDrawer) latencyMs(mean, _ float64) float64 {
	if mean < 0 {
		return 0
	}
	return mean
}
func (worstDrawer) adverse() float64     { return 1 }
func (worstDrawer) midFill(float64) bool { return false }
func (worstDrawer) walkStep() int        { return 0 }
func (worstDrawer) deterministic() bool  { return true }

// DeriveSeed 用 splitmix64 从基础种子派生独立子种子（场景、订单、重试各自一条流）。
func DeriveSeed(base int64, parts ...int64) int64 {
	x := uint64(base)
	for _, p := range parts {
		x = splitmix64(x ^ splitmix64(uint64(p)))
	}
	if len(parts) == 0 {
		x = splitmix64(x)
	}
	return int64(x)
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
