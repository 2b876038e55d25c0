package sim

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// LegPolicy 决定多腿订单部分成交时如何对账。
type LegPolicy int

const (
	// LegPolicyAtomic 任一腿未成交则整单不成交（默认）。
	LegPolicyAtomic LegPolicy = iota
	// LegPolicyPermissive 各腿独立成交，需调用方显式开启。
	LegPolicyPermissive
)

func (p LegPolicy) String() string {
	switch p {
	case LegPolicyAtomic:
		return "atomic"
	case LegPolicyPermissive:
		return "permissive"
	}
	return fmt.Sprintf("LegPolicy(%d)", int(p))
}

// ParseLegPolicy 空字符串视为 atomic。
func ParseLegPolicy(s string) (LegPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "atomic":
		return LegPolicyAtomic, nil
	case "permissive":
		return LegPolicyPermissive, nil
	}
	return LegPolicyAtomic, configErr("", "leg_policy", fmt.Sprintf("unknown value %q", s))
}

// Profile 执行模拟参数（ExecutionProfile）。加载后不可修改，按值传递。
type Profile struct {
	Name string

	LatencyMeanMs float64
	LatencyStdMs  float64
	// MaxParticipation 每个时间桶最多吃掉顶档数量的比例（0,1]。
	MaxParticipation float64

	MidFillProbTight     float64
	MidFillProbWide      float64
	TightSpreadThreshold float64

	PerContractSlippage float64
	PctOfSpreadSlippage float64
	AdverseSelectionBps float64

	FillWindow      time.Duration
	MaxAdverseTicks int
	TickSize        float64

	LegPolicy LegPolicy

	worstCase bool
}

// Validate 任何缺失或越界的数值字段都返回 ConfigError。
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return configErr(p.Name, "name", "must not be empty")
	}
	nonNeg := []struct {
		field string
		v     float64
	}{
		{"latency_mean_ms", p.LatencyMeanMs},
		{"latency_std_ms", p.LatencyStdMs},
		{"tight_spread_threshold", p.TightSpreadThreshold},
		{"per_contract_slippage", p.PerContractSlippage},
		{"pct_of_spread_slippage", p.PctOfSpreadSlippage},
		{"adverse_selection_bps", p.AdverseSelectionBps},
	}
	for _, f := range nonNeg {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v < 0 {
			return configErr(p.Name, f.field, "must be >= 0")
		}
	}
	if !(p.MaxParticipation > 0) || p.MaxParticipation > 1 {
		return configErr(p.Name, "max_participation", "must be in (0,1]")
	}
	for _, f := range []struct {
		field string
		v     float64
	}{{"mid_fill_prob_tight", p.MidFillProbTight}, {"mid_fill_prob_wide", p.MidFillProbWide}} {
		if math.IsNaN(f.v) || f.v < 0 || f.v > 1 {
			return configErr(p.Name, f.field, "must be in [0,1]")
		}
	}
	if p.FillWindow <= 0 {
		return configErr(p.Name, "fill_window", "must be > 0")
	}
	if p.MaxAdverseTicks < 0 {
		return configErr(p.Name, "max_adverse_ticks", "must be >= 0")
	}
	if !(p.TickSize > 0) || math.IsInf(p.TickSize, 0) {
		return configErr(p.Name, "tick_size", "must be > 0")
	}
	if p.LegPolicy != LegPolicyAtomic && p.LegPolicy != LegPolicyPermissive {
		return configErr(p.Name, "leg_policy", "unknown")
	}
	return nil
}

// IsWorstCase 是否为 WorstCase 生成的确定性变体。
func (p Profile) IsWorstCase() bool { return p.worstCase }

// Buckets 成交窗口按秒切分的桶数，至少 1。
func (p Profile) Buckets() int {
	n := int(math.Ceil(float64(p.FillWindow) / float64(time.Second)))
	if n < 1 {
		return 1
	}
	return n
}

// WorstCase 单个 profile 的最悲观变体。
func (p Profile) WorstCase() Profile {
	return WorstCaseOf(p)
}

// WorstCaseOf 从一组 profile 中逐字段取最悲观值，生成仅用于风控准入的确定性 profile。
func WorstCaseOf(ps ...Profile) Profile {
	if len(ps) == 0 {
		return Profile{}
	}
	w := Profile{
		Name:             "worst_case",
		MaxParticipation: 1,
		FillWindow:       ps[0].FillWindow,
		LegPolicy:        LegPolicyAtomic,
		worstCase:        true,
	}
	for _, p := range ps {
		w.LatencyMeanMs = math.Max(w.LatencyMeanMs, p.LatencyMeanMs+3*p.LatencyStdMs)
		w.MaxParticipation = math.Min(w.MaxParticipation, p.MaxParticipation)
		w.TightSpreadThreshold = math.Max(w.TightSpreadThreshold, p.TightSpreadThreshold)
		w.PerContractSlippage = math.Max(w.PerContractSlippage, p.PerContractSlippage)
		w.PctOfSpreadSlippage = math.Max(w.PctOfSpreadSlippage, p.PctOfSpreadSlippage)
		w.AdverseSelectionBps = math.Max(w.AdverseSelectionBps, p.AdverseSelectionBps)
		w.TickSize = math.Max(w.TickSize, p.TickSize)
		if p.MaxAdverseTicks > w.MaxAdverseTicks {
			w.MaxAdverseTicks = p.MaxAdverseTicks
		}
		if p.FillWindow > 0 && p.FillWindow < w.FillWindow {
			w.FillWindow = p.FillWindow
		}
	}
	return w
}

// Conservative 默认的保守 profile：从不按中间价成交。
func Conservative() Profile {
	return Profile{
		Name:                 "conservative",
		LatencyMeanMs:        250,
		LatencyStdMs:         100,
		MaxParticipation:     0.25,
		MidFillProbTight:     0,
		MidFillProbWide:      0,
		TightSpreadThreshold: 0.10,
		PerContractSlippage:  0.05,
		PctOfSpreadSlippage:  0.25,
		AdverseSelectionBps:  15,
		FillWindow:           5 * time.Second,
		MaxAdverseTicks:      2,
		TickSize:             0.05,
	}
}

// Base 基准 profile。
func Base() Profile {
	return Profile{
		Name:                 "base",
		LatencyMeanMs:        150,
		LatencyStdMs:         50,
		MaxParticipation:     0.5,
		MidFillProbTight:     0.35,
		MidFillProbWide:      0.10,
		TightSpreadThreshold: 0.10,
		PerContractSlippage:  0.03,
		PctOfSpreadSlippage:  0.15,
		AdverseSelectionBps:  8,
		FillWindow:           10 * time.Second,
		MaxAdverseTicks:      4,
		TickSize:             0.05,
	}
}

// Optimistic 乐观 profile，只用于敏感性对比。
func Optimistic() Profile {
	return Profile{
		Name:                 "optimistic",
		LatencyMeanMs:        80,
		LatencyStdMs:         25,
		MaxParticipation:     0.8,
		MidFillProbTight:     0.6,
		MidFillProbWide:      0.25,
		TightSpreadThreshold: 0.10,
		PerContractSlippage:  0.01,
		PctOfSpreadSlippage:  0.05,
		AdverseSelectionBps:  3,
		FillWindow:           15 * time.Second,
		MaxAdverseTicks:      6,
		TickSize:             0.05,
	}
}

// ProfileSet 按名称索引的固定 profile 集合。
type ProfileSet struct {
	profiles map[string]Profile
	names    []string
}

// NewProfileSet 校验每个 profile，名称不得重复。
func NewProfileSet(ps ...Profile) (*ProfileSet, error) {
	if len(ps) == 0 {
		return nil, configErr("", "profiles", "at least one profile required")
	}
	set := &ProfileSet{profiles: make(map[string]Profile, len(ps))}
	for _, p := range ps {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := set.profiles[p.Name]; dup {
			return nil, configErr(p.Name, "name", "duplicated")
		}
		set.profiles[p.Name] = p
		set.names = append(set.names, p.Name)
	}
	sort.Strings(set.names)
	return set, nil
}

// DefaultProfiles 返回 conservative/base/optimistic 三个内置 profile。
func DefaultProfiles() *ProfileSet {
	set, err := NewProfileSet(Conservative(), Base(), Optimistic())
	if err != nil {
		panic(err)
	}
	return set
}

// Get 未知名称返回 ConfigError。
func (s *ProfileSet) Get(name string) (Profile, error) {
	if s == nil {
		return Profile{}, configErr(name, "name", "no profiles loaded")
	}
	p, ok := s.profiles[name]
	if !ok {
		return Profile{}, configErr(name, "name", "unknown profile")
	}
	return p, nil
}

func (s *ProfileSet) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.names...)
}

func (s *ProfileSet) All() []Profile {
	out := make([]Profile, 0, len(s.Names()))
	for _, n := range s.Names() {
		out = append(out, s.profiles[n])
	}
	return out
}

// WorstCase 集合内所有 profile 的最悲观组合。
func (s *ProfileSet) WorstCase() Profile {
	return WorstCaseOf(s.All()...)
}
