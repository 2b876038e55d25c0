package config

import (
	"sort"
	"time"

	"execution-sim-go/sim"
)

// ProfileConfig YAML 中的 profile。所有数值字段都必须显式给出，缺失即 ConfigError。
type ProfileConfig struct {
	LatencyMeanMs        *float64       `yaml:"latencyMeanMs"`
	LatencyStdMs         *float64       `yaml:"latencyStdMs"`
	MaxParticipation     *float64       `yaml:"maxParticipation"`
	MidFillProbTight     *float64       `yaml:"midFillProbTight"`
	MidFillProbWide      *float64       `yaml:"midFillProbWide"`
	TightSpreadThreshold *float64       `yaml:"tightSpreadThreshold"`
	PerContractSlippage  *float64       `yaml:"perContractSlippage"`
	PctOfSpreadSlippage  *float64       `yaml:"pctOfSpreadSlippage"`
	AdverseSelectionBps  *float64       `yaml:"adverseSelectionBps"`
	FillWindow           *time.Duration `yaml:"fillWindow"`
	MaxAdverseTicks      *int           `yaml:"maxAdverseTicks"`
	TickSize             *float64       `yaml:"tickSize"`
	LegPolicy            string         `yaml:"legPolicy"`
}

// Profile 转换为 sim.Profile 并校验
func (pc ProfileConfig) Profile(name string) (sim.Profile, error) {
	p := sim.Profile{Name: name}
	floats := []struct {
		field string
		src   *float64
		dst   *float64
	}{
		{"latencyMeanMs", pc.LatencyMeanMs, &p.LatencyMeanMs},
		{"latencyStdMs", pc.LatencyStdMs, &p.LatencyStdMs},
		{"maxParticipation", pc.MaxParticipation, &p.MaxParticipation},
		{"midFillProbTight", pc.MidFillProbTight, &p.MidFillProbTight},
		{"midFillProbWide", pc.MidFillProbWide, &p.MidFillProbWide},
		{"tightSpreadThreshold", pc.TightSpreadThreshold, &p.TightSpreadThreshold},
		{"perContractSlippage", pc.PerContractSlippage, &p.PerContractSlippage},
		{"pctOfSpreadSlippage", pc.PctOfSpreadSlippage, &p.PctOfSpreadSlippage},
		{"adverseSelectionBps", pc.AdverseSelectionBps, &p.AdverseSelectionBps},
		{"tickSize", pc.TickSize, &p.TickSize},
	}
	for _, f := range floats {
		if f.src == nil {
			return sim.Profile{}, missing(name, f.field)
		}
		*f.dst = *f.src
	}
	if pc.FillWindow == nil {
		return sim.Profile{}, missing(name, "fillWindow")
	}
	p.FillWindow = *pc.FillWindow
	if pc.MaxAdverseTicks == nil {
		return sim.Profile{}, missing(name, "maxAdverseTicks")
	}
	p.MaxAdverseTicks = *pc.MaxAdverseTicks
	policy, err := sim.ParseLegPolicy(pc.LegPolicy)
	if err != nil {
		return sim.Profile{}, &sim.ConfigError{Profile: name, Field: "legPolicy", Reason: "unknown value " + pc.LegPolicy}
	}
	p.LegPolicy = policy
	if err := p.Validate(); err != nil {
		return sim.Profile{}, err
	}
	return p, nil
}

func missing(profile, field string) error {
	return &sim.ConfigError{Profile: profile, Field: field, Reason: "is required"}
}

// ProfileSet 把配置中的全部 profile 转成不可变集合
func (c AppConfig) ProfileSet() (*sim.ProfileSet, error) {
	if len(c.Profiles) == 0 {
		return nil, &sim.ConfigError{Field: "profiles", Reason: "at least one profile required"}
	}
	names := make([]string, 0, len(c.Profiles))
	for n := range c.Profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	ps := make([]sim.Profile, 0, len(names))
	for _, n := range names {
		p, err := c.Profiles[n].Profile(n)
		if err != nil {
			return nil, err
		}
		ps = append(ps, p)
	}
	return sim.NewProfileSet(ps...)
}

// ProfileConfigFrom 由 sim.Profile 生成完整配置项
func ProfileConfigFrom(p sim.Profile) ProfileConfig {
	f := func(v float64) *float64 { return &v }
	window := p.FillWindow
	ticks := p.MaxAdverseTicks
	return ProfileConfig{
		LatencyMeanMs:        f(p.LatencyMeanMs),
		LatencyStdMs:         f(p.LatencyStdMs),
		MaxParticipation:     f(p.MaxParticipation),
		MidFillProbTight:     f(p.MidFillProbTight),
		MidFillProbWide:      f(p.MidFillProbWide),
		TightSpreadThreshold: f(p.TightSpreadThreshold),
		PerContractSlippage:  f(p.PerContractSlippage),
		PctOfSpreadSlippage:  f(p.PctOfSpreadSlippage),
		AdverseSelectionBps:  f(p.AdverseSelectionBps),
		FillWindow:           &window,
		MaxAdverseTicks:      &ticks,
		TickSize:             f(p.TickSize),
		LegPolicy:            p.LegPolicy.String(),
	}
}

// DefaultProfileConfigs conservative/base/optimistic
func DefaultProfileConfigs() map[string]ProfileConfig {
	out := make(map[string]ProfileConfig)
	for _, p := range sim.DefaultProfiles().All() {
		out[p.Name] = ProfileConfigFrom(p)
	}
	return out
}
