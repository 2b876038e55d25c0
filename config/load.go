package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"execution-sim-go/infrastructure/logger"
	"execution-sim-go/posttrade"
	"execution-sim-go/risk"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env        string                   `yaml:"env"`
	Log        logger.Config            `yaml:"log"`
	Risk       RiskConfig               `yaml:"risk"`
	Profiles   map[string]ProfileConfig `yaml:"profiles"`
	Simulation SimulationConfig         `yaml:"simulation"`
	Journal    JournalConfig            `yaml:"journal"`
	Audit      posttrade.AuditConfig    `yaml:"audit"`
	Metrics    MetricsConfig            `yaml:"metrics"`
}

// RiskConfig 档位数组与日终调整规则
type RiskConfig struct {
	Limits         []float64       `yaml:"limits"`
	StartIndex     int             `yaml:"startIndex"`
	HistoryWindow  int             `yaml:"historyWindow"`
	LossTiers      []risk.LossTier `yaml:"lossTiers"`
	MajorProfitPct float64         `yaml:"majorProfitPct"`
	MinorProfitPct float64         `yaml:"minorProfitPct"`
	SustainDays    int             `yaml:"sustainDays"`
}

// SimulationConfig 回测运行参数
type SimulationConfig struct {
	Profile        string `yaml:"profile"`        // 默认使用的 profile 名称
	Seed           int64  `yaml:"seed"`           // 基础随机种子
	Scenarios      int    `yaml:"scenarios"`      // 并行场景数
	RetryAttempts  int    `yaml:"retryAttempts"`  // 单个决策窗口最多尝试次数（上限 5）
	RetryStepTicks int    `yaml:"retryStepTicks"` // 每次重试推进的 tick 数
	SweepOrders    int    `yaml:"sweepOrders"`    // sweep 随机订单数
}

type JournalConfig struct {
	Path string `yaml:"path"` // sqlite 文件，空表示不落盘
}

type MetricsConfig struct {
	Listen string `yaml:"listen"` // 例如 :9102，空表示不暴露
}

// Default 返回内置默认配置（三个内置 profile、500/300/200/100 档位）。
func Default() AppConfig {
	lc := risk.DefaultLedgerConfig()
	ac := risk.DefaultAdjusterConfig()
	return AppConfig{
		Env:      "dev",
		Log:      logger.DefaultConfig(),
		Profiles: DefaultProfileConfigs(),
		Risk: RiskConfig{
			Limits:         lc.Limits,
			StartIndex:     lc.StartIndex,
			HistoryWindow:  lc.HistoryWindow,
			LossTiers:      ac.LossTiers,
			MajorProfitPct: ac.MajorProfit,
			MinorProfitPct: ac.MinorProfit,
			SustainDays:    ac.SustainDays,
		},
		Simulation: SimulationConfig{
			Profile:        "conservative",
			Seed:           1,
			Scenarios:      1,
			RetryAttempts:  1,
			RetryStepTicks: 1,
			SweepOrders:    10000,
		},
		Audit: posttrade.DefaultAuditConfig(),
	}
}

// Load reads YAML config from path on top of Default() and validates it.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(raw, &cfg); err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse 解析 YAML；profiles 段一旦出现就整体替换内置 profile。
func Parse(raw []byte, cfg *AppConfig) error {
	var probe struct {
		Profiles map[string]ProfileConfig `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(raw, &probe); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	if probe.Profiles != nil {
		cfg.Profiles = nil
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// LoadWithEnvOverrides loads config then overrides fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, Validate(cfg)
}

func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("SIM_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv("SIM_LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("SIM_PROFILE"); v != "" {
		cfg.Simulation.Profile = v
	}
}

// LedgerConfig 转换为 risk.LedgerConfig
func (c AppConfig) LedgerConfig() risk.LedgerConfig {
	return risk.LedgerConfig{
		Limits:        append([]float64(nil), c.Risk.Limits...),
		StartIndex:    c.Risk.StartIndex,
		HistoryWindow: c.Risk.HistoryWindow,
	}
}

// AdjusterConfig 转换为 risk.AdjusterConfig
func (c AppConfig) AdjusterConfig() risk.AdjusterConfig {
	return risk.AdjusterConfig{
		LossTiers:   append([]risk.LossTier(nil), c.Risk.LossTiers...),
		MajorProfit: c.Risk.MajorProfitPct,
		MinorProfit: c.Risk.MinorProfitPct,
		SustainDays: c.Risk.SustainDays,
	}
}
