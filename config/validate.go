package config

import (
	"fmt"

	"go.uber.org/zap/zapcore"

	"execution-sim-go/risk"
	"execution-sim-go/sim"
)

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

// Validate ensures required fields are present. Profile 问题返回 sim.ConfigError。
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return ErrInvalid("env is required")
	}
	if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
		return ErrInvalid(fmt.Sprintf("log.level: %v", err))
	}
	set, err := cfg.ProfileSet()
	if err != nil {
		return err
	}
	if cfg.Simulation.Profile != "" {
		if _, err := set.Get(cfg.Simulation.Profile); err != nil {
			return err
		}
	}
	if cfg.Simulation.Scenarios < 0 {
		return ErrInvalid("simulation.scenarios must be >= 0")
	}
	if cfg.Simulation.RetryAttempts < 0 || cfg.Simulation.RetryAttempts > sim.MaxRetryAttempts {
		return ErrInvalid(fmt.Sprintf("simulation.retryAttempts must be in [0,%d]", sim.MaxRetryAttempts))
	}
	if cfg.Simulation.RetryStepTicks < 0 {
		return ErrInvalid("simulation.retryStepTicks must be >= 0")
	}
	if cfg.Simulation.SweepOrders < 0 {
		return ErrInvalid("simulation.sweepOrders must be >= 0")
	}
	if err := cfg.LedgerConfig().Validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}
	if _, err := risk.NewNotchAdjuster(cfg.AdjusterConfig(), nil); err != nil {
		return fmt.Errorf("risk: %w", err)
	}
	if err := cfg.Audit.Validate(); err != nil {
		return ErrInvalid(err.Error())
	}
	return nil
}
