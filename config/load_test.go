package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"execution-sim-go/sim"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

const fullProfile = `
    latencyMeanMs: 200
    latencyStdMs: 40
    maxParticipation: 0.3
    midFillProbTight: 0
    midFillProbWide: 0
    tightSpreadThreshold: 0.10
    perContractSlippage: 0.05
    pctOfSpreadSlippage: 0.20
    adverseSelectionBps: 12
    fillWindow: 3s
    maxAdverseTicks: 2
    tickSize: 0.05
`

func TestLoadDefaultsOnly(t *testing.T) {
	path := writeTempConfig(t, "env: dev\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	set, err := cfg.ProfileSet()
	if err != nil {
		t.Fatalf("profile set: %v", err)
	}
	if len(set.Names()) != 3 {
		t.Fatalf("expected built-in profiles, got %v", set.Names())
	}
	if cfg.Risk.Limits[0] != 500 || cfg.Simulation.Profile != "conservative" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadCustomProfilesReplaceBuiltins(t *testing.T) {
	path := writeTempConfig(t, `
env: backtest
risk:
  limits: [400, 250, 100]
  startIndex: 1
simulation:
  profile: strict
  seed: 7
profiles:
  strict:`+fullProfile)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	set, err := cfg.ProfileSet()
	if err != nil {
		t.Fatalf("profile set: %v", err)
	}
	if names := set.Names(); len(names) != 1 || names[0] != "strict" {
		t.Fatalf("expected only strict, got %v", names)
	}
	p, _ := set.Get("strict")
	if p.FillWindow != 3*time.Second || p.MaxAdverseTicks != 2 || p.LegPolicy != sim.LegPolicyAtomic {
		t.Fatalf("unexpected profile %+v", p)
	}
	lc := cfg.LedgerConfig()
	if len(lc.Limits) != 3 || lc.StartIndex != 1 {
		t.Fatalf("unexpected ledger config %+v", lc)
	}
}

func TestLoadMissingProfileFieldFailsFast(t *testing.T) {
	path := writeTempConfig(t, `
env: dev
simulation:
  profile: broken
profiles:
  broken:
    latencyMeanMs: 200
    tickSize: 0.05
`)
	_, err := Load(path)
	var cfgErr *sim.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if cfgErr.Profile != "broken" || cfgErr.Field != "latencyStdMs" {
		t.Fatalf("unexpected error %+v", cfgErr)
	}
	if !errors.Is(err, sim.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"unknown profile": "env: dev\nsimulation:\n  profile: nope\n",
		"ascending":       "env: dev\nrisk:\n  limits: [100, 200]\n",
		"retries":         "env: dev\nsimulation:\n  retryAttempts: 9\n",
		"log level":       "env: dev\nlog:\n  level: loud\n",
		"no env":          "env: \"\"\n",
		"leg policy":      "env: dev\nsimulation:\n  profile: x\nprofiles:\n  x:" + fullProfile + "    legPolicy: sometimes\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeTempConfig(t, body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, "env: dev\n")
	t.Setenv("SIM_JOURNAL_PATH", "/tmp/sim.db")
	t.Setenv("SIM_LOG_LEVEL", "DEBUG")
	cfg, err := LoadWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Journal.Path != "/tmp/sim.db" || cfg.Log.Level != "debug" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestProfileConfigRoundTrip(t *testing.T) {
	for _, p := range sim.DefaultProfiles().All() {
		got, err := ProfileConfigFrom(p).Profile(p.Name)
		if err != nil {
			t.Fatalf("%s: %v", p.Name, err)
		}
		if got != p {
			t.Fatalf("%s: got %+v want %+v", p.Name, got, p)
		}
	}
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "configs", "simrun.yaml"))
	if err != nil {
		t.Fatalf("shipped config invalid: %v", err)
	}
	set, err := cfg.ProfileSet()
	if err != nil {
		t.Fatalf("profile set: %v", err)
	}
	for _, p := range sim.DefaultProfiles().All() {
		got, err := set.Get(p.Name)
		if err != nil {
			t.Fatalf("%s missing: %v", p.Name, err)
		}
		if got != p {
			t.Fatalf("%s: shipped %+v differs from built-in %+v", p.Name, got, p)
		}
	}
	for _, name := range []string{"conservative", "base"} {
		p, _ := set.Get(name)
		stats, err := sim.Sweep(p, sim.SweepConfig{Orders: 10000, Seed: cfg.Simulation.Seed})
		if err != nil {
			t.Fatalf("sweep %s: %v", name, err)
		}
		if stats.MidFillRate >= 0.60 {
			t.Fatalf("%s mid fill rate %.3f exceeds 0.60", name, stats.MidFillRate)
		}
	}
	if cfg.Simulation.RetryAttempts != 3 || len(cfg.Audit.StressSlippage) != 2 {
		t.Fatalf("unexpected simulation/audit section: %+v %+v", cfg.Simulation, cfg.Audit)
	}
}
