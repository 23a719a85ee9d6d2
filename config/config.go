// Package config loads and holds the solver configuration. Defaults are
// embedded in the binary; a user file overlays individual fields. Values are
// frozen after Load and shared by reference.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config is the full configuration tree.
type Config struct {
	Solver    SolverConfig    `yaml:"solver"`
	Phase     PhaseConfig     `yaml:"phase"`
	Explosion ExplosionConfig `yaml:"explosion"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	Derived DerivedConfig `yaml:"-"`
}

// SolverConfig drives the transfer solver loop.
type SolverConfig struct {
	DT                   float64 `yaml:"dt"`                    // seconds of sim time per tick
	DiffusionCoefficient float64 `yaml:"diffusion_coefficient"` // concentration-gradient mixing rate
	Workers              int     `yaml:"workers"`               // compute workers, 0 = one per CPU
}

// PhaseConfig parameterizes the phase classifier.
type PhaseConfig struct {
	SaturationGamma float64 `yaml:"saturation_gamma"` // pressure penalty steepness past critical
}

// ExplosionConfig parameterizes the over-pressure monitor.
type ExplosionConfig struct {
	StreakThreshold int `yaml:"streak_threshold"` // consecutive over-limit ticks before rupture
}

// TelemetryConfig sizes the observation windows.
type TelemetryConfig struct {
	StatsWindow float64 `yaml:"stats_window"` // seconds of sim time per stats window
	PerfWindow  int     `yaml:"perf_window"`  // ticks in the perf rolling window
}

// DerivedConfig holds values computed from the raw configuration.
type DerivedConfig struct {
	TicksPerWindow int64 // stats window length in ticks, at least 1
}

var global *Config

// Init loads configuration and installs it process-wide. path may be empty
// to use embedded defaults only.
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is Init for call sites where a config failure is fatal.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
}

// Cfg returns the process-wide config. Panics if Init was never called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg called before Init")
	}
	return global
}

// Load parses the embedded defaults, overlays the optional user file,
// validates, and computes derived values.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Finalize validates the configuration and recomputes derived values, for
// callers that mutate a loaded config.
func (c *Config) Finalize() error {
	if err := c.Validate(); err != nil {
		return err
	}
	c.computeDerived()
	return nil
}

// Validate rejects configurations the solver cannot run with.
func (c *Config) Validate() error {
	if !(c.Solver.DT > 0) {
		return fmt.Errorf("solver.dt must be positive, got %v", c.Solver.DT)
	}
	if c.Solver.DiffusionCoefficient < 0 {
		return fmt.Errorf("solver.diffusion_coefficient must be non-negative, got %v", c.Solver.DiffusionCoefficient)
	}
	if c.Solver.Workers < 0 {
		return fmt.Errorf("solver.workers must be non-negative, got %d", c.Solver.Workers)
	}
	if !(c.Phase.SaturationGamma >= 1) {
		return fmt.Errorf("phase.saturation_gamma must be at least 1, got %v", c.Phase.SaturationGamma)
	}
	if c.Explosion.StreakThreshold < 1 {
		return fmt.Errorf("explosion.streak_threshold must be at least 1, got %d", c.Explosion.StreakThreshold)
	}
	if !(c.Telemetry.StatsWindow > 0) {
		return fmt.Errorf("telemetry.stats_window must be positive, got %v", c.Telemetry.StatsWindow)
	}
	if c.Telemetry.PerfWindow < 1 {
		return fmt.Errorf("telemetry.perf_window must be at least 1, got %d", c.Telemetry.PerfWindow)
	}
	return nil
}

func (c *Config) computeDerived() {
	ticks := int64(c.Telemetry.StatsWindow / c.Solver.DT)
	if ticks < 1 {
		ticks = 1
	}
	c.Derived.TicksPerWindow = ticks
}

// WriteYAML writes the active configuration to path, so a run's parameters
// can be reproduced later.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}
