// Package config provides configuration loading for the factor estimation
// pipeline: a YAML file with environment-variable overrides, validated into
// the estimator and per-factor configurations.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aristath/factorlab/internal/modules/estimator"
	"github.com/aristath/factorlab/internal/modules/factors"
	"github.com/aristath/factorlab/internal/modules/panel"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig               `yaml:"log"`
	Estimator EstimatorConfig         `yaml:"estimator"`
	Factors   map[string]FactorConfig `yaml:"factors"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// EstimatorConfig mirrors estimator.Config in YAML form.
type EstimatorConfig struct {
	WinsorFactor      *float64 `yaml:"winsor_factor"`
	ResidualizeStyles bool     `yaml:"residualize_styles"`
	ConditionLimit    float64  `yaml:"condition_limit"`
	Parallelism       int      `yaml:"parallelism"`
}

// FactorConfig mirrors factors.Config in YAML form.
type FactorConfig struct {
	TrailingDays int     `yaml:"trailing_days"`
	HalfLife     float64 `yaml:"half_life"`
	Lag          int     `yaml:"lag"`
	WinsorFactor float64 `yaml:"winsor_factor"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	winsor := 0.05
	return &Config{
		Log: LogConfig{Level: "info", Pretty: true},
		Estimator: EstimatorConfig{
			WinsorFactor:      &winsor,
			ResidualizeStyles: true,
		},
		Factors: map[string]FactorConfig{
			"momentum": fromFactors(factors.DefaultMomentumConfig),
			"size":     fromFactors(factors.DefaultSizeConfig),
			"value":    fromFactors(factors.DefaultValueConfig),
		},
	}
}

// Load reads configuration from the given YAML file (optional, "" for
// defaults) and applies environment overrides. A .env file in the working
// directory is honored. Invalid values are fatal at load time.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("%w: parsing %s: %v", panel.ErrInvalidConfig, path, err)
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("FACTORLAB_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("FACTORLAB_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Estimator.Parallelism = n
		}
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if _, err := c.EstimatorConfig(); err != nil {
		return err
	}
	for name := range c.Factors {
		if _, err := c.FactorConfig(name); err != nil {
			return fmt.Errorf("factor %q: %w", name, err)
		}
	}
	return nil
}

// EstimatorConfig converts and validates the estimator section.
func (c *Config) EstimatorConfig() (estimator.Config, error) {
	out := estimator.Config{
		WinsorFactor:      c.Estimator.WinsorFactor,
		ResidualizeStyles: c.Estimator.ResidualizeStyles,
		ConditionLimit:    c.Estimator.ConditionLimit,
		Parallelism:       c.Estimator.Parallelism,
	}
	if err := out.Validate(); err != nil {
		return estimator.Config{}, err
	}
	return out, nil
}

// FactorConfig converts and validates one factor section.
func (c *Config) FactorConfig(name string) (factors.Config, error) {
	fc, ok := c.Factors[name]
	if !ok {
		return factors.Config{}, fmt.Errorf("%w: %q", panel.ErrUnknownFactor, name)
	}
	out := factors.Config{
		TrailingDays: fc.TrailingDays,
		HalfLife:     fc.HalfLife,
		Lag:          fc.Lag,
		WinsorFactor: fc.WinsorFactor,
	}
	if err := out.Validate(); err != nil {
		return factors.Config{}, err
	}
	return out, nil
}

func fromFactors(c factors.Config) FactorConfig {
	return FactorConfig{
		TrailingDays: c.TrailingDays,
		HalfLife:     c.HalfLife,
		Lag:          c.Lag,
		WinsorFactor: c.WinsorFactor,
	}
}
