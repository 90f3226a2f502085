package infra

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"backtest_go/internal/domain"
)

// ProductConfig names one product and its input files.
type ProductConfig struct {
	Name          string `yaml:"name"`
	PriceCSV      string `yaml:"price_csv"`
	TradesCSV     string `yaml:"trades_csv"`
	PositionLimit int64  `yaml:"position_limit"` // 0 = use the built-in table
}

// Config holds the full run configuration.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Run struct {
		FallbackMidPrice     int64 `yaml:"fallback_mid_price"`
		DefaultPositionLimit int64 `yaml:"default_position_limit"`
	} `yaml:"run"`

	Products []ProductConfig `yaml:"products"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// LoadConfig reads and validates the configuration file. Environment
// variables override selected values after parsing.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if len(c.Products) == 0 {
		return fmt.Errorf("at least one product is required")
	}

	seen := make(map[string]bool, len(c.Products))
	for _, p := range c.Products {
		if p.Name == "" {
			return fmt.Errorf("product name must not be empty")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate product %q", p.Name)
		}
		seen[p.Name] = true

		if p.PriceCSV == "" {
			return fmt.Errorf("product %q: price_csv is required", p.Name)
		}
		if p.TradesCSV == "" {
			return fmt.Errorf("product %q: trades_csv is required", p.Name)
		}
		if p.PositionLimit < 0 {
			return fmt.Errorf("product %q: position_limit must not be negative", p.Name)
		}
	}

	if c.Run.FallbackMidPrice < 0 {
		return fmt.Errorf("fallback_mid_price must not be negative")
	}
	if c.Run.DefaultPositionLimit < 0 {
		return fmt.Errorf("default_position_limit must not be negative")
	}
	return nil
}

// PositionLimits returns the per-product overrides declared in config.
func (c *Config) PositionLimits() map[string]int64 {
	limits := make(map[string]int64)
	for _, p := range c.Products {
		if p.PositionLimit > 0 {
			limits[p.Name] = p.PositionLimit
		}
	}
	return limits
}

// overrideWithEnv applies environment overrides when present.
func overrideWithEnv(cfg *Config) {
	if level := os.Getenv("BACKTEST_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if dir := os.Getenv("BACKTEST_LOG_DIR"); dir != "" {
		cfg.Logging.Dir = dir
	}
}
