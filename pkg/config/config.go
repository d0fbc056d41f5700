// Package config loads service settings from defaults, an optional YAML
// file and the environment, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"templateflow/pkg/logger"
	"templateflow/pkg/template"
)

// Config holds the service settings.
type Config struct {
	Addr             string  `yaml:"addr"`
	DatabaseURL      string  `yaml:"database_url"`
	OtelHost         string  `yaml:"otel_host"`
	TraceProbability float64 `yaml:"trace_probability"`
	LogLevel         string  `yaml:"log_level"`
	IDStrategy       string  `yaml:"id_strategy"`
}

// Default returns the settings used when nothing is configured: in-memory
// storage on port 3000.
func Default() Config {
	return Config{
		Addr:             "0.0.0.0:3000",
		TraceProbability: 1.0,
		LogLevel:         "info",
		IDStrategy:       template.StrategyCount,
	}
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load builds the configuration. When CONFIG_FILE is set the YAML file it
// names is applied over the defaults; environment variables win over both.
func Load(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg := Default()

	if path, ok := lookup("CONFIG_FILE"); ok && path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	str := map[string]*string{
		"ADDR":         &cfg.Addr,
		"DATABASE_URL": &cfg.DatabaseURL,
		"OTEL_HOST":    &cfg.OtelHost,
		"LOG_LEVEL":    &cfg.LogLevel,
		"ID_STRATEGY":  &cfg.IDStrategy,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	if v, ok := lookup("TRACE_PROBABILITY"); ok {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("TRACE_PROBABILITY: %w", err)
		}
		cfg.TraceProbability = p
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if c.TraceProbability < 0 || c.TraceProbability > 1 {
		return fmt.Errorf("trace probability %v out of range [0,1]", c.TraceProbability)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.IDStrategy {
	case template.StrategyCount, template.StrategySequence:
	default:
		return fmt.Errorf("unknown id strategy %q", c.IDStrategy)
	}
	return nil
}
