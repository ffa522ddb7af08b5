package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"options-quoter-go/covariance"
	"options-quoter-go/engine"
	"options-quoter-go/infrastructure/logger"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env         string                   `yaml:"env"`
	MetricsAddr string                   `yaml:"metricsAddr"`
	Logger      logger.Config            `yaml:"logger"`
	Symbols     map[string]engine.Config `yaml:"symbols"`
}

// Load reads YAML config from path and applies full validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides deployment fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("OQ_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("OQ_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("OQ_DEV_CHECKS"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("parse OQ_DEV_CHECKS: %w", err)
		}
		for sym, sc := range cfg.Symbols {
			sc.DevChecks = on
			cfg.Symbols[sym] = sc
		}
	}
	return cfg, Validate(cfg)
}

// applyDefaults 为缺省段落填充默认值（symbol 名回填到各自配置）。
func applyDefaults(cfg *AppConfig) {
	if cfg.Logger.Level == "" {
		cfg.Logger = logger.DefaultConfig()
	}
	for sym, sc := range cfg.Symbols {
		if sc.Symbol == "" {
			sc.Symbol = sym
		}
		if sc.Covariance.HorizonMs == 0 {
			sc.Covariance = covariance.DefaultConfig()
		}
		cfg.Symbols[sym] = sc
	}
}
