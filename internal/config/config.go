package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup BackupConfig `yaml:"backup"`

	Redis struct {
		Enabled    bool   `yaml:"enabled"`
		Address    string `yaml:"address"`
		Password   string `yaml:"password"`
		DB         int    `yaml:"db"`
		TTLSeconds int    `yaml:"ttl_seconds"`
	} `yaml:"redis"`

	Server struct {
		Port          int     `yaml:"port"`
		RatePerSecond float64 `yaml:"rate_per_second"`
		RateBurst     int     `yaml:"rate_burst"`
	} `yaml:"server"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Booking BookingConfig `yaml:"booking"`

	Reports struct {
		Dir string `yaml:"dir"`
	} `yaml:"reports"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	StoragePath   string `yaml:"storage_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// BookingConfig carries the validation rules the lifecycle manager
// applies on top of availability checks.
type BookingConfig struct {
	Timezone string `yaml:"timezone"`
	// Scenarios that must carry a tariff and people count. All other
	// scenarios must not carry a tariff at all.
	TariffRequiredScenarios []string `yaml:"tariff_required_scenarios"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/studiobron.db"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Booking.Timezone == "" {
		cfg.Booking.Timezone = "Europe/Moscow"
	}
	if len(cfg.Booking.TariffRequiredScenarios) == 0 {
		cfg.Booking.TariffRequiredScenarios = []string{"Репетиционная точка", "Музыкальный класс"}
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Location resolves the canonical timezone all reservation timestamps
// are compared in.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Booking.Timezone)
}

// RedisTTL returns the schedule cache lifetime.
func (c *Config) RedisTTL() time.Duration {
	if c.Redis.TTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Redis.TTLSeconds) * time.Second
}

// TariffRequired reports whether the scenario name demands tariff
// pricing.
func (c *BookingConfig) TariffRequired(scenarioName string) bool {
	for _, name := range c.TariffRequiredScenarios {
		if name == scenarioName {
			return true
		}
	}
	return false
}
