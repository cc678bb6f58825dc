package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment"`
		LogLevel    string `yaml:"log_level"`
	} `yaml:"app"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		At            string `yaml:"at"` // "03:00", daily
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	HTTP struct {
		Port            int     `yaml:"port"`
		RateLimitRPS    float64 `yaml:"rate_limit_rps"`
		RateLimitBurst  int     `yaml:"rate_limit_burst"`
		ShutdownSeconds int     `yaml:"shutdown_seconds"`
	} `yaml:"http"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Booking struct {
		MaxAvailabilityDays int `yaml:"max_availability_days"`
	} `yaml:"booking"`

	Audit struct {
		Enabled    bool   `yaml:"enabled"`
		ExportPath string `yaml:"export_path"`
		DayOfMonth int    `yaml:"day_of_month"`
		At         string `yaml:"at"`
	} `yaml:"audit"`

	Canteens struct {
		Path                 string `yaml:"path"`
		WatchIntervalSeconds int    `yaml:"watch_interval_seconds"`
	} `yaml:"canteens"`
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
		cfg.Database.Path = "data/menza.db"
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) HTTPPort() int {
	if c.HTTP.Port <= 0 {
		return 8080
	}
	return c.HTTP.Port
}

func (c *Config) HealthPort() int {
	if c.Monitoring.HealthCheckPort <= 0 {
		return 8081
	}
	return c.Monitoring.HealthCheckPort
}

func (c *Config) MetricsPort() int {
	if c.Monitoring.PrometheusPort <= 0 {
		return 9090
	}
	return c.Monitoring.PrometheusPort
}

// MaxAvailabilityDays bounds the inclusive date range of an availability query.
func (c *Config) MaxAvailabilityDays() int {
	if c.Booking.MaxAvailabilityDays <= 0 {
		return 90
	}
	return c.Booking.MaxAvailabilityDays
}

func (c *Config) CacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	if c.HTTP.ShutdownSeconds <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.HTTP.ShutdownSeconds) * time.Second
}

func (c *Config) RateLimit() (rps float64, burst int) {
	rps, burst = c.HTTP.RateLimitRPS, c.HTTP.RateLimitBurst
	if rps <= 0 {
		rps = 20
	}
	if burst <= 0 {
		burst = 40
	}
	return rps, burst
}

func (c *Config) BackupPath() string {
	if c.Backup.Path == "" {
		return filepath.Join(filepath.Dir(c.Database.Path), "backups")
	}
	return c.Backup.Path
}

func (c *Config) BackupAt() string {
	if c.Backup.At == "" {
		return "03:00"
	}
	return c.Backup.At
}

func (c *Config) AuditExportPath() string {
	if c.Audit.ExportPath == "" {
		return filepath.Join(filepath.Dir(c.Database.Path), "exports")
	}
	return c.Audit.ExportPath
}

func (c *Config) AuditDayOfMonth() int {
	if c.Audit.DayOfMonth < 1 || c.Audit.DayOfMonth > 28 {
		return 1
	}
	return c.Audit.DayOfMonth
}

func (c *Config) AuditAt() string {
	if c.Audit.At == "" {
		return "04:00"
	}
	return c.Audit.At
}

func (c *Config) CanteensPath() string {
	if c.Canteens.Path == "" {
		return "configs/canteens.yaml"
	}
	return c.Canteens.Path
}

func (c *Config) CanteensWatchInterval() time.Duration {
	if c.Canteens.WatchIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Canteens.WatchIntervalSeconds) * time.Second
}
