package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Address string `yaml:"address"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Booking struct {
		MinAdvanceMinutes     int   `yaml:"min_advance_minutes"`
		SelfCancelNoticeHours int   `yaml:"self_cancel_notice_hours"`
		MaxPackageWeeks       int   `yaml:"max_package_weeks"`
		AllowedWeekdays       []int `yaml:"allowed_weekdays"`
		SweepIntervalMinutes  int   `yaml:"sweep_interval_minutes"`
	} `yaml:"booking"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		StoragePath   string `yaml:"storage_path"`
		IntervalHours int    `yaml:"interval_hours"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	RateLimit struct {
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limit"`
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

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/tutorbook.db"
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) BookingMinAdvance() time.Duration {
	if c.Booking.MinAdvanceMinutes <= 0 {
		return 60 * time.Minute
	}
	return time.Duration(c.Booking.MinAdvanceMinutes) * time.Minute
}

func (c *Config) SelfCancelNotice() time.Duration {
	if c.Booking.SelfCancelNoticeHours <= 0 {
		return 12 * time.Hour
	}
	return time.Duration(c.Booking.SelfCancelNoticeHours) * time.Hour
}

func (c *Config) PackageWeeksLimit() int {
	if c.Booking.MaxPackageWeeks <= 0 {
		return 26
	}
	return c.Booking.MaxPackageWeeks
}

func (c *Config) SweepInterval() time.Duration {
	if c.Booking.SweepIntervalMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.Booking.SweepIntervalMinutes) * time.Minute
}

// AllowedWeekdays returns the set of bookable slot weekdays (1 = Monday,
// 7 = Sunday). An empty config list means all seven days are allowed.
func (c *Config) AllowedWeekdays() map[int]bool {
	days := make(map[int]bool, 7)
	if len(c.Booking.AllowedWeekdays) == 0 {
		for d := 1; d <= 7; d++ {
			days[d] = true
		}
		return days
	}
	for _, d := range c.Booking.AllowedWeekdays {
		if d >= 1 && d <= 7 {
			days[d] = true
		}
	}
	return days
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) CacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}
