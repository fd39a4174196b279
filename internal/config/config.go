package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when GROUNDSLOT_CONFIG_PATH is not set.
const DefaultPath = "configs/config.yaml"

// DefaultRateLimit applies when http.rate_limit is absent from the file.
const DefaultRateLimit = 2

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Backup     BackupConfig     `yaml:"backup"`
	Redis      RedisConfig      `yaml:"redis"`
	HTTP       HTTPConfig       `yaml:"http"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Booking    BookingConfig    `yaml:"booking"`
	Esewa      EsewaConfig      `yaml:"esewa"`
	Payment    PaymentConfig    `yaml:"payment"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Timezone    string `yaml:"timezone"` // slot times are wall-clock times in this zone
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	StoragePath   string `yaml:"storage_path"`
	RetentionDays int    `yaml:"retention_days"`
}

type RedisConfig struct {
	Address          string `yaml:"address"`
	Password         string `yaml:"password"`
	DB               int    `yaml:"db"`
	StatusTTLSeconds int    `yaml:"status_ttl_seconds"`
}

type HTTPConfig struct {
	Port      int     `yaml:"port"`
	APIKey    string  `yaml:"api_key"`
	RateLimit float64 `yaml:"rate_limit"` // requests per second per user on write routes, 0 disables
	RateBurst int     `yaml:"rate_burst"`
}

type MonitoringConfig struct {
	HealthCheckPort   int  `yaml:"health_check_port"`
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

// BookingConfig holds optional booking window rules. Zero disables a rule.
type BookingConfig struct {
	MinAdvanceMinutes int `yaml:"min_advance_minutes"`
	MaxAdvanceDays    int `yaml:"max_advance_days"`
}

type EsewaConfig struct {
	SecretKey          string `yaml:"secret_key"`
	ProductCode        string `yaml:"product_code"`
	FormURL            string `yaml:"form_url"`
	SuccessURL         string `yaml:"success_url"`
	FailureURL         string `yaml:"failure_url"`
	FrontendSuccessURL string `yaml:"frontend_success_url"`
	FrontendFailureURL string `yaml:"frontend_failure_url"`
}

type PaymentConfig struct {
	PendingTTLMinutes    int `yaml:"pending_ttl_minutes"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// Load reads the YAML config at path. A .env file in the working directory,
// if present, is loaded first so ${VAR} placeholders can refer to it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	// Seeded before decoding so an explicit rate_limit: 0 survives.
	cfg := Config{HTTP: HTTPConfig{RateLimit: DefaultRateLimit}}
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, cfg.Validate()
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "groundslot"
	}
	if c.App.Timezone == "" {
		c.App.Timezone = "UTC"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/groundslot.db"
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "data/backups"
	}
	if c.Backup.IntervalHours <= 0 {
		c.Backup.IntervalHours = 24
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.RateBurst <= 0 {
		c.HTTP.RateBurst = 5
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Esewa.ProductCode == "" {
		c.Esewa.ProductCode = "EPAYTEST"
	}
	if c.Esewa.FormURL == "" {
		c.Esewa.FormURL = "https://rc-epay.esewa.com.np/api/epay/main/v2/form"
	}
	if c.Payment.PendingTTLMinutes <= 0 {
		c.Payment.PendingTTLMinutes = 15
	}
	if c.Payment.SweepIntervalSeconds <= 0 {
		c.Payment.SweepIntervalSeconds = 60
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

// Validate reports settings the service cannot run without.
func (c *Config) Validate() error {
	if c.Esewa.SecretKey == "" {
		return errors.New("esewa.secret_key is required")
	}
	if c.HTTP.RateLimit < 0 {
		return errors.New("http.rate_limit must not be negative")
	}
	if c.Booking.MinAdvanceMinutes < 0 || c.Booking.MaxAdvanceDays < 0 {
		return errors.New("booking advance limits must not be negative")
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("app.timezone: %w", err)
	}
	return nil
}

// BookingMinAdvance is how far ahead of the slot start an online booking
// must be made. Zero disables the check.
func (c *Config) BookingMinAdvance() time.Duration {
	return c.Booking.MinAdvance()
}

// BookingMaxAdvance limits how far into the future a slot can be booked.
// Zero disables the check.
func (c *Config) BookingMaxAdvance() time.Duration {
	return c.Booking.MaxAdvance()
}

func (b BookingConfig) MinAdvance() time.Duration {
	return time.Duration(b.MinAdvanceMinutes) * time.Minute
}

func (b BookingConfig) MaxAdvance() time.Duration {
	return time.Duration(b.MaxAdvanceDays) * 24 * time.Hour
}

// Location returns the zone slot times are expressed in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) PendingTTL() time.Duration {
	return time.Duration(c.Payment.PendingTTLMinutes) * time.Minute
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Payment.SweepIntervalSeconds) * time.Second
}

// StatusCacheTTL is zero when the status cache is disabled.
func (c *Config) StatusCacheTTL() time.Duration {
	if c.Redis.Address == "" {
		return 0
	}
	return time.Duration(c.Redis.StatusTTLSeconds) * time.Second
}
