package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"library-circulation-backend/internal/domain"
)

// Config represents the application configuration
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	Storage       StorageConfig       `yaml:"storage"`
	Log           LogConfig           `yaml:"log"`
	Audit         AuditConfig         `yaml:"audit"`
	Circulation   CirculationConfig   `yaml:"circulation"`
	Fines         FinesConfig         `yaml:"fines"`
	Blocking      BlockingConfig      `yaml:"blocking"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Driver        string `yaml:"driver" env:"DB_DRIVER"` // "postgres" (lib/pq) or "pgx"
	Host          string `yaml:"host" env:"DB_HOST"`
	Port          int    `yaml:"port" env:"DB_PORT"`
	User          string `yaml:"user" env:"DB_USER"`
	Password      string `yaml:"password" env:"DB_PASSWORD"`
	Database      string `yaml:"database" env:"DB_NAME"`
	SSLMode       string `yaml:"ssl_mode" env:"DB_SSL_MODE"`
	MaxOpenConns  int    `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS"`
	RetryAttempts int    `yaml:"retry_attempts" env:"DB_RETRY_ATTEMPTS"`
	AutoMigrate   bool   `yaml:"auto_migrate" env:"DB_AUTO_MIGRATE"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Type string `yaml:"type" env:"STORAGE_TYPE"` // "postgres" or "memory"
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`   // "debug", "info", "warn", "error"
	Format string `yaml:"format" env:"LOG_FORMAT"` // "json" or "text"
}

// AuditConfig selects where circulation transitions are recorded
type AuditConfig struct {
	Sink string `yaml:"sink" env:"AUDIT_SINK"` // "sqlite", "log" or "none"
	Path string `yaml:"path" env:"AUDIT_PATH"`
}

type TierConfig struct {
	MaxLoans       int `yaml:"max_loans"`
	LoanPeriodDays int `yaml:"loan_period_days"`
}

// CirculationConfig contains loan and reservation policy
type CirculationConfig struct {
	LoanPeriodDays             int                   `yaml:"loan_period_days" env:"LOAN_PERIOD_DAYS"`
	MaxLoans                   int                   `yaml:"max_loans" env:"MAX_LOANS"`
	MaxExtensions              int                   `yaml:"max_extensions" env:"MAX_EXTENSIONS"` // -1 allows none
	ExtensionDays              int                   `yaml:"extension_days" env:"EXTENSION_DAYS"`
	MaxExtensionDays           int                   `yaml:"max_extension_days" env:"MAX_EXTENSION_DAYS"`
	PickupWindowHours          int                   `yaml:"pickup_window_hours" env:"PICKUP_WINDOW_HOURS"`
	BlockExtensionWhenReserved bool                  `yaml:"block_extension_when_reserved" env:"BLOCK_EXTENSION_WHEN_RESERVED"`
	Tiers                      map[string]TierConfig `yaml:"tiers"`
}

// FinesConfig contains overdue fine settings. Amounts are decimal strings.
type FinesConfig struct {
	DailyRate string `yaml:"daily_rate" env:"FINE_DAILY_RATE"`
	Currency  string `yaml:"currency" env:"FINE_CURRENCY"`
	GraceDays int    `yaml:"grace_days" env:"FINE_GRACE_DAYS"`
}

// BlockingConfig contains the thresholds of the auto-block pass.
// MaxUnpaidFines "0" or MaxOverdueDays -1 switches that criterion off.
type BlockingConfig struct {
	MaxUnpaidFines string `yaml:"max_unpaid_fines" env:"BLOCK_MAX_UNPAID_FINES"`
	MaxOverdueDays int    `yaml:"max_overdue_days" env:"BLOCK_MAX_OVERDUE_DAYS"`
}

// OverdueDaysLimit is the overdue-days threshold handed to the block pass, 0 when off.
func (b BlockingConfig) OverdueDaysLimit() int {
	return off(b.MaxOverdueDays)
}

// NotificationsConfig contains dispatcher settings
type NotificationsConfig struct {
	DedupeWindowHours int `yaml:"dedupe_window_hours" env:"NOTIFY_DEDUPE_WINDOW_HOURS"` // -1 disables dedupe
	DueSoonHours      int `yaml:"due_soon_hours" env:"NOTIFY_DUE_SOON_HOURS"`
}

// SchedulerConfig contains cron schedule settings (seconds field first, UTC)
type SchedulerConfig struct {
	ExpireReservations string `yaml:"expire_reservations" env:"CRON_EXPIRE_RESERVATIONS"`
	AssessFines        string `yaml:"assess_fines" env:"CRON_ASSESS_FINES"`
	BlockPatrons       string `yaml:"block_patrons" env:"CRON_BLOCK_PATRONS"`
	SendDueReminders   string `yaml:"send_due_reminders" env:"CRON_SEND_DUE_REMINDERS"`
}

// Load reads configuration from a YAML file, then applies environment overrides
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML bytes plus the environment
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate fills defaults and checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	// Storage
	if c.Storage.Type == "" {
		c.Storage.Type = "postgres"
	}
	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if err := c.Database.validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown storage type: %q", c.Storage.Type)
	}

	// Audit
	if c.Audit.Sink == "" {
		c.Audit.Sink = "log"
	}
	switch c.Audit.Sink {
	case "sqlite":
		if c.Audit.Path == "" {
			c.Audit.Path = "circulation-audit.db"
		}
	case "log", "none":
	default:
		return fmt.Errorf("unknown audit sink: %q", c.Audit.Sink)
	}

	if err := c.Circulation.validate(); err != nil {
		return err
	}

	// Fines
	if c.Fines.DailyRate == "" {
		c.Fines.DailyRate = "0.25"
	}
	rate, err := decimal.NewFromString(c.Fines.DailyRate)
	if err != nil || rate.IsNegative() {
		return fmt.Errorf("invalid fine daily rate: %q", c.Fines.DailyRate)
	}
	if c.Fines.Currency == "" {
		c.Fines.Currency = "USD"
	}
	if c.Fines.GraceDays < 0 {
		return fmt.Errorf("fine grace days must not be negative")
	}

	// Blocking
	if c.Blocking.MaxUnpaidFines == "" {
		c.Blocking.MaxUnpaidFines = "10.00"
	}
	if _, err := decimal.NewFromString(c.Blocking.MaxUnpaidFines); err != nil {
		return fmt.Errorf("invalid max unpaid fines: %q", c.Blocking.MaxUnpaidFines)
	}
	if c.Blocking.MaxOverdueDays == 0 {
		c.Blocking.MaxOverdueDays = 30
	}

	// Notifications
	if c.Notifications.DedupeWindowHours == 0 {
		c.Notifications.DedupeWindowHours = 24
	}
	if c.Notifications.DueSoonHours == 0 {
		c.Notifications.DueSoonHours = 48
	}

	// Scheduler defaults
	if c.Scheduler.ExpireReservations == "" {
		c.Scheduler.ExpireReservations = "0 */15 * * * *" // every 15 minutes
	}
	if c.Scheduler.AssessFines == "" {
		c.Scheduler.AssessFines = "0 0 2 * * *" // 2 AM UTC
	}
	if c.Scheduler.BlockPatrons == "" {
		c.Scheduler.BlockPatrons = "0 30 2 * * *" // 2:30 AM UTC
	}
	if c.Scheduler.SendDueReminders == "" {
		c.Scheduler.SendDueReminders = "0 0 9 * * *" // 9 AM UTC
	}

	return nil
}

func (d *DatabaseConfig) validate() error {
	if d.Driver == "" {
		d.Driver = "postgres"
	}
	if d.Driver != "postgres" && d.Driver != "pgx" {
		return fmt.Errorf("unsupported database driver: %q", d.Driver)
	}
	if d.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if d.Port == 0 {
		d.Port = 5432
	}
	if d.Port < 0 || d.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", d.Port)
	}
	if d.User == "" {
		return fmt.Errorf("database user is required")
	}
	if d.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}
	if d.MaxOpenConns == 0 {
		d.MaxOpenConns = 10
	}
	return nil
}

func (c *CirculationConfig) validate() error {
	if c.LoanPeriodDays == 0 {
		c.LoanPeriodDays = 14
	}
	if c.MaxLoans == 0 {
		c.MaxLoans = 5
	}
	if c.MaxExtensions == 0 {
		c.MaxExtensions = 2
	}
	if c.ExtensionDays == 0 {
		c.ExtensionDays = 7
	}
	if c.MaxExtensionDays == 0 {
		c.MaxExtensionDays = 14
	}
	if c.PickupWindowHours == 0 {
		c.PickupWindowHours = 48
	}
	if c.LoanPeriodDays < 0 || c.MaxLoans < 0 || c.ExtensionDays < 0 || c.PickupWindowHours < 0 {
		return fmt.Errorf("circulation settings must not be negative")
	}
	if c.ExtensionDays > c.MaxExtensionDays {
		return fmt.Errorf("extension days (%d) exceed max extension days (%d)", c.ExtensionDays, c.MaxExtensionDays)
	}
	for name, tier := range c.Tiers {
		if tier.MaxLoans < 0 || tier.LoanPeriodDays < 0 {
			return fmt.Errorf("tier %q has negative limits", name)
		}
	}
	return nil
}

// Policy returns the circulation rules derived from the configuration.
// Call after Validate.
func (c *Config) Policy() domain.Policy {
	p := domain.DefaultPolicy()
	p.LoanPeriodDays = c.Circulation.LoanPeriodDays
	p.DefaultMaxLoans = c.Circulation.MaxLoans
	p.MaxExtensions = off(c.Circulation.MaxExtensions)
	p.ExtensionDays = c.Circulation.ExtensionDays
	p.MaxExtensionDays = c.Circulation.MaxExtensionDays
	p.PickupWindow = time.Duration(c.Circulation.PickupWindowHours) * time.Hour
	p.BlockExtensionWhenReserved = c.Circulation.BlockExtensionWhenReserved
	for name, tier := range c.Circulation.Tiers {
		p.Tiers[name] = domain.TierPolicy{MaxLoans: tier.MaxLoans, LoanPeriodDays: tier.LoanPeriodDays}
	}

	if rate, err := decimal.NewFromString(c.Fines.DailyRate); err == nil {
		p.FineDailyRate = rate
	}
	p.FineCurrency = c.Fines.Currency
	p.FineGraceDays = c.Fines.GraceDays

	if limit, err := decimal.NewFromString(c.Blocking.MaxUnpaidFines); err == nil {
		p.BlockMaxUnpaidFines = limit
	}
	p.BlockMaxOverdueDays = c.Blocking.OverdueDaysLimit()
	return p
}

// DedupeWindow is how far back the dispatcher looks for an identical notification
func (c *Config) DedupeWindow() time.Duration {
	return time.Duration(off(c.Notifications.DedupeWindowHours)) * time.Hour
}

// off maps the negative "switched off" setting to 0. Zero itself means
// "use the default" and is filled in by Validate.
func off(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

// DueSoonWindow is how far ahead the reminder pass looks for due loans
func (c *Config) DueSoonWindow() time.Duration {
	return time.Duration(c.Notifications.DueSoonHours) * time.Hour
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}
