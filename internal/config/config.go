package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for our application
type Config struct {
	Server    ServerConfig    `mapstructure:",squash"`
	Database  DatabaseConfig  `mapstructure:",squash"`
	Redis     RedisConfig     `mapstructure:",squash"`
	Scheduler SchedulerConfig `mapstructure:",squash"`
	Logging   LoggingConfig   `mapstructure:",squash"`
	Business  BusinessConfig  `mapstructure:",squash"`
	Health    HealthConfig    `mapstructure:",squash"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"SERVER_PORT"`
	Host         string        `mapstructure:"SERVER_HOST"`
	Env          string        `mapstructure:"ENV"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"DATABASE_URL"`
	Host            string        `mapstructure:"DATABASE_HOST"`
	Port            string        `mapstructure:"DATABASE_PORT"`
	Name            string        `mapstructure:"DATABASE_NAME"`
	User            string        `mapstructure:"DATABASE_USER"`
	Password        string        `mapstructure:"DATABASE_PASSWORD"`
	SSLMode         string        `mapstructure:"DATABASE_SSLMODE"`
	MaxOpenConns    int           `mapstructure:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `mapstructure:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `mapstructure:"DATABASE_CONN_MAX_LIFETIME"`
	MigrationsPath  string        `mapstructure:"DATABASE_MIGRATIONS_PATH"`
}

type RedisConfig struct {
	Host     string        `mapstructure:"REDIS_HOST"`
	Port     string        `mapstructure:"REDIS_PORT"`
	Password string        `mapstructure:"REDIS_PASSWORD"`
	DB       int           `mapstructure:"REDIS_DB"`
	ClaimTTL time.Duration `mapstructure:"REDIS_CLAIM_TTL"`
}

type SchedulerConfig struct {
	OverdueSweep   string `mapstructure:"SCHEDULER_OVERDUE_SWEEP"`
	Reconciliation string `mapstructure:"SCHEDULER_RECONCILIATION"`
	Timezone       string `mapstructure:"SCHEDULER_TIMEZONE"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"LOG_LEVEL"`
	Format string `mapstructure:"LOG_FORMAT"`
}

// BusinessConfig carries the approval policy inputs.
type BusinessConfig struct {
	LendingCapRatio     string `mapstructure:"LENDING_CAP_RATIO"`
	ApprovalThreshold   string `mapstructure:"APPROVAL_THRESHOLD"`
	MinLoanLeadDays     int    `mapstructure:"MIN_LOAN_LEAD_DAYS"`
	MaxLoanHorizonDays  int    `mapstructure:"MAX_LOAN_HORIZON_DAYS"`
	MinLoanReasonLength int    `mapstructure:"MIN_LOAN_REASON_LENGTH"`
	AllocationTolerance string `mapstructure:"ALLOCATION_TOLERANCE"`
	ElevatedRoles       string `mapstructure:"ELEVATED_ROLES"`
}

type HealthConfig struct {
	Timeout string `mapstructure:"HEALTH_CHECK_TIMEOUT"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("ENV", "development")
	v.SetDefault("SERVER_READ_TIMEOUT", "15s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "15s")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", "5432")
	v.SetDefault("DATABASE_NAME", "fund_ledger")
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 25)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 5)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "5m")
	v.SetDefault("DATABASE_MIGRATIONS_PATH", "file://migrations")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_CLAIM_TTL", "10m")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("SCHEDULER_OVERDUE_SWEEP", "0 0 6 * * *")
	v.SetDefault("SCHEDULER_RECONCILIATION", "0 30 1 * * *")
	v.SetDefault("SCHEDULER_TIMEZONE", "UTC")
	v.SetDefault("HEALTH_CHECK_TIMEOUT", "5s")
	v.SetDefault("LENDING_CAP_RATIO", "0.30")
	v.SetDefault("APPROVAL_THRESHOLD", "5000000")
	v.SetDefault("MIN_LOAN_LEAD_DAYS", 1)
	v.SetDefault("MAX_LOAN_HORIZON_DAYS", 365)
	v.SetDefault("MIN_LOAN_REASON_LENGTH", 10)
	v.SetDefault("ALLOCATION_TOLERANCE", "0.01")
	v.SetDefault("ELEVATED_ROLES", "admin,director")
}

// Load reads configuration from environment variables and files
func Load() (*Config, error) {
	// Don't fail if .env file doesn't exist
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	// Read from environment variables
	v.AutomaticEnv()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./deployments")
	_ = v.ReadInConfig()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	if c.Database.URL == "" && c.Database.Host == "" {
		return fmt.Errorf("DATABASE_URL or DATABASE_HOST is required")
	}

	ratio, err := decimal.NewFromString(c.Business.LendingCapRatio)
	if err != nil {
		return fmt.Errorf("LENDING_CAP_RATIO must be a valid decimal: %w", err)
	}
	if !ratio.IsPositive() || ratio.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("LENDING_CAP_RATIO must be in (0, 1]")
	}

	threshold, err := decimal.NewFromString(c.Business.ApprovalThreshold)
	if err != nil {
		return fmt.Errorf("APPROVAL_THRESHOLD must be a valid decimal: %w", err)
	}
	if !threshold.IsPositive() {
		return fmt.Errorf("APPROVAL_THRESHOLD must be greater than 0")
	}

	tolerance, err := decimal.NewFromString(c.Business.AllocationTolerance)
	if err != nil {
		return fmt.Errorf("ALLOCATION_TOLERANCE must be a valid decimal: %w", err)
	}
	if tolerance.IsNegative() {
		return fmt.Errorf("ALLOCATION_TOLERANCE must not be negative")
	}

	if c.Business.MinLoanLeadDays < 0 {
		return fmt.Errorf("MIN_LOAN_LEAD_DAYS must not be negative")
	}

	if c.Business.MaxLoanHorizonDays < c.Business.MinLoanLeadDays {
		return fmt.Errorf("MAX_LOAN_HORIZON_DAYS must be at least MIN_LOAN_LEAD_DAYS")
	}

	if c.Business.MinLoanReasonLength < 1 {
		return fmt.Errorf("MIN_LOAN_REASON_LENGTH must be greater than 0")
	}

	if len(c.GetElevatedRoles()) == 0 {
		return fmt.Errorf("ELEVATED_ROLES must name at least one role")
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, spec := range map[string]string{
		"SCHEDULER_OVERDUE_SWEEP":  c.Scheduler.OverdueSweep,
		"SCHEDULER_RECONCILIATION": c.Scheduler.Reconciliation,
	} {
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("%s must be a valid cron spec: %w", name, err)
		}
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("SCHEDULER_TIMEZONE must be a valid location: %w", err)
	}

	// Validate health check timeout
	if _, err := time.ParseDuration(c.Health.Timeout); err != nil {
		return fmt.Errorf("HEALTH_CHECK_TIMEOUT must be a valid duration: %w", err)
	}

	return nil
}

// DSN returns the postgres connection string, preferring DATABASE_URL when set.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   d.Host + ":" + d.Port,
		Path:   "/" + d.Name,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development" || c.Server.Env == "dev"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production" || c.Server.Env == "prod"
}

// GetLendingCapRatio returns the lending cap ratio as decimal
func (c *Config) GetLendingCapRatio() decimal.Decimal {
	ratio, _ := decimal.NewFromString(c.Business.LendingCapRatio)
	return ratio
}

// GetApprovalThreshold returns the elevated approval threshold as decimal
func (c *Config) GetApprovalThreshold() decimal.Decimal {
	threshold, _ := decimal.NewFromString(c.Business.ApprovalThreshold)
	return threshold
}

// GetAllocationTolerance returns the allocation tolerance as decimal
func (c *Config) GetAllocationTolerance() decimal.Decimal {
	tolerance, _ := decimal.NewFromString(c.Business.AllocationTolerance)
	return tolerance
}

// GetElevatedRoles splits ELEVATED_ROLES on commas.
func (c *Config) GetElevatedRoles() []string {
	var roles []string
	for _, r := range strings.Split(c.Business.ElevatedRoles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}

// GetSchedulerLocation returns the scheduler timezone.
func (c *Config) GetSchedulerLocation() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetHealthTimeout returns the health check timeout as duration
func (c *Config) GetHealthTimeout() time.Duration {
	timeout, _ := time.ParseDuration(c.Health.Timeout)
	return timeout
}
