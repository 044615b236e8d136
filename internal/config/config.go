package config

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for our application
type Config struct {
	Server        ServerConfig        `mapstructure:",squash"`
	Database      DatabaseConfig      `mapstructure:",squash"`
	Redis         RedisConfig         `mapstructure:",squash"`
	Scheduler     SchedulerConfig     `mapstructure:",squash"`
	Logging       LoggingConfig       `mapstructure:",squash"`
	Business      BusinessConfig      `mapstructure:",squash"`
	Payments      PaymentsConfig      `mapstructure:",squash"`
	Notifications NotificationsConfig `mapstructure:",squash"`
	Security      SecurityConfig      `mapstructure:",squash"`
	Health        HealthConfig        `mapstructure:",squash"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"SERVER_PORT"`
	Host         string        `mapstructure:"SERVER_HOST"`
	Env          string        `mapstructure:"ENV"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
	AdminAPIKey  string        `mapstructure:"ADMIN_API_KEY"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"DATABASE_URL"`
	MaxOpenConns    int           `mapstructure:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `mapstructure:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `mapstructure:"DATABASE_CONN_MAX_LIFETIME"`
}

type RedisConfig struct {
	Host     string `mapstructure:"REDIS_HOST"`
	Port     string `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
}

type SchedulerConfig struct {
	Timezone          string `mapstructure:"SCHEDULER_TIMEZONE"`
	DueSoonSpec       string `mapstructure:"SCHEDULER_DUE_SOON_SPEC"`
	OverdueSpec       string `mapstructure:"SCHEDULER_OVERDUE_SPEC"`
	CreditSpec        string `mapstructure:"SCHEDULER_CREDIT_SPEC"`
	ReconcileSpec     string `mapstructure:"SCHEDULER_RECONCILE_SPEC"`
	NotifyRetrySpec   string `mapstructure:"SCHEDULER_NOTIFY_RETRY_SPEC"`
	JobLockTTL        string `mapstructure:"SCHEDULER_JOB_LOCK_TTL"`
	JobMaxRetries     int    `mapstructure:"SCHEDULER_JOB_MAX_RETRIES"`
	CreditConcurrency int    `mapstructure:"SCHEDULER_CREDIT_CONCURRENCY"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"LOG_LEVEL"`
	Format string `mapstructure:"LOG_FORMAT"`
}

type BusinessConfig struct {
	BaseLoanLimit      string `mapstructure:"BASE_LOAN_LIMIT"`
	Currency           string `mapstructure:"CURRENCY"`
	DefaultPhoneRegion string `mapstructure:"DEFAULT_PHONE_REGION"`
	RetrySweepBatch    int    `mapstructure:"NOTIFY_RETRY_BATCH"`
	ReportCacheTTL     string `mapstructure:"REPORT_CACHE_TTL"`
}

type PaymentsConfig struct {
	CallbackToken     string `mapstructure:"MPESA_CALLBACK_TOKEN"`
	WebhookSecret     string `mapstructure:"MPESA_WEBHOOK_SECRET"`
	AllowedIPs        string `mapstructure:"MPESA_CALLBACK_ALLOWED_IPS"`
	TrustForwardedFor bool   `mapstructure:"MPESA_TRUST_FORWARDED_FOR"`
}

type NotificationsConfig struct {
	TwilioBaseURL      string `mapstructure:"TWILIO_BASE_URL"`
	TwilioAccountSID   string `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken    string `mapstructure:"TWILIO_AUTH_TOKEN"`
	SMSFrom            string `mapstructure:"TWILIO_FROM_NUMBER"`
	WhatsAppFrom       string `mapstructure:"TWILIO_WHATSAPP_FROM_NUMBER"`
	EnableWhatsApp     bool   `mapstructure:"ENABLE_WHATSAPP_REMINDERS"`
	SendTimeout        string `mapstructure:"NOTIFY_SEND_TIMEOUT"`
	DispatchWorkers    int    `mapstructure:"NOTIFY_DISPATCH_WORKERS"`
	DispatchQueueSize  int    `mapstructure:"NOTIFY_DISPATCH_QUEUE_SIZE"`
	DispatchAttempts   int    `mapstructure:"NOTIFY_DISPATCH_ATTEMPTS"`
	DispatchBackoffMin string `mapstructure:"NOTIFY_DISPATCH_BACKOFF"`
}

type SecurityConfig struct {
	FieldEncryptionKey string `mapstructure:"FIELD_ENCRYPTION_KEY"`
	DataHashSalt       string `mapstructure:"DATA_HASH_SALT"`
}

type HealthConfig struct {
	Timeout string `mapstructure:"HEALTH_CHECK_TIMEOUT"`
}

// Load reads configuration from environment variables and files
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("ENV", "development")
	v.SetDefault("SERVER_READ_TIMEOUT", "15s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "15s")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 25)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 5)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("SCHEDULER_TIMEZONE", "Africa/Nairobi")
	v.SetDefault("SCHEDULER_DUE_SOON_SPEC", "0 0 8 * * *")
	v.SetDefault("SCHEDULER_OVERDUE_SPEC", "0 0 9 * * *")
	v.SetDefault("SCHEDULER_CREDIT_SPEC", "0 0 1 * * *")
	v.SetDefault("SCHEDULER_RECONCILE_SPEC", "0 0 3 * * *")
	v.SetDefault("SCHEDULER_NOTIFY_RETRY_SPEC", "0 */30 * * * *")
	v.SetDefault("SCHEDULER_JOB_LOCK_TTL", "10m")
	v.SetDefault("SCHEDULER_JOB_MAX_RETRIES", 3)
	v.SetDefault("SCHEDULER_CREDIT_CONCURRENCY", 4)
	v.SetDefault("BASE_LOAN_LIMIT", "5000.00")
	v.SetDefault("CURRENCY", "KES")
	v.SetDefault("DEFAULT_PHONE_REGION", "KE")
	v.SetDefault("NOTIFY_RETRY_BATCH", 50)
	v.SetDefault("REPORT_CACHE_TTL", "5m")
	v.SetDefault("TWILIO_BASE_URL", "https://api.twilio.com")
	v.SetDefault("ENABLE_WHATSAPP_REMINDERS", false)
	v.SetDefault("NOTIFY_SEND_TIMEOUT", "20s")
	v.SetDefault("NOTIFY_DISPATCH_WORKERS", 4)
	v.SetDefault("NOTIFY_DISPATCH_QUEUE_SIZE", 256)
	v.SetDefault("NOTIFY_DISPATCH_ATTEMPTS", 3)
	v.SetDefault("NOTIFY_DISPATCH_BACKOFF", "2s")
	v.SetDefault("HEALTH_CHECK_TIMEOUT", "5s")

	// Unmarshal only sees keys viper knows about, so every env-only key
	// without a default has to be bound explicitly.
	for _, key := range []string{
		"DATABASE_URL", "REDIS_PASSWORD", "ADMIN_API_KEY",
		"MPESA_CALLBACK_TOKEN", "MPESA_WEBHOOK_SECRET", "MPESA_CALLBACK_ALLOWED_IPS", "MPESA_TRUST_FORWARDED_FOR",
		"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_FROM_NUMBER", "TWILIO_WHATSAPP_FROM_NUMBER",
		"FIELD_ENCRYPTION_KEY", "DATA_HASH_SALT",
	} {
		_ = v.BindEnv(key)
	}

	// Read from environment variables
	v.AutomaticEnv()

	// Try to read from .env file (optional)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./deployments")

	// Don't fail if .env file doesn't exist
	_ = v.ReadInConfig()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
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

	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Payments.CallbackToken == "" {
		return fmt.Errorf("MPESA_CALLBACK_TOKEN is required")
	}

	if c.Security.DataHashSalt == "" {
		return fmt.Errorf("DATA_HASH_SALT is required")
	}

	if _, err := c.EncryptionKey(); err != nil {
		return fmt.Errorf("FIELD_ENCRYPTION_KEY: %w", err)
	}

	limit, err := decimal.NewFromString(c.Business.BaseLoanLimit)
	if err != nil {
		return fmt.Errorf("BASE_LOAN_LIMIT must be a valid decimal: %w", err)
	}
	if !limit.IsPositive() {
		return fmt.Errorf("BASE_LOAN_LIMIT must be greater than 0")
	}

	if c.Business.RetrySweepBatch <= 0 {
		return fmt.Errorf("NOTIFY_RETRY_BATCH must be greater than 0")
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("SCHEDULER_TIMEZONE must be a valid IANA zone: %w", err)
	}

	if c.Notifications.DispatchAttempts <= 0 {
		return fmt.Errorf("NOTIFY_DISPATCH_ATTEMPTS must be greater than 0")
	}

	for name, value := range map[string]string{
		"SCHEDULER_JOB_LOCK_TTL":  c.Scheduler.JobLockTTL,
		"REPORT_CACHE_TTL":        c.Business.ReportCacheTTL,
		"NOTIFY_SEND_TIMEOUT":     c.Notifications.SendTimeout,
		"NOTIFY_DISPATCH_BACKOFF": c.Notifications.DispatchBackoffMin,
		"HEALTH_CHECK_TIMEOUT":    c.Health.Timeout,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s must be a valid duration: %w", name, err)
		}
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development" || c.Server.Env == "dev"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production" || c.Server.Env == "prod"
}

// GetBaseLoanLimit returns the limit granted to a client with no history
func (c *Config) GetBaseLoanLimit() decimal.Decimal {
	limit, _ := decimal.NewFromString(c.Business.BaseLoanLimit)
	return limit
}

// GetLocation returns the business timezone used for calendar dates
func (c *Config) GetLocation() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetAllowedIPs returns the callback source allow-list; empty means any
func (c *Config) GetAllowedIPs() []string {
	var ips []string
	for _, ip := range strings.Split(c.Payments.AllowedIPs, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

// EncryptionKey decodes FIELD_ENCRYPTION_KEY, accepted as 64 hex characters
// or standard/URL-safe base64 of 32 bytes.
func (c *Config) EncryptionKey() ([]byte, error) {
	raw := strings.TrimSpace(c.Security.FieldEncryptionKey)
	if raw == "" {
		return nil, fmt.Errorf("is required")
	}

	if key, err := hex.DecodeString(raw); err == nil && len(key) == 32 {
		return key, nil
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding} {
		if key, err := enc.DecodeString(raw); err == nil && len(key) == 32 {
			return key, nil
		}
	}

	return nil, fmt.Errorf("must encode exactly 32 bytes as hex or base64")
}

func (c *Config) GetJobLockTTL() time.Duration {
	return mustDuration(c.Scheduler.JobLockTTL)
}

func (c *Config) GetReportCacheTTL() time.Duration {
	return mustDuration(c.Business.ReportCacheTTL)
}

func (c *Config) GetSendTimeout() time.Duration {
	return mustDuration(c.Notifications.SendTimeout)
}

func (c *Config) GetDispatchBackoff() time.Duration {
	return mustDuration(c.Notifications.DispatchBackoffMin)
}

// GetHealthTimeout returns the health check timeout as duration
func (c *Config) GetHealthTimeout() time.Duration {
	return mustDuration(c.Health.Timeout)
}

// mustDuration is only used on values Validate has already accepted.
func mustDuration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}
