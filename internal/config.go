package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Processor     ProcessorConfig     `mapstructure:"processor"`
	Billing       BillingConfig       `mapstructure:"billing"`
	Notification  NotificationConfig  `mapstructure:"notification"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source"`
}

// ProcessorConfig points at the external billing processor the engine
// authorizes, captures and refunds against.
type ProcessorConfig struct {
	APIURL         string        `mapstructure:"api_url" validate:"required,url"`
	APIKey         string        `mapstructure:"api_key"`
	WebhookURL     string        `mapstructure:"webhook_url"`
	CallTimeout    time.Duration `mapstructure:"call_timeout"`
	MaxWorkers     int           `mapstructure:"max_workers"`
	JobQueueSize   int           `mapstructure:"job_queue_size"`
	WorkerPoolSize int           `mapstructure:"worker_pool_size"`
}

type BillingConfig struct {
	GracePeriodDays  int    `mapstructure:"grace_period_days"`
	DefaultTimezone  string `mapstructure:"default_timezone"`
	RolloverSchedule string `mapstructure:"rollover_schedule"`
	RenewalSchedule  string `mapstructure:"renewal_schedule"`
	ExpirySchedule   string `mapstructure:"expiry_schedule"`
	RetrySchedule    string `mapstructure:"retry_schedule"`
}

type NotificationConfig struct {
	TransportURL string        `mapstructure:"transport_url"`
	SendTimeout  time.Duration `mapstructure:"send_timeout"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// ----------------- ENV FALLBACK -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

// LoadConfigFromEnv builds a Config from environment variables for
// container deployments where no config.yml is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("SERVER_PORT", 8080),
			BaseURL:           getEnv("SERVER_BASE_URL", "http://localhost:8080"),
			AllowedOrigins:    getEnv("SERVER_ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       60 * time.Second,
			WriteTimeout:      15 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			Source:          getEnv("DB_SOURCE", ""),
		},
		Processor: ProcessorConfig{
			APIURL:         getEnv("PROCESSOR_API_URL", ""),
			APIKey:         getEnv("PROCESSOR_API_KEY", ""),
			WebhookURL:     getEnv("PROCESSOR_WEBHOOK_URL", ""),
			CallTimeout:    30 * time.Second,
			MaxWorkers:     getEnvAsInt("PROCESSOR_MAX_WORKERS", 10),
			JobQueueSize:   getEnvAsInt("PROCESSOR_JOB_QUEUE_SIZE", 100),
			WorkerPoolSize: getEnvAsInt("PROCESSOR_WORKER_POOL_SIZE", 10),
		},
		Billing: BillingConfig{
			GracePeriodDays:  getEnvAsInt("BILLING_GRACE_PERIOD_DAYS", 3),
			DefaultTimezone:  getEnv("BILLING_DEFAULT_TIMEZONE", "UTC"),
			RolloverSchedule: getEnv("BILLING_ROLLOVER_SCHEDULE", "0 * * * *"),
			RenewalSchedule:  getEnv("BILLING_RENEWAL_SCHEDULE", "30 * * * *"),
			ExpirySchedule:   getEnv("BILLING_EXPIRY_SCHEDULE", "*/15 * * * *"),
			RetrySchedule:    getEnv("BILLING_RETRY_SCHEDULE", "0 */6 * * *"),
		},
		Notification: NotificationConfig{
			TransportURL: getEnv("NOTIFICATION_TRANSPORT_URL", ""),
			SendTimeout:  10 * time.Second,
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Processor.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("processor config: %v", err))
	}

	if err := c.Billing.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("billing config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *ProcessorConfig) Validate() error {
	if c.APIURL == "" {
		return errors.New("api_url is required")
	}
	if _, err := url.Parse(c.APIURL); err != nil {
		return fmt.Errorf("invalid api_url: %w", err)
	}
	return nil
}

func (c *BillingConfig) Validate() error {
	if c.GracePeriodDays < 0 {
		return errors.New("grace_period_days cannot be negative")
	}
	if c.DefaultTimezone != "" {
		if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
			return fmt.Errorf("invalid default_timezone: %w", err)
		}
	}
	return nil
}
