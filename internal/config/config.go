package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config is the process configuration.
type Config struct {
	StorageDriver string        `yaml:"storage_driver"`
	DatabaseURL   string        `yaml:"-"`
	MaxOpenConns  int           `yaml:"max_open_conns"`
	HTTPAddr      string        `yaml:"http_addr"`
	LogLevel      string        `yaml:"log_level"`
	JWTSecret     string        `yaml:"-"`
	IngestSecret  string        `yaml:"-"`
	IngestSkew    time.Duration `yaml:"ingest_skew"`
	OpTimeout     time.Duration `yaml:"op_timeout"`

	Billing  BillingConfig  `yaml:"billing"`
	Bidding  BiddingConfig  `yaml:"bidding"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Notify   NotifyConfig   `yaml:"notify"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
}

// BillingConfig holds default tariff values.
type BillingConfig struct {
	RatePerKWh       string `yaml:"rate_per_kwh"`
	CreditRatePerKWh string `yaml:"credit_rate_per_kwh"`
	DueDay           int    `yaml:"due_day"`
}

// BiddingConfig tunes sessions and bid submission throttling.
type BiddingConfig struct {
	SessionHours int     `yaml:"session_hours"`
	BidsPerSec   float64 `yaml:"bids_per_second"`
	BidBurst     int     `yaml:"bid_burst"`
}

// ScheduleConfig holds cron specs. An empty spec disables the job.
type ScheduleConfig struct {
	Sweep          string `yaml:"sweep"`
	MonthlyBilling string `yaml:"monthly_billing"`
	Overdue        string `yaml:"overdue"`
	LimiterPrune   string `yaml:"limiter_prune"`
}

// NotifyConfig configures outbound notifications.
type NotifyConfig struct {
	WebhookURL string            `yaml:"webhook_url"`
	Templates  map[string]string `yaml:"templates"`
}

// KafkaConfig configures the payment event consumer. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// RedisConfig configures the scheduler lock. An empty address runs jobs without a lock.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	LockTTL  string `yaml:"lock_ttl"`
}

// Load reads an optional .env file, the environment and the optional SOLAR_CONFIG yaml file.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		StorageDriver: getenvDefault("STORAGE_DRIVER", StoragePostgres),
		DatabaseURL:   getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		MaxOpenConns:  getenvIntDefault("DB_MAX_OPEN_CONNS", 20),
		HTTPAddr:      getenvDefault("HTTP_ADDR", ":8080"),
		LogLevel:      getenvDefault("LOG_LEVEL", "info"),
		JWTSecret:     getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		IngestSecret:  getenvDefault("INGEST_HMAC_SECRET", ""),
		IngestSkew:    time.Duration(getenvIntDefault("INGEST_MAX_SKEW_SECONDS", 300)) * time.Second,
		OpTimeout:     getenvDuration("OP_TIMEOUT", 5*time.Second),
		Billing: BillingConfig{
			RatePerKWh:       getenvDefault("RATE_PER_KWH", "52"),
			CreditRatePerKWh: getenvDefault("CREDIT_RATE_PER_KWH", "30"),
			DueDay:           getenvIntDefault("INVOICE_DUE_DAY", 15),
		},
		Bidding: BiddingConfig{
			SessionHours: getenvIntDefault("BID_SESSION_HOURS", 48),
			BidsPerSec:   getenvFloatDefault("BID_RATE_PER_SECOND", 1),
			BidBurst:     getenvIntDefault("BID_RATE_BURST", 5),
		},
		Schedule: ScheduleConfig{
			Sweep:          getenvDefault("SWEEP_SCHEDULE", "@every 1m"),
			MonthlyBilling: getenvDefault("MONTHLY_BILLING_SCHEDULE", "0 2 1 * *"),
			Overdue:        getenvDefault("OVERDUE_SCHEDULE", "30 0 * * *"),
			LimiterPrune:   getenvDefault("LIMITER_PRUNE_SCHEDULE", "@every 10m"),
		},
		Notify: NotifyConfig{
			WebhookURL: os.Getenv("NOTIFY_WEBHOOK_URL"),
		},
		Kafka: KafkaConfig{
			Brokers: splitCSV(os.Getenv("KAFKA_BROKERS")),
			Topic:   getenvDefault("PAYMENTS_KAFKA_TOPIC", "payments.events"),
			GroupID: getenvDefault("PAYMENTS_KAFKA_GROUP", "solar-portal-payments"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getenvIntDefault("REDIS_DB", 0),
			LockTTL:  getenvDefault("SCHEDULER_LOCK_TTL", "5m"),
		},
	}

	if path := os.Getenv("SOLAR_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	return cfg, cfg.Validate()
}

// Validate checks required values and typed fields.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL or PG_DSN is required")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.StorageDriver)
	}
	if c.JWTSecret == "" {
		return errors.New("config: AUTH_JWT_SECRET is required")
	}
	if c.OpTimeout <= 0 {
		return errors.New("config: OP_TIMEOUT must be positive")
	}
	if _, _, err := c.Rates(); err != nil {
		return err
	}
	if c.Billing.DueDay < 1 || c.Billing.DueDay > 28 {
		return errors.New("config: due day must be within 1..28")
	}
	if c.Bidding.SessionHours <= 0 {
		return errors.New("config: bid session hours must be positive")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("config: kafka topic required when brokers are set")
	}
	if _, err := time.ParseDuration(c.Redis.LockTTL); err != nil {
		return fmt.Errorf("config: lock ttl: %w", err)
	}
	return nil
}

// Rates returns the default rate and credit rate per kWh.
func (c Config) Rates() (decimal.Decimal, decimal.Decimal, error) {
	rate, err := decimal.NewFromString(c.Billing.RatePerKWh)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("config: rate per kwh: %w", err)
	}
	credit, err := decimal.NewFromString(c.Billing.CreditRatePerKWh)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("config: credit rate per kwh: %w", err)
	}
	if rate.IsNegative() || credit.IsNegative() {
		return decimal.Zero, decimal.Zero, errors.New("config: rates must not be negative")
	}
	return rate, credit, nil
}

// SessionDuration is the default bid session length.
func (c Config) SessionDuration() time.Duration {
	return time.Duration(c.Bidding.SessionHours) * time.Hour
}

// LockTTL is the scheduler lock lifetime.
func (c Config) LockTTL() time.Duration {
	d, err := time.ParseDuration(c.Redis.LockTTL)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
