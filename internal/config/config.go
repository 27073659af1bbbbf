package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Date sources
const (
	DateSourceServer = "server"
	DateSourceClient = "client"
)

// Config holds application configuration
type Config struct {
	Port     string
	LogLevel string

	JWTSecret        string
	TokenTTL         time.Duration
	AuthRequired     bool
	AuthUsername     string
	AuthPasswordHash string
	CookieSecure     bool

	CORSEnabled bool
	BaseURL     string

	DateSource   string
	AtomicWrites bool
	Currency     string

	StoreDriver    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	DBConn         string
	BreakerEnabled bool

	KafkaBrokers []string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string
	NotifyEmail  string

	ReconcileSchedule string
	SummarySchedule   string
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "INFO"),

		JWTSecret:        getEnv("JWT_SECRET", "secret"),
		AuthUsername:     getEnv("AUTH_USERNAME", "admin"),
		AuthPasswordHash: getEnv("AUTH_PASSWORD_HASH", ""),
		BaseURL:          getEnv("BASE_URL", "http://localhost:3000"),

		DateSource: strings.ToLower(getEnv("DATE_SOURCE", DateSourceServer)),
		Currency:   strings.ToUpper(getEnv("CURRENCY", "USD")),

		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", DriverMemory)),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		DBConn:        getEnv("DB_CONN", "host=localhost port=5436 user=test password=test dbname=budget sslmode=disable"),

		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "")),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SenderEmail:  getEnv("SENDER_EMAIL", ""),
		NotifyEmail:  getEnv("NOTIFY_EMAIL", ""),

		ReconcileSchedule: getEnv("RECONCILE_SCHEDULE", "@every 1h"),
		SummarySchedule:   getEnv("SUMMARY_SCHEDULE", "0 8 * * *"),
	}

	var err error
	if cfg.TokenTTL, err = time.ParseDuration(getEnv("TOKEN_TTL", "24h")); err != nil {
		return nil, fmt.Errorf("invalid TOKEN_TTL: %w", err)
	}
	if cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0")); err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	bools := []struct {
		key string
		def bool
		dst *bool
	}{
		{"AUTH_REQUIRED", false, &cfg.AuthRequired},
		{"COOKIE_SECURE", false, &cfg.CookieSecure},
		{"CORS_ENABLED", false, &cfg.CORSEnabled},
		{"ATOMIC_WRITES", true, &cfg.AtomicWrites},
		{"BREAKER_ENABLED", true, &cfg.BreakerEnabled},
	}
	for _, b := range bools {
		if *b.dst, err = getBool(b.key, b.def); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case DriverMemory, DriverRedis, DriverPostgres:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.StoreDriver == DriverPostgres && c.DBConn == "" {
		return fmt.Errorf("DB_CONN is required")
	}
	if c.StoreDriver == DriverRedis && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	if c.DateSource != DateSourceServer && c.DateSource != DateSourceClient {
		return fmt.Errorf("unknown DATE_SOURCE %q", c.DateSource)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.CORSEnabled && c.BaseURL == "" {
		return fmt.Errorf("BASE_URL is required when CORS is enabled")
	}
	return nil
}

// MailEnabled reports whether SMTP notifications are configured.
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != "" && c.SenderEmail != "" && c.NotifyEmail != ""
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) (bool, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
