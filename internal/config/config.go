package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Cache        CacheConfig
	Auth         AuthConfig
	Payroll      PayrollConfig
	Notification NotificationConfig
	Webhook      WebhookConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	RateLimitRPS   int
	RateLimitBurst int
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type CacheConfig struct {
	// TTL bounds how stale a dashboard read may be; zero disables caching.
	TTL time.Duration
}

type AuthConfig struct {
	JWTSecret    string
	JWTIssuer    string
	APIKeyHeader string
}

type PayrollConfig struct {
	MinYear               int
	MaxApproveRetries     int
	DefaultAttendanceDays int
	NotifyDirectors       bool
	// GenerateCron schedules monthly payroll generation in the worker; empty disables it.
	GenerateCron string
}

type NotificationConfig struct {
	DeliveryTimeout time.Duration
}

type WebhookConfig struct {
	Timeout time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory, if present, is loaded first and never overrides real env vars.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	rateRPS, err := getEnvInt("RATE_LIMIT_RPS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	rateBurst, err := getEnvInt("RATE_LIMIT_BURST", 40)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	minYear, err := getEnvInt("PAYROLL_MIN_YEAR", 2000)
	if err != nil {
		return nil, fmt.Errorf("invalid PAYROLL_MIN_YEAR: %w", err)
	}

	maxRetries, err := getEnvInt("PAYROLL_APPROVE_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid PAYROLL_APPROVE_MAX_RETRIES: %w", err)
	}

	attendance, err := getEnvInt("PAYROLL_DEFAULT_ATTENDANCE_DAYS", 22)
	if err != nil {
		return nil, fmt.Errorf("invalid PAYROLL_DEFAULT_ATTENDANCE_DAYS: %w", err)
	}

	notifyDirectors, err := getEnvBool("NOTIFY_DIRECTORS", false)
	if err != nil {
		return nil, fmt.Errorf("invalid NOTIFY_DIRECTORS: %w", err)
	}

	deliveryTimeout, err := getEnvDuration("NOTIFICATION_DELIVERY_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid NOTIFICATION_DELIVERY_TIMEOUT: %w", err)
	}

	webhookTimeout, err := getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_TIMEOUT: %w", err)
	}

	cacheTTL, err := getEnvDuration("CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           port,
			AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
			RateLimitRPS:   rateRPS,
			RateLimitBurst: rateBurst,
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Cache: CacheConfig{
			TTL: cacheTTL,
		},
		Auth: AuthConfig{
			JWTSecret:    getEnv("JWT_SECRET", ""),
			JWTIssuer:    getEnv("JWT_ISSUER", ""),
			APIKeyHeader: getEnv("API_KEY_HEADER", "X-API-Key"),
		},
		Payroll: PayrollConfig{
			MinYear:               minYear,
			MaxApproveRetries:     maxRetries,
			DefaultAttendanceDays: attendance,
			NotifyDirectors:       notifyDirectors,
			GenerateCron:          getEnv("PAYROLL_GENERATE_CRON", ""),
		},
		Notification: NotificationConfig{
			DeliveryTimeout: deliveryTimeout,
		},
		Webhook: WebhookConfig{
			Timeout: webhookTimeout,
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if c.Payroll.MaxApproveRetries < 0 {
		return fmt.Errorf("PAYROLL_APPROVE_MAX_RETRIES must not be negative")
	}
	if c.Payroll.DefaultAttendanceDays < 0 || c.Payroll.DefaultAttendanceDays > 31 {
		return fmt.Errorf("PAYROLL_DEFAULT_ATTENDANCE_DAYS must be within 0-31")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
