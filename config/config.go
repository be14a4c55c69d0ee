package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Database      DatabaseConfig
	Redis         RedisConfig
	Enrollment    EnrollmentConfig
	Notifications NotificationsConfig
	Metrics       MetricsConfig
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/enrollment?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Lock backends for admission serialization.
const (
	LockBackendRedis = "redis"
	LockBackendLocal = "local"
)

// EnrollmentConfig holds registration engine settings.
type EnrollmentConfig struct {
	Timezone       string
	Location       *time.Location
	LookaheadCount int // occurrences inspected when checking for a future occurrence
	SummaryMax     int // occurrences listed in payment/occurrence summaries
	LockBackend    string
	LockTTL        time.Duration
}

// NotificationsConfig controls the notification queue.
type NotificationsConfig struct {
	Enabled bool
}

// MetricsConfig controls the prometheus listener of the worker.
type MetricsConfig struct {
	Addr string // empty disables the listener
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	tz := getEnv("APP_TIMEZONE", "Europe/Paris")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}

	backend := strings.ToLower(getEnv("ADMISSION_LOCK_BACKEND", LockBackendRedis))
	if backend != LockBackendRedis && backend != LockBackendLocal {
		return nil, fmt.Errorf("unknown admission lock backend %q", backend)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "enrollment"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Enrollment: EnrollmentConfig{
			Timezone:       tz,
			Location:       loc,
			LookaheadCount: getEnvInt("OCCURRENCE_LOOKAHEAD", 30),
			SummaryMax:     getEnvInt("OCCURRENCE_SUMMARY_MAX", 200),
			LockBackend:    backend,
			LockTTL:        time.Duration(getEnvInt("ADMISSION_LOCK_TTL_SEC", 10)) * time.Second,
		},
		Notifications: NotificationsConfig{
			Enabled: getEnvBool("NOTIFICATIONS_ENABLED", true),
		},
		Metrics: MetricsConfig{
			Addr: getEnv("METRICS_ADDR", ""),
		},
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
