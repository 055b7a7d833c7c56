package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	strutil "signbridge/pkg/platform/strings"
)

// Server captures process level configuration.
type Server struct {
	Addr           string
	LogLevel       string
	JWTSigningKey  string
	AccessTokenTTL time.Duration

	Confirmation Confirmation
	Database     DatabaseConfig
	Redis        RedisConfig
	Kratos       KratosConfig
	Kafka        KafkaConfig
}

// Confirmation holds the lifecycle timings. Defaults match the product contract:
// a 10 minute window, 15s server poll, 1s local tick and 2s manual debounce.
type Confirmation struct {
	Window         time.Duration
	PollInterval   time.Duration
	TickInterval   time.Duration
	ManualDebounce time.Duration
	SweepInterval  time.Duration
}

type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PendingTTL   time.Duration
}

type KratosConfig struct {
	PublicURL string
	AdminURL  string
	SchemaID  string
}

type KafkaConfig struct {
	Brokers        []string
	LifecycleTopic string
}

// FromEnv builds a Server config from environment variables so main stays lean.
// Empty backing-service URLs select in-memory implementations.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:     getenv("SIGNBRIDGE_ADDR", "127.0.0.1:8080"),
		LogLevel: getenv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Kratos: KratosConfig{
			PublicURL: os.Getenv("KRATOS_PUBLIC_URL"),
			AdminURL:  os.Getenv("KRATOS_ADMIN_URL"),
			SchemaID:  getenv("KRATOS_SCHEMA_ID", "default"),
		},
		Kafka: KafkaConfig{
			LifecycleTopic: getenv("KAFKA_LIFECYCLE_TOPIC", "signbridge.lifecycle"),
		},
	}

	cfg.JWTSigningKey = os.Getenv("JWT_SIGNING_KEY")
	if cfg.JWTSigningKey == "" {
		// Use a default for development - should be overridden in production
		cfg.JWTSigningKey = "dev-secret-key-change-in-production"
	}
	cfg.Kafka.Brokers = strutil.SplitList(os.Getenv("KAFKA_BROKERS"))

	var err error
	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"ACCESS_TOKEN_TTL", 15 * time.Minute, &cfg.AccessTokenTTL},
		{"CONFIRMATION_WINDOW", 10 * time.Minute, &cfg.Confirmation.Window},
		{"POLL_INTERVAL", 15 * time.Second, &cfg.Confirmation.PollInterval},
		{"TICK_INTERVAL", time.Second, &cfg.Confirmation.TickInterval},
		{"MANUAL_DEBOUNCE", 2 * time.Second, &cfg.Confirmation.ManualDebounce},
		{"SWEEP_INTERVAL", time.Minute, &cfg.Confirmation.SweepInterval},
		{"REDIS_DIAL_TIMEOUT", 5 * time.Second, &cfg.Redis.DialTimeout},
		{"REDIS_READ_TIMEOUT", 3 * time.Second, &cfg.Redis.ReadTimeout},
		{"REDIS_WRITE_TIMEOUT", 3 * time.Second, &cfg.Redis.WriteTimeout},
		{"PENDING_SIGNUP_TTL", 24 * time.Hour, &cfg.Redis.PendingTTL},
	}
	for _, d := range durations {
		if *d.dst, err = durationEnv(d.key, d.def); err != nil {
			return Server{}, err
		}
	}

	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"DATABASE_MAX_OPEN_CONNS", 10, &cfg.Database.MaxOpenConns},
		{"DATABASE_MAX_IDLE_CONNS", 5, &cfg.Database.MaxIdleConns},
		{"REDIS_POOL_SIZE", 10, &cfg.Redis.PoolSize},
		{"REDIS_MIN_IDLE_CONNS", 2, &cfg.Redis.MinIdleConns},
	}
	for _, i := range ints {
		if *i.dst, err = intEnv(i.key, i.def); err != nil {
			return Server{}, err
		}
	}

	if cfg.Confirmation.TickInterval <= 0 || cfg.Confirmation.PollInterval <= 0 {
		return Server{}, fmt.Errorf("poll and tick intervals must be positive")
	}
	if cfg.Confirmation.Window < time.Minute {
		return Server{}, fmt.Errorf("confirmation window must be at least one minute, got %s", cfg.Confirmation.Window)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}
