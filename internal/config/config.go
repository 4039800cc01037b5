package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// SSLMode captures the DATABASE_SSL_VALIDATE contract.
type SSLMode string

const (
	// SSLDefault picks per environment: strict in production, relaxed in
	// development, relaxed for known managed-Postgres hosts.
	SSLDefault SSLMode = ""
	// SSLStrict enables TLS with full certificate validation.
	SSLStrict SSLMode = "true"
	// SSLRelaxed enables TLS but skips certificate validation.
	SSLRelaxed SSLMode = "false"
	// SSLDisabled turns SSL off entirely. Dev only.
	SSLDisabled SSLMode = "full"
)

// Config is the process configuration, read once at startup from the
// environment and passed down explicitly.
type Config struct {
	Env string // "dev" or "production"

	PostgresURL      string
	PlatformRedisURL string
	WebhookRedisURL  string

	SSLValidate SSLMode
	SSLCA       string // optional PEM, appended to the trust store

	DebugMode bool // enables metric counting

	HTTPAddr        string
	AdminJWTSecret  string
	QueueName       string
	PollInterval    time.Duration
	BlockTimeout    time.Duration
	L1Capacity      int
	DefaultCacheTTL time.Duration
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envDuration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", k, err)
	}
	return d, nil
}

// FromEnv reads the environment contract. Missing required keys are a
// fatal startup condition surfaced to main.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Env:              env("ENV", "dev"),
		PostgresURL:      os.Getenv("POSTGRES_URL"),
		PlatformRedisURL: os.Getenv("PLATFORM_REDIS_URL"),
		WebhookRedisURL:  os.Getenv("WEBHOOK_REDIS_URL"),
		SSLValidate:      SSLMode(os.Getenv("DATABASE_SSL_VALIDATE")),
		SSLCA:            os.Getenv("DATABASE_SSL_CA"),
		DebugMode:        os.Getenv("DEBUG_MODE") == "true",
		HTTPAddr:         env("HTTP_ADDR", ":8080"),
		AdminJWTSecret:   env("ADMIN_JWT_SECRET", ""),
		QueueName:        env("WEBHOOK_QUEUE_NAME", "webhook:events"),
	}

	if cfg.PostgresURL == "" {
		return nil, fmt.Errorf("config: POSTGRES_URL is required")
	}
	if cfg.PlatformRedisURL == "" {
		return nil, fmt.Errorf("config: PLATFORM_REDIS_URL is required")
	}
	if cfg.WebhookRedisURL == "" {
		return nil, fmt.Errorf("config: WEBHOOK_REDIS_URL is required")
	}

	switch cfg.SSLValidate {
	case SSLDefault, SSLStrict, SSLRelaxed, SSLDisabled:
	default:
		return nil, fmt.Errorf("config: DATABASE_SSL_VALIDATE must be one of true, false, full (got %q)", cfg.SSLValidate)
	}

	var err error
	if cfg.PollInterval, err = envDuration("WEBHOOK_POLL_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if cfg.BlockTimeout, err = envDuration("WEBHOOK_BLOCK_TIMEOUT", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.DefaultCacheTTL, err = envDuration("CACHE_DEFAULT_TTL", 5*time.Minute); err != nil {
		return nil, err
	}

	cfg.L1Capacity = 1000
	if v := os.Getenv("CACHE_L1_CAPACITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("config: CACHE_L1_CAPACITY must be a positive integer (got %q)", v)
		}
		cfg.L1Capacity = n
	}

	return cfg, nil
}

// Production reports whether the process runs with production defaults.
func (c *Config) Production() bool { return c.Env == "production" }
