// Package config loads process configuration from the environment, per
// spec §6. Struct tags and the envconfig/godotenv loading idiom are
// grounded on Sezy0-apis-vhz-v2/internal/config.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	_ = godotenv.Load()
}

// Config holds every environment-derived setting the server and worker
// need.
type Config struct {
	Port int `envconfig:"PORT" default:"3000"`

	RedisHost string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort int    `envconfig:"REDIS_PORT" default:"6379"`

	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBName     string `envconfig:"DB_NAME" default:"invsync"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD" default:""`

	MarketplaceASecret string `envconfig:"MARKETPLACE_A_SECRET" required:"true"`
	MarketplaceBAPI    string `envconfig:"MARKETPLACE_B_API" required:"true"`
	MarketplaceBAPIKey string `envconfig:"MARKETPLACE_B_API_KEY" required:"true"`

	WorkerConcurrency  int           `envconfig:"WORKER_CONCURRENCY" default:"5"`
	WorkerPollInterval time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"1s"`
	WorkerMaxBackoff   time.Duration `envconfig:"WORKER_MAX_BACKOFF" default:"30s"`
	LockTTL            time.Duration `envconfig:"LOCK_TTL" default:"10s"`
	PollInterval       time.Duration `envconfig:"POLL_INTERVAL" default:"5m"`
	QueueRatePerSecond float64       `envconfig:"QUEUE_RATE_PER_SECOND" default:"100"`
	QueueBurst         int           `envconfig:"QUEUE_BURST" default:"10"`
	JanitorInterval    time.Duration `envconfig:"JANITOR_INTERVAL" default:"30s"`

	OTELEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
}

// RedisAddr returns the Redis address in host:port form.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// Addr returns the HTTP listen address in :port form.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Load reads configuration from the environment (and .env, if present).
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.MarketplaceASecret == "" {
		return nil, fmt.Errorf("config: MARKETPLACE_A_SECRET must not be empty")
	}
	return &cfg, nil
}
