package infra

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends accepted by STORE_BACKEND.
const (
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"
)

const insecureJWTSecret = "change-me-in-production"

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL   string `env:"DATABASE_URL"`
	PGHost        string `env:"PGHOST" envDefault:"localhost"`
	PGPort        int    `env:"PGPORT" envDefault:"5435"`
	PGUser        string `env:"PGUSER" envDefault:"habitquest"`
	PGPassword    string `env:"PGPASSWORD" envDefault:"habitquest"`
	PGDatabase    string `env:"PGDATABASE" envDefault:"habitquest"`
	MigrationsDir string `env:"MIGRATIONS_DIR"`
	StoreBackend  string `env:"STORE_BACKEND" envDefault:"postgres"`

	// Redis
	RedisURL             string `env:"REDIS_URL" envDefault:"redis://localhost:6380"`
	RedisEnabled         bool   `env:"REDIS_ENABLED" envDefault:"false"`
	NotificationsChannel string `env:"REDIS_NOTIFICATIONS_CHANNEL" envDefault:"habitquest:notifications"`

	// JWT
	JWTSecret        string        `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTPlayerExpiry  time.Duration `env:"JWT_PLAYER_EXPIRY" envDefault:"24h"`
	JWTServiceExpiry time.Duration `env:"JWT_SERVICE_EXPIRY" envDefault:"1h"`

	// Server
	APIPort int `env:"API_PORT" envDefault:"3100"`

	// Progression
	Timezone        string        `env:"TIMEZONE" envDefault:"UTC"`
	EventRateLimit  int           `env:"EVENT_RATE_LIMIT" envDefault:"60"`
	EventRateWindow time.Duration `env:"EVENT_RATE_WINDOW" envDefault:"1m"`
	IdempotencyTTL  time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	ProjectionTTL   time.Duration `env:"PROJECTION_TTL" envDefault:"5m"`
	EngineIdleTTL   time.Duration `env:"ENGINE_IDLE_TTL" envDefault:"30m"`

	// Kafka
	KafkaBrokers       string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled       bool   `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaTopicPrefix   string `env:"KAFKA_TOPIC_PREFIX" envDefault:"habitquest"`
	KafkaInboundTopic  string `env:"KAFKA_INBOUND_TOPIC" envDefault:"habitquest.habits.perfect_months"`
	KafkaConsumerGroup string `env:"KAFKA_CONSUMER_GROUP" envDefault:"progression"`

	// Outbox
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"2s"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`

	// CORS
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for configuration that cannot work or must not run in production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass the secret checks (local dev only).
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreBackendPostgres, StoreBackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StoreBackendPostgres, StoreBackendMemory, c.StoreBackend)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.EventRateLimit <= 0 || c.EventRateWindow <= 0 {
		return fmt.Errorf("EVENT_RATE_LIMIT and EVENT_RATE_WINDOW must be positive")
	}
	if c.OutboxBatchSize <= 0 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE must be positive, got %d", c.OutboxBatchSize)
	}

	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == insecureJWTSecret {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	return nil
}

// Location resolves TIMEZONE, the zone in which calendar days are counted.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}
