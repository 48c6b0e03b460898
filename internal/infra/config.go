package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const insecureJWTSecret = "change-me-in-production"

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"PGHOST" envDefault:"localhost"`
	PGPort      int    `env:"PGPORT" envDefault:"5432"`
	PGUser      string `env:"PGUSER" envDefault:"tracking"`
	PGPassword  string `env:"PGPASSWORD" envDefault:"tracking"`
	PGDatabase  string `env:"PGDATABASE" envDefault:"tracking"`
	PGMaxConns  int32  `env:"PG_MAX_CONNS" envDefault:"20"`

	MigrationsDir string `env:"MIGRATIONS_DIR"`

	// Server
	APIPort       int    `env:"API_PORT" envDefault:"3100"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:3100"`

	// Tracking link cache; empty URL disables it.
	RedisURL     string        `env:"REDIS_URL"`
	LinkCacheTTL time.Duration `env:"LINK_CACHE_TTL" envDefault:"5m"`

	// Click analytics mirror; empty address disables it.
	ClickHouseAddr     string `env:"CLICKHOUSE_ADDR"`
	ClickHouseUser     string `env:"CLICKHOUSE_USER" envDefault:"default"`
	ClickHousePassword string `env:"CLICKHOUSE_PASSWORD"`
	ClickHouseDB       string `env:"CLICKHOUSE_DB" envDefault:"tracking"`

	// Kafka
	KafkaBrokers     string        `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled     bool          `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaTopicPrefix string        `env:"KAFKA_TOPIC_PREFIX" envDefault:"tracking"`
	OutboxInterval   time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"500ms"`
	OutboxBatchSize  int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`

	// Geo: a MaxMind database wins over the HTTP API when both are set.
	GeoIPDBPath string        `env:"GEOIP_DB_PATH"`
	GeoAPIURL   string        `env:"GEO_API_URL" envDefault:"http://ip-api.com/json"`
	GeoTimeout  time.Duration `env:"GEO_TIMEOUT" envDefault:"1s"`

	// Postbacks
	JWTSecret           string        `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	PostbackTokenExpiry time.Duration `env:"POSTBACK_TOKEN_EXPIRY" envDefault:"8760h"`
	PostbackRateLimit   int           `env:"POSTBACK_RATE_LIMIT" envDefault:"600"`

	// Pipeline
	ConversionDuplicateWindow time.Duration `env:"CONVERSION_DUPLICATE_WINDOW" envDefault:"24h"`
	BackgroundMaxInFlight     int           `env:"BACKGROUND_MAX_IN_FLIGHT" envDefault:"256"`
	BackgroundTimeout         time.Duration `env:"BACKGROUND_TIMEOUT" envDefault:"10s"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// LoadConfig loads .env files (when present) and parses the environment into a Config.
// Variables already set in the environment win over .env values.
func LoadConfig(logger *slog.Logger, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logger.Debug("env file not found", "file", f)
				continue
			}
			logger.Warn("env file not loaded", "file", f, "error", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure configuration that must not run in production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass (local dev only).
func (c *Config) Validate() error {
	if c.BackgroundMaxInFlight <= 0 {
		return fmt.Errorf("BACKGROUND_MAX_IN_FLIGHT must be positive, got %d", c.BackgroundMaxInFlight)
	}
	if c.ConversionDuplicateWindow < 0 {
		return fmt.Errorf("CONVERSION_DUPLICATE_WINDOW must not be negative")
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

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}
