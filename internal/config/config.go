package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	Port             int           `envconfig:"PORT" default:"8080"`
	LogLevel         string        `envconfig:"LOG_LEVEL" default:"info"`
	DatabaseURL      string        `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns       int32         `envconfig:"DB_MAX_CONNS" default:"10"`
	Version          string        `envconfig:"VERSION" default:"dev"`
	BcryptCost       int           `envconfig:"BCRYPT_COST" default:"12"`
	JWTSecret        string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL         time.Duration `envconfig:"TOKEN_TTL" default:"15m"`
	NatsURL          string        `envconfig:"NATS_URL" default:""`
	RateLimitRPS     float64       `envconfig:"RATE_LIMIT_RPS" default:"20"`
	RateLimitBurst   int           `envconfig:"RATE_LIMIT_BURST" default:"40"`
	AutoMigrate      bool          `envconfig:"AUTO_MIGRATE" default:"true"`
	ShutdownTimeout  time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
	WSAllowedOrigins []string      `envconfig:"WS_ALLOWED_ORIGINS" default:""`
}

// Load reads configuration from environment variables into a Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDatabaseURL reads only DATABASE_URL, for commands that never serve HTTP.
func LoadDatabaseURL() (string, error) {
	var cfg struct {
		DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return "", err
	}
	return cfg.DatabaseURL, nil
}
