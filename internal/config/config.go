package config

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8765"`
	AppURL    string `env:"APP_URL"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// Authenticated variant: when AuthRequired is set, every register message
	// must carry a token signed with JWTSecret.
	AuthRequired bool   `env:"AUTH_REQUIRED" default:"false"`
	JWTSecret    string `env:"JWT_SECRET"`

	MaxConnections      int64 `env:"MAX_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP int   `env:"MAX_CONNECTIONS_PER_IP" default:"50"`

	// Per-connection inbound message rate limit.
	MessageRate  float64 `env:"MESSAGE_RATE" default:"20"`
	MessageBurst int     `env:"MESSAGE_BURST" default:"40"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.AuthRequired {
		if cfg.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when AUTH_REQUIRED is set")
		}
		if len(cfg.JWTSecret) < 16 {
			return fmt.Errorf("JWT_SECRET must be at least 16 characters")
		}
	}

	if cfg.MaxConnections <= 0 {
		return fmt.Errorf("MAX_CONNECTIONS must be positive")
	}
	if cfg.MaxConnectionsPerIP <= 0 {
		return fmt.Errorf("MAX_CONNECTIONS_PER_IP must be positive")
	}
	if cfg.MessageRate <= 0 || cfg.MessageBurst <= 0 {
		return fmt.Errorf("MESSAGE_RATE and MESSAGE_BURST must be positive")
	}

	return nil
}

// IsDevelopment reports whether the app runs in a development environment.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}
