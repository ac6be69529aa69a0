package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all server configuration.
// Priority: environment variables > .env file > defaults.
type Config struct {
	// Server basics
	Addr        string `env:"ADDR" envDefault:":8080"`
	JWTSecret   string `env:"JWT_SECRET" envDefault:"dev-secret-change-in-production"`
	DatabaseURL string `env:"DATABASE_URL"` // empty selects the in-memory store

	// Heartbeat (server-side liveness probing)
	PingInterval time.Duration `env:"WS_PING_INTERVAL" envDefault:"30s"`
	PongTimeout  time.Duration `env:"WS_PONG_TIMEOUT" envDefault:"5s"`

	// Connection tuning
	SendBuffer     int   `env:"WS_SEND_BUFFER" envDefault:"256"`
	MaxMessageSize int64 `env:"WS_MAX_MESSAGE_SIZE" envDefault:"4096"`

	// Per-connection inbound rate limiting
	MessageRate  float64 `env:"WS_MESSAGE_RATE" envDefault:"10"`
	MessageBurst int     `env:"WS_MESSAGE_BURST" envDefault:"100"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads configuration from an optional .env file and the environment.
func Load() (*Config, error) {
	// .env is a development convenience; production passes real env vars.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("ADDR is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("WS_PING_INTERVAL must be > 0, got %s", c.PingInterval)
	}
	if c.PongTimeout <= 0 || c.PongTimeout >= c.PingInterval {
		return fmt.Errorf("WS_PONG_TIMEOUT must be > 0 and < WS_PING_INTERVAL, got %s", c.PongTimeout)
	}
	if c.SendBuffer < 1 {
		return fmt.Errorf("WS_SEND_BUFFER must be > 0, got %d", c.SendBuffer)
	}
	if c.MessageRate <= 0 {
		return fmt.Errorf("WS_MESSAGE_RATE must be > 0, got %f", c.MessageRate)
	}
	if c.MessageBurst < 1 {
		return fmt.Errorf("WS_MESSAGE_BURST must be > 0, got %d", c.MessageBurst)
	}
	return nil
}
