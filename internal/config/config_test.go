package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, 30*time.Second, cfg.PingInterval)
	assert.Equal(t, 5*time.Second, cfg.PongTimeout)
	assert.Equal(t, 256, cfg.SendBuffer)
	assert.Equal(t, int64(4096), cfg.MaxMessageSize)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ADDR", ":9999")
	t.Setenv("WS_PING_INTERVAL", "10s")
	t.Setenv("WS_PONG_TIMEOUT", "2s")
	t.Setenv("LOG_FORMAT", "pretty")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, 10*time.Second, cfg.PingInterval)
	assert.Equal(t, 2*time.Second, cfg.PongTimeout)
	assert.Equal(t, "pretty", cfg.LogFormat)
}

func TestValidate(t *testing.T) {
	valid := Config{
		Addr:         ":8080",
		JWTSecret:    "s",
		PingInterval: 30 * time.Second,
		PongTimeout:  5 * time.Second,
		SendBuffer:   256,
		MessageRate:  10,
		MessageBurst: 100,
	}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Addr = "" }},
		{"empty secret", func(c *Config) { c.JWTSecret = "" }},
		{"zero ping interval", func(c *Config) { c.PingInterval = 0 }},
		{"zero pong timeout", func(c *Config) { c.PongTimeout = 0 }},
		{"pong timeout past ping interval", func(c *Config) { c.PongTimeout = time.Minute }},
		{"zero send buffer", func(c *Config) { c.SendBuffer = 0 }},
		{"zero message rate", func(c *Config) { c.MessageRate = 0 }},
		{"zero message burst", func(c *Config) { c.MessageBurst = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("WS_PONG_TIMEOUT", "2m")

	_, err := Load()
	assert.Error(t, err)
}
