package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "licenses.db", cfg.Store.SQLitePath)
	assert.Equal(t, 5, cfg.Engine.MaxAttempts)
	assert.Equal(t, 72*time.Hour, cfg.Engine.FreeTrialSpan)
	assert.Equal(t, DevSecretKey, cfg.Security.SecretKey)
	assert.True(t, cfg.Security.CheckRateLimit.Enabled)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("LICENSED_SERVER_PORT", "9090")
	t.Setenv("LICENSED_SERVER_ALLOWED_ORIGINS", "http://a.example,https://b.example")
	t.Setenv("LICENSED_STORE_DRIVER", "Redis")
	t.Setenv("LICENSED_STORE_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("LICENSED_ENGINE_MAX_ATTEMPTS", "3")
	t.Setenv("LICENSED_EVENTS_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("LICENSED_LOGGING_FORMAT", "TEXT")

	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"http://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, 3, cfg.Engine.MaxAttempts)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.KafkaBrokers)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadSecretKeyFallback(t *testing.T) {
	t.Setenv("SECRET_KEY", "a-production-grade-secret")

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, "a-production-grade-secret", cfg.Security.SecretKey)

	t.Setenv("LICENSED_SECURITY_SECRET_KEY", "the-prefixed-variable-wins")
	cfg, err = LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, "the-prefixed-variable-wins", cfg.Security.SecretKey)
}

func TestLoadFileWithEnvironmentOverride(t *testing.T) {
	path := writeYAML(t, `
server:
  port: 7000
  request_timeout: 3s
store:
  driver: memory
engine:
  free_trial_span: 24h
logging:
  level: debug
`)
	t.Setenv("LICENSED_SERVER_PORT", "7001")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7001, cfg.Server.Port, "environment beats file")
	assert.Equal(t, 3*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Engine.FreeTrialSpan)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout, "unset keys keep defaults")
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFile(writeYAML(t, "server: [not, a, map]"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port too large", func(c *Config) { c.Server.Port = 99999 }},
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"negative read timeout", func(c *Config) { c.Server.ReadTimeout = -time.Second }},
		{"zero request timeout", func(c *Config) { c.Server.RequestTimeout = 0 }},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }},
		{"sqlite without path", func(c *Config) { c.Store.SQLitePath = "" }},
		{"redis without url", func(c *Config) { c.Store.Driver = "redis" }},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = "postgres" }},
		{"too many attempts", func(c *Config) { c.Engine.MaxAttempts = 11 }},
		{"no attempts", func(c *Config) { c.Engine.MaxAttempts = 0 }},
		{"zero free trial", func(c *Config) { c.Engine.FreeTrialSpan = 0 }},
		{"short secret", func(c *Config) { c.Security.SecretKey = "short" }},
		{"dev secret in production", func(c *Config) { c.Logging.Development = false }},
		{"zero token ttl", func(c *Config) { c.Security.TokenTTL = 0 }},
		{"kafka without topic", func(c *Config) {
			c.Events.KafkaBrokers = []string{"k1:9092"}
			c.Events.KafkaTopic = ""
		}},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}
