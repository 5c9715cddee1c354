package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

const (
	// EnvPrefix prefixes every environment variable, e.g. LICENSED_SERVER_PORT.
	EnvPrefix = "LICENSED"
	// EnvConfigFile names an explicit YAML config file.
	EnvConfigFile = "LICENSED_CONFIG_FILE"

	// DevSecretKey is the fallback signing key. The server refuses it outside
	// development.
	DevSecretKey = "dev-key-please-change-in-production"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Store     StoreConfig     `yaml:"store" envconfig:"STORE"`
	Engine    EngineConfig    `yaml:"engine" envconfig:"ENGINE"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Events    EventsConfig    `yaml:"events" envconfig:"EVENTS"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	AllowedOrigins  []string      `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
}

// StoreConfig selects and configures the license store
type StoreConfig struct {
	Driver      string `yaml:"driver" envconfig:"DRIVER"`
	SQLitePath  string `yaml:"sqlite_path" envconfig:"SQLITE_PATH"`
	RedisURL    string `yaml:"redis_url" envconfig:"REDIS_URL"`
	RedisPrefix string `yaml:"redis_prefix" envconfig:"REDIS_PREFIX"`
	PostgresDSN string `yaml:"postgres_dsn" envconfig:"POSTGRES_DSN"`
	MaxConns    int    `yaml:"max_conns" envconfig:"MAX_CONNS"`
}

// EngineConfig tunes the entitlement engine
type EngineConfig struct {
	MaxAttempts   int           `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS"`
	Backoff       time.Duration `yaml:"backoff" envconfig:"BACKOFF"`
	FreeTrialSpan time.Duration `yaml:"free_trial_span" envconfig:"FREE_TRIAL_SPAN"`
}

// SecurityConfig contains admin authentication and abuse protection settings
type SecurityConfig struct {
	// SecretKey signs admin tokens. Plain SECRET_KEY is accepted as a fallback.
	SecretKey         string          `yaml:"secret_key" envconfig:"SECRET_KEY"`
	AdminPasswordHash string          `yaml:"admin_password_hash" envconfig:"ADMIN_PASSWORD_HASH"`
	TokenTTL          time.Duration   `yaml:"token_ttl" envconfig:"TOKEN_TTL"`
	TokenIssuer       string          `yaml:"token_issuer" envconfig:"TOKEN_ISSUER"`
	RateLimit         RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	CheckRateLimit    RateLimitConfig `yaml:"check_rate_limit" envconfig:"CHECK_RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// EventsConfig controls where license lifecycle events go
type EventsConfig struct {
	KafkaBrokers     []string `yaml:"kafka_brokers" envconfig:"KAFKA_BROKERS"`
	KafkaTopic       string   `yaml:"kafka_topic" envconfig:"KAFKA_TOPIC"`
	WebSocketEnabled bool     `yaml:"websocket_enabled" envconfig:"WEBSOCKET_ENABLED"`
	ReadBufferSize   int      `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE"`
	WriteBufferSize  int      `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL"`
	Format      string `yaml:"format" envconfig:"FORMAT"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// TelemetryConfig contains OpenTelemetry settings
type TelemetryConfig struct {
	ServiceName     string  `yaml:"service_name" envconfig:"SERVICE_NAME"`
	ServiceVersion  string  `yaml:"service_version" envconfig:"SERVICE_VERSION"`
	Environment     string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	TracingEnabled  bool    `yaml:"tracing_enabled" envconfig:"TRACING_ENABLED"`
	MetricsEnabled  bool    `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED"`
	TraceSampleRate float64 `yaml:"trace_sample_rate" envconfig:"TRACE_SAMPLE_RATE"`
}

// Load builds the configuration from, in increasing precedence: defaults, a
// YAML file (LICENSED_CONFIG_FILE or config.yaml), a .env file and the process
// environment.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(EnvConfigFile))
}

// LoadFile is Load with an explicit YAML path. An empty path searches the
// usual locations.
func LoadFile(path string) (*Config, error) {
	// .env never overrides variables that are already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Fields without a matching variable keep their current value.
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFromFile overlays the YAML document at filePath onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func findConfigFile() string {
	for _, location := range []string{"config.yaml", "configs/config.yaml"} {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// Validate checks the configuration and normalizes enumerations
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server request timeout must be positive")
	}

	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("sqlite store requires a path")
		}
	case "redis":
		if c.Store.RedisURL == "" {
			return fmt.Errorf("redis store requires a url")
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("postgres store requires a dsn")
		}
	default:
		return fmt.Errorf("unknown store driver: %q", c.Store.Driver)
	}

	if c.Engine.MaxAttempts < 1 || c.Engine.MaxAttempts > 10 {
		return fmt.Errorf("engine max attempts must be between 1 and 10, got %d", c.Engine.MaxAttempts)
	}
	if c.Engine.Backoff < 0 {
		return fmt.Errorf("engine backoff must not be negative")
	}
	if c.Engine.FreeTrialSpan <= 0 {
		return fmt.Errorf("free trial span must be positive")
	}

	if len(c.Security.SecretKey) < 16 {
		return fmt.Errorf("security secret key must be at least 16 characters")
	}
	if c.Security.SecretKey == DevSecretKey && !c.Logging.Development {
		return fmt.Errorf("security secret key must be changed outside development")
	}
	if c.Security.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive")
	}
	if len(c.Events.KafkaBrokers) > 0 && c.Events.KafkaTopic == "" {
		return fmt.Errorf("kafka topic is required when brokers are set")
	}

	c.Logging.Format = strings.ToLower(c.Logging.Format)
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging format must be json or text, got %q", c.Logging.Format)
	}
	return nil
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  10 * time.Second,
			AllowedOrigins:  []string{"http://localhost:3000"},
		},
		Store: StoreConfig{
			Driver:      "sqlite",
			SQLitePath:  "licenses.db",
			RedisPrefix: "licensehub",
			MaxConns:    10,
		},
		Engine: EngineConfig{
			MaxAttempts:   5,
			Backoff:       2 * time.Millisecond,
			FreeTrialSpan: 72 * time.Hour,
		},
		Security: SecurityConfig{
			SecretKey:   DevSecretKey,
			TokenTTL:    12 * time.Hour,
			TokenIssuer: "licensehub",
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
			CheckRateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     5,
				Burst:   10,
			},
		},
		Events: EventsConfig{
			KafkaTopic:       "license-events",
			WebSocketEnabled: true,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			Development: true,
		},
		Telemetry: TelemetryConfig{
			ServiceName:     "licensehub",
			ServiceVersion:  "dev",
			Environment:     "development",
			TracingEnabled:  false,
			MetricsEnabled:  true,
			TraceSampleRate: 1.0,
		},
	}
}

// Addr returns the listen address for the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
