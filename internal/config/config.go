// Package config loads relay configuration from an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MaxURLLength is the maximum allowed destination URL length.
	MaxURLLength = 2048

	// DefaultMaxPayloadSize is the default submission size limit (10MiB).
	DefaultMaxPayloadSize = 10 * 1024 * 1024

	// DefaultRetryDelay is the wait after a failed delivery attempt.
	DefaultRetryDelay = time.Second

	// DefaultDeliveryTimeout bounds one delivery attempt.
	DefaultDeliveryTimeout = 30 * time.Second

	// DefaultMaxConnections caps concurrent inbound connections.
	DefaultMaxConnections = 1024
)

// Requeue policies accepted by REQUEUE_POLICY.
const (
	RequeueTail = "tail"
	RequeueHead = "head"
)

// Config holds all application configuration.
type Config struct {
	Relay         RelayConfig         `yaml:"relay"`
	Server        ServerConfig        `yaml:"server"`
	Admin         AdminConfig         `yaml:"admin"`
	Redis         RedisConfig         `yaml:"redis"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// RelayConfig holds the store-and-forward settings.
type RelayConfig struct {
	DestinationURL  string        `yaml:"destination_url"`
	EndpointPath    string        `yaml:"endpoint_path"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	RetryJitter     float64       `yaml:"retry_jitter"`
	RequeuePolicy   string        `yaml:"requeue_policy"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
	ForwardWorkers  int           `yaml:"forward_workers"`
	QueueCapacity   int           `yaml:"queue_capacity"`
	MaxPayloadSize  int64         `yaml:"max_payload_size"`
	SigningSecret   string        `yaml:"signing_secret"` // empty disables signing
}

// ServerConfig holds ingest server configuration.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	MaxConnections  int           `yaml:"max_connections"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AdminConfig holds admin server configuration. An empty Addr disables it.
type AdminConfig struct {
	Addr string `yaml:"addr"`
}

// RedisConfig holds the optional ingest rate limiter backend.
type RedisConfig struct {
	URL             string `yaml:"url"`
	IngestRateLimit int    `yaml:"ingest_rate_limit"`
	RateLimitKey    string `yaml:"rate_limit_key"`
}

// Enabled reports whether both a Redis URL and a positive limit are set.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" && r.IngestRateLimit > 0
}

// ObservabilityConfig selects metrics and tracing providers.
type ObservabilityConfig struct {
	MetricsProvider   string  `yaml:"metrics_provider"`
	TracingProvider   string  `yaml:"tracing_provider"`
	OTelEndpoint      string  `yaml:"otel_endpoint"`
	TracingSampleRate float64 `yaml:"tracing_sample_rate"`
	ServiceName       string  `yaml:"service_name"`
	Environment       string  `yaml:"environment"`
}

// Validation errors.
var (
	ErrDestinationRequired  = errors.New("DESTINATION_URL is required")
	ErrInvalidURL           = errors.New("invalid URL format")
	ErrInvalidURLScheme     = errors.New("URL scheme must be http or https")
	ErrURLTooLong           = fmt.Errorf("URL exceeds maximum length of %d characters", MaxURLLength)
	ErrInvalidRetryDelay    = errors.New("RETRY_DELAY must be positive and RETRY_JITTER within [0, 1]")
	ErrInvalidWorkers       = errors.New("FORWARD_WORKERS must be 1: delivery runs on exactly one forwarder")
	ErrInvalidRequeuePolicy = errors.New("REQUEUE_POLICY must be tail or head")
	ErrInvalidCapacity      = errors.New("QUEUE_CAPACITY and MAX_PAYLOAD_SIZE must not be negative")
	ErrInvalidEndpointPath  = errors.New("ENDPOINT_PATH must start with /")
	ErrInvalidTimeout       = errors.New("timeouts must be positive")
)

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Relay: RelayConfig{
			EndpointPath:    "/",
			RetryDelay:      DefaultRetryDelay,
			RequeuePolicy:   RequeueTail,
			DeliveryTimeout: DefaultDeliveryTimeout,
			ForwardWorkers:  1,
			MaxPayloadSize:  DefaultMaxPayloadSize,
		},
		Server: ServerConfig{
			Addr:            ":4444",
			MaxConnections:  DefaultMaxConnections,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Admin: AdminConfig{
			Addr: ":9090",
		},
		Redis: RedisConfig{
			RateLimitKey: "ingest",
		},
		Observability: ObservabilityConfig{
			MetricsProvider:   "prometheus",
			TracingProvider:   "noop",
			TracingSampleRate: 1.0,
			ServiceName:       "relayproxy",
			Environment:       "development",
		},
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file named
// by CONFIG_FILE (if any), then environment variables, and validates it.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	// Relay
	c.Relay.DestinationURL = getEnv("DESTINATION_URL", c.Relay.DestinationURL)
	c.Relay.EndpointPath = getEnv("ENDPOINT_PATH", c.Relay.EndpointPath)
	c.Relay.RetryDelay = getEnvDuration("RETRY_DELAY", c.Relay.RetryDelay)
	c.Relay.RetryJitter = getEnvFloat("RETRY_JITTER", c.Relay.RetryJitter)
	c.Relay.RequeuePolicy = strings.ToLower(getEnv("REQUEUE_POLICY", c.Relay.RequeuePolicy))
	c.Relay.SigningSecret = getEnv("SIGNING_SECRET", c.Relay.SigningSecret)
	c.Relay.DeliveryTimeout = getEnvDuration("DELIVERY_TIMEOUT", c.Relay.DeliveryTimeout)
	c.Relay.ForwardWorkers = getEnvInt("FORWARD_WORKERS", c.Relay.ForwardWorkers)
	c.Relay.QueueCapacity = getEnvInt("QUEUE_CAPACITY", c.Relay.QueueCapacity)
	c.Relay.MaxPayloadSize = getEnvInt64("MAX_PAYLOAD_SIZE", c.Relay.MaxPayloadSize)

	// Ingest server
	c.Server.Addr = getEnv("LISTEN_ADDR", c.Server.Addr)
	c.Server.MaxConnections = getEnvInt("MAX_CONNECTIONS", c.Server.MaxConnections)
	c.Server.ReadTimeout = getEnvDuration("READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	// Admin server; set but empty disables it
	if value, ok := os.LookupEnv("ADMIN_ADDR"); ok {
		c.Admin.Addr = value
	}

	// Redis
	c.Redis.URL = getEnv("REDIS_URL", c.Redis.URL)
	c.Redis.IngestRateLimit = getEnvInt("INGEST_RATE_LIMIT", c.Redis.IngestRateLimit)
	c.Redis.RateLimitKey = getEnv("RATE_LIMIT_KEY", c.Redis.RateLimitKey)

	// Observability
	c.Observability.MetricsProvider = getEnv("METRICS_PROVIDER", c.Observability.MetricsProvider)
	c.Observability.TracingProvider = getEnv("TRACING_PROVIDER", c.Observability.TracingProvider)
	c.Observability.OTelEndpoint = getEnv("OTEL_ENDPOINT", c.Observability.OTelEndpoint)
	c.Observability.TracingSampleRate = getEnvFloat("TRACING_SAMPLE_RATE", c.Observability.TracingSampleRate)
	c.Observability.ServiceName = getEnv("SERVICE_NAME", c.Observability.ServiceName)
	c.Observability.Environment = getEnv("ENVIRONMENT", c.Observability.Environment)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c.Relay.DestinationURL == "" {
		return ErrDestinationRequired
	}
	if err := ValidateDestinationURL(c.Relay.DestinationURL); err != nil {
		return err
	}
	if !strings.HasPrefix(c.Relay.EndpointPath, "/") {
		return ErrInvalidEndpointPath
	}
	if c.Relay.RetryDelay <= 0 || c.Relay.RetryJitter < 0 || c.Relay.RetryJitter > 1 {
		return ErrInvalidRetryDelay
	}
	if c.Relay.RequeuePolicy != RequeueTail && c.Relay.RequeuePolicy != RequeueHead {
		return ErrInvalidRequeuePolicy
	}
	if c.Relay.ForwardWorkers != 1 {
		return ErrInvalidWorkers
	}
	if c.Relay.QueueCapacity < 0 || c.Relay.MaxPayloadSize < 0 {
		return ErrInvalidCapacity
	}
	if c.Relay.DeliveryTimeout <= 0 || c.Server.ShutdownTimeout <= 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// ValidateDestinationURL checks that rawURL is an absolute http(s) URL.
func ValidateDestinationURL(rawURL string) error {
	if rawURL == "" {
		return ErrInvalidURL
	}

	if len(rawURL) > MaxURLLength {
		return ErrURLTooLong
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ErrInvalidURL
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ErrInvalidURLScheme
	}
	if parsed.Host == "" {
		return ErrInvalidURL
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
