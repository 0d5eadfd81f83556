package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/pulse/pkg/auth"
	"github.com/platinummonkey/pulse/pkg/observability"
	"github.com/platinummonkey/pulse/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Auth configuration
	Auth AuthConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// Rate limiting for auth endpoints
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// AuthConfig holds token and credential settings
type AuthConfig struct {
	// HMAC signing secrets, one per token type
	AccessSecret  string
	RefreshSecret string

	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Static bearer token that load generators send to read the stats
	// endpoints without a user account. Disabled when empty.
	BenchmarkToken string
}

// Codec returns the token codec configuration derived from the auth settings.
func (a AuthConfig) Codec() auth.Config {
	cfg := auth.DefaultConfig()
	cfg.AccessSecret = []byte(a.AccessSecret)
	cfg.RefreshSecret = []byte(a.RefreshSecret)
	if a.Issuer != "" {
		cfg.Issuer = a.Issuer
	}
	if a.Audience != "" {
		cfg.Audience = a.Audience
	}
	if a.AccessTTL > 0 {
		cfg.AccessTTL = a.AccessTTL
	}
	if a.RefreshTTL > 0 {
		cfg.RefreshTTL = a.RefreshTTL
	}
	return cfg
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// How often the business gauges are refreshed from the stores
	GaugeRefreshSchedule string

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// OTel returns the tracing configuration in the form observability.InitOTel expects.
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
	}
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Auth:          loadAuthConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:              getEnv("PULSE_HOST", "0.0.0.0"),
		Port:              getEnv("PULSE_PORT", "8080"),
		ReadTimeout:       getEnvDuration("PULSE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      getEnvDuration("PULSE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       getEnvDuration("PULSE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   getEnvDuration("PULSE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:        getEnv("PULSE_HEALTH_PORT", "9090"),
		RateLimitEnabled:  getEnvBool("PULSE_RATE_LIMIT_ENABLED", true),
		RateLimitRequests: getEnvInt("PULSE_RATE_LIMIT_REQUESTS", 30),
		RateLimitWindow:   getEnvDuration("PULSE_RATE_LIMIT_WINDOW", time.Minute),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	// PostgreSQL config
	if pgURL := getEnv("PULSE_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if maxConns := getEnvInt("PULSE_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("PULSE_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("PULSE_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	// Redis config
	if redisURL := getEnv("PULSE_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("PULSE_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("PULSE_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("PULSE_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("PULSE_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	// Token cache config
	if prefix := getEnv("PULSE_TOKEN_CACHE_PREFIX", ""); prefix != "" {
		cfg.TokenCachePrefix = prefix
	}

	// S3 config (bulk import sources)
	if s3Endpoint := getEnv("PULSE_S3_ENDPOINT", ""); s3Endpoint != "" {
		cfg.S3Endpoint = s3Endpoint
	}
	if s3Region := getEnv("PULSE_S3_REGION", ""); s3Region != "" {
		cfg.S3Region = s3Region
	}
	if s3AccessKey := getEnv("PULSE_S3_ACCESS_KEY", ""); s3AccessKey != "" {
		cfg.S3AccessKey = s3AccessKey
	}
	if s3SecretKey := getEnv("PULSE_S3_SECRET_KEY", ""); s3SecretKey != "" {
		cfg.S3SecretKey = s3SecretKey
	}
	if s3UsePathStyle := getEnv("PULSE_S3_USE_PATH_STYLE", ""); s3UsePathStyle != "" {
		cfg.S3UsePathStyle = strings.ToLower(s3UsePathStyle) == "true"
	}

	return cfg
}

// loadAuthConfig loads token settings from environment
func loadAuthConfig() AuthConfig {
	return AuthConfig{
		AccessSecret:   getEnv("PULSE_ACCESS_SECRET", ""),
		RefreshSecret:  getEnv("PULSE_REFRESH_SECRET", ""),
		Issuer:         getEnv("PULSE_TOKEN_ISSUER", ""),
		Audience:       getEnv("PULSE_TOKEN_AUDIENCE", ""),
		AccessTTL:      getEnvDuration("PULSE_ACCESS_TTL", 0),
		RefreshTTL:     getEnvDuration("PULSE_REFRESH_TTL", 0),
		BenchmarkToken: getEnv("PULSE_BENCHMARK_TOKEN", ""),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:             observability.ParseLevel(getEnv("PULSE_LOG_LEVEL", "info")),
		MetricsEnabled:       getEnvBool("PULSE_METRICS_ENABLED", true),
		GaugeRefreshSchedule: getEnv("PULSE_GAUGE_REFRESH_SCHEDULE", "@every 1m"),
		OTelEnabled:          getEnvBool("PULSE_OTEL_ENABLED", false),
		OTelEndpoint:         getEnv("PULSE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:      getEnv("PULSE_OTEL_SERVICE_NAME", "pulse-api"),
		OTelServiceVersion:   getEnv("PULSE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:         getEnvBool("PULSE_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.RateLimitEnabled {
		if c.Server.RateLimitRequests <= 0 {
			return fmt.Errorf("rate limit request count must be positive")
		}
		if c.Server.RateLimitWindow <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
	}

	// Validate storage config
	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required")
	}

	// Validate auth config. Sharing one secret across token types would
	// let a refresh token pass as an access token.
	if c.Auth.AccessSecret == "" {
		return fmt.Errorf("access token secret is required")
	}
	if c.Auth.RefreshSecret == "" {
		return fmt.Errorf("refresh token secret is required")
	}
	if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		return fmt.Errorf("access and refresh token secrets must be different")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
