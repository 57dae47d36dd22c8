// Package config loads service configuration from YAML files and
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the inspiration service
type Config struct {
	HTTP          HTTPConfig          `mapstructure:"http"`
	Store         StoreConfig         `mapstructure:"store"`
	Reddit        RedditConfig        `mapstructure:"reddit"`
	Trends        TrendsConfig        `mapstructure:"trends"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

// StoreConfig holds cache persistence configuration
type StoreConfig struct {
	// Backend selects the store implementation: "redis" or "memory".
	Backend  string        `mapstructure:"backend"`
	Redis    RedisConfig   `mapstructure:"redis"`
	TrendTTL time.Duration `mapstructure:"trend_ttl"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RedditConfig holds Reddit upstream configuration
type RedditConfig struct {
	ClientID     string          `mapstructure:"client_id"`
	ClientSecret string          `mapstructure:"client_secret"`
	Username     string          `mapstructure:"username"`
	Password     string          `mapstructure:"password"`
	UserAgent    string          `mapstructure:"user_agent"`
	BaseURL      string          `mapstructure:"base_url"`
	TokenURL     string          `mapstructure:"token_url"`
	Timeout      time.Duration   `mapstructure:"timeout"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
}

// TrendsConfig holds trends reseller upstream configuration
type TrendsConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	APIKey  string        `mapstructure:"api_key"`
	APIHost string        `mapstructure:"api_host"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// MetricsConfig holds metrics settings
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TracingConfig holds tracing settings
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not fatal if env vars are set
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// HTTP defaults
	v.SetDefault("http.port", 8080)

	// Store defaults
	v.SetDefault("store.backend", "redis")
	v.SetDefault("store.redis.address", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.trend_ttl", "24h")

	// Reddit defaults
	v.SetDefault("reddit.base_url", "https://oauth.reddit.com")
	v.SetDefault("reddit.token_url", "https://www.reddit.com/api/v1/access_token")
	v.SetDefault("reddit.user_agent", "inspiration-api/1.0")
	v.SetDefault("reddit.timeout", "10s")
	v.SetDefault("reddit.rate_limit.requests_per_minute", 60)
	v.SetDefault("reddit.rate_limit.burst", 5)

	// Trends defaults
	v.SetDefault("trends.enabled", true)
	v.SetDefault("trends.base_url", "")
	v.SetDefault("trends.timeout", "15s")

	// Observability defaults
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "redis":
		if c.Store.Redis.Address == "" {
			return fmt.Errorf("redis address is required")
		}
	case "memory":
		// No further settings needed.
	default:
		return fmt.Errorf("invalid store backend: %s", c.Store.Backend)
	}

	if c.Store.TrendTTL <= 0 {
		return fmt.Errorf("trend TTL must be positive")
	}

	if c.Reddit.ClientID == "" || c.Reddit.ClientSecret == "" {
		return fmt.Errorf("reddit client credentials are required")
	}

	if c.Reddit.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("reddit rate limit must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Observability.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Observability.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Observability.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Observability.Logging.Format)
	}

	return nil
}
