// Package config loads service configuration from an optional YAML file
// with environment variable overrides. Environment always wins.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Bus           BusConfig           `yaml:"bus"`
	Access        AccessConfig        `yaml:"access"`
	Connection    ConnectionConfig    `yaml:"connection"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            string   `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	IdleTimeout     Duration `yaml:"idle_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds the PostgreSQL connection settings
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds cache settings. An empty URL selects the in-process
// cache, for development and tests.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// BusConfig holds message bus settings
type BusConfig struct {
	URL            string   `yaml:"url"`
	QueueGroup     string   `yaml:"queue_group"`
	AuthSubject    string   `yaml:"auth_subject"`
	RequestTimeout Duration `yaml:"request_timeout"`
}

// AccessConfig holds resolver TTLs
type AccessConfig struct {
	ContextTTL  Duration `yaml:"context_ttl"`
	DecisionTTL Duration `yaml:"decision_ttl"`
}

// OAuthProviderConfig holds one channel's OAuth endpoints
type OAuthProviderConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	AuthURL      string   `yaml:"auth_url"`
	TokenURL     string   `yaml:"token_url"`
	RedirectURL  string   `yaml:"redirect_url"`
	Scopes       []string `yaml:"scopes"`
}

// ConnectionConfig holds connection orchestration settings
type ConnectionConfig struct {
	StateTTL      Duration                       `yaml:"state_ttl"`
	StaleAfter    Duration                       `yaml:"stale_after"`
	SweepSchedule string                         `yaml:"sweep_schedule"`
	Providers     map[string]OAuthProviderConfig `yaml:"providers"`
}

// ObservabilityConfig holds logging and metrics settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// Load builds the configuration: defaults, then the YAML file at path
// (skipped when path is empty), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(15 * time.Second),
			IdleTimeout:     Duration(60 * time.Second),
			ShutdownTimeout: Duration(30 * time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Bus: BusConfig{
			URL:            "nats://127.0.0.1:4222",
			QueueGroup:     "coreplane",
			AuthSubject:    "auth.token.validate",
			RequestTimeout: Duration(5 * time.Second),
		},
		Access: AccessConfig{
			ContextTTL:  Duration(5 * time.Minute),
			DecisionTTL: Duration(5 * time.Minute),
		},
		Connection: ConnectionConfig{
			StateTTL:      Duration(10 * time.Minute),
			StaleAfter:    Duration(time.Hour),
			SweepSchedule: "@every 10m",
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			MetricsEnabled: true,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("CORE_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnv("CORE_PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = getEnvDuration("CORE_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvDuration("CORE_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = getEnvDuration("CORE_IDLE_TIMEOUT", cfg.Server.IdleTimeout)
	cfg.Server.ShutdownTimeout = getEnvDuration("CORE_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.Database.DSN = getEnv("CORE_DATABASE_DSN", cfg.Database.DSN)
	cfg.Database.MaxOpenConns = getEnvInt("CORE_DATABASE_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = getEnvInt("CORE_DATABASE_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)

	cfg.Redis.URL = getEnv("CORE_REDIS_URL", cfg.Redis.URL)
	cfg.Redis.Password = getEnv("CORE_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("CORE_REDIS_DB", cfg.Redis.DB)
	cfg.Redis.PoolSize = getEnvInt("CORE_REDIS_POOL_SIZE", cfg.Redis.PoolSize)

	cfg.Bus.URL = getEnv("CORE_BUS_URL", cfg.Bus.URL)
	cfg.Bus.QueueGroup = getEnv("CORE_BUS_QUEUE_GROUP", cfg.Bus.QueueGroup)
	cfg.Bus.AuthSubject = getEnv("CORE_BUS_AUTH_SUBJECT", cfg.Bus.AuthSubject)
	cfg.Bus.RequestTimeout = getEnvDuration("CORE_BUS_REQUEST_TIMEOUT", cfg.Bus.RequestTimeout)

	cfg.Access.ContextTTL = getEnvDuration("CORE_ACCESS_CONTEXT_TTL", cfg.Access.ContextTTL)
	cfg.Access.DecisionTTL = getEnvDuration("CORE_ACCESS_DECISION_TTL", cfg.Access.DecisionTTL)

	cfg.Connection.StateTTL = getEnvDuration("CORE_CONNECTION_STATE_TTL", cfg.Connection.StateTTL)
	cfg.Connection.StaleAfter = getEnvDuration("CORE_CONNECTION_STALE_AFTER", cfg.Connection.StaleAfter)
	cfg.Connection.SweepSchedule = getEnv("CORE_CONNECTION_SWEEP_SCHEDULE", cfg.Connection.SweepSchedule)

	cfg.Observability.LogLevel = getEnv("CORE_LOG_LEVEL", cfg.Observability.LogLevel)
	cfg.Observability.MetricsEnabled = getEnvBool("CORE_METRICS_ENABLED", cfg.Observability.MetricsEnabled)
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}
	if c.Bus.URL == "" {
		return fmt.Errorf("bus URL is required")
	}
	if c.Access.ContextTTL <= 0 || c.Access.DecisionTTL <= 0 {
		return fmt.Errorf("access TTLs must be positive")
	}
	if c.Connection.StateTTL <= 0 {
		return fmt.Errorf("connection state TTL must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback Duration) Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return Duration(parsed)
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return fallback
}
