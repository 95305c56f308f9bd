package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration, loaded from environment
// variables with GIRDER_* keys.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Authorization AuthorizationConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server on a separate port for probes.
	HealthPort string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration. Redis carries propagation
// fan-out and invite rate limiting; both degrade gracefully when it is
// absent, so URL may be empty.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// AuthorizationConfig holds the core's policy switches.
type AuthorizationConfig struct {
	// AllowSelfDemotion lets a COMPANY_ADMIN change or remove their
	// own membership. Off by default to avoid a tenant locking itself
	// out of its last admin.
	AllowSelfDemotion bool

	// LastAdminGuard rejects mutations that would leave a tenant with
	// zero active admins.
	LastAdminGuard bool

	// RoleOverlayPath optionally points at a YAML file overriding the
	// built-in role definitions; watched for changes when set.
	RoleOverlayPath string

	// InviteTTL is how long an invitation token stays redeemable.
	InviteTTL time.Duration

	// InviteRateLimit caps invitations per actor per window; zero
	// disables the limiter.
	InviteRateLimit  int
	InviteRateWindow time.Duration
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel       string
	MetricsEnabled bool
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("GIRDER_HOST", "0.0.0.0"),
			Port:            getEnv("GIRDER_PORT", "8080"),
			ReadTimeout:     getEnvDuration("GIRDER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("GIRDER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("GIRDER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("GIRDER_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("GIRDER_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:             getEnv("GIRDER_POSTGRES_URL", ""),
			MaxOpenConns:    getEnvInt("GIRDER_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns:    getEnvInt("GIRDER_POSTGRES_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("GIRDER_POSTGRES_CONN_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:      getEnv("GIRDER_REDIS_URL", ""),
			Password: getEnv("GIRDER_REDIS_PASSWORD", ""),
			DB:       getEnvInt("GIRDER_REDIS_DB", 0),
		},
		Authorization: AuthorizationConfig{
			AllowSelfDemotion: getEnvBool("GIRDER_ALLOW_SELF_DEMOTION", false),
			LastAdminGuard:    getEnvBool("GIRDER_LAST_ADMIN_GUARD", true),
			RoleOverlayPath:   getEnv("GIRDER_ROLE_OVERLAY", ""),
			InviteTTL:         getEnvDuration("GIRDER_INVITE_TTL", 7*24*time.Hour),
			InviteRateLimit:   getEnvInt("GIRDER_INVITE_RATE_LIMIT", 50),
			InviteRateWindow:  getEnvDuration("GIRDER_INVITE_RATE_WINDOW", time.Hour),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("GIRDER_LOG_LEVEL", "info"),
			MetricsEnabled: getEnvBool("GIRDER_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the loaded configuration for consistency.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Authorization.InviteTTL <= 0 {
		return fmt.Errorf("invite TTL must be positive")
	}
	if c.Authorization.InviteRateLimit < 0 {
		return fmt.Errorf("invite rate limit must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
