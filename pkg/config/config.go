package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tradelink/leadexchange/pkg/observability"
)

// Store backends for sessions and rate-limit records
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Auth          AuthConfig          `yaml:"auth"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Audit         AuditConfig         `yaml:"audit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`

	// Trust X-Forwarded-For / X-Real-IP for client addresses
	TrustProxy bool `yaml:"trust_proxy"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL         string        `yaml:"url"`
	ReplicaURLs string        `yaml:"replica_urls"` // comma separated
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
	Migrate     bool          `yaml:"migrate"`
}

// RedisConfig holds Redis settings. An empty URL disables Redis.
type RedisConfig struct {
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	MaxRetries int    `yaml:"max_retries"`
	PoolSize   int    `yaml:"pool_size"`
}

// AuthConfig holds session and webhook settings
type AuthConfig struct {
	SessionTTL    time.Duration `yaml:"session_ttl"`
	SessionStore  string        `yaml:"session_store"`
	MaxSessions   int           `yaml:"max_sessions"`
	SecureCookies bool          `yaml:"secure_cookies"`
	WebhookSecret string        `yaml:"webhook_secret"`
}

// RateLimitConfig holds the login and registration policies
type RateLimitConfig struct {
	Store            string        `yaml:"store"`
	LoginMaxAttempts int           `yaml:"login_max_attempts"`
	LoginMaxFailures int           `yaml:"login_max_failures"`
	LoginWindow      time.Duration `yaml:"login_window"`
	RegisterMax      int           `yaml:"register_max"`
	RegisterWindow   time.Duration `yaml:"register_window"`
}

// AuditConfig holds audit trail settings. Events always go to the
// application log; Dir additionally enables the NDJSON file trail.
type AuditConfig struct {
	Dir      string `yaml:"dir"`
	MaxSize  int64  `yaml:"max_size"`
	MaxFiles int    `yaml:"max_files"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Level          string                 `yaml:"log_level"`
	LogLevel       observability.LogLevel `yaml:"-"`
	MetricsEnabled bool                   `yaml:"metrics_enabled"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
			HealthPort:      "9090",
		},
		Database: DatabaseConfig{
			MaxConns:    25,
			MinConns:    5,
			Timeout:     5 * time.Second,
			MaxLifetime: 30 * time.Minute,
			MaxIdleTime: 5 * time.Minute,
			Migrate:     true,
		},
		Redis: RedisConfig{
			MaxRetries: 3,
			PoolSize:   10,
		},
		Auth: AuthConfig{
			SessionTTL:    24 * time.Hour,
			SessionStore:  StoreMemory,
			MaxSessions:   10000,
			SecureCookies: true,
		},
		RateLimit: RateLimitConfig{
			Store:            StoreMemory,
			LoginMaxAttempts: 30,
			LoginMaxFailures: 5,
			LoginWindow:      15 * time.Minute,
			RegisterMax:      12,
			RegisterWindow:   time.Hour,
		},
		Audit: AuditConfig{
			MaxSize:  100 * 1024 * 1024,
			MaxFiles: 10,
		},
		Observability: ObservabilityConfig{
			Level:          "info",
			MetricsEnabled: true,
		},
	}
}

// LoadConfig builds configuration from defaults, then the YAML file named by
// LEADX_CONFIG_FILE (if any), then LEADX_* environment variables.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := getEnv("LEADX_CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.Observability.LogLevel = parseLogLevel(cfg.Observability.Level)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile overlays the YAML document at path onto c. Keys absent from the
// file keep their current values.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("LEADX_HOST", s.Host)
	s.Port = getEnv("LEADX_PORT", s.Port)
	s.HealthPort = getEnv("LEADX_HEALTH_PORT", s.HealthPort)
	s.ReadTimeout = getEnvDuration("LEADX_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("LEADX_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("LEADX_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("LEADX_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.MaxBodyBytes = getEnvInt64("LEADX_MAX_BODY_BYTES", s.MaxBodyBytes)
	s.TrustProxy = getEnvBool("LEADX_TRUST_PROXY", s.TrustProxy)

	d := &c.Database
	d.URL = getEnv("LEADX_DATABASE_URL", d.URL)
	d.ReplicaURLs = getEnv("LEADX_DATABASE_REPLICA_URLS", d.ReplicaURLs)
	d.MaxConns = getEnvInt("LEADX_DATABASE_MAX_CONNS", d.MaxConns)
	d.MinConns = getEnvInt("LEADX_DATABASE_MIN_CONNS", d.MinConns)
	d.Timeout = getEnvDuration("LEADX_DATABASE_TIMEOUT", d.Timeout)
	d.MaxLifetime = getEnvDuration("LEADX_DATABASE_MAX_LIFETIME", d.MaxLifetime)
	d.MaxIdleTime = getEnvDuration("LEADX_DATABASE_MAX_IDLE_TIME", d.MaxIdleTime)
	d.Migrate = getEnvBool("LEADX_DATABASE_MIGRATE", d.Migrate)

	r := &c.Redis
	r.URL = getEnv("LEADX_REDIS_URL", r.URL)
	r.Password = getEnv("LEADX_REDIS_PASSWORD", r.Password)
	r.DB = getEnvInt("LEADX_REDIS_DB", r.DB)
	r.MaxRetries = getEnvInt("LEADX_REDIS_MAX_RETRIES", r.MaxRetries)
	r.PoolSize = getEnvInt("LEADX_REDIS_POOL_SIZE", r.PoolSize)

	a := &c.Auth
	a.SessionTTL = getEnvDuration("LEADX_SESSION_TTL", a.SessionTTL)
	a.SessionStore = strings.ToLower(getEnv("LEADX_SESSION_STORE", a.SessionStore))
	a.MaxSessions = getEnvInt("LEADX_MAX_SESSIONS", a.MaxSessions)
	a.SecureCookies = getEnvBool("LEADX_SECURE_COOKIES", a.SecureCookies)
	a.WebhookSecret = getEnv("LEADX_BILLING_WEBHOOK_SECRET", a.WebhookSecret)

	l := &c.RateLimit
	l.Store = strings.ToLower(getEnv("LEADX_RATE_LIMIT_STORE", l.Store))
	l.LoginMaxAttempts = getEnvInt("LEADX_LOGIN_MAX_ATTEMPTS", l.LoginMaxAttempts)
	l.LoginMaxFailures = getEnvInt("LEADX_LOGIN_MAX_FAILURES", l.LoginMaxFailures)
	l.LoginWindow = getEnvDuration("LEADX_LOGIN_WINDOW", l.LoginWindow)
	l.RegisterMax = getEnvInt("LEADX_REGISTER_MAX", l.RegisterMax)
	l.RegisterWindow = getEnvDuration("LEADX_REGISTER_WINDOW", l.RegisterWindow)

	au := &c.Audit
	au.Dir = getEnv("LEADX_AUDIT_DIR", au.Dir)
	au.MaxSize = getEnvInt64("LEADX_AUDIT_MAX_SIZE", au.MaxSize)
	au.MaxFiles = getEnvInt("LEADX_AUDIT_MAX_FILES", au.MaxFiles)

	o := &c.Observability
	o.Level = getEnv("LEADX_LOG_LEVEL", o.Level)
	o.MetricsEnabled = getEnvBool("LEADX_METRICS_ENABLED", o.MetricsEnabled)
}

// Validate checks if the configuration is valid
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
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if err := c.validateStore("session store", c.Auth.SessionStore); err != nil {
		return err
	}
	if err := c.validateStore("rate limit store", c.RateLimit.Store); err != nil {
		return err
	}

	l := c.RateLimit
	if l.LoginMaxAttempts <= 0 || l.LoginMaxFailures <= 0 || l.RegisterMax <= 0 {
		return fmt.Errorf("rate limit maximums must be positive")
	}
	if l.LoginWindow <= 0 || l.RegisterWindow <= 0 {
		return fmt.Errorf("rate limit windows must be positive")
	}

	return nil
}

func (c *Config) validateStore(name, value string) error {
	switch value {
	case StoreMemory:
		return nil
	case StoreRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis URL is required for redis %s", name)
		}
		return nil
	default:
		return fmt.Errorf("invalid %s: %s (must be memory or redis)", name, value)
	}
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
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

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
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
