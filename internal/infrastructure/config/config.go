package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Session store backends.
const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

// Config is the root configuration structure for the gallery core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Database DatabaseConfig `yaml:"database"`
	Media    MediaConfig    `yaml:"media"`
	API      APIConfig      `yaml:"api"`
	Session  SessionConfig  `yaml:"session"`
	Security SecurityConfig `yaml:"security"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SiteConfig contains installation-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MediaConfig contains the media tree settings.
type MediaConfig struct {
	// Root is the directory every browse, stream and upload is confined to.
	Root string `yaml:"root"`

	// MaxUploadMB caps a single uploaded file.
	MaxUploadMB int `yaml:"max_upload_mb"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// SessionConfig contains login session settings.
type SessionConfig struct {
	// Secret signs the session cookie value. Minimum 32 characters.
	Secret string `yaml:"secret"`

	// MaxAge is the absolute session lifetime in minutes.
	MaxAge int `yaml:"max_age"`

	CookieName string `yaml:"cookie_name"`

	// Store selects the backend: "memory" or "redis".
	Store string `yaml:"store"`
}

// SecurityConfig contains login hardening settings.
type SecurityConfig struct {
	// LoginFailureDelayMS is applied to every failed login.
	LoginFailureDelayMS int             `yaml:"login_failure_delay_ms"`
	RateLimit           RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig contains rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`

	// LoginAttempts failed logins are allowed per LoginWindow minutes per client.
	LoginAttempts int `yaml:"login_attempts"`
	LoginWindow   int `yaml:"login_window"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"key_prefix"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GALLERY_SECTION_KEY
// For example: GALLERY_DATABASE_PATH, GALLERY_MEDIA_ROOT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadDatabase reads only the database section, with defaults and the
// GALLERY_DATABASE_PATH override applied. Other sections are not
// validated, so operator tools can run without the session secret.
func LoadDatabase(path string) (*DatabaseConfig, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if v := os.Getenv("GALLERY_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if cfg.Database.Path == "" {
		return nil, errors.New("database.path is required")
	}
	return &cfg.Database, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "gallery-001",
			Name: "Gallery",
		},
		Database: DatabaseConfig{
			Path:        "./data/gallery.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Media: MediaConfig{
			Root:        "./media",
			MaxUploadMB: 500,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 3000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 300,
				Idle:  60,
			},
		},
		Session: SessionConfig{
			MaxAge:     1440,
			CookieName: "sessionId",
			Store:      SessionStoreMemory,
		},
		Security: SecurityConfig{
			LoginFailureDelayMS: 1000,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 100,
				LoginAttempts:     5,
				LoginWindow:       15,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "gallery-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Redis: RedisConfig{
			URL:       "redis://localhost:6379/0",
			KeyPrefix: "gallery:session:",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GALLERY_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("GALLERY_MEDIA_ROOT"); v != "" {
		cfg.Media.Root = v
	}

	if v := os.Getenv("GALLERY_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GALLERY_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Always override the session secret in production.
	if v := os.Getenv("GALLERY_SESSION_SECRET"); v != "" {
		cfg.Session.Secret = v
	}
	if v := os.Getenv("GALLERY_SESSION_STORE"); v != "" {
		cfg.Session.Store = v
	}

	if v := os.Getenv("GALLERY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GALLERY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GALLERY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("GALLERY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("GALLERY_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.Media.Root == "" {
		errs = append(errs, "media.root is required")
	}
	if c.Media.MaxUploadMB < 1 {
		errs = append(errs, "media.max_upload_mb must be positive")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// A weak secret lets anyone forge a session cookie.
	const minSessionSecretLength = 32
	if c.Session.Secret == "" {
		errs = append(errs, "session.secret is required (set GALLERY_SESSION_SECRET environment variable)")
	} else if len(c.Session.Secret) < minSessionSecretLength {
		errs = append(errs, "session.secret must be at least 32 characters for adequate security")
	}
	if c.Session.MaxAge < 1 {
		errs = append(errs, "session.max_age must be positive")
	}
	if c.Session.CookieName == "" {
		errs = append(errs, "session.cookie_name is required")
	}
	switch c.Session.Store {
	case SessionStoreMemory:
	case SessionStoreRedis:
		if !c.Redis.Enabled {
			errs = append(errs, "session.store is redis but redis.enabled is false")
		}
	default:
		errs = append(errs, "session.store must be memory or redis")
	}

	if c.Security.LoginFailureDelayMS < 0 {
		errs = append(errs, "security.login_failure_delay_ms must not be negative")
	}
	if c.Security.RateLimit.Enabled {
		if c.Security.RateLimit.RequestsPerMinute < 1 {
			errs = append(errs, "security.rate_limit.requests_per_minute must be positive")
		}
		if c.Security.RateLimit.LoginAttempts < 1 || c.Security.RateLimit.LoginWindow < 1 {
			errs = append(errs, "security.rate_limit login_attempts and login_window must be positive")
		}
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// SessionMaxAge returns the absolute session lifetime.
func (c *Config) SessionMaxAge() time.Duration {
	return time.Duration(c.Session.MaxAge) * time.Minute
}

// LoginFailureDelay returns the delay applied to failed logins.
func (c *Config) LoginFailureDelay() time.Duration {
	return time.Duration(c.Security.LoginFailureDelayMS) * time.Millisecond
}

// MaxUploadBytes returns the per-file upload cap in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Media.MaxUploadMB) << 20
}
