// Package config provides configuration management for nimbus using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 7970
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	defaultServiceTimeout      = 30 * time.Second
	defaultReadyPollInterval   = 2 * time.Second
	defaultReadyTimeout        = 5 * time.Minute
	defaultServiceRetries      = 3
	defaultStatsInterval       = 1 * time.Second
	defaultStallWarnAfter      = 10 * time.Second
	defaultPresenceTimeout     = 5 * time.Second
	defaultTransportDialPeriod = 15 * time.Second

	defaultMaxOpenConns    = 6
	defaultMaxIdleConns    = 3
	defaultConnMaxIdleTime = 30 * time.Minute
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Service   ServiceConfig   `mapstructure:"service"`
	Transport TransportConfig `mapstructure:"transport"`
	Presence  PresenceConfig  `mapstructure:"presence"`
	Session   SessionConfig   `mapstructure:"session"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

// ServerConfig holds the local control API server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds catalog cache database configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// ServiceConfig holds remote session service configuration.
type ServiceConfig struct {
	// BaseURL is the root of the session service API.
	BaseURL string `mapstructure:"base_url"`
	// Timeout bounds each individual service call.
	Timeout time.Duration `mapstructure:"timeout"`
	// RetryAttempts is the per-call retry budget for transient failures.
	RetryAttempts int `mapstructure:"retry_attempts"`
	// ReadyPollInterval is the delay between await-ready polls.
	ReadyPollInterval time.Duration `mapstructure:"ready_poll_interval"`
	// ReadyTimeout is the client-side cap on the await-ready operation.
	// The service bounds the wait server-side; this is a safety net.
	ReadyTimeout time.Duration `mapstructure:"ready_timeout"`
}

// TransportConfig holds transport engine configuration.
type TransportConfig struct {
	// DialTimeout bounds the websocket dial to the streaming server.
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	// MountPoint is the presentation surface the video is rendered into.
	MountPoint string `mapstructure:"mount_point"`
}

// PresenceConfig holds presence service configuration.
type PresenceConfig struct {
	// BaseURL is the presence service endpoint. Empty disables reporting.
	BaseURL string `mapstructure:"base_url"`
	// Timeout bounds each fire-and-forget notification.
	Timeout time.Duration `mapstructure:"timeout"`
}

// SessionConfig holds lifecycle controller configuration.
type SessionConfig struct {
	// StatsInterval is the stats polling cadence while streaming.
	StatsInterval time.Duration `mapstructure:"stats_interval"`
	// StallWarnAfter is how long without samples before a warning is
	// logged. Zero disables the watchdog.
	StallWarnAfter time.Duration `mapstructure:"stall_warn_after"`
	// ProfilesFile is an optional YAML file of quality presets.
	ProfilesFile string `mapstructure:"profiles_file"`
	// DefaultProfile is the preset used when a launch names none.
	DefaultProfile string `mapstructure:"default_profile"`
}

// CatalogConfig holds catalog cache configuration.
type CatalogConfig struct {
	// StoreURL is the storefront catalog API endpoint.
	StoreURL string `mapstructure:"store_url"`
	// StoreID selects the catalog within the storefront.
	StoreID string `mapstructure:"store_id"`
	// RefreshCron is a cron expression for scheduled refreshes.
	RefreshCron string `mapstructure:"refresh_cron"`
}

// AuthConfig holds credential configuration.
type AuthConfig struct {
	// TokenFile is the path to the persisted credential token.
	TokenFile string `mapstructure:"token_file"`
	// Token is an inline credential, normally supplied via NIMBUS_AUTH_TOKEN.
	Token string `mapstructure:"token"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with NIMBUS_ and use underscores for
// nesting. Example: NIMBUS_SERVICE_BASE_URL=https://play.example.com.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/nimbus")
		v.AddConfigPath("$HOME/.nimbus")
	}

	v.SetEnvPrefix("NIMBUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file so defaults are in
// place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "nimbus.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Session service defaults
	v.SetDefault("service.base_url", "")
	v.SetDefault("service.timeout", defaultServiceTimeout)
	v.SetDefault("service.retry_attempts", defaultServiceRetries)
	v.SetDefault("service.ready_poll_interval", defaultReadyPollInterval)
	v.SetDefault("service.ready_timeout", defaultReadyTimeout)

	// Transport defaults
	v.SetDefault("transport.dial_timeout", defaultTransportDialPeriod)
	v.SetDefault("transport.mount_point", "primary")

	// Presence defaults
	v.SetDefault("presence.base_url", "")
	v.SetDefault("presence.timeout", defaultPresenceTimeout)

	// Session defaults
	v.SetDefault("session.stats_interval", defaultStatsInterval)
	v.SetDefault("session.stall_warn_after", defaultStallWarnAfter)
	v.SetDefault("session.profiles_file", "")
	v.SetDefault("session.default_profile", "balanced")

	// Catalog defaults
	v.SetDefault("catalog.store_url", "")
	v.SetDefault("catalog.store_id", "default")
	v.SetDefault("catalog.refresh_cron", "0 */6 * * *") // every 6 hours

	// Auth defaults
	v.SetDefault("auth.token_file", "")
	v.SetDefault("auth.token", "")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Service.ReadyPollInterval <= 0 {
		return fmt.Errorf("service.ready_poll_interval must be positive")
	}
	if c.Service.ReadyTimeout <= 0 {
		return fmt.Errorf("service.ready_timeout must be positive")
	}
	if c.Session.StatsInterval <= 0 {
		return fmt.Errorf("session.stats_interval must be positive")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
