// Package config provides configuration management for the Amplify storage server.
// Configuration can be loaded from YAML files and environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	Failover FailoverConfig `mapstructure:"failover"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
}

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig holds database connection settings.
// Supports both PostgreSQL and SQLite backends.
type DatabaseConfig struct {
	// Driver specifies the database driver: "postgres" or "sqlite".
	Driver string `mapstructure:"driver"`

	// PostgreSQL settings (used when Driver is "postgres")
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`

	// SQLite settings (used when Driver is "sqlite")
	Path            string `mapstructure:"path"`             // Path to SQLite database file, ":memory:" allowed
	JournalMode     string `mapstructure:"journal_mode"`     // WAL, DELETE, TRUNCATE, etc.
	BusyTimeout     int    `mapstructure:"busy_timeout"`     // Milliseconds to wait for locks
	CacheSize       int    `mapstructure:"cache_size"`       // Page cache size (negative = KB)
	SynchronousMode string `mapstructure:"synchronous_mode"` // NORMAL, FULL, OFF
}

// DSN returns the PostgreSQL connection string.
// Only valid when Driver is "postgres".
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// IsEmbedded returns true if using an embedded database (SQLite).
func (c DatabaseConfig) IsEmbedded() bool {
	return c.Driver == DriverSQLite
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Enabled     bool          `mapstructure:"enabled"`
}

// Addr returns the Redis address in host:port format.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig holds the primary and optional backup provider settings.
type StorageConfig struct {
	Primary ProviderConfig `mapstructure:"primary"`
	Backup  ProviderConfig `mapstructure:"backup"`
}

// HasBackup reports whether a backup provider is configured.
func (c StorageConfig) HasBackup() bool {
	return c.Backup.Enabled && c.Backup.Bucket != ""
}

// ProviderConfig describes one S3-compatible storage provider.
type ProviderConfig struct {
	// Enabled toggles the provider. The primary is always required.
	Enabled bool `mapstructure:"enabled"`

	// Name identifies the provider in logs, metrics and metadata.
	Name string `mapstructure:"name"`

	// Kind selects the public URL scheme: "b2", "r2", "s3" or "path".
	Kind string `mapstructure:"kind"`

	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	// CustomDomain overrides the native public URL when set.
	CustomDomain string `mapstructure:"custom_domain"`

	// DownloadHost is the B2 friendly download host (e.g. f004.backblazeb2.com).
	DownloadHost string `mapstructure:"download_host"`

	// AccountID is the R2 public bucket identifier used in pub-{id}.r2.dev.
	AccountID string `mapstructure:"account_id"`

	// PublicRead sets a public-read ACL on uploaded objects.
	PublicRead bool `mapstructure:"public_read"`

	// UsePathStyle forces path-style addressing on the S3 client.
	UsePathStyle bool `mapstructure:"use_path_style"`

	Priority  int     `mapstructure:"priority"`
	CostPerGB float64 `mapstructure:"cost_per_gb"`

	// Timeout bounds every provider call.
	Timeout time.Duration `mapstructure:"timeout"`
}

// QuotaConfig controls quota enforcement.
type QuotaConfig struct {
	// Strict serializes the check-then-write sequence per user.
	Strict bool `mapstructure:"strict"`

	// LockTTL is how long a quota reservation lock is held at most.
	LockTTL time.Duration `mapstructure:"lock_ttl"`

	// LockRetries is the number of acquisition attempts before failing.
	LockRetries int `mapstructure:"lock_retries"`

	// LockRetryDelay is the wait between acquisition attempts.
	LockRetryDelay time.Duration `mapstructure:"lock_retry_delay"`
}

// FailoverConfig holds URL failover settings.
type FailoverConfig struct {
	// HealthCacheTTL is how long a probe result is reused.
	HealthCacheTTL time.Duration `mapstructure:"health_cache_ttl"`

	// ProbeTimeout bounds each HEAD probe.
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// CleanupConfig holds retention cleanup settings.
type CleanupConfig struct {
	// Enabled determines if the retention cleanup loop runs.
	Enabled bool `mapstructure:"enabled"`

	// Interval is how often to run cleanup.
	Interval time.Duration `mapstructure:"interval"`

	// Retention is how long soft-deleted records are kept.
	Retention time.Duration `mapstructure:"retention"`

	// BatchSize is the maximum number of records to process per run.
	BatchSize int `mapstructure:"batch_size"`

	// DryRun logs what would be purged without deleting anything.
	DryRun bool `mapstructure:"dry_run"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	TimeFormat string `mapstructure:"time_format"`

	// Rotation settings, used when Output is a file path.
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled determines if metrics collection is active.
	Enabled bool `mapstructure:"enabled"`

	// Port is the port for the metrics HTTP server.
	Port int `mapstructure:"port"`

	// Path is the URL path for the metrics endpoint.
	Path string `mapstructure:"path"`

	// Namespace prefixes all metric names.
	Namespace string `mapstructure:"namespace"`
}

// Load reads configuration from the specified file and environment variables.
// Environment variables take precedence over file values.
// Environment variables are prefixed with AMPLIFY_ and use _ as separator.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("AMPLIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/amplify")
	}

	// Config file is optional; environment variables may carry everything.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 60*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_body_size", 512*1024*1024) // largest tier file size + headroom

	// Database defaults
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "amplify")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "amplify")
	v.SetDefault("database.ssl_mode", "prefer")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 5*time.Minute)
	v.SetDefault("database.path", "./data/amplify.db")
	v.SetDefault("database.journal_mode", "WAL")
	v.SetDefault("database.busy_timeout", 5000)
	v.SetDefault("database.cache_size", -2000)
	v.SetDefault("database.synchronous_mode", "NORMAL")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.enabled", false)

	// Storage defaults: Backblaze B2 primary, Cloudflare R2 backup
	v.SetDefault("storage.primary.enabled", true)
	v.SetDefault("storage.primary.name", "backblaze_b2")
	v.SetDefault("storage.primary.kind", "b2")
	v.SetDefault("storage.primary.region", "us-west-004")
	v.SetDefault("storage.primary.endpoint", "https://s3.us-west-004.backblazeb2.com")
	v.SetDefault("storage.primary.download_host", "f004.backblazeb2.com")
	v.SetDefault("storage.primary.public_read", false)
	v.SetDefault("storage.primary.priority", 1)
	v.SetDefault("storage.primary.cost_per_gb", 0.005)
	v.SetDefault("storage.primary.timeout", 30*time.Second)

	v.SetDefault("storage.backup.enabled", false)
	v.SetDefault("storage.backup.name", "cloudflare_r2")
	v.SetDefault("storage.backup.kind", "r2")
	v.SetDefault("storage.backup.region", "auto")
	v.SetDefault("storage.backup.public_read", false)
	v.SetDefault("storage.backup.priority", 2)
	v.SetDefault("storage.backup.cost_per_gb", 0.015)
	v.SetDefault("storage.backup.timeout", 30*time.Second)

	// Quota defaults
	v.SetDefault("quota.strict", true)
	v.SetDefault("quota.lock_ttl", 2*time.Minute)
	v.SetDefault("quota.lock_retries", 50)
	v.SetDefault("quota.lock_retry_delay", 100*time.Millisecond)

	// Failover defaults
	v.SetDefault("failover.health_cache_ttl", 5*time.Minute)
	v.SetDefault("failover.probe_timeout", 5*time.Second)

	// Cleanup defaults
	v.SetDefault("cleanup.enabled", true)
	v.SetDefault("cleanup.interval", 1*time.Hour)
	v.SetDefault("cleanup.retention", 30*24*time.Hour)
	v.SetDefault("cleanup.batch_size", 500)
	v.SetDefault("cleanup.dry_run", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.time_format", time.RFC3339)
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("logging.compress", true)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9091)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "amplify")
}

// Validate checks the configuration for required values and valid ranges.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	validDrivers := map[string]bool{DriverPostgres: true, DriverSQLite: true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be 'postgres' or 'sqlite'")
	}

	if c.Database.Driver == DriverPostgres {
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required for postgres driver")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required for postgres driver")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database.database is required for postgres driver")
		}
	} else if c.Database.Path == "" {
		return fmt.Errorf("database.path is required for sqlite driver")
	}

	if err := c.Storage.Primary.validate("storage.primary"); err != nil {
		return err
	}
	if c.Storage.Backup.Enabled {
		if err := c.Storage.Backup.validate("storage.backup"); err != nil {
			return err
		}
		if c.Storage.Backup.Name == c.Storage.Primary.Name {
			return fmt.Errorf("storage.backup.name must differ from storage.primary.name")
		}
	}

	if c.Quota.Strict {
		if c.Quota.LockTTL <= 0 {
			return fmt.Errorf("quota.lock_ttl must be positive when quota.strict is enabled")
		}
		// The reservation lock spans the provider writes.
		writeBudget := c.Storage.Primary.Timeout
		if c.Storage.Backup.Enabled {
			writeBudget += c.Storage.Backup.Timeout
		}
		if c.Quota.LockTTL <= writeBudget {
			return fmt.Errorf("quota.lock_ttl (%s) must exceed the provider write timeouts (%s)", c.Quota.LockTTL, writeBudget)
		}
	}

	if c.Failover.HealthCacheTTL < 0 {
		return fmt.Errorf("failover.health_cache_ttl must not be negative")
	}

	if c.Cleanup.Enabled {
		if c.Cleanup.Interval <= 0 {
			return fmt.Errorf("cleanup.interval must be positive")
		}
		if c.Cleanup.Retention <= 0 {
			return fmt.Errorf("cleanup.retention must be positive")
		}
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error, fatal, panic")
	}

	return nil
}

func (p ProviderConfig) validate(prefix string) error {
	if p.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if p.Bucket == "" {
		return fmt.Errorf("%s.bucket is required", prefix)
	}
	switch p.Kind {
	case "b2", "r2", "s3", "path":
	default:
		return fmt.Errorf("%s.kind must be one of: b2, r2, s3, path", prefix)
	}
	if p.Kind != "s3" && p.Endpoint == "" {
		return fmt.Errorf("%s.endpoint is required for kind %q", prefix, p.Kind)
	}
	if p.Kind == "r2" && p.CustomDomain == "" && p.AccountID == "" {
		return fmt.Errorf("%s.account_id or %s.custom_domain is required for kind r2", prefix, prefix)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("%s.timeout must be positive", prefix)
	}
	if p.CostPerGB < 0 {
		return fmt.Errorf("%s.cost_per_gb must not be negative", prefix)
	}
	return nil
}

// MustLoad loads configuration or panics on error.
// Useful for main function initialization.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
