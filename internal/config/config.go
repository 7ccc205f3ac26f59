// Package config loads service and CLI settings from defaults, an optional
// YAML file, a .env file and CLAIMS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. CLAIMS_DATABASE_URL
const EnvPrefix = "CLAIMS"

// ReferenceDateLayout is the format of liability.reference_date
const ReferenceDateLayout = "2006-01-02"

// Database drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds every setting of the service and CLI
type Config struct {
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Catalog   CatalogConfig   `mapstructure:"catalog" yaml:"catalog"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline" yaml:"pipeline"`
	Liability LiabilityConfig `mapstructure:"liability" yaml:"liability"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`

	// File is the config file that was read, empty when none was found
	File string `mapstructure:"-" yaml:"-"`
}

// LogConfig controls the structured logger
type LogConfig struct {
	Level           string `mapstructure:"level" yaml:"level"`
	ErrorSampleRate int    `mapstructure:"error_sample_rate" yaml:"error_sample_rate"`
}

// ServerConfig controls the HTTP listener
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxUploadMB     int64         `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
}

// DatabaseConfig selects the claim, policy and rule storage
type DatabaseConfig struct {
	Driver      string `mapstructure:"driver" yaml:"driver"`
	URL         string `mapstructure:"url" yaml:"url"`
	AutoMigrate bool   `mapstructure:"auto_migrate" yaml:"auto_migrate"`
}

// StorageConfig controls where uploaded documents are written
type StorageConfig struct {
	UploadDir string `mapstructure:"upload_dir" yaml:"upload_dir"`
}

// CatalogConfig points at an optional keyword/field/policy catalog file
type CatalogConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// PipelineConfig controls claim processing
type PipelineConfig struct {
	Workers       int           `mapstructure:"workers" yaml:"workers"`
	QueueSize     int           `mapstructure:"queue_size" yaml:"queue_size"`
	TextCacheTTL  time.Duration `mapstructure:"text_cache_ttl" yaml:"text_cache_ttl"`
	DefaultPolicy string        `mapstructure:"default_policy" yaml:"default_policy"`
}

// LiabilityConfig controls the evaluator
type LiabilityConfig struct {
	EnforceWaitingPeriod bool `mapstructure:"enforce_waiting_period" yaml:"enforce_waiting_period"`
	// ReferenceDate pins "today" for age derivation, YYYY-MM-DD
	ReferenceDate string `mapstructure:"reference_date" yaml:"reference_date"`
}

// RateLimitConfig controls per-client request limiting on the HTTP API
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.error_sample_rate", 1)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_upload_mb", 32)

	v.SetDefault("database.driver", DriverMemory)
	v.SetDefault("database.url", "")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("storage.upload_dir", "uploads")

	v.SetDefault("catalog.file", "")

	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.queue_size", 100)
	v.SetDefault("pipeline.text_cache_ttl", 10*time.Minute)
	v.SetDefault("pipeline.default_policy", "")

	v.SetDefault("liability.enforce_waiting_period", false)
	v.SetDefault("liability.reference_date", "")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 10.0)
	v.SetDefault("rate_limit.burst", 20)
}

// Default returns the built-in settings
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// defaults always decode
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load reads configuration. An explicit path must exist; without one,
// claims.yaml is looked up in the working directory and $HOME/.claims and
// may be absent. Precedence: environment, file, defaults.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// unprefixed names the deployment scripts already use
	_ = v.BindEnv("database.url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("log.level", EnvPrefix+"_LOG_LEVEL", "LOG_LEVEL")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("claims")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.claims")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would otherwise fail later at startup
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMemory:
	case DriverPostgres, DriverSQLite:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for driver %s", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unknown database.driver %q (want memory, postgres or sqlite)", c.Database.Driver)
	}

	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be positive, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.TextCacheTTL < 0 {
		return fmt.Errorf("pipeline.text_cache_ttl must not be negative")
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate_limit.requests_per_second must be positive when enabled")
	}
	if _, _, err := c.ReferenceTime(); err != nil {
		return err
	}
	return nil
}

// ReferenceTime returns the pinned evaluation date, if configured
func (c *Config) ReferenceTime() (time.Time, bool, error) {
	if c.Liability.ReferenceDate == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(ReferenceDateLayout, c.Liability.ReferenceDate)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("liability.reference_date: %w", err)
	}
	return t, true, nil
}
