// Package config loads jobkeep configuration from defaults, an optional
// config file and JOBKEEP_-prefixed environment variables, in that
// precedence order (lowest first).
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	Cache   CacheConfig   `mapstructure:"cache"`
	Probe   ProbeConfig   `mapstructure:"probe"`
	Lock    LockConfig    `mapstructure:"lock"`
	Daemon  DaemonConfig  `mapstructure:"daemon"`
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
	History HistoryConfig `mapstructure:"history"`
}

// CacheConfig locates the cache file.
type CacheConfig struct {
	Path string `mapstructure:"path"`
}

// ProbeConfig locates an optional YAML sources manifest overriding the
// built-in listing sources.
type ProbeConfig struct {
	SourcesFile string `mapstructure:"sources_file"`
}

// LockConfig tunes lock acquisition on the cache file.
type LockConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	TakeOverStale bool          `mapstructure:"take_over_stale"`
}

// DaemonConfig tunes the periodic-update loop.
type DaemonConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// LoggingConfig tunes the CLI logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig tunes the read-only HTTP listing server.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// RateLimit is requests per second across all clients; every request
	// may contend on the cache lock file, so the API is throttled as a
	// whole. RateBurst is the bucket size.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// HistoryConfig tunes the status-transition log.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

const envPrefix = "JOBKEEP"

// setDefaults registers every default on the global viper instance.
func setDefaults() {
	viper.SetDefault("cache.path", defaultCachePath())
	viper.SetDefault("probe.sources_file", "")

	viper.SetDefault("lock.max_attempts", 30)
	viper.SetDefault("lock.retry_delay", "1s")
	viper.SetDefault("lock.take_over_stale", true)

	viper.SetDefault("daemon.interval", "60s")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")

	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.shutdown_timeout", "10s")
	viper.SetDefault("server.rate_limit", 5.0)
	viper.SetDefault("server.rate_burst", 10)

	viper.SetDefault("history.enabled", false)
	viper.SetDefault("history.path", defaultHistoryPath())
}

// defaultCachePath is $HOME/.cache/jobkeep/jobkeep.cache.
func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "jobkeep.cache")
	}
	return filepath.Join(home, ".cache", "jobkeep", "jobkeep.cache")
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "jobkeep-history.db")
	}
	return filepath.Join(home, ".cache", "jobkeep", "history.db")
}

// Load builds the configuration. An explicit config file path (from
// --config) is required to exist; the default search locations are
// optional.
func Load(ctx context.Context, configFile string) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	setDefaults()

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "jobkeep"))
		}
		viper.AddConfigPath("/etc/jobkeep")
		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
