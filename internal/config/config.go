// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package config

import (
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// Config is the top-level Mnemo configuration.
type Config struct {
	DataDir   string          `mapstructure:"data_dir"`
	API       APIConfig       `mapstructure:"api"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Distill   DistillConfig   `mapstructure:"distill"`
	Training  TrainingConfig  `mapstructure:"training"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Log       LogConfig       `mapstructure:"log"`
}

// APIConfig controls how the daemon listens for connections.
type APIConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	AuthToken string `mapstructure:"auth_token"`
}

// Addr returns the host:port listen address.
func (a APIConfig) Addr() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// EmbeddingConfig holds credentials and tuning for the embedding provider.
type EmbeddingConfig struct {
	Provider   string      `mapstructure:"provider"`
	Model      string      `mapstructure:"model"`
	Dimensions int         `mapstructure:"dimensions"`
	APIKey     string      `mapstructure:"api_key"`
	BaseURL    string      `mapstructure:"base_url"`
	InputLimit int         `mapstructure:"input_limit"`
	Retry      RetryConfig `mapstructure:"retry"`
	Cache      CacheConfig `mapstructure:"cache"`
}

// RetryConfig tunes the per-item embedding retry loop.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// CacheConfig tunes the in-process embedding cache. Size 0 disables it.
type CacheConfig struct {
	Size int           `mapstructure:"size"`
	TTL  time.Duration `mapstructure:"ttl"`
}

// DistillConfig holds credentials for the transcript distiller. An empty
// API key leaves the distiller disabled; learnings endpoints then report
// the daemon as unconfigured instead of failing requests upstream.
type DistillConfig struct {
	Model  string `mapstructure:"model"`
	APIKey string `mapstructure:"api_key"`
}

// TrainingConfig tunes chunking and retrain behavior.
type TrainingConfig struct {
	ChunkSize    int  `mapstructure:"chunk_size"`
	ChunkOverlap int  `mapstructure:"chunk_overlap"`
	PurgeOnEdit  bool `mapstructure:"purge_on_edit"`
}

// ScheduleConfig controls background jobs. An empty train interval disables
// the auto-train job.
type ScheduleConfig struct {
	TrainInterval string `mapstructure:"train_interval"`
}

// LogConfig controls daemon logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// LogLevel maps the configured level name to a slog level. Unknown names
// fall back to info; Validate rejects them before this is consulted.
func (c *Config) LogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetDefaults installs the default value for every config key. Every key
// gets a default, even if just the zero value, so environment overrides
// bind for keys absent from the config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "")
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 7337)
	v.SetDefault("api.auth_token", "")
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.input_limit", 8000)
	v.SetDefault("embedding.retry.max_attempts", 3)
	v.SetDefault("embedding.retry.base_delay", 300*time.Millisecond)
	v.SetDefault("embedding.retry.max_delay", 5*time.Second)
	v.SetDefault("embedding.cache.size", 2048)
	v.SetDefault("embedding.cache.ttl", time.Hour)
	v.SetDefault("distill.model", "")
	v.SetDefault("distill.api_key", "")
	v.SetDefault("training.chunk_size", 1000)
	v.SetDefault("training.chunk_overlap", 200)
	v.SetDefault("training.purge_on_edit", true)
	v.SetDefault("schedule.train_interval", "")
	v.SetDefault("log.level", "info")
}

// SetupEnv enables environment variable overrides (prefix MNEMO_, dots
// replaced by underscores: MNEMO_API_PORT, MNEMO_EMBEDDING_API_KEY, ...).
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("MNEMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// FromViper unmarshals and validates a configured viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, mnemoerr.Wrap(err, mnemoerr.CodeConfigParseInvalidFormat, "unmarshalling config")
	}

	if err := cfg.expandDataDir(); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, mnemoerr.Wrap(errors.Join(errs...), mnemoerr.CodeConfigValidateInvalidValue, "validating config")
	}

	return &cfg, nil
}

// LoadViper builds a viper instance with defaults, environment overrides,
// and the given config file (skipped when path is empty) applied in that
// order. Callers that need a post-load step, such as keyring resolution,
// run it on the returned instance before FromViper.
func LoadViper(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var parseErr viper.ConfigParseError
			if errors.As(err, &parseErr) {
				return nil, mnemoerr.Wrapf(err, mnemoerr.CodeConfigParseInvalidFormat, "parsing config %s", path)
			}
			return nil, mnemoerr.Wrapf(err, mnemoerr.CodeConfigLoadReadFailure, "reading config %s", path)
		}
	}

	return v, nil
}

// Load reads configuration from the given path (or defaults when empty)
// with environment variable overrides applied on top.
func Load(path string) (*Config, error) {
	v, err := LoadViper(path)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// expandDataDir resolves the default and ~-prefixed data directories to an
// absolute path under the user's home.
func (c *Config) expandDataDir() error {
	needsHome := c.DataDir == "" || c.DataDir == "~" || strings.HasPrefix(c.DataDir, "~/")
	if !needsHome {
		return nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return mnemoerr.Wrap(err, mnemoerr.CodeConfigLoadReadFailure, "resolving home directory")
	}

	if c.DataDir == "" {
		c.DataDir = filepath.Join(home, ".mnemo")
		return nil
	}
	c.DataDir = filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(c.DataDir, "~"), "/"))
	return nil
}

// Validate checks the configuration for logical errors. It returns a slice
// of all validation errors found, collecting all issues rather than
// stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateAPI()...)
	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateTraining()...)
	errs = append(errs, c.validateSchedule()...)
	errs = append(errs, c.validateLog()...)

	return errs
}

func (c *Config) validateAPI() []error {
	var errs []error

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, mnemoerr.Errorf(mnemoerr.CodeConfigValidateInvalidValue,
			"config: api.port must be between 1 and 65535, got %d",
			c.API.Port,
		))
	}

	return errs
}

func (c *Config) validateEmbedding() []error {
	var errs []error

	// Empty selects the default provider downstream.
	validProviders := map[string]bool{"": true, "openai": true, "google": true}
	if !validProviders[c.Embedding.Provider] {
		errs = append(errs, mnemoerr.Errorf(mnemoerr.CodeConfigValidateInvalidValue,
			"config: embedding.provider must be one of [openai, google], got %q",
			c.Embedding.Provider,
		))
	}

	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, mnemoerr.Errorf(mnemoerr.CodeConfigValidateInvalidValue,
			"config: embedding.dimensions must be greater than 0, got %d",
			c.Embedding.Dimensions,
		))
	}

	if c.Embedding.InputLimit <= 0 {
		errs = append(errs, mnemoerr.Errorf(mnemoerr.CodeConfigValidateInvalidValue,
			"config: embedding.input_limit must be greater than 0, got %d",
			c.Embedding.InputLimit,
		))
	}

	if c.Embedding.Retry.MaxAttempts < 1 {
		errs = append(errs, mnemoerr.Errorf(mnemoerr.CodeConfigValidateInvalidValue,
			"config: embedding.retry.max_attempts must be at least 1, got %d",
			c.Embedding.Retry.MaxAttempts,
		))
	}

	if c.Embedding.Retry.BaseDelay <= 0 {
		errs = append(errs, mnemoerr.Errorf(mnemoerr.CodeConfigValidateInvalidValue,
			"config: embedding.retry.base_delay must be greater than 0, got %s",
			c.Embedding.Retry.BaseDelay,
		))
	} else if c.Embedding.Retry.MaxDelay < c.Embedding.Retry.BaseDelay {
		errs = append(errs, mnemoerr.Errorf(mnemoerr.CodeConfigValidateInvalidValue,
			"config: embedding.retry.max_delay must be at least base_delay, got %s < %s",
			c.Embedding.Retry.MaxDelay, c.Embedding.Retry.BaseDelay,
		))
	}

	if c.Embedding.Cache.Size < 0 {
		errs = append(errs, mnemoerr.Errorf(mnemoerr.CodeConfigValidateInvalidValue,
			"config: embedding.cache.size must not be negative, got %d",
			c.Embedding.Cache.Size,
		))
	} else if c.Embedding.Cache.Size > 0 && c.Embedding.Cache.TTL <= 0 {
		errs = append(errs, mnemoerr.Errorf(mnemoerr.CodeConfigValidateInvalidValue,
			"config: embedding.cache.ttl must be greater than 0 when the cache is enabled, got %s",
			c.Embedding.Cache.TTL,
		))
	}

	return errs
}

func (c *Config) validateTraining() []error {
	var errs []error

	if c.Training.ChunkSize <= 0 {
		errs = append(errs, mnemoerr.Errorf(mnemoerr.CodeConfigValidateInvalidValue,
			"config: training.chunk_size must be greater than 0, got %d",
			c.Training.ChunkSize,
		))
		return errs
	}

	if c.Training.ChunkOverlap < 0 || c.Training.ChunkOverlap >= c.Training.ChunkSize {
		errs = append(errs, mnemoerr.Errorf(mnemoerr.CodeConfigValidateInvalidValue,
			"config: training.chunk_overlap must be in [0, chunk_size), got %d with chunk_size %d",
			c.Training.ChunkOverlap, c.Training.ChunkSize,
		))
	}

	return errs
}

func (c *Config) validateSchedule() []error {
	var errs []error

	if c.Schedule.TrainInterval != "" {
		if _, err := cron.ParseStandard(c.Schedule.TrainInterval); err != nil {
			errs = append(errs, mnemoerr.Errorf(mnemoerr.CodeConfigValidateInvalidValue,
				"config: schedule.train_interval must be a cron spec or @every duration, got %q: %w",
				c.Schedule.TrainInterval, err,
			))
		}
	}

	return errs
}

func (c *Config) validateLog() []error {
	var errs []error

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, mnemoerr.Errorf(mnemoerr.CodeConfigValidateInvalidValue,
			"config: log.level must be one of [debug, info, warn, error], got %q",
			c.Log.Level,
		))
	}

	return errs
}
