package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Storage             string            `mapstructure:"storage" validate:"required,oneof=postgres memory"`
	PostgresURL         string            `mapstructure:"postgres_url" validate:"required_if=Storage postgres"`
	GRPCPort            string            `mapstructure:"grpc_port" validate:"required"`
	MetricsPort         string            `mapstructure:"metrics_port"`
	LogLevel            string            `mapstructure:"log_level" validate:"required,uppercase,oneof=DEBUG INFO WARN ERROR"`
	ShutdownTimeoutSecs int               `mapstructure:"shutdown_timeout_secs" validate:"min=1"`
	QueryOptions        QueryConfig       `mapstructure:"query" validate:"required"`
	EnrichOptions       EnrichConfig      `mapstructure:"enrich"`
	SchemaCacheOptions  SchemaCacheConfig `mapstructure:"schema_cache" validate:"required"`
}

type QueryConfig struct {
	DefaultLimit int `mapstructure:"default_limit" validate:"min=1,ltefield=MaxLimit"`
	MaxLimit     int `mapstructure:"max_limit" validate:"min=1"`
}

type EnrichConfig struct {
	MaxDepth int `mapstructure:"max_depth" validate:"min=0,max=10"`
}

type SchemaCacheConfig struct {
	RefreshIntervalSecs int `mapstructure:"refresh_interval_secs" validate:"min=1"`
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("storage", "postgres")
	v.SetDefault("postgres_url", "")
	v.SetDefault("grpc_port", ":50051")
	v.SetDefault("metrics_port", ":9090")
	v.SetDefault("log_level", "INFO")
	v.SetDefault("shutdown_timeout_secs", 10)
	v.SetDefault("query.default_limit", 10)
	v.SetDefault("query.max_limit", 100)
	v.SetDefault("enrich.max_depth", 2)
	v.SetDefault("schema_cache.refresh_interval_secs", 60)

	v.SetEnvPrefix("BASESTORE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

// Load reads defaults, the optional config file and BASESTORE_* environment
// variables, then validates the result.
func Load() (*Config, error) {
	v := newViper()

	configFile := os.Getenv("BASESTORE_CONFIG_PATH")
	if configFile != "" {
		v.SetConfigFile(configFile)
		slog.Info("Loading configuration from specified file", "path", configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/basestore/")
		slog.Debug("Config path not set, using default paths",
			"paths", []string{".", "./config", "/etc/basestore/"},
			"filename", "config.yaml")
	}

	err := v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		slog.Warn("Config file not found, using defaults and environment variables")
	} else {
		slog.Info("Configuration loaded", "file", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	cfg.LogLevel = strings.ToUpper(cfg.LogLevel)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	logConfig(&cfg)
	return &cfg, nil
}

func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// SlogLevel maps the configured level name onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func logConfig(cfg *Config) {
	slog.Info("Final Configuration",
		"storage", cfg.Storage,
		"postgres_url_set", cfg.PostgresURL != "",
		"grpc_port", cfg.GRPCPort,
		"metrics_port", cfg.MetricsPort,
		"log_level", cfg.LogLevel,
		"query", cfg.QueryOptions,
		"enrich", cfg.EnrichOptions,
		"schema_cache", cfg.SchemaCacheOptions)
}
