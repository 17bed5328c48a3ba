package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and optionally a
// config file. Environment variables (prefixed OVERSEER_) take precedence
// over values from the config file, which takes precedence over defaults.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults keep the server runnable with no configuration at all.
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("supervisor.max_outstanding", 10000)
	v.SetDefault("supervisor.default_timeout_seconds", 180)
	v.SetDefault("supervisor.global_pool_size", 0)
	v.SetDefault("offload.thread_pool_size", 0)
	v.SetDefault("offload.process_pool_size", 0)
	v.SetDefault("batch.start_jitter_max_ms", 0)
	v.SetDefault("batch.rate_limit_per_second", 0)

	// Environment variables: OVERSEER_SERVER_PORT,
	// OVERSEER_SUPERVISOR_MAX_OUTSTANDING, and so on.
	v.SetEnvPrefix("OVERSEER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Optional config file: ./config.yaml or a path from OVERSEER_CONFIG_PATH.
	if path := os.Getenv("OVERSEER_CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; env vars and defaults still apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
