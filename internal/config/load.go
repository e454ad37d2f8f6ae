package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config file. Environment variables (prefixed with VOXNOTE_) take
// precedence over values from the config file.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config.yaml in the working directory or /etc/voxnote.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/voxnote")

	if err := v.ReadInConfig(); err != nil {
		// Missing config files are fine; everything can come from the
		// environment. Anything else (parse errors) is fatal.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("VOXNOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers defaults for everything that has a sensible one.
// Secrets (database URL, JWT secret, API key, credential hash) have no
// defaults and must be provided.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("ai.model_name", "gemini-2.0-flash")
	v.SetDefault("ai.call_timeout_seconds", 120)
	v.SetDefault("ai.transcription_cents_per_minute", 0.6)
	v.SetDefault("ai.analysis_cents_per_call", 0.2)

	v.SetDefault("pipeline.worker_count", 2)
	v.SetDefault("pipeline.batch_size", 10)
	v.SetDefault("pipeline.poll_interval_seconds", 15)
	v.SetDefault("pipeline.lock_timeout_minutes", 10)
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.reconcile_interval_minutes", 5)

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.window_seconds", 120)
	v.SetDefault("breaker.cooldown_seconds", 60)
	v.SetDefault("breaker.max_cooldown_seconds", 600)
	v.SetDefault("breaker.shared", false)

	v.SetDefault("quota.storage_limit_bytes", int64(1)<<30)
	v.SetDefault("quota.processing_limit", 100)
	v.SetDefault("quota.processing_window_hrs", 24)

	v.SetDefault("storage.audio_root", "./data/audio")
}
