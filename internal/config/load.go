package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// MEDIAFORGE_ENGINE_MAX_CONCURRENCY.
const EnvPrefix = "MEDIAFORGE"

// Keys without a sensible default. They are bound explicitly so that
// environment-only deployments can still provide them.
var requiredKeys = []string{
	"database.url",
	"auth.jwt_secret",
	"provider.api_key",
	"gemini.api_key",
	"storage.bucket",
	"storage.region",
	"storage.public_base_url",
	"storage.credentials_file",
	"webhook.secret",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("auth.token_lifetime", 24*time.Hour)

	v.SetDefault("engine.max_concurrency", 4)
	v.SetDefault("engine.reserved_slots", 0)
	v.SetDefault("engine.retry_delay", 30*time.Second)
	v.SetDefault("engine.max_retries", 30)
	v.SetDefault("engine.poll_interval", 2*time.Second)
	v.SetDefault("engine.watch_timeout", 15*time.Minute)
	v.SetDefault("engine.result_timeout", 15*time.Second)
	v.SetDefault("engine.relocation_timeout", 2*time.Minute)
	v.SetDefault("engine.sweep_schedule", "@every 5m")
	v.SetDefault("engine.stale_after", 10*time.Minute)
	v.SetDefault("engine.webhook_dedup_size", 1024)
	v.SetDefault("engine.webhook_url", "")

	v.SetDefault("provider.base_url", "https://api.inference.example.com")
	v.SetDefault("provider.requests_per_second", 5.0)
	v.SetDefault("provider.burst", 10)
	v.SetDefault("provider.timeout", 30*time.Second)
	v.SetDefault("provider.upscale_model", "real-esrgan")
	v.SetDefault("provider.enhance_model", "video-restore")

	v.SetDefault("gemini.video_model", "veo-2.0-generate-001")

	v.SetDefault("storage.backend", "gcs")
	v.SetDefault("storage.upload_attempts", 3)
	v.SetDefault("storage.download_timeout", time.Minute)

	v.SetDefault("webhook.tolerance", 5*time.Minute)
}

// Load configuration from environment variables and optionally a config file.
// Environment variables take precedence over values from the file. When
// configFile is empty, ./config.yaml is read if it exists.
// Returns a populated Config struct or an error if loading/validation fails.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range requiredKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment variable for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
