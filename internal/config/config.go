package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	Engine   EngineConfig   `mapstructure:"engine" validate:"required"`
	Provider ProviderConfig `mapstructure:"provider" validate:"required"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	Storage  StorageConfig  `mapstructure:"storage" validate:"required"`
	Webhook  WebhookConfig  `mapstructure:"webhook" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat       string        `mapstructure:"log_format" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
// Driver "memory" keeps task records in process, for local development.
type DatabaseConfig struct {
	Driver      string `mapstructure:"driver" validate:"required,oneof=postgres memory"`
	URL         string `mapstructure:"url" validate:"required_if=Driver postgres,omitempty,url"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetime time.Duration `mapstructure:"token_lifetime" validate:"gt=0"`
}

// EngineConfig tunes the task engine: admission, retry and status watching.
type EngineConfig struct {
	MaxConcurrency    int           `mapstructure:"max_concurrency" validate:"gt=0"`
	ReservedSlots     int           `mapstructure:"reserved_slots" validate:"gte=0"`
	RetryDelay        time.Duration `mapstructure:"retry_delay" validate:"gt=0"`
	MaxRetries        int           `mapstructure:"max_retries" validate:"gte=0"`
	PollInterval      time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	WatchTimeout      time.Duration `mapstructure:"watch_timeout" validate:"gt=0"`
	ResultTimeout     time.Duration `mapstructure:"result_timeout" validate:"gt=0"`
	RelocationTimeout time.Duration `mapstructure:"relocation_timeout" validate:"gt=0"`
	SweepSchedule     string        `mapstructure:"sweep_schedule"`
	StaleAfter        time.Duration `mapstructure:"stale_after" validate:"gt=0"`
	WebhookDedupSize  int           `mapstructure:"webhook_dedup_size" validate:"gt=0"`
	WebhookURL        string        `mapstructure:"webhook_url" validate:"omitempty,url"`
}

// ProviderConfig configures the REST inference provider used by the image
// and video enhancement kinds.
type ProviderConfig struct {
	BaseURL           string        `mapstructure:"base_url" validate:"required,url"`
	APIKey            string        `mapstructure:"api_key" validate:"required"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gt=0"`
	Burst             int           `mapstructure:"burst" validate:"gt=0"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
	UpscaleModel      string        `mapstructure:"upscale_model" validate:"required"`
	EnhanceModel      string        `mapstructure:"enhance_model" validate:"required"`
}

// GeminiConfig enables the video generation kind when APIKey is set.
type GeminiConfig struct {
	APIKey     string `mapstructure:"api_key"`
	VideoModel string `mapstructure:"video_model" validate:"required_with=APIKey"`
}

// StorageConfig selects where generated artifacts are relocated to.
// Backend "none" keeps the provider's reference as the output.
type StorageConfig struct {
	Backend         string        `mapstructure:"backend" validate:"required,oneof=gcs s3 none"`
	Bucket          string        `mapstructure:"bucket" validate:"required_unless=Backend none"`
	Region          string        `mapstructure:"region" validate:"required_if=Backend s3"`
	PublicBaseURL   string        `mapstructure:"public_base_url" validate:"required_unless=Backend none,omitempty,url"`
	CredentialsFile string        `mapstructure:"credentials_file"`
	UploadAttempts  int           `mapstructure:"upload_attempts" validate:"gt=0"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout" validate:"gt=0"`
}

// WebhookConfig holds the shared secret used to verify provider callbacks.
type WebhookConfig struct {
	Secret    string        `mapstructure:"secret" validate:"required,min=16"`
	Tolerance time.Duration `mapstructure:"tolerance" validate:"gt=0"`
}
