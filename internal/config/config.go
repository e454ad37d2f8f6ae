package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	AI       AIConfig       `mapstructure:"ai"       validate:"required"`
	Pipeline PipelineConfig `mapstructure:"pipeline" validate:"required"`
	Breaker  BreakerConfig  `mapstructure:"breaker"  validate:"required"`
	Quota    QuotaConfig    `mapstructure:"quota"    validate:"required"`
	Storage  StorageConfig  `mapstructure:"storage"  validate:"required"`
}

// ServerConfig contains all HTTP server related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// AuthConfig contains authentication settings for the administrative
// control surface. Operators authenticate with a JWT; automation uses the
// privileged service credential, stored here as a bcrypt hash.
type AuthConfig struct {
	JWTSecret             string `mapstructure:"jwt_secret"              validate:"required,min=32"`
	TokenLifetimeMinutes  int    `mapstructure:"token_lifetime_minutes"  validate:"required,gt=0"`
	ServiceCredentialHash string `mapstructure:"service_credential_hash" validate:"required"`
}

// AIConfig contains settings for the external transcription/analysis service.
type AIConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name"     validate:"required"`

	// CallTimeoutSeconds bounds a single external call. It is deliberately
	// independent of the processing lock timeout; see PipelineConfig.
	CallTimeoutSeconds int `mapstructure:"call_timeout_seconds" validate:"required,gt=0"`

	// Per-unit rates used by cost summaries.
	TranscriptionCentsPerMinute float64 `mapstructure:"transcription_cents_per_minute" validate:"gte=0"`
	AnalysisCentsPerCall        float64 `mapstructure:"analysis_cents_per_call"        validate:"gte=0"`
}

// PipelineConfig contains settings for the note processing pipeline.
type PipelineConfig struct {
	WorkerCount              int `mapstructure:"worker_count"                validate:"required,gt=0"`
	BatchSize                int `mapstructure:"batch_size"                  validate:"required,gt=0"`
	PollIntervalSeconds      int `mapstructure:"poll_interval_seconds"       validate:"required,gt=0"`
	LockTimeoutMinutes       int `mapstructure:"lock_timeout_minutes"        validate:"required,gt=0"`
	MaxAttempts              int `mapstructure:"max_attempts"                validate:"required,gt=0"`
	ReconcileIntervalMinutes int `mapstructure:"reconcile_interval_minutes"  validate:"required,gt=0"`
}

// BreakerConfig contains circuit breaker settings for the external AI service.
type BreakerConfig struct {
	FailureThreshold   int  `mapstructure:"failure_threshold"    validate:"required,gt=0"`
	WindowSeconds      int  `mapstructure:"window_seconds"       validate:"required,gt=0"`
	CooldownSeconds    int  `mapstructure:"cooldown_seconds"     validate:"required,gt=0"`
	MaxCooldownSeconds int  `mapstructure:"max_cooldown_seconds" validate:"required,gt=0"`
	Shared             bool `mapstructure:"shared"`
}

// QuotaConfig contains per-user resource limits.
type QuotaConfig struct {
	StorageLimitBytes   int64 `mapstructure:"storage_limit_bytes"   validate:"required,gt=0"`
	ProcessingLimit     int   `mapstructure:"processing_limit"      validate:"required,gt=0"`
	ProcessingWindowHrs int   `mapstructure:"processing_window_hrs" validate:"required,gt=0"`
}

// StorageConfig locates the audio object store the pipeline reads from.
type StorageConfig struct {
	AudioRoot string `mapstructure:"audio_root" validate:"required"`
}
