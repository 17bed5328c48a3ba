package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"     validate:"required"`
	Supervisor SupervisorConfig `mapstructure:"supervisor" validate:"required"`
	Offload    OffloadConfig    `mapstructure:"offload"`
	Batch      BatchConfig      `mapstructure:"batch"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// SupervisorConfig contains the supervisor's capacity and timeout settings.
type SupervisorConfig struct {
	// MaxOutstanding is the ceiling on concurrently registered tasks.
	MaxOutstanding int `mapstructure:"max_outstanding" validate:"required,gt=0"`

	// DefaultTimeoutSeconds is applied to units submitted without a timeout.
	DefaultTimeoutSeconds int `mapstructure:"default_timeout_seconds" validate:"required,gt=0"`

	// GlobalPoolSize caps concurrently running submitted units.
	// Zero means derive from the CPU count.
	GlobalPoolSize int `mapstructure:"global_pool_size" validate:"gte=0"`
}

// OffloadConfig contains the blocking-work executor's pool sizes.
// Zero values mean derive from the CPU count.
type OffloadConfig struct {
	ThreadPoolSize  int `mapstructure:"thread_pool_size"  validate:"gte=0"`
	ProcessPoolSize int `mapstructure:"process_pool_size" validate:"gte=0"`
}

// BatchConfig contains defaults for batch gather calls.
type BatchConfig struct {
	// StartJitterMaxMs is the default upper bound of the random pre-start
	// delay applied to batch elements. Zero disables jitter.
	StartJitterMaxMs int `mapstructure:"start_jitter_max_ms" validate:"gte=0"`

	// RateLimitPerSecond paces batch elements against downstream resources.
	// Zero disables pacing.
	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second" validate:"gte=0"`
}
