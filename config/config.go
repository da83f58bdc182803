// Package config loads and persists the sift configuration.
//
// Configuration is read with Viper from sift.toml (project directory walk-up,
// then ~/.sift/sift.toml), with SIFT_* environment variables taking precedence.
package config

// Config represents the sift configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Learning LearningConfig `mapstructure:"learning"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the sift HTTP server
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// EngineConfig configures the connection to the analysis engine
type EngineConfig struct {
	// BaseURL is the analysis engine endpoint, e.g. "http://localhost:9205"
	BaseURL string `mapstructure:"base_url"`

	// PollIntervalSeconds is the fixed wait between status polls for one job
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`

	// MaxPolls bounds how many status polls a job may consume before the
	// client gives up with a timeout. 0 means poll forever.
	MaxPolls int `mapstructure:"max_polls"`

	// RequestTimeoutSeconds is the per-request HTTP timeout
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`

	// SubmitRatePerSecond limits how fast new jobs may be submitted to the engine
	SubmitRatePerSecond float64 `mapstructure:"submit_rate_per_second"`
}

// LearningConfig configures active-learning sessions
type LearningConfig struct {
	// PageLimit is the page size used when fetching candidate documents
	PageLimit int `mapstructure:"page_limit"`
}

// Server port constants
const (
	DefaultServerPort  = 9204 // Development port (above privileged range)
	FallbackServerPort = 9214 // Fallback when the default is taken
)
