package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "sift.db")

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	})

	// Engine defaults
	v.SetDefault("engine.base_url", "http://localhost:9205")
	v.SetDefault("engine.poll_interval_seconds", 10) // Fixed poll interval, no jitter
	v.SetDefault("engine.max_polls", 360)            // 1 hour at the default interval
	v.SetDefault("engine.request_timeout_seconds", 30)
	v.SetDefault("engine.submit_rate_per_second", 2.0)

	// Learning defaults
	v.SetDefault("learning.page_limit", 50)
}
