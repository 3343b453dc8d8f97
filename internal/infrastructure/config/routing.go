package config

import "time"

// RoutingConfig holds OSRM route service configuration
type RoutingConfig struct {
	// Base URL of the OSRM server
	BaseURL string `mapstructure:"base_url" validate:"required,url"`

	// Maximum retry attempts for a failed route request
	MaxRetries int `mapstructure:"max_retries" validate:"min=0"`

	// Base duration for retry backoff
	BackoffBase time.Duration `mapstructure:"backoff_base"`

	// Route cache settings
	Cache RouteCacheConfig `mapstructure:"cache"`
}

// RouteCacheConfig holds the planner's route cache configuration
type RouteCacheConfig struct {
	// Maximum cached routes
	Size int `mapstructure:"size" validate:"min=1"`

	// Entry lifetime before re-fetch
	TTL time.Duration `mapstructure:"ttl"`
}
