package config

// AdvisorConfig holds the language-model advisory channel configuration.
// The engine runs fine without it: an empty API key leaves the agents on
// their rule-based fallbacks.
type AdvisorConfig struct {
	// Base URL of an OpenAI-compatible chat completions endpoint
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`

	// API key; empty disables the advisor
	APIKey string `mapstructure:"api_key"`

	// Model identifier sent with each completion request
	Model string `mapstructure:"model"`
}
