package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the main configuration struct combining all sub-configs
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Routing  RoutingConfig  `mapstructure:"routing"`
	Advisor  AdvisorConfig  `mapstructure:"advisor"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Daemon   DaemonConfig   `mapstructure:"daemon"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// configKeys lists every key that may arrive via FD_* environment
// variables (dots become underscores: server.port -> FD_SERVER_PORT).
var configKeys = []string{
	"database.type", "database.url", "database.host", "database.port",
	"database.user", "database.password", "database.name", "database.sslmode",
	"database.path", "database.pool.max_open", "database.pool.max_idle",
	"database.pool.max_lifetime",
	"server.host", "server.port", "server.read_timeout", "server.write_timeout",
	"routing.base_url", "routing.max_retries", "routing.backoff_base",
	"routing.cache.size", "routing.cache.ttl",
	"advisor.base_url", "advisor.api_key", "advisor.model",
	"engine.num_vehicles", "engine.num_loads",
	"engine.motion_period", "engine.observer_period",
	"engine.matcher_period", "engine.adapter_period",
	"engine.min_profit_margin", "engine.target_utilization",
	"engine.detour_budget_km", "engine.event_ring_size",
	"daemon.pid_file", "daemon.shutdown_timeout",
	"logging.level", "logging.format", "logging.output", "logging.file_path",
	"logging.include_caller", "logging.include_stacktrace",
}

// LoadConfig loads configuration from multiple sources with priority:
// 1. Environment variables (highest priority)
// 2. Config file (config.yaml)
// 3. Defaults (lowest priority)
func LoadConfig(configPath string) (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	v := viper.New()

	// Set config file details
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/fleetdispatch")
	}

	// Enable environment variable reading
	v.SetEnvPrefix("FD") // FD_ prefix for FleetDispatch
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Viper only unmarshals env values for keys it already knows about, so
	// every configurable key is bound up front.
	for _, key := range configKeys {
		_ = v.BindEnv(key)
	}

	// Read config file (optional - don't error if missing)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - we'll use env vars and defaults
	}

	// Special handling for DATABASE_URL environment variable
	// This allows users to set the full connection string without FD_ prefix
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		v.Set("database.url", dbURL)
	}

	// The advisor key is usually provisioned as a bare provider variable
	if apiKey := os.Getenv("GROQ_API_KEY"); apiKey != "" {
		v.Set("advisor.api_key", apiKey)
	}

	// Create config struct and unmarshal
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	SetDefaults(&cfg)

	// Validate configuration
	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadConfigOrDefault loads configuration or returns a default config on error
func LoadConfigOrDefault(configPath string) *Config {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		// Return default configuration
		defaultCfg := &Config{}
		SetDefaults(defaultCfg)
		return defaultCfg
	}
	return cfg
}

// MustLoadConfig loads configuration and panics on error (for use in main.go)
func MustLoadConfig(configPath string) *Config {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
