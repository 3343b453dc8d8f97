package config

import "time"

// SetDefaults sets default values for all configuration fields
func SetDefaults(cfg *Config) {
	// Database defaults
	if cfg.Database.Type == "" {
		cfg.Database.Type = "sqlite"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "fleetdispatch"
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = "fleetdispatch"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "fleetdispatch.db"
	}
	if cfg.Database.Pool.MaxOpen == 0 {
		cfg.Database.Pool.MaxOpen = 25
	}
	if cfg.Database.Pool.MaxIdle == 0 {
		cfg.Database.Pool.MaxIdle = 5
	}
	if cfg.Database.Pool.MaxLifetime == 0 {
		cfg.Database.Pool.MaxLifetime = 5 * time.Minute
	}

	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}

	// Routing defaults
	if cfg.Routing.BaseURL == "" {
		cfg.Routing.BaseURL = "https://router.project-osrm.org"
	}
	if cfg.Routing.MaxRetries == 0 {
		cfg.Routing.MaxRetries = 1
	}
	if cfg.Routing.BackoffBase == 0 {
		cfg.Routing.BackoffBase = time.Second
	}
	if cfg.Routing.Cache.Size == 0 {
		cfg.Routing.Cache.Size = 1024
	}
	if cfg.Routing.Cache.TTL == 0 {
		cfg.Routing.Cache.TTL = time.Hour
	}

	// Advisor defaults (API key stays empty unless provisioned)
	if cfg.Advisor.BaseURL == "" {
		cfg.Advisor.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.Advisor.Model == "" {
		cfg.Advisor.Model = "llama-3.3-70b-versatile"
	}

	// Engine defaults
	if cfg.Engine.NumVehicles == 0 {
		cfg.Engine.NumVehicles = 10
	}
	if cfg.Engine.NumLoads == 0 {
		cfg.Engine.NumLoads = 15
	}
	if cfg.Engine.MotionPeriod == 0 {
		cfg.Engine.MotionPeriod = 3 * time.Second
	}
	if cfg.Engine.ObserverPeriod == 0 {
		cfg.Engine.ObserverPeriod = 10 * time.Second
	}
	if cfg.Engine.MatcherPeriod == 0 {
		cfg.Engine.MatcherPeriod = 30 * time.Second
	}
	if cfg.Engine.AdapterPeriod == 0 {
		cfg.Engine.AdapterPeriod = 30 * time.Second
	}
	if cfg.Engine.MinProfitMargin == 0 {
		cfg.Engine.MinProfitMargin = 0.12
	}
	if cfg.Engine.TargetUtilization == 0 {
		cfg.Engine.TargetUtilization = 0.85
	}
	if cfg.Engine.DetourBudgetKm == 0 {
		cfg.Engine.DetourBudgetKm = 100
	}
	if cfg.Engine.EventRingSize == 0 {
		cfg.Engine.EventRingSize = 500
	}

	// Daemon defaults
	if cfg.Daemon.PIDFile == "" {
		cfg.Daemon.PIDFile = "/tmp/fleet-daemon.pid"
	}
	if cfg.Daemon.ShutdownTimeout == 0 {
		cfg.Daemon.ShutdownTimeout = 30 * time.Second
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}
