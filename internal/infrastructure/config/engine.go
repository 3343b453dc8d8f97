package config

import "time"

// EngineConfig holds the dispatch loop cadences and fleet seeding sizes
type EngineConfig struct {
	// Seeded fleet size on startup
	NumVehicles int `mapstructure:"num_vehicles" validate:"min=1,max=500"`

	// Seeded load count on startup
	NumLoads int `mapstructure:"num_loads" validate:"min=1,max=1000"`

	// Agent cadences
	MotionPeriod   time.Duration `mapstructure:"motion_period" validate:"required"`
	ObserverPeriod time.Duration `mapstructure:"observer_period" validate:"required"`
	MatcherPeriod  time.Duration `mapstructure:"matcher_period" validate:"required"`
	AdapterPeriod  time.Duration `mapstructure:"adapter_period" validate:"required"`

	// Match quality targets
	MinProfitMargin   float64 `mapstructure:"min_profit_margin" validate:"min=0,max=1"`
	TargetUtilization float64 `mapstructure:"target_utilization" validate:"min=0,max=1"`

	// Detour search radius for en-route follow-up loads
	DetourBudgetKm float64 `mapstructure:"detour_budget_km" validate:"min=0"`

	// Size of the in-memory event ring behind GET /api/events
	EventRingSize int `mapstructure:"event_ring_size" validate:"min=1"`
}
