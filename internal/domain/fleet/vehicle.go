// Package fleet holds the Vehicle entity and its status rules.
package fleet

import (
	"fmt"
	"time"

	"github.com/andrescamacho/fleetdispatch-go/internal/domain/shared"
)

// Status is the operational state of a vehicle.
type Status string

const (
	StatusIdle          Status = "idle"
	StatusEnRouteEmpty  Status = "en_route_empty"
	StatusEnRouteLoaded Status = "en_route_loaded"
	StatusAtPickup      Status = "at_pickup"
	StatusAtDelivery    Status = "at_delivery"
	StatusMaintenance   Status = "maintenance"
	StatusOffline       Status = "offline"
)

var validStatuses = map[Status]bool{
	StatusIdle:          true,
	StatusEnRouteEmpty:  true,
	StatusEnRouteLoaded: true,
	StatusAtPickup:      true,
	StatusAtDelivery:    true,
	StatusMaintenance:   true,
	StatusOffline:       true,
}

// ValidStatus reports whether s is a known vehicle status.
func ValidStatus(s Status) bool {
	return validStatuses[s]
}

// Moving reports whether the status describes a vehicle in motion.
func (s Status) Moving() bool {
	return s == StatusEnRouteEmpty || s == StatusEnRouteLoaded
}

// Vehicle is a truck in the fleet.
//
// Invariants:
//   - CurrentLoadTons never exceeds CapacityTons
//   - LoadedKmToday never exceeds TotalKmToday
//   - FuelLevelPercent stays in [0, 100]
//   - if Status is idle, no active trip references the vehicle; if
//     en_route_*, exactly one does (enforced by the store)
type Vehicle struct {
	ID                       string           `json:"vehicle_id"`
	DriverID                 string           `json:"driver_id"`
	Status                   Status           `json:"status"`
	CurrentLocation          shared.Location  `json:"current_location"`
	CapacityTons             float64          `json:"capacity_tons"`
	CurrentLoadTons          float64          `json:"current_load_tons"`
	FuelLevelPercent         float64          `json:"fuel_level_percent"`
	TotalKmToday             float64          `json:"total_km_today"`
	LoadedKmToday            float64          `json:"loaded_km_today"`
	IdleMinutesToday         float64          `json:"idle_minutes_today"`
	MaxDrivingHoursRemaining float64          `json:"max_driving_hours_remaining"`
	HomeDepot                *shared.Location `json:"home_depot,omitempty"`
	LastUpdatedAt            time.Time        `json:"last_updated_at"`
}

// NewVehicle creates a Vehicle with validation. New vehicles start idle,
// empty and fully fueled unless the caller adjusts them afterwards.
func NewVehicle(id, driverID string, location shared.Location, capacityTons float64) (*Vehicle, error) {
	if id == "" {
		return nil, shared.NewValidationError("vehicle_id", "cannot be empty")
	}
	if driverID == "" {
		return nil, shared.NewValidationError("driver_id", "cannot be empty")
	}
	if capacityTons <= 0 {
		return nil, shared.NewValidationError("capacity_tons", fmt.Sprintf("must be positive, got %v", capacityTons))
	}

	return &Vehicle{
		ID:                       id,
		DriverID:                 driverID,
		Status:                   StatusIdle,
		CurrentLocation:          location,
		CapacityTons:             capacityTons,
		FuelLevelPercent:         100,
		MaxDrivingHoursRemaining: 10,
	}, nil
}

// Available reports whether the vehicle can accept a new load right now:
// idle, carrying nothing, with fuel and driving hours to spare.
func (v *Vehicle) Available() bool {
	return v.Status == StatusIdle &&
		v.CurrentLoadTons == 0 &&
		v.MaxDrivingHoursRemaining > 1.0 &&
		v.FuelLevelPercent > 15.0
}

// UtilizationRate returns loaded_km / total_km for today, or 0 if the
// vehicle has not moved.
func (v *Vehicle) UtilizationRate() float64 {
	if v.TotalKmToday == 0 {
		return 0
	}
	return v.LoadedKmToday / v.TotalKmToday
}

// LoadCargo puts weight on the vehicle, rejecting overweight cargo.
func (v *Vehicle) LoadCargo(tons float64) error {
	if tons < 0 {
		return shared.NewValidationError("tons", "cannot be negative")
	}
	if v.CurrentLoadTons+tons > v.CapacityTons {
		return shared.NewConflict(fmt.Sprintf(
			"vehicle %s cannot carry %.1ft: capacity %.1ft, current %.1ft",
			v.ID, tons, v.CapacityTons, v.CurrentLoadTons))
	}
	v.CurrentLoadTons += tons
	return nil
}

// UnloadCargo removes all cargo.
func (v *Vehicle) UnloadCargo() {
	v.CurrentLoadTons = 0
}

// ConsumeFuel subtracts fuel, clamping at 0.
func (v *Vehicle) ConsumeFuel(percent float64) {
	v.FuelLevelPercent -= percent
	if v.FuelLevelPercent < 0 {
		v.FuelLevelPercent = 0
	}
}

// RecordDriving accumulates odometers and decrements driving hours.
// Loaded kilometers are only counted when the vehicle carries cargo.
func (v *Vehicle) RecordDriving(km, hours float64, loaded bool) {
	v.TotalKmToday += km
	if loaded {
		v.LoadedKmToday += km
	}
	v.MaxDrivingHoursRemaining -= hours
	if v.MaxDrivingHoursRemaining < 0 {
		v.MaxDrivingHoursRemaining = 0
	}
}

// Clone returns a deep copy safe to hand to snapshot readers.
func (v *Vehicle) Clone() *Vehicle {
	cp := *v
	if v.HomeDepot != nil {
		depot := *v.HomeDepot
		cp.HomeDepot = &depot
	}
	return &cp
}
