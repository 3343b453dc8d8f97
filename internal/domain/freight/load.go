// Package freight holds the Load entity and its lifecycle rules.
package freight

import (
	"fmt"
	"time"

	"github.com/andrescamacho/fleetdispatch-go/internal/domain/shared"
)

// Status is the lifecycle state of a load. Transitions are monotone along
// available → matched → in_transit → delivered; cancelled and expired are
// reachable only from available or matched.
type Status string

const (
	StatusAvailable Status = "available"
	StatusMatched   Status = "matched"
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

var validTransitions = map[Status][]Status{
	StatusAvailable: {StatusMatched, StatusCancelled, StatusExpired},
	StatusMatched:   {StatusInTransit, StatusCancelled, StatusExpired},
	StatusInTransit: {StatusDelivered},
}

// ValidStatus reports whether s is a known load status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusAvailable, StatusMatched, StatusInTransit, StatusDelivered, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusExpired
}

// Load is a cargo request to be transported.
type Load struct {
	ID                string          `json:"load_id"`
	Status            Status          `json:"status"`
	Origin            shared.Location `json:"origin"`
	Destination       shared.Location `json:"destination"`
	WeightTons        float64         `json:"weight_tons"`
	DistanceKm        float64         `json:"distance_km"`
	OfferedRatePerKm  float64         `json:"offered_rate_per_km"`
	PickupWindowStart time.Time       `json:"pickup_window_start"`
	PickupWindowEnd   time.Time       `json:"pickup_window_end"`
	DeliveryDeadline  time.Time       `json:"delivery_deadline"`
	AssignedVehicleID string          `json:"assigned_vehicle_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// NewLoad creates a Load with validation. Distance is precomputed by the
// caller (great-circle or from a distance table).
func NewLoad(id string, origin, destination shared.Location, weightTons, distanceKm, ratePerKm float64) (*Load, error) {
	if id == "" {
		return nil, shared.NewValidationError("load_id", "cannot be empty")
	}
	if weightTons <= 0 {
		return nil, shared.NewValidationError("weight_tons", fmt.Sprintf("must be positive, got %v", weightTons))
	}
	if distanceKm <= 0 {
		return nil, shared.NewValidationError("distance_km", fmt.Sprintf("must be positive, got %v", distanceKm))
	}
	if ratePerKm <= 0 {
		return nil, shared.NewValidationError("offered_rate_per_km", fmt.Sprintf("must be positive, got %v", ratePerKm))
	}

	return &Load{
		ID:               id,
		Status:           StatusAvailable,
		Origin:           origin,
		Destination:      destination,
		WeightTons:       weightTons,
		DistanceKm:       distanceKm,
		OfferedRatePerKm: ratePerKm,
	}, nil
}

// Expired reports whether the pickup window has closed.
func (l *Load) Expired(now time.Time) bool {
	return now.After(l.PickupWindowEnd)
}

// TotalOfferedRevenue is rate × distance for the loaded leg.
func (l *Load) TotalOfferedRevenue() float64 {
	return l.OfferedRatePerKm * l.DistanceKm
}

// Transition moves the load to next, enforcing the monotone order. Moving
// into matched or in_transit requires a vehicle assignment via Assign.
func (l *Load) Transition(next Status) error {
	for _, allowed := range validTransitions[l.Status] {
		if allowed == next {
			l.Status = next
			// assigned_vehicle_id is set iff status is matched or in_transit
			if next != StatusMatched && next != StatusInTransit {
				l.AssignedVehicleID = ""
			}
			return nil
		}
	}
	return shared.NewConflict(fmt.Sprintf("load %s cannot move %s → %s", l.ID, l.Status, next))
}

// Assign matches the load to a vehicle. Legal only while available.
func (l *Load) Assign(vehicleID string) error {
	if l.Status != StatusAvailable {
		return shared.NewConflict(fmt.Sprintf("load %s is %s, not available", l.ID, l.Status))
	}
	if vehicleID == "" {
		return shared.NewValidationError("vehicle_id", "cannot be empty")
	}
	l.Status = StatusMatched
	l.AssignedVehicleID = vehicleID
	return nil
}

// Clone returns a copy safe to hand to snapshot readers.
func (l *Load) Clone() *Load {
	cp := *l
	return &cp
}
