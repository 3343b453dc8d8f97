// Package trip holds the Trip entity: the link between a vehicle and a load
// for one journey, with a strict phase order and monotone progress.
package trip

import (
	"fmt"
	"time"

	"github.com/andrescamacho/fleetdispatch-go/internal/domain/shared"
	"github.com/andrescamacho/fleetdispatch-go/pkg/geo"
)

// Phase is a trip's position in its lifecycle. Phases only ever advance
// through the order below; cancelled is reachable from any non-terminal
// phase.
type Phase string

const (
	PhasePlanning        Phase = "planning"
	PhaseEnRouteToPickup Phase = "en_route_to_pickup"
	PhaseLoading         Phase = "loading"
	PhaseInTransit       Phase = "in_transit"
	PhaseUnloading       Phase = "unloading"
	PhaseCompleted       Phase = "completed"
	PhaseCancelled       Phase = "cancelled"
)

var phaseOrder = map[Phase]int{
	PhasePlanning:        0,
	PhaseEnRouteToPickup: 1,
	PhaseLoading:         2,
	PhaseInTransit:       3,
	PhaseUnloading:       4,
	PhaseCompleted:       5,
}

// Terminal reports whether the phase ends the trip.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseCancelled
}

// Trip joins a vehicle to a load for one journey.
//
// Invariants:
//   - ProgressPercent is in [0, 100] and monotone non-decreasing
//   - Phase advances only through the declared order
//   - completing sets CompletedAt
type Trip struct {
	ID               string       `json:"trip_id"`
	VehicleID        string       `json:"vehicle_id"`
	LoadID           string       `json:"load_id"`
	Phase            Phase        `json:"phase"`
	Route            geo.Polyline `json:"route,omitempty"`
	RouteFallback    bool         `json:"route_fallback,omitempty"`
	RouteTotalKm     float64      `json:"route_total_km"`
	ProgressPercent  float64      `json:"progress_percent"`
	PickupLegKm      float64      `json:"pickup_leg_km"`
	LoadedLegKm      float64      `json:"loaded_leg_km"`
	EstimatedRevenue float64      `json:"estimated_revenue"`
	EstimatedCost    float64      `json:"estimated_cost"`
	EstimatedProfit  float64      `json:"estimated_profit"`
	RouteFromPercent float64      `json:"route_from_percent,omitempty"`
	DelayMinutes     float64      `json:"delay_minutes"`
	DisruptionSeq    uint64       `json:"disruption_seq,omitempty"`
	FollowUpLoadID   string       `json:"followup_load_id,omitempty"`
	StartedAt        time.Time    `json:"started_at"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty"`
}

// New creates a Trip in the planning phase with zero progress.
func New(id, vehicleID, loadID string, startedAt time.Time) (*Trip, error) {
	if id == "" {
		return nil, shared.NewValidationError("trip_id", "cannot be empty")
	}
	if vehicleID == "" {
		return nil, shared.NewValidationError("vehicle_id", "cannot be empty")
	}
	if loadID == "" {
		return nil, shared.NewValidationError("load_id", "cannot be empty")
	}

	return &Trip{
		ID:        id,
		VehicleID: vehicleID,
		LoadID:    loadID,
		Phase:     PhasePlanning,
		StartedAt: startedAt,
	}, nil
}

// Active reports whether the trip still occupies its vehicle and load.
func (t *Trip) Active() bool {
	return !t.Phase.Terminal()
}

// ProfitMargin is estimated profit over revenue, or 0 with no revenue.
func (t *Trip) ProfitMargin() float64 {
	if t.EstimatedRevenue == 0 {
		return 0
	}
	return t.EstimatedProfit / t.EstimatedRevenue
}

// Advance moves the trip to next, enforcing forward-only phase order.
func (t *Trip) Advance(next Phase, now time.Time) error {
	if t.Phase.Terminal() {
		return shared.NewConflict(fmt.Sprintf("trip %s is %s, cannot advance", t.ID, t.Phase))
	}
	if next == PhaseCancelled {
		t.Phase = PhaseCancelled
		completed := now
		t.CompletedAt = &completed
		return nil
	}
	cur, ok := phaseOrder[t.Phase]
	nxt, nok := phaseOrder[next]
	if !ok || !nok || nxt <= cur {
		return shared.NewConflict(fmt.Sprintf("trip %s cannot move %s → %s", t.ID, t.Phase, next))
	}
	t.Phase = next
	if next == PhaseCompleted {
		completed := now
		t.CompletedAt = &completed
	}
	return nil
}

// SetProgress raises progress to percent, rejecting regressions and values
// outside [0, 100].
func (t *Trip) SetProgress(percent float64) error {
	if percent < 0 || percent > 100 {
		return shared.NewInvariant(fmt.Sprintf("trip %s progress %v out of range", t.ID, percent))
	}
	if percent < t.ProgressPercent {
		return shared.NewInvariant(fmt.Sprintf(
			"trip %s progress would regress %.2f → %.2f", t.ID, t.ProgressPercent, percent))
	}
	t.ProgressPercent = percent
	return nil
}

// SetRoute installs the cached polyline for the whole journey. Called while
// planning.
func (t *Trip) SetRoute(route geo.Polyline, totalKm float64, fallback bool) {
	t.Route = route
	t.RouteTotalKm = totalKm
	t.RouteFallback = fallback
	t.RouteFromPercent = 0
}

// SetRemainingRoute installs a polyline covering only the journey from the
// current progress point onward, after a reroute. Total distance is scaled
// back up so progress keeps its meaning over the whole journey.
func (t *Trip) SetRemainingRoute(route geo.Polyline, remainingKm float64, fallback bool) {
	t.Route = route
	t.RouteFallback = fallback
	t.RouteFromPercent = t.ProgressPercent
	if t.ProgressPercent < 100 {
		t.RouteTotalKm = remainingKm / (1 - t.ProgressPercent/100)
	}
}

// RoutePosition samples the cached polyline at an overall progress percent,
// accounting for polylines that start mid-journey after a reroute.
func (t *Trip) RoutePosition(progressPercent float64) (float64, float64) {
	span := 100 - t.RouteFromPercent
	if span <= 0 {
		return t.Route.At(100)
	}
	rel := (progressPercent - t.RouteFromPercent) / span * 100
	return t.Route.At(rel)
}

// InvalidateRoute drops the cached polyline so the motion engine re-fetches
// on its next tick.
func (t *Trip) InvalidateRoute() {
	t.Route = nil
	t.RouteFallback = false
}

// Clone returns a deep copy safe to hand to snapshot readers.
func (t *Trip) Clone() *Trip {
	cp := *t
	if t.Route != nil {
		cp.Route = make(geo.Polyline, len(t.Route))
		copy(cp.Route, t.Route)
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}
