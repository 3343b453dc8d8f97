// Package metrics computes the fleet KPIs. Agents do not compute metrics
// themselves; they call these functions and get back clean numbers. Pure
// functions over a snapshot.
package metrics

import (
	"time"

	"github.com/andrescamacho/fleetdispatch-go/internal/domain/fleet"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/freight"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/trip"
	"github.com/andrescamacho/fleetdispatch-go/internal/state"
)

// emptyReturnLegShare is the pickup-leg share of a route above which a trip
// counts as an empty return.
const emptyReturnLegShare = 0.20

// KPI is the top-level metrics object served on the metrics endpoint.
type KPI struct {
	TotalVehicles     int     `json:"total_vehicles"`
	AvailableVehicles int     `json:"available_vehicles"`
	IdleVehicles      int     `json:"idle_vehicles"`
	EnRouteVehicles   int     `json:"en_route_vehicles"`
	TotalLoads        int     `json:"total_loads"`
	AvailableLoads    int     `json:"available_loads"`
	MatchedLoads      int     `json:"matched_loads"`
	InTransitLoads    int     `json:"in_transit_loads"`
	AvgUtilization    float64 `json:"avg_utilization"`
	TotalKmToday      float64 `json:"total_km_today"`

	Dashboard Dashboard `json:"dashboard"`
}

// Dashboard is the extended health readout.
type Dashboard struct {
	SnapshotAt           time.Time `json:"snapshot_at"`
	ActiveTrips          int       `json:"active_trips"`
	FleetUtilizationRate float64   `json:"fleet_utilization_rate"`
	EmptyReturnRate      float64   `json:"empty_return_rate"`
	RevenuePerKm         float64   `json:"revenue_per_km"`
	TotalIdleMinutes     float64   `json:"total_idle_minutes"`
	AvgProfitMargin      float64   `json:"avg_profit_margin"`
}

// Compute derives the full KPI object from a snapshot.
func Compute(snapshot *state.Snapshot, now time.Time) KPI {
	kpi := KPI{
		TotalVehicles: len(snapshot.Vehicles),
		TotalLoads:    len(snapshot.Loads),
	}

	for _, v := range snapshot.Vehicles {
		if v.Available() {
			kpi.AvailableVehicles++
		}
		switch v.Status {
		case fleet.StatusIdle:
			kpi.IdleVehicles++
		case fleet.StatusEnRouteEmpty, fleet.StatusEnRouteLoaded:
			kpi.EnRouteVehicles++
		}
		kpi.TotalKmToday += v.TotalKmToday
	}

	for _, l := range snapshot.Loads {
		switch l.Status {
		case freight.StatusAvailable:
			if !l.Expired(now) {
				kpi.AvailableLoads++
			}
		case freight.StatusMatched:
			kpi.MatchedLoads++
		case freight.StatusInTransit:
			kpi.InTransitLoads++
		}
	}

	trips := snapshot.ActiveTrips()
	utilization := FleetUtilizationRate(snapshot)
	kpi.AvgUtilization = utilization * 100

	kpi.Dashboard = Dashboard{
		SnapshotAt:           snapshot.SnapshotAt,
		ActiveTrips:          len(trips),
		FleetUtilizationRate: utilization,
		EmptyReturnRate:      EmptyReturnRate(trips),
		RevenuePerKm:         RevenuePerKm(trips),
		TotalIdleMinutes:     TotalIdleMinutes(snapshot),
		AvgProfitMargin:      AvgProfitMargin(trips),
	}
	return kpi
}

// FleetUtilizationRate averages loaded/total km over the vehicles that have
// moved today. Vehicles that have not moved are excluded.
func FleetUtilizationRate(snapshot *state.Snapshot) float64 {
	sum, n := 0.0, 0
	for _, v := range snapshot.Vehicles {
		if v.TotalKmToday > 0 {
			sum += v.UtilizationRate()
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// EmptyReturnRate is the fraction of trips whose pickup leg exceeds the
// empty-return share of the whole route.
func EmptyReturnRate(trips []*trip.Trip) float64 {
	if len(trips) == 0 {
		return 0
	}
	empty := 0
	for _, t := range trips {
		total := t.PickupLegKm + t.LoadedLegKm
		if total > 0 && t.PickupLegKm/total > emptyReturnLegShare {
			empty++
		}
	}
	return float64(empty) / float64(len(trips))
}

// RevenuePerKm is total estimated revenue over total route km.
func RevenuePerKm(trips []*trip.Trip) float64 {
	totalKm, totalRevenue := 0.0, 0.0
	for _, t := range trips {
		totalKm += t.RouteTotalKm
		totalRevenue += t.EstimatedRevenue
	}
	if totalKm == 0 {
		return 0
	}
	return totalRevenue / totalKm
}

// TotalIdleMinutes sums idle minutes across the fleet today.
func TotalIdleMinutes(snapshot *state.Snapshot) float64 {
	sum := 0.0
	for _, v := range snapshot.Vehicles {
		sum += v.IdleMinutesToday
	}
	return sum
}

// AvgProfitMargin averages per-trip profit margin.
func AvgProfitMargin(trips []*trip.Trip) float64 {
	if len(trips) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range trips {
		sum += t.ProfitMargin()
	}
	return sum / float64(len(trips))
}

// LoadAcceptanceRate is matched loads over loads seen.
func LoadAcceptanceRate(seen, matched int) float64 {
	if seen == 0 {
		return 0
	}
	return float64(matched) / float64(seen)
}

// RouteDeviationCost is the extra cost of a reroute over the original plan.
func RouteDeviationCost(originalKm, actualKm, costPerKm float64) float64 {
	if actualKm <= originalKm {
		return 0
	}
	return (actualKm - originalKm) * costPerKm
}
