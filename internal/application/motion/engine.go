// Package motion advances active trips along their cached road polylines:
// per tick it moves each vehicle, burns fuel and driver hours, crosses
// phase boundaries, and completes or chains trips.
package motion

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/andrescamacho/fleetdispatch-go/internal/adapters/routing"
	"github.com/andrescamacho/fleetdispatch-go/internal/application/matcher"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/event"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/fleet"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/freight"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/shared"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/trip"
	"github.com/andrescamacho/fleetdispatch-go/internal/state"
	"github.com/andrescamacho/fleetdispatch-go/pkg/geo"
)

const (
	// DefaultSpeedKmh is the simulated cruising speed.
	DefaultSpeedKmh = 60.0

	// Fuel burn in percent per 10 km.
	DefaultFuelLoadedPer10Km = 0.4
	DefaultFuelEmptyPer10Km  = 0.3

	// DefaultPositionEventEvery decimates position events to every Nth tick.
	DefaultPositionEventEvery = 5

	// restedDrivingHours is restored when a driver runs out of hours; the
	// rest itself is instantaneous at this layer, the event surfaces it.
	restedDrivingHours = 10.0
)

// Engine advances trips. Ticks are serialized internally, so the dispatch
// loop and the simulate-movement endpoint may both trigger one.
type Engine struct {
	store   *state.Store
	planner routing.Planner
	clock   shared.Clock
	logger  *zap.Logger

	speedKmh          float64
	fuelLoadedPer10Km float64
	fuelEmptyPer10Km  float64
	positionEvery     uint64

	mu    sync.Mutex
	ticks uint64
}

// New creates a motion engine with default tuning.
func New(store *state.Store, planner routing.Planner, clock shared.Clock, logger *zap.Logger) *Engine {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:             store,
		planner:           planner,
		clock:             clock,
		logger:            logger,
		speedKmh:          DefaultSpeedKmh,
		fuelLoadedPer10Km: DefaultFuelLoadedPer10Km,
		fuelEmptyPer10Km:  DefaultFuelEmptyPer10Km,
		positionEvery:     DefaultPositionEventEvery,
	}
}

// SetTuning overrides the motion parameters. Zero values keep defaults.
func (e *Engine) SetTuning(speedKmh, fuelLoadedPer10Km, fuelEmptyPer10Km float64, positionEvery int) {
	if speedKmh > 0 {
		e.speedKmh = speedKmh
	}
	if fuelLoadedPer10Km > 0 {
		e.fuelLoadedPer10Km = fuelLoadedPer10Km
	}
	if fuelEmptyPer10Km > 0 {
		e.fuelEmptyPer10Km = fuelEmptyPer10Km
	}
	if positionEvery > 0 {
		e.positionEvery = uint64(positionEvery)
	}
}

// Tick advances every active trip by dt, in trip-id order. A zero dt is a
// no-op. Returns the events emitted this tick.
func (e *Engine) Tick(ctx context.Context, dt time.Duration) []event.Event {
	if dt <= 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ticks++
	now := e.clock.Now()
	snapshot := e.store.Snapshot()

	var events []event.Event
	for _, t := range snapshot.ActiveTrips() {
		events = append(events, e.stepTrip(ctx, snapshot, t, dt, now)...)
	}
	e.store.ApplyEvents(events)
	return events
}

func (e *Engine) stepTrip(ctx context.Context, snapshot *state.Snapshot, t *trip.Trip, dt time.Duration, now time.Time) []event.Event {
	switch t.Phase {
	case trip.PhasePlanning:
		return e.stepPlanning(ctx, snapshot, t, now)
	case trip.PhaseEnRouteToPickup:
		return e.stepMoving(ctx, snapshot, t, dt, now, false)
	case trip.PhaseLoading:
		return e.finishLoading(snapshot, t, now)
	case trip.PhaseInTransit:
		return e.stepMoving(ctx, snapshot, t, dt, now, true)
	case trip.PhaseUnloading:
		return e.finishUnloading(snapshot, t, now)
	}
	return nil
}

// stepPlanning fetches a route if the trip lacks one, then releases the
// trip onto the road. A trip with no polyline holds in planning for the
// tick that obtains it.
func (e *Engine) stepPlanning(ctx context.Context, snapshot *state.Snapshot, t *trip.Trip, now time.Time) []event.Event {
	if len(t.Route) == 0 {
		e.planRoute(ctx, snapshot, t)
		return nil
	}

	next := trip.PhaseEnRouteToPickup
	vehicleStatus := fleet.StatusEnRouteEmpty
	if t.PickupLegKm <= 0 {
		next = trip.PhaseLoading
		vehicleStatus = fleet.StatusAtPickup
	}
	if err := e.store.UpdateTrip(t.ID, func(cur *trip.Trip) error {
		return cur.Advance(next, now)
	}); err != nil {
		e.logger.Warn("trip dispatch failed", zap.String("trip_id", t.ID), zap.Error(err))
		return nil
	}
	e.setVehicleStatus(t.VehicleID, vehicleStatus, now)
	return e.positionEvent(t, now, true)
}

// planRoute builds the full pickup+loaded polyline from the vehicle's
// position through the load's origin to its destination.
func (e *Engine) planRoute(ctx context.Context, snapshot *state.Snapshot, t *trip.Trip) {
	v := snapshot.Vehicles[t.VehicleID]
	l := snapshot.Loads[t.LoadID]
	if v == nil || l == nil {
		return
	}

	loaded := e.planner.PlanRoute(ctx, l.Origin, l.Destination)
	route, totalKm, fallback := loaded.Points, loaded.DistanceKm, loaded.Fallback
	if t.PickupLegKm > 0 {
		pickup := e.planner.PlanRoute(ctx, v.CurrentLocation, l.Origin)
		joined := make(geo.Polyline, 0, len(pickup.Points)+len(loaded.Points))
		joined = append(joined, pickup.Points...)
		joined = append(joined, loaded.Points...)
		route, totalKm, fallback = joined, pickup.DistanceKm+loaded.DistanceKm, pickup.Fallback || loaded.Fallback
	}

	err := e.store.UpdateTrip(t.ID, func(cur *trip.Trip) error {
		cur.SetRoute(route, totalKm, fallback)
		return nil
	})
	if err != nil {
		e.logger.Warn("route install failed", zap.String("trip_id", t.ID), zap.Error(err))
	}
}

// stepMoving advances progress along the polyline, moves the vehicle, and
// crosses the pickup or delivery boundary when reached. A trip whose route
// was invalidated holds for the tick that re-fetches it.
func (e *Engine) stepMoving(ctx context.Context, snapshot *state.Snapshot, t *trip.Trip, dt time.Duration, now time.Time, loaded bool) []event.Event {
	v := snapshot.Vehicles[t.VehicleID]
	if v == nil {
		return nil
	}
	if len(t.Route) == 0 {
		e.replanRemaining(ctx, snapshot, t, v, loaded)
		return nil
	}

	if v.MaxDrivingHoursRemaining <= 0 {
		err := e.store.UpdateVehicle(t.VehicleID, func(cur *fleet.Vehicle) error {
			cur.MaxDrivingHoursRemaining = restedDrivingHours
			cur.LastUpdatedAt = now
			return nil
		})
		if err != nil {
			e.logger.Warn("driver rest failed", zap.String("vehicle_id", t.VehicleID), zap.Error(err))
		}
		return []event.Event{event.New(now, event.DriverRestRequired{VehicleID: t.VehicleID})}
	}

	dtHours := dt.Hours()
	newPercent := 100.0
	deltaKm := 0.0
	if t.RouteTotalKm > 0 {
		p := t.ProgressPercent / 100
		deltaFrac := e.speedKmh * dtHours / t.RouteTotalKm
		if remaining := 1 - p; deltaFrac > remaining {
			deltaFrac = remaining
		}
		newPercent = (p + deltaFrac) * 100
		deltaKm = deltaFrac * t.RouteTotalKm
	}

	if err := e.store.UpdateTrip(t.ID, func(cur *trip.Trip) error {
		return cur.SetProgress(newPercent)
	}); err != nil {
		e.logger.Warn("progress update failed", zap.String("trip_id", t.ID), zap.Error(err))
		return nil
	}

	lat, lng := t.RoutePosition(newPercent)
	fuelRate := e.fuelEmptyPer10Km
	if loaded {
		fuelRate = e.fuelLoadedPer10Km
	}
	err := e.store.UpdateVehicle(t.VehicleID, func(cur *fleet.Vehicle) error {
		loc, err := shared.NewLocation(lat, lng, cur.CurrentLocation.Name)
		if err != nil {
			return err
		}
		cur.CurrentLocation = loc
		cur.RecordDriving(deltaKm, dtHours, loaded)
		cur.ConsumeFuel(deltaKm * fuelRate / 10)
		cur.LastUpdatedAt = now
		return nil
	})
	if err != nil {
		e.logger.Warn("vehicle move failed", zap.String("vehicle_id", t.VehicleID), zap.Error(err))
		return nil
	}

	var events []event.Event
	boundary := false

	if !loaded && newPercent >= e.pickupBoundaryPercent(t) {
		boundary = true
		if err := e.store.UpdateTrip(t.ID, func(cur *trip.Trip) error {
			return cur.Advance(trip.PhaseLoading, now)
		}); err == nil {
			e.setVehicleStatus(t.VehicleID, fleet.StatusAtPickup, now)
		}
	}
	if loaded && newPercent >= 100 {
		boundary = true
		if err := e.store.UpdateTrip(t.ID, func(cur *trip.Trip) error {
			return cur.Advance(trip.PhaseUnloading, now)
		}); err == nil {
			e.setVehicleStatus(t.VehicleID, fleet.StatusAtDelivery, now)
		}
	}

	if boundary || e.ticks%e.positionEvery == 0 {
		events = append(events, event.New(now, event.VehiclePositionUpdate{
			VehicleID: t.VehicleID,
			Lat:       lat,
			Lng:       lng,
		}))
	}
	return events
}

// replanRemaining rebuilds the polyline for the rest of the journey after a
// reroute, starting from the vehicle's current position.
func (e *Engine) replanRemaining(ctx context.Context, snapshot *state.Snapshot, t *trip.Trip, v *fleet.Vehicle, loaded bool) {
	l := snapshot.Loads[t.LoadID]
	if l == nil {
		return
	}

	var route geo.Polyline
	var remainingKm float64
	var fallback bool
	if loaded {
		r := e.planner.PlanRoute(ctx, v.CurrentLocation, l.Destination)
		route, remainingKm, fallback = r.Points, r.DistanceKm, r.Fallback
	} else {
		pickup := e.planner.PlanRoute(ctx, v.CurrentLocation, l.Origin)
		delivery := e.planner.PlanRoute(ctx, l.Origin, l.Destination)
		route = make(geo.Polyline, 0, len(pickup.Points)+len(delivery.Points))
		route = append(route, pickup.Points...)
		route = append(route, delivery.Points...)
		remainingKm = pickup.DistanceKm + delivery.DistanceKm
		fallback = pickup.Fallback || delivery.Fallback
	}

	err := e.store.UpdateTrip(t.ID, func(cur *trip.Trip) error {
		cur.SetRemainingRoute(route, remainingKm, fallback)
		return nil
	})
	if err != nil {
		e.logger.Warn("reroute install failed", zap.String("trip_id", t.ID), zap.Error(err))
	}
}

// pickupBoundaryPercent is the progress at which the pickup leg ends,
// proportional to the straight-line leg split.
func (e *Engine) pickupBoundaryPercent(t *trip.Trip) float64 {
	total := t.PickupLegKm + t.LoadedLegKm
	if total <= 0 {
		return 0
	}
	return t.PickupLegKm / total * 100
}

// finishLoading ends the one-tick loading hold: cargo goes on, the load
// goes in transit, the truck rolls.
func (e *Engine) finishLoading(snapshot *state.Snapshot, t *trip.Trip, now time.Time) []event.Event {
	l := snapshot.Loads[t.LoadID]
	if l == nil {
		return nil
	}

	err := e.store.UpdateVehicle(t.VehicleID, func(cur *fleet.Vehicle) error {
		if err := cur.LoadCargo(l.WeightTons); err != nil {
			return err
		}
		cur.Status = fleet.StatusEnRouteLoaded
		cur.LastUpdatedAt = now
		return nil
	})
	if err != nil {
		e.logger.Warn("cargo loading failed", zap.String("trip_id", t.ID), zap.Error(err))
		return nil
	}
	if err := e.store.UpdateLoad(t.LoadID, func(cur *freight.Load) error {
		return cur.Transition(freight.StatusInTransit)
	}); err != nil {
		e.logger.Warn("load transition failed", zap.String("load_id", t.LoadID), zap.Error(err))
	}
	if err := e.store.UpdateTrip(t.ID, func(cur *trip.Trip) error {
		return cur.Advance(trip.PhaseInTransit, now)
	}); err != nil {
		e.logger.Warn("trip transition failed", zap.String("trip_id", t.ID), zap.Error(err))
		return nil
	}
	return e.positionEvent(t, now, true)
}

// finishUnloading ends the one-tick unloading hold: cargo off, load
// delivered, trip completed and removed. A follow-up annotation chains the
// vehicle straight into a new trip instead of returning it to idle.
func (e *Engine) finishUnloading(snapshot *state.Snapshot, t *trip.Trip, now time.Time) []event.Event {
	if err := e.store.UpdateLoad(t.LoadID, func(cur *freight.Load) error {
		return cur.Transition(freight.StatusDelivered)
	}); err != nil {
		e.logger.Warn("delivery transition failed", zap.String("load_id", t.LoadID), zap.Error(err))
	}
	if err := e.store.UpdateTrip(t.ID, func(cur *trip.Trip) error {
		return cur.Advance(trip.PhaseCompleted, now)
	}); err != nil {
		e.logger.Warn("trip completion failed", zap.String("trip_id", t.ID), zap.Error(err))
		return nil
	}
	if err := e.store.RemoveTrip(t.ID); err != nil {
		e.logger.Warn("trip removal failed", zap.String("trip_id", t.ID), zap.Error(err))
	}

	events := []event.Event{event.New(now, event.TripCompleted{TripID: t.ID})}

	chained := false
	if t.FollowUpLoadID != "" {
		chained = e.startFollowUp(snapshot, t, now, &events)
	}

	err := e.store.UpdateVehicle(t.VehicleID, func(cur *fleet.Vehicle) error {
		cur.UnloadCargo()
		cur.LastUpdatedAt = now
		if !chained {
			cur.Status = fleet.StatusIdle
		}
		return nil
	})
	if err != nil {
		e.logger.Warn("vehicle release failed", zap.String("vehicle_id", t.VehicleID), zap.Error(err))
	}
	return events
}

// startFollowUp opens a planning trip toward the follow-up load claimed by
// the route manager. The next tick fetches its route.
func (e *Engine) startFollowUp(snapshot *state.Snapshot, done *trip.Trip, now time.Time, events *[]event.Event) bool {
	l := snapshot.Loads[done.FollowUpLoadID]
	deliveredLoad := snapshot.Loads[done.LoadID]
	v := snapshot.Vehicles[done.VehicleID]
	if l == nil || deliveredLoad == nil || v == nil {
		return false
	}
	if l.Status != freight.StatusMatched || l.AssignedVehicleID != done.VehicleID {
		e.logger.Warn("follow-up load no longer claimed",
			zap.String("load_id", done.FollowUpLoadID), zap.String("vehicle_id", done.VehicleID))
		return false
	}

	// economics scored from the delivery point the truck now stands at
	at := v.Clone()
	at.CurrentLocation = deliveredLoad.Destination
	opp := matcher.Score(at, l)

	next, err := trip.New(shared.NewID("trip"), done.VehicleID, done.FollowUpLoadID, now)
	if err != nil {
		return false
	}
	next.PickupLegKm = opp.PickupKm
	next.LoadedLegKm = opp.LoadedKm
	next.EstimatedRevenue = opp.Revenue
	next.EstimatedCost = opp.Cost
	next.EstimatedProfit = opp.Profit

	if err := e.store.InsertTrip(next); err != nil {
		e.logger.Warn("follow-up trip insert failed", zap.String("trip_id", next.ID), zap.Error(err))
		return false
	}

	status := fleet.StatusEnRouteEmpty
	if opp.PickupKm <= 0 {
		status = fleet.StatusEnRouteLoaded
	}
	e.setVehicleStatus(done.VehicleID, status, now)

	*events = append(*events, event.New(now, event.TripStarted{
		TripID:    next.ID,
		VehicleID: done.VehicleID,
		LoadID:    done.FollowUpLoadID,
	}))
	return true
}

func (e *Engine) setVehicleStatus(vehicleID string, status fleet.Status, now time.Time) {
	err := e.store.UpdateVehicle(vehicleID, func(cur *fleet.Vehicle) error {
		cur.Status = status
		cur.LastUpdatedAt = now
		return nil
	})
	if err != nil {
		e.logger.Warn("vehicle status update failed", zap.String("vehicle_id", vehicleID), zap.Error(err))
	}
}

func (e *Engine) positionEvent(t *trip.Trip, now time.Time, boundary bool) []event.Event {
	if !boundary && e.ticks%e.positionEvery != 0 {
		return nil
	}
	lat, lng := t.RoutePosition(t.ProgressPercent)
	return []event.Event{event.New(now, event.VehiclePositionUpdate{
		VehicleID: t.VehicleID,
		Lat:       lat,
		Lng:       lng,
	})}
}
