package motion

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/fleetdispatch-go/internal/adapters/routing"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/event"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/fleet"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/freight"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/shared"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/trip"
	"github.com/andrescamacho/fleetdispatch-go/internal/state"
	"github.com/andrescamacho/fleetdispatch-go/pkg/geo"
)

var tickStart = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

type stubPlanner struct{ calls int }

func (s *stubPlanner) PlanRoute(ctx context.Context, from, to shared.Location) *routing.Route {
	s.calls++
	distance := geo.HaversineKm(from.Lat, from.Lng, to.Lat, to.Lng)
	return &routing.Route{
		Points:        geo.Interpolate(from.Lat, from.Lng, to.Lat, to.Lng, 5, 20),
		DistanceKm:    distance,
		DurationHours: distance / 60,
	}
}

func location(t *testing.T, lat, lng float64, name string) shared.Location {
	t.Helper()
	loc, err := shared.NewLocation(lat, lng, name)
	require.NoError(t, err)
	return loc
}

type fixture struct {
	engine  *Engine
	store   *state.Store
	planner *stubPlanner
	delhi   shared.Location
	jaipur  shared.Location
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := shared.NewMockClock(tickStart)
	store := state.NewStore(0, clock)
	planner := &stubPlanner{}
	return &fixture{
		engine:  New(store, planner, clock, nil),
		store:   store,
		planner: planner,
		delhi:   location(t, 28.6139, 77.2090, "Delhi"),
		jaipur:  location(t, 26.9124, 75.7873, "Jaipur"),
	}
}

// seedTrip inserts a matched vehicle+load pair with a planning trip. When
// withRoute is set the trip carries a precomputed straight-line polyline,
// the way the matcher dispatches them.
func (f *fixture) seedTrip(t *testing.T, withRoute bool) *trip.Trip {
	t.Helper()
	v, err := fleet.NewVehicle("truck_001", "driver_001", f.delhi, 25)
	require.NoError(t, err)
	v.Status = fleet.StatusEnRouteLoaded
	require.NoError(t, f.store.InsertVehicle(v))

	l, err := freight.NewLoad("load_001", f.delhi, f.jaipur, 10, 270, 60)
	require.NoError(t, err)
	l.PickupWindowEnd = tickStart.Add(6 * time.Hour)
	l.DeliveryDeadline = tickStart.Add(24 * time.Hour)
	require.NoError(t, f.store.InsertLoad(l))
	require.NoError(t, f.store.UpdateLoad("load_001", func(cur *freight.Load) error {
		return cur.Assign("truck_001")
	}))

	tr, err := trip.New("trip_001", "truck_001", "load_001", tickStart)
	require.NoError(t, err)
	tr.LoadedLegKm = 270
	if withRoute {
		route := geo.Interpolate(f.delhi.Lat, f.delhi.Lng, f.jaipur.Lat, f.jaipur.Lng, 5, 20)
		tr.SetRoute(route, 270, false)
	}
	require.NoError(t, f.store.InsertTrip(tr))
	return tr
}

func (f *fixture) trip(id string) *trip.Trip {
	return f.store.Snapshot().Trips[id]
}

func (f *fixture) vehicle(id string) *fleet.Vehicle {
	return f.store.Snapshot().Vehicles[id]
}

func TestTickZeroDurationIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.seedTrip(t, true)

	events := f.engine.Tick(context.Background(), 0)

	assert.Empty(t, events)
	assert.Equal(t, trip.PhasePlanning, f.trip("trip_001").Phase)
	assert.Equal(t, 0.0, f.vehicle("truck_001").TotalKmToday)
}

func TestPlanningWithRouteDepartsImmediately(t *testing.T) {
	f := newFixture(t)
	f.seedTrip(t, true)

	f.engine.Tick(context.Background(), 3*time.Second)

	// zero pickup leg goes straight to the loading dock
	assert.Equal(t, trip.PhaseLoading, f.trip("trip_001").Phase)
	assert.Equal(t, fleet.StatusAtPickup, f.vehicle("truck_001").Status)
	assert.Zero(t, f.planner.calls, "route already cached on the trip")
}

func TestPlanningWithoutRouteHoldsOneTick(t *testing.T) {
	f := newFixture(t)
	f.seedTrip(t, false)

	f.engine.Tick(context.Background(), 3*time.Second)

	tr := f.trip("trip_001")
	assert.Equal(t, trip.PhasePlanning, tr.Phase, "holds while the route is fetched")
	assert.NotEmpty(t, tr.Route)
	assert.Greater(t, tr.RouteTotalKm, 0.0)

	f.engine.Tick(context.Background(), 3*time.Second)
	assert.Equal(t, trip.PhaseLoading, f.trip("trip_001").Phase)
}

func TestPlanningWithPickupLegDepartsEmpty(t *testing.T) {
	f := newFixture(t)
	tr := f.seedTrip(t, true)
	require.NoError(t, f.store.UpdateTrip(tr.ID, func(cur *trip.Trip) error {
		cur.PickupLegKm = 50
		return nil
	}))
	require.NoError(t, f.store.UpdateVehicle("truck_001", func(cur *fleet.Vehicle) error {
		cur.Status = fleet.StatusEnRouteEmpty
		return nil
	}))

	f.engine.Tick(context.Background(), 3*time.Second)

	assert.Equal(t, trip.PhaseEnRouteToPickup, f.trip("trip_001").Phase)
	assert.Equal(t, fleet.StatusEnRouteEmpty, f.vehicle("truck_001").Status)
}

func TestLoadingHoldPutsCargoOn(t *testing.T) {
	f := newFixture(t)
	f.seedTrip(t, true)
	f.engine.Tick(context.Background(), 3*time.Second) // planning → loading

	f.engine.Tick(context.Background(), 3*time.Second) // loading → in_transit

	snap := f.store.Snapshot()
	assert.Equal(t, trip.PhaseInTransit, snap.Trips["trip_001"].Phase)
	assert.Equal(t, 10.0, snap.Vehicles["truck_001"].CurrentLoadTons)
	assert.Equal(t, fleet.StatusEnRouteLoaded, snap.Vehicles["truck_001"].Status)
	assert.Equal(t, freight.StatusInTransit, snap.Loads["load_001"].Status)
}

func TestMovingTickAdvancesAndBurnsResources(t *testing.T) {
	f := newFixture(t)
	f.seedTrip(t, true)
	f.engine.Tick(context.Background(), 3*time.Second) // → loading
	f.engine.Tick(context.Background(), 3*time.Second) // → in_transit

	before := f.vehicle("truck_001")
	f.engine.Tick(context.Background(), time.Hour)

	tr := f.trip("trip_001")
	// 60 km at 60 km/h over a 270 km route
	assert.InDelta(t, 60.0/270*100, tr.ProgressPercent, 0.01)

	after := f.vehicle("truck_001")
	assert.InDelta(t, 60, after.TotalKmToday-before.TotalKmToday, 0.01)
	assert.InDelta(t, 60, after.LoadedKmToday-before.LoadedKmToday, 0.01)
	assert.InDelta(t, 60*DefaultFuelLoadedPer10Km/10, before.FuelLevelPercent-after.FuelLevelPercent, 0.01)
	assert.InDelta(t, 1.0, before.MaxDrivingHoursRemaining-after.MaxDrivingHoursRemaining, 0.001)
	assert.NotEqual(t, before.CurrentLocation.Lat, after.CurrentLocation.Lat)
}

func TestEmptyLegDoesNotCountLoadedKm(t *testing.T) {
	f := newFixture(t)
	tr := f.seedTrip(t, true)
	require.NoError(t, f.store.UpdateTrip(tr.ID, func(cur *trip.Trip) error {
		cur.PickupLegKm = 135
		return nil
	}))
	f.engine.Tick(context.Background(), 3*time.Second) // → en_route_to_pickup

	f.engine.Tick(context.Background(), time.Hour)

	v := f.vehicle("truck_001")
	assert.InDelta(t, 60, v.TotalKmToday, 0.01)
	assert.Equal(t, 0.0, v.LoadedKmToday)
}

func TestTripCompletesAndReleasesVehicle(t *testing.T) {
	f := newFixture(t)
	f.seedTrip(t, true)

	// planning, loading, 5×1h transit (60/270 per hour), unloading
	for i := 0; i < 9; i++ {
		f.engine.Tick(context.Background(), time.Hour)
	}

	snap := f.store.Snapshot()
	assert.Empty(t, snap.ActiveTrips())
	assert.Nil(t, snap.Trips["trip_001"])
	assert.Equal(t, freight.StatusDelivered, snap.Loads["load_001"].Status)

	v := snap.Vehicles["truck_001"]
	assert.Equal(t, fleet.StatusIdle, v.Status)
	assert.Equal(t, 0.0, v.CurrentLoadTons)

	completed := snap.EventsFor(event.TypeTripCompleted, 0)
	require.Len(t, completed, 1)
	assert.Equal(t, "trip_001", completed[0].Payload.(event.TripCompleted).TripID)
}

func TestProgressIsMonotoneAndFuelNonNegative(t *testing.T) {
	f := newFixture(t)
	f.seedTrip(t, true)

	last := 0.0
	for i := 0; i < 20; i++ {
		f.engine.Tick(context.Background(), time.Hour)
		if tr := f.trip("trip_001"); tr != nil {
			assert.GreaterOrEqual(t, tr.ProgressPercent, last)
			assert.LessOrEqual(t, tr.ProgressPercent, 100.0)
			last = tr.ProgressPercent
		}
		v := f.vehicle("truck_001")
		assert.GreaterOrEqual(t, v.FuelLevelPercent, 0.0)
		assert.LessOrEqual(t, v.LoadedKmToday, v.TotalKmToday+1e-9)
	}
}

func TestDriverRestHoldsProgress(t *testing.T) {
	f := newFixture(t)
	f.seedTrip(t, true)
	f.engine.Tick(context.Background(), 3*time.Second) // → loading
	f.engine.Tick(context.Background(), 3*time.Second) // → in_transit
	require.NoError(t, f.store.UpdateVehicle("truck_001", func(cur *fleet.Vehicle) error {
		cur.MaxDrivingHoursRemaining = 0
		return nil
	}))

	progressBefore := f.trip("trip_001").ProgressPercent
	events := f.engine.Tick(context.Background(), time.Hour)

	var rested bool
	for _, e := range events {
		if e.Type == event.TypeDriverRestRequired {
			rested = true
		}
	}
	assert.True(t, rested)
	assert.Equal(t, progressBefore, f.trip("trip_001").ProgressPercent)
	assert.Equal(t, restedDrivingHours, f.vehicle("truck_001").MaxDrivingHoursRemaining)

	// next tick the rested driver moves again
	f.engine.Tick(context.Background(), time.Hour)
	assert.Greater(t, f.trip("trip_001").ProgressPercent, progressBefore)
}

func TestPositionEventsAreDecimated(t *testing.T) {
	f := newFixture(t)
	f.seedTrip(t, true)
	f.engine.Tick(context.Background(), 3*time.Second) // → loading (boundary event)
	f.engine.Tick(context.Background(), 3*time.Second) // → in_transit (boundary event)

	var positions int
	for i := 0; i < 10; i++ {
		for _, e := range f.engine.Tick(context.Background(), time.Minute) {
			if e.Type == event.TypeVehiclePositionUpdate {
				positions++
			}
		}
	}
	assert.Equal(t, 2, positions, "ticks 5 and 10 of the decimation window")
}

func TestInvalidatedRouteIsReplanned(t *testing.T) {
	f := newFixture(t)
	f.seedTrip(t, true)
	f.engine.Tick(context.Background(), 3*time.Second) // → loading
	f.engine.Tick(context.Background(), 3*time.Second) // → in_transit
	f.engine.Tick(context.Background(), time.Hour)     // some progress

	progress := f.trip("trip_001").ProgressPercent
	require.NoError(t, f.store.UpdateTrip("trip_001", func(cur *trip.Trip) error {
		cur.InvalidateRoute()
		return nil
	}))

	f.engine.Tick(context.Background(), time.Hour)

	tr := f.trip("trip_001")
	assert.NotEmpty(t, tr.Route, "remaining leg re-fetched")
	assert.Equal(t, progress, tr.ProgressPercent, "held while re-planning")
	assert.Equal(t, progress, tr.RouteFromPercent)
	assert.Equal(t, 1, f.planner.calls)

	f.engine.Tick(context.Background(), time.Hour)
	assert.Greater(t, f.trip("trip_001").ProgressPercent, progress)
}

func TestFollowUpLoadChainsNextTrip(t *testing.T) {
	f := newFixture(t)
	f.seedTrip(t, true)

	// a return load out of Jaipur, claimed for this truck by the adapter
	back, err := freight.NewLoad("load_002", f.jaipur, f.delhi, 8, 270, 55)
	require.NoError(t, err)
	back.PickupWindowEnd = tickStart.Add(12 * time.Hour)
	back.DeliveryDeadline = tickStart.Add(36 * time.Hour)
	require.NoError(t, f.store.InsertLoad(back))
	require.NoError(t, f.store.UpdateLoad("load_002", func(cur *freight.Load) error {
		return cur.Assign("truck_001")
	}))
	require.NoError(t, f.store.UpdateTrip("trip_001", func(cur *trip.Trip) error {
		cur.FollowUpLoadID = "load_002"
		return nil
	}))

	for i := 0; i < 9; i++ {
		f.engine.Tick(context.Background(), time.Hour)
	}

	snap := f.store.Snapshot()
	assert.Equal(t, freight.StatusDelivered, snap.Loads["load_001"].Status)

	trips := snap.ActiveTrips()
	require.Len(t, trips, 1, "vehicle rolls straight into the follow-up trip")
	next := trips[0]
	assert.Equal(t, "load_002", next.LoadID)
	assert.Equal(t, "truck_001", next.VehicleID)
	assert.Equal(t, trip.PhasePlanning, next.Phase)

	v := snap.Vehicles["truck_001"]
	assert.NotEqual(t, fleet.StatusIdle, v.Status)
	assert.Equal(t, 0.0, v.CurrentLoadTons)

	started := snap.EventsFor(event.TypeTripStarted, 0)
	require.NotEmpty(t, started)
	assert.Equal(t, "load_002", started[0].Payload.(event.TripStarted).LoadID)
}

func TestFollowUpSkippedWhenLoadReleased(t *testing.T) {
	f := newFixture(t)
	f.seedTrip(t, true)

	back, err := freight.NewLoad("load_002", f.jaipur, f.delhi, 8, 270, 55)
	require.NoError(t, err)
	back.PickupWindowEnd = tickStart.Add(12 * time.Hour)
	require.NoError(t, f.store.InsertLoad(back))
	require.NoError(t, f.store.UpdateTrip("trip_001", func(cur *trip.Trip) error {
		cur.FollowUpLoadID = "load_002" // never claimed: still available
		return nil
	}))

	for i := 0; i < 9; i++ {
		f.engine.Tick(context.Background(), time.Hour)
	}

	snap := f.store.Snapshot()
	assert.Empty(t, snap.ActiveTrips())
	assert.Equal(t, fleet.StatusIdle, snap.Vehicles["truck_001"].Status)
}

func TestConcurrentTicksSerialize(t *testing.T) {
	f := newFixture(t)
	f.seedTrip(t, true)
	f.engine.Tick(context.Background(), 3*time.Second) // → loading
	f.engine.Tick(context.Background(), 3*time.Second) // → in_transit

	// the scheduler and the simulate-movement endpoint can race a tick;
	// serialized ticks lose no progress
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.engine.Tick(context.Background(), time.Hour)
		}()
	}
	wg.Wait()

	assert.InDelta(t, 240.0/270*100, f.trip("trip_001").ProgressPercent, 0.01)
	assert.InDelta(t, 240, f.vehicle("truck_001").TotalKmToday, 0.01)
}

func TestTicksProcessTripsInIDOrder(t *testing.T) {
	f := newFixture(t)
	f.seedTrip(t, true)

	v2, err := fleet.NewVehicle("truck_002", "driver_002", f.delhi, 25)
	require.NoError(t, err)
	v2.Status = fleet.StatusEnRouteLoaded
	require.NoError(t, f.store.InsertVehicle(v2))

	l2, err := freight.NewLoad("load_003", f.delhi, f.jaipur, 5, 270, 50)
	require.NoError(t, err)
	l2.PickupWindowEnd = tickStart.Add(6 * time.Hour)
	require.NoError(t, f.store.InsertLoad(l2))
	require.NoError(t, f.store.UpdateLoad("load_003", func(cur *freight.Load) error {
		return cur.Assign("truck_002")
	}))

	tr2, err := trip.New("trip_000", "truck_002", "load_003", tickStart)
	require.NoError(t, err)
	tr2.LoadedLegKm = 270
	tr2.SetRoute(geo.Interpolate(f.delhi.Lat, f.delhi.Lng, f.jaipur.Lat, f.jaipur.Lng, 5, 20), 270, false)
	require.NoError(t, f.store.InsertTrip(tr2))

	for i := 0; i < 7; i++ {
		f.engine.Tick(context.Background(), time.Hour)
	}

	// both trips moved; per-tick event order follows trip id order, so
	// trip_000's vehicle appears before trip_001's within each tick
	updates := f.store.Snapshot().EventsFor(event.TypeVehiclePositionUpdate, 0)
	require.NotEmpty(t, updates)
	seen := map[string]bool{}
	for _, e := range updates {
		seen[e.Payload.(event.VehiclePositionUpdate).VehicleID] = true
	}
	assert.True(t, seen["truck_001"] && seen["truck_002"])
}
