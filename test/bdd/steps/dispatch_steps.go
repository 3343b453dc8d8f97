package steps

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/andrescamacho/fleetdispatch-go/internal/adapters/routing"
	"github.com/andrescamacho/fleetdispatch-go/internal/application/engine"
	"github.com/andrescamacho/fleetdispatch-go/internal/application/matcher"
	"github.com/andrescamacho/fleetdispatch-go/internal/application/monitor"
	"github.com/andrescamacho/fleetdispatch-go/internal/application/motion"
	"github.com/andrescamacho/fleetdispatch-go/internal/application/predict"
	"github.com/andrescamacho/fleetdispatch-go/internal/application/routemgr"
	"github.com/andrescamacho/fleetdispatch-go/internal/application/seed"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/event"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/fleet"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/freight"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/shared"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/trip"
	"github.com/andrescamacho/fleetdispatch-go/internal/state"
	"github.com/andrescamacho/fleetdispatch-go/pkg/geo"
)

var bddNow = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

const motionTick = time.Hour

// greatCirclePlanner stands in for OSRM in scenarios.
type greatCirclePlanner struct{}

func (greatCirclePlanner) PlanRoute(_ context.Context, from, to shared.Location) *routing.Route {
	dist := geo.HaversineKm(from.Lat, from.Lng, to.Lat, to.Lng)
	return &routing.Route{
		Points:        geo.Interpolate(from.Lat, from.Lng, to.Lat, to.Lng, 5, 20),
		DistanceKm:    dist,
		DurationHours: dist / motion.DefaultSpeedKmh,
		Fallback:      true,
	}
}

// scriptedAdvisor is rewired per scenario by the Given steps.
type scriptedAdvisor struct {
	reply string
	err   error
}

func (a *scriptedAdvisor) Complete(_ context.Context, _, _ string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	return a.reply, nil
}

type dispatchContext struct {
	engine  *engine.Engine
	store   *state.Store
	clock   *shared.MockClock
	advisor *scriptedAdvisor

	matchResult *matcher.Result
	decisions   []routemgr.TripDecision
	tripID      string
}

func (dc *dispatchContext) reset() {
	dc.engine = nil
	dc.store = nil
	dc.clock = nil
	dc.advisor = nil
	dc.matchResult = nil
	dc.decisions = nil
	dc.tripID = ""
}

// Given steps

func (dc *dispatchContext) aDispatchEngine() error {
	dc.clock = shared.NewMockClock(bddNow)
	dc.store = state.NewStore(0, dc.clock)
	dc.advisor = &scriptedAdvisor{}
	rng := rand.New(rand.NewSource(11))
	planner := greatCirclePlanner{}

	dc.engine = engine.New(engine.Deps{
		Store:     dc.store,
		Observer:  monitor.NewObserver(dc.store, monitor.NewSimulatedSource(rng), dc.clock, nil),
		Matcher:   matcher.New(dc.store, planner, dc.advisor, dc.clock, nil),
		Motion:    motion.New(dc.store, planner, dc.clock, nil),
		Adapter:   routemgr.New(dc.store, dc.advisor, dc.clock, nil),
		Predictor: predict.New(),
		Clock:     dc.clock,
		Rand:      rng,
		MotionDt:  motionTick,
	})
	return nil
}

func (dc *dispatchContext) anIdleVehicleWithCapacity(vehicleID, city string, capacity float64) error {
	loc, err := seed.City(strings.ToLower(city))
	if err != nil {
		return err
	}
	v, err := fleet.NewVehicle(vehicleID, "driver_"+vehicleID, loc, capacity)
	if err != nil {
		return err
	}
	return dc.store.InsertVehicle(v)
}

func (dc *dispatchContext) anAvailableLoad(loadID, fromCity, toCity string, weight, rate float64) error {
	origin, err := seed.City(strings.ToLower(fromCity))
	if err != nil {
		return err
	}
	dest, err := seed.City(strings.ToLower(toCity))
	if err != nil {
		return err
	}
	distance := geo.HaversineKm(origin.Lat, origin.Lng, dest.Lat, dest.Lng)
	l, err := freight.NewLoad(loadID, origin, dest, weight, distance, rate)
	if err != nil {
		return err
	}
	l.PickupWindowEnd = dc.clock.Now().Add(6 * time.Hour)
	l.DeliveryDeadline = dc.clock.Now().Add(48 * time.Hour)
	return dc.store.InsertLoad(l)
}

func (dc *dispatchContext) theAdvisorApprovesPairing(vehicleID, loadID string) error {
	dc.advisor.reply = fmt.Sprintf(
		"- Vehicle %s -> Load %s: strong margin and utilization\nDECISION: CONTINUE",
		vehicleID, loadID)
	dc.advisor.err = nil
	return nil
}

func (dc *dispatchContext) theAdvisorIsUnavailable() error {
	dc.advisor.err = fmt.Errorf("advisor offline")
	return nil
}

func (dc *dispatchContext) aTrafficAlert(minutes float64, vehicleID string) error {
	dc.store.ApplyEvents([]event.Event{
		event.New(dc.clock.Now(), event.TrafficAlert{
			VehicleID:    vehicleID,
			DelayMinutes: minutes,
			Reason:       "highway congestion",
		}),
	})
	return nil
}

func (dc *dispatchContext) theTripIsUnderway() error {
	if dc.tripID == "" {
		return fmt.Errorf("no trip has been created")
	}
	for i := 0; i < 10; i++ {
		t := dc.store.Snapshot().Trips[dc.tripID]
		if t == nil {
			return fmt.Errorf("trip %s disappeared before getting underway", dc.tripID)
		}
		if t.Phase == trip.PhaseEnRouteToPickup || t.Phase == trip.PhaseInTransit {
			return nil
		}
		dc.engine.SimulateMovement(context.Background())
		dc.clock.Advance(motionTick)
	}
	return fmt.Errorf("trip %s never reached a moving phase", dc.tripID)
}

// When steps

func (dc *dispatchContext) iInitializeTheFleet(numVehicles, numLoads int) error {
	_, err := dc.engine.Initialize(context.Background(), numVehicles, numLoads)
	return err
}

func (dc *dispatchContext) theMatcherRuns() error {
	dc.matchResult = dc.engine.RunMatcher(context.Background())
	if len(dc.matchResult.TripIDs) > 0 {
		dc.tripID = dc.matchResult.TripIDs[0]
	}
	return nil
}

func (dc *dispatchContext) motionAdvancesUntilTheTripFinishes() error {
	if dc.tripID == "" {
		return fmt.Errorf("no trip has been created")
	}
	for i := 0; i < 100; i++ {
		if dc.store.Snapshot().Trips[dc.tripID] == nil {
			return nil
		}
		dc.engine.SimulateMovement(context.Background())
		dc.clock.Advance(motionTick)
	}
	return fmt.Errorf("trip %s did not finish within the tick budget", dc.tripID)
}

func (dc *dispatchContext) theRouteManagerRuns() error {
	dc.decisions = dc.engine.RunAdapter(context.Background())
	return nil
}

// Then steps

func (dc *dispatchContext) theFleetShouldHaveVehicles(n int) error {
	got := len(dc.store.Snapshot().Vehicles)
	if got != n {
		return fmt.Errorf("expected %d vehicles, got %d", n, got)
	}
	return nil
}

func (dc *dispatchContext) theBoardShouldHaveLoads(n int) error {
	got := len(dc.store.Snapshot().Loads)
	if got != n {
		return fmt.Errorf("expected %d loads, got %d", n, got)
	}
	return nil
}

func (dc *dispatchContext) eventsShouldBeRecorded(n int, eventType string) error {
	got := len(dc.store.Snapshot().EventsFor(event.Type(eventType), n+1))
	if got != n {
		return fmt.Errorf("expected %d %s events, got %d", n, eventType, got)
	}
	return nil
}

func (dc *dispatchContext) anEventShouldBeRecorded(eventType string) error {
	if len(dc.store.Snapshot().EventsFor(event.Type(eventType), 1)) == 0 {
		return fmt.Errorf("no %s event recorded", eventType)
	}
	return nil
}

func (dc *dispatchContext) aTripShouldExistFor(vehicleID, loadID string) error {
	for _, t := range dc.store.Snapshot().Trips {
		if t.VehicleID == vehicleID && t.LoadID == loadID {
			dc.tripID = t.ID
			return nil
		}
	}
	return fmt.Errorf("no trip joins vehicle %s and load %s", vehicleID, loadID)
}

func (dc *dispatchContext) loadShouldBeAssignedTo(loadID, vehicleID string) error {
	l := dc.store.Snapshot().Loads[loadID]
	if l == nil {
		return fmt.Errorf("load %s not found", loadID)
	}
	if l.AssignedVehicleID != vehicleID {
		return fmt.Errorf("load %s assigned to %q, expected %q", loadID, l.AssignedVehicleID, vehicleID)
	}
	if l.Status != freight.StatusMatched {
		return fmt.Errorf("load %s has status %s, expected %s", loadID, l.Status, freight.StatusMatched)
	}
	return nil
}

func (dc *dispatchContext) vehicleShouldHaveStatus(vehicleID, status string) error {
	v := dc.store.Snapshot().Vehicles[vehicleID]
	if v == nil {
		return fmt.Errorf("vehicle %s not found", vehicleID)
	}
	if v.Status != fleet.Status(status) {
		return fmt.Errorf("vehicle %s has status %s, expected %s", vehicleID, v.Status, status)
	}
	return nil
}

func (dc *dispatchContext) theTripShouldBeCompleted() error {
	if dc.tripID == "" {
		return fmt.Errorf("no trip has been created")
	}
	if t := dc.store.Snapshot().Trips[dc.tripID]; t != nil {
		return fmt.Errorf("trip %s still active in phase %s", dc.tripID, t.Phase)
	}
	return dc.anEventShouldBeRecorded(string(event.TypeTripCompleted))
}

func (dc *dispatchContext) loadShouldBeDelivered(loadID string) error {
	l := dc.store.Snapshot().Loads[loadID]
	if l == nil {
		return fmt.Errorf("load %s not found", loadID)
	}
	if l.Status != freight.StatusDelivered {
		return fmt.Errorf("load %s has status %s, expected %s", loadID, l.Status, freight.StatusDelivered)
	}
	return nil
}

func (dc *dispatchContext) vehicleShouldBeBackInService(vehicleID string) error {
	v := dc.store.Snapshot().Vehicles[vehicleID]
	if v == nil {
		return fmt.Errorf("vehicle %s not found", vehicleID)
	}
	if v.Status != fleet.StatusIdle && v.Status != fleet.StatusEnRouteEmpty && v.Status != fleet.StatusEnRouteLoaded {
		return fmt.Errorf("vehicle %s stuck in status %s", vehicleID, v.Status)
	}
	if v.CurrentLoadTons != 0 && v.Status == fleet.StatusIdle {
		return fmt.Errorf("vehicle %s is idle but still carries %.1f tons", vehicleID, v.CurrentLoadTons)
	}
	return nil
}

func (dc *dispatchContext) theDecisionForTheTripShouldBe(want string) error {
	if dc.tripID == "" {
		return fmt.Errorf("no trip has been created")
	}
	for _, d := range dc.decisions {
		if d.TripID == dc.tripID {
			if string(d.Decision) != want {
				return fmt.Errorf("decision for trip %s was %s, expected %s", dc.tripID, d.Decision, want)
			}
			return nil
		}
	}
	return fmt.Errorf("no decision recorded for trip %s", dc.tripID)
}

func (dc *dispatchContext) theTripShouldCarryAtLeastDelay(minutes float64) error {
	t := dc.store.Snapshot().Trips[dc.tripID]
	if t == nil {
		return fmt.Errorf("trip %s not found", dc.tripID)
	}
	if t.DelayMinutes < minutes {
		return fmt.Errorf("trip %s carries %.0f delay minutes, expected at least %.0f", dc.tripID, t.DelayMinutes, minutes)
	}
	return nil
}

func (dc *dispatchContext) loadShouldBeReservedAsFollowUp(loadID string) error {
	t := dc.store.Snapshot().Trips[dc.tripID]
	if t == nil {
		return fmt.Errorf("trip %s not found", dc.tripID)
	}
	if t.FollowUpLoadID != loadID {
		return fmt.Errorf("trip %s follow-up is %q, expected %q", dc.tripID, t.FollowUpLoadID, loadID)
	}
	l := dc.store.Snapshot().Loads[loadID]
	if l == nil {
		return fmt.Errorf("load %s not found", loadID)
	}
	if l.Status != freight.StatusMatched {
		return fmt.Errorf("load %s has status %s, expected %s", loadID, l.Status, freight.StatusMatched)
	}
	return nil
}

// InitializeDispatchScenario registers the dispatch and adaptation steps.
func InitializeDispatchScenario(sc *godog.ScenarioContext) {
	dc := &dispatchContext{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		dc.reset()
		return ctx, nil
	})

	sc.Step(`^a dispatch engine$`, dc.aDispatchEngine)
	sc.Step(`^an idle vehicle "([^"]*)" in (\w+) with capacity (\d+(?:\.\d+)?) tons$`, dc.anIdleVehicleWithCapacity)
	sc.Step(`^an available load "([^"]*)" from (\w+) to (\w+) weighing (\d+(?:\.\d+)?) tons at rate (\d+(?:\.\d+)?) per km$`, dc.anAvailableLoad)
	sc.Step(`^the advisor approves pairing "([^"]*)" with "([^"]*)"$`, dc.theAdvisorApprovesPairing)
	sc.Step(`^the advisor is unavailable$`, dc.theAdvisorIsUnavailable)
	sc.Step(`^a traffic alert reporting (\d+(?:\.\d+)?) minutes of delay for vehicle "([^"]*)"$`, dc.aTrafficAlert)
	sc.Step(`^the trip is underway$`, dc.theTripIsUnderway)

	sc.Step(`^I initialize the fleet with (\d+) vehicles and (\d+) loads$`, dc.iInitializeTheFleet)
	sc.Step(`^the matcher runs$`, dc.theMatcherRuns)
	sc.Step(`^the matcher has run$`, dc.theMatcherRuns)
	sc.Step(`^motion advances until the trip finishes$`, dc.motionAdvancesUntilTheTripFinishes)
	sc.Step(`^the route manager runs$`, dc.theRouteManagerRuns)

	sc.Step(`^the fleet should have (\d+) vehicles$`, dc.theFleetShouldHaveVehicles)
	sc.Step(`^the board should have (\d+) loads$`, dc.theBoardShouldHaveLoads)
	sc.Step(`^(\d+) "([^"]*)" events should be recorded$`, dc.eventsShouldBeRecorded)
	sc.Step(`^a "([^"]*)" event should be recorded$`, dc.anEventShouldBeRecorded)
	sc.Step(`^a trip should exist for vehicle "([^"]*)" and load "([^"]*)"$`, dc.aTripShouldExistFor)
	sc.Step(`^load "([^"]*)" should be assigned to vehicle "([^"]*)"$`, dc.loadShouldBeAssignedTo)
	sc.Step(`^vehicle "([^"]*)" should have status "([^"]*)"$`, dc.vehicleShouldHaveStatus)
	sc.Step(`^the trip should be completed$`, dc.theTripShouldBeCompleted)
	sc.Step(`^load "([^"]*)" should be delivered$`, dc.loadShouldBeDelivered)
	sc.Step(`^vehicle "([^"]*)" should be back in service$`, dc.vehicleShouldBeBackInService)
	sc.Step(`^the decision for the trip should be "([^"]*)"$`, dc.theDecisionForTheTripShouldBe)
	sc.Step(`^the trip should carry at least (\d+(?:\.\d+)?) minutes of delay$`, dc.theTripShouldCarryAtLeastDelay)
	sc.Step(`^load "([^"]*)" should be reserved as the follow-up$`, dc.loadShouldBeReservedAsFollowUp)
}
