package routemgr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/fleetdispatch-go/internal/adapters/advisor"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/event"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/fleet"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/freight"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/shared"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/trip"
	"github.com/andrescamacho/fleetdispatch-go/internal/state"
	"github.com/andrescamacho/fleetdispatch-go/pkg/geo"
)

var routeStart = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func location(t *testing.T, lat, lng float64, name string) shared.Location {
	t.Helper()
	loc, err := shared.NewLocation(lat, lng, name)
	require.NoError(t, err)
	return loc
}

func postLoad(t *testing.T, store *state.Store, id string, origin, dest shared.Location, distanceKm, rate float64) {
	t.Helper()
	l, err := freight.NewLoad(id, origin, dest, 10, distanceKm, rate)
	require.NoError(t, err)
	l.PickupWindowStart = routeStart
	l.PickupWindowEnd = routeStart.Add(6 * time.Hour)
	l.DeliveryDeadline = routeStart.Add(24 * time.Hour)
	require.NoError(t, store.InsertLoad(l))
}

// fixture seeds one truck mid-transit from Delhi to Jaipur.
func fixture(t *testing.T, adv advisor.Advisor) (*Manager, *state.Store) {
	t.Helper()
	clock := shared.NewMockClock(routeStart)
	store := state.NewStore(0, clock)

	delhi := location(t, 28.6139, 77.2090, "Delhi")
	jaipur := location(t, 26.9124, 75.7873, "Jaipur")

	v, err := fleet.NewVehicle("truck_001", "driver_001", delhi, 25)
	require.NoError(t, err)
	v.Status = fleet.StatusEnRouteLoaded
	require.NoError(t, store.InsertVehicle(v))

	postLoad(t, store, "load_001", delhi, jaipur, 270, 60)
	require.NoError(t, store.UpdateLoad("load_001", func(l *freight.Load) error {
		return l.Assign("truck_001")
	}))

	tr, err := trip.New("trip_001", "truck_001", "load_001", routeStart)
	require.NoError(t, err)
	require.NoError(t, tr.Advance(trip.PhaseInTransit, routeStart))
	require.NoError(t, tr.SetProgress(50))
	tr.RouteTotalKm = 270
	tr.LoadedLegKm = 270
	require.NoError(t, store.InsertTrip(tr))

	return New(store, adv, clock, nil), store
}

func reportTraffic(store *state.Store, vehicleID string, minutes float64) {
	store.ApplyEvents([]event.Event{event.New(routeStart, event.TrafficAlert{
		VehicleID:    vehicleID,
		Corridor:     "NH48 Delhi-Jaipur",
		DelayMinutes: minutes,
		Reason:       "Accident on NH48",
	})})
}

func TestRunContinueLeavesTripUntouched(t *testing.T) {
	adv := &advisor.Scripted{Responses: []string{
		"DECISION: CONTINUE\nREASONING: On schedule, no disturbances.",
	}}
	m, store := fixture(t, adv)

	decisions := m.Run(context.Background())

	require.Len(t, decisions, 1)
	assert.Equal(t, DecisionContinue, decisions[0].Decision)
	assert.Empty(t, decisions[0].FollowUpLoadID)

	snap := store.Snapshot()
	assert.Equal(t, 0.0, snap.Trips["trip_001"].DelayMinutes)

	recorded := snap.EventsFor(event.TypeRouteDecision, 0)
	require.Len(t, recorded, 1)
	assert.Equal(t, "CONTINUE", recorded[0].Payload.(event.RouteDecision).Decision)
}

func TestRunAdjustRouteInvalidatesAndAccumulatesDelay(t *testing.T) {
	adv := &advisor.Scripted{Responses: []string{
		"DECISION: ADJUST_ROUTE\nREASONING: Reroute around the accident.",
	}}
	m, store := fixture(t, adv)
	require.NoError(t, store.UpdateTrip("trip_001", func(tr *trip.Trip) error {
		tr.SetRoute(geo.Polyline{{28.6139, 77.2090}, {26.9124, 75.7873}}, 270, false)
		return nil
	}))
	reportTraffic(store, "truck_001", 45)

	decisions := m.Run(context.Background())

	require.Len(t, decisions, 1)
	assert.Equal(t, DecisionAdjustRoute, decisions[0].Decision)
	assert.Equal(t, 45.0, decisions[0].Situation.DelayMinutes)

	tr := store.Snapshot().Trips["trip_001"]
	assert.Nil(t, tr.Route, "route cache must be invalidated")
	assert.Equal(t, 45.0, tr.DelayMinutes)
}

func TestRunFollowUpLoadClaimsTheLoad(t *testing.T) {
	adv := &advisor.Scripted{Responses: []string{
		"DECISION: FOLLOW_UP_LOAD\nSelected Load: load_002\nJustification: return leg pays well.",
	}}
	m, store := fixture(t, adv)

	jaipur := location(t, 26.9124, 75.7873, "Jaipur")
	delhi := location(t, 28.6139, 77.2090, "Delhi")
	postLoad(t, store, "load_002", jaipur, delhi, 270, 60)

	decisions := m.Run(context.Background())

	require.Len(t, decisions, 1)
	assert.Equal(t, DecisionFollowUpLoad, decisions[0].Decision)
	assert.Equal(t, "load_002", decisions[0].FollowUpLoadID)

	snap := store.Snapshot()
	assert.Equal(t, "load_002", snap.Trips["trip_001"].FollowUpLoadID)
	assert.Equal(t, freight.StatusMatched, snap.Loads["load_002"].Status)
	assert.Equal(t, "truck_001", snap.Loads["load_002"].AssignedVehicleID)
	assert.Empty(t, snap.AvailableLoads(routeStart), "claimed load leaves the board")
}

func TestRunDetourAliasAccepted(t *testing.T) {
	adv := &advisor.Scripted{Responses: []string{
		"DECISION: DETOUR_FOR_LOAD\nSelected Load: load_002",
	}}
	m, store := fixture(t, adv)

	jaipur := location(t, 26.9124, 75.7873, "Jaipur")
	delhi := location(t, 28.6139, 77.2090, "Delhi")
	postLoad(t, store, "load_002", jaipur, delhi, 270, 60)

	decisions := m.Run(context.Background())

	require.Len(t, decisions, 1)
	assert.Equal(t, DecisionFollowUpLoad, decisions[0].Decision)
	assert.Equal(t, "load_002", decisions[0].FollowUpLoadID)
}

func TestRunRejectsUnofferedFollowUp(t *testing.T) {
	// advisor names a load that was never in the opportunity list
	adv := &advisor.Scripted{Responses: []string{
		"DECISION: FOLLOW_UP_LOAD\nSelected Load: load_999",
	}}
	m, store := fixture(t, adv)

	jaipur := location(t, 26.9124, 75.7873, "Jaipur")
	delhi := location(t, 28.6139, 77.2090, "Delhi")
	postLoad(t, store, "load_002", jaipur, delhi, 270, 60)

	decisions := m.Run(context.Background())

	require.Len(t, decisions, 1)
	assert.Equal(t, DecisionContinue, decisions[0].Decision)
	assert.Empty(t, store.Snapshot().Trips["trip_001"].FollowUpLoadID)
}

func TestFallbackRules(t *testing.T) {
	m, _ := fixture(t, &advisor.Scripted{})
	richOpp := []Opportunity{{LoadID: "load_002", ProfitMargin: 0.45}}
	thinOpp := []Opportunity{{LoadID: "load_002", ProfitMargin: 0.10}}

	cases := []struct {
		name     string
		s        Situation
		opps     []Opportunity
		want     Decision
		wantLoad string
	}{
		{"big delay with rich load", Situation{DelayMinutes: 75}, richOpp, DecisionFollowUpLoad, "load_002"},
		{"big delay thin margin", Situation{DelayMinutes: 75}, thinOpp, DecisionAdjustRoute, ""},
		{"big delay no loads", Situation{DelayMinutes: 75}, nil, DecisionAdjustRoute, ""},
		{"small delay", Situation{DelayMinutes: 20}, richOpp, DecisionAdjustRoute, ""},
		{"no delay", Situation{}, richOpp, DecisionContinue, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, loadID := m.fallback(tc.s, tc.opps)
			assert.Equal(t, tc.want, d)
			assert.Equal(t, tc.wantLoad, loadID)
		})
	}
}

func TestRunFallsBackWhenAdvisorFails(t *testing.T) {
	adv := &advisor.Scripted{Err: shared.NewUnavailable("advisor down", nil)}
	m, store := fixture(t, adv)
	reportTraffic(store, "truck_001", 90)

	jaipur := location(t, 26.9124, 75.7873, "Jaipur")
	delhi := location(t, 28.6139, 77.2090, "Delhi")
	postLoad(t, store, "load_002", jaipur, delhi, 270, 60)

	decisions := m.Run(context.Background())

	require.Len(t, decisions, 1)
	assert.Equal(t, DecisionFollowUpLoad, decisions[0].Decision)
	assert.Equal(t, "load_002", decisions[0].FollowUpLoadID)
	assert.Contains(t, decisions[0].Reasoning, "fallback")
}

func TestSearchOpportunitiesFiltersAndRanks(t *testing.T) {
	m, store := fixture(t, &advisor.Scripted{})

	jaipur := location(t, 26.9124, 75.7873, "Jaipur")
	delhi := location(t, 28.6139, 77.2090, "Delhi")
	mumbai := location(t, 19.0760, 72.8777, "Mumbai")

	postLoad(t, store, "load_010", jaipur, delhi, 270, 60)  // profit 270*57.5
	postLoad(t, store, "load_011", jaipur, delhi, 270, 40)  // profit 270*37.5
	postLoad(t, store, "load_012", mumbai, delhi, 1150, 60) // beyond detour budget
	postLoad(t, store, "load_013", jaipur, delhi, 270, 2)   // negative profit

	snap := store.Snapshot()
	opps := m.searchOpportunities(snap, snap.Trips["trip_001"], routeStart)

	require.Len(t, opps, 2)
	assert.Equal(t, "load_010", opps[0].LoadID, "sorted by profit descending")
	assert.Equal(t, "load_011", opps[1].LoadID)
	assert.Less(t, opps[0].DetourKm, 1.0, "pickup sits at the delivery point")
	assert.Greater(t, opps[0].ProfitMargin, 0.9)
}

func TestSearchOpportunitiesSkipsLoadsOverCapacity(t *testing.T) {
	m, store := fixture(t, &advisor.Scripted{}) // truck_001 carries 25 t

	jaipur := location(t, 26.9124, 75.7873, "Jaipur")
	delhi := location(t, 28.6139, 77.2090, "Delhi")
	postLoad(t, store, "load_010", jaipur, delhi, 270, 60)

	heavy, err := freight.NewLoad("load_011", jaipur, delhi, 30, 270, 60)
	require.NoError(t, err)
	heavy.PickupWindowStart = routeStart
	heavy.PickupWindowEnd = routeStart.Add(6 * time.Hour)
	heavy.DeliveryDeadline = routeStart.Add(24 * time.Hour)
	require.NoError(t, store.InsertLoad(heavy))

	snap := store.Snapshot()
	opps := m.searchOpportunities(snap, snap.Trips["trip_001"], routeStart)

	require.Len(t, opps, 1)
	assert.Equal(t, "load_010", opps[0].LoadID)
}

func TestApplyRefusesFollowUpOverCapacity(t *testing.T) {
	m, store := fixture(t, &advisor.Scripted{}) // truck_001 carries 25 t

	jaipur := location(t, 26.9124, 75.7873, "Jaipur")
	delhi := location(t, 28.6139, 77.2090, "Delhi")
	heavy, err := freight.NewLoad("load_011", jaipur, delhi, 30, 270, 60)
	require.NoError(t, err)
	heavy.PickupWindowStart = routeStart
	heavy.PickupWindowEnd = routeStart.Add(6 * time.Hour)
	heavy.DeliveryDeadline = routeStart.Add(24 * time.Hour)
	require.NoError(t, store.InsertLoad(heavy))

	d := TripDecision{
		TripID:         "trip_001",
		VehicleID:      "truck_001",
		Decision:       DecisionFollowUpLoad,
		FollowUpLoadID: "load_011",
	}
	m.apply(&d, Situation{}, routeStart)

	assert.Equal(t, DecisionContinue, d.Decision)
	assert.Empty(t, d.FollowUpLoadID)

	snap := store.Snapshot()
	assert.Equal(t, freight.StatusAvailable, snap.Loads["load_011"].Status)
	assert.Empty(t, snap.Trips["trip_001"].FollowUpLoadID)
}

func TestSearchOpportunitiesCapsAtTopM(t *testing.T) {
	m, store := fixture(t, &advisor.Scripted{})
	m.topM = 2

	jaipur := location(t, 26.9124, 75.7873, "Jaipur")
	delhi := location(t, 28.6139, 77.2090, "Delhi")
	for _, id := range []string{"load_010", "load_011", "load_012", "load_013"} {
		postLoad(t, store, id, jaipur, delhi, 270, 60)
	}

	snap := store.Snapshot()
	opps := m.searchOpportunities(snap, snap.Trips["trip_001"], routeStart)
	assert.Len(t, opps, 2)
}

func TestAssessSumsDelaysAndFlagsVehicle(t *testing.T) {
	m, store := fixture(t, &advisor.Scripted{})
	reportTraffic(store, "truck_001", 30)
	reportTraffic(store, "truck_001", 25)
	reportTraffic(store, "truck_099", 60) // different vehicle, ignored

	require.NoError(t, store.UpdateVehicle("truck_001", func(v *fleet.Vehicle) error {
		v.FuelLevelPercent = 12
		v.MaxDrivingHoursRemaining = 1.5
		return nil
	}))

	snap := store.Snapshot()
	s, seq := m.assess(snap, snap.Trips["trip_001"])

	assert.Equal(t, 55.0, s.DelayMinutes)
	assert.True(t, s.FuelLow)
	assert.True(t, s.HoursLow)
	assert.Len(t, s.Alerts, 2)
	assert.Equal(t, uint64(2), seq, "highest consumed alert sequence")
}

func TestAssessSkipsAlertsBelowDisruptionMark(t *testing.T) {
	m, store := fixture(t, &advisor.Scripted{})
	reportTraffic(store, "truck_001", 30)
	reportTraffic(store, "truck_001", 25)

	require.NoError(t, store.UpdateTrip("trip_001", func(tr *trip.Trip) error {
		tr.DisruptionSeq = 1
		return nil
	}))

	snap := store.Snapshot()
	s, seq := m.assess(snap, snap.Trips["trip_001"])

	assert.Equal(t, 25.0, s.DelayMinutes, "first alert already consumed")
	assert.Len(t, s.Alerts, 1)
	assert.Equal(t, uint64(2), seq)
}

func TestRunFoldsEachAlertIntoDelayOnlyOnce(t *testing.T) {
	adv := &advisor.Scripted{Responses: []string{
		"DECISION: ADJUST_ROUTE\nREASONING: Reroute around the accident.",
		"DECISION: ADJUST_ROUTE\nREASONING: Still congested.",
	}}
	m, store := fixture(t, adv)
	reportTraffic(store, "truck_001", 90)

	decisions := m.Run(context.Background())
	require.Len(t, decisions, 1)
	assert.Equal(t, 90.0, decisions[0].Situation.DelayMinutes)
	assert.Equal(t, 90.0, store.Snapshot().Trips["trip_001"].DelayMinutes)

	// the alert stays in the ring, but a second pass must not re-fold it
	decisions = m.Run(context.Background())
	require.Len(t, decisions, 1)
	assert.Equal(t, 0.0, decisions[0].Situation.DelayMinutes)
	assert.Equal(t, 90.0, store.Snapshot().Trips["trip_001"].DelayMinutes)
}

func TestRunPromptDescribesSituation(t *testing.T) {
	adv := &advisor.Scripted{Responses: []string{"DECISION: CONTINUE"}}
	m, store := fixture(t, adv)
	reportTraffic(store, "truck_001", 45)

	jaipur := location(t, 26.9124, 75.7873, "Jaipur")
	delhi := location(t, 28.6139, 77.2090, "Delhi")
	postLoad(t, store, "load_002", jaipur, delhi, 270, 60)

	m.Run(context.Background())

	require.Len(t, adv.Prompts, 1)
	assert.Contains(t, adv.Prompts[0].System, "logistics operations manager")
	user := adv.Prompts[0].User
	assert.Contains(t, user, "TRUCK IN MOTION")
	assert.Contains(t, user, "truck_001")
	assert.Contains(t, user, "Accumulated delay: 45 minutes")
	assert.Contains(t, user, "Accident on NH48")
	assert.Contains(t, user, "load_002")
	assert.Contains(t, user, "DECISION: [CONTINUE / FOLLOW_UP_LOAD / ADJUST_ROUTE]")
}

func TestRunSkipsTripsOutsideMovingPhases(t *testing.T) {
	adv := &advisor.Scripted{Responses: []string{"DECISION: CONTINUE"}}
	m, store := fixture(t, adv)
	require.NoError(t, store.UpdateTrip("trip_001", func(tr *trip.Trip) error {
		return tr.Advance(trip.PhaseUnloading, routeStart)
	}))

	decisions := m.Run(context.Background())

	assert.Empty(t, decisions)
	assert.Empty(t, adv.Prompts)
}

func TestParseDecision(t *testing.T) {
	cases := []struct {
		name     string
		text     string
		want     Decision
		wantLoad string
		ok       bool
	}{
		{"continue", "DECISION: CONTINUE\nREASONING: all fine", DecisionContinue, "", true},
		{"adjust", "decision: adjust_route", DecisionAdjustRoute, "", true},
		{"follow up with load", "DECISION: FOLLOW_UP_LOAD\nSelected Load: load_042", DecisionFollowUpLoad, "load_042", true},
		{"detour alias", "DECISION: DETOUR_FOR_LOAD\nSelected Load: LOAD_007", DecisionFollowUpLoad, "load_007", true},
		{"bracketed verdict", "DECISION: [ADJUST_ROUTE]", DecisionAdjustRoute, "", true},
		{"no verdict line", "I think we should keep driving.", DecisionContinue, "", false},
		{"unknown verdict", "DECISION: TELEPORT", DecisionContinue, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, loadID, ok := ParseDecision(tc.text)
			assert.Equal(t, tc.want, d)
			assert.Equal(t, tc.wantLoad, loadID)
			assert.Equal(t, tc.ok, ok)
		})
	}
}
