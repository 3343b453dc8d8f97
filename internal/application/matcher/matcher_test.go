package matcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/fleetdispatch-go/internal/adapters/advisor"
	"github.com/andrescamacho/fleetdispatch-go/internal/adapters/routing"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/event"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/fleet"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/freight"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/shared"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/trip"
	"github.com/andrescamacho/fleetdispatch-go/internal/state"
	"github.com/andrescamacho/fleetdispatch-go/pkg/geo"
)

var matchStart = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

// stubPlanner synthesizes straight-line routes without network access.
type stubPlanner struct{}

func (stubPlanner) PlanRoute(ctx context.Context, from, to shared.Location) *routing.Route {
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

func vehicleAt(t *testing.T, id string, loc shared.Location) *fleet.Vehicle {
	t.Helper()
	v, err := fleet.NewVehicle(id, "driver_"+id, loc, 25)
	require.NoError(t, err)
	return v
}

func loadBetween(t *testing.T, id string, origin, dest shared.Location, distanceKm, rate float64) *freight.Load {
	t.Helper()
	l, err := freight.NewLoad(id, origin, dest, 10, distanceKm, rate)
	require.NoError(t, err)
	l.PickupWindowStart = matchStart
	l.PickupWindowEnd = matchStart.Add(4 * time.Hour)
	l.DeliveryDeadline = matchStart.Add(24 * time.Hour)
	return l
}

func matcherFixture(t *testing.T, adv advisor.Advisor) (*Matcher, *state.Store) {
	t.Helper()
	clock := shared.NewMockClock(matchStart)
	store := state.NewStore(0, clock)
	return New(store, stubPlanner{}, adv, clock, nil), store
}

func seedPair(t *testing.T, store *state.Store) {
	t.Helper()
	delhi := location(t, 28.6139, 77.2090, "Delhi")
	jaipur := location(t, 26.9124, 75.7873, "Jaipur")
	require.NoError(t, store.InsertVehicle(vehicleAt(t, "truck_001", delhi)))
	require.NoError(t, store.InsertLoad(loadBetween(t, "load_001", delhi, jaipur, 270, 60)))
}

func TestScoreComputesEconomics(t *testing.T) {
	delhi := location(t, 28.6139, 77.2090, "Delhi")
	jaipur := location(t, 26.9124, 75.7873, "Jaipur")
	v := vehicleAt(t, "truck_001", delhi)
	l := loadBetween(t, "load_001", delhi, jaipur, 270, 60)

	opp := Score(v, l)

	assert.InDelta(t, 0, opp.PickupKm, 0.01, "vehicle already at origin")
	assert.Equal(t, 270.0, opp.LoadedKm)
	assert.InDelta(t, 270*60.0, opp.Revenue, 0.01)

	wantCost := 270*FuelCostPerKm + (270/AssumedSpeedKmh)*DriverCostPerHour
	assert.InDelta(t, wantCost, opp.Cost, 0.01)
	assert.InDelta(t, (opp.Revenue-wantCost)/opp.Revenue, opp.ProfitMargin, 1e-9)
	assert.InDelta(t, 1.0, opp.Utilization, 1e-9)
}

func TestRunCreatesTripFromAdvisorApproval(t *testing.T) {
	adv := &advisor.Scripted{Responses: []string{
		"APPROVED MATCHES:\n- Vehicle truck_001 → Load load_001: at origin already\n\nREASONING:\nPerfect utilization.",
	}}
	m, store := matcherFixture(t, adv)
	seedPair(t, store)

	result := m.Run(context.Background())

	assert.Equal(t, 1, result.OpportunitiesAnalyzed)
	assert.Equal(t, 1, result.MatchesCreated)
	require.Len(t, result.TripIDs, 1)

	snap := store.Snapshot()
	tr := snap.Trips[result.TripIDs[0]]
	require.NotNil(t, tr)
	assert.Equal(t, trip.PhasePlanning, tr.Phase)
	assert.Equal(t, "truck_001", tr.VehicleID)
	assert.NotEmpty(t, tr.Route)
	assert.Greater(t, tr.EstimatedProfit, 0.0)

	assert.Equal(t, freight.StatusMatched, snap.Loads["load_001"].Status)
	assert.Equal(t, "truck_001", snap.Loads["load_001"].AssignedVehicleID)
	// pickup leg is zero-length, vehicle goes straight to loaded
	assert.Equal(t, fleet.StatusEnRouteLoaded, snap.Vehicles["truck_001"].Status)

	types := make([]event.Type, 0, len(snap.Events))
	for _, e := range snap.Events {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, event.TypeLoadMatched)
	assert.Contains(t, types, event.TypeTripStarted)
}

func TestRunFallsBackWhenAdvisorFails(t *testing.T) {
	adv := &advisor.Scripted{Err: shared.NewUnavailable("advisor down", nil)}
	m, store := matcherFixture(t, adv)
	seedPair(t, store)

	result := m.Run(context.Background())

	// the pair has margin well above 12% and utilization 100%
	assert.Equal(t, 1, result.MatchesCreated)
	assert.Contains(t, result.AdvisorReasoning, "fallback")
}

func TestFallbackRespectsTargets(t *testing.T) {
	adv := &advisor.Scripted{Err: shared.NewUnavailable("advisor down", nil)}
	m, store := matcherFixture(t, adv)

	// vehicle far from the load origin: poor utilization, fallback must skip
	mumbai := location(t, 19.0760, 72.8777, "Mumbai")
	delhi := location(t, 28.6139, 77.2090, "Delhi")
	jaipur := location(t, 26.9124, 75.7873, "Jaipur")
	require.NoError(t, store.InsertVehicle(vehicleAt(t, "truck_001", mumbai)))
	require.NoError(t, store.InsertLoad(loadBetween(t, "load_001", delhi, jaipur, 270, 60)))

	result := m.Run(context.Background())

	assert.Equal(t, 1, result.OpportunitiesAnalyzed)
	assert.Equal(t, 0, result.MatchesCreated)
}

func TestRunEnforcesUniquenessAcrossApprovals(t *testing.T) {
	adv := &advisor.Scripted{Responses: []string{
		"APPROVED MATCHES:\n" +
			"- Vehicle truck_001 → Load load_001: best margin\n" +
			"- Vehicle truck_001 → Load load_002: same vehicle again\n",
	}}
	m, store := matcherFixture(t, adv)

	delhi := location(t, 28.6139, 77.2090, "Delhi")
	jaipur := location(t, 26.9124, 75.7873, "Jaipur")
	lucknow := location(t, 26.8467, 80.9462, "Lucknow")
	require.NoError(t, store.InsertVehicle(vehicleAt(t, "truck_001", delhi)))
	require.NoError(t, store.InsertLoad(loadBetween(t, "load_001", delhi, jaipur, 270, 60)))
	require.NoError(t, store.InsertLoad(loadBetween(t, "load_002", delhi, lucknow, 470, 55)))

	result := m.Run(context.Background())

	assert.Equal(t, 1, result.MatchesCreated)
	assert.Len(t, store.Snapshot().ActiveTrips(), 1)
	assert.Equal(t, freight.StatusAvailable, store.Snapshot().Loads["load_002"].Status)
}

func TestRunSkipsOverweightAndExpiredLoads(t *testing.T) {
	adv := &advisor.Scripted{Responses: []string{"APPROVED MATCHES: None"}}
	m, store := matcherFixture(t, adv)

	delhi := location(t, 28.6139, 77.2090, "Delhi")
	jaipur := location(t, 26.9124, 75.7873, "Jaipur")
	require.NoError(t, store.InsertVehicle(vehicleAt(t, "truck_001", delhi)))

	heavy := loadBetween(t, "load_001", delhi, jaipur, 270, 60)
	heavy.WeightTons = 30
	require.NoError(t, store.InsertLoad(heavy))

	stale := loadBetween(t, "load_002", delhi, jaipur, 270, 60)
	stale.PickupWindowEnd = matchStart.Add(-time.Hour)
	require.NoError(t, store.InsertLoad(stale))

	result := m.Run(context.Background())
	assert.Equal(t, 0, result.OpportunitiesAnalyzed)
}

func TestRunWithNoOpportunities(t *testing.T) {
	adv := &advisor.Scripted{}
	m, _ := matcherFixture(t, adv)

	result := m.Run(context.Background())

	assert.Equal(t, 0, result.OpportunitiesAnalyzed)
	assert.Equal(t, 0, result.MatchesCreated)
	assert.Empty(t, adv.Prompts, "advisor is not consulted without opportunities")
}

func TestRunPromptEmbedsMetricsAndTargets(t *testing.T) {
	adv := &advisor.Scripted{Responses: []string{"APPROVED MATCHES: None"}}
	m, store := matcherFixture(t, adv)
	seedPair(t, store)

	m.Run(context.Background())

	require.Len(t, adv.Prompts, 1)
	assert.Contains(t, adv.Prompts[0].System, "logistics dispatcher")
	assert.Contains(t, adv.Prompts[0].User, "truck_001")
	assert.Contains(t, adv.Prompts[0].User, "load_001")
	assert.Contains(t, adv.Prompts[0].User, "profit margin > 12%")
	assert.Contains(t, adv.Prompts[0].User, "utilization > 85%")
}

func TestParseApprovedMatches(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []Pair
	}{
		{
			name: "unicode arrow with reasons",
			text: "APPROVED MATCHES:\n- Vehicle truck_001 → Load load_003: short pickup\n- Vehicle truck_002 → Load load_005: high margin",
			want: []Pair{{"truck_001", "load_003"}, {"truck_002", "load_005"}},
		},
		{
			name: "ascii arrow and short ids",
			text: "- v1 -> l3: fine\n- vehicle_2 -> load_4",
			want: []Pair{{"v1", "l3"}, {"vehicle_2", "load_4"}},
		},
		{
			name: "mixed case",
			text: "- Vehicle TRUCK_007 → Load LOAD_009: ok",
			want: []Pair{{"TRUCK_007", "LOAD_009"}},
		},
		{
			name: "none approved",
			text: "APPROVED MATCHES: None\nNo pair meets the margin target.",
			want: nil,
		},
		{
			name: "garbage",
			text: "The weather is nice today.",
			want: nil,
		},
		{
			name: "arrow without ids",
			text: "profits → the moon",
			want: nil,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseApprovedMatches(tc.text))
		})
	}
}

func TestDedupe(t *testing.T) {
	pairs := []Pair{
		{"truck_001", "load_001"},
		{"truck_001", "load_002"},
		{"truck_002", "load_001"},
		{"truck_002", "load_003"},
	}
	assert.Equal(t, []Pair{
		{"truck_001", "load_001"},
		{"truck_002", "load_003"},
	}, dedupe(pairs))
}
