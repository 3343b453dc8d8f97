// Package matcher implements the load matching agent: it enumerates
// feasible vehicle-load pairings, scores their economics, asks the advisor
// to rank the best ones, and instantiates trips for the approved set.
package matcher

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

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

// Cost model constants, in rupees and km/h.
const (
	FuelCostPerKm     = 2.5
	DriverCostPerHour = 15.0
	AssumedSpeedKmh   = 60.0
)

const (
	// DefaultMinProfitMargin and DefaultTargetUtilization are the two
	// quantitative targets embedded in the advisor prompt and enforced by
	// the rule-based fallback.
	DefaultMinProfitMargin   = 0.12
	DefaultTargetUtilization = 0.85

	// DefaultTopK caps the opportunities shown to the advisor.
	DefaultTopK = 10

	// DefaultFallbackFanOut caps matches approved by the fallback rule.
	DefaultFallbackFanOut = 3

	// advisorTimeout bounds one ranking call.
	advisorTimeout = 15 * time.Second
)

// Opportunity is one scored vehicle-load pairing.
type Opportunity struct {
	VehicleID       string  `json:"vehicle_id"`
	VehicleLocation string  `json:"vehicle_location"`
	LoadID          string  `json:"load_id"`
	LoadOrigin      string  `json:"load_origin"`
	LoadDestination string  `json:"load_destination"`
	PickupKm        float64 `json:"pickup_distance_km"`
	LoadedKm        float64 `json:"delivery_distance_km"`
	TotalKm         float64 `json:"total_distance_km"`
	Revenue         float64 `json:"revenue"`
	Cost            float64 `json:"cost"`
	Profit          float64 `json:"profit"`
	ProfitMargin    float64 `json:"profit_margin"`
	Utilization     float64 `json:"utilization"`
	TimeHours       float64 `json:"time_hours"`
}

// Pair identifies one approved vehicle-load match.
type Pair struct {
	VehicleID string `json:"vehicle_id"`
	LoadID    string `json:"load_id"`
}

// Result summarizes one matcher invocation for the REST surface.
type Result struct {
	OpportunitiesAnalyzed int           `json:"opportunities_analyzed"`
	MatchesCreated        int           `json:"matches_created"`
	ApprovedMatches       []Pair        `json:"approved_matches"`
	TripIDs               []string      `json:"trip_ids"`
	AdvisorReasoning      string        `json:"advisor_reasoning"`
	Opportunities         []Opportunity `json:"opportunities,omitempty"`
}

// Matcher pairs idle vehicles with available loads.
type Matcher struct {
	store   *state.Store
	planner routing.Planner
	adv     advisor.Advisor
	clock   shared.Clock
	logger  *zap.Logger

	minMargin   float64
	targetUtil  float64
	topK        int
	fallbackFan int
}

// New creates a matcher with default targets.
func New(store *state.Store, planner routing.Planner, adv advisor.Advisor, clock shared.Clock, logger *zap.Logger) *Matcher {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{
		store:       store,
		planner:     planner,
		adv:         adv,
		clock:       clock,
		logger:      logger,
		minMargin:   DefaultMinProfitMargin,
		targetUtil:  DefaultTargetUtilization,
		topK:        DefaultTopK,
		fallbackFan: DefaultFallbackFanOut,
	}
}

// SetTargets overrides the match quality targets. Zero values keep defaults.
func (m *Matcher) SetTargets(minMargin, targetUtil float64, topK, fallbackFan int) {
	if minMargin > 0 {
		m.minMargin = minMargin
	}
	if targetUtil > 0 {
		m.targetUtil = targetUtil
	}
	if topK > 0 {
		m.topK = topK
	}
	if fallbackFan > 0 {
		m.fallbackFan = fallbackFan
	}
}

// Run executes one full match pass: enumerate, rank, parse, commit.
func (m *Matcher) Run(ctx context.Context) *Result {
	now := m.clock.Now()
	snapshot := m.store.Snapshot()

	opportunities := m.enumerate(snapshot, now)
	result := &Result{
		OpportunitiesAnalyzed: len(opportunities),
		ApprovedMatches:       []Pair{},
		TripIDs:               []string{},
		Opportunities:         opportunities,
	}
	if len(opportunities) == 0 {
		result.AdvisorReasoning = "No matching opportunities available."
		return result
	}

	top := opportunities
	if len(top) > m.topK {
		top = top[:m.topK]
	}

	approved, reasoning := m.rank(ctx, snapshot, top)
	result.AdvisorReasoning = reasoning

	committed := m.commit(snapshot, dedupe(approved), opportunities, now, result)
	result.MatchesCreated = committed
	return result
}

// enumerate builds a scored opportunity per feasible pairing, sorted by
// profit margin descending.
func (m *Matcher) enumerate(snapshot *state.Snapshot, now time.Time) []Opportunity {
	vehicles := snapshot.AvailableVehicles()
	loads := snapshot.AvailableLoads(now)

	var out []Opportunity
	for _, v := range vehicles {
		for _, l := range loads {
			if l.WeightTons > v.CapacityTons {
				continue
			}
			out = append(out, Score(v, l))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ProfitMargin > out[j].ProfitMargin })
	return out
}

// Score computes the economics of sending the vehicle to carry the load:
// great-circle pickup leg, the load's own loaded distance, fuel plus driver
// cost at the assumed average speed.
func Score(v *fleet.Vehicle, l *freight.Load) Opportunity {
	pickupKm := geo.HaversineKm(v.CurrentLocation.Lat, v.CurrentLocation.Lng, l.Origin.Lat, l.Origin.Lng)
	loadedKm := l.DistanceKm
	totalKm := pickupKm + loadedKm

	revenue := l.OfferedRatePerKm * loadedKm
	timeHours := totalKm / AssumedSpeedKmh
	cost := totalKm*FuelCostPerKm + timeHours*DriverCostPerHour
	profit := revenue - cost

	margin := 0.0
	if revenue > 0 {
		margin = profit / revenue
	}
	utilization := 0.0
	if totalKm > 0 {
		utilization = loadedKm / totalKm
	}

	return Opportunity{
		VehicleID:       v.ID,
		VehicleLocation: v.CurrentLocation.Name,
		LoadID:          l.ID,
		LoadOrigin:      l.Origin.Name,
		LoadDestination: l.Destination.Name,
		PickupKm:        pickupKm,
		LoadedKm:        loadedKm,
		TotalKm:         totalKm,
		Revenue:         revenue,
		Cost:            cost,
		Profit:          profit,
		ProfitMargin:    margin,
		Utilization:     utilization,
		TimeHours:       timeHours,
	}
}

// rank asks the advisor to pick matches; on failure it falls back to the
// rule of approving top pairs that meet both targets.
func (m *Matcher) rank(ctx context.Context, snapshot *state.Snapshot, top []Opportunity) ([]Pair, string) {
	ctx, cancel := context.WithTimeout(ctx, advisorTimeout)
	defer cancel()

	response, err := m.adv.Complete(ctx, m.systemPrompt(), m.userPrompt(snapshot, top))
	if err != nil {
		m.logger.Warn("advisor ranking failed, using rule-based fallback", zap.Error(err))
		return m.fallback(top), fmt.Sprintf("Advisor unavailable (%v); rule-based fallback applied.", err)
	}
	return ParseApprovedMatches(response), response
}

// fallback approves the top-scoring pairs that meet both quantitative
// targets, up to the configured fan-out.
func (m *Matcher) fallback(top []Opportunity) []Pair {
	var pairs []Pair
	for _, opp := range top {
		if opp.ProfitMargin >= m.minMargin && opp.Utilization >= m.targetUtil {
			pairs = append(pairs, Pair{VehicleID: opp.VehicleID, LoadID: opp.LoadID})
			if len(pairs) >= m.fallbackFan {
				break
			}
		}
	}
	return pairs
}

func (m *Matcher) systemPrompt() string {
	return fmt.Sprintf(`You are an expert logistics dispatcher managing a fleet of trucks.

Your goal is to maximize:
1. Profitability (profit margin > %.2f)
2. Fleet utilization (loaded km / total km > %.2f)
3. Minimize empty returns (pickup distance should be reasonable)
4. Meet delivery deadlines

Analyze the vehicle-load matching opportunities and recommend the BEST matches.
Consider not just immediate profit, but strategic positioning for future loads.

CRITICAL RULES:
- Each vehicle can only be matched to ONE load
- Each load can only be matched to ONE vehicle
- Prioritize profitability but balance with utilization
- Avoid matches where pickup distance > 50%% of delivery distance (poor utilization)
- Consider driver constraints (hours remaining, fuel)
`, m.minMargin, m.targetUtil)
}

func (m *Matcher) userPrompt(snapshot *state.Snapshot, top []Opportunity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "MATCHING OPPORTUNITIES (Top %d):\n\n", len(top))
	for i, opp := range top {
		fmt.Fprintf(&b, "Opportunity %d:\n", i+1)
		fmt.Fprintf(&b, "  Vehicle: %s at %s\n", opp.VehicleID, opp.VehicleLocation)
		fmt.Fprintf(&b, "  Load: %s (%s → %s)\n", opp.LoadID, opp.LoadOrigin, opp.LoadDestination)
		fmt.Fprintf(&b, "  Metrics: Profit rupees %.2f (%.0f%%), Util %.0f%%, Distance %.2fkm\n",
			opp.Profit, opp.ProfitMargin*100, opp.Utilization*100, opp.TotalKm)
		b.WriteString("---\n")
	}

	fmt.Fprintf(&b, "\nFleet: %d vehicles, %d available\n", len(snapshot.Vehicles), len(snapshot.AvailableVehicles()))
	fmt.Fprintf(&b, "Loads: %d available\n", len(snapshot.AvailableLoads(snapshot.SnapshotAt)))
	fmt.Fprintf(&b, `
TASK: Select the BEST 3-5 matches from the opportunities above.

Rules:
- Each vehicle can only match ONE load
- Each load can only match ONE vehicle
- Prioritize profit margin > %.0f%% and utilization > %.0f%%

Respond EXACTLY like this:

APPROVED MATCHES:
- Vehicle v1 → Load l3: [one sentence why]
- Vehicle v2 → Load l5: [one sentence why]

REASONING:
[2-3 sentences on strategy]

If no good matches: say "APPROVED MATCHES: None" and explain why.
`, m.minMargin*100, m.targetUtil*100)
	return b.String()
}

// dedupe walks pairs in order, keeping each vehicle and load at most once.
func dedupe(pairs []Pair) []Pair {
	seenVehicle := make(map[string]bool)
	seenLoad := make(map[string]bool)
	var out []Pair
	for _, p := range pairs {
		if seenVehicle[p.VehicleID] || seenLoad[p.LoadID] {
			continue
		}
		seenVehicle[p.VehicleID] = true
		seenLoad[p.LoadID] = true
		out = append(out, p)
	}
	return out
}

// commit instantiates a trip per approved pair. Each pair is applied
// atomically: a failure at any step rolls the earlier steps back so no
// partial trip is left in the store.
func (m *Matcher) commit(snapshot *state.Snapshot, pairs []Pair, opportunities []Opportunity, now time.Time, result *Result) int {
	byPair := make(map[Pair]Opportunity, len(opportunities))
	for _, opp := range opportunities {
		byPair[Pair{VehicleID: opp.VehicleID, LoadID: opp.LoadID}] = opp
	}

	created := 0
	for _, p := range pairs {
		opp, ok := byPair[p]
		if !ok {
			m.logger.Warn("advisor approved unknown pair",
				zap.String("vehicle_id", p.VehicleID), zap.String("load_id", p.LoadID))
			continue
		}
		if err := m.createTrip(snapshot, opp, now, result); err != nil {
			m.logger.Warn("match skipped",
				zap.String("vehicle_id", p.VehicleID), zap.String("load_id", p.LoadID), zap.Error(err))
			continue
		}
		result.ApprovedMatches = append(result.ApprovedMatches, p)
		created++
	}
	return created
}

func (m *Matcher) createTrip(snapshot *state.Snapshot, opp Opportunity, now time.Time, result *Result) error {
	v := snapshot.Vehicles[opp.VehicleID]
	l := snapshot.Loads[opp.LoadID]
	if v == nil || l == nil {
		return shared.NewNotFound("pair", opp.VehicleID+"/"+opp.LoadID)
	}

	t, err := trip.New(shared.NewID("trip"), opp.VehicleID, opp.LoadID, now)
	if err != nil {
		return err
	}
	t.PickupLegKm = opp.PickupKm
	t.LoadedLegKm = opp.LoadedKm
	t.EstimatedRevenue = opp.Revenue
	t.EstimatedCost = opp.Cost
	t.EstimatedProfit = opp.Profit

	route, totalKm := m.planRoute(v, l, opp)
	t.SetRoute(route.Points, totalKm, route.Fallback)

	if err := m.store.InsertTrip(t); err != nil {
		return err
	}
	if err := m.store.UpdateLoad(opp.LoadID, func(cur *freight.Load) error {
		return cur.Assign(opp.VehicleID)
	}); err != nil {
		m.rollbackTrip(t.ID)
		return err
	}
	if err := m.store.UpdateVehicle(opp.VehicleID, func(cur *fleet.Vehicle) error {
		if cur.Status != fleet.StatusIdle {
			return shared.NewConflict(fmt.Sprintf("vehicle %s is %s, not idle", cur.ID, cur.Status))
		}
		if opp.PickupKm > 0 {
			cur.Status = fleet.StatusEnRouteEmpty
		} else {
			cur.Status = fleet.StatusEnRouteLoaded
		}
		cur.IdleMinutesToday = 0
		return nil
	}); err != nil {
		m.rollbackLoad(opp.LoadID)
		m.rollbackTrip(t.ID)
		return err
	}

	m.store.ApplyEvents([]event.Event{
		event.New(now, event.LoadMatched{LoadID: opp.LoadID, VehicleID: opp.VehicleID}),
		event.New(now, event.TripStarted{TripID: t.ID, VehicleID: opp.VehicleID, LoadID: opp.LoadID}),
	})
	result.TripIDs = append(result.TripIDs, t.ID)
	return nil
}

// planRoute concatenates the pickup leg and the loaded leg into one
// polyline for the motion engine.
func (m *Matcher) planRoute(v *fleet.Vehicle, l *freight.Load, opp Opportunity) (*routing.Route, float64) {
	loaded := m.planner.PlanRoute(context.Background(), l.Origin, l.Destination)
	if opp.PickupKm <= 0 {
		return loaded, loaded.DistanceKm
	}

	pickup := m.planner.PlanRoute(context.Background(), v.CurrentLocation, l.Origin)
	points := make(geo.Polyline, 0, len(pickup.Points)+len(loaded.Points))
	points = append(points, pickup.Points...)
	points = append(points, loaded.Points...)
	return &routing.Route{
		Points:        points,
		DistanceKm:    pickup.DistanceKm + loaded.DistanceKm,
		DurationHours: pickup.DurationHours + loaded.DurationHours,
		Fallback:      pickup.Fallback || loaded.Fallback,
	}, pickup.DistanceKm + loaded.DistanceKm
}

func (m *Matcher) rollbackTrip(id string) {
	if err := m.store.RemoveTrip(id); err != nil {
		m.logger.Error("trip rollback failed", zap.String("trip_id", id), zap.Error(err))
	}
}

func (m *Matcher) rollbackLoad(id string) {
	err := m.store.UpdateLoad(id, func(cur *freight.Load) error {
		cur.Status = freight.StatusAvailable
		cur.AssignedVehicleID = ""
		return nil
	})
	if err != nil {
		m.logger.Error("load rollback failed", zap.String("load_id", id), zap.Error(err))
	}
}
