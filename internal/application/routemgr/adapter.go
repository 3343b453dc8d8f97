// Package routemgr implements the adaptive route manager: for every truck
// already on the road it weighs disturbances against nearby opportunities
// and decides to continue, adjust the route, or line up a follow-up load.
package routemgr

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/andrescamacho/fleetdispatch-go/internal/adapters/advisor"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/event"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/freight"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/shared"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/trip"
	"github.com/andrescamacho/fleetdispatch-go/internal/state"
	"github.com/andrescamacho/fleetdispatch-go/pkg/geo"
)

// Decision is the adapter's verdict for one in-flight trip.
type Decision string

const (
	DecisionContinue     Decision = "CONTINUE"
	DecisionAdjustRoute  Decision = "ADJUST_ROUTE"
	DecisionFollowUpLoad Decision = "FOLLOW_UP_LOAD"
)

const (
	// DefaultDetourBudgetKm bounds how far off the delivery destination a
	// follow-up pickup may lie.
	DefaultDetourBudgetKm = 100.0

	// DefaultTopOpportunities caps the opportunity list shown to the advisor.
	DefaultTopOpportunities = 5

	// fallback rule thresholds
	fallbackDelayMinutes   = 60.0
	fallbackFollowUpMargin = 0.20

	// fuel and hours levels that count as disturbances
	lowFuelPercent = 20.0
	lowHoursLeft   = 2.0

	fuelCostPerKm = 2.5

	advisorTimeout = 20 * time.Second
)

// Situation summarizes the disturbances affecting one trip.
type Situation struct {
	DelayMinutes float64  `json:"delay_minutes"`
	FuelLow      bool     `json:"fuel_low"`
	HoursLow     bool     `json:"hours_low"`
	Alerts       []string `json:"alerts,omitempty"`
}

// Opportunity is a candidate follow-up load near the trip's destination.
type Opportunity struct {
	LoadID          string  `json:"load_id"`
	LoadOrigin      string  `json:"load_origin"`
	LoadDestination string  `json:"load_destination"`
	DetourKm        float64 `json:"detour_km"`
	NewDeliveryKm   float64 `json:"new_delivery_km"`
	Revenue         float64 `json:"revenue"`
	Cost            float64 `json:"cost"`
	Profit          float64 `json:"profit"`
	ProfitMargin    float64 `json:"profit_margin"`
	WeightTons      float64 `json:"weight_tons"`
}

// TripDecision reports the outcome for one trip.
type TripDecision struct {
	TripID             string    `json:"trip_id"`
	VehicleID          string    `json:"vehicle_id"`
	Decision           Decision  `json:"decision"`
	FollowUpLoadID     string    `json:"followup_load_id,omitempty"`
	Situation          Situation `json:"situation"`
	OpportunitiesFound int       `json:"opportunities_found"`
	Reasoning          string    `json:"reasoning"`
}

// Manager is the adapter agent.
type Manager struct {
	store  *state.Store
	adv    advisor.Advisor
	clock  shared.Clock
	logger *zap.Logger

	detourBudgetKm float64
	topM           int
}

// New creates a route manager with default budgets.
func New(store *state.Store, adv advisor.Advisor, clock shared.Clock, logger *zap.Logger) *Manager {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:          store,
		adv:            adv,
		clock:          clock,
		logger:         logger,
		detourBudgetKm: DefaultDetourBudgetKm,
		topM:           DefaultTopOpportunities,
	}
}

// SetBudget overrides the opportunity search limits. Zero values keep
// defaults.
func (m *Manager) SetBudget(detourKm float64, topM int) {
	if detourKm > 0 {
		m.detourBudgetKm = detourKm
	}
	if topM > 0 {
		m.topM = topM
	}
}

// Run evaluates every trip in en_route_to_pickup or in_transit, in trip-id
// order, and applies the decisions. Any failure path defaults to CONTINUE.
func (m *Manager) Run(ctx context.Context) []TripDecision {
	snapshot := m.store.Snapshot()
	now := m.clock.Now()

	var decisions []TripDecision
	for _, t := range snapshot.ActiveTrips() {
		if t.Phase != trip.PhaseEnRouteToPickup && t.Phase != trip.PhaseInTransit {
			continue
		}
		decisions = append(decisions, m.decideTrip(ctx, snapshot, t, now))
	}
	return decisions
}

func (m *Manager) decideTrip(ctx context.Context, snapshot *state.Snapshot, t *trip.Trip, now time.Time) TripDecision {
	situation, alertSeq := m.assess(snapshot, t)
	opportunities := m.searchOpportunities(snapshot, t, now)

	decision, followUp, reasoning := m.consult(ctx, snapshot, t, situation, opportunities)

	out := TripDecision{
		TripID:             t.ID,
		VehicleID:          t.VehicleID,
		Decision:           decision,
		FollowUpLoadID:     followUp,
		Situation:          situation,
		OpportunitiesFound: len(opportunities),
		Reasoning:          reasoning,
	}
	m.apply(&out, situation, now)
	m.advanceDisruptionMark(t, alertSeq)
	return out
}

// assess builds the situation packet from the recent event ring and the
// vehicle's own condition. Alerts at or below the trip's disruption mark
// were consumed by an earlier decision and are skipped, so one alert is
// never folded into the trip twice. Returns the highest alert sequence
// consumed.
func (m *Manager) assess(snapshot *state.Snapshot, t *trip.Trip) (Situation, uint64) {
	s := Situation{}
	maxSeq := t.DisruptionSeq
	for _, e := range snapshot.Events {
		if e.Seq <= t.DisruptionSeq {
			continue
		}
		switch p := e.Payload.(type) {
		case event.TrafficAlert:
			if p.VehicleID == t.VehicleID {
				s.DelayMinutes += p.DelayMinutes
				s.Alerts = append(s.Alerts, p.Reason)
				if e.Seq > maxSeq {
					maxSeq = e.Seq
				}
			}
		case event.DeliveryDelay:
			if p.TripID == t.ID {
				s.DelayMinutes += p.DelayMinutes
				s.Alerts = append(s.Alerts, p.Reason)
				if e.Seq > maxSeq {
					maxSeq = e.Seq
				}
			}
		}
	}
	if v := snapshot.Vehicles[t.VehicleID]; v != nil {
		s.FuelLow = v.FuelLevelPercent < lowFuelPercent
		s.HoursLow = v.MaxDrivingHoursRemaining < lowHoursLeft
	}
	return s, maxSeq
}

// advanceDisruptionMark records the alerts consumed by this decision so the
// next run starts past them.
func (m *Manager) advanceDisruptionMark(t *trip.Trip, alertSeq uint64) {
	if alertSeq <= t.DisruptionSeq {
		return
	}
	err := m.store.UpdateTrip(t.ID, func(cur *trip.Trip) error {
		if alertSeq > cur.DisruptionSeq {
			cur.DisruptionSeq = alertSeq
		}
		return nil
	})
	if err != nil {
		m.logger.Warn("disruption mark update failed", zap.String("trip_id", t.ID), zap.Error(err))
	}
}

// searchOpportunities finds positive-profit follow-up loads the vehicle can
// carry whose origin lies within the detour budget of the trip's
// destination, capped at topM by profit.
func (m *Manager) searchOpportunities(snapshot *state.Snapshot, t *trip.Trip, now time.Time) []Opportunity {
	current := snapshot.Loads[t.LoadID]
	vehicle := snapshot.Vehicles[t.VehicleID]
	if current == nil || vehicle == nil {
		return nil
	}

	var out []Opportunity
	for _, l := range snapshot.AvailableLoads(now) {
		if l.WeightTons > vehicle.CapacityTons {
			continue
		}
		detourKm := geo.HaversineKm(
			current.Destination.Lat, current.Destination.Lng,
			l.Origin.Lat, l.Origin.Lng,
		)
		if detourKm > m.detourBudgetKm {
			continue
		}

		revenue := l.OfferedRatePerKm * l.DistanceKm
		cost := detourKm*fuelCostPerKm + l.DistanceKm*fuelCostPerKm
		profit := revenue - cost
		if profit <= 0 {
			continue
		}
		margin := 0.0
		if revenue > 0 {
			margin = profit / revenue
		}
		out = append(out, Opportunity{
			LoadID:          l.ID,
			LoadOrigin:      l.Origin.Name,
			LoadDestination: l.Destination.Name,
			DetourKm:        detourKm,
			NewDeliveryKm:   l.DistanceKm,
			Revenue:         revenue,
			Cost:            cost,
			Profit:          profit,
			ProfitMargin:    margin,
			WeightTons:      l.WeightTons,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Profit > out[j].Profit })
	if len(out) > m.topM {
		out = out[:m.topM]
	}
	return out
}

// consult asks the advisor for a verdict; failures and unparseable output
// degrade to the rule-based fallback.
func (m *Manager) consult(ctx context.Context, snapshot *state.Snapshot, t *trip.Trip, s Situation, opps []Opportunity) (Decision, string, string) {
	ctx, cancel := context.WithTimeout(ctx, advisorTimeout)
	defer cancel()

	response, err := m.adv.Complete(ctx, systemPrompt, m.userPrompt(snapshot, t, s, opps))
	if err != nil {
		m.logger.Warn("advisor decision failed, using rule-based fallback",
			zap.String("trip_id", t.ID), zap.Error(err))
		d, loadID := m.fallback(s, opps)
		return d, loadID, fmt.Sprintf("Advisor unavailable (%v); rule-based fallback applied.", err)
	}

	decision, loadID, ok := ParseDecision(response)
	if !ok {
		d, fallbackLoad := m.fallback(s, opps)
		return d, fallbackLoad, response
	}
	if decision == DecisionFollowUpLoad {
		if loadID == "" || !containsOpportunity(opps, loadID) {
			// advisor picked a load we never offered, stay on course
			return DecisionContinue, "", response
		}
		return decision, loadID, response
	}
	return decision, "", response
}

// fallback applies the deterministic rule: big delay plus a rich nearby
// load means follow up; any delay means adjust; otherwise continue.
func (m *Manager) fallback(s Situation, opps []Opportunity) (Decision, string) {
	if s.DelayMinutes >= fallbackDelayMinutes && len(opps) > 0 && opps[0].ProfitMargin >= fallbackFollowUpMargin {
		return DecisionFollowUpLoad, opps[0].LoadID
	}
	if s.DelayMinutes > 0 {
		return DecisionAdjustRoute, ""
	}
	return DecisionContinue, ""
}

// apply commits the decision to the store and records a route_decision
// event. Failures downgrade the decision to CONTINUE.
func (m *Manager) apply(d *TripDecision, s Situation, now time.Time) {
	switch d.Decision {
	case DecisionAdjustRoute:
		err := m.store.UpdateTrip(d.TripID, func(t *trip.Trip) error {
			t.InvalidateRoute()
			t.DelayMinutes += s.DelayMinutes
			return nil
		})
		if err != nil {
			m.logger.Warn("route adjustment failed", zap.String("trip_id", d.TripID), zap.Error(err))
			d.Decision = DecisionContinue
		}

	case DecisionFollowUpLoad:
		// claim the load first so the matcher cannot double-assign it; the
		// weight check repeats here because the load may have changed since
		// the opportunity search
		vehicle := m.store.Snapshot().Vehicles[d.VehicleID]
		err := m.store.UpdateLoad(d.FollowUpLoadID, func(l *freight.Load) error {
			if vehicle != nil && l.WeightTons > vehicle.CapacityTons {
				return shared.NewConflict(fmt.Sprintf(
					"load %s (%.1ft) exceeds vehicle %s capacity (%.1ft)",
					l.ID, l.WeightTons, vehicle.ID, vehicle.CapacityTons))
			}
			return l.Assign(d.VehicleID)
		})
		if err == nil {
			err = m.store.UpdateTrip(d.TripID, func(t *trip.Trip) error {
				t.FollowUpLoadID = d.FollowUpLoadID
				return nil
			})
			if err != nil {
				m.releaseLoad(d.FollowUpLoadID)
			}
		}
		if err != nil {
			m.logger.Warn("follow-up assignment failed",
				zap.String("trip_id", d.TripID), zap.String("load_id", d.FollowUpLoadID), zap.Error(err))
			d.Decision = DecisionContinue
			d.FollowUpLoadID = ""
		}
	}

	m.store.ApplyEvents([]event.Event{event.New(now, event.RouteDecision{
		TripID:   d.TripID,
		Decision: string(d.Decision),
		Reason:   summarize(d.Reasoning),
	})})
}

func (m *Manager) releaseLoad(id string) {
	err := m.store.UpdateLoad(id, func(l *freight.Load) error {
		l.Status = freight.StatusAvailable
		l.AssignedVehicleID = ""
		return nil
	})
	if err != nil {
		m.logger.Error("load release failed", zap.String("load_id", id), zap.Error(err))
	}
}

const systemPrompt = `You are an expert logistics operations manager making real-time decisions for trucks already on the road.

Your goal is to:
1. Ensure current delivery commitments are met
2. Minimize delays and customer impact
3. Maximize fleet utilization
4. Seize profitable new opportunities when feasible
5. Consider driver constraints (hours, fuel)

You must balance customer satisfaction with profitability.
Explain your reasoning clearly.`

func (m *Manager) userPrompt(snapshot *state.Snapshot, t *trip.Trip, s Situation, opps []Opportunity) string {
	var b strings.Builder
	b.WriteString("TRUCK IN MOTION - REAL-TIME DECISION NEEDED\n\nCurrent Trip:\n")
	fmt.Fprintf(&b, "  Vehicle: %s\n", t.VehicleID)
	fmt.Fprintf(&b, "  Load: %s\n", t.LoadID)
	fmt.Fprintf(&b, "  Phase: %s\n", t.Phase)
	fmt.Fprintf(&b, "  Progress: %.0f%%\n", t.ProgressPercent)
	fmt.Fprintf(&b, "  Distance remaining: ~%.0f km\n", (1-t.ProgressPercent/100)*t.RouteTotalKm)
	fmt.Fprintf(&b, "  Accumulated delay: %.0f minutes\n", s.DelayMinutes)

	if v := snapshot.Vehicles[t.VehicleID]; v != nil {
		b.WriteString("\nVehicle State:\n")
		fmt.Fprintf(&b, "  Fuel level: %.0f%%\n", v.FuelLevelPercent)
		fmt.Fprintf(&b, "  Hours remaining: %.1f\n", v.MaxDrivingHoursRemaining)
		fmt.Fprintf(&b, "  Current location: %s\n", v.CurrentLocation.Name)
	}

	if len(s.Alerts) > 0 {
		b.WriteString("\nALERTS:\n")
		for _, alert := range s.Alerts {
			fmt.Fprintf(&b, "  - %s\n", alert)
		}
	}

	if len(opps) > 0 {
		fmt.Fprintf(&b, "\nNEW LOAD OPPORTUNITIES DETECTED (%d):\n", len(opps))
		for i, opp := range opps {
			fmt.Fprintf(&b, "\nOpportunity %d:\n", i+1)
			fmt.Fprintf(&b, "  Load: %s\n", opp.LoadID)
			fmt.Fprintf(&b, "  Route: %s → %s\n", opp.LoadOrigin, opp.LoadDestination)
			fmt.Fprintf(&b, "  Detour from delivery: %.2f km\n", opp.DetourKm)
			fmt.Fprintf(&b, "  New delivery distance: %.2f km\n", opp.NewDeliveryKm)
			fmt.Fprintf(&b, "  Profit: rupees %.2f (margin: %.1f%%)\n", opp.Profit, opp.ProfitMargin*100)
			fmt.Fprintf(&b, "  Weight: %.1f tons\n", opp.WeightTons)
		}
	} else {
		b.WriteString("\nNo new load opportunities nearby.\n")
	}

	b.WriteString(`
DECISION REQUIRED:

Analyze this situation and decide:
1. Should we continue on current route?
2. Should we take a detour for a new load?
3. How should we handle the delays?

Respond in this format:

DECISION: [CONTINUE / FOLLOW_UP_LOAD / ADJUST_ROUTE]

IF FOLLOW_UP_LOAD:
  Selected Load: [load_id]
  Justification: [why this makes sense]

REASONING:
  [Your detailed analysis considering all factors]

If no good options exist, say:
DECISION: CONTINUE
REASONING: [explain why staying on course is best]
`)
	return b.String()
}

var (
	decisionLineRe = regexp.MustCompile(`(?im)^\s*DECISION:\s*(.+)$`)
	loadIDRe       = regexp.MustCompile(`(?i)load_\d+`)
)

// ParseDecision extracts the verdict from advisor text. It looks for a
// leading "DECISION:" token; DETOUR_FOR_LOAD is accepted as an alias for
// FOLLOW_UP_LOAD. The third return is false when no verdict was found.
func ParseDecision(text string) (Decision, string, bool) {
	match := decisionLineRe.FindStringSubmatch(text)
	if match == nil {
		return DecisionContinue, "", false
	}
	verdict := strings.ToUpper(match[1])

	switch {
	case strings.Contains(verdict, "FOLLOW_UP_LOAD"), strings.Contains(verdict, "DETOUR"):
		loadID := ""
		if m := loadIDRe.FindString(text); m != "" {
			loadID = strings.ToLower(m)
		}
		return DecisionFollowUpLoad, loadID, true
	case strings.Contains(verdict, "ADJUST"):
		return DecisionAdjustRoute, "", true
	case strings.Contains(verdict, "CONTINUE"):
		return DecisionContinue, "", true
	}
	return DecisionContinue, "", false
}

func containsOpportunity(opps []Opportunity, loadID string) bool {
	for _, o := range opps {
		if o.LoadID == loadID {
			return true
		}
	}
	return false
}

// summarize trims long advisor responses down to their first line for the
// event payload.
func summarize(reasoning string) string {
	line := strings.TrimSpace(reasoning)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	const max = 200
	if len(line) > max {
		line = line[:max]
	}
	return line
}
