// Package monitor implements the observer agent: it ingests external
// signals, folds them into the store, and raises triggers that let the
// dispatch loop run the matcher or adapter ahead of schedule.
package monitor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/andrescamacho/fleetdispatch-go/internal/domain/event"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/fleet"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/freight"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/shared"
	"github.com/andrescamacho/fleetdispatch-go/internal/state"
)

const (
	// DefaultIdleTimeout is how long a vehicle may sit idle before the
	// matcher is asked to run early.
	DefaultIdleTimeout = 30 * time.Minute

	// DefaultNearDeliveryProgress marks a trip as almost done, prompting
	// an early adapter run to look for follow-up loads.
	DefaultNearDeliveryProgress = 90.0

	// DefaultHighPriorityRate is the per-km rate above which a freshly
	// posted load is worth an immediate matcher run.
	DefaultHighPriorityRate = 65.0

	// fuelLowPercent is the threshold below which the observer raises a
	// fuel_low event for a vehicle.
	fuelLowPercent = 15.0
)

// TriggerKind names the out-of-schedule runs the observer can request.
type TriggerKind string

const (
	TriggerIdleTimeout      TriggerKind = "idle_timeout"
	TriggerNearDelivery     TriggerKind = "near_delivery"
	TriggerHighPriorityLoad TriggerKind = "high_priority_load_posted"
	TriggerTrafficEvent     TriggerKind = "traffic_event"
)

// Trigger is an internal marker consumed by the dispatch loop.
type Trigger struct {
	Kind      TriggerKind
	VehicleID string
	LoadID    string
	TripID    string
}

// Signals is one batch of external input: raw events plus any new loads to
// insert into the board.
type Signals struct {
	Events   []event.Event
	NewLoads []*freight.Load
}

// SignalSource feeds the observer. Production wires a live stream; tests
// and the simulation wire the stochastic generator.
type SignalSource interface {
	Collect(snapshot *state.Snapshot, now time.Time) (*Signals, error)
}

// Observer folds signals into the store each cycle.
type Observer struct {
	store  *state.Store
	source SignalSource
	clock  shared.Clock
	logger *zap.Logger

	idleTimeout      time.Duration
	nearDeliveryPct  float64
	highPriorityRate float64
}

// NewObserver creates an observer over the store and signal source.
func NewObserver(store *state.Store, source SignalSource, clock shared.Clock, logger *zap.Logger) *Observer {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Observer{
		store:            store,
		source:           source,
		clock:            clock,
		logger:           logger,
		idleTimeout:      DefaultIdleTimeout,
		nearDeliveryPct:  DefaultNearDeliveryProgress,
		highPriorityRate: DefaultHighPriorityRate,
	}
}

// SetThresholds overrides the trigger thresholds. Zero values keep defaults.
func (o *Observer) SetThresholds(idleTimeout time.Duration, nearDeliveryPct, highPriorityRate float64) {
	if idleTimeout > 0 {
		o.idleTimeout = idleTimeout
	}
	if nearDeliveryPct > 0 {
		o.nearDeliveryPct = nearDeliveryPct
	}
	if highPriorityRate > 0 {
		o.highPriorityRate = highPriorityRate
	}
}

// Cycle runs one observe pass: collect signals, fold them into the store,
// accrue idle time, and compute triggers. Signal failures are swallowed
// into an internal_error event so the cycle always completes.
func (o *Observer) Cycle(ctx context.Context) ([]event.Event, []Trigger) {
	now := o.clock.Now()
	snapshot := o.store.Snapshot()

	var events []event.Event
	var triggers []Trigger

	signals, err := o.collect(snapshot, now)
	if err != nil {
		o.logger.Warn("signal ingestion failed", zap.Error(err))
		events = append(events, event.New(now, event.InternalError{
			Component: "observer",
			Message:   err.Error(),
		}))
		signals = &Signals{}
	}

	for _, l := range signals.NewLoads {
		if err := o.store.InsertLoad(l); err != nil {
			o.logger.Warn("load insert skipped", zap.String("load_id", l.ID), zap.Error(err))
			continue
		}
		events = append(events,
			event.New(now, event.LoadPosted{
				LoadID:      l.ID,
				Origin:      l.Origin.Name,
				Destination: l.Destination.Name,
				WeightTons:  l.WeightTons,
				RatePerKm:   l.OfferedRatePerKm,
			}),
			event.New(now, event.NewLoadPosted{LoadID: l.ID}),
		)
		if l.OfferedRatePerKm >= o.highPriorityRate {
			triggers = append(triggers, Trigger{Kind: TriggerHighPriorityLoad, LoadID: l.ID})
		}
	}

	for _, e := range signals.Events {
		events = append(events, e)
		switch p := e.Payload.(type) {
		case event.VehiclePositionUpdate:
			o.applyPosition(p, e.Timestamp)
		case event.TrafficAlert:
			if p.VehicleID != "" {
				triggers = append(triggers, Trigger{Kind: TriggerTrafficEvent, VehicleID: p.VehicleID})
			}
		}
	}

	events = append(events, o.accrueIdleAndInspect(snapshot, now, &triggers)...)

	for _, t := range snapshot.ActiveTrips() {
		if t.ProgressPercent >= o.nearDeliveryPct {
			triggers = append(triggers, Trigger{Kind: TriggerNearDelivery, TripID: t.ID, VehicleID: t.VehicleID})
		}
	}

	o.expireStaleLoads(snapshot, now)
	o.store.ApplyEvents(events)
	return events, triggers
}

func (o *Observer) collect(snapshot *state.Snapshot, now time.Time) (s *Signals, err error) {
	defer func() {
		if r := recover(); r != nil {
			s, err = nil, shared.NewUnavailable(fmt.Sprintf("signal source panic: %v", r), nil)
		}
	}()
	return o.source.Collect(snapshot, now)
}

// applyPosition moves a vehicle to its reported GPS fix.
func (o *Observer) applyPosition(p event.VehiclePositionUpdate, at time.Time) {
	err := o.store.UpdateVehicle(p.VehicleID, func(v *fleet.Vehicle) error {
		loc, err := shared.NewLocation(p.Lat, p.Lng, v.CurrentLocation.Name)
		if err != nil {
			return err
		}
		v.CurrentLocation = loc
		v.LastUpdatedAt = at
		return nil
	})
	if err != nil {
		o.logger.Warn("position update dropped", zap.String("vehicle_id", p.VehicleID), zap.Error(err))
	}
}

// accrueIdleAndInspect advances idle counters for parked vehicles and
// raises idle_timeout triggers and fuel_low events.
func (o *Observer) accrueIdleAndInspect(snapshot *state.Snapshot, now time.Time, triggers *[]Trigger) []event.Event {
	var events []event.Event

	ids := make([]string, 0, len(snapshot.Vehicles))
	for id := range snapshot.Vehicles {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		v := snapshot.Vehicles[id]
		if v.Status == fleet.StatusIdle {
			err := o.store.UpdateVehicle(id, func(cur *fleet.Vehicle) error {
				if !cur.LastUpdatedAt.IsZero() && now.After(cur.LastUpdatedAt) {
					cur.IdleMinutesToday += now.Sub(cur.LastUpdatedAt).Minutes()
				}
				cur.LastUpdatedAt = now
				return nil
			})
			if err != nil {
				continue
			}
			if v.IdleMinutesToday >= o.idleTimeout.Minutes() && v.Available() {
				*triggers = append(*triggers, Trigger{Kind: TriggerIdleTimeout, VehicleID: v.ID})
			}
		}

		if v.FuelLevelPercent < fuelLowPercent {
			events = append(events, event.New(now, event.FuelLow{
				VehicleID: v.ID,
				Percent:   v.FuelLevelPercent,
			}))
		}
	}
	return events
}

// expireStaleLoads marks available loads whose pickup window has closed.
func (o *Observer) expireStaleLoads(snapshot *state.Snapshot, now time.Time) {
	for _, l := range snapshot.Loads {
		if l.Status != freight.StatusAvailable || !l.Expired(now) {
			continue
		}
		id := l.ID
		err := o.store.UpdateLoad(id, func(cur *freight.Load) error {
			if cur.Status != freight.StatusAvailable {
				return nil
			}
			return cur.Transition(freight.StatusExpired)
		})
		if err != nil {
			o.logger.Warn("load expiry skipped", zap.String("load_id", id), zap.Error(err))
		}
	}
}
