// Package state holds the authoritative in-memory view of the fleet:
// vehicles, loads, trips, and a bounded ring of recent events. All writes
// are serialized behind one lock; readers get point-in-time snapshots and
// never observe a partial write.
package state

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/andrescamacho/fleetdispatch-go/internal/domain/event"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/fleet"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/freight"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/shared"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/trip"
)

// DefaultRingSize bounds the event ring when no size is configured.
const DefaultRingSize = 500

// EventSink receives every batch of events applied to the store, after the
// write commits. Used to feed external collaborators (journal, notifiers).
type EventSink interface {
	RecordEvents(events []event.Event)
}

// Store owns the entity maps and the event ring. Construct with NewStore;
// the zero value is not usable.
type Store struct {
	mu sync.RWMutex

	vehicles map[string]*fleet.Vehicle
	loads    map[string]*freight.Load
	trips    map[string]*trip.Trip

	events   []event.Event
	ringSize int
	lastTS   time.Time
	seq      uint64

	clock shared.Clock
	sink  EventSink
}

// NewStore creates an empty store. ringSize ≤ 0 selects DefaultRingSize;
// a nil clock selects the real clock.
func NewStore(ringSize int, clock shared.Clock) *Store {
	if ringSize <= 0 {
		ringSize = DefaultRingSize
	}
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &Store{
		vehicles: make(map[string]*fleet.Vehicle),
		loads:    make(map[string]*freight.Load),
		trips:    make(map[string]*trip.Trip),
		ringSize: ringSize,
		clock:    clock,
	}
}

// SetSink installs the event sink. Call before the dispatch loop starts;
// the sink is invoked outside the store lock.
func (s *Store) SetSink(sink EventSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// Reset replaces the whole population. Used by the initialize command.
func (s *Store) Reset(vehicles []*fleet.Vehicle, loads []*freight.Load) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vehicles = make(map[string]*fleet.Vehicle, len(vehicles))
	for _, v := range vehicles {
		s.vehicles[v.ID] = v.Clone()
	}
	s.loads = make(map[string]*freight.Load, len(loads))
	for _, l := range loads {
		s.loads[l.ID] = l.Clone()
	}
	s.trips = make(map[string]*trip.Trip)
	s.events = nil
	s.lastTS = time.Time{}
	s.seq = 0
}

// InsertVehicle adds a vehicle. Conflict if the id already exists.
func (s *Store) InsertVehicle(v *fleet.Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vehicles[v.ID]; ok {
		return shared.NewConflict(fmt.Sprintf("vehicle %s already exists", v.ID))
	}
	s.vehicles[v.ID] = v.Clone()
	return nil
}

// InsertLoad adds a load. Conflict if the id already exists.
func (s *Store) InsertLoad(l *freight.Load) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.loads[l.ID]; ok {
		return shared.NewConflict(fmt.Sprintf("load %s already exists", l.ID))
	}
	s.loads[l.ID] = l.Clone()
	return nil
}

// InsertTrip adds a trip, rejecting it if the vehicle or load is already
// referenced by another active trip, or if either entity is unknown.
func (s *Store) InsertTrip(t *trip.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.trips[t.ID]; ok {
		return shared.NewConflict(fmt.Sprintf("trip %s already exists", t.ID))
	}
	if _, ok := s.vehicles[t.VehicleID]; !ok {
		return shared.NewNotFound("vehicle", t.VehicleID)
	}
	if _, ok := s.loads[t.LoadID]; !ok {
		return shared.NewNotFound("load", t.LoadID)
	}
	for _, existing := range s.trips {
		if !existing.Active() {
			continue
		}
		if existing.VehicleID == t.VehicleID {
			return shared.NewConflict(fmt.Sprintf(
				"vehicle %s already on active trip %s", t.VehicleID, existing.ID))
		}
		if existing.LoadID == t.LoadID {
			return shared.NewConflict(fmt.Sprintf(
				"load %s already on active trip %s", t.LoadID, existing.ID))
		}
	}
	s.trips[t.ID] = t.Clone()
	return nil
}

// UpdateVehicle applies mutate to a copy of the vehicle and commits it if
// mutate succeeds. The stored entity is untouched on error.
func (s *Store) UpdateVehicle(id string, mutate func(*fleet.Vehicle) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vehicles[id]
	if !ok {
		return shared.NewNotFound("vehicle", id)
	}
	next := v.Clone()
	if err := mutate(next); err != nil {
		return err
	}
	s.vehicles[id] = next
	return nil
}

// UpdateLoad applies mutate to a copy of the load and commits on success.
func (s *Store) UpdateLoad(id string, mutate func(*freight.Load) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.loads[id]
	if !ok {
		return shared.NewNotFound("load", id)
	}
	next := l.Clone()
	if err := mutate(next); err != nil {
		return err
	}
	s.loads[id] = next
	return nil
}

// UpdateTrip applies mutate to a copy of the trip and commits on success.
func (s *Store) UpdateTrip(id string, mutate func(*trip.Trip) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trips[id]
	if !ok {
		return shared.NewNotFound("trip", id)
	}
	next := t.Clone()
	if err := mutate(next); err != nil {
		return err
	}
	s.trips[id] = next
	return nil
}

// RemoveTrip deletes a trip from the active set.
func (s *Store) RemoveTrip(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.trips[id]; !ok {
		return shared.NewNotFound("trip", id)
	}
	delete(s.trips, id)
	return nil
}

// ApplyEvents appends events to the ring, assigning sequence numbers and
// clamping timestamps so the ring stays monotone non-decreasing. Oldest
// events are dropped on overflow.
func (s *Store) ApplyEvents(events []event.Event) {
	if len(events) == 0 {
		return
	}

	s.mu.Lock()
	applied := make([]event.Event, 0, len(events))
	for _, e := range events {
		if e.Timestamp.Before(s.lastTS) {
			e.Timestamp = s.lastTS
		}
		s.lastTS = e.Timestamp
		s.seq++
		e.Seq = s.seq
		s.events = append(s.events, e)
		applied = append(applied, e)
	}
	if overflow := len(s.events) - s.ringSize; overflow > 0 {
		s.events = append([]event.Event(nil), s.events[overflow:]...)
	}
	sink := s.sink
	s.mu.Unlock()

	if sink != nil {
		sink.RecordEvents(applied)
	}
}

// Snapshot returns a point-in-time consistent, deep-copied view. The
// returned entities are safe to retain without synchronization.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		SnapshotAt: s.clock.Now(),
		Vehicles:   make(map[string]*fleet.Vehicle, len(s.vehicles)),
		Loads:      make(map[string]*freight.Load, len(s.loads)),
		Trips:      make(map[string]*trip.Trip, len(s.trips)),
		Events:     make([]event.Event, len(s.events)),
	}
	for id, v := range s.vehicles {
		snap.Vehicles[id] = v.Clone()
	}
	for id, l := range s.loads {
		snap.Loads[id] = l.Clone()
	}
	for id, t := range s.trips {
		snap.Trips[id] = t.Clone()
	}
	copy(snap.Events, s.events)
	return snap
}

// Snapshot is a read-only view of the store at an instant.
type Snapshot struct {
	SnapshotAt time.Time                 `json:"snapshot_at"`
	Vehicles   map[string]*fleet.Vehicle `json:"vehicles"`
	Loads      map[string]*freight.Load  `json:"loads"`
	Trips      map[string]*trip.Trip     `json:"trips"`
	Events     []event.Event             `json:"recent_events"`
}

// AvailableVehicles returns vehicles that can take a new load, sorted by id.
func (s *Snapshot) AvailableVehicles() []*fleet.Vehicle {
	var out []*fleet.Vehicle
	for _, v := range s.Vehicles {
		if v.Available() {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AvailableLoads returns unexpired available loads, sorted by id.
func (s *Snapshot) AvailableLoads(now time.Time) []*freight.Load {
	var out []*freight.Load
	for _, l := range s.Loads {
		if l.Status == freight.StatusAvailable && !l.Expired(now) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ActiveTrips returns non-terminal trips in lexicographic id order, the
// processing order every tick uses.
func (s *Snapshot) ActiveTrips() []*trip.Trip {
	var out []*trip.Trip
	for _, t := range s.Trips {
		if t.Active() {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TripForVehicle returns the active trip referencing the vehicle, if any.
func (s *Snapshot) TripForVehicle(vehicleID string) *trip.Trip {
	for _, t := range s.Trips {
		if t.Active() && t.VehicleID == vehicleID {
			return t
		}
	}
	return nil
}

// EventsFor returns the ring's events newest-first, optionally filtered by
// type, capped at limit (0 means no cap).
func (s *Snapshot) EventsFor(eventType event.Type, limit int) []event.Event {
	out := make([]event.Event, 0, len(s.Events))
	for i := len(s.Events) - 1; i >= 0; i-- {
		e := s.Events[i]
		if eventType != "" && e.Type != eventType {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
