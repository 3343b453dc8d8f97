package monitor

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/andrescamacho/fleetdispatch-go/internal/application/seed"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/event"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/freight"
	"github.com/andrescamacho/fleetdispatch-go/internal/state"
)

var corridors = []string{
	"Delhi-NH8-Gurgaon",
	"Mumbai-NH4-Pune",
	"Bangalore-NH44-Hyderabad",
	"Chennai-NH16-Vijayawada",
	"Delhi-NH58-Meerut",
	"Kolkata-NH12-Ranchi",
}

var delayReasons = []string{"accident", "roadwork", "flooding", "protest"}

const (
	trafficAlertChance = 0.3
	newLoadChance      = 0.15

	// simulated load ids start high so they never collide with seeded ones
	simLoadIDBase = 900
)

// SimulatedSource generates synthetic external signals: GPS drift for
// moving vehicles, random corridor traffic alerts, and the occasional
// freshly posted load. A seeded rand makes runs reproducible.
type SimulatedSource struct {
	mu      sync.Mutex
	rng     *rand.Rand
	loadSeq int
}

// NewSimulatedSource creates a source driven by rng. A nil rng gets a
// time-seeded one.
func NewSimulatedSource(rng *rand.Rand) *SimulatedSource {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &SimulatedSource{rng: rng, loadSeq: simLoadIDBase}
}

// Collect produces this cycle's synthetic signals.
func (s *SimulatedSource) Collect(snapshot *state.Snapshot, now time.Time) (*Signals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	signals := &Signals{}

	// GPS drift for vehicles on the road, in id order so a seeded rng
	// produces the same drift sequence every run
	for _, id := range movingVehicles(snapshot) {
		v := snapshot.Vehicles[id]
		signals.Events = append(signals.Events, event.New(now, event.VehiclePositionUpdate{
			VehicleID: v.ID,
			Lat:       round4(v.CurrentLocation.Lat + s.uniform(-0.05, 0.05)),
			Lng:       round4(v.CurrentLocation.Lng + s.uniform(-0.05, 0.05)),
		}))
	}

	if s.rng.Float64() < trafficAlertChance {
		alert := event.TrafficAlert{
			Corridor:     corridors[s.rng.Intn(len(corridors))],
			DelayMinutes: float64(15 + s.rng.Intn(76)),
			Reason:       delayReasons[s.rng.Intn(len(delayReasons))],
		}
		if moving := movingVehicles(snapshot); len(moving) > 0 {
			alert.VehicleID = moving[s.rng.Intn(len(moving))]
		}
		signals.Events = append(signals.Events, event.New(now, alert))
	}

	if s.rng.Float64() < newLoadChance {
		load, err := s.generateLoad(now)
		if err == nil {
			signals.NewLoads = append(signals.NewLoads, load)
		}
	}

	return signals, nil
}

func (s *SimulatedSource) generateLoad(now time.Time) (*freight.Load, error) {
	names := seed.CityNames()
	originKey := names[s.rng.Intn(len(names))]
	destKey := originKey
	for destKey == originKey {
		destKey = names[s.rng.Intn(len(names))]
	}

	origin, err := seed.City(originKey)
	if err != nil {
		return nil, err
	}
	dest, err := seed.City(destKey)
	if err != nil {
		return nil, err
	}

	s.loadSeq++
	load, err := freight.NewLoad(
		fmt.Sprintf("load_%03d", s.loadSeq),
		origin,
		dest,
		round1(s.uniform(2, 20)),
		seed.Distance(originKey, destKey),
		round2(s.uniform(35, 80)),
	)
	if err != nil {
		return nil, err
	}

	windowHours := s.uniform(2, 6)
	load.PickupWindowStart = now
	load.PickupWindowEnd = now.Add(time.Duration(windowHours * float64(time.Hour)))
	load.DeliveryDeadline = now.Add(time.Duration((windowHours + load.DistanceKm/60.0 + s.uniform(1, 4)) * float64(time.Hour)))
	load.CreatedAt = now
	return load, nil
}

func (s *SimulatedSource) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

func movingVehicles(snapshot *state.Snapshot) []string {
	var ids []string
	for _, v := range snapshot.Vehicles {
		if v.Status.Moving() {
			ids = append(ids, v.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func round1(v float64) float64 { return float64(int(v*10+0.5)) / 10 }
func round2(v float64) float64 { return float64(int(v*100+0.5)) / 100 }
func round4(v float64) float64 { return float64(int(v*10000+0.5)) / 10000 }
