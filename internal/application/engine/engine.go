// Package engine composes the dispatch core: the store, the four agents,
// the predictor, and the seeded initialization. The REST boundary and the
// CLI talk to this composite, never to the agents directly.
package engine

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/andrescamacho/fleetdispatch-go/internal/application/matcher"
	"github.com/andrescamacho/fleetdispatch-go/internal/application/metrics"
	"github.com/andrescamacho/fleetdispatch-go/internal/application/monitor"
	"github.com/andrescamacho/fleetdispatch-go/internal/application/motion"
	"github.com/andrescamacho/fleetdispatch-go/internal/application/predict"
	"github.com/andrescamacho/fleetdispatch-go/internal/application/routemgr"
	"github.com/andrescamacho/fleetdispatch-go/internal/application/seed"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/event"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/shared"
	"github.com/andrescamacho/fleetdispatch-go/internal/state"
)

// Engine owns the dispatch core and exposes the command surface.
type Engine struct {
	store     *state.Store
	observer  *monitor.Observer
	matcher   *matcher.Matcher
	motion    *motion.Engine
	adapter   *routemgr.Manager
	predictor *predict.Predictor
	clock     shared.Clock
	logger    *zap.Logger
	rng       *rand.Rand

	motionDt time.Duration
}

// Deps are the constructed collaborators the engine composes.
type Deps struct {
	Store     *state.Store
	Observer  *monitor.Observer
	Matcher   *matcher.Matcher
	Motion    *motion.Engine
	Adapter   *routemgr.Manager
	Predictor *predict.Predictor
	Clock     shared.Clock
	Logger    *zap.Logger
	Rand      *rand.Rand

	// MotionDt is the simulated duration of one manual motion tick.
	MotionDt time.Duration
}

// New assembles the engine.
func New(d Deps) *Engine {
	if d.Clock == nil {
		d.Clock = shared.NewRealClock()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Rand == nil {
		d.Rand = rand.New(rand.NewSource(d.Clock.Now().UnixNano()))
	}
	if d.MotionDt <= 0 {
		d.MotionDt = 3 * time.Second
	}
	return &Engine{
		store:     d.Store,
		observer:  d.Observer,
		matcher:   d.Matcher,
		motion:    d.Motion,
		adapter:   d.Adapter,
		predictor: d.Predictor,
		clock:     d.Clock,
		logger:    d.Logger,
		rng:       d.Rand,
		motionDt:  d.MotionDt,
	}
}

// InitResult reports what Initialize created.
type InitResult struct {
	VehiclesCreated int `json:"vehicles_created"`
	LoadsCreated    int `json:"loads_created"`
}

// Initialize resets the store and seeds it with generated vehicles and
// loads scattered over the city set. Each seeded load gets a load_posted
// event.
func (e *Engine) Initialize(ctx context.Context, numVehicles, numLoads int) (*InitResult, error) {
	now := e.clock.Now()

	vehicles, err := seed.GenerateFleet(numVehicles, e.rng)
	if err != nil {
		return nil, err
	}
	loads, err := seed.GenerateLoads(numLoads, now, e.rng)
	if err != nil {
		return nil, err
	}

	e.store.Reset(vehicles, loads)

	events := make([]event.Event, 0, len(loads))
	for _, l := range loads {
		events = append(events, event.New(now, event.LoadPosted{
			LoadID:      l.ID,
			Origin:      l.Origin.Name,
			Destination: l.Destination.Name,
			WeightTons:  l.WeightTons,
			RatePerKm:   l.OfferedRatePerKm,
		}))
	}
	e.store.ApplyEvents(events)

	e.logger.Info("fleet initialized",
		zap.Int("vehicles", len(vehicles)), zap.Int("loads", len(loads)))
	return &InitResult{VehiclesCreated: len(vehicles), LoadsCreated: len(loads)}, nil
}

// Snapshot returns the current consistent view of the store.
func (e *Engine) Snapshot() *state.Snapshot {
	return e.store.Snapshot()
}

// Metrics computes the KPI object for the current snapshot.
func (e *Engine) Metrics() metrics.KPI {
	return metrics.Compute(e.store.Snapshot(), e.clock.Now())
}

// RunObserver executes one observer cycle.
func (e *Engine) RunObserver(ctx context.Context) ([]event.Event, []monitor.Trigger) {
	return e.observer.Cycle(ctx)
}

// RunMatcher executes one matcher pass.
func (e *Engine) RunMatcher(ctx context.Context) *matcher.Result {
	return e.matcher.Run(ctx)
}

// RunAdapter executes one route management pass.
func (e *Engine) RunAdapter(ctx context.Context) []routemgr.TripDecision {
	return e.adapter.Run(ctx)
}

// SimulateMovement advances motion one manual tick and returns the
// predictor's readout of the post-tick state.
func (e *Engine) SimulateMovement(ctx context.Context) []predict.TripPrediction {
	e.motion.Tick(ctx, e.motionDt)
	return e.predictor.Predict(e.store.Snapshot(), e.clock.Now())
}

// Predictions returns the predictor readout without advancing motion.
func (e *Engine) Predictions() []predict.TripPrediction {
	return e.predictor.Predict(e.store.Snapshot(), e.clock.Now())
}
