// Package scheduler drives the four agent cadences under one cancellation
// signal: Observer, Matcher, Motion, Adapter, in that order within an
// interval so fresh loads can be matched and adaptations see post-motion
// state.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/andrescamacho/fleetdispatch-go/internal/application/matcher"
	"github.com/andrescamacho/fleetdispatch-go/internal/application/monitor"
	"github.com/andrescamacho/fleetdispatch-go/internal/application/routemgr"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/event"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/shared"
)

// Default cadences.
const (
	DefaultMotionPeriod   = 3 * time.Second
	DefaultObserverPeriod = 10 * time.Second
	DefaultMatcherPeriod  = 30 * time.Second
	DefaultAdapterPeriod  = 30 * time.Second
)

// ObserverAgent ingests signals and raises triggers.
type ObserverAgent interface {
	Cycle(ctx context.Context) ([]event.Event, []monitor.Trigger)
}

// MatcherAgent pairs loads with vehicles.
type MatcherAgent interface {
	Run(ctx context.Context) *matcher.Result
}

// MotionAgent advances trips by the elapsed wall time.
type MotionAgent interface {
	Tick(ctx context.Context, dt time.Duration) []event.Event
}

// AdapterAgent amends in-flight trips.
type AdapterAgent interface {
	Run(ctx context.Context) []routemgr.TripDecision
}

// Loop owns the agent cadences. A single goroutine runs all agents, so
// store writes from agents never race each other; an agent overrunning its
// period causes later runs to coalesce (skip, not queue).
type Loop struct {
	observer ObserverAgent
	matcher  MatcherAgent
	motion   MotionAgent
	adapter  AdapterAgent
	clock    shared.Clock
	logger   *zap.Logger

	motionPeriod   time.Duration
	observerPeriod time.Duration
	matcherPeriod  time.Duration
	adapterPeriod  time.Duration

	nextObserver time.Time
	nextMatcher  time.Time
	nextMotion   time.Time
	nextAdapter  time.Time
	lastMotion   time.Time

	matcherRequested bool
	adapterRequested bool
}

// New creates a dispatch loop with default cadences.
func New(observer ObserverAgent, m MatcherAgent, motion MotionAgent, adapter AdapterAgent, clock shared.Clock, logger *zap.Logger) *Loop {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		observer:       observer,
		matcher:        m,
		motion:         motion,
		adapter:        adapter,
		clock:          clock,
		logger:         logger,
		motionPeriod:   DefaultMotionPeriod,
		observerPeriod: DefaultObserverPeriod,
		matcherPeriod:  DefaultMatcherPeriod,
		adapterPeriod:  DefaultAdapterPeriod,
	}
}

// SetPeriods overrides the cadences. Zero values keep defaults.
func (l *Loop) SetPeriods(motion, observer, matcherPeriod, adapter time.Duration) {
	if motion > 0 {
		l.motionPeriod = motion
	}
	if observer > 0 {
		l.observerPeriod = observer
	}
	if matcherPeriod > 0 {
		l.matcherPeriod = matcherPeriod
	}
	if adapter > 0 {
		l.adapterPeriod = adapter
	}
}

// Run drives the cadences until ctx is cancelled. In-flight advisor calls
// finish by their own deadlines; no new work starts after cancellation.
func (l *Loop) Run(ctx context.Context) {
	now := l.clock.Now()
	l.prime(now)

	poll := l.motionPeriod / 3
	if poll < 100*time.Millisecond {
		poll = 100 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	l.logger.Info("dispatch loop started",
		zap.Duration("motion_period", l.motionPeriod),
		zap.Duration("observer_period", l.observerPeriod),
		zap.Duration("matcher_period", l.matcherPeriod),
		zap.Duration("adapter_period", l.adapterPeriod))

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("dispatch loop stopped")
			return
		case <-ticker.C:
			l.step(ctx, l.clock.Now())
		}
	}
}

// prime schedules the first runs. Observer fires immediately so the board
// fills before the first matcher pass.
func (l *Loop) prime(now time.Time) {
	l.nextObserver = now
	l.nextMatcher = now.Add(l.matcherPeriod)
	l.nextMotion = now.Add(l.motionPeriod)
	l.nextAdapter = now.Add(l.adapterPeriod)
	l.lastMotion = now
}

// step runs every agent whose deadline has passed, in the fixed
// Observer → Matcher → Motion → Adapter order. Deadlines are re-armed from
// now, so a late run swallows the missed ones instead of queueing them.
func (l *Loop) step(ctx context.Context, now time.Time) {
	if ctx.Err() != nil {
		return
	}

	if !now.Before(l.nextObserver) {
		_, triggers := l.observer.Cycle(ctx)
		l.route(triggers)
		l.nextObserver = now.Add(l.observerPeriod)
	}

	if l.matcherRequested || !now.Before(l.nextMatcher) {
		l.matcherRequested = false
		result := l.matcher.Run(ctx)
		if result != nil && result.MatchesCreated > 0 {
			l.logger.Info("matcher pass", zap.Int("matches_created", result.MatchesCreated))
		}
		l.nextMatcher = now.Add(l.matcherPeriod)
	}

	if !now.Before(l.nextMotion) {
		dt := now.Sub(l.lastMotion)
		l.motion.Tick(ctx, dt)
		l.lastMotion = now
		l.nextMotion = now.Add(l.motionPeriod)
	}

	if l.adapterRequested || !now.Before(l.nextAdapter) {
		l.adapterRequested = false
		l.adapter.Run(ctx)
		l.nextAdapter = now.Add(l.adapterPeriod)
	}
}

// route marks trigger-driven early runs: idle vehicles and hot loads wake
// the matcher, near-delivery and traffic wake the adapter.
func (l *Loop) route(triggers []monitor.Trigger) {
	for _, t := range triggers {
		switch t.Kind {
		case monitor.TriggerIdleTimeout, monitor.TriggerHighPriorityLoad:
			l.matcherRequested = true
		case monitor.TriggerNearDelivery, monitor.TriggerTrafficEvent:
			l.adapterRequested = true
		}
	}
}
