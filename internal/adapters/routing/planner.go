package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/andrescamacho/fleetdispatch-go/internal/domain/shared"
	"github.com/andrescamacho/fleetdispatch-go/pkg/geo"
)

const (
	defaultCacheSize = 1024

	// fallback polylines carry roughly one point per 5 km, at least 20
	fallbackStepKm    = 5.0
	fallbackMinPoints = 20

	// assumed average speed when synthesizing a route duration
	fallbackSpeedKmh = 60.0
)

// Router is the raw route source behind the planner.
type Router interface {
	Route(ctx context.Context, fromLat, fromLng, toLat, toLng float64) (*Route, error)
}

// Planner is the route contract the rest of the engine consumes. PlanRoute
// never fails: when the router is unreachable the planner synthesizes a
// great-circle fallback route flagged as such.
type Planner interface {
	PlanRoute(ctx context.Context, from, to shared.Location) *Route
}

// CachedPlanner caches router results keyed by rounded endpoints and
// collapses concurrent misses for the same pair into one upstream call.
type CachedPlanner struct {
	router Router
	cache  *expirable.LRU[string, *Route]
	group  singleflight.Group
	logger *zap.Logger
}

// NewCachedPlanner wraps router with an expiring LRU cache.
func NewCachedPlanner(router Router, cacheSize int, ttl time.Duration, logger *zap.Logger) *CachedPlanner {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedPlanner{
		router: router,
		cache:  expirable.NewLRU[string, *Route](cacheSize, nil, ttl),
		logger: logger,
	}
}

// PlanRoute returns a cached or freshly fetched route, falling back to a
// synthesized great-circle route when the router fails. Fallback routes are
// never cached, so the next request retries the router.
func (p *CachedPlanner) PlanRoute(ctx context.Context, from, to shared.Location) *Route {
	key := cacheKey(from, to)
	if cached, ok := p.cache.Get(key); ok {
		return cloneRoute(cached)
	}

	result, err, _ := p.group.Do(key, func() (interface{}, error) {
		route, err := p.router.Route(ctx, from.Lat, from.Lng, to.Lat, to.Lng)
		if err != nil {
			return nil, err
		}
		p.cache.Add(key, route)
		return route, nil
	})
	if err != nil {
		p.logger.Warn("route fetch failed, using great-circle fallback",
			zap.String("from", from.Name),
			zap.String("to", to.Name),
			zap.Error(err))
		return fallbackRoute(from, to)
	}
	return cloneRoute(result.(*Route))
}

// cacheKey rounds endpoints to 3 decimal places (about 110 m) so nearby
// fixes share a cache entry.
func cacheKey(from, to shared.Location) string {
	return fmt.Sprintf("%.3f,%.3f->%.3f,%.3f", from.Lat, from.Lng, to.Lat, to.Lng)
}

func fallbackRoute(from, to shared.Location) *Route {
	distance := geo.HaversineKm(from.Lat, from.Lng, to.Lat, to.Lng)
	return &Route{
		Points:        geo.Interpolate(from.Lat, from.Lng, to.Lat, to.Lng, fallbackStepKm, fallbackMinPoints),
		DistanceKm:    distance,
		DurationHours: distance / fallbackSpeedKmh,
		Fallback:      true,
	}
}

// cloneRoute copies the cached route so callers cannot corrupt the cache.
func cloneRoute(r *Route) *Route {
	cp := *r
	cp.Points = make(geo.Polyline, len(r.Points))
	copy(cp.Points, r.Points)
	return &cp
}
