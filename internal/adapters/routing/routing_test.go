package routing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/fleetdispatch-go/internal/domain/shared"
)

const osrmOK = `{
	"code": "Ok",
	"routes": [{
		"distance": 281500.0,
		"duration": 16890.0,
		"geometry": {"coordinates": [[77.1025, 28.7041], [76.5, 27.8], [75.7873, 26.9124]]}
	}]
}`

func newTestClient(url string) *OSRMClient {
	return NewOSRMClientWithConfig(url, 1, time.Millisecond, shared.NewMockClock(time.Time{}))
}

func TestOSRMClientParsesRoute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/route/v1/driving/")
		w.Write([]byte(osrmOK))
	}))
	defer server.Close()

	route, err := newTestClient(server.URL).Route(context.Background(), 28.7041, 77.1025, 26.9124, 75.7873)
	require.NoError(t, err)

	assert.InDelta(t, 281.5, route.DistanceKm, 1e-9)
	assert.InDelta(t, 16890.0/3600.0, route.DurationHours, 1e-9)
	assert.False(t, route.Fallback)

	// coordinates come back lat-first
	require.Len(t, route.Points, 3)
	assert.Equal(t, [2]float64{28.7041, 77.1025}, route.Points[0])
	assert.Equal(t, [2]float64{26.9124, 75.7873}, route.Points[2])
}

func TestOSRMClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(osrmOK))
	}))
	defer server.Close()

	route, err := newTestClient(server.URL).Route(context.Background(), 28.7, 77.1, 26.9, 75.8)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.NotEmpty(t, route.Points)
}

func TestOSRMClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Route(context.Background(), 28.7, 77.1, 26.9, 75.8)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOSRMClientRejectsNoRouteResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code": "NoRoute", "routes": []}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Route(context.Background(), 28.7, 77.1, 26.9, 75.8)
	require.Error(t, err)
	assert.Equal(t, shared.KindMalformed, shared.KindOf(err))
}

type stubRouter struct {
	calls atomic.Int32
	fail  bool
}

func (s *stubRouter) Route(ctx context.Context, fromLat, fromLng, toLat, toLng float64) (*Route, error) {
	s.calls.Add(1)
	if s.fail {
		return nil, shared.NewUnavailable("stub down", nil)
	}
	return &Route{
		Points:        [][2]float64{{fromLat, fromLng}, {toLat, toLng}},
		DistanceKm:    281.5,
		DurationHours: 4.7,
	}, nil
}

func plannerLocations(t *testing.T) (shared.Location, shared.Location) {
	t.Helper()
	from, err := shared.NewLocation(28.7041, 77.1025, "Delhi")
	require.NoError(t, err)
	to, err := shared.NewLocation(26.9124, 75.7873, "Jaipur")
	require.NoError(t, err)
	return from, to
}

func TestCachedPlannerCachesRoutes(t *testing.T) {
	router := &stubRouter{}
	planner := NewCachedPlanner(router, 16, time.Hour, nil)
	from, to := plannerLocations(t)

	first := planner.PlanRoute(context.Background(), from, to)
	second := planner.PlanRoute(context.Background(), from, to)

	assert.Equal(t, int32(1), router.calls.Load())
	assert.Equal(t, first.DistanceKm, second.DistanceKm)

	// callers cannot corrupt the cached copy
	second.Points[0][0] = 0
	third := planner.PlanRoute(context.Background(), from, to)
	assert.Equal(t, 28.7041, third.Points[0][0])
}

func TestCachedPlannerFallsBackOnFailure(t *testing.T) {
	router := &stubRouter{fail: true}
	planner := NewCachedPlanner(router, 16, time.Hour, nil)
	from, to := plannerLocations(t)

	route := planner.PlanRoute(context.Background(), from, to)

	require.NotNil(t, route)
	assert.True(t, route.Fallback)
	assert.GreaterOrEqual(t, len(route.Points), fallbackMinPoints)
	// Delhi to Jaipur great-circle is roughly 240 km
	assert.InDelta(t, 240, route.DistanceKm, 20)
	assert.InDelta(t, route.DistanceKm/fallbackSpeedKmh, route.DurationHours, 1e-9)
}

func TestCachedPlannerDoesNotCacheFallback(t *testing.T) {
	router := &stubRouter{fail: true}
	planner := NewCachedPlanner(router, 16, time.Hour, nil)
	from, to := plannerLocations(t)

	planner.PlanRoute(context.Background(), from, to)
	router.fail = false
	route := planner.PlanRoute(context.Background(), from, to)

	assert.False(t, route.Fallback, "router recovery must be picked up")
	assert.Equal(t, int32(2), router.calls.Load())
}

func TestCacheKeyRoundsCoordinates(t *testing.T) {
	a, err := shared.NewLocation(28.70411, 77.10241, "Delhi")
	require.NoError(t, err)
	b, err := shared.NewLocation(28.70413, 77.10243, "Delhi")
	require.NoError(t, err)
	to, err := shared.NewLocation(26.9124, 75.7873, "Jaipur")
	require.NoError(t, err)

	assert.Equal(t, cacheKey(a, to), cacheKey(b, to))
}
