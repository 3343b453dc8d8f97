// Package routing provides road-route planning. The OSRM client talks to a
// public routing server; CachedPlanner wraps it with an in-memory cache and
// a great-circle fallback so callers always get a usable route.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/andrescamacho/fleetdispatch-go/internal/domain/shared"
	"github.com/andrescamacho/fleetdispatch-go/pkg/geo"
)

const (
	defaultBaseURL     = "https://router.project-osrm.org"
	defaultTimeout     = 15 * time.Second
	defaultBudget      = 20 * time.Second
	defaultMaxRetries  = 1
	defaultBackoffBase = time.Second
)

// Route is a planned road route between two points.
type Route struct {
	Points        geo.Polyline `json:"points"`
	DistanceKm    float64      `json:"distance_km"`
	DurationHours float64      `json:"duration_hours"`
	Fallback      bool         `json:"fallback"`
}

// OSRMClient fetches driving routes from an OSRM server.
// Rate limit: 1 request per second with burst of 2.
// Retry: 1 retry with backoff + jitter, inside a 20s total budget.
type OSRMClient struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	baseURL     string
	maxRetries  int
	backoffBase time.Duration
	budget      time.Duration
	clock       shared.Clock
}

// NewOSRMClient creates a client against the public OSRM demo server.
func NewOSRMClient() *OSRMClient {
	return NewOSRMClientWithConfig(defaultBaseURL, defaultMaxRetries, defaultBackoffBase, nil)
}

// NewOSRMClientWithConfig creates a client with custom configuration.
// If clock is nil, uses RealClock for production.
func NewOSRMClientWithConfig(baseURL string, maxRetries int, backoffBase time.Duration, clock shared.Clock) *OSRMClient {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &OSRMClient{
		httpClient:  &http.Client{Timeout: defaultTimeout},
		rateLimiter: rate.NewLimiter(rate.Limit(1), 2),
		baseURL:     baseURL,
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		budget:      defaultBudget,
		clock:       clock,
	}
}

// osrmResponse mirrors the subset of the OSRM route response we consume.
// Coordinates arrive as [lng, lat] pairs, distance in meters, duration in
// seconds.
type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Route fetches the driving route between two coordinates. Retryable
// failures (network errors, 429, 5xx) are retried once with backoff.
func (c *OSRMClient) Route(ctx context.Context, fromLat, fromLng, toLat, toLng float64) (*Route, error) {
	ctx, cancel := context.WithTimeout(ctx, c.budget)
	defer cancel()

	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=full&geometries=geojson",
		c.baseURL, fromLng, fromLat, toLng, toLat)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, shared.NewTimeout("osrm route", err)
		}

		route, retryable, err := c.fetch(ctx, url)
		if err == nil {
			return route, nil
		}
		lastErr = err
		if !retryable || attempt >= c.maxRetries {
			break
		}
		if ctx.Err() != nil {
			return nil, shared.NewTimeout("osrm route", ctx.Err())
		}
		c.clock.Sleep(addJitter(c.backoffBase * time.Duration(1<<attempt)))
	}
	return nil, lastErr
}

func (c *OSRMClient) fetch(ctx context.Context, url string) (*Route, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, shared.NewUnavailable("osrm request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, shared.NewUnavailable("osrm route", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, shared.NewUnavailable("osrm response read", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, shared.NewUnavailable(fmt.Sprintf("osrm status %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return nil, false, shared.NewUnavailable(fmt.Sprintf("osrm status %d: %s", resp.StatusCode, body), nil)
	}

	var parsed osrmResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, false, shared.NewMalformed(fmt.Sprintf("osrm response: %v", err))
	}
	if parsed.Code != "Ok" || len(parsed.Routes) == 0 {
		return nil, false, shared.NewMalformed(fmt.Sprintf("osrm code %q with %d routes", parsed.Code, len(parsed.Routes)))
	}

	best := parsed.Routes[0]
	points := make(geo.Polyline, 0, len(best.Geometry.Coordinates))
	for _, coord := range best.Geometry.Coordinates {
		if len(coord) < 2 {
			return nil, false, shared.NewMalformed("osrm coordinate pair too short")
		}
		// OSRM emits [lng, lat]; we store [lat, lng]
		points = append(points, [2]float64{coord[1], coord[0]})
	}

	return &Route{
		Points:        points,
		DistanceKm:    best.Distance / 1000.0,
		DurationHours: best.Duration / 3600.0,
	}, false, nil
}

// addJitter spreads a backoff delay between 50% and 150% of its base value.
func addJitter(d time.Duration) time.Duration {
	jitter := 0.5 + rand.Float64()
	return time.Duration(float64(d) * jitter)
}
