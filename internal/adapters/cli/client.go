package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/andrescamacho/fleetdispatch-go/internal/domain/event"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/fleet"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/freight"
)

// DaemonClient talks to the fleet daemon's REST API.
type DaemonClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewDaemonClient creates a client against the daemon's base URL.
func NewDaemonClient(baseURL string) *DaemonClient {
	return &DaemonClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
	}
}

// HealthResponse is the daemon's health probe result.
type HealthResponse struct {
	Status string `json:"status"`
}

// InitializeResponse reports a fleet reset.
type InitializeResponse struct {
	Message         string `json:"message"`
	VehiclesCreated int    `json:"vehicles_created"`
	LoadsCreated    int    `json:"loads_created"`
}

// MetricsResponse carries the KPI object. Kept as a loose map so the CLI
// renders whatever the daemon reports without tracking every field.
type MetricsResponse map[string]any

// VehiclesResponse lists vehicles.
type VehiclesResponse struct {
	Vehicles []fleet.Vehicle `json:"vehicles"`
	Count    int             `json:"count"`
}

// LoadsResponse lists loads.
type LoadsResponse struct {
	Loads []freight.Load `json:"loads"`
	Count int            `json:"count"`
}

// EventsResponse lists recent events, newest first.
type EventsResponse struct {
	Events []event.Event `json:"events"`
	Count  int           `json:"count"`
}

// CycleResponse reports one observer pass.
type CycleResponse struct {
	Message       string `json:"message"`
	EventsEmitted int    `json:"events_emitted"`
}

// MatchResponse reports one matcher pass.
type MatchResponse struct {
	Message               string   `json:"message"`
	OpportunitiesAnalyzed int      `json:"opportunities_analyzed"`
	MatchesCreated        int      `json:"matches_created"`
	TripIDs               []string `json:"trip_ids"`
	AdvisorReasoning      string   `json:"advisor_reasoning"`
}

// RoutesResponse reports one route management pass.
type RoutesResponse struct {
	Message       string `json:"message"`
	TripsReviewed int    `json:"trips_reviewed"`
	Decisions     []struct {
		TripID    string `json:"trip_id"`
		VehicleID string `json:"vehicle_id"`
		Decision  string `json:"decision"`
		Reasoning string `json:"reasoning"`
	} `json:"decisions"`
}

// MoveResponse reports one movement tick with predictions.
type MoveResponse struct {
	Message         string `json:"message"`
	VehiclesUpdated int    `json:"vehicles_updated"`
	Predictions     []struct {
		TripID       string  `json:"trip_id"`
		VehicleID    string  `json:"vehicle_id"`
		Progress     float64 `json:"current_progress"`
		RemainingKm  float64 `json:"remaining_distance_km"`
		EtaHours     float64 `json:"eta_hours"`
		OnTimeStatus string  `json:"on_time_status"`
	} `json:"predictions"`
}

// Health checks the daemon is up.
func (c *DaemonClient) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.get(ctx, "/health", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Initialize resets and seeds the fleet.
func (c *DaemonClient) Initialize(ctx context.Context, numVehicles, numLoads int) (*InitializeResponse, error) {
	body := map[string]int{"num_vehicles": numVehicles, "num_loads": numLoads}
	var out InitializeResponse
	if err := c.post(ctx, "/api/initialize", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Metrics fetches the KPI object.
func (c *DaemonClient) Metrics(ctx context.Context) (MetricsResponse, error) {
	var out MetricsResponse
	if err := c.get(ctx, "/api/metrics", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Vehicles lists vehicles, optionally filtered by status.
func (c *DaemonClient) Vehicles(ctx context.Context, status string) (*VehiclesResponse, error) {
	path := "/api/vehicles"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var out VehiclesResponse
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Vehicle fetches one vehicle by id.
func (c *DaemonClient) Vehicle(ctx context.Context, id string) (*fleet.Vehicle, error) {
	var out fleet.Vehicle
	if err := c.get(ctx, "/api/vehicles/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Loads lists loads, optionally filtered by status.
func (c *DaemonClient) Loads(ctx context.Context, status string) (*LoadsResponse, error) {
	path := "/api/loads"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var out LoadsResponse
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Load fetches one load by id.
func (c *DaemonClient) Load(ctx context.Context, id string) (*freight.Load, error) {
	var out freight.Load
	if err := c.get(ctx, "/api/loads/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Events fetches recent events newest first.
func (c *DaemonClient) Events(ctx context.Context, eventType string, limit int) (*EventsResponse, error) {
	q := url.Values{}
	if eventType != "" {
		q.Set("event_type", eventType)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out EventsResponse
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cycle runs one observer pass.
func (c *DaemonClient) Cycle(ctx context.Context) (*CycleResponse, error) {
	var out CycleResponse
	if err := c.post(ctx, "/api/cycle", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MatchLoads runs one matcher pass.
func (c *DaemonClient) MatchLoads(ctx context.Context) (*MatchResponse, error) {
	var out MatchResponse
	if err := c.post(ctx, "/api/match-loads", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ManageRoutes runs one route management pass.
func (c *DaemonClient) ManageRoutes(ctx context.Context) (*RoutesResponse, error) {
	var out RoutesResponse
	if err := c.post(ctx, "/api/manage-routes", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SimulateMovement advances motion one tick.
func (c *DaemonClient) SimulateMovement(ctx context.Context) (*MoveResponse, error) {
	var out MoveResponse
	if err := c.post(ctx, "/api/simulate-movement", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *DaemonClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *DaemonClient) post(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *DaemonClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read daemon response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("daemon returned %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode daemon response: %w", err)
	}
	return nil
}
