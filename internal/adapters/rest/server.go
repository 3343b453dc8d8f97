// Package rest is the HTTP boundary of the dispatch engine: a thin JSON
// layer over the engine composite, one handler per command.
package rest

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/andrescamacho/fleetdispatch-go/internal/application/common"
	"github.com/andrescamacho/fleetdispatch-go/internal/application/engine"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/event"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/fleet"
	"github.com/andrescamacho/fleetdispatch-go/internal/domain/freight"
)

// Handler serves the dispatch command surface.
type Handler struct {
	engine   *engine.Engine
	logger   *zap.Logger
	validate *validator.Validate
}

// NewHandler creates the HTTP handler over the engine.
func NewHandler(e *engine.Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		engine:   e,
		logger:   logger,
		validate: validator.New(),
	}
}

// NewRouter mounts every endpoint under /api.
func NewRouter(h *Handler) *mux.Router {
	router := mux.NewRouter()
	router.Use(h.requestLogger)
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/initialize", h.Initialize).Methods(http.MethodPost)
	api.HandleFunc("/state", h.State).Methods(http.MethodGet)
	api.HandleFunc("/metrics", h.Metrics).Methods(http.MethodGet)
	api.HandleFunc("/vehicles", h.Vehicles).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/{id}", h.Vehicle).Methods(http.MethodGet)
	api.HandleFunc("/loads", h.Loads).Methods(http.MethodGet)
	api.HandleFunc("/loads/{id}", h.Load).Methods(http.MethodGet)
	api.HandleFunc("/events", h.Events).Methods(http.MethodGet)
	api.HandleFunc("/cycle", h.Cycle).Methods(http.MethodPost)
	api.HandleFunc("/match-loads", h.MatchLoads).Methods(http.MethodPost)
	api.HandleFunc("/manage-routes", h.ManageRoutes).Methods(http.MethodPost)
	api.HandleFunc("/simulate-movement", h.SimulateMovement).Methods(http.MethodPost)
	return router
}

// InitializeRequest is the JSON body for POST /api/initialize.
type InitializeRequest struct {
	NumVehicles int `json:"num_vehicles" validate:"required,gte=1,lte=500"`
	NumLoads    int `json:"num_loads" validate:"required,gte=1,lte=1000"`
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Initialize handles POST /api/initialize: reset and seed the fleet.
func (h *Handler) Initialize(w http.ResponseWriter, r *http.Request) {
	var body InitializeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.validate.Struct(body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	result, err := h.engine.Initialize(r.Context(), body.NumVehicles, body.NumLoads)
	if err != nil {
		common.LoggerFromContext(r.Context()).Error("initialization failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody("initialization failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":          "Fleet initialized",
		"vehicles_created": result.VehiclesCreated,
		"loads_created":    result.LoadsCreated,
	})
}

// State handles GET /api/state: the full snapshot.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Snapshot())
}

// Metrics handles GET /api/metrics: the KPI object.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Metrics())
}

// Vehicles handles GET /api/vehicles?status=.
func (h *Handler) Vehicles(w http.ResponseWriter, r *http.Request) {
	status := fleet.Status(r.URL.Query().Get("status"))
	if status != "" && !fleet.ValidStatus(status) {
		writeJSON(w, http.StatusBadRequest, errorBody("unknown vehicle status "+strconv.Quote(string(status))))
		return
	}

	snap := h.engine.Snapshot()
	out := make([]*fleet.Vehicle, 0, len(snap.Vehicles))
	for _, v := range snap.Vehicles {
		if status == "" || v.Status == status {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, map[string]any{"vehicles": out, "count": len(out)})
}

// Vehicle handles GET /api/vehicles/{id}.
func (h *Handler) Vehicle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	v := h.engine.Snapshot().Vehicles[id]
	if v == nil {
		writeJSON(w, http.StatusNotFound, errorBody("vehicle "+id+" not found"))
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Loads handles GET /api/loads?status=.
func (h *Handler) Loads(w http.ResponseWriter, r *http.Request) {
	status := freight.Status(r.URL.Query().Get("status"))
	if status != "" && !freight.ValidStatus(status) {
		writeJSON(w, http.StatusBadRequest, errorBody("unknown load status "+strconv.Quote(string(status))))
		return
	}

	snap := h.engine.Snapshot()
	out := make([]*freight.Load, 0, len(snap.Loads))
	for _, l := range snap.Loads {
		if status == "" || l.Status == status {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, map[string]any{"loads": out, "count": len(out)})
}

// Load handles GET /api/loads/{id}.
func (h *Handler) Load(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	l := h.engine.Snapshot().Loads[id]
	if l == nil {
		writeJSON(w, http.StatusNotFound, errorBody("load "+id+" not found"))
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// Events handles GET /api/events?limit=&event_type=, newest first.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	eventType := event.Type(r.URL.Query().Get("event_type"))

	events := h.engine.Snapshot().EventsFor(eventType, limit)
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

// Cycle handles POST /api/cycle: one observer pass.
func (h *Handler) Cycle(w http.ResponseWriter, r *http.Request) {
	events, triggers := h.engine.RunObserver(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"message":        "Observer cycle completed",
		"events_emitted": len(events),
		"triggers":       triggers,
	})
}

// MatchLoads handles POST /api/match-loads: one matcher pass.
func (h *Handler) MatchLoads(w http.ResponseWriter, r *http.Request) {
	result := h.engine.RunMatcher(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"message":                "Matching completed",
		"opportunities_analyzed": result.OpportunitiesAnalyzed,
		"matches_created":        result.MatchesCreated,
		"approved_matches":       result.ApprovedMatches,
		"trip_ids":               result.TripIDs,
		"advisor_reasoning":      result.AdvisorReasoning,
	})
}

// ManageRoutes handles POST /api/manage-routes: one adapter pass.
func (h *Handler) ManageRoutes(w http.ResponseWriter, r *http.Request) {
	decisions := h.engine.RunAdapter(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"message":        "Route management completed",
		"trips_reviewed": len(decisions),
		"decisions":      decisions,
	})
}

// SimulateMovement handles POST /api/simulate-movement: one motion tick
// plus the predictor readout.
func (h *Handler) SimulateMovement(w http.ResponseWriter, r *http.Request) {
	predictions := h.engine.SimulateMovement(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"message":          "Movement simulation completed",
		"vehicles_updated": len(predictions),
		"predictions":      predictions,
	})
}

// requestLogger seeds the request context with a logger carrying the
// method and path, so handlers and the engine log with request scope.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := h.logger.With(
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path))
		next.ServeHTTP(w, r.WithContext(common.WithLogger(r.Context(), logger)))
	})
}

func errorBody(message string) map[string]string {
	return map[string]string{"error": message, "message": message}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
