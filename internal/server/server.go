// Package server exposes the simulation's pull-based read API, push-based
// WebSocket snapshots, and runtime configuration endpoint, adapted from the
// teacher's HTTP layer onto gorilla/mux so vehicle/passenger routes can take
// path parameters.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ridesim/internal/fleet"
	"ridesim/internal/riders"
)

// VehicleSource is the subset of the Vehicle Manager the server reads from.
type VehicleSource interface {
	Vehicles() []fleet.Vehicle
}

// PassengerSource is the subset of the Passenger Queue the server reads from.
type PassengerSource interface {
	NewPassengers() []riders.Passenger
}

// ConfigSource exposes the live simulation knobs for the config endpoint.
type ConfigSource interface {
	SimulationConfig() SimulationConfig
	ApplySimulationConfig(SimulationConfig)
}

// SimulationConfig mirrors the six knobs spec.md §6 names, the extension of
// the teacher's truck-only simulationConfigResponse.
type SimulationConfig struct {
	MaxVehicles      int     `json:"maxVehicles"`
	MaxPassengers    int     `json:"maxPassengers"`
	TickIntervalMs   int64   `json:"tickIntervalMs"`
	RenderIntervalMs int64   `json:"renderIntervalMs"`
	FailureLimit     int     `json:"failureLimit"`
	DistancePerCycle float64 `json:"distancePerCycle"`
}

// Intersection is the static node snapshot served once at startup.
type Intersection struct {
	ID  int     `json:"id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Server exposes HTTP and WebSocket endpoints over a running simulation.
type Server struct {
	vehicles      VehicleSource
	passengers    PassengerSource
	config        ConfigSource
	intersections []Intersection

	simulationID string

	wsUpgrader        websocket.Upgrader
	wsInterval        time.Duration
	defaultPage       int
	defaultLimit      int
	logger            *slog.Logger
	correlationHeader string
	adminEnabled      bool
}

// New constructs a Server. intersections is captured once since the route
// graph never changes after startup.
func New(vehicles VehicleSource, passengers PassengerSource, cfg ConfigSource, intersections []Intersection, simulationID string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		vehicles:      vehicles,
		passengers:    passengers,
		config:        cfg,
		intersections: intersections,
		simulationID:  simulationID,
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		wsInterval:        500 * time.Millisecond,
		defaultPage:       1,
		defaultLimit:      100,
		logger:            logger,
		correlationHeader: "X-Correlation-ID",
	}
}

// WithAdminEnabled enables pprof endpoints under /admin.
func (s *Server) WithAdminEnabled() *Server {
	s.adminEnabled = true
	return s
}

// Routes builds the full mux, including admin routes if enabled.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.wrap(s.handleHealth)).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.wrap(s.handleReadiness)).Methods(http.MethodGet)
	r.HandleFunc("/api/vehicles", s.wrap(s.handleVehicles)).Methods(http.MethodGet)
	r.HandleFunc("/api/vehicles/{id:[0-9]+}", s.wrap(s.handleVehicleByID)).Methods(http.MethodGet)
	r.HandleFunc("/api/passengers/new", s.wrap(s.handleNewPassengers)).Methods(http.MethodGet)
	r.HandleFunc("/api/intersections", s.wrap(s.handleIntersections)).Methods(http.MethodGet)
	r.HandleFunc("/api/simulation/config", s.wrap(s.handleSimulationConfig)).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/ws/vehicles", s.wrap(s.handleVehiclesWebSocket))
	r.HandleFunc("/ws/passengers", s.wrap(s.handlePassengersWebSocket))
	r.Handle("/metrics", promhttp.Handler())

	if s.adminEnabled {
		r.HandleFunc("/admin/debug/pprof/", pprof.Index)
		r.HandleFunc("/admin/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/admin/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/admin/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/admin/debug/pprof/trace", pprof.Trace)
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.vehicles == nil {
		http.Error(w, "simulation not started", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

type paginatedVehicles struct {
	SimulationID string          `json:"simulationId"`
	Vehicles     []fleet.Vehicle `json:"vehicles"`
	Page         int             `json:"page"`
	Size         int             `json:"size"`
	Total        int             `json:"total"`
}

func (s *Server) pageAndSize(r *http.Request) (int, int) {
	page, size := s.defaultPage, s.defaultLimit
	if v := r.URL.Query().Get("page"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			page = parsed
		}
	}
	if v := r.URL.Query().Get("size"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			size = parsed
		}
	}
	return page, size
}

func (s *Server) handleVehicles(w http.ResponseWriter, r *http.Request) {
	page, size := s.pageAndSize(r)
	snapshot := s.vehicles.Vehicles()
	total := len(snapshot)

	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}

	resp := paginatedVehicles{
		SimulationID: s.simulationID,
		Vehicles:     snapshot[start:end],
		Page:         page,
		Size:         size,
		Total:        total,
	}
	writeJSON(w, resp)
}

func (s *Server) handleVehicleByID(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "invalid vehicle id", http.StatusBadRequest)
		return
	}
	for _, v := range s.vehicles.Vehicles() {
		if v.ID == id {
			writeJSON(w, v)
			return
		}
	}
	http.Error(w, "vehicle not found", http.StatusNotFound)
}

type newPassengersResponse struct {
	SimulationID string              `json:"simulationId"`
	Passengers   []riders.Passenger  `json:"passengers"`
}

func (s *Server) handleNewPassengers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, newPassengersResponse{
		SimulationID: s.simulationID,
		Passengers:   s.passengers.NewPassengers(),
	})
}

type intersectionsResponse struct {
	Intersections []Intersection `json:"intersections"`
}

func (s *Server) handleIntersections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, intersectionsResponse{Intersections: s.intersections})
}

func (s *Server) handleSimulationConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, s.config.SimulationConfig())
	case http.MethodPost:
		var req SimulationConfig
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.MaxVehicles <= 0 || req.MaxPassengers <= 0 || req.TickIntervalMs <= 0 {
			http.Error(w, "maxVehicles, maxPassengers and tickIntervalMs must be positive", http.StatusBadRequest)
			return
		}
		s.config.ApplySimulationConfig(req)
		writeJSON(w, s.config.SimulationConfig())
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleVehiclesWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err, "correlation_id", correlationIDFromContext(r.Context()))
		return
	}
	defer conn.Close()

	s.streamWebSocket(r, conn, func() (interface{}, error) {
		return s.vehicles.Vehicles(), nil
	})
}

func (s *Server) handlePassengersWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err, "correlation_id", correlationIDFromContext(r.Context()))
		return
	}
	defer conn.Close()

	s.streamWebSocket(r, conn, func() (interface{}, error) {
		return s.passengers.NewPassengers(), nil
	})
}

// renderInterval reads the live push cadence from the config source, so a
// POST to /api/simulation/config takes effect on already-open connections.
// Falls back to wsInterval if the config source reports a non-positive value.
func (s *Server) renderInterval() time.Duration {
	if s.config != nil {
		if ms := s.config.SimulationConfig().RenderIntervalMs; ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return s.wsInterval
}

// streamWebSocket pushes whatever snapshot produces at startup, then again
// on each tick of the live render interval, until the request context is
// cancelled or a write fails, matching the teacher's handleTrucksWebSocket
// loop. The ticker is reset every cycle so RenderIntervalMs changes made via
// /api/simulation/config apply to already-open connections.
func (s *Server) streamWebSocket(r *http.Request, conn *websocket.Conn, snapshot func() (interface{}, error)) {
	send := func() error {
		payload, err := snapshot()
		if err != nil {
			return err
		}
		return conn.WriteJSON(payload)
	}

	if err := send(); err != nil {
		s.logger.Error("websocket initial send failed", "err", err, "correlation_id", correlationIDFromContext(r.Context()))
		return
	}

	ticker := time.NewTicker(s.renderInterval())
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := send(); err != nil {
				s.logger.Error("websocket send failed", "err", err, "correlation_id", correlationIDFromContext(r.Context()))
				return
			}
			ticker.Reset(s.renderInterval())
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
