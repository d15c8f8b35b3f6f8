package server

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ridesim/internal/fleet"
	"ridesim/internal/geo"
	"ridesim/internal/mapdata"
	"ridesim/internal/riders"
	"ridesim/internal/routemodel"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	bounds := geo.Bounds{MinLon: 0, MaxLon: 4, MinLat: 0, MaxLat: 4}
	graph := mapdata.SyntheticGrid(5, 5, bounds)
	model := routemodel.New(graph, rand.New(rand.NewSource(1)))

	vehicles := fleet.New(model, rand.New(rand.NewSource(1)), fleet.Config{
		NumVehicles:      5,
		TickInterval:     10 * time.Millisecond,
		FailureLimit:     3,
		DistancePerCycle: 0.5,
	}, nil)

	passengers := riders.New(model, rand.New(rand.NewSource(1)), riders.Config{PoolSize: 4}, nil)
	passengers.Seed()

	intersections := make([]Intersection, len(graph.Nodes))
	for i, n := range graph.Nodes {
		intersections[i] = Intersection{ID: n.Index, Lat: n.Coordinate.Y, Lon: n.Coordinate.X}
	}

	cfgStore := NewStaticConfig(SimulationConfig{
		MaxVehicles:      5,
		MaxPassengers:    4,
		TickIntervalMs:   10,
		RenderIntervalMs: 20,
		FailureLimit:     3,
		DistancePerCycle: 0.5,
	})

	return New(vehicles, passengers, cfgStore, intersections, "test-sim", nil)
}

func TestHealthAndReadiness(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Routes()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("health check failed: code %d body %q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ready" {
		t.Fatalf("readiness check failed: code %d body %q", rr.Code, rr.Body.String())
	}
}

func TestVehiclesPagination(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Routes()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/vehicles?page=1&size=2", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	var resp paginatedVehicles
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Page != 1 || resp.Size != 2 {
		t.Fatalf("unexpected pagination metadata: %+v", resp)
	}
	if len(resp.Vehicles) != 2 {
		t.Fatalf("expected 2 vehicles, got %d", len(resp.Vehicles))
	}
	if resp.Total != 5 {
		t.Fatalf("expected total 5, got %d", resp.Total)
	}
}

func TestVehicleByIDNotFound(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Routes()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/vehicles/99999", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown vehicle id, got %d", rr.Code)
	}
}

func TestNewPassengersEndpoint(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Routes()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/passengers/new", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	var resp newPassengersResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Passengers) != 4 {
		t.Fatalf("expected 4 new passengers, got %d", len(resp.Passengers))
	}
}

func TestIntersectionsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Routes()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/intersections", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	var resp intersectionsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Intersections) != 25 {
		t.Fatalf("expected 25 intersections, got %d", len(resp.Intersections))
	}
}

func TestSimulationConfigGetAndPost(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Routes()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/simulation/config", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	var got SimulationConfig
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.MaxVehicles != 5 {
		t.Fatalf("unexpected config: %+v", got)
	}

	body := strings.NewReader(`{"maxVehicles":9,"maxPassengers":9,"tickIntervalMs":50,"renderIntervalMs":50,"failureLimit":2,"distancePerCycle":0.1}`)
	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/simulation/config", body)
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status on update: %d body=%s", rr.Code, rr.Body.String())
	}

	var updated SimulationConfig
	if err := json.Unmarshal(rr.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if updated.MaxVehicles != 9 {
		t.Fatalf("expected config to be applied, got %+v", updated)
	}
}

func TestSimulationConfigRejectsInvalidUpdate(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Routes()

	body := strings.NewReader(`{"maxVehicles":0,"maxPassengers":1,"tickIntervalMs":10}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/simulation/config", body))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid update, got %d", rr.Code)
	}
}
