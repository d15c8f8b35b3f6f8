// Command ridesim runs the rideshare fleet simulation: it wires the route
// model, the three actors (Passenger Queue, Vehicle Manager, Ride Matcher),
// and the HTTP/WebSocket read API, then runs the Passenger Queue and Vehicle
// Manager loops and the HTTP server under one errgroup until a shutdown
// signal arrives. The Ride Matcher has no loop of its own; it runs inside
// the calls the other two actors make into it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ridesim/internal/config"
	"ridesim/internal/dispatch"
	"ridesim/internal/fleet"
	"ridesim/internal/geo"
	"ridesim/internal/mapdata"
	"ridesim/internal/riders"
	"ridesim/internal/routemodel"
	"ridesim/internal/server"
)

func main() {
	flags := parseFlags()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load(flags)
	if err != nil {
		logger.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	simulationID := uuid.NewString()
	logger = logger.With("simulation_id", simulationID)

	graph, err := loadGraph(cfg.MapFile)
	if err != nil {
		logger.Error("failed to load map", "err", err)
		os.Exit(1)
	}

	seed := cfg.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	model := routemodel.New(graph, rng)

	if cfg.DistancePerCycle <= 0 {
		cfg.DistancePerCycle = model.Bounds().LatSpan() / 1000
		logger.Info("derived distance_per_cycle from map bounds", "distance_per_cycle", cfg.DistancePerCycle)
	}

	passengerQueue := riders.New(model, rng, riders.Config{
		PoolSize:         cfg.MaxPassengers,
		GenerateInterval: cfg.TickInterval,
	}, logger.With("component", "passenger_queue"))
	passengerQueue.Seed()

	vehicleManager := fleet.New(model, rng, fleet.Config{
		NumVehicles:      cfg.MaxVehicles,
		TickInterval:     cfg.TickInterval,
		FailureLimit:     cfg.FailureLimit,
		DistancePerCycle: cfg.DistancePerCycle,
		CooldownInterval: cfg.CooldownInterval,
	}, logger.With("component", "vehicle_manager"))

	matcher := dispatch.New(vehicleManager, passengerQueue, logger.With("component", "ride_matcher"))
	vehicleManager.SetMatcher(matcher)
	passengerQueue.SetMatcher(matcher)

	intersections := make([]server.Intersection, 0, len(graph.Nodes))
	for _, n := range graph.Nodes {
		intersections = append(intersections, server.Intersection{
			ID:  n.Index,
			Lat: n.Coordinate.Y,
			Lon: n.Coordinate.X,
		})
	}

	configStore := server.NewStaticConfig(server.SimulationConfig{
		MaxVehicles:      cfg.MaxVehicles,
		MaxPassengers:    cfg.MaxPassengers,
		TickIntervalMs:   cfg.TickInterval.Milliseconds(),
		RenderIntervalMs: cfg.RenderInterval.Milliseconds(),
		FailureLimit:     cfg.FailureLimit,
		DistancePerCycle: cfg.DistancePerCycle,
	})

	srv := server.New(vehicleManager, passengerQueue, configStore, intersections, simulationID, logger.With("component", "http"))

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Routes(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		passengerQueue.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		vehicleManager.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		logger.Info("starting server", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Error("simulation exited with error", "err", err)
		os.Exit(1)
	}
	logger.Info("simulation shut down cleanly")
}

// parseFlags gathers the command-line overrides. Every flag defaults to its
// zero value, and both this function and config.Load skip zero values, so an
// unset flag leaves the RIDESIM_* environment, file, or default value in
// place.
func parseFlags() config.Flags {
	addr := flag.String("addr", "", "HTTP listen address")
	mapFile := flag.String("map-file", "", "path to a JSON map document; a synthetic grid is used if empty")
	maxVehicles := flag.Int("max-vehicles", 0, "number of vehicles to simulate")
	maxPassengers := flag.Int("max-passengers", 0, "size of the passenger pool")
	tickIntervalMs := flag.Int("tick-ms", 0, "vehicle manager tick interval in milliseconds")
	renderIntervalMs := flag.Int("render-ms", 0, "websocket push interval in milliseconds")
	failureLimit := flag.Int("failure-limit", 0, "consecutive match failures before a vehicle cools down")
	distancePerCycle := flag.Float64("distance-per-cycle", 0, "degrees travelled per vehicle manager tick")
	configFile := flag.String("config", "", "optional YAML configuration file")
	flag.Parse()

	f := config.Flags{
		Addr:       addr,
		MapFile:    mapFile,
		ConfigFile: configFile,
	}
	if *maxVehicles > 0 {
		f.MaxVehicles = maxVehicles
	}
	if *maxPassengers > 0 {
		f.MaxPassengers = maxPassengers
	}
	if *tickIntervalMs > 0 {
		interval := time.Duration(*tickIntervalMs) * time.Millisecond
		f.TickInterval = &interval
	}
	if *renderIntervalMs > 0 {
		interval := time.Duration(*renderIntervalMs) * time.Millisecond
		f.RenderInterval = &interval
	}
	if *failureLimit > 0 {
		f.FailureLimit = failureLimit
	}
	if *distancePerCycle > 0 {
		f.DistancePerCycle = distancePerCycle
	}
	return f
}

func loadGraph(mapFile string) (mapdata.Graph, error) {
	if mapFile == "" {
		bounds := geo.Bounds{MinLon: -122.45, MaxLon: -122.40, MinLat: 37.75, MaxLat: 37.80}
		return mapdata.SyntheticGrid(12, 12, bounds), nil
	}
	f, err := os.Open(mapFile)
	if err != nil {
		return mapdata.Graph{}, fmt.Errorf("open map file: %w", err)
	}
	defer f.Close()
	return mapdata.JSONLoader{}.Load(f)
}
