// Package fleet implements the Vehicle Manager (spec §4.D): the per-vehicle
// state machine and incremental-motion kinematics, driven by one drive loop
// ticking at a fixed rate.
package fleet

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	channerics "github.com/niceyeti/channerics/channels"

	"ridesim/internal/geo"
	"ridesim/internal/metrics"
	"ridesim/internal/riders"
	"ridesim/internal/routemodel"
	"ridesim/internal/routing"
)

// State is a vehicle's position in the state machine described in spec §4.D.
type State string

const (
	StateNoPassengerRequested State = "no_passenger_requested"
	StateNoPassengerQueued    State = "no_passenger_queued"
	StatePassengerQueued      State = "passenger_queued"
	StateDrivingPassenger     State = "driving_passenger"
	StateWaiting              State = "waiting"
)

// Vehicle is the mutable per-instance state owned exclusively by the
// Manager's drive loop. External callers never write to a Vehicle directly;
// they call Manager methods, which serialise access.
type Vehicle struct {
	ID          int
	Position    geo.Coordinate
	Destination geo.Coordinate
	Path        []geo.Coordinate
	PathIndex   int
	Passenger   *riders.Passenger
	State       State
	Failures    int
}

// arrived reports whether path_index has consumed the whole path.
func (v *Vehicle) arrived() bool {
	return v.PathIndex >= len(v.Path)
}

// MatchRequester is the subset of the Ride Matcher a Vehicle Manager needs.
type MatchRequester interface {
	VehicleRequestsPassenger(vehicleID int)
	VehicleArrived(vehicleID int)
	// VehiclePickupFailed reports that the vehicle matched to a passenger
	// could not route to the pickup; the matcher re-enqueues the passenger
	// and calls MatchFailed back on this manager (spec §4.E "Failure path").
	VehiclePickupFailed(vehicleID int)
	// VehicleUnroutableDestination reports that a vehicle carrying p could
	// not route to its destination; the matcher hands p back to the
	// Passenger Queue (spec §7, Unroutable while carrying a passenger).
	VehicleUnroutableDestination(vehicleID int, p riders.Passenger)
	// VehiclePassengerDroppedOff reports that a vehicle has delivered
	// passengerID to its destination, so the matcher can tell the Passenger
	// Queue to destroy it and generate a replacement (spec §3, §4.C).
	VehiclePassengerDroppedOff(vehicleID int, passengerID int)
}

// Config configures a Manager.
type Config struct {
	NumVehicles      int
	TickInterval     time.Duration
	FailureLimit     int
	DistancePerCycle float64
	CooldownInterval time.Duration // delay applied to a vehicle after FailureLimit consecutive failures
}

// Manager owns every Vehicle for the simulation's lifetime and runs the
// single drive loop that mutates them (spec §5: "Mutated exclusively by the
// Vehicle Manager's drive task").
type Manager struct {
	mu       sync.Mutex
	vehicles []*Vehicle
	byID     map[int]*Vehicle
	cooldown map[int]time.Time

	model    *routemodel.RouteModel
	rng      *rand.Rand
	matcher  MatchRequester
	logger   *slog.Logger
	cfg      Config
	lastTick time.Time
}

// New constructs a Manager with NumVehicles vehicles, each starting at a
// random map position with a random destination.
func New(model *routemodel.RouteModel, rng *rand.Rand, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CooldownInterval <= 0 {
		cfg.CooldownInterval = cfg.TickInterval * 5
	}
	m := &Manager{
		byID:     make(map[int]*Vehicle),
		cooldown: make(map[int]time.Time),
		model:    model,
		rng:      rng,
		logger:   logger,
		cfg:      cfg,
	}
	for i := 0; i < cfg.NumVehicles; i++ {
		id := i + 1
		pos := model.ClosestNode(model.RandomPosition()).Coordinate
		dest := model.ClosestNode(model.RandomPosition()).Coordinate
		v := &Vehicle{
			ID:          id,
			Position:    pos,
			Destination: dest,
			State:       StateNoPassengerRequested,
		}
		m.vehicles = append(m.vehicles, v)
		m.byID[id] = v
	}
	return m
}

// SetMatcher wires the Ride Matcher this manager reports to.
func (m *Manager) SetMatcher(matcher MatchRequester) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matcher = matcher
}

// Vehicles returns a snapshot copy of every vehicle, for the renderer.
func (m *Manager) Vehicles() []Vehicle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Vehicle, len(m.vehicles))
	for i, v := range m.vehicles {
		out[i] = *v
		if v.Passenger != nil {
			p := *v.Passenger
			out[i].Passenger = &p
		}
	}
	return out
}

// Run drives the tick loop until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := channerics.NewTicker(ctx.Done(), m.cfg.TickInterval)
	for range channerics.OrDone(ctx.Done(), ticker) {
		m.tick()
	}
}

// matcherEvent is a deferred call into the Ride Matcher, collected while the
// manager's lock is held and dispatched only after it's released — so the
// matcher never needs to call back into the manager while the manager is
// mid-tick, keeping the lock order in spec §5 (matcher -> queue -> manager).
type matcherEvent struct {
	kind        string // "request", "arrived", "pickup_failed", "orphaned", or "dropped_off"
	vehicleID   int
	passenger   riders.Passenger // only set for "orphaned"
	passengerID int              // only set for "dropped_off"
}

func (m *Manager) tick() {
	m.mu.Lock()
	now := time.Now()
	if !m.lastTick.IsZero() {
		metrics.TickLatency.Observe(now.Sub(m.lastTick).Seconds())
	}
	m.lastTick = now

	var events []matcherEvent
	for _, v := range m.vehicles {
		if until, cooling := m.cooldown[v.ID]; cooling {
			if now.Before(until) {
				continue
			}
			delete(m.cooldown, v.ID)
		}
		vehicleStart := time.Now()
		events = append(events, m.stepVehicleLocked(v)...)
		metrics.VehicleUpdateDuration.Observe(time.Since(vehicleStart).Seconds())
	}
	matcher := m.matcher
	m.mu.Unlock()

	if matcher == nil {
		return
	}
	for _, e := range events {
		switch e.kind {
		case "request":
			matcher.VehicleRequestsPassenger(e.vehicleID)
		case "arrived":
			matcher.VehicleArrived(e.vehicleID)
		case "pickup_failed":
			matcher.VehiclePickupFailed(e.vehicleID)
		case "orphaned":
			matcher.VehicleUnroutableDestination(e.vehicleID, e.passenger)
		case "dropped_off":
			matcher.VehiclePassengerDroppedOff(e.vehicleID, e.passengerID)
		}
	}
}

func (m *Manager) stepVehicleLocked(v *Vehicle) []matcherEvent {
	var events []matcherEvent

	// 1. Routing: if path is empty, plan from current position to destination.
	if len(v.Path) == 0 {
		path := routing.Plan(m.model, v.Position, v.Destination)
		if len(path) == 0 {
			switch v.State {
			case StatePassengerQueued:
				// Pickup unreachable: let the matcher re-enqueue the
				// passenger and call MatchFailed back on us.
				events = append(events, matcherEvent{kind: "pickup_failed", vehicleID: v.ID})
			case StateDrivingPassenger:
				// Destination unreachable while carrying a passenger: hand
				// the passenger back to the queue via the matcher and reset.
				p := *v.Passenger
				v.Passenger = nil
				v.State = StateNoPassengerRequested
				v.Destination = m.model.ClosestNode(m.model.RandomPosition()).Coordinate
				events = append(events, matcherEvent{kind: "orphaned", vehicleID: v.ID, passenger: p})
			default:
				v.Destination = m.model.ClosestNode(m.model.RandomPosition()).Coordinate
			}
			return events
		}
		v.Path = path
		v.PathIndex = 0
	}

	// 2. Passenger request.
	if v.State == StateNoPassengerRequested {
		v.State = StateNoPassengerQueued
		events = append(events, matcherEvent{kind: "request", vehicleID: v.ID})
	}

	// 3. Motion gating.
	if v.State == StateWaiting {
		return events
	}

	// 4. Incremental move.
	if !v.arrived() {
		next := v.Path[v.PathIndex]
		d := geo.Distance(v.Position, next)
		step := m.cfg.DistancePerCycle
		if d <= step {
			v.Position = next
			v.PathIndex++
		} else {
			theta := geo.Bearing(v.Position, next)
			v.Position = geo.Coordinate{
				X: v.Position.X + step*math.Cos(theta),
				Y: v.Position.Y + step*math.Sin(theta),
			}
		}
		if v.Passenger != nil {
			v.Passenger.Position = v.Position
		}
	}

	// 5. Arrival test.
	if v.Position.Equal(v.Destination) {
		if arrivedEvent, ok := m.handleArrivalLocked(v); ok {
			events = append(events, arrivedEvent)
		}
	}
	return events
}

func (m *Manager) handleArrivalLocked(v *Vehicle) (matcherEvent, bool) {
	switch v.State {
	case StateNoPassengerQueued:
		v.Destination = m.model.ClosestNode(m.model.RandomPosition()).Coordinate
		v.Path = nil
		v.PathIndex = 0
	case StatePassengerQueued:
		v.State = StateWaiting
		v.Path = nil
		v.PathIndex = 0
		return matcherEvent{kind: "arrived", vehicleID: v.ID}, true
	case StateDrivingPassenger:
		droppedID := v.Passenger.ID
		v.Passenger = nil
		metrics.VehicleFailures.Observe(float64(v.Failures))
		v.Failures = 0
		v.Destination = m.model.ClosestNode(m.model.RandomPosition()).Coordinate
		v.Path = nil
		v.PathIndex = 0
		v.State = StateNoPassengerRequested
		return matcherEvent{kind: "dropped_off", vehicleID: v.ID, passengerID: droppedID}, true
	}
	return matcherEvent{}, false
}

// AssignPassenger is called by the Ride Matcher once it has paired this
// vehicle with a passenger: it sets the vehicle's destination to the
// pickup point and moves it into PassengerQueued.
func (m *Manager) AssignPassenger(vehicleID int, pickup geo.Coordinate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.byID[vehicleID]
	if !ok {
		return
	}
	v.Destination = pickup
	v.Path = nil
	v.PathIndex = 0
	v.State = StatePassengerQueued
}

// PassengerIntoVehicle is called by the Ride Matcher after it has handed the
// passenger off from the queue: the vehicle takes ownership, its
// destination becomes the passenger's destination, and it starts driving.
func (m *Manager) PassengerIntoVehicle(vehicleID int, p riders.Passenger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.byID[vehicleID]
	if !ok {
		return
	}
	p.Position = v.Position
	v.Passenger = &p
	v.Destination = p.Destination
	v.Path = nil
	v.PathIndex = 0
	v.State = StateDrivingPassenger
}

// MatchFailed is called by the Ride Matcher when it could not route this
// vehicle to a matched passenger's pickup. It increments the failure
// counter; below FailureLimit the vehicle goes back to requesting a new
// match. At or above the limit it moves to NoPassengerQueued with a new
// random destination and the tick loop skips it for CooldownInterval to
// avoid livelock (spec §4.E "Failure path"); in that state it sends no new
// match request.
func (m *Manager) MatchFailed(vehicleID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.byID[vehicleID]
	if !ok {
		return
	}
	v.Failures++
	if v.Failures < m.cfg.FailureLimit {
		v.State = StateNoPassengerRequested
		return
	}
	metrics.VehicleFailures.Observe(float64(v.Failures))
	v.State = StateNoPassengerQueued
	v.Destination = m.model.ClosestNode(m.model.RandomPosition()).Coordinate
	v.Path = nil
	v.PathIndex = 0
	m.cooldown[vehicleID] = time.Now().Add(m.cfg.CooldownInterval)
}
