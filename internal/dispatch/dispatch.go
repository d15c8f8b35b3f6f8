// Package dispatch implements the Ride Matcher (spec §4.E): the central
// orchestrator that pairs open vehicle requests with open passenger
// requests and hands the passenger off between the Passenger Queue and the
// Vehicle Manager.
package dispatch

import (
	"log/slog"
	"sync"

	"ridesim/internal/geo"
	"ridesim/internal/metrics"
	"ridesim/internal/riders"
)

// VehicleManager is the subset of the Vehicle Manager the matcher drives.
type VehicleManager interface {
	AssignPassenger(vehicleID int, pickup geo.Coordinate)
	PassengerIntoVehicle(vehicleID int, p riders.Passenger)
	MatchFailed(vehicleID int)
}

// PassengerQueue is the subset of the Passenger Queue the matcher drives.
type PassengerQueue interface {
	HandOff(passengerID int) (riders.Passenger, error)
	Requeue(p riders.Passenger)
	Peek(passengerID int) (riders.Passenger, bool)
	DropOff(passengerID int)
}

// Matcher holds the two open FIFOs and the pending-arrival map described in
// spec §4.E and §3. All of its own state is protected by a single mutex,
// held for the full duration of each change to that state. VehicleArrived
// and VehiclePickupFailed release it before calling into the Passenger Queue
// or the Vehicle Manager.
type Matcher struct {
	mu             sync.Mutex
	openVehicles   []int
	openPassengers []int
	// pendingArrival maps a matched vehicle id to the passenger id it's
	// driving to pick up, until VehicleArrived consumes the entry.
	pendingArrival map[int]int

	vehicles   VehicleManager
	passengers PassengerQueue
	logger     *slog.Logger
}

// New constructs a Matcher wired to the given Vehicle Manager and Passenger
// Queue. Both must already exist; callers typically wire this matcher back
// into each of them via SetMatcher after construction.
func New(vehicles VehicleManager, passengers PassengerQueue, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		pendingArrival: make(map[int]int),
		vehicles:       vehicles,
		passengers:     passengers,
		logger:         logger,
	}
}

// VehicleRequestsPassenger enqueues a vehicle id as ride-wanting, ignoring
// the call if it's already queued (idempotent requests law), then attempts
// a match.
func (m *Matcher) VehicleRequestsPassenger(vehicleID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !containsInt(m.openVehicles, vehicleID) {
		m.openVehicles = append(m.openVehicles, vehicleID)
	}
	m.matchLocked()
}

// PassengerRequestsRide enqueues a passenger id as wanting a ride,
// symmetric to VehicleRequestsPassenger.
func (m *Matcher) PassengerRequestsRide(passengerID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !containsInt(m.openPassengers, passengerID) {
		m.openPassengers = append(m.openPassengers, passengerID)
	}
	m.matchLocked()
}

// matchLocked pairs the head of openVehicles with the head of
// openPassengers, FIFO on both sides, as long as both are non-empty.
func (m *Matcher) matchLocked() {
	for len(m.openVehicles) > 0 && len(m.openPassengers) > 0 {
		vehicleID := m.openVehicles[0]
		passengerID := m.openPassengers[0]
		m.openVehicles = m.openVehicles[1:]
		m.openPassengers = m.openPassengers[1:]

		pending, ok := m.passengers.Peek(passengerID)
		if !ok {
			// The passenger disappeared between enqueue and match (stale):
			// drop this pairing's passenger side and retry with the vehicle
			// requeued, since it's still waiting.
			m.openVehicles = append([]int{vehicleID}, m.openVehicles...)
			continue
		}

		m.pendingArrival[vehicleID] = passengerID
		m.vehicles.AssignPassenger(vehicleID, pending.Start)
		m.logger.Info("match made", "vehicle_id", vehicleID, "passenger_id", passengerID)
	}
	m.reportDepthLocked()
}

// reportDepthLocked publishes queue-depth gauges; callers must hold mu.
func (m *Matcher) reportDepthLocked() {
	metrics.OpenVehicleQueueDepth.Set(float64(len(m.openVehicles)))
	metrics.OpenPassengerQueueDepth.Set(float64(len(m.openPassengers)))
	metrics.PendingArrivalDepth.Set(float64(len(m.pendingArrival)))
}

// VehicleArrived is called by the Vehicle Manager once a vehicle reaches a
// matched pickup point: the matcher hands the passenger off from the queue
// and forwards ownership into the vehicle.
func (m *Matcher) VehicleArrived(vehicleID int) {
	m.mu.Lock()
	passengerID, ok := m.pendingArrival[vehicleID]
	if ok {
		delete(m.pendingArrival, vehicleID)
	}
	m.reportDepthLocked()
	m.mu.Unlock()

	if !ok {
		m.logger.Warn("vehicle arrived with no pending match", "vehicle_id", vehicleID)
		return
	}

	p, err := m.passengers.HandOff(passengerID)
	if err != nil {
		// MatchStale: the passenger was already handed off or never
		// existed. Absorbed silently per spec §7.
		m.logger.Info("stale handoff discarded", "vehicle_id", vehicleID, "passenger_id", passengerID, "err", err)
		return
	}
	m.vehicles.PassengerIntoVehicle(vehicleID, p)
}

// VehiclePickupFailed is called by the Vehicle Manager when a vehicle
// couldn't route to its matched pickup. The matcher re-enqueues the
// passenger at the head of its own open queue and reports the failure back
// to the Vehicle Manager.
func (m *Matcher) VehiclePickupFailed(vehicleID int) {
	m.mu.Lock()
	passengerID, ok := m.pendingArrival[vehicleID]
	if ok {
		delete(m.pendingArrival, vehicleID)
		if !containsInt(m.openPassengers, passengerID) {
			m.openPassengers = append([]int{passengerID}, m.openPassengers...)
		}
	}
	m.reportDepthLocked()
	m.mu.Unlock()

	m.logger.Info("pickup failed, passenger requeued", "vehicle_id", vehicleID, "passenger_id", passengerID)
	m.vehicles.MatchFailed(vehicleID)
	m.matchRetry()
}

// VehicleUnroutableDestination is called by the Vehicle Manager when a
// vehicle carrying a passenger can't route to its destination. The passenger
// is handed back to the Passenger Queue as a new (not in-transit) passenger.
func (m *Matcher) VehicleUnroutableDestination(vehicleID int, p riders.Passenger) {
	m.logger.Info("passenger returned to queue after unroutable destination", "vehicle_id", vehicleID, "passenger_id", p.ID)
	m.passengers.Requeue(p)
}

// VehiclePassengerDroppedOff is called by the Vehicle Manager once a vehicle
// has delivered a passenger to its destination. The matcher forwards this to
// the Passenger Queue so it can destroy the passenger and generate a
// replacement (spec §3, §4.C).
func (m *Matcher) VehiclePassengerDroppedOff(vehicleID int, passengerID int) {
	m.passengers.DropOff(passengerID)
	m.logger.Info("passenger dropped off", "vehicle_id", vehicleID, "passenger_id", passengerID)
}

// matchRetry re-attempts matching after a requeue outside the main
// VehicleRequestsPassenger/PassengerRequestsRide entry points.
func (m *Matcher) matchRetry() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matchLocked()
}

// OpenVehicleCount and OpenPassengerCount report the current queue depths;
// the metrics gauges are set separately by reportDepthLocked.
func (m *Matcher) OpenVehicleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.openVehicles)
}

func (m *Matcher) OpenPassengerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.openPassengers)
}

func (m *Matcher) PendingArrivalCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pendingArrival)
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
