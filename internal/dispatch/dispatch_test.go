package dispatch

import (
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"ridesim/internal/geo"
	"ridesim/internal/riders"
)

// fakeVehicles and fakePassengers are minimal in-memory doubles for the
// matcher's two dependency interfaces, recording every call so tests can
// assert on the sequence of matches made.
type fakeVehicles struct {
	mu          sync.Mutex
	assigned    map[int]geo.Coordinate
	intoVehicle map[int]riders.Passenger
	failed      []int
}

func newFakeVehicles() *fakeVehicles {
	return &fakeVehicles{assigned: map[int]geo.Coordinate{}, intoVehicle: map[int]riders.Passenger{}}
}

func (f *fakeVehicles) AssignPassenger(vehicleID int, pickup geo.Coordinate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assigned[vehicleID] = pickup
}
func (f *fakeVehicles) PassengerIntoVehicle(vehicleID int, p riders.Passenger) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intoVehicle[vehicleID] = p
}
func (f *fakeVehicles) MatchFailed(vehicleID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, vehicleID)
}

type fakePassengers struct {
	mu         sync.Mutex
	byID       map[int]riders.Passenger
	handedOff  map[int]bool
	requeued   []riders.Passenger
	droppedOff []int
}

func newFakePassengers(passengers ...riders.Passenger) *fakePassengers {
	byID := make(map[int]riders.Passenger, len(passengers))
	for _, p := range passengers {
		byID[p.ID] = p
	}
	return &fakePassengers{byID: byID, handedOff: map[int]bool{}}
}

func (f *fakePassengers) Peek(id int) (riders.Passenger, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok || f.handedOff[id] {
		return riders.Passenger{}, false
	}
	return p, true
}

func (f *fakePassengers) HandOff(id int) (riders.Passenger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok || f.handedOff[id] {
		return riders.Passenger{}, riders.ErrNotFound
	}
	f.handedOff[id] = true
	return p, nil
}

func (f *fakePassengers) Requeue(p riders.Passenger) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requeued = append(f.requeued, p)
}

func (f *fakePassengers) DropOff(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.droppedOff = append(f.droppedOff, id)
}

func TestMatchMadeOnFIFOHeads(t *testing.T) {
	passengers := newFakePassengers(riders.Passenger{ID: 1, Start: geo.Coordinate{X: 1, Y: 1}})
	vehicles := newFakeVehicles()
	m := New(vehicles, passengers, nil)

	m.VehicleRequestsPassenger(10)
	m.PassengerRequestsRide(1)

	if _, ok := vehicles.assigned[10]; !ok {
		t.Fatalf("expected vehicle 10 to be assigned a pickup")
	}
	if m.OpenVehicleCount() != 0 || m.OpenPassengerCount() != 0 {
		t.Fatalf("expected both queues empty after a match, got vehicles=%d passengers=%d",
			m.OpenVehicleCount(), m.OpenPassengerCount())
	}
	if m.PendingArrivalCount() != 1 {
		t.Fatalf("expected one pending arrival, got %d", m.PendingArrivalCount())
	}
}

func TestVehicleRequestsPassengerIsIdempotent(t *testing.T) {
	passengers := newFakePassengers()
	vehicles := newFakeVehicles()
	m := New(vehicles, passengers, nil)

	m.VehicleRequestsPassenger(1)
	m.VehicleRequestsPassenger(1)
	m.VehicleRequestsPassenger(1)

	if m.OpenVehicleCount() != 1 {
		t.Fatalf("expected duplicate requests to collapse to one queue entry, got %d", m.OpenVehicleCount())
	}
}

func TestVehicleArrivedHandsPassengerIntoVehicle(t *testing.T) {
	passengers := newFakePassengers(riders.Passenger{ID: 5, Start: geo.Coordinate{X: 2, Y: 2}})
	vehicles := newFakeVehicles()
	m := New(vehicles, passengers, nil)

	m.VehicleRequestsPassenger(1)
	m.PassengerRequestsRide(5)
	m.VehicleArrived(1)

	p, ok := vehicles.intoVehicle[1]
	if !ok || p.ID != 5 {
		t.Fatalf("expected passenger 5 handed into vehicle 1, got %+v ok=%v", p, ok)
	}
}

func TestVehicleArrivedWithNoPendingMatchIsAbsorbed(t *testing.T) {
	m := New(newFakeVehicles(), newFakePassengers(), nil)
	// Must not panic despite no matching VehicleRequestsPassenger call.
	m.VehicleArrived(999)
}

func TestStalePassengerDuringMatchRequeuesVehicle(t *testing.T) {
	passengers := newFakePassengers() // passenger 7 is never actually present
	vehicles := newFakeVehicles()
	m := New(vehicles, passengers, nil)

	m.VehicleRequestsPassenger(1)
	m.PassengerRequestsRide(7) // matchLocked will Peek(7) and find nothing

	if _, assigned := vehicles.assigned[1]; assigned {
		t.Fatalf("expected no assignment for a stale passenger")
	}
	if m.OpenVehicleCount() != 1 {
		t.Fatalf("expected the vehicle to be re-queued after a stale match, got %d", m.OpenVehicleCount())
	}
}

func TestVehiclePickupFailedRequeuesPassengerAndReportsFailure(t *testing.T) {
	Convey("Given a vehicle matched to a pickup it can't reach", t, func() {
		passengers := newFakePassengers(riders.Passenger{ID: 3, Start: geo.Coordinate{X: 1, Y: 1}})
		vehicles := newFakeVehicles()
		m := New(vehicles, passengers, nil)

		m.VehicleRequestsPassenger(1)
		m.PassengerRequestsRide(3)

		Convey("when the pickup fails, the passenger re-enters the open queue and the vehicle manager learns about the failure", func() {
			m.VehiclePickupFailed(1)

			So(m.PendingArrivalCount(), ShouldEqual, 0)
			So(m.OpenPassengerCount(), ShouldEqual, 1)
			So(len(vehicles.failed), ShouldEqual, 1)
			So(vehicles.failed[0], ShouldEqual, 1)
		})
	})
}

func TestVehicleUnroutableDestinationRequeuesPassenger(t *testing.T) {
	passengers := newFakePassengers()
	m := New(newFakeVehicles(), passengers, nil)
	p := riders.Passenger{ID: 9}
	m.VehicleUnroutableDestination(1, p)
	// Requeue happens on the fakePassengers double, which records it.
	if len(passengers.requeued) != 1 || passengers.requeued[0].ID != 9 {
		t.Fatalf("expected passenger 9 requeued, got %+v", passengers.requeued)
	}
}

func TestVehiclePassengerDroppedOffForwardsToQueue(t *testing.T) {
	passengers := newFakePassengers()
	m := New(newFakeVehicles(), passengers, nil)

	m.VehiclePassengerDroppedOff(1, 9)

	if len(passengers.droppedOff) != 1 || passengers.droppedOff[0] != 9 {
		t.Fatalf("expected passenger 9 reported dropped off, got %v", passengers.droppedOff)
	}
}

func TestDuellingVehiclesBothGetMatched(t *testing.T) {
	passengers := newFakePassengers(
		riders.Passenger{ID: 1, Start: geo.Coordinate{X: 1, Y: 1}},
		riders.Passenger{ID: 2, Start: geo.Coordinate{X: 2, Y: 2}},
	)
	vehicles := newFakeVehicles()
	m := New(vehicles, passengers, nil)

	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); m.VehicleRequestsPassenger(10) }()
	go func() { defer wg.Done(); m.VehicleRequestsPassenger(20) }()
	go func() { defer wg.Done(); m.PassengerRequestsRide(1) }()
	go func() { defer wg.Done(); m.PassengerRequestsRide(2) }()
	wg.Wait()

	if len(vehicles.assigned) != 2 {
		t.Fatalf("expected both vehicles to be matched, got %d", len(vehicles.assigned))
	}
	if m.OpenVehicleCount() != 0 || m.OpenPassengerCount() != 0 {
		t.Fatalf("expected queues drained after both matches")
	}
}
