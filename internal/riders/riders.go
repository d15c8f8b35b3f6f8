// Package riders implements the Passenger Queue (spec §4.C): it owns the
// pool of Passengers, generates replacements as the pool drains, and
// forwards ride requests to whatever the Ride Matcher implementation is.
package riders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	channerics "github.com/niceyeti/channerics/channels"

	"ridesim/internal/geo"
	"ridesim/internal/routemodel"
)

// ErrNotFound signals a handoff for a passenger id that isn't (or is no
// longer) in the new-passenger pool. It indicates a protocol bug upstream:
// the matcher referenced a passenger that was already handed off or never
// existed.
var ErrNotFound = errors.New("passenger: not found")

// Passenger is the data carried by a rider awaiting or undergoing a trip.
// Position tracks the carrying vehicle by value once picked up; Passenger
// holds no pointer back to its vehicle (see design note on cyclic
// ownership).
type Passenger struct {
	ID          int
	Start       geo.Coordinate
	Destination geo.Coordinate
	Position    geo.Coordinate
	Color       geo.RGB
	Requested   bool
}

// MatchRequester is the subset of the Ride Matcher a Passenger Queue needs:
// registering a passenger as ride-wanting. Keeping this as an interface
// (rather than importing the dispatch package directly) avoids a cycle
// between riders and dispatch, which both need to reference each other's
// ids.
type MatchRequester interface {
	PassengerRequestsRide(passengerID int)
}

// Queue holds passengers not yet handed to a vehicle (new) and those
// currently being transported (in transit). All mutation goes through a
// single mutex, per spec §5.
type Queue struct {
	mu            sync.Mutex
	newPassengers []Passenger
	inTransit     map[int]Passenger
	nextID        int

	model    *routemodel.RouteModel
	rng      *rand.Rand
	poolSize int
	matcher  MatchRequester
	logger   *slog.Logger

	generateInterval time.Duration
}

// Config configures a Queue.
type Config struct {
	PoolSize         int
	GenerateInterval time.Duration // how often the background loop checks for replacements
}

// New constructs a Queue with an empty pool; call Seed to fill it before
// Run, and SetMatcher before either so requests have somewhere to go.
func New(model *routemodel.RouteModel, rng *rand.Rand, cfg Config, logger *slog.Logger) *Queue {
	if cfg.GenerateInterval <= 0 {
		cfg.GenerateInterval = 50 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		inTransit:        make(map[int]Passenger),
		nextID:           1,
		model:            model,
		rng:              rng,
		poolSize:         cfg.PoolSize,
		logger:           logger,
		generateInterval: cfg.GenerateInterval,
	}
}

// SetMatcher wires the Ride Matcher this queue forwards requests to.
func (q *Queue) SetMatcher(m MatchRequester) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.matcher = m
}

// Seed fills the pool up to PoolSize with freshly generated passengers.
func (q *Queue) Seed() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.topUpLocked()
}

func (q *Queue) topUpLocked() {
	for len(q.newPassengers)+len(q.inTransit) < q.poolSize {
		q.newPassengers = append(q.newPassengers, q.generateLocked())
	}
}

func (q *Queue) generateLocked() Passenger {
	start := q.model.ClosestNode(q.model.RandomPosition()).Coordinate
	dest := q.model.ClosestNode(q.model.RandomPosition()).Coordinate
	p := Passenger{
		ID:          q.nextID,
		Start:       start,
		Destination: dest,
		Position:    start,
		Color:       geo.RandomRGB(q.rng),
	}
	q.nextID++
	return p
}

// NewPassengers returns a snapshot of passengers not yet handed to a
// vehicle, for the renderer.
func (q *Queue) NewPassengers() []Passenger {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Passenger, len(q.newPassengers))
	copy(out, q.newPassengers)
	return out
}

// Peek returns a copy of a new (not yet handed off) passenger by id, without
// removing it from the pool.
func (q *Queue) Peek(id int) (Passenger, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range q.newPassengers {
		if p.ID == id {
			return p, true
		}
	}
	return Passenger{}, false
}

// HandOff removes a passenger from the new-passenger pool and moves it to
// in-transit, returning ownership to the caller (the Ride Matcher, which
// forwards it on to the Vehicle Manager). Returns ErrNotFound if the id
// isn't present, which the matcher treats as MatchStale and discards.
func (q *Queue) HandOff(id int) (Passenger, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, p := range q.newPassengers {
		if p.ID == id {
			q.newPassengers = append(q.newPassengers[:i], q.newPassengers[i+1:]...)
			q.inTransit[id] = p
			return p, nil
		}
	}
	return Passenger{}, fmt.Errorf("hand off passenger %d: %w", id, ErrNotFound)
}

// DropOff removes a passenger from in-transit permanently, destroying it.
// After this call the passenger object is unreachable from the queue.
func (q *Queue) DropOff(id int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inTransit, id)
	q.topUpLocked()
}

// Requeue returns a passenger to the new pool, used when the matcher learns
// a vehicle carrying it can't reach its destination (spec §7, "Unroutable
// while carrying a passenger"). The passenger was handed off into inTransit
// when its vehicle picked it up, so Requeue must clear that entry too, or it
// would exist in both newPassengers and inTransit at once.
func (q *Queue) Requeue(p Passenger) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inTransit, p.ID)
	p.Requested = false
	q.newPassengers = append([]Passenger{p}, q.newPassengers...)
}

// Run drives the generation loop: each tick, every unrequested new passenger
// is registered with the matcher, and the pool is topped up. It returns
// when ctx is cancelled, per the cooperative-shutdown design note.
func (q *Queue) Run(ctx context.Context) {
	ticker := channerics.NewTicker(ctx.Done(), q.generateInterval)
	for range channerics.OrDone(ctx.Done(), ticker) {
		q.tick()
	}
}

func (q *Queue) tick() {
	q.mu.Lock()
	matcher := q.matcher
	var toRequest []int
	for i, p := range q.newPassengers {
		if !p.Requested {
			q.newPassengers[i].Requested = true
			toRequest = append(toRequest, p.ID)
		}
	}
	q.topUpLocked()
	q.mu.Unlock()

	if matcher == nil {
		return
	}
	for _, id := range toRequest {
		matcher.PassengerRequestsRide(id)
	}
}
