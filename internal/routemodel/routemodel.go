// Package routemodel implements the immutable road graph (spec §4.A): a
// thread-safe, read-only view over the nodes and adjacency an external
// loader delivered.
package routemodel

import (
	"math/rand"
	"sync"

	"ridesim/internal/geo"
	"ridesim/internal/mapdata"
)

// Node is a graph vertex exposed by the RouteModel. It carries no pointer to
// its neighbours; neighbour lookups always go back through the model, per
// the design note that nodes stay immutable value types after load.
type Node struct {
	Index      int
	Coordinate geo.Coordinate
}

// RouteModel is immutable after construction and safe for concurrent reads
// from any number of goroutines: once built, its only changing state is the
// random generator, which randMu guards.
type RouteModel struct {
	nodes     []Node
	adjacency [][]int
	bounds    geo.Bounds

	randMu sync.Mutex // guards rng only; rng is the single mutable field
	rng    *rand.Rand
}

// New builds a RouteModel from a loaded Graph. rng seeds the model's random
// position generator; callers own determinism by choosing the seed.
func New(g mapdata.Graph, rng *rand.Rand) *RouteModel {
	nodes := make([]Node, len(g.Nodes))
	for i, n := range g.Nodes {
		nodes[i] = Node{Index: n.Index, Coordinate: n.Coordinate}
	}
	return &RouteModel{
		nodes:     nodes,
		adjacency: g.Adjacency,
		bounds:    g.Bounds,
		rng:       rng,
	}
}

// Bounds returns the map's bounding box.
func (m *RouteModel) Bounds() geo.Bounds {
	return m.bounds
}

// RandomPosition returns a coordinate drawn uniformly over the map bounds.
// It does not snap to a node; callers that need a routable point should pass
// the result through ClosestNode.
func (m *RouteModel) RandomPosition() geo.Coordinate {
	m.randMu.Lock()
	defer m.randMu.Unlock()
	return m.bounds.Random(m.rng)
}

// ClosestNode returns the node of minimum Euclidean distance to c. Ties are
// broken by lowest node index for determinism.
func (m *RouteModel) ClosestNode(c geo.Coordinate) Node {
	best := m.nodes[0]
	bestDist := geo.Distance(c, best.Coordinate)
	for _, n := range m.nodes[1:] {
		d := geo.Distance(c, n.Coordinate)
		if d < bestDist {
			best, bestDist = n, d
		}
	}
	return best
}

// Neighbours returns the nodes adjacent to n, in the order the map was
// loaded.
func (m *RouteModel) Neighbours(n Node) []Node {
	idxs := m.adjacency[n.Index]
	out := make([]Node, len(idxs))
	for i, idx := range idxs {
		out[i] = m.nodes[idx]
	}
	return out
}

// Distance returns the Euclidean distance between two adjacent (or any two)
// nodes.
func (m *RouteModel) Distance(a, b Node) float64 {
	return geo.Distance(a.Coordinate, b.Coordinate)
}

// NodeAt returns the node at the given stable index.
func (m *RouteModel) NodeAt(index int) Node {
	return m.nodes[index]
}

// NumNodes returns the number of nodes in the model.
func (m *RouteModel) NumNodes() int {
	return len(m.nodes)
}
