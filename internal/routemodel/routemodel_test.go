package routemodel

import (
	"math/rand"
	"testing"

	"ridesim/internal/geo"
	"ridesim/internal/mapdata"
)

func smallGraph() mapdata.Graph {
	return mapdata.SyntheticGrid(3, 3, geo.Bounds{MinLon: 0, MaxLon: 2, MinLat: 0, MaxLat: 2})
}

func TestClosestNodeExactMatch(t *testing.T) {
	m := New(smallGraph(), rand.New(rand.NewSource(1)))
	n := m.NodeAt(4) // center node of a 3x3 grid
	got := m.ClosestNode(n.Coordinate)
	if got.Index != n.Index {
		t.Fatalf("expected closest node %d, got %d", n.Index, got.Index)
	}
}

func TestClosestNodeTieBreaksOnLowestIndex(t *testing.T) {
	// Two coincident nodes at the same coordinate; the lower index must win.
	g := mapdata.Graph{
		Nodes: []mapdata.Node{
			{Index: 0, Coordinate: geo.Coordinate{X: 0, Y: 0}},
			{Index: 1, Coordinate: geo.Coordinate{X: 0, Y: 0}},
		},
		Adjacency: [][]int{{1}, {0}},
		Bounds:    geo.Bounds{MinLon: 0, MaxLon: 1, MinLat: 0, MaxLat: 1},
	}
	m := New(g, rand.New(rand.NewSource(1)))
	got := m.ClosestNode(geo.Coordinate{X: 0, Y: 0})
	if got.Index != 0 {
		t.Fatalf("expected tie to break towards index 0, got %d", got.Index)
	}
}

func TestNeighboursMatchAdjacency(t *testing.T) {
	m := New(smallGraph(), rand.New(rand.NewSource(1)))
	corner := m.NodeAt(0)
	neighbours := m.Neighbours(corner)
	if len(neighbours) != 2 {
		t.Fatalf("expected corner node to have 2 neighbours, got %d", len(neighbours))
	}
}

func TestRandomPositionWithinBounds(t *testing.T) {
	m := New(smallGraph(), rand.New(rand.NewSource(7)))
	bounds := m.Bounds()
	for i := 0; i < 200; i++ {
		p := m.RandomPosition()
		if p.X < bounds.MinLon || p.X > bounds.MaxLon || p.Y < bounds.MinLat || p.Y > bounds.MaxLat {
			t.Fatalf("random position %+v outside bounds %+v", p, bounds)
		}
	}
}

func TestDistanceMatchesGeoDistance(t *testing.T) {
	m := New(smallGraph(), rand.New(rand.NewSource(1)))
	a, b := m.NodeAt(0), m.NodeAt(1)
	if m.Distance(a, b) != geo.Distance(a.Coordinate, b.Coordinate) {
		t.Fatalf("expected RouteModel.Distance to match geo.Distance")
	}
}
