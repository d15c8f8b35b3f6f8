package routing

import (
	"math/rand"
	"testing"

	"ridesim/internal/geo"
	"ridesim/internal/mapdata"
	"ridesim/internal/routemodel"
)

func gridModel(rows, cols int) *routemodel.RouteModel {
	bounds := geo.Bounds{MinLon: 0, MaxLon: float64(cols - 1), MinLat: 0, MaxLat: float64(rows - 1)}
	g := mapdata.SyntheticGrid(rows, cols, bounds)
	return routemodel.New(g, rand.New(rand.NewSource(1)))
}

func TestPlanFindsPathBetweenGridCorners(t *testing.T) {
	m := gridModel(5, 5)
	start := m.NodeAt(0).Coordinate
	goal := m.NodeAt(24).Coordinate // opposite corner

	path := Plan(m, start, goal)
	if len(path) == 0 {
		t.Fatalf("expected a path between grid corners")
	}
	if !path[len(path)-1].Equal(goal) {
		t.Fatalf("expected path to end at goal, got %+v", path[len(path)-1])
	}
}

func TestPlanSameNodeReturnsSingleStep(t *testing.T) {
	m := gridModel(3, 3)
	n := m.NodeAt(4).Coordinate
	path := Plan(m, n, n)
	if len(path) != 1 || !path[0].Equal(n) {
		t.Fatalf("expected single-element path to self, got %+v", path)
	}
}

func TestPlanUnroutableReturnsNil(t *testing.T) {
	// Two disconnected components: a 2x2 grid plus an isolated node.
	g := mapdata.Graph{
		Nodes: []mapdata.Node{
			{Index: 0, Coordinate: geo.Coordinate{X: 0, Y: 0}},
			{Index: 1, Coordinate: geo.Coordinate{X: 1, Y: 0}},
			{Index: 2, Coordinate: geo.Coordinate{X: 100, Y: 100}}, // isolated
		},
		Adjacency: [][]int{{1}, {0}, {}},
		Bounds:    geo.Bounds{MinLon: 0, MaxLon: 100, MinLat: 0, MaxLat: 100},
	}
	m := routemodel.New(g, rand.New(rand.NewSource(1)))
	path := Plan(m, m.NodeAt(0).Coordinate, m.NodeAt(2).Coordinate)
	if path != nil {
		t.Fatalf("expected nil path for unroutable goal, got %+v", path)
	}
}

func TestPlanRoundTripLengthIsSymmetric(t *testing.T) {
	m := gridModel(4, 4)
	a := m.NodeAt(1).Coordinate
	b := m.NodeAt(14).Coordinate

	forward := Plan(m, a, b)
	backward := Plan(m, b, a)

	if PathLength(forward) != PathLength(backward) {
		t.Fatalf("expected round-trip shortest-path lengths to agree: forward=%v backward=%v",
			PathLength(forward), PathLength(backward))
	}
}
