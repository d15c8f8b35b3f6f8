// Package mapdata defines the contract an external map loader (an OSM-style
// reader) must satisfy to feed the route model, and ships one reference
// implementation for tests and local runs.
package mapdata

import (
	"encoding/json"
	"fmt"
	"io"

	"ridesim/internal/geo"
)

// Node is a graph vertex as delivered by the loader: a stable index and a
// coordinate. Nodes are immutable once the map is loaded.
type Node struct {
	Index      int
	Coordinate geo.Coordinate
}

// Graph is the minimal shape the route model requires: nodes, undirected
// adjacency, and the bounding box they occupy. Everything else a real OSM
// reader might carry (way tags, street names, turn restrictions) is outside
// this system's CORE.
type Graph struct {
	Nodes     []Node
	Adjacency [][]int // Adjacency[i] lists neighbour node indices of Nodes[i], in load order
	Bounds    geo.Bounds
}

// Loader parses a map document into a Graph. The concrete format (OSM XML,
// a vendor JSON export, etc.) is an external concern; this interface is the
// seam the simulation core depends on.
type Loader interface {
	Load(r io.Reader) (Graph, error)
}

// ErrMapLoad wraps any failure to parse or validate a map document.
type ErrMapLoad struct {
	Cause error
}

func (e *ErrMapLoad) Error() string {
	return fmt.Sprintf("map load: %v", e.Cause)
}

func (e *ErrMapLoad) Unwrap() error {
	return e.Cause
}

// jsonNode is the wire shape of a node in the reference JSON format.
type jsonNode struct {
	ID  int     `json:"id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// jsonDocument is the wire shape of the reference JSON map format:
// {"nodes": [...], "edges": [[a,b], ...]}.
type jsonDocument struct {
	Nodes []jsonNode `json:"nodes"`
	Edges [][2]int   `json:"edges"`
}

// JSONLoader reads the flat JSON map format used by tests and local runs
// when no OSM reader is wired in. Grounded on the decode-validate-construct
// shape of a fleet/route file loader: decode into a wire struct, validate,
// then build the immutable domain graph.
type JSONLoader struct{}

func (JSONLoader) Load(r io.Reader) (Graph, error) {
	var doc jsonDocument
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return Graph{}, &ErrMapLoad{Cause: fmt.Errorf("decode map document: %w", err)}
	}
	if len(doc.Nodes) == 0 {
		return Graph{}, &ErrMapLoad{Cause: fmt.Errorf("map document has no nodes")}
	}

	byID := make(map[int]int, len(doc.Nodes)) // node id -> index into Nodes
	nodes := make([]Node, 0, len(doc.Nodes))
	coords := make([]geo.Coordinate, 0, len(doc.Nodes))
	for _, n := range doc.Nodes {
		if _, dup := byID[n.ID]; dup {
			return Graph{}, &ErrMapLoad{Cause: fmt.Errorf("duplicate node id %d", n.ID)}
		}
		idx := len(nodes)
		byID[n.ID] = idx
		coord := geo.Coordinate{X: n.Lon, Y: n.Lat}
		nodes = append(nodes, Node{Index: idx, Coordinate: coord})
		coords = append(coords, coord)
	}

	adjacency := make([][]int, len(nodes))
	for _, e := range doc.Edges {
		aIdx, aok := byID[e[0]]
		bIdx, bok := byID[e[1]]
		if !aok || !bok {
			return Graph{}, &ErrMapLoad{Cause: fmt.Errorf("edge references unknown node %v", e)}
		}
		adjacency[aIdx] = append(adjacency[aIdx], bIdx)
		adjacency[bIdx] = append(adjacency[bIdx], aIdx)
	}

	return Graph{
		Nodes:     nodes,
		Adjacency: adjacency,
		Bounds:    geo.BoundsFromCoordinates(coords),
	}, nil
}

// SyntheticGrid builds a rows x cols lattice graph over bounds, with each
// node connected to its orthogonal neighbours. It has no analogue in an
// OSM-style reader; it exists so the simulation has something routable to
// run against when no external map file is configured, the same role the
// teacher's random StartPoints/EndPoints pairs play when no real road
// network is loaded.
func SyntheticGrid(rows, cols int, bounds geo.Bounds) Graph {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}

	nodes := make([]Node, 0, rows*cols)
	coords := make([]geo.Coordinate, 0, rows*cols)
	index := func(r, c int) int { return r*cols + c }

	lonStep := 0.0
	if cols > 1 {
		lonStep = (bounds.MaxLon - bounds.MinLon) / float64(cols-1)
	}
	latStep := 0.0
	if rows > 1 {
		latStep = bounds.LatSpan() / float64(rows-1)
	}

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			coord := geo.Coordinate{
				X: bounds.MinLon + float64(c)*lonStep,
				Y: bounds.MinLat + float64(r)*latStep,
			}
			nodes = append(nodes, Node{Index: index(r, c), Coordinate: coord})
			coords = append(coords, coord)
		}
	}

	adjacency := make([][]int, len(nodes))
	link := func(a, b int) {
		adjacency[a] = append(adjacency[a], b)
		adjacency[b] = append(adjacency[b], a)
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if c+1 < cols {
				link(index(r, c), index(r, c+1))
			}
			if r+1 < rows {
				link(index(r, c), index(r+1, c))
			}
		}
	}

	return Graph{
		Nodes:     nodes,
		Adjacency: adjacency,
		Bounds:    geo.BoundsFromCoordinates(coords),
	}
}
