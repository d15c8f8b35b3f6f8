// Package routing implements the A* planner described in spec §4.B, using a
// container/heap priority queue in the style of a classic path-search
// priority frontier (see azul3d's D* Lite priorityQueue for the same
// heap.Interface shape: a slice-backed heap with an index lookup map for
// O(log n) update/remove).
package routing

import (
	"container/heap"

	"ridesim/internal/geo"
	"ridesim/internal/routemodel"
)

// frontierKey orders open-set entries: lower f first, ties broken by lower
// h (prefer the more goal-directed frontier), then lower node index for
// determinism.
type frontierKey struct {
	f, h float64
	node int
}

// less reports whether a sorts before b under the tie-break rule above.
func (a frontierKey) less(b frontierKey) bool {
	if a.f != b.f {
		return a.f < b.f
	}
	if a.h != b.h {
		return a.h < b.h
	}
	return a.node < b.node
}

type frontierItem struct {
	key  frontierKey
	node int
}

type frontier struct {
	items  []frontierItem
	lookup map[int]int // node index -> position in items
}

func newFrontier() *frontier {
	return &frontier{lookup: make(map[int]int)}
}

func (f *frontier) Len() int { return len(f.items) }
func (f *frontier) Less(i, j int) bool {
	return f.items[i].key.less(f.items[j].key)
}
func (f *frontier) Swap(i, j int) {
	f.items[i], f.items[j] = f.items[j], f.items[i]
	f.lookup[f.items[i].node] = i
	f.lookup[f.items[j].node] = j
}
func (f *frontier) Push(x interface{}) {
	item := x.(frontierItem)
	f.lookup[item.node] = len(f.items)
	f.items = append(f.items, item)
}
func (f *frontier) Pop() interface{} {
	old := f.items
	n := len(old)
	item := old[n-1]
	delete(f.lookup, item.node)
	f.items = old[:n-1]
	return item
}

func (f *frontier) push(node int, key frontierKey) {
	if i, ok := f.lookup[node]; ok {
		f.items[i].key = key
		heap.Fix(f, i)
		return
	}
	heap.Push(f, frontierItem{key: key, node: node})
}

func (f *frontier) pop() frontierItem {
	return heap.Pop(f).(frontierItem)
}

func (f *frontier) empty() bool {
	return len(f.items) == 0
}

// Plan runs A* from start to goal over model, snapping both endpoints to
// their closest routable node. It returns the path as a sequence of node
// coordinates excluding the start and including the goal, in the order a
// vehicle should drive them. A nil return means the goal is unreachable
// from the start (spec: "unroutable").
func Plan(model *routemodel.RouteModel, start, goal geo.Coordinate) []geo.Coordinate {
	startNode := model.ClosestNode(start)
	goalNode := model.ClosestNode(goal)

	if startNode.Index == goalNode.Index {
		return []geo.Coordinate{goalNode.Coordinate}
	}

	gScore := map[int]float64{startNode.Index: 0}
	parent := map[int]int{}
	visited := map[int]bool{}

	open := newFrontier()
	h0 := geo.Distance(startNode.Coordinate, goalNode.Coordinate)
	open.push(startNode.Index, frontierKey{f: h0, h: h0, node: startNode.Index})

	for !open.empty() {
		cur := open.pop()
		if visited[cur.node] {
			continue
		}
		visited[cur.node] = true

		if cur.node == goalNode.Index {
			return reconstruct(model, parent, startNode.Index, goalNode.Index)
		}

		curNode := model.NodeAt(cur.node)
		for _, nb := range model.Neighbours(curNode) {
			if visited[nb.Index] {
				continue
			}
			tentativeG := gScore[cur.node] + model.Distance(curNode, nb)
			existingG, known := gScore[nb.Index]
			if known && tentativeG >= existingG {
				continue
			}
			gScore[nb.Index] = tentativeG
			parent[nb.Index] = cur.node
			h := geo.Distance(nb.Coordinate, goalNode.Coordinate)
			open.push(nb.Index, frontierKey{f: tentativeG + h, h: h, node: nb.Index})
		}
	}

	// Open set exhausted without reaching the goal: unroutable.
	return nil
}

func reconstruct(model *routemodel.RouteModel, parent map[int]int, start, goal int) []geo.Coordinate {
	var reversed []int
	for n := goal; n != start; n = parent[n] {
		reversed = append(reversed, n)
	}

	path := make([]geo.Coordinate, len(reversed))
	for i, n := range reversed {
		path[len(reversed)-1-i] = model.NodeAt(n).Coordinate
	}
	return path
}

// PathLength returns the total Euclidean length of a node-coordinate path,
// used by tests asserting the routing round-trip law.
func PathLength(path []geo.Coordinate) float64 {
	if len(path) < 2 {
		return 0
	}
	total := 0.0
	for i := 1; i < len(path); i++ {
		total += geo.Distance(path[i-1], path[i])
	}
	return total
}
