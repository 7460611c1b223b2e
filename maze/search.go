// maze/search.go
package maze

import (
	"github.com/zyedidia/generic/mapset"
)

// edge names one interior edge in canonical form (right or bottom side).
type edge struct {
	cell Cell
	dir  Direction
}

func canonicalEdge(c Cell, d Direction) edge {
	switch d {
	case Left:
		return edge{cell: c.Step(Left), dir: Right}
	case Top:
		return edge{cell: c.Step(Top), dir: Bottom}
	}
	return edge{cell: c, dir: d}
}

// Distances returns the BFS step count from start to every cell, row-major.
// Unreachable cells hold -1.
func Distances(g *Grid, start Cell) []int {
	dist := make([]int, g.Size*g.Size)
	for i := range dist {
		dist[i] = -1
	}
	if !g.InBounds(start) {
		return dist
	}
	dist[g.index(start)] = 0
	queue := []Cell{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range g.Neighbors(cur) {
			if dist[g.index(n)] >= 0 {
				continue
			}
			dist[g.index(n)] = dist[g.index(cur)] + 1
			queue = append(queue, n)
		}
	}
	return dist
}

// Reachable reports whether to can be reached from from.
func Reachable(g *Grid, from, to Cell) bool {
	return reachableWithout(g, from, to, nil)
}

// reachableWithout runs BFS treating the optional extra edge as solid.
func reachableWithout(g *Grid, from, to Cell, extra *edge) bool {
	if !g.InBounds(from) || !g.InBounds(to) {
		return false
	}
	visited := mapset.New[Cell]()
	visited.Put(from)
	queue := []Cell{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			return true
		}
		for _, d := range Directions {
			if g.HasWall(cur, d) {
				continue
			}
			if extra != nil && canonicalEdge(cur, d) == *extra {
				continue
			}
			n := cur.Step(d)
			if visited.Has(n) {
				continue
			}
			visited.Put(n)
			queue = append(queue, n)
		}
	}
	return false
}

// Connected reports whether every cell is reachable from (0,0).
func Connected(g *Grid) bool {
	for _, d := range Distances(g, Cell{}) {
		if d < 0 {
			return false
		}
	}
	return true
}

// ShortestPath returns the number of steps between two cells, or -1.
func ShortestPath(g *Grid, from, to Cell) int {
	if !g.InBounds(to) {
		return -1
	}
	return Distances(g, from)[g.index(to)]
}
