package maze

import "testing"

// corridor opens a single row so the only route from (0,0) to (size-1,0)
// runs along it.
func corridor(size int) *Grid {
	g := NewGrid(size)
	for x := 0; x < size-1; x++ {
		g.SetWall(Cell{X: x, Y: 0}, Right, false)
	}
	return g
}

func TestValidator_RejectsBlockingWallRepeatedly(t *testing.T) {
	g := corridor(20)
	before := g.Clone()
	player, goal := Cell{X: 0, Y: 0}, Cell{X: 19, Y: 0}
	v := NewValidator()

	for i := 0; i < 5000; i++ {
		// alternate between both names of the same edge
		cell, dir := Cell{X: 7, Y: 0}, Right
		if i%2 == 1 {
			cell, dir = Cell{X: 8, Y: 0}, Left
		}
		if v.CanAddWall(g, player, goal, cell, dir) {
			t.Fatalf("attempt %d: blocking wall was accepted", i)
		}
	}
	for i := range g.Walls {
		if g.Walls[i] != before.Walls[i] {
			t.Fatalf("grid changed at cell %d", i)
		}
	}
	checks, hits := v.Stats()
	if checks != 1 || hits != 4999 {
		t.Fatalf("expected 1 search and 4999 cache hits, got %d/%d", checks, hits)
	}
}

func TestValidator_AllowsHarmlessWall(t *testing.T) {
	g := corridor(20)
	g.SetWall(Cell{X: 5, Y: 0}, Bottom, false)
	v := NewValidator()
	if !v.CanAddWall(g, Cell{X: 0, Y: 0}, Cell{X: 19, Y: 0}, Cell{X: 5, Y: 0}, Bottom) {
		t.Fatal("closing a dead end should keep the goal reachable")
	}
}

func TestValidator_InvalidateDropsBlockedVerdict(t *testing.T) {
	g := corridor(20)
	player, goal := Cell{X: 0, Y: 0}, Cell{X: 19, Y: 0}
	v := NewValidator()
	if v.CanAddWall(g, player, goal, Cell{X: 3, Y: 0}, Right) {
		t.Fatal("expected blocked")
	}

	// the player walks past the edge; it no longer separates them
	v.Invalidate()
	if !v.CanAddWall(g, Cell{X: 10, Y: 0}, goal, Cell{X: 3, Y: 0}, Right) {
		t.Fatal("after invalidation the edge behind the player should be allowed")
	}
	checks, hits := v.Stats()
	if checks != 2 || hits != 0 {
		t.Fatalf("expected 2 searches and no hits, got %d/%d", checks, hits)
	}
}

func TestReachable(t *testing.T) {
	g := corridor(20)
	if !Reachable(g, Cell{X: 0, Y: 0}, Cell{X: 19, Y: 0}) {
		t.Fatal("corridor ends should be connected")
	}
	if Reachable(g, Cell{X: 0, Y: 0}, Cell{X: 0, Y: 1}) {
		t.Fatal("sealed row should be unreachable")
	}
	if d := ShortestPath(g, Cell{X: 0, Y: 0}, Cell{X: 19, Y: 0}); d != 19 {
		t.Fatalf("expected distance 19, got %d", d)
	}
}
