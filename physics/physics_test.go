package physics

import (
	"math"
	"testing"

	"github.com/wfunc/meiro/maze"
)

const tick = 0.05

func openRow(size int) *maze.Grid {
	g := maze.NewGrid(size)
	for x := 0; x < size-1; x++ {
		g.SetWall(maze.Cell{X: x, Y: 0}, maze.Right, false)
	}
	return g
}

func run(b Body, in Input, g *maze.Grid, ticks int, mul float64) Body {
	for i := 0; i < ticks; i++ {
		b, _ = Step(b, in, g, tick, mul)
	}
	return b
}

func TestCellOf_HalfBoundary(t *testing.T) {
	tests := []struct {
		x, y float64
		want maze.Cell
	}{
		{0, 0, maze.Cell{X: 0, Y: 0}},
		{0.4999, 0.4999, maze.Cell{X: 0, Y: 0}},
		{0.5, 0.5, maze.Cell{X: 1, Y: 1}},
		{1.5, 2.49, maze.Cell{X: 2, Y: 2}},
		{-0.5, -0.2, maze.Cell{X: 0, Y: 0}},
		{-0.51, 0, maze.Cell{X: -1, Y: 0}},
	}
	for _, tt := range tests {
		if got := CellOf(tt.x, tt.y); got != tt.want {
			t.Errorf("CellOf(%v,%v) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestStep_StopsAtWall(t *testing.T) {
	g := maze.NewGrid(20)
	b := run(Spawn(maze.Cell{}), Input{Forward: 1}, g, 40, 1)
	if b.X > 0.5-Radius {
		t.Fatalf("body passed through the wall: x=%v", b.X)
	}
	if b.Cell() != (maze.Cell{}) {
		t.Fatalf("body left its cell: %v", b.Cell())
	}
}

func TestStep_MovesThroughOpenEdges(t *testing.T) {
	g := openRow(20)
	b := run(Spawn(maze.Cell{}), Input{Forward: 1}, g, 20, 1)
	if math.Abs(b.X-MaxSpeed) > 1e-9 {
		t.Fatalf("expected x=%v after one second, got %v", MaxSpeed, b.X)
	}
	if b.Y != 0 {
		t.Fatalf("expected y to stay 0, got %v", b.Y)
	}
}

func TestStep_SlidesAlongWall(t *testing.T) {
	g := openRow(20)
	b := Spawn(maze.Cell{})
	b.Angle = -math.Pi / 4 // up and right; y grows downwards
	b = run(b, Input{Forward: 1}, g, 20, 1)
	if b.X < 1.5 {
		t.Fatalf("expected to slide along the top wall, x=%v", b.X)
	}
	if b.Y < -0.5+Radius {
		t.Fatalf("body overlaps the top wall, y=%v", b.Y)
	}
}

func TestStep_Turn(t *testing.T) {
	g := maze.NewGrid(20)
	b, changed := Step(Spawn(maze.Cell{}), Input{Turn: 1}, g, 0.5, 1)
	if !changed {
		t.Fatal("turning should report a change")
	}
	if math.Abs(b.Angle-math.Pi/2) > 1e-9 {
		t.Fatalf("expected angle pi/2, got %v", b.Angle)
	}
	if b.X != 0 || b.Y != 0 {
		t.Fatalf("turning in place should not move: %v,%v", b.X, b.Y)
	}
}

func TestStep_SpeedMultiplier(t *testing.T) {
	g := openRow(20)
	b := run(Spawn(maze.Cell{}), Input{Forward: 1}, g, 10, 0.4)
	if math.Abs(b.X-0.6) > 1e-9 {
		t.Fatalf("expected x=0.6 when slowed, got %v", b.X)
	}
}

func TestStep_IdleReportsNoChange(t *testing.T) {
	g := maze.NewGrid(20)
	b, changed := Step(Spawn(maze.Cell{X: 3, Y: 3}), Input{}, g, tick, 1)
	if changed {
		t.Fatalf("idle body should not change: %+v", b)
	}
}

func TestStep_ClampsToMaze(t *testing.T) {
	g := maze.NewGrid(20)
	b, changed := Step(Body{X: -5, Y: 40}, Input{}, g, tick, 1)
	if !changed {
		t.Fatal("clamping should report a change")
	}
	if math.Abs(b.X-(-0.2)) > 1e-12 || math.Abs(b.Y-19.2) > 1e-12 {
		t.Fatalf("unexpected clamp result %v,%v", b.X, b.Y)
	}
}

func TestStep_InputIsClamped(t *testing.T) {
	g := openRow(20)
	a := run(Spawn(maze.Cell{}), Input{Forward: 5}, g, 10, 1)
	b := run(Spawn(maze.Cell{}), Input{Forward: 1}, g, 10, 1)
	if a.X != b.X {
		t.Fatalf("forward above 1 should be clamped: %v vs %v", a.X, b.X)
	}
}
