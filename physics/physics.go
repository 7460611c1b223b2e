// physics/physics.go
package physics

import (
	"math"

	"github.com/wfunc/meiro/maze"
)

const (
	TurnRate  = math.Pi // rad/s at full yaw input
	MaxSpeed  = 3.0     // cells/s at full forward input
	Radius    = 0.3
	Epsilon   = 1e-4
	MaxStepDt = 0.05
)

// Body is the player's kinematic state in world units (one cell = 1.0).
type Body struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	VX    float64 `json:"vx"`
	VY    float64 `json:"vy"`
	Angle float64 `json:"angle"`
}

// Input is the latest control sample, both axes in [-1,1].
type Input struct {
	Forward float64 `json:"forward"`
	Turn    float64 `json:"turn"`
}

// CellOf maps a world position to its cell. Centres are integers, so the
// half-way line x=0.5 belongs to cell 1.
func CellOf(x, y float64) maze.Cell {
	return maze.Cell{X: int(math.Floor(x + 0.5)), Y: int(math.Floor(y + 0.5))}
}

// Cell returns the cell the body's centre is in.
func (b Body) Cell() maze.Cell {
	return CellOf(b.X, b.Y)
}

// Spawn places a body at the centre of c.
func Spawn(c maze.Cell) Body {
	return Body{X: float64(c.X), Y: float64(c.Y)}
}

// Step advances b by dt seconds against the walls of g. speedMul scales
// both the turn rate and the forward speed. The second result reports
// whether position, velocity or angle moved by more than Epsilon.
func Step(b Body, in Input, g *maze.Grid, dt, speedMul float64) (Body, bool) {
	prev := b
	in.Forward = clampUnit(in.Forward)
	in.Turn = clampUnit(in.Turn)

	// long gaps are split so a single move never exceeds the radius
	for dt > 0 {
		h := math.Min(dt, MaxStepDt)
		b = integrate(b, in, g, h, speedMul)
		dt -= h
	}
	b = clampToMaze(b, g.Size)

	changed := math.Abs(b.X-prev.X) > Epsilon ||
		math.Abs(b.Y-prev.Y) > Epsilon ||
		math.Abs(b.VX-prev.VX) > Epsilon ||
		math.Abs(b.VY-prev.VY) > Epsilon ||
		math.Abs(angleDelta(b.Angle, prev.Angle)) > Epsilon
	return b, changed
}

func integrate(b Body, in Input, g *maze.Grid, dt, speedMul float64) Body {
	b.Angle = normalizeAngle(b.Angle + in.Turn*TurnRate*speedMul*dt)
	speed := in.Forward * MaxSpeed * speedMul
	b.VX = math.Cos(b.Angle) * speed
	b.VY = math.Sin(b.Angle) * speed

	// X then Y, each reverted on its own so the body slides along walls
	if nx := b.X + b.VX*dt; b.VX != 0 {
		if collides(g, nx, b.Y) {
			b.VX = 0
		} else {
			b.X = nx
		}
	}
	if ny := b.Y + b.VY*dt; b.VY != 0 {
		if collides(g, b.X, ny) {
			b.VY = 0
		} else {
			b.Y = ny
		}
	}
	return b
}

// collides tests the circle at (x,y) against every solid edge of the 3x3
// cells around it.
func collides(g *maze.Grid, x, y float64) bool {
	center := CellOf(x, y)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			c := maze.Cell{X: center.X + dx, Y: center.Y + dy}
			if !g.InBounds(c) {
				continue
			}
			for _, d := range maze.Directions {
				if !g.HasWall(c, d) {
					continue
				}
				x1, y1, x2, y2 := segment(c, d)
				if circleHitsSegment(x, y, Radius, x1, y1, x2, y2) {
					return true
				}
			}
		}
	}
	return false
}

// segment returns the end points of edge d of cell c.
func segment(c maze.Cell, d maze.Direction) (x1, y1, x2, y2 float64) {
	cx, cy := float64(c.X), float64(c.Y)
	switch d {
	case maze.Top:
		return cx - 0.5, cy - 0.5, cx + 0.5, cy - 0.5
	case maze.Right:
		return cx + 0.5, cy - 0.5, cx + 0.5, cy + 0.5
	case maze.Bottom:
		return cx - 0.5, cy + 0.5, cx + 0.5, cy + 0.5
	default:
		return cx - 0.5, cy - 0.5, cx - 0.5, cy + 0.5
	}
}

// circleHitsSegment clamps the centre onto the axis-aligned segment and
// compares the distance to the radius. Touching is not a hit.
func circleHitsSegment(px, py, r, x1, y1, x2, y2 float64) bool {
	nx := clamp(px, math.Min(x1, x2), math.Max(x1, x2))
	ny := clamp(py, math.Min(y1, y2), math.Max(y1, y2))
	dx, dy := px-nx, py-ny
	return dx*dx+dy*dy < r*r
}

func clampToMaze(b Body, size int) Body {
	lo := -0.5 + Radius
	hi := float64(size) - 0.5 - Radius
	b.X = clamp(b.X, lo, hi)
	b.Y = clamp(b.Y, lo, hi)
	return b
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return clamp(v, -1, 1)
}

func normalizeAngle(a float64) float64 {
	return math.Remainder(a, 2*math.Pi)
}

func angleDelta(a, b float64) float64 {
	return math.Remainder(a-b, 2*math.Pi)
}
