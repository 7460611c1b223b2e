// maze/grid.go
package maze

import (
	"encoding/base64"
	"fmt"
)

// Direction identifies one of the four edges of a cell.
type Direction int

const (
	Top Direction = iota
	Right
	Bottom
	Left
)

var directionNames = [...]string{"top", "right", "bottom", "left"}

// Directions lists every direction in carving order.
var Directions = [4]Direction{Top, Right, Bottom, Left}

func (d Direction) String() string {
	if d < Top || d > Left {
		return fmt.Sprintf("direction(%d)", int(d))
	}
	return directionNames[d]
}

// Valid reports whether d is one of the four edges.
func (d Direction) Valid() bool {
	return d >= Top && d <= Left
}

// Opposite returns the edge that faces d from the neighbouring cell.
func (d Direction) Opposite() Direction {
	return (d + 2) % 4
}

// Delta returns the grid offset for a step through d. Y grows downwards.
func (d Direction) Delta() (dx, dy int) {
	switch d {
	case Top:
		return 0, -1
	case Right:
		return 1, 0
	case Bottom:
		return 0, 1
	case Left:
		return -1, 0
	}
	return 0, 0
}

// ParseDirection accepts the lower-case names used on the wire.
func ParseDirection(s string) (Direction, bool) {
	for i, name := range directionNames {
		if name == s {
			return Direction(i), true
		}
	}
	return 0, false
}

// Cell is a grid coordinate. Cell centres sit on integer world coordinates.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Step returns the neighbouring cell in direction d.
func (c Cell) Step(d Direction) Cell {
	dx, dy := d.Delta()
	return Cell{X: c.X + dx, Y: c.Y + dy}
}

// Manhattan returns the taxicab distance between two cells.
func (c Cell) Manhattan(o Cell) int {
	return abs(c.X-o.X) + abs(c.Y-o.Y)
}

// Key is the map key form used for marks, points and traps.
func (c Cell) Key() string {
	return fmt.Sprintf("%d,%d", c.X, c.Y)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

const (
	wallTop uint8 = 1 << iota
	wallRight
	wallBottom
	wallLeft
	wallAll = wallTop | wallRight | wallBottom | wallLeft
)

func wallBit(d Direction) uint8 {
	return 1 << uint(d)
}

// Grid stores the solid edges of a square maze as one bitmask per cell.
// Both sides of an interior edge are always kept in agreement.
type Grid struct {
	Size  int     `json:"size"`
	Walls []uint8 `json:"walls"`
}

// NewGrid returns a grid with every edge solid.
func NewGrid(size int) *Grid {
	g := &Grid{Size: size, Walls: make([]uint8, size*size)}
	for i := range g.Walls {
		g.Walls[i] = wallAll
	}
	return g
}

// InBounds reports whether c lies inside the grid.
func (g *Grid) InBounds(c Cell) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < g.Size && c.Y < g.Size
}

func (g *Grid) index(c Cell) int {
	return c.Y*g.Size + c.X
}

// HasWall reports whether the edge d of c is solid. Edges outside the grid
// are always solid.
func (g *Grid) HasWall(c Cell, d Direction) bool {
	if !g.InBounds(c) {
		return true
	}
	return g.Walls[g.index(c)]&wallBit(d) != 0
}

// IsBorder reports whether the edge d of c lies on the outer boundary.
func (g *Grid) IsBorder(c Cell, d Direction) bool {
	return !g.InBounds(c.Step(d))
}

// SetWall makes the edge solid or open on both sides. Border edges stay
// solid; SetWall reports false when asked to open one.
func (g *Grid) SetWall(c Cell, d Direction, solid bool) bool {
	if !g.InBounds(c) || !d.Valid() {
		return false
	}
	n := c.Step(d)
	if !g.InBounds(n) {
		return solid
	}
	if solid {
		g.Walls[g.index(c)] |= wallBit(d)
		g.Walls[g.index(n)] |= wallBit(d.Opposite())
	} else {
		g.Walls[g.index(c)] &^= wallBit(d)
		g.Walls[g.index(n)] &^= wallBit(d.Opposite())
	}
	return true
}

// Neighbors returns the cells reachable from c in one step.
func (g *Grid) Neighbors(c Cell) []Cell {
	out := make([]Cell, 0, 4)
	for _, d := range Directions {
		if !g.HasWall(c, d) {
			out = append(out, c.Step(d))
		}
	}
	return out
}

// Clone returns an independent copy.
func (g *Grid) Clone() *Grid {
	walls := make([]uint8, len(g.Walls))
	copy(walls, g.Walls)
	return &Grid{Size: g.Size, Walls: walls}
}

// Encode packs the interior right and bottom edges into a bitstring,
// row-major, right edges first, and returns it base64 encoded. Border edges
// are implied. A 40x40 grid encodes to 520 characters.
func (g *Grid) Encode() string {
	n := g.Size
	bits := make([]byte, (2*n*(n-1)+7)/8)
	i := 0
	put := func(set bool) {
		if set {
			bits[i/8] |= 0x80 >> uint(i%8)
		}
		i++
	}
	for y := 0; y < n; y++ {
		for x := 0; x < n-1; x++ {
			put(g.HasWall(Cell{X: x, Y: y}, Right))
		}
	}
	for y := 0; y < n-1; y++ {
		for x := 0; x < n; x++ {
			put(g.HasWall(Cell{X: x, Y: y}, Bottom))
		}
	}
	return base64.RawStdEncoding.EncodeToString(bits)
}

// DecodeGrid reverses Encode.
func DecodeGrid(size int, s string) (*Grid, error) {
	bits, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode grid: %w", err)
	}
	if len(bits) != (2*size*(size-1)+7)/8 {
		return nil, fmt.Errorf("decode grid: %d bytes for size %d", len(bits), size)
	}
	g := NewGrid(size)
	i := 0
	next := func() bool {
		set := bits[i/8]&(0x80>>uint(i%8)) != 0
		i++
		return set
	}
	for y := 0; y < size; y++ {
		for x := 0; x < size-1; x++ {
			g.SetWall(Cell{X: x, Y: y}, Right, next())
		}
	}
	for y := 0; y < size-1; y++ {
		for x := 0; x < size; x++ {
			g.SetWall(Cell{X: x, Y: y}, Bottom, next())
		}
	}
	return g, nil
}
