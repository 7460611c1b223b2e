// maze/generator.go
package maze

import (
	"errors"
	"fmt"
	"math/rand"
)

const (
	// DefaultMaxAttempts bounds the number of fresh carves Generate tries.
	DefaultMaxAttempts = 50
	// MinGoalDistanceFactor: the goal must be at least factor*size steps
	// from the start.
	MinGoalDistanceFactor = 4
)

var (
	ErrInvalidSize      = errors.New("maze size must be 20 or 40")
	ErrGenerationFailed = errors.New("maze generation failed")
)

// Rand is the subset of *rand.Rand the generator needs.
type Rand interface {
	Intn(n int) int
}

// Options configures Generate. When Rand is nil a source seeded with Seed
// is used, so the result depends on Seed alone. MinDistance defaults to
// 4*Size.
type Options struct {
	Size        int
	Seed        int64
	MaxAttempts int
	MinDistance int
	Rand        Rand
}

// Maze is a carved grid with its start and goal cells.
type Maze struct {
	Size  int   `json:"size"`
	Seed  int64 `json:"seed"`
	Grid  *Grid `json:"grid"`
	Start Cell  `json:"start"`
	Goal  Cell  `json:"goal"`
}

// ValidSize reports whether size is a supported maze size.
func ValidSize(size int) bool {
	return size == 20 || size == 40
}

// Generate carves a perfect maze and picks a start and a goal at least
// 4*size steps apart.
func Generate(opts Options) (*Maze, error) {
	if !ValidSize(opts.Size) {
		return nil, ErrInvalidSize
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	rnd := opts.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(opts.Seed))
	}

	minDistance := opts.MinDistance
	if minDistance <= 0 {
		minDistance = MinGoalDistanceFactor * opts.Size
	}
	for attempt := 0; attempt < attempts; attempt++ {
		grid := carve(opts.Size, rnd)
		start := Cell{X: rnd.Intn(opts.Size), Y: rnd.Intn(opts.Size)}
		dist := Distances(grid, start)

		candidates := make([]Cell, 0, 64)
		for y := 0; y < opts.Size; y++ {
			for x := 0; x < opts.Size; x++ {
				if dist[y*opts.Size+x] >= minDistance {
					candidates = append(candidates, Cell{X: x, Y: y})
				}
			}
		}
		if len(candidates) == 0 {
			continue
		}
		return &Maze{
			Size:  opts.Size,
			Seed:  opts.Seed,
			Grid:  grid,
			Start: start,
			Goal:  candidates[rnd.Intn(len(candidates))],
		}, nil
	}
	return nil, fmt.Errorf("%w: size %d, %d attempts", ErrGenerationFailed, opts.Size, attempts)
}

// carve runs randomized depth-first backtracking from a random cell.
func carve(size int, rnd Rand) *Grid {
	grid := NewGrid(size)
	visited := make([]bool, size*size)
	origin := Cell{X: rnd.Intn(size), Y: rnd.Intn(size)}
	stack := []Cell{origin}
	visited[grid.index(origin)] = true

	options := make([]Direction, 0, 4)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]

		options = options[:0]
		for _, d := range Directions {
			n := cur.Step(d)
			if grid.InBounds(n) && !visited[grid.index(n)] {
				options = append(options, d)
			}
		}
		if len(options) == 0 {
			stack = stack[:len(stack)-1]
			continue
		}

		d := options[rnd.Intn(len(options))]
		next := cur.Step(d)
		grid.SetWall(cur, d, false)
		visited[grid.index(next)] = true
		stack = append(stack, next)
	}
	return grid
}
