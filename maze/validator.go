// maze/validator.go
package maze

// Validator answers whether adding one wall keeps the goal reachable from
// the player's cell. It remembers the last edge found to block the path;
// callers must Invalidate after any committed wall change or when the
// player moves to another cell, since either can turn a blocked verdict
// stale. Only blocked verdicts are cached, so a stale "open" answer can
// never be served.
//
// A Validator belongs to one room and is not safe for concurrent use.
type Validator struct {
	blocked      edge
	blockedValid bool

	checks int
	hits   int
}

// NewValidator returns an empty validator.
func NewValidator() *Validator {
	return &Validator{}
}

// CanAddWall reports whether goal stays reachable from player after the
// edge d of cell becomes solid. The grid itself is not modified.
func (v *Validator) CanAddWall(g *Grid, player, goal, cell Cell, d Direction) bool {
	e := canonicalEdge(cell, d)
	if v.blockedValid && v.blocked == e {
		v.hits++
		return false
	}
	v.checks++
	if reachableWithout(g, player, goal, &e) {
		return true
	}
	v.blocked = e
	v.blockedValid = true
	return false
}

// Invalidate drops the cached verdict.
func (v *Validator) Invalidate() {
	v.blockedValid = false
}

// Stats returns the number of searches run and cache hits served.
func (v *Validator) Stats() (checks, hits int) {
	return v.checks, v.hits
}
