// rules/edits.go
package rules

import (
	"time"

	"github.com/wfunc/meiro/maze"
	"github.com/wfunc/meiro/models"
	"github.com/wfunc/meiro/protocol"
	"github.com/wfunc/meiro/state"
)

// Rand is the randomness the rule manager needs.
type Rand interface {
	Shuffle(n int, swap func(i, j int))
}

// Manager applies owner edits and per-tick effects to one room's state.
// It owns the room's path validator and is used only from the room loop.
type Manager struct {
	validator *maze.Validator
	rnd       Rand
}

func NewManager(rnd Rand) *Manager {
	return &Manager{validator: maze.NewValidator(), rnd: rnd}
}

// Validator exposes the path validator for stats.
func (m *Manager) Validator() *maze.Validator {
	return m.validator
}

// Invalidate drops cached path verdicts. Call after the maze is replaced.
func (m *Manager) Invalidate() {
	m.validator.Invalidate()
}

func prepElapsed(st *models.RoomState, now int64) time.Duration {
	return time.Duration(now-st.PhaseStartedAt) * time.Millisecond
}

func editable(st *models.RoomState) error {
	if st.Pause.Paused {
		return protocol.NewError(protocol.CodeRoomPaused, "room is paused")
	}
	if st.Maze == nil || (st.Phase != state.PhasePrep && st.Phase != state.PhaseExplore) {
		return protocol.NewError(protocol.CodeInvalidPhase, "edits are not accepted in "+string(st.Phase))
	}
	return nil
}

func checkCooldown(st *models.RoomState, now int64) error {
	if now < st.Owner.EditCooldownUntil {
		return protocol.NewError(protocol.CodeEditCooldown, "edit cooldown").
			WithData(map[string]any{"retryAfterMs": st.Owner.EditCooldownUntil - now})
	}
	return nil
}

func checkForbidden(st *models.RoomState, c maze.Cell) error {
	if c.Manhattan(PlayerCell(st)) <= ForbiddenRadius {
		return protocol.NewError(protocol.CodeEditForbidden, "too close to the player")
	}
	return nil
}

// ApplyEdit validates and commits one owner edit. Checks run in order:
// cooldown, forbidden zone, resources, and for ADD_WALL the path check.
// Nothing is mutated unless every check passes.
func (m *Manager) ApplyEdit(st *models.RoomState, edit protocol.OwnerEdit, now int64) error {
	if err := editable(st); err != nil {
		return err
	}
	if !st.Maze.Grid.InBounds(edit.Cell) {
		return protocol.Invalid("cell %d,%d is outside the maze", edit.Cell.X, edit.Cell.Y)
	}

	var err error
	switch edit.Action {
	case protocol.ActionAddWall:
		err = m.addWall(st, edit, now)
	case protocol.ActionDelWall:
		err = m.delWall(st, edit, now)
	case protocol.ActionPlaceTrap:
		err = m.placeTrap(st, edit, now)
	case protocol.ActionPlacePoint:
		err = m.placePoint(st, edit, now)
	default:
		return protocol.Invalid("unknown edit action %q", edit.Action)
	}
	if err != nil {
		return err
	}
	st.Owner.EditCooldownUntil = now + EditCooldownMs
	return nil
}

func (m *Manager) addWall(st *models.RoomState, edit protocol.OwnerEdit, now int64) error {
	if err := checkCooldown(st, now); err != nil {
		return err
	}
	if err := checkForbidden(st, edit.Cell); err != nil {
		return err
	}
	grid := st.Maze.Grid
	if grid.HasWall(edit.Cell, edit.Direction) {
		return protocol.NewError(protocol.CodeWallExists, "wall already exists")
	}
	if st.Owner.WallStock <= 0 {
		return protocol.NewError(protocol.CodeWallStockEmpty, "no walls left")
	}
	if !m.validator.CanAddWall(grid, PlayerCell(st), st.Maze.Goal, edit.Cell, edit.Direction) {
		return protocol.NewError(protocol.CodeNoPath, "wall would block the path to the goal")
	}

	grid.SetWall(edit.Cell, edit.Direction, true)
	st.Owner.WallStock--
	m.validator.Invalidate()
	return nil
}

func (m *Manager) delWall(st *models.RoomState, edit protocol.OwnerEdit, now int64) error {
	if err := checkCooldown(st, now); err != nil {
		return err
	}
	if err := checkForbidden(st, edit.Cell); err != nil {
		return err
	}
	grid := st.Maze.Grid
	if st.Owner.WallRemoveLeft <= 0 {
		return protocol.NewError(protocol.CodeWallRemoveExhausted, "wall removal already used")
	}
	if grid.IsBorder(edit.Cell, edit.Direction) {
		return protocol.NewError(protocol.CodeEditForbidden, "border walls cannot be removed")
	}
	if !grid.HasWall(edit.Cell, edit.Direction) {
		return protocol.NewError(protocol.CodeWallMissing, "no wall to remove")
	}

	grid.SetWall(edit.Cell, edit.Direction, false)
	st.Owner.WallRemoveLeft--
	st.Owner.WallStock++
	m.validator.Invalidate()
	return nil
}

// placeTrap is only checked against its 40-45s window, not the cooldown,
// but an accepted trap still starts a cooldown.
func (m *Manager) placeTrap(st *models.RoomState, edit protocol.OwnerEdit, now int64) error {
	if st.Phase != state.PhasePrep {
		return protocol.NewError(protocol.CodeTrapPhaseClosed, "trap window closed")
	}
	switch state.PrepWindow(prepElapsed(st, now)).Traps {
	case state.WindowBefore:
		return protocol.NewError(protocol.CodeTrapPhaseLocked, "trap window not open yet")
	case state.WindowAfter:
		return protocol.NewError(protocol.CodeTrapPhaseClosed, "trap window closed")
	}
	if err := checkForbidden(st, edit.Cell); err != nil {
		return err
	}
	if len(st.Owner.Traps) >= MaxTraps {
		return protocol.NewError(protocol.CodeLimitReached, "trap limit reached")
	}
	if st.Owner.TrapCharges <= 0 {
		return protocol.NewError(protocol.CodeTrapChargeEmpty, "no trap charges left")
	}
	if !m.trapCellValid(st, edit.Cell) {
		return protocol.NewError(protocol.CodeTrapInvalidCell, "cannot place a trap there")
	}

	st.Owner.Traps = append(st.Owner.Traps, models.Trap{Cell: edit.Cell, PlacedAt: now})
	st.Owner.TrapCharges--
	return nil
}

func (m *Manager) trapCellValid(st *models.RoomState, c maze.Cell) bool {
	if c == st.Maze.Start || c == st.Maze.Goal {
		return false
	}
	for _, t := range st.Owner.Traps {
		if t.Cell == c {
			return false
		}
	}
	return true
}

func (m *Manager) placePoint(st *models.RoomState, edit protocol.OwnerEdit, now int64) error {
	if st.Phase != state.PhasePrep || state.PrepWindow(prepElapsed(st, now)).Points != state.WindowOpen {
		return protocol.NewError(protocol.CodePointPhaseClosed, "point window closed")
	}
	if err := checkCooldown(st, now); err != nil {
		return err
	}
	if err := checkForbidden(st, edit.Cell); err != nil {
		return err
	}
	if len(st.Owner.Points) >= PointCap {
		return protocol.NewError(protocol.CodeLimitReached, "point limit reached")
	}
	key := edit.Cell.Key()
	if _, taken := st.Owner.Points[key]; taken || edit.Cell == st.Maze.Start || edit.Cell == st.Maze.Goal {
		return protocol.NewError(protocol.CodePointInvalidCell, "cannot place a point there")
	}

	st.Owner.Points[key] = models.Point{Cell: edit.Cell, Value: edit.Value, PlacedAt: now}
	st.Owner.PointTotalValue += edit.Value
	return nil
}

// PlacePrediction marks a cell during the last 15 seconds of prep.
// Marks ignore the edit cooldown.
func (m *Manager) PlacePrediction(st *models.RoomState, c maze.Cell, now int64) error {
	if st.Pause.Paused {
		return protocol.NewError(protocol.CodeRoomPaused, "room is paused")
	}
	if st.Phase != state.PhasePrep || state.PrepWindow(prepElapsed(st, now)).Predictions != state.WindowOpen {
		return protocol.NewError(protocol.CodePredictionPhaseLocked, "prediction window not open")
	}
	if st.Maze == nil || !st.Maze.Grid.InBounds(c) {
		return protocol.Invalid("cell %d,%d is outside the maze", c.X, c.Y)
	}
	if _, dup := st.Owner.PredictionMarks[c.Key()]; dup {
		return protocol.Invalid("cell %s already marked", c.Key())
	}
	if len(st.Owner.PredictionMarks) >= st.Owner.PredictionLimit {
		return protocol.NewError(protocol.CodeLimitReached, "prediction limit reached")
	}
	st.Owner.PredictionMarks[c.Key()] = models.Mark{Cell: c, PlacedAt: now}
	return nil
}

// CancelPrediction removes the mark whose id is "x,y".
func (m *Manager) CancelPrediction(st *models.RoomState, target string) error {
	if st.Pause.Paused {
		return protocol.NewError(protocol.CodeRoomPaused, "room is paused")
	}
	if st.Phase != state.PhasePrep {
		return protocol.NewError(protocol.CodePredictionPhaseLocked, "marks can only be cancelled during prep")
	}
	c, ok := protocol.ParseCellKey(target)
	if !ok {
		return protocol.NewError(protocol.CodeTargetNotFound, "unknown target "+target)
	}
	if _, exists := st.Owner.PredictionMarks[c.Key()]; !exists {
		return protocol.NewError(protocol.CodeTargetNotFound, "no mark at "+c.Key())
	}
	delete(st.Owner.PredictionMarks, c.Key())
	return nil
}

// AcceptInput stores a player input after the timestamp ordering checks.
func (m *Manager) AcceptInput(st *models.RoomState, in protocol.PlayerInput, now int64) error {
	last := st.Player.Input.ClientTimestamp
	switch {
	case in.Timestamp == last:
		return protocol.NewError(protocol.CodeInputTimestampReplay, "input timestamp replayed")
	case in.Timestamp < last:
		return protocol.NewError(protocol.CodeInputTimestampPast, "input timestamp in the past")
	}
	st.Player.Input = models.InputState{
		Forward:         in.Forward,
		Turn:            in.Yaw,
		ClientTimestamp: in.Timestamp,
		ReceivedAt:      now,
	}
	return nil
}
