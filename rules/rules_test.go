package rules

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/wfunc/meiro/maze"
	"github.com/wfunc/meiro/models"
	"github.com/wfunc/meiro/physics"
	"github.com/wfunc/meiro/protocol"
	"github.com/wfunc/meiro/state"
)

const base = int64(1_000_000)

func openGrid(size int) *maze.Grid {
	g := maze.NewGrid(size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			g.SetWall(maze.Cell{X: x, Y: y}, maze.Right, false)
			g.SetWall(maze.Cell{X: x, Y: y}, maze.Bottom, false)
		}
	}
	return g
}

func corridorGrid(size int) *maze.Grid {
	g := maze.NewGrid(size)
	for x := 0; x < size-1; x++ {
		g.SetWall(maze.Cell{X: x, Y: 0}, maze.Right, false)
	}
	return g
}

func newRoom(phase state.Phase, g *maze.Grid, start, goal maze.Cell) *models.RoomState {
	st := models.NewRoomState("r1", base, state.DefaultDurations(0))
	st.Phase = phase
	st.MazeSize = g.Size
	st.Maze = &maze.Maze{Size: g.Size, Grid: g, Start: start, Goal: goal}
	st.Owner = NewOwnerState(g.Size)
	st.Player = NewPlayerState(start)
	st.PhaseStartedAt = base
	st.PhaseEndsAt = base + st.Durations.For(phase).Milliseconds()
	return st
}

func newManager() *Manager {
	return NewManager(rand.New(rand.NewSource(1)))
}

func codeOf(err error) string {
	var perr *protocol.Error
	if errors.As(err, &perr) {
		return perr.Code
	}
	if err != nil {
		return "non-protocol error: " + err.Error()
	}
	return ""
}

func expectCode(t *testing.T, err error, code string) {
	t.Helper()
	if got := codeOf(err); got != code {
		t.Fatalf("expected %q, got %q", code, got)
	}
}

func wallEdit(action protocol.EditAction, x, y int, d maze.Direction) protocol.OwnerEdit {
	return protocol.OwnerEdit{Action: action, Cell: maze.Cell{X: x, Y: y}, Direction: d}
}

func TestRequiredScore(t *testing.T) {
	tests := map[int]int{0: 0, 3: 2, 4: 3, 10: 7, 20: 13, 25: 17, 40: 26, 100: 65}
	for total, want := range tests {
		if got := RequiredScore(total); got != want {
			t.Errorf("RequiredScore(%d) = %d, want %d", total, got, want)
		}
	}
}

func TestInitialResources(t *testing.T) {
	if o := NewOwnerState(20); o.WallStock != 48 || o.WallRemoveLeft != 1 || o.TrapCharges != 2 || o.PredictionLimit != 3 {
		t.Fatalf("unexpected size-20 resources %+v", o)
	}
	if o := NewOwnerState(40); o.WallStock != 140 {
		t.Fatalf("expected 140 walls for size 40, got %d", o.WallStock)
	}
}

func TestScenario_TargetAndShortfallGrant(t *testing.T) {
	m := newManager()
	st := newRoom(state.PhasePrep, openGrid(20), maze.Cell{X: 0, Y: 0}, maze.Cell{X: 19, Y: 19})

	now := base
	for i := 0; i < 5; i++ {
		edit := protocol.OwnerEdit{Action: protocol.ActionPlacePoint, Cell: maze.Cell{X: 10 + i, Y: 10}, Value: 5}
		if err := m.ApplyEdit(st, edit, now); err != nil {
			t.Fatalf("point %d: %v", i, err)
		}
		now += EditCooldownMs
	}
	if st.Owner.PointTotalValue != 25 {
		t.Fatalf("expected total 25, got %d", st.Owner.PointTotalValue)
	}

	grant, locked := LockTarget(st)
	if !locked || st.TargetScore != 17 || grant != 15 || st.Player.Score != 15 {
		t.Fatalf("expected target 17 and grant 15, got target=%d grant=%d score=%d", st.TargetScore, grant, st.Player.Score)
	}
	if _, again := LockTarget(st); again {
		t.Fatal("target must lock only once")
	}
	if st.TargetScore != 17 || st.Player.Score != 15 {
		t.Fatal("second lock changed the state")
	}
}

func TestShortfallGrant(t *testing.T) {
	if g := ShortfallGrant(0, 0); g != 0 {
		t.Errorf("no points should grant nothing, got %d", g)
	}
	if g := ShortfallGrant(40, 26); g != 0 {
		t.Errorf("a full cap should grant nothing, got %d", g)
	}
	if g := ShortfallGrant(36, RequiredScore(36)); g != 4 {
		t.Errorf("expected grant 4, got %d", g)
	}
}

func TestDelWall_OnlyOnce(t *testing.T) {
	m := newManager()
	g := openGrid(20)
	g.SetWall(maze.Cell{X: 10, Y: 10}, maze.Right, true)
	g.SetWall(maze.Cell{X: 12, Y: 12}, maze.Right, true)
	st := newRoom(state.PhaseExplore, g, maze.Cell{X: 0, Y: 0}, maze.Cell{X: 19, Y: 19})

	if err := m.ApplyEdit(st, wallEdit(protocol.ActionDelWall, 10, 10, maze.Right), base); err != nil {
		t.Fatalf("first DEL_WALL: %v", err)
	}
	if st.Owner.WallStock != 49 || st.Owner.WallRemoveLeft != 0 {
		t.Fatalf("expected stock 49 and no removals left, got %d/%d", st.Owner.WallStock, st.Owner.WallRemoveLeft)
	}
	if g.HasWall(maze.Cell{X: 10, Y: 10}, maze.Right) {
		t.Fatal("wall should be gone")
	}

	err := m.ApplyEdit(st, wallEdit(protocol.ActionDelWall, 12, 12, maze.Right), base+5000)
	expectCode(t, err, protocol.CodeWallRemoveExhausted)
	if st.Owner.WallStock != 49 || st.Owner.WallRemoveLeft != 0 {
		t.Fatalf("rejected removal changed resources: %d/%d", st.Owner.WallStock, st.Owner.WallRemoveLeft)
	}
	if !g.HasWall(maze.Cell{X: 12, Y: 12}, maze.Right) {
		t.Fatal("rejected removal changed the maze")
	}
}

func TestDelWall_BorderAndMissing(t *testing.T) {
	m := newManager()
	st := newRoom(state.PhaseExplore, openGrid(20), maze.Cell{X: 0, Y: 0}, maze.Cell{X: 19, Y: 19})
	expectCode(t, m.ApplyEdit(st, wallEdit(protocol.ActionDelWall, 19, 10, maze.Right), base), protocol.CodeEditForbidden)
	expectCode(t, m.ApplyEdit(st, wallEdit(protocol.ActionDelWall, 10, 10, maze.Right), base), protocol.CodeWallMissing)
	if st.Owner.WallRemoveLeft != 1 {
		t.Fatal("failed removals must not use the one-shot removal")
	}
}

func TestAddWall_CooldownAndStock(t *testing.T) {
	m := newManager()
	st := newRoom(state.PhaseExplore, openGrid(20), maze.Cell{X: 0, Y: 0}, maze.Cell{X: 19, Y: 19})

	if err := m.ApplyEdit(st, wallEdit(protocol.ActionAddWall, 10, 10, maze.Right), base); err != nil {
		t.Fatalf("ADD_WALL: %v", err)
	}
	if st.Owner.WallStock != 47 || st.Owner.EditCooldownUntil != base+EditCooldownMs {
		t.Fatalf("unexpected owner state %+v", st.Owner)
	}

	err := m.ApplyEdit(st, wallEdit(protocol.ActionAddWall, 11, 10, maze.Right), base+999)
	expectCode(t, err, protocol.CodeEditCooldown)
	var perr *protocol.Error
	errors.As(err, &perr)
	if perr.Data["retryAfterMs"] != int64(1) {
		t.Fatalf("expected retryAfterMs 1, got %v", perr.Data["retryAfterMs"])
	}

	if err := m.ApplyEdit(st, wallEdit(protocol.ActionAddWall, 11, 10, maze.Right), base+1000); err != nil {
		t.Fatalf("edit after cooldown: %v", err)
	}
	expectCode(t, m.ApplyEdit(st, wallEdit(protocol.ActionAddWall, 11, 10, maze.Right), base+5000), protocol.CodeWallExists)

	st.Owner.WallStock = 0
	expectCode(t, m.ApplyEdit(st, wallEdit(protocol.ActionAddWall, 12, 10, maze.Right), base+9000), protocol.CodeWallStockEmpty)
}

func TestForbiddenZone_HalfBoundary(t *testing.T) {
	m := newManager()
	st := newRoom(state.PhaseExplore, openGrid(20), maze.Cell{X: 10, Y: 10}, maze.Cell{X: 19, Y: 19})
	// x=10.5 rounds up, so the player counts as standing in 11,10
	st.Player.Body = physics.Body{X: 10.5, Y: 10}

	expectCode(t, m.ApplyEdit(st, wallEdit(protocol.ActionAddWall, 13, 10, maze.Top), base), protocol.CodeEditForbidden)
	expectCode(t, m.ApplyEdit(st, wallEdit(protocol.ActionAddWall, 11, 12, maze.Top), base), protocol.CodeEditForbidden)
	if err := m.ApplyEdit(st, wallEdit(protocol.ActionAddWall, 8, 10, maze.Top), base); err != nil {
		t.Fatalf("cell 8,10 is three cells from 11,10 and should be editable: %v", err)
	}
}

func TestAddWall_NoPathAdversarial(t *testing.T) {
	m := newManager()
	st := newRoom(state.PhaseExplore, corridorGrid(20), maze.Cell{X: 0, Y: 0}, maze.Cell{X: 19, Y: 0})
	before := st.Maze.Grid.Encode()
	owner := st.Owner

	now := base
	for i := 0; i < 5000; i++ {
		x := 5 + i%10
		err := m.ApplyEdit(st, wallEdit(protocol.ActionAddWall, x, 0, maze.Right), now)
		if codeOf(err) != protocol.CodeNoPath {
			t.Fatalf("attempt %d: expected NO_PATH, got %v", i, err)
		}
		now += 10
	}
	if st.Maze.Grid.Encode() != before {
		t.Fatal("maze changed")
	}
	if st.Owner.WallStock != owner.WallStock || st.Owner.EditCooldownUntil != owner.EditCooldownUntil {
		t.Fatalf("owner state changed: %+v", st.Owner)
	}
	checks, hits := m.Validator().Stats()
	if checks+hits != 5000 {
		t.Fatalf("expected 5000 validations, got %d searches and %d hits", checks, hits)
	}
}

func TestTraps_WindowAndLimit(t *testing.T) {
	m := newManager()
	st := newRoom(state.PhasePrep, openGrid(20), maze.Cell{X: 0, Y: 0}, maze.Cell{X: 19, Y: 19})
	trap := func(x, y int) protocol.OwnerEdit {
		return protocol.OwnerEdit{Action: protocol.ActionPlaceTrap, Cell: maze.Cell{X: x, Y: y}}
	}

	expectCode(t, m.ApplyEdit(st, trap(10, 10), base+39_999), protocol.CodeTrapPhaseLocked)
	expectCode(t, m.ApplyEdit(st, trap(10, 10), base+45_000), protocol.CodeTrapPhaseClosed)

	st.Owner.TrapCharges = 5
	now := base + 40_000
	if err := m.ApplyEdit(st, trap(10, 10), now); err != nil {
		t.Fatalf("first trap: %v", err)
	}
	// traps ignore the cooldown inside their window
	if err := m.ApplyEdit(st, trap(12, 12), now+1); err != nil {
		t.Fatalf("second trap: %v", err)
	}
	if st.Owner.EditCooldownUntil != now+1+EditCooldownMs {
		t.Fatalf("a trap should still start the cooldown, got %d", st.Owner.EditCooldownUntil)
	}
	expectCode(t, m.ApplyEdit(st, trap(14, 14), now+2), protocol.CodeLimitReached)
	if len(st.Owner.Traps) != 2 || st.Owner.TrapCharges != 3 {
		t.Fatalf("rejected trap changed state: %d traps, %d charges", len(st.Owner.Traps), st.Owner.TrapCharges)
	}

	st.Phase = state.PhaseExplore
	expectCode(t, m.ApplyEdit(st, trap(14, 14), now+3), protocol.CodeTrapPhaseClosed)
}

func TestTraps_ChargesAndCells(t *testing.T) {
	m := newManager()
	st := newRoom(state.PhasePrep, openGrid(20), maze.Cell{X: 0, Y: 0}, maze.Cell{X: 19, Y: 19})
	now := base + 41_000
	expectCode(t, m.ApplyEdit(st, protocol.OwnerEdit{Action: protocol.ActionPlaceTrap, Cell: maze.Cell{X: 19, Y: 19}}, now), protocol.CodeTrapInvalidCell)
	st.Owner.TrapCharges = 0
	expectCode(t, m.ApplyEdit(st, protocol.OwnerEdit{Action: protocol.ActionPlaceTrap, Cell: maze.Cell{X: 9, Y: 9}}, now), protocol.CodeTrapChargeEmpty)
}

func TestPoints_WindowAndCap(t *testing.T) {
	m := newManager()
	st := newRoom(state.PhasePrep, openGrid(20), maze.Cell{X: 0, Y: 0}, maze.Cell{X: 19, Y: 19})
	now := base
	for i := 0; i < PointCap; i++ {
		edit := protocol.OwnerEdit{Action: protocol.ActionPlacePoint, Cell: maze.Cell{X: 5 + i, Y: 8}, Value: 1}
		if err := m.ApplyEdit(st, edit, now); err != nil {
			t.Fatalf("point %d: %v", i, err)
		}
		now += EditCooldownMs
	}
	edit := protocol.OwnerEdit{Action: protocol.ActionPlacePoint, Cell: maze.Cell{X: 5, Y: 12}, Value: 3}
	expectCode(t, m.ApplyEdit(st, edit, now), protocol.CodeLimitReached)
	expectCode(t, m.ApplyEdit(st, edit, base+40_000), protocol.CodePointPhaseClosed)

	st.Owner.Points = map[string]models.Point{}
	dup := protocol.OwnerEdit{Action: protocol.ActionPlacePoint, Cell: maze.Cell{X: 19, Y: 19}, Value: 1}
	expectCode(t, m.ApplyEdit(st, dup, now+EditCooldownMs), protocol.CodePointInvalidCell)
}

func TestEdits_PhaseAndPause(t *testing.T) {
	m := newManager()
	st := newRoom(state.PhaseCountdown, openGrid(20), maze.Cell{X: 0, Y: 0}, maze.Cell{X: 19, Y: 19})
	expectCode(t, m.ApplyEdit(st, wallEdit(protocol.ActionAddWall, 10, 10, maze.Right), base), protocol.CodeInvalidPhase)

	st.Phase = state.PhaseExplore
	st.Pause.Paused = true
	expectCode(t, m.ApplyEdit(st, wallEdit(protocol.ActionAddWall, 10, 10, maze.Right), base), protocol.CodeRoomPaused)
}

func TestPredictions(t *testing.T) {
	m := newManager()
	st := newRoom(state.PhasePrep, openGrid(20), maze.Cell{X: 0, Y: 0}, maze.Cell{X: 19, Y: 19})

	expectCode(t, m.PlacePrediction(st, maze.Cell{X: 3, Y: 3}, base+44_999), protocol.CodePredictionPhaseLocked)
	now := base + 45_000
	for i := 0; i < PredictionLimit; i++ {
		if err := m.PlacePrediction(st, maze.Cell{X: 3 + i, Y: 3}, now); err != nil {
			t.Fatalf("mark %d: %v", i, err)
		}
	}
	expectCode(t, m.PlacePrediction(st, maze.Cell{X: 9, Y: 9}, now), protocol.CodeLimitReached)

	if err := m.CancelPrediction(st, "4,3"); err != nil {
		t.Fatalf("CancelPrediction: %v", err)
	}
	expectCode(t, m.CancelPrediction(st, "4,3"), protocol.CodeTargetNotFound)
	expectCode(t, m.CancelPrediction(st, "rematch"), protocol.CodeTargetNotFound)
	if err := m.PlacePrediction(st, maze.Cell{X: 9, Y: 9}, now); err != nil {
		t.Fatalf("a cancelled mark should free its slot: %v", err)
	}

	st.Phase = state.PhaseExplore
	expectCode(t, m.PlacePrediction(st, maze.Cell{X: 10, Y: 9}, now), protocol.CodePredictionPhaseLocked)
}

func TestBonusDeck_Ratio(t *testing.T) {
	m := newManager()
	owner := NewOwnerState(20)
	walls, traps := 0, 0
	for i := 0; i < 1000; i++ {
		switch m.DrawBonus(&owner) {
		case models.BonusWall:
			walls++
		case models.BonusTrap:
			traps++
		}
	}
	if walls < 650 || walls > 750 {
		t.Fatalf("wall share %d/1000 outside 70%%±5", walls)
	}
	if owner.WallStock != 48+WallBonusAmount*walls || owner.TrapCharges != 2+TrapBonusAmount*traps {
		t.Fatalf("bonuses not applied: %+v", owner)
	}
}

func TestStepEffects_TrapSlow(t *testing.T) {
	m := newManager()
	st := newRoom(state.PhaseExplore, openGrid(20), maze.Cell{X: 0, Y: 0}, maze.Cell{X: 19, Y: 19})
	st.PhaseEndsAt = base + 100_000
	st.Owner.Traps = []models.Trap{{Cell: maze.Cell{X: 1, Y: 0}}}

	st.Player.Body = physics.Spawn(maze.Cell{X: 1, Y: 0})
	out := m.StepEffects(st, maze.Cell{X: 0, Y: 0}, base)
	if len(out.Effects) != 1 || out.Effects[0].Event != protocol.EventTrapTriggered {
		t.Fatalf("expected a trap event, got %+v", out.Effects)
	}
	if st.Player.TrapSlowUntil != base+20_000 {
		t.Fatalf("expected slow until +20s, got %d", st.Player.TrapSlowUntil-base)
	}
	if SpeedMultiplier(st, base+19_999) != TrapSpeedMultiplier || SpeedMultiplier(st, base+20_000) != 1 {
		t.Fatal("unexpected speed multiplier")
	}

	// standing still does not re-trigger
	if out := m.StepEffects(st, maze.Cell{X: 1, Y: 0}, base+1000); len(out.Effects) != 0 {
		t.Fatalf("no events expected, got %+v", out.Effects)
	}

	// re-entering extends to now + remaining/5
	m.StepEffects(st, maze.Cell{X: 0, Y: 0}, base+50_000)
	if st.Player.TrapSlowUntil != base+60_000 {
		t.Fatalf("expected slow extended to +60s, got %d", st.Player.TrapSlowUntil-base)
	}
	// but never shortens a longer slow
	st.Player.TrapSlowUntil = base + 500_000
	m.StepEffects(st, maze.Cell{X: 0, Y: 0}, base+60_000)
	if st.Player.TrapSlowUntil != base+500_000 {
		t.Fatalf("slow should not shrink, got %d", st.Player.TrapSlowUntil-base)
	}
	if len(st.Owner.Traps) != 1 {
		t.Fatal("traps stay in place after triggering")
	}
}

func TestStepEffects_PointsGoalAndTarget(t *testing.T) {
	m := newManager()
	st := newRoom(state.PhaseExplore, openGrid(20), maze.Cell{X: 0, Y: 0}, maze.Cell{X: 2, Y: 0})
	st.Owner.Points = map[string]models.Point{"1,0": {Cell: maze.Cell{X: 1, Y: 0}, Value: 5}}
	st.Owner.PointTotalValue = 5
	st.TargetScore = 10
	st.TargetLocked = true

	st.Player.Body = physics.Spawn(maze.Cell{X: 1, Y: 0})
	out := m.StepEffects(st, maze.Cell{X: 0, Y: 0}, base)
	if st.Player.Score != 5 || len(st.Owner.Points) != 0 || !out.OwnerChanged {
		t.Fatalf("point not collected: score=%d points=%d", st.Player.Score, len(st.Owner.Points))
	}
	if out.TargetReached {
		t.Fatal("target not reached yet")
	}

	st.Player.Body = physics.Spawn(maze.Cell{X: 2, Y: 0})
	out = m.StepEffects(st, maze.Cell{X: 1, Y: 0}, base+100)
	if st.Player.Score != 7 || !st.Player.GoalBonusAwarded {
		t.Fatalf("expected goal bonus 2, score=%d", st.Player.Score)
	}
	m.StepEffects(st, maze.Cell{X: 2, Y: 0}, base+200)
	if st.Player.Score != 7 {
		t.Fatal("goal bonus must be awarded once")
	}

	st.Player.Score = 10
	if out = m.StepEffects(st, maze.Cell{X: 2, Y: 0}, base+300); !out.TargetReached {
		t.Fatal("expected target reached")
	}

	st.TargetScore = 0
	if TargetReached(st) {
		t.Fatal("a zero target never ends the round")
	}
}

func TestStepEffects_PredictionHit(t *testing.T) {
	m := newManager()
	st := newRoom(state.PhaseExplore, openGrid(20), maze.Cell{X: 0, Y: 0}, maze.Cell{X: 19, Y: 19})
	st.Owner.PredictionMarks = map[string]models.Mark{"3,0": {Cell: maze.Cell{X: 3, Y: 0}}}
	stock, charges := st.Owner.WallStock, st.Owner.TrapCharges

	st.Player.Body = physics.Spawn(maze.Cell{X: 3, Y: 0})
	out := m.StepEffects(st, maze.Cell{X: 2, Y: 0}, base)
	if len(st.Owner.PredictionMarks) != 0 || st.Owner.PredictionHits != 1 || st.Player.PredictionHits != 1 {
		t.Fatalf("mark not consumed: %+v", st.Owner)
	}
	if len(out.Effects) != 1 || out.Effects[0].Event != protocol.EventPredictionHit {
		t.Fatalf("expected a prediction event, got %+v", out.Effects)
	}
	gained := (st.Owner.WallStock - stock) + (st.Owner.TrapCharges - charges)
	if gained != WallBonusAmount && gained != TrapBonusAmount {
		t.Fatalf("expected one bonus, stock %d->%d charges %d->%d", stock, st.Owner.WallStock, charges, st.Owner.TrapCharges)
	}
	if len(st.Owner.BonusDeck) != 9 {
		t.Fatalf("expected 9 cards left, got %d", len(st.Owner.BonusDeck))
	}
}

func TestAcceptInput_Timestamps(t *testing.T) {
	m := newManager()
	st := newRoom(state.PhaseExplore, openGrid(20), maze.Cell{X: 0, Y: 0}, maze.Cell{X: 19, Y: 19})
	if err := m.AcceptInput(st, protocol.PlayerInput{Forward: 1, Yaw: 0.5, Timestamp: 100}, base); err != nil {
		t.Fatalf("AcceptInput: %v", err)
	}
	if st.Player.Input.Turn != 0.5 || st.Player.Input.ReceivedAt != base {
		t.Fatalf("input not stored: %+v", st.Player.Input)
	}
	expectCode(t, m.AcceptInput(st, protocol.PlayerInput{Timestamp: 100}, base), protocol.CodeInputTimestampReplay)
	expectCode(t, m.AcceptInput(st, protocol.PlayerInput{Timestamp: 99}, base), protocol.CodeInputTimestampPast)
	if st.Player.Input.Forward != 1 {
		t.Fatal("rejected input overwrote the slot")
	}
}
