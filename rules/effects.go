// rules/effects.go
package rules

import (
	"github.com/wfunc/meiro/maze"
	"github.com/wfunc/meiro/models"
	"github.com/wfunc/meiro/protocol"
)

// Effect is an event produced while applying a physics step.
type Effect struct {
	Event   string
	Payload map[string]any
}

// StepOutcome summarises what StepEffects changed.
type StepOutcome struct {
	Effects       []Effect
	OwnerChanged  bool
	TargetReached bool
}

// StepEffects applies traps, prediction marks, points and the goal bonus
// for the player's current cell. prev is the cell before the physics step;
// traps only fire on entry.
func (m *Manager) StepEffects(st *models.RoomState, prev maze.Cell, now int64) StepOutcome {
	var out StepOutcome
	cell := PlayerCell(st)
	if cell != prev {
		// the validator's blocked verdict was computed from prev
		m.validator.Invalidate()
		m.triggerTraps(st, cell, now, &out)
	}
	m.hitPrediction(st, cell, &out)
	collectPoint(st, cell, &out)
	awardGoal(st, cell, &out)
	out.TargetReached = TargetReached(st)
	return out
}

func (m *Manager) triggerTraps(st *models.RoomState, cell maze.Cell, now int64, out *StepOutcome) {
	for _, t := range st.Owner.Traps {
		if t.Cell != cell {
			continue
		}
		remaining := max(st.PhaseEndsAt-now, 0)
		until := now + remaining/5
		if until > st.Player.TrapSlowUntil {
			st.Player.TrapSlowUntil = until
		}
		out.Effects = append(out.Effects, Effect{
			Event:   protocol.EventTrapTriggered,
			Payload: map[string]any{"cell": cell, "slowUntil": st.Player.TrapSlowUntil},
		})
		return
	}
}

func (m *Manager) hitPrediction(st *models.RoomState, cell maze.Cell, out *StepOutcome) {
	key := cell.Key()
	if _, ok := st.Owner.PredictionMarks[key]; !ok {
		return
	}
	delete(st.Owner.PredictionMarks, key)
	st.Owner.PredictionHits++
	st.Player.PredictionHits++

	bonus := m.DrawBonus(&st.Owner)
	out.OwnerChanged = true
	out.Effects = append(out.Effects, Effect{
		Event:   protocol.EventPredictionHit,
		Payload: map[string]any{"cell": cell, "bonus": bonus},
	})
}

// DrawBonus takes the next card from the owner's bonus deck, reshuffling a
// fresh 7 wall / 3 trap deck when it runs out, and applies it.
func (m *Manager) DrawBonus(owner *models.OwnerState) models.BonusKind {
	if len(owner.BonusDeck) == 0 {
		owner.BonusDeck = m.newDeck()
	}
	card := owner.BonusDeck[0]
	owner.BonusDeck = owner.BonusDeck[1:]
	switch card {
	case models.BonusWall:
		owner.WallStock += WallBonusAmount
	case models.BonusTrap:
		owner.TrapCharges += TrapBonusAmount
	}
	return card
}

func (m *Manager) newDeck() []models.BonusKind {
	deck := make([]models.BonusKind, 0, deckWallCards+deckTrapCards)
	for i := 0; i < deckWallCards; i++ {
		deck = append(deck, models.BonusWall)
	}
	for i := 0; i < deckTrapCards; i++ {
		deck = append(deck, models.BonusTrap)
	}
	m.rnd.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
	return deck
}

func collectPoint(st *models.RoomState, cell maze.Cell, out *StepOutcome) {
	key := cell.Key()
	p, ok := st.Owner.Points[key]
	if !ok {
		return
	}
	delete(st.Owner.Points, key)
	st.Player.Score += p.Value
	out.OwnerChanged = true
	out.Effects = append(out.Effects, Effect{
		Event:   protocol.EventPointCollected,
		Payload: map[string]any{"cell": cell, "value": p.Value, "score": st.Player.Score},
	})
}

func awardGoal(st *models.RoomState, cell maze.Cell, out *StepOutcome) {
	if st.Maze == nil || cell != st.Maze.Goal || st.Player.GoalBonusAwarded || !st.TargetLocked {
		return
	}
	bonus := GoalBonus(st.TargetScore)
	st.Player.Score += bonus
	st.Player.GoalBonusAwarded = true
	out.Effects = append(out.Effects, Effect{
		Event:   protocol.EventGoalReached,
		Payload: map[string]any{"bonus": bonus, "score": st.Player.Score},
	})
}
