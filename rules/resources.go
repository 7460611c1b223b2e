// rules/resources.go
package rules

import (
	"github.com/wfunc/meiro/maze"
	"github.com/wfunc/meiro/models"
	"github.com/wfunc/meiro/physics"
)

const (
	EditCooldownMs      = 1000
	ForbiddenRadius     = 2
	TrapSpeedMultiplier = 0.4
	MaxTraps            = 2
	PredictionLimit     = 3
	PointCap            = 12
	InitialTrapCharges  = 2
	InitialResourceCap  = 40

	// 预测奖励
	WallBonusAmount = 2
	TrapBonusAmount = 1
	deckWallCards   = 7
	deckTrapCards   = 3

	// RequiredScore ratio as a percentage, kept integral so ceil is exact.
	pointRequiredPercent = 65
)

// InitialWallStock returns the starting wall stock for a maze size.
func InitialWallStock(size int) int {
	if size == 40 {
		return 140
	}
	return 48
}

// NewOwnerState returns fresh owner resources for a round.
func NewOwnerState(size int) models.OwnerState {
	return models.OwnerState{
		WallStock:       InitialWallStock(size),
		WallRemoveLeft:  1,
		TrapCharges:     InitialTrapCharges,
		PredictionLimit: PredictionLimit,
		PredictionMarks: make(map[string]models.Mark),
		Points:          make(map[string]models.Point),
	}
}

// NewPlayerState places the player at the centre of start.
func NewPlayerState(start maze.Cell) models.PlayerState {
	return models.PlayerState{Body: physics.Spawn(start)}
}

// RequiredScore is ceil(0.65 * total).
func RequiredScore(total int) int {
	if total <= 0 {
		return 0
	}
	return (total*pointRequiredPercent + 99) / 100
}

// ShortfallGrant is the starting score handed to the player when fewer
// than InitialResourceCap points were placed. It never reaches target.
func ShortfallGrant(total, target int) int {
	if total >= InitialResourceCap {
		return 0
	}
	return min(InitialResourceCap-total, max(0, target-1))
}

// GoalBonus is ceil(target / 5).
func GoalBonus(target int) int {
	if target <= 0 {
		return 0
	}
	return (target + 4) / 5
}

// LockTarget computes the target score from the placed points and grants
// the shortfall. It runs once per round; later calls return false.
func LockTarget(st *models.RoomState) (grant int, locked bool) {
	if st.TargetLocked {
		return 0, false
	}
	st.TargetScore = RequiredScore(st.Owner.PointTotalValue)
	grant = ShortfallGrant(st.Owner.PointTotalValue, st.TargetScore)
	st.Player.Score += grant
	st.TargetLocked = true
	return grant, true
}

// TargetReached reports whether the round should end in the player's favour.
func TargetReached(st *models.RoomState) bool {
	return st.TargetLocked && st.TargetScore > 0 && st.Player.Score >= st.TargetScore
}

// SpeedMultiplier returns the trap slow factor in effect at now.
func SpeedMultiplier(st *models.RoomState, now int64) float64 {
	if now < st.Player.TrapSlowUntil {
		return TrapSpeedMultiplier
	}
	return 1
}

// PlayerCell is the player's rounded current cell.
func PlayerCell(st *models.RoomState) maze.Cell {
	return st.Player.Body.Cell()
}
