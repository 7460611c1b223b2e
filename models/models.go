// models/models.go
package models

import (
	"github.com/wfunc/meiro/maze"
	"github.com/wfunc/meiro/physics"
	"github.com/wfunc/meiro/state"
)

// Role 房间角色
type Role string

const (
	RoleOwner  Role = "owner"
	RolePlayer Role = "player"
)

// Valid reports whether r is one of the two roles.
func (r Role) Valid() bool {
	return r == RoleOwner || r == RolePlayer
}

// Other returns the opposite role.
func (r Role) Other() Role {
	if r == RoleOwner {
		return RolePlayer
	}
	return RoleOwner
}

// BonusKind is one card of the prediction bonus deck.
type BonusKind string

const (
	BonusWall BonusKind = "wall"
	BonusTrap BonusKind = "trap"
)

// SessionInfo 会话信息（房间可见部分）
type SessionInfo struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Nickname  string `json:"nickname"`
	JoinedAt  int64  `json:"joined_at"`
	Connected bool   `json:"connected"`
}

// Mark 预测标记
type Mark struct {
	Cell     maze.Cell `json:"cell"`
	PlacedAt int64     `json:"placed_at"`
}

// Trap 陷阱
type Trap struct {
	Cell     maze.Cell `json:"cell"`
	PlacedAt int64     `json:"placed_at"`
}

// Point 得分点
type Point struct {
	Cell     maze.Cell `json:"cell"`
	Value    int       `json:"value"`
	PlacedAt int64     `json:"placed_at"`
}

// OwnerState 房主资源
type OwnerState struct {
	WallStock         int              `json:"wall_stock"`
	WallRemoveLeft    int              `json:"wall_remove_left"`
	TrapCharges       int              `json:"trap_charges"`
	EditCooldownUntil int64            `json:"edit_cooldown_until"`
	PredictionLimit   int              `json:"prediction_limit"`
	PredictionMarks   map[string]Mark  `json:"prediction_marks"`
	Traps             []Trap           `json:"traps"`
	Points            map[string]Point `json:"points"`
	PointTotalValue   int              `json:"point_total_value"`
	PredictionHits    int              `json:"prediction_hits"`
	BonusDeck         []BonusKind      `json:"bonus_deck"`
}

// InputState is the last accepted P_INPUT.
type InputState struct {
	Forward         float64 `json:"forward"`
	Turn            float64 `json:"turn"`
	ClientTimestamp int64   `json:"client_timestamp"`
	ReceivedAt      int64   `json:"received_at"`
}

// PlayerState 玩家状态
type PlayerState struct {
	Body             physics.Body `json:"body"`
	Input            InputState   `json:"input"`
	PredictionHits   int          `json:"prediction_hits"`
	TrapSlowUntil    int64        `json:"trap_slow_until"`
	Score            int          `json:"score"`
	GoalBonusAwarded bool         `json:"goal_bonus_awarded"`
}

// PauseState 暂停状态
type PauseState struct {
	Paused      bool        `json:"paused"`
	Reason      string      `json:"reason,omitempty"`
	Role        Role        `json:"role,omitempty"`
	ExpiresAt   int64       `json:"expires_at,omitempty"`
	RemainingMs int64       `json:"remaining_ms,omitempty"`
	Phase       state.Phase `json:"phase,omitempty"`
}

// Result 结算结果
type Result struct {
	Reason string `json:"reason"`
	Score  int    `json:"score"`
	Target int    `json:"target"`
	At     int64  `json:"at"`
	// 探索阶段实际耗时（不含暂停）
	ElapsedMs int64 `json:"elapsed_ms"`
	// WALKOUT_TIMEOUT 时未回来的一方
	WalkoutRole Role `json:"walkout_role,omitempty"`
}

// 结算原因
const (
	ReasonTimeUp         = "TIME_UP"
	ReasonTargetReached  = "TARGET_REACHED"
	ReasonWalkoutTimeout = "WALKOUT_TIMEOUT"
)

// RoomState 房间状态模型
//
// All times are unix milliseconds. The maze grid is the single source of
// solid edges: carved walls and owner edits both live in Maze.Grid.
type RoomState struct {
	ID             string                 `json:"id"`
	Phase          state.Phase            `json:"phase"`
	CreatedAt      int64                  `json:"created_at"`
	UpdatedAt      int64                  `json:"updated_at"`
	LastActivityAt int64                  `json:"last_activity_at"`
	PhaseStartedAt int64                  `json:"phase_started_at"`
	PhaseEndsAt    int64                  `json:"phase_ends_at"`
	Durations      state.Durations        `json:"durations"`
	MazeSize       int                    `json:"maze_size"`
	Maze           *maze.Maze             `json:"maze"`
	Sessions       map[string]SessionInfo `json:"sessions"`
	Owner          OwnerState             `json:"owner"`
	Player         PlayerState            `json:"player"`
	TargetScore    int                    `json:"target_score"`
	TargetLocked   bool                   `json:"target_score_locked"`
	Pause          PauseState             `json:"pause"`
	Result         *Result                `json:"result,omitempty"`
	Seq            uint64                 `json:"seq"`
	Round          int                    `json:"round"`
}

// NewRoomState returns an empty lobby.
func NewRoomState(id string, now int64, durations state.Durations) *RoomState {
	return &RoomState{
		ID:             id,
		Phase:          state.PhaseLobby,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: now,
		Durations:      durations,
		MazeSize:       20,
		Sessions:       make(map[string]SessionInfo),
		Owner: OwnerState{
			PredictionMarks: make(map[string]Mark),
			Points:          make(map[string]Point),
		},
	}
}

// SessionByRole returns the session holding role r.
func (s *RoomState) SessionByRole(r Role) (SessionInfo, bool) {
	for _, info := range s.Sessions {
		if info.Role == r {
			return info, true
		}
	}
	return SessionInfo{}, false
}

// GameRecord 游戏记录模型
type GameRecord struct {
	ID          string        `json:"id"`
	RoomID      string        `json:"room_id"`
	Round       int           `json:"round"`
	MazeSize    int           `json:"maze_size"`
	Seed        int64         `json:"seed"`
	Reason      string        `json:"reason"`
	Score       int           `json:"score"`
	TargetScore int           `json:"target_score"`
	Players     []SessionInfo `json:"players"`
	DurationMs  int64         `json:"duration_ms"`
	WalkoutRole Role          `json:"walkout_role,omitempty"`
	CreatedAt   int64         `json:"created_at"`
}

// Winner returns the role that won the round. A walkout is lost by the
// role that never came back.
func (r GameRecord) Winner() Role {
	switch {
	case r.Reason == ReasonTargetReached:
		return RolePlayer
	case r.Reason == ReasonWalkoutTimeout && r.WalkoutRole.Valid():
		return r.WalkoutRole.Other()
	}
	return RoleOwner
}
