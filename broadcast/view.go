// broadcast/view.go
package broadcast

import (
	"math"
	"sort"

	"github.com/wfunc/meiro/maze"
	"github.com/wfunc/meiro/models"
)

// Snapshot field names. Each is one top-level entry of a full snapshot and
// the unit a diff carries.
const (
	FieldRoom     = "id"
	FieldPhase    = "ph"
	FieldTiming   = "t"
	FieldMaze     = "mz"
	FieldSessions = "ss"
	FieldOwner    = "ow"
	FieldPlayer   = "pl"
	FieldTarget   = "tg"
	FieldPause    = "pz"
	FieldResult   = "rs"
)

type mazeView struct {
	Walls string `json:"w"`
	Start [2]int `json:"s"`
	Goal  [2]int `json:"g"`
}

type sessionView struct {
	Role      models.Role `json:"r"`
	Nickname  string      `json:"n"`
	Connected bool        `json:"c"`
}

type ownerView struct {
	WallStock      int      `json:"ws"`
	WallRemoveLeft int      `json:"wr"`
	TrapCharges    int      `json:"tc"`
	CooldownUntil  int64    `json:"cd"`
	PredLimit      int      `json:"pl"`
	Marks          [][2]int `json:"pm"`
	Traps          [][2]int `json:"tr"`
	Points         [][3]int `json:"pt"`
	PointTotal     int      `json:"tv"`
	PredHits       int      `json:"ph"`
}

type playerView struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Angle     float64 `json:"a"`
	SlowUntil int64   `json:"su"`
	Score     int     `json:"sc"`
	PredHits  int     `json:"ph"`
	GoalBonus bool    `json:"gb"`
}

type targetView struct {
	Score  int  `json:"v"`
	Locked bool `json:"l"`
}

type pauseView struct {
	Reason      string `json:"r"`
	ExpiresAt   int64  `json:"x"`
	RemainingMs int64  `json:"m"`
	Phase       string `json:"p"`
}

func pair(c maze.Cell) [2]int {
	return [2]int{c.X, c.Y}
}

// round3 keeps three decimals; the client never needs more and it keeps
// sub-millimetre jitter out of diffs.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// view builds the client-visible fields of st. Collections are sorted so
// equal states always encode to equal bytes.
func view(st *models.RoomState) map[string]any {
	fields := map[string]any{
		FieldRoom:   st.ID,
		FieldPhase:  st.Phase,
		FieldTiming: [2]int64{st.PhaseStartedAt, st.PhaseEndsAt},
		FieldTarget: targetView{Score: st.TargetScore, Locked: st.TargetLocked},
	}

	if st.Maze != nil {
		fields[FieldMaze] = mazeView{Walls: st.Maze.Grid.Encode(), Start: pair(st.Maze.Start), Goal: pair(st.Maze.Goal)}
	} else {
		fields[FieldMaze] = nil
	}

	sessions := make([]sessionView, 0, len(st.Sessions))
	for _, info := range st.Sessions {
		sessions = append(sessions, sessionView{Role: info.Role, Nickname: info.Nickname, Connected: info.Connected})
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Role < sessions[j].Role })
	fields[FieldSessions] = sessions

	fields[FieldOwner] = ownerFields(&st.Owner)

	p := st.Player
	fields[FieldPlayer] = playerView{
		X:         round3(p.Body.X),
		Y:         round3(p.Body.Y),
		Angle:     round3(p.Body.Angle),
		SlowUntil: p.TrapSlowUntil,
		Score:     p.Score,
		PredHits:  p.PredictionHits,
		GoalBonus: p.GoalBonusAwarded,
	}

	if st.Pause.Paused {
		fields[FieldPause] = pauseView{
			Reason:      st.Pause.Reason,
			ExpiresAt:   st.Pause.ExpiresAt,
			RemainingMs: st.Pause.RemainingMs,
			Phase:       string(st.Pause.Phase),
		}
	} else {
		fields[FieldPause] = nil
	}
	if st.Result != nil {
		fields[FieldResult] = st.Result
	} else {
		fields[FieldResult] = nil
	}
	return fields
}

func ownerFields(o *models.OwnerState) ownerView {
	v := ownerView{
		WallStock:      o.WallStock,
		WallRemoveLeft: o.WallRemoveLeft,
		TrapCharges:    o.TrapCharges,
		CooldownUntil:  o.EditCooldownUntil,
		PredLimit:      o.PredictionLimit,
		Marks:          make([][2]int, 0, len(o.PredictionMarks)),
		Traps:          make([][2]int, 0, len(o.Traps)),
		Points:         make([][3]int, 0, len(o.Points)),
		PointTotal:     o.PointTotalValue,
		PredHits:       o.PredictionHits,
	}
	for _, m := range o.PredictionMarks {
		v.Marks = append(v.Marks, pair(m.Cell))
	}
	sortPairs(v.Marks)
	for _, t := range o.Traps {
		v.Traps = append(v.Traps, pair(t.Cell))
	}
	for _, p := range o.Points {
		v.Points = append(v.Points, [3]int{p.Cell.X, p.Cell.Y, p.Value})
	}
	sort.Slice(v.Points, func(i, j int) bool {
		a, b := v.Points[i], v.Points[j]
		return a[1] < b[1] || (a[1] == b[1] && a[0] < b[0])
	})
	return v
}

func sortPairs(ps [][2]int) {
	sort.Slice(ps, func(i, j int) bool {
		return ps[i][1] < ps[j][1] || (ps[i][1] == ps[j][1] && ps[i][0] < ps[j][0])
	})
}
