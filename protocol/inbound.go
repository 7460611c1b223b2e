// protocol/inbound.go
package protocol

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/wfunc/meiro/maze"
	"github.com/wfunc/meiro/models"
)

// 客户端消息类型
const (
	TypePlayerInput  = "P_INPUT"
	TypeOwnerEdit    = "O_EDIT"
	TypeOwnerMark    = "O_MRK"
	TypeOwnerConfirm = "O_CONFIRM"
	TypeOwnerCancel  = "O_CANCEL"
	TypeOwnerStart   = "O_START"
	TypePing         = "PING"
)

// MaxCoordinate bounds cell coordinates before the room checks them
// against its own maze.
const MaxCoordinate = 40

// Message is one validated inbound command.
type Message interface {
	MessageType() string
}

// EditAction 编辑动作
type EditAction string

const (
	ActionAddWall    EditAction = "ADD_WALL"
	ActionDelWall    EditAction = "DEL_WALL"
	ActionPlaceTrap  EditAction = "PLACE_TRAP"
	ActionPlacePoint EditAction = "PLACE_POINT"
)

type PlayerInput struct {
	Forward   float64
	Yaw       float64
	Timestamp int64
}

type OwnerEdit struct {
	Action    EditAction
	Cell      maze.Cell
	Direction maze.Direction
	Value     int
}

type OwnerMark struct {
	Cell maze.Cell
}

type OwnerConfirm struct {
	TargetID string
}

type OwnerCancel struct {
	TargetID string
}

type OwnerStart struct {
	MazeSize int
}

type Ping struct {
	Ts float64
}

func (PlayerInput) MessageType() string  { return TypePlayerInput }
func (OwnerEdit) MessageType() string    { return TypeOwnerEdit }
func (OwnerMark) MessageType() string    { return TypeOwnerMark }
func (OwnerConfirm) MessageType() string { return TypeOwnerConfirm }
func (OwnerCancel) MessageType() string  { return TypeOwnerCancel }
func (OwnerStart) MessageType() string   { return TypeOwnerStart }
func (Ping) MessageType() string         { return TypePing }

type envelope struct {
	Type string `json:"type"`
}

type rawCell struct {
	X *int `json:"x"`
	Y *int `json:"y"`
}

func (c *rawCell) cell() (maze.Cell, *Error) {
	if c == nil || c.X == nil || c.Y == nil {
		return maze.Cell{}, Invalid("cell requires x and y")
	}
	if *c.X < 0 || *c.Y < 0 || *c.X >= MaxCoordinate || *c.Y >= MaxCoordinate {
		return maze.Cell{}, Invalid("cell %d,%d out of range", *c.X, *c.Y)
	}
	return maze.Cell{X: *c.X, Y: *c.Y}, nil
}

// Parse decodes data and checks that role may send it. Unknown fields are
// ignored. Every failure is an INVALID_MESSAGE error.
func Parse(data []byte, role models.Role) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, Invalid("malformed json")
	}

	var (
		msg  Message
		perr *Error
	)
	switch env.Type {
	case TypePlayerInput:
		msg, perr = parsePlayerInput(data)
	case TypeOwnerEdit:
		msg, perr = parseOwnerEdit(data)
	case TypeOwnerMark:
		msg, perr = parseOwnerMark(data)
	case TypeOwnerConfirm:
		var raw struct {
			TargetID string `json:"targetId"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, Invalid("malformed %s", env.Type)
		}
		msg, perr = NewOwnerConfirm(raw.TargetID)
	case TypeOwnerCancel:
		var raw struct {
			TargetID string `json:"targetId"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, Invalid("malformed %s", env.Type)
		}
		msg, perr = NewOwnerCancel(raw.TargetID)
	case TypeOwnerStart:
		var raw struct {
			MazeSize int `json:"mazeSize"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, Invalid("malformed %s", env.Type)
		}
		msg, perr = NewOwnerStart(raw.MazeSize)
	case TypePing:
		var raw struct {
			Ts float64 `json:"ts"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, Invalid("malformed %s", env.Type)
		}
		msg = Ping{Ts: raw.Ts}
	case "":
		return nil, Invalid("missing type")
	default:
		return nil, Invalid("unknown type %q", env.Type)
	}
	if perr != nil {
		return nil, perr
	}
	if !Allowed(msg.MessageType(), role) {
		return nil, Invalid("%s not allowed for %s", msg.MessageType(), role)
	}
	return msg, nil
}

// Allowed reports whether role may send messages of type t.
func Allowed(t string, role models.Role) bool {
	switch t {
	case TypePing:
		return role.Valid()
	case TypePlayerInput:
		return role == models.RolePlayer
	case TypeOwnerEdit, TypeOwnerMark, TypeOwnerConfirm, TypeOwnerCancel, TypeOwnerStart:
		return role == models.RoleOwner
	}
	return false
}

func parsePlayerInput(data []byte) (Message, *Error) {
	var raw struct {
		Yaw       *float64 `json:"yaw"`
		Forward   *float64 `json:"forward"`
		Timestamp *int64   `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, Invalid("malformed P_INPUT")
	}
	if raw.Yaw == nil || raw.Forward == nil || raw.Timestamp == nil {
		return nil, Invalid("P_INPUT requires yaw, forward and timestamp")
	}
	return NewPlayerInput(*raw.Forward, *raw.Yaw, *raw.Timestamp)
}

// NewPlayerInput validates axis ranges and the client timestamp.
func NewPlayerInput(forward, yaw float64, ts int64) (PlayerInput, *Error) {
	if !unit(forward) || !unit(yaw) {
		return PlayerInput{}, Invalid("input axes must be within [-1,1]")
	}
	if ts <= 0 {
		return PlayerInput{}, Invalid("timestamp must be positive")
	}
	return PlayerInput{Forward: forward, Yaw: yaw, Timestamp: ts}, nil
}

func unit(v float64) bool {
	return !math.IsNaN(v) && v >= -1 && v <= 1
}

func parseOwnerEdit(data []byte) (Message, *Error) {
	var raw struct {
		Edit *struct {
			Action    string          `json:"action"`
			Cell      *rawCell        `json:"cell"`
			Direction json.RawMessage `json:"direction"`
			Value     int             `json:"value"`
		} `json:"edit"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, Invalid("malformed O_EDIT")
	}
	if raw.Edit == nil {
		return nil, Invalid("O_EDIT requires edit")
	}
	c, perr := raw.Edit.Cell.cell()
	if perr != nil {
		return nil, perr
	}
	action := EditAction(raw.Edit.Action)
	switch action {
	case ActionAddWall, ActionDelWall:
		d, ok := parseDirection(raw.Edit.Direction)
		if !ok {
			return nil, Invalid("invalid direction")
		}
		return NewWallEdit(action, c, d)
	case ActionPlaceTrap:
		return OwnerEdit{Action: action, Cell: c}, nil
	case ActionPlacePoint:
		return NewPointEdit(c, raw.Edit.Value)
	}
	return nil, Invalid("unknown edit action %q", raw.Edit.Action)
}

// NewWallEdit builds an ADD_WALL or DEL_WALL edit.
func NewWallEdit(action EditAction, c maze.Cell, d maze.Direction) (OwnerEdit, *Error) {
	if action != ActionAddWall && action != ActionDelWall {
		return OwnerEdit{}, Invalid("not a wall action: %s", action)
	}
	if !d.Valid() {
		return OwnerEdit{}, Invalid("invalid direction")
	}
	return OwnerEdit{Action: action, Cell: c, Direction: d}, nil
}

// NewPointEdit builds a PLACE_POINT edit; value must be 1, 3 or 5.
func NewPointEdit(c maze.Cell, value int) (OwnerEdit, *Error) {
	if value != 1 && value != 3 && value != 5 {
		return OwnerEdit{}, Invalid("point value must be 1, 3 or 5")
	}
	return OwnerEdit{Action: ActionPlacePoint, Cell: c, Value: value}, nil
}

// direction may be a name ("top") or an index (0-3).
func parseDirection(raw json.RawMessage) (maze.Direction, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return maze.ParseDirection(name)
	}
	var idx int
	if err := json.Unmarshal(raw, &idx); err == nil {
		d := maze.Direction(idx)
		return d, d.Valid()
	}
	return 0, false
}

func parseOwnerMark(data []byte) (Message, *Error) {
	var raw struct {
		Cell *rawCell `json:"cell"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, Invalid("malformed O_MRK")
	}
	c, perr := raw.Cell.cell()
	if perr != nil {
		return nil, perr
	}
	return OwnerMark{Cell: c}, nil
}

const maxTargetID = 64

func NewOwnerConfirm(target string) (OwnerConfirm, *Error) {
	if target == "" || len(target) > maxTargetID {
		return OwnerConfirm{}, Invalid("targetId required")
	}
	return OwnerConfirm{TargetID: target}, nil
}

func NewOwnerCancel(target string) (OwnerCancel, *Error) {
	if target == "" || len(target) > maxTargetID {
		return OwnerCancel{}, Invalid("targetId required")
	}
	return OwnerCancel{TargetID: target}, nil
}

// NewOwnerStart defaults a missing size to 20.
func NewOwnerStart(size int) (OwnerStart, *Error) {
	if size == 0 {
		size = 20
	}
	if !maze.ValidSize(size) {
		return OwnerStart{}, Invalid("mazeSize must be 20 or 40")
	}
	return OwnerStart{MazeSize: size}, nil
}

// ParseCellKey reads the "x,y" form used as a target id.
func ParseCellKey(s string) (maze.Cell, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] != ',' {
			continue
		}
		x, err1 := strconv.Atoi(s[:i])
		y, err2 := strconv.Atoi(s[i+1:])
		if err1 != nil || err2 != nil {
			return maze.Cell{}, false
		}
		return maze.Cell{X: x, Y: y}, true
	}
	return maze.Cell{}, false
}
