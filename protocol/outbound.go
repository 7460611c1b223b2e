// protocol/outbound.go
package protocol

import (
	"encoding/json"
)

// 服务端消息类型
const (
	TypeState          = "STATE"
	TypeEvent          = "EV"
	TypeErr            = "ERR"
	TypePong           = "PONG"
	TypeDebugConnected = "DEBUG_CONNECTED"
)

// 事件名
const (
	EventOwnerEdit      = "OWNER_EDIT"
	EventPhase          = "PHASE"
	EventPaused         = "PAUSED"
	EventResumed        = "RESUMED"
	EventTrapTriggered  = "TRAP_TRIGGERED"
	EventPredictionHit  = "PREDICTION_HIT"
	EventPointCollected = "POINT_COLLECTED"
	EventGoalReached    = "GOAL_REACHED"
	EventResult         = "RESULT"
	EventRematchReady   = "REMATCH_READY"
	EventRoomExpired    = "ROOM_EXPIRED"
	EventSessionLeft    = "SESSION_LEFT"
)

// Frame is one outbound message.
type Frame interface {
	FrameType() string
}

// State carries either a full snapshot or the changed top-level fields.
type State struct {
	Type     string                     `json:"type"`
	Seq      uint64                     `json:"seq"`
	Full     bool                       `json:"full"`
	Snapshot json.RawMessage            `json:"snapshot,omitempty"`
	Changes  map[string]json.RawMessage `json:"changes,omitempty"`
}

type Event struct {
	Type    string `json:"type"`
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

type Err struct {
	Type    string         `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

type Pong struct {
	Type string  `json:"type"`
	Ts   float64 `json:"ts"`
}

type DebugConnected struct {
	Type      string `json:"type"`
	RoomID    string `json:"roomId"`
	Role      string `json:"role"`
	SessionID string `json:"sessionId"`
}

func (*State) FrameType() string          { return TypeState }
func (*Event) FrameType() string          { return TypeEvent }
func (*Err) FrameType() string            { return TypeErr }
func (*Pong) FrameType() string           { return TypePong }
func (*DebugConnected) FrameType() string { return TypeDebugConnected }

func NewSnapshot(seq uint64, snapshot json.RawMessage) *State {
	return &State{Type: TypeState, Seq: seq, Full: true, Snapshot: snapshot}
}

func NewDiff(seq uint64, changes map[string]json.RawMessage) *State {
	return &State{Type: TypeState, Seq: seq, Changes: changes}
}

func NewEvent(name string, payload any) *Event {
	return &Event{Type: TypeEvent, Event: name, Payload: payload}
}

// NewErr converts any error into an ERR frame. Errors that are not rule
// violations are reported as INTERNAL_ERROR.
func NewErr(err error) *Err {
	if e, ok := err.(*Error); ok {
		return &Err{Type: TypeErr, Code: e.Code, Message: e.Message, Data: e.Data}
	}
	return &Err{Type: TypeErr, Code: CodeInternalError, Message: "internal error"}
}

func NewPong(ts float64) *Pong {
	return &Pong{Type: TypePong, Ts: ts}
}

func NewDebugConnected(roomID, role, sessionID string) *DebugConnected {
	return &DebugConnected{Type: TypeDebugConnected, RoomID: roomID, Role: role, SessionID: sessionID}
}

// Encode serializes a frame.
func Encode(f Frame) ([]byte, error) {
	return json.Marshal(f)
}
