// protocol/errors.go
package protocol

import "fmt"

// 错误码
const (
	CodeInvalidMessage        = "INVALID_MESSAGE"
	CodeInternalError         = "INTERNAL_ERROR"
	CodeInvalidPhase          = "INVALID_PHASE"
	CodeRoomPaused            = "ROOM_PAUSED"
	CodeEditCooldown          = "EDIT_COOLDOWN"
	CodeEditForbidden         = "EDIT_FORBIDDEN"
	CodeWallStockEmpty        = "WALL_STOCK_EMPTY"
	CodeWallRemoveExhausted   = "WALL_REMOVE_EXHAUSTED"
	CodeWallExists            = "WALL_EXISTS"
	CodeWallMissing           = "WALL_MISSING"
	CodeTrapChargeEmpty       = "TRAP_CHARGE_EMPTY"
	CodeTrapInvalidCell       = "TRAP_INVALID_CELL"
	CodeTrapPhaseLocked       = "TRAP_PHASE_LOCKED"
	CodeTrapPhaseClosed       = "TRAP_PHASE_CLOSED"
	CodeNoPath                = "NO_PATH"
	CodeLimitReached          = "LIMIT_REACHED"
	CodePointPhaseClosed      = "POINT_PHASE_CLOSED"
	CodePointInvalidCell      = "POINT_INVALID_CELL"
	CodePredictionPhaseLocked = "PREDICTION_PHASE_LOCKED"
	CodeTargetNotFound        = "TARGET_NOT_FOUND"
	CodeInputRateLimit        = "INPUT_RATE_LIMIT"
	CodeInputTimestampPast    = "INPUT_TIMESTAMP_PAST"
	CodeInputTimestampReplay  = "INPUT_TIMESTAMP_REPLAY"
	CodeRoomFull              = "ROOM_FULL"
	CodeRoleTaken             = "ROLE_TAKEN"
	CodeRoomExpired           = "ROOM_EXPIRED"
	CodeStartWaitingForPlayer = "START_WAITING_FOR_PLAYER"
	CodeRematchUnavailable    = "REMATCH_UNAVAILABLE"
)

// Error is a rule violation reported to the client as ERR.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates an Error without data.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithData returns a copy of e carrying data.
func (e *Error) WithData(data map[string]any) *Error {
	cp := *e
	cp.Data = data
	return &cp
}

// Invalid builds an INVALID_MESSAGE error.
func Invalid(format string, args ...any) *Error {
	return NewError(CodeInvalidMessage, fmt.Sprintf(format, args...))
}
