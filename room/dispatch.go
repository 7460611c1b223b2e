// room/dispatch.go
package room

import (
	"errors"
	"fmt"
	"time"

	"github.com/wfunc/meiro/logger"
	"github.com/wfunc/meiro/protocol"
	"github.com/wfunc/meiro/session"
)

// handleMessage parses one inbound frame and dispatches it. Rule
// violations and panics are answered with ERR; the socket stays open.
func (r *Room) handleMessage(sess *session.Session, connID uint64, data []byte) {
	if r.disposed || sess.ConnID() != connID || !sess.Connected() {
		return
	}
	started := time.Now()
	now := r.now()
	sess.Touch(now)
	r.opts.Monitor.IncMessagesReceived()
	defer func() {
		if p := recover(); p != nil {
			logger.Log.Errorw("message handler panic", "room", r.id, "session", sess.ID, "panic", p)
			r.rejectCommand(sess, fmt.Errorf("panic: %v", p))
		}
		r.opts.Monitor.ObserveMessageLatency(time.Since(started))
	}()

	msg, err := protocol.Parse(data, sess.Role)
	if err != nil {
		r.rejectCommand(sess, err)
		return
	}
	if err := r.dispatch(sess, msg, now); err != nil {
		r.rejectCommand(sess, err)
	}
}

func (r *Room) rejectCommand(sess *session.Session, err error) {
	frame := protocol.NewErr(err)
	r.opts.Monitor.IncRejected(frame.Code)

	var perr *protocol.Error
	if errors.As(err, &perr) {
		logger.Log.Debugw("command rejected", "room", r.id, "session", sess.ID, "role", sess.Role, "code", perr.Code, "message", perr.Message)
	} else {
		logger.Log.Errorw("command failed", "room", r.id, "session", sess.ID, "role", sess.Role, "error", err)
	}
	sess.Send(frame)
}

func (r *Room) dispatch(sess *session.Session, msg protocol.Message, now time.Time) error {
	ms := now.UnixMilli()

	switch m := msg.(type) {
	case protocol.Ping:
		sess.SendImmediate(protocol.NewPong(m.Ts))
		return nil

	case protocol.PlayerInput:
		if !sess.AllowInput(now) {
			return protocol.NewError(protocol.CodeInputRateLimit, "too many inputs")
		}
		return r.rules.AcceptInput(r.st, m, ms)

	case protocol.OwnerEdit:
		if err := r.rules.ApplyEdit(r.st, m, ms); err != nil {
			return err
		}
		r.broadcaster.Broadcast(protocol.NewEvent(protocol.EventOwnerEdit, editPayload(m)))
		r.committed(ms)
		return nil

	case protocol.OwnerMark:
		if err := r.rules.PlacePrediction(r.st, m.Cell, ms); err != nil {
			return err
		}
		r.committed(ms)
		return nil

	case protocol.OwnerCancel:
		if err := r.rules.CancelPrediction(r.st, m.TargetID); err != nil {
			return err
		}
		r.committed(ms)
		return nil

	case protocol.OwnerConfirm:
		if m.TargetID != RematchTarget {
			return protocol.NewError(protocol.CodeTargetNotFound, "unknown target "+m.TargetID)
		}
		r.touchActivity(ms)
		return r.rematch(now)

	case protocol.OwnerStart:
		r.touchActivity(ms)
		return r.start(m, now)
	}
	return protocol.Invalid("unsupported message %s", msg.MessageType())
}

// committed publishes and checkpoints an accepted owner command.
func (r *Room) committed(ms int64) {
	r.st.UpdatedAt = ms
	r.publish()
	r.checkpoint()
}

func editPayload(e protocol.OwnerEdit) map[string]any {
	payload := map[string]any{
		"action": e.Action,
		"cell":   [2]int{e.Cell.X, e.Cell.Y},
	}
	switch e.Action {
	case protocol.ActionAddWall, protocol.ActionDelWall:
		payload["direction"] = e.Direction.String()
	case protocol.ActionPlacePoint:
		payload["value"] = e.Value
	}
	return payload
}
