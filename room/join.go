// room/join.go
package room

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/wfunc/meiro/logger"
	"github.com/wfunc/meiro/models"
	"github.com/wfunc/meiro/network"
	"github.com/wfunc/meiro/protocol"
	"github.com/wfunc/meiro/session"
	"github.com/wfunc/meiro/state"
)

// JoinRequest identifies who is connecting. An empty SessionID asks for a
// new session; an empty Role takes whichever role is free.
type JoinRequest struct {
	SessionID string
	Role      models.Role
	Nickname  string
}

var errHeartbeat = errors.New("heartbeat timeout")

// Join registers conn with the room. On success the new connection has
// been sent a full snapshot and every other connection a fresh one too.
// On failure conn receives ERR and is closed.
func (r *Room) Join(conn network.Connection, req JoinRequest) (*session.Session, error) {
	var (
		sess *session.Session
		err  error
	)
	if !r.call(func() { sess, err = r.join(conn, req) }) {
		err = protocol.NewError(protocol.CodeRoomExpired, "room is closed")
	}
	if err != nil {
		reject(conn, err)
		return nil, err
	}
	return sess, nil
}

func reject(conn network.Connection, err error) {
	data, encErr := protocol.Encode(protocol.NewErr(err))
	if encErr == nil {
		conn.Send(data)
	}
	code, reason := closeCodeFor(err)
	conn.Close(code, reason)
}

func closeCodeFor(err error) (int, string) {
	var perr *protocol.Error
	if !errors.As(err, &perr) {
		return network.CloseInternal, protocol.CodeInternalError
	}
	switch perr.Code {
	case protocol.CodeRoomFull:
		return network.CloseRoomFull, perr.Code
	case protocol.CodeRoleTaken:
		return network.CloseRoleTaken, perr.Code
	case protocol.CodeRoomExpired:
		return network.CloseRoomExpired, perr.Code
	}
	return network.CloseNormal, perr.Code
}

func cleanNickname(nick string, role models.Role) string {
	nick = strings.TrimSpace(nick)
	if nick == "" {
		return string(role)
	}
	if utf8.RuneCountInString(nick) > maxNickname {
		nick = string([]rune(nick)[:maxNickname])
	}
	return nick
}

// idle reports whether the lobby/result idle timeout has passed.
func (r *Room) idle(ms int64) bool {
	if r.st.Phase != state.PhaseLobby && r.st.Phase != state.PhaseResult {
		return false
	}
	return ms-r.st.LastActivityAt >= r.opts.LobbyTimeout.Milliseconds()
}

// resolveSession finds the session a request reconnects to, or decides
// the role of a new one.
func (r *Room) resolveSession(req JoinRequest) (*session.Session, models.Role, error) {
	if req.Role != "" && !req.Role.Valid() {
		return nil, "", protocol.Invalid("unknown role %q", req.Role)
	}

	if req.SessionID != "" {
		if s, ok := r.sessions.Get(req.SessionID); ok {
			if req.Role != "" && req.Role != s.Role {
				return nil, "", protocol.NewError(protocol.CodeRoleTaken, "session holds role "+string(s.Role))
			}
			return s, s.Role, nil
		}
	}

	if req.Role != "" {
		if holder, ok := r.sessions.GetByRole(req.Role); ok {
			// a dropped session's role can be reclaimed
			if holder.Connected() {
				return nil, "", protocol.NewError(protocol.CodeRoleTaken, "role "+string(req.Role)+" is taken")
			}
			return holder, holder.Role, nil
		}
		if r.sessions.Count() >= Capacity {
			return nil, "", protocol.NewError(protocol.CodeRoomFull, "room is full")
		}
		return nil, req.Role, nil
	}

	for _, role := range []models.Role{models.RoleOwner, models.RolePlayer} {
		if _, taken := r.sessions.GetByRole(role); !taken {
			return nil, role, nil
		}
	}
	return nil, "", protocol.NewError(protocol.CodeRoomFull, "room is full")
}

func (r *Room) join(conn network.Connection, req JoinRequest) (*session.Session, error) {
	now := r.now()
	ms := now.UnixMilli()

	if r.idle(ms) {
		r.expire("lobby timeout")
		return nil, protocol.NewError(protocol.CodeRoomExpired, "room expired")
	}

	sess, role, err := r.resolveSession(req)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		id := req.SessionID
		if id == "" {
			id = uuid.New().String()
		}
		sess = session.NewSession(id, role, cleanNickname(req.Nickname, role), r.id, now)
		r.sessions.Add(sess)
	} else if req.Nickname != "" {
		sess.Nickname = cleanNickname(req.Nickname, role)
	}

	if sess.Connected() {
		// same session on a new socket; the old one is replaced
		if old, ok := sess.Detach(sess.ConnID()); ok {
			closeAsync(old, network.CloseEvicted, "replaced by a new connection")
			r.opts.Monitor.DecOnlineSessions()
		}
	}
	r.attach(sess, conn, now)
	r.opts.Monitor.IncOnlineSessions()
	r.st.Sessions[sess.ID] = sess.Info()
	r.touchActivity(ms)

	logger.Log.Infow("session joined", "room", r.id, "session", sess.ID, "role", sess.Role, "phase", r.st.Phase, "remote", conn.RemoteAddr())

	if r.st.Pause.Paused {
		r.onReconnect(now)
	}

	full, err := r.composer.Full(r.st)
	if err != nil {
		return nil, err
	}
	sess.SendImmediate(full)
	sess.Send(protocol.NewDebugConnected(r.id, string(sess.Role), sess.ID))
	r.broadcaster.BroadcastExcept(full, sess.ID)
	r.checkpoint()
	return sess, nil
}

// attach wires a socket to sess through a fresh outbound queue. Socket
// events carry the connection generation so late events from a replaced
// socket are ignored.
func (r *Room) attach(sess *session.Session, conn network.Connection, now time.Time) {
	var connID uint64
	queue := network.NewQueue(conn, network.QueueOptions{
		OnFailure: func(err error) {
			r.post(func() { r.dropConnection(sess, connID, network.CloseSendFailure, err) })
		},
		OnSent:      r.opts.Monitor.AddOutboundBytes,
		OnCoalesced: r.opts.Monitor.IncCoalesced,
	})
	connID = sess.Attach(conn, queue, now)

	conn.OnMessage(func(data []byte) {
		r.post(func() { r.handleMessage(sess, connID, data) })
	})
	conn.OnClose(func() {
		r.post(func() { r.dropConnection(sess, connID, 0, nil) })
	})
}

// dropConnection handles a closed socket, a send failure or a missed
// heartbeat. code 0 means the socket is already closed.
func (r *Room) dropConnection(sess *session.Session, connID uint64, code int, cause error) {
	if r.disposed {
		return
	}
	conn, ok := sess.Detach(connID)
	if !ok {
		return
	}
	if code != 0 {
		reason := "closed"
		if cause != nil {
			reason = cause.Error()
		}
		closeAsync(conn, code, reason)
	}
	r.opts.Monitor.DecOnlineSessions()

	now := r.now()
	logger.Log.Infow("session disconnected", "room", r.id, "session", sess.ID, "role", sess.Role, "phase", r.st.Phase, "code", code, "error", cause)

	switch {
	case r.st.Phase == state.PhaseLobby:
		r.removeSession(sess)
	case r.st.Phase.Pausable():
		r.st.Sessions[sess.ID] = sess.Info()
		r.pause(sess.Role, now)
	default:
		r.st.Sessions[sess.ID] = sess.Info()
	}
	r.st.UpdatedAt = now.UnixMilli()
	r.broadcastFull()
	r.checkpoint()
}

func (r *Room) removeSession(sess *session.Session) {
	r.sessions.Remove(sess.ID)
	delete(r.st.Sessions, sess.ID)
	r.broadcaster.Broadcast(protocol.NewEvent(protocol.EventSessionLeft, map[string]any{
		"sessionId": sess.ID,
		"role":      sess.Role,
	}))
}

// checkHeartbeats drops connections that sent nothing for HeartbeatTimeout.
func (r *Room) checkHeartbeats(now time.Time) {
	for _, s := range r.sessions.All() {
		if !s.Connected() {
			continue
		}
		if now.Sub(s.LastInbound()) >= HeartbeatTimeout {
			r.dropConnection(s, s.ConnID(), network.CloseHeartbeat, errHeartbeat)
		}
	}
}

// pause freezes the phase deadline. A second disconnect while paused
// keeps the first pause.
func (r *Room) pause(role models.Role, now time.Time) {
	if r.st.Pause.Paused || !r.st.Phase.Pausable() {
		return
	}
	ms := now.UnixMilli()
	r.st.Pause = models.PauseState{
		Paused:      true,
		Reason:      PauseReasonDisconnect,
		Role:        role,
		ExpiresAt:   ms + DisconnectTimeout.Milliseconds(),
		RemainingMs: max(r.st.PhaseEndsAt-ms, 0),
		Phase:       r.st.Phase,
	}
	r.st.PhaseEndsAt = 0
	r.cancelPhaseAlarm()
	r.scheduleDisconnectAlarm()

	logger.Log.Infow("room paused", "room", r.id, "role", role, "phase", r.st.Phase, "remaining_ms", r.st.Pause.RemainingMs)
	r.broadcaster.Broadcast(protocol.NewEvent(protocol.EventPaused, map[string]any{
		"role":        role,
		"expiresAt":   r.st.Pause.ExpiresAt,
		"remainingMs": r.st.Pause.RemainingMs,
	}))
}

// onReconnect resumes once every session is connected again; otherwise
// the pause is handed to the role still missing.
func (r *Room) onReconnect(now time.Time) {
	for _, s := range r.sessions.All() {
		if !s.Connected() {
			r.st.Pause.Role = s.Role
			return
		}
	}
	r.resume(now)
}

func (r *Room) resume(now time.Time) {
	ms := now.UnixMilli()
	p := r.st.Pause
	pausedAt := p.ExpiresAt - DisconnectTimeout.Milliseconds()
	shift := max(ms-pausedAt, 0)

	r.st.PhaseEndsAt = ms + p.RemainingMs
	r.st.PhaseStartedAt = r.st.PhaseEndsAt - r.st.Durations.For(p.Phase).Milliseconds()
	if r.st.Player.TrapSlowUntil > pausedAt {
		r.st.Player.TrapSlowUntil += shift
	}
	if r.st.Owner.EditCooldownUntil > pausedAt {
		r.st.Owner.EditCooldownUntil += shift
	}
	r.clearPause()
	r.schedulePhaseAlarm()

	logger.Log.Infow("room resumed", "room", r.id, "phase", r.st.Phase, "ends_at", r.st.PhaseEndsAt)
	r.broadcaster.Broadcast(protocol.NewEvent(protocol.EventResumed, map[string]any{
		"phase":  r.st.Phase,
		"endsAt": r.st.PhaseEndsAt,
	}))
}

func (r *Room) clearPause() {
	r.st.Pause = models.PauseState{}
	r.pauseGen++
	r.opts.Scheduler.Cancel(r.key("disconnect"))
}

// closeAsync closes conn off the room loop; a websocket close handshake
// can block for seconds on a slow peer.
func closeAsync(conn network.Connection, code int, reason string) {
	go conn.Close(code, reason)
}

// closeAll detaches every connection and closes it after sending final,
// if given. code 0 closes with going-away.
func (r *Room) closeAll(code int, reason string, final protocol.Frame) {
	if code == 0 {
		code = network.CloseGoingAway
	}
	var data []byte
	if final != nil {
		data, _ = protocol.Encode(final)
	}
	for _, s := range r.sessions.All() {
		conn, ok := s.Detach(s.ConnID())
		if !ok {
			continue
		}
		r.opts.Monitor.DecOnlineSessions()
		go func(conn network.Connection) {
			if data != nil {
				conn.Send(data)
			}
			conn.Close(code, reason)
		}(conn)
	}
}

func (r *Room) evict(reason string) {
	logger.Log.Infow("room evicted", "room", r.id, "reason", reason)
	r.closeAll(network.CloseEvicted, reason, protocol.NewEvent(protocol.EventRoomExpired, map[string]any{"reason": reason}))
	r.dispose(true)
}

func (r *Room) expire(reason string) {
	logger.Log.Infow("room expired", "room", r.id, "reason", reason)
	r.closeAll(network.CloseRoomExpired, reason, protocol.NewEvent(protocol.EventRoomExpired, map[string]any{"reason": reason}))
	r.dispose(true)
}
