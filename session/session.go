// session/session.go
package session

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wfunc/meiro/models"
	"github.com/wfunc/meiro/network"
	"github.com/wfunc/meiro/protocol"
)

// P_INPUT 限流
const (
	InputRate  = 40
	InputBurst = 20
)

// Outbox is the per-connection send path. network.Queue implements it.
type Outbox interface {
	Enqueue(f protocol.Frame) error
	SendImmediate(f protocol.Frame) error
	Close()
}

type Session struct {
	ID        string
	Role      models.Role
	Nickname  string
	RoomID    string
	CreatedAt time.Time

	mutex       sync.RWMutex
	conn        network.Connection
	outbox      Outbox
	connID      uint64
	lastInbound time.Time
	limiter     *rate.Limiter
}

func NewSession(id string, role models.Role, nickname, roomID string, now time.Time) *Session {
	return &Session{
		ID:          id,
		Role:        role,
		Nickname:    nickname,
		RoomID:      roomID,
		CreatedAt:   now,
		lastInbound: now,
		limiter:     rate.NewLimiter(rate.Limit(InputRate), InputBurst),
	}
}

// Restore rebuilds a disconnected session from its checkpointed info.
func Restore(info models.SessionInfo, roomID string, now time.Time) *Session {
	s := NewSession(info.ID, info.Role, info.Nickname, roomID, time.UnixMilli(info.JoinedAt))
	s.lastInbound = now
	return s
}

// Attach binds a new connection, replacing and closing any previous
// outbox. It returns the connection generation used to ignore events from
// sockets that were already replaced.
func (s *Session) Attach(conn network.Connection, outbox Outbox, now time.Time) uint64 {
	s.mutex.Lock()
	old := s.outbox
	s.conn = conn
	s.outbox = outbox
	s.connID++
	s.lastInbound = now
	id := s.connID
	s.mutex.Unlock()

	if old != nil {
		old.Close()
	}
	return id
}

// Detach drops the connection if it is still generation connID.
func (s *Session) Detach(connID uint64) (network.Connection, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.connID != connID || s.conn == nil {
		return nil, false
	}
	conn := s.conn
	if s.outbox != nil {
		s.outbox.Close()
	}
	s.conn = nil
	s.outbox = nil
	return conn, true
}

func (s *Session) ConnID() uint64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.connID
}

func (s *Session) Connected() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.conn != nil
}

func (s *Session) Conn() network.Connection {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.conn
}

func (s *Session) Send(f protocol.Frame) error {
	s.mutex.RLock()
	outbox := s.outbox
	s.mutex.RUnlock()
	if outbox == nil {
		return network.ErrQueueClosed
	}
	return outbox.Enqueue(f)
}

func (s *Session) SendImmediate(f protocol.Frame) error {
	s.mutex.RLock()
	outbox := s.outbox
	s.mutex.RUnlock()
	if outbox == nil {
		return network.ErrQueueClosed
	}
	return outbox.SendImmediate(f)
}

// Touch records inbound activity for the heartbeat check.
func (s *Session) Touch(now time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.lastInbound = now
}

func (s *Session) LastInbound() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastInbound
}

// AllowInput consumes one token from the P_INPUT limiter.
func (s *Session) AllowInput(now time.Time) bool {
	return s.limiter.AllowN(now, 1)
}

func (s *Session) GetID() string {
	return s.ID
}

// Close closes the socket, if any, with the given close code.
func (s *Session) Close(code int, reason string) error {
	s.mutex.Lock()
	conn := s.conn
	outbox := s.outbox
	s.conn = nil
	s.outbox = nil
	s.mutex.Unlock()

	if outbox != nil {
		outbox.Close()
	}
	if conn == nil {
		return nil
	}
	return conn.Close(code, reason)
}

// Info is the room-visible part of the session.
func (s *Session) Info() models.SessionInfo {
	return models.SessionInfo{
		ID:        s.ID,
		Role:      s.Role,
		Nickname:  s.Nickname,
		JoinedAt:  s.CreatedAt.UnixMilli(),
		Connected: s.Connected(),
	}
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) GetByRole(role models.Role) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, session := range m.sessions {
		if session.Role == role {
			return session, true
		}
	}
	return nil, false
}

// All returns a copy of the registered sessions.
func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	result := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	return result
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// ConnectedCount counts sessions with a live socket.
func (m *Manager) ConnectedCount() int {
	n := 0
	for _, session := range m.All() {
		if session.Connected() {
			n++
		}
	}
	return n
}
