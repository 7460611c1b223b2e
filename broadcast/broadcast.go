// broadcast/broadcast.go
package broadcast

import (
	"errors"

	"github.com/wfunc/meiro/logger"
	"github.com/wfunc/meiro/network"
	"github.com/wfunc/meiro/protocol"
	"github.com/wfunc/meiro/session"
)

var (
	ErrSessionNotFound = errors.New("session not found")
)

// 广播接口
type Broadcaster interface {
	Broadcast(f protocol.Frame)
	BroadcastExcept(f protocol.Frame, sessionID string)
	SendTo(sessionID string, f protocol.Frame) error
}

// 基于房间会话的广播器
type RoomBroadcaster struct {
	roomID         string
	sessionManager *session.Manager
}

func NewRoomBroadcaster(roomID string, sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{
		roomID:         roomID,
		sessionManager: sessionManager,
	}
}

func (b *RoomBroadcaster) Broadcast(f protocol.Frame) {
	b.BroadcastExcept(f, "")
}

// BroadcastExcept enqueues f on every connected session but one. Frames
// are shared between queues and must not be modified afterwards.
func (b *RoomBroadcaster) BroadcastExcept(f protocol.Frame, sessionID string) {
	for _, s := range b.sessionManager.All() {
		if s.ID == sessionID || !s.Connected() {
			continue
		}
		if err := s.Send(f); err != nil && !errors.Is(err, network.ErrQueueClosed) {
			// 发送失败由队列回调处理
			logger.Log.Warnw("broadcast enqueue failed", "room", b.roomID, "session", s.ID, "error", err)
		}
	}
}

func (b *RoomBroadcaster) SendTo(sessionID string, f protocol.Frame) error {
	s, ok := b.sessionManager.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	return s.Send(f)
}

var _ Broadcaster = (*RoomBroadcaster)(nil)
