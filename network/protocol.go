package network

import (
	"time"

	"github.com/gorilla/websocket"
)

// 连接参数
const (
	MaxMessageSize  = 2048 // outbound cap in bytes
	MaxInboundSize  = 4096
	MinSendInterval = 50 * time.Millisecond
	WriteWait       = 5 * time.Second
)

// 关闭码
const (
	CloseNormal      = websocket.CloseNormalClosure
	CloseGoingAway   = websocket.CloseGoingAway
	CloseInternal    = websocket.CloseInternalServerErr
	CloseRoomFull    = 4001
	CloseRoleTaken   = 4002
	CloseRoomExpired = 4003
	CloseEvicted     = 4004
	CloseHeartbeat   = 4005
	CloseSendFailure = 4006
)
