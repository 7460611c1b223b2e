// network/connection.go
package network

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrConnectionClosed = errors.New("connection closed")

// Connection is the socket boundary the room works against. How the socket
// was established is not its concern.
type Connection interface {
	Send(data []byte) error
	OnMessage(handler func(data []byte))
	OnClose(handler func())
	Close(code int, reason string) error
	RemoteAddr() net.Addr
}

type WSConnection struct {
	conn      *websocket.Conn
	sendMutex sync.Mutex

	mu        sync.Mutex
	onMessage func([]byte)
	onClose   func()
	closed    bool
	closeOnce sync.Once
}

func NewWSConnection(conn *websocket.Conn) *WSConnection {
	conn.SetReadLimit(MaxInboundSize)
	return &WSConnection{conn: conn}
}

func (c *WSConnection) Send(data []byte) error {
	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrConnectionClosed
	}

	c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *WSConnection) OnMessage(handler func(data []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = handler
}

func (c *WSConnection) OnClose(handler func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = handler
}

// Serve runs the read pump until the socket fails or is closed. Handlers
// must be installed before calling it.
func (c *WSConnection) Serve() {
	defer c.finish()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.mu.Lock()
		handler := c.onMessage
		c.mu.Unlock()
		if handler != nil {
			handler(data)
		}
	}
}

func (c *WSConnection) finish() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		handler := c.onClose
		c.mu.Unlock()
		c.conn.Close()
		if handler != nil {
			handler()
		}
	})
}

// Close sends a close frame and tears the socket down. The read pump then
// exits and OnClose fires once.
func (c *WSConnection) Close(code int, reason string) error {
	c.sendMutex.Lock()
	msg := websocket.FormatCloseMessage(code, reason)
	err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(WriteWait))
	c.sendMutex.Unlock()

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	if cerr := c.conn.Close(); err == nil {
		err = cerr
	}
	if errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
