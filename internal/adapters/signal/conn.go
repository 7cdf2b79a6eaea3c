package signal

import (
	"sync"

	"github.com/dkeye/Hush/internal/core"
	"github.com/dkeye/Hush/internal/domain"
	"github.com/gorilla/websocket"
)

// WsSignalConn is one browser or CLI connection seen as a core.Endpoint.
type WsSignalConn struct {
	id    domain.EndpointID
	token string
	conn  *websocket.Conn
	send  chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newConn(ws *websocket.Conn, token string, buffer int) *WsSignalConn {
	return &WsSignalConn{
		id:    domain.NewEndpointID(),
		token: token,
		conn:  ws,
		send:  make(chan core.Frame, buffer),
	}
}

func (c *WsSignalConn) ID() domain.EndpointID { return c.id }
func (c *WsSignalConn) ClientToken() string   { return c.token }

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrEndpointClosed
	}
	select {
	case c.send <- f:
		return nil
	default:
		return core.ErrSendBufferFull
	}
}

// Close stops accepting frames. The write pump drains what is queued,
// sends a close frame and drops the socket.
func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
