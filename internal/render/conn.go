package render

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// safeConn serialises writes to a websocket connection. gorilla/websocket
// allows one concurrent writer; pings and messages come from different
// goroutines.
type safeConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newSafeConn(conn *websocket.Conn) *safeConn {
	return &safeConn{conn: conn}
}

func (c *safeConn) WriteJSON(v any, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteJSON(v)
}

func (c *safeConn) Ping(timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout))
}

func (c *safeConn) CloseWith(code int, reason string, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(timeout))
	return c.conn.Close()
}
