package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Frame is the envelope of every server push.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// EncodeFrame marshals a push once so it can be written to many sockets.
func EncodeFrame(event string, data any) ([]byte, error) {
	return json.Marshal(Frame{Event: event, Data: data})
}

// ClientFrame is what clients send over the socket.
type ClientFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Conn is the write side of a websocket connection.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

const writeWait = 10 * time.Second

// lockedConn serializes writers on a gorilla connection, which allows only
// one concurrent writer.
type lockedConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newLockedConn(conn *websocket.Conn) *lockedConn {
	return &lockedConn{conn: conn}
}

func (c *lockedConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

func (c *lockedConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *lockedConn) Close() error {
	return c.conn.Close()
}
