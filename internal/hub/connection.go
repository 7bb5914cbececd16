package hub

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 64
)

// Connection wraps one upgraded websocket, relay or UI alike. Kind
// distinguishes the two for the command dispatch in routes.go; a relay
// connection additionally carries the event it authenticated against.
type Connection struct {
	ID   string
	Kind ConnectionKind

	conn *websocket.Conn
	send chan []byte

	lastSubscribedEvent uint
}

// ConnectionKind distinguishes relay and UI connections, which speak
// different client->server command sets (§4.G).
type ConnectionKind int

const (
	KindRelay ConnectionKind = iota
	KindUI
)

// NewConnection wraps an already-upgraded websocket connection.
func NewConnection(id string, kind ConnectionKind, conn *websocket.Conn) *Connection {
	return &Connection{
		ID:   id,
		Kind: kind,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// Send enqueues a server-to-client payload. Non-blocking: when the send
// buffer is full, Send closes the connection's socket rather than stalling
// the broadcaster.
func (c *Connection) Send(payload []byte) {
	select {
	case c.send <- payload:
	default:
		c.Close()
	}
}

// Close closes the underlying socket. Safe to call more than once.
func (c *Connection) Close() {
	c.conn.Close()
}

// WritePump drains the send channel to the socket and keeps it alive with
// periodic pings, until the channel is closed or a write fails.
func (c *Connection) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump reads client->server frames and hands each to handle, until the
// socket closes or a read error occurs. Call in its own goroutine; it
// blocks until teardown.
func (c *Connection) ReadPump(handle func([]byte)) {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		handle(msg)
	}
}
