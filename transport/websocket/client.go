package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBufferSize   = 64
	idlePingInterval = 30 * time.Second
	writeWait        = 10 * time.Second
)

// client is one browser connection. All writes go through send so that
// replies and pushed events keep their order.
type client struct {
	conn      *websocket.Conn
	sessionID string
	send      chan []byte

	mu       sync.Mutex
	playerID string
	closed   bool
}

func newClient(conn *websocket.Conn, sessionID string) *client {
	return &client{
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan []byte, sendBufferSize),
	}
}

func (that *client) PlayerID() string {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.playerID
}

func (that *client) bind(playerID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.playerID = playerID
}

// enqueue - queues msg without blocking; false means the client is gone or too slow.
func (that *client) enqueue(msg []byte) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return false
	}

	select {
	case that.send <- msg:
		return true
	default:
		return false
	}
}

func (that *client) close() {
	that.mu.Lock()
	defer that.mu.Unlock()

	if !that.closed {
		that.closed = true
		close(that.send)
	}
}

// writePump - drains send and pings idle connections until send is closed.
func (that *client) writePump() error {
	ticker := time.NewTicker(idlePingInterval)
	defer ticker.Stop()
	lastWrite := time.Now()

	for {
		select {
		case msg, ok := <-that.send:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				return that.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			}
			if err := that.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}
			lastWrite = time.Now()
		case <-ticker.C:
			if time.Since(lastWrite) < idlePingInterval {
				continue
			}
			if err := that.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}
			lastWrite = time.Now()
		}
	}
}
