package ws

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn wraps *websocket.Conn with the small surface the event feed
// needs. All writes are serialized; gorilla panics on concurrent
// writes.
type Conn struct {
	c       *websocket.Conn
	writeMu sync.Mutex
}

// UpgradeHTTP upgrades an incoming HTTP request to a websocket Conn.
// Origin checking is left permissive; the dashboard feed is read-only.
func UpgradeHTTP(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &Conn{c: c}, nil
}

// WriteEvent writes an event as JSON with a write deadline
func (cw *Conn) WriteEvent(ev *Event, timeout time.Duration) error {
	if cw == nil || cw.c == nil {
		return errors.New("websocket: connection is closed")
	}
	cw.writeMu.Lock()
	defer cw.writeMu.Unlock()

	if timeout > 0 {
		cw.c.SetWriteDeadline(time.Now().Add(timeout))
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	return cw.c.WriteJSON(ev)
}

// WritePing sends a ping control message
func (cw *Conn) WritePing(timeout time.Duration) error {
	if cw == nil || cw.c == nil {
		return errors.New("websocket: connection is closed")
	}
	cw.writeMu.Lock()
	defer cw.writeMu.Unlock()

	if timeout > 0 {
		cw.c.SetWriteDeadline(time.Now().Add(timeout))
	}
	return cw.c.WriteMessage(websocket.PingMessage, nil)
}

// ReadLoop discards inbound frames until the connection errors. It
// keeps pong handling alive and lets the server notice disconnects.
func (cw *Conn) ReadLoop(readTimeout time.Duration) error {
	if cw == nil || cw.c == nil {
		return errors.New("websocket: connection is closed")
	}
	cw.c.SetPongHandler(func(string) error {
		if readTimeout > 0 {
			cw.c.SetReadDeadline(time.Now().Add(readTimeout))
		}
		return nil
	})
	for {
		if readTimeout > 0 {
			cw.c.SetReadDeadline(time.Now().Add(readTimeout))
		}
		if _, _, err := cw.c.ReadMessage(); err != nil {
			return err
		}
	}
}

// Close closes the underlying websocket connection
func (cw *Conn) Close() error {
	if cw == nil || cw.c == nil {
		return nil
	}
	return cw.c.Close()
}

// RemoteAddr returns the remote address if available
func (cw *Conn) RemoteAddr() string {
	if cw == nil || cw.c == nil || cw.c.RemoteAddr() == nil {
		return ""
	}
	return cw.c.RemoteAddr().String()
}
