package websocket

import (
	"github.com/gorilla/websocket"
)

// ConnectionWrapper adapts *websocket.Conn to Connection.
type ConnectionWrapper struct {
	*websocket.Conn
}

func NewConnectionWrapper(conn *websocket.Conn) *ConnectionWrapper {
	return &ConnectionWrapper{Conn: conn}
}

// RemoteAddr returns the peer address as a string.
func (w *ConnectionWrapper) RemoteAddr() string {
	if addr := w.Conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
