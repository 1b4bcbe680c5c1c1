package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// connWrapper serializes writers; gorilla allows one concurrent writer.
type connWrapper struct {
	conn  *websocket.Conn
	mutex sync.Mutex
}

func newConnWrapper(c *websocket.Conn) *connWrapper {
	return &connWrapper{conn: c}
}

func (w *connWrapper) WriteBinary(b []byte, timeout time.Duration) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if timeout > 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return w.conn.WriteMessage(websocket.BinaryMessage, b)
}

// Close sends a normal-closure frame before dropping the connection.
func (w *connWrapper) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	_ = w.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"),
		time.Now().Add(time.Second),
	)
	return w.conn.Close()
}
