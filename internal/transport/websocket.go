package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// WebSocket adapts a gorilla WebSocket connection to Conn. Outbound messages
// are sent as binary frames when binary is set, text frames otherwise.
type WebSocket struct {
	conn   *websocket.Conn
	binary bool

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// NewWebSocket wraps an established connection.
func NewWebSocket(conn *websocket.Conn, binary bool) *WebSocket {
	conn.SetReadLimit(MaxMessageSize)
	return &WebSocket{conn: conn, binary: binary}
}

// Upgrade upgrades an HTTP request to a WebSocket connection.
func Upgrade(w http.ResponseWriter, r *http.Request, binary bool) (*WebSocket, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	return NewWebSocket(conn, binary), nil
}

// DialWebSocket connects to a WebSocket endpoint.
func DialWebSocket(ctx context.Context, url string, binary bool) (*WebSocket, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %s)", url, err, resp.Status)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewWebSocket(conn, binary), nil
}

// ReadMessage implements Conn. Text and binary frames are both accepted.
func (w *WebSocket) ReadMessage() ([]byte, error) {
	for {
		mt, data, err := w.conn.ReadMessage()
		if err != nil {
			return nil, w.mapError(err)
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// WriteMessage implements Conn.
func (w *WebSocket) WriteMessage(data []byte) error {
	mt := websocket.TextMessage
	if w.binary {
		mt = websocket.BinaryMessage
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := w.conn.WriteMessage(mt, data); err != nil {
		return w.mapError(err)
	}
	return nil
}

// Close sends a close frame and closes the underlying connection.
func (w *WebSocket) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		w.writeMu.Unlock()
		err = w.conn.Close()
	})
	return err
}

// RemoteAddr implements Conn.
func (w *WebSocket) RemoteAddr() string {
	return w.conn.RemoteAddr().String()
}

func (w *WebSocket) mapError(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	if errors.Is(err, websocket.ErrReadLimit) {
		return fmt.Errorf("%w: %v", ErrMessageTooLarge, err)
	}
	return fmt.Errorf("websocket: %w", err)
}
