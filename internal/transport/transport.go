// Package transport provides the ordered, reliable, message-framed
// connections sessions run over: WebSocket, a length-prefixed TCP stream and
// an in-memory pipe for tests.
package transport

import (
	"errors"
)

// ErrClosed is returned by operations on a connection that has been closed
// by either side.
var ErrClosed = errors.New("transport: connection closed")

// ErrMessageTooLarge is returned when a message exceeds MaxMessageSize.
var ErrMessageTooLarge = errors.New("transport: message too large")

// MaxMessageSize bounds a single inbound message. A landmark envelope is a
// few kilobytes.
const MaxMessageSize = 1 << 20

// Conn is one message-oriented connection. ReadMessage may be called from one
// goroutine while WriteMessage is called from another. Close unblocks a
// pending ReadMessage.
type Conn interface {
	// ReadMessage blocks until a complete message arrives.
	ReadMessage() ([]byte, error)
	// WriteMessage sends one complete message.
	WriteMessage(data []byte) error
	Close() error
	RemoteAddr() string
}
