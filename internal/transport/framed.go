package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

// Framed carries messages over a byte stream, each prefixed by its length as
// a 4-byte big-endian integer.
type Framed struct {
	conn net.Conn

	readMu  sync.Mutex
	writeMu sync.Mutex
}

// NewFramed wraps a stream connection.
func NewFramed(conn net.Conn) *Framed {
	return &Framed{conn: conn}
}

// DialFramed connects to a framed TCP endpoint.
func DialFramed(ctx context.Context, addr string) (*Framed, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewFramed(conn), nil
}

// ReadMessage implements Conn.
func (f *Framed) ReadMessage() ([]byte, error) {
	f.readMu.Lock()
	defer f.readMu.Unlock()

	var hdr [4]byte
	if _, err := io.ReadFull(f.conn, hdr[:]); err != nil {
		return nil, mapStreamError(err)
	}

	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, n)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(f.conn, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, mapStreamError(err)
	}
	return buf, nil
}

// WriteMessage implements Conn.
func (f *Framed) WriteMessage(data []byte) error {
	if len(data) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(data))
	}

	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[4:], data)

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	if _, err := f.conn.Write(buf); err != nil {
		return mapStreamError(err)
	}
	return nil
}

// Close implements Conn.
func (f *Framed) Close() error {
	return f.conn.Close()
}

// RemoteAddr implements Conn.
func (f *Framed) RemoteAddr() string {
	return f.conn.RemoteAddr().String()
}

func mapStreamError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return fmt.Errorf("framed: %w", err)
}

// Listener accepts framed connections.
type Listener struct {
	ln net.Listener
}

// ListenFramed listens for framed TCP connections on addr.
func ListenFramed(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Listener{ln: ln}, nil
}

// Accept waits for the next connection.
func (l *Listener) Accept() (*Framed, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, mapStreamError(err)
	}
	return NewFramed(conn), nil
}

// Addr returns the listening address.
func (l *Listener) Addr() string {
	return l.ln.Addr().String()
}

// Close stops accepting connections.
func (l *Listener) Close() error {
	return l.ln.Close()
}
