package transport

import (
	"fmt"
	"sync"
)

// pipeEnd is one side of an in-memory connection.
type pipeEnd struct {
	name string
	in   <-chan []byte
	out  chan<- []byte

	done      chan struct{} // shared by both ends
	closeOnce *sync.Once
}

// Pipe returns two connected in-memory Conns. Messages written to one are
// read from the other in order. Closing either end closes both.
func Pipe() (Conn, Conn) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	done := make(chan struct{})
	once := &sync.Once{}

	a := &pipeEnd{name: "pipe-a", in: ba, out: ab, done: done, closeOnce: once}
	b := &pipeEnd{name: "pipe-b", in: ab, out: ba, done: done, closeOnce: once}
	return a, b
}

func (p *pipeEnd) ReadMessage() ([]byte, error) {
	// Drain buffered messages before reporting closure.
	select {
	case msg := <-p.in:
		return msg, nil
	default:
	}

	select {
	case msg := <-p.in:
		return msg, nil
	case <-p.done:
		return nil, ErrClosed
	}
}

func (p *pipeEnd) WriteMessage(data []byte) error {
	msg := make([]byte, len(data))
	copy(msg, data)

	select {
	case <-p.done:
		return ErrClosed
	default:
	}

	select {
	case p.out <- msg:
		return nil
	case <-p.done:
		return fmt.Errorf("%w: write interrupted", ErrClosed)
	}
}

func (p *pipeEnd) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}

func (p *pipeEnd) RemoteAddr() string {
	return p.name
}
