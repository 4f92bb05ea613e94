package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// exchange writes msgs from a to b and checks they arrive in order.
func exchange(t *testing.T, a, b Conn, msgs ...string) {
	t.Helper()

	errc := make(chan error, 1)
	go func() {
		for _, m := range msgs {
			if err := a.WriteMessage([]byte(m)); err != nil {
				errc <- err
				return
			}
		}
		errc <- nil
	}()

	for _, want := range msgs {
		got, err := b.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() error = %v", err)
		}
		if string(got) != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	}
	if err := <-errc; err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
}

func TestPipe(t *testing.T) {
	a, b := Pipe()

	exchange(t, a, b, "one", "two", "three")
	exchange(t, b, a, "reply")

	if err := a.WriteMessage([]byte("buffered")); err != nil {
		t.Fatal(err)
	}
	b.Close()

	// Buffered messages are still delivered after close.
	if got, err := a.ReadMessage(); !errors.Is(err, ErrClosed) {
		t.Errorf("a.ReadMessage() = %q, %v; want ErrClosed", got, err)
	}
	if got, err := b.ReadMessage(); err != nil || string(got) != "buffered" {
		t.Errorf("b.ReadMessage() = %q, %v; want buffered", got, err)
	}
	if err := a.WriteMessage([]byte("late")); !errors.Is(err, ErrClosed) {
		t.Errorf("WriteMessage after close = %v, want ErrClosed", err)
	}
}

func TestPipe_CopiesMessages(t *testing.T) {
	a, b := Pipe()
	defer a.Close()

	buf := []byte("abc")
	if err := a.WriteMessage(buf); err != nil {
		t.Fatal(err)
	}
	buf[0] = 'x'
	got, _ := b.ReadMessage()
	if string(got) != "abc" {
		t.Errorf("got %q, want abc", got)
	}
}

func TestFramed(t *testing.T) {
	ln, err := ListenFramed("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenFramed() error = %v", err)
	}
	defer ln.Close()

	accepted := make(chan *Framed, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := DialFramed(ctx, ln.Addr())
	if err != nil {
		t.Fatalf("DialFramed() error = %v", err)
	}
	defer client.Close()

	server, ok := <-accepted
	if !ok {
		t.Fatal("Accept failed")
	}
	defer server.Close()

	exchange(t, client, server, `{"a":1}`, "", strings.Repeat("x", 70000))
	exchange(t, server, client, "ack")

	client.Close()
	if _, err := server.ReadMessage(); !errors.Is(err, ErrClosed) {
		t.Errorf("ReadMessage after peer close = %v, want ErrClosed", err)
	}
}

func TestFramed_TooLarge(t *testing.T) {
	f := &Framed{}
	if err := f.WriteMessage(make([]byte, MaxMessageSize+1)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("error = %v, want ErrMessageTooLarge", err)
	}
}

func TestWebSocket(t *testing.T) {
	serverConns := make(chan *WebSocket, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := Upgrade(w, r, true)
		if err != nil {
			t.Errorf("Upgrade() error = %v", err)
			return
		}
		serverConns <- c
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := DialWebSocket(ctx, url, false)
	if err != nil {
		t.Fatalf("DialWebSocket() error = %v", err)
	}
	defer client.Close()

	server := <-serverConns
	defer server.Close()

	exchange(t, client, server, "hello", "world")
	exchange(t, server, client, "\x00\x01binary")

	if client.RemoteAddr() == "" {
		t.Error("empty RemoteAddr")
	}

	client.Close()
	if _, err := server.ReadMessage(); !errors.Is(err, ErrClosed) {
		t.Errorf("ReadMessage after close = %v, want ErrClosed", err)
	}
}

func TestDialWebSocket_Refused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := DialWebSocket(ctx, url, false); err == nil {
		t.Error("expected dial error")
	}
}
