package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/action"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/metrics"
	"github.com/ayusman/mudra/internal/protocol"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/transport"
)

type testEnv struct {
	store   *store.Store
	journal *store.Journal
	srv     *Server
}

func newTestEnv(t *testing.T, classifier gesture.Classifier, templates *gesture.TemplateClassifier) *testEnv {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	j := store.NewJournal(s, 64, logger, m)

	env := &testEnv{
		store:   s,
		journal: j,
		srv: New(Config{
			Store:      s,
			Journal:    j,
			Metrics:    m,
			Classifier: classifier,
			Templates:  templates,
			Debouncer:  gesture.NewDebouncer(gesture.DefaultDebounceConfig()),
			Logger:     logger,
		}),
	}
	t.Cleanup(func() {
		env.srv.Close()
		j.Close()
		s.Close()
	})
	return env
}

// drain stops the server and flushes the journal so stored state can be
// inspected.
func (e *testEnv) drain() {
	e.srv.Close()
	e.journal.Close()
}

// streamUntilCommand sends frames of hand until the server answers with a
// command or the deadline passes.
func streamUntilCommand(t *testing.T, conn transport.Conn, codec *protocol.Codec, hand *landmark.Hand) *protocol.Command {
	t.Helper()

	cmds := make(chan *protocol.Command, 1)
	go func() {
		msg, err := conn.ReadMessage()
		if err != nil {
			close(cmds)
			return
		}
		cmd, err := codec.DecodeCommand(msg)
		if err != nil {
			close(cmds)
			return
		}
		cmds <- cmd
	}()

	deadline := time.After(5 * time.Second)
	for seq := uint64(1); ; seq++ {
		frame := &landmark.Frame{SequenceID: seq, Timestamp: time.Now(), Hand: hand}
		data, err := codec.EncodeFrame(frame)
		if err != nil {
			t.Fatalf("EncodeFrame() error = %v", err)
		}
		if err := conn.WriteMessage(data); err != nil {
			t.Fatalf("WriteMessage() error = %v", err)
		}

		select {
		case cmd, ok := <-cmds:
			if !ok {
				t.Fatal("connection closed before a command arrived")
			}
			return cmd
		case <-deadline:
			t.Fatal("no command received")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestAPI_TemplateWorkflow(t *testing.T) {
	templates := gesture.NewTemplateClassifier()
	env := newTestEnv(t, templates, templates)
	ts := httptest.NewServer(env.srv)
	defer ts.Close()

	client := ts.Client()

	// 1. Create a template
	createBody := `{"name": "closed-hand", "kind": "fist"}`
	resp, err := client.Post(ts.URL+"/api/templates", "application/json", bytes.NewBufferString(createBody))
	if err != nil {
		t.Fatalf("POST /api/templates error = %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var created struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()

	if created.Name != "closed-hand" {
		t.Errorf("created name = %s, want closed-hand", created.Name)
	}

	// 2. Train it
	var samples []json.RawMessage
	for i := 0; i < 3; i++ {
		raw, _ := gesture.SampleFromHand(landmark.FistHand().Translate(float64(i)*0.05, 0), int64(i))
		samples = append(samples, raw)
	}
	body, _ := json.Marshal(map[string]any{"samples": samples})
	resp, err = client.Post(ts.URL+"/api/templates/"+created.ID+"/samples", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST samples error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST samples status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	if templates.Len() != 1 {
		t.Fatalf("classifier templates = %d, want 1", templates.Len())
	}

	// 3. List templates
	resp, _ = client.Get(ts.URL + "/api/templates")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/templates status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var listed struct {
		Templates []struct {
			ID      string `json:"id"`
			Trained bool   `json:"trained"`
		} `json:"templates"`
	}
	json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()

	if len(listed.Templates) != 1 || !listed.Templates[0].Trained {
		t.Fatalf("templates = %+v, want one trained", listed.Templates)
	}

	// 4. A live session recognizes the trained pose
	conn, err := transport.DialWebSocket(context.Background(), "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", false)
	if err != nil {
		t.Fatalf("DialWebSocket() error = %v", err)
	}
	cmd := streamUntilCommand(t, conn, protocol.JSON(), landmark.FistHand())
	conn.Close()
	if cmd.Action != action.PlayPause {
		t.Errorf("action = %v, want play_pause", cmd.Action)
	}

	// 5. Delete template
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/templates/"+created.ID, nil)
	resp, _ = client.Do(req)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	resp.Body.Close()
	if templates.Len() != 0 {
		t.Errorf("classifier templates after delete = %d, want 0", templates.Len())
	}

	// 6. Verify deleted
	resp, _ = client.Get(ts.URL + "/api/templates/" + created.ID)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET after delete status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	resp.Body.Close()
}

func TestWebSocket_SessionJournaled(t *testing.T) {
	env := newTestEnv(t, gesture.NewHeuristic(gesture.DefaultThresholds()), nil)
	ts := httptest.NewServer(env.srv)
	defer ts.Close()

	for _, enc := range []protocol.Encoding{protocol.EncodingJSON, protocol.EncodingCBOR} {
		codec, _ := protocol.NewCodec(enc)
		url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?encoding=" + string(enc)
		conn, err := transport.DialWebSocket(context.Background(), url, enc.Binary())
		if err != nil {
			t.Fatalf("%s: DialWebSocket() error = %v", enc, err)
		}

		cmd := streamUntilCommand(t, conn, codec, landmark.TwoFingerHand())
		if cmd.Action != action.NextTrack || cmd.SessionID == "" {
			t.Errorf("%s: command = %+v, want next_track with session id", enc, cmd)
		}
		conn.Close()
	}

	env.drain()

	sessions, err := env.store.Sessions().List(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}
	for _, rec := range sessions {
		if rec.ClosedAt == nil || rec.Actions != 1 || rec.Received == 0 {
			t.Errorf("session record = %+v", rec)
		}
		events, _ := env.store.Events().ListBySession(rec.ID)
		if len(events) != 1 || events[0].Action != "next_track" {
			t.Errorf("session %s events = %+v", rec.ID, events)
		}
	}
}

func TestServeFramed(t *testing.T) {
	env := newTestEnv(t, gesture.NewHeuristic(gesture.DefaultThresholds()), nil)

	l, err := transport.ListenFramed("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenFramed() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.srv.ServeFramed(ctx, l, protocol.EncodingCBOR) }()

	conn, err := transport.DialFramed(context.Background(), l.Addr())
	if err != nil {
		t.Fatalf("DialFramed() error = %v", err)
	}
	cmd := streamUntilCommand(t, conn, protocol.CBOR(), landmark.FistHand())
	if cmd.Action != action.PlayPause {
		t.Errorf("action = %v, want play_pause", cmd.Action)
	}
	conn.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ServeFramed() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ServeFramed did not stop")
	}
}

func TestAPI_HealthCheck(t *testing.T) {
	srv := New(Config{})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var health struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}
	json.NewDecoder(resp.Body).Decode(&health)

	if health.Status != "ok" {
		t.Errorf("status = %s, want ok", health.Status)
	}
}
