package plugin

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/action"
	"github.com/ayusman/mudra/internal/protocol"
)

func TestLogActuator(t *testing.T) {
	var buf bytes.Buffer
	a := LogActuator{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	m := 0.03
	cmd := &protocol.Command{Action: action.VolumeDown, Magnitude: &m, SessionID: "s1"}
	if err := a.Perform(context.Background(), cmd); err != nil {
		t.Fatalf("Perform() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"action=volume_down", "magnitude=0.03", "session_id=s1"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
}

func TestPluginActuator(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	tmpDir := t.TempDir()
	record := filepath.Join(tmpDir, "performed.log")
	// The plugin appends each request to a file and fails media-next.
	script := "#!/bin/sh\n" +
		"input=$(cat)\n" +
		"echo \"$input\" >> " + record + "\n" +
		"case \"$input\" in\n" +
		"  *media-next*) echo '{\"success\":false,\"error\":\"no player\"}' ;;\n" +
		"  *) echo '{\"success\":true}' ;;\n" +
		"esac\n"
	writePlugin(t, tmpDir, Manifest{Name: "media", Executable: "run.sh", Actions: RequiredActions()}, script)
	writePlugin(t, tmpDir, Manifest{Name: "partial", Executable: "run.sh", Actions: []string{"volume-up"}}, script)

	manager := NewManager(tmpDir, nil)
	if err := manager.Discover(); err != nil {
		t.Fatal(err)
	}
	executor := NewExecutor(5 * time.Second)

	t.Run("missing plugin", func(t *testing.T) {
		if _, err := NewPluginActuator(manager, "absent", executor, nil); err == nil {
			t.Error("expected error for unknown plugin")
		}
	})

	t.Run("incomplete actions", func(t *testing.T) {
		if _, err := NewPluginActuator(manager, "partial", executor, nil); err == nil {
			t.Error("expected error for plugin missing actions")
		}
	})

	a, err := NewPluginActuator(manager, "media", executor, nil)
	if err != nil {
		t.Fatalf("NewPluginActuator() error = %v", err)
	}

	if err := a.Perform(context.Background(), &protocol.Command{Action: action.PlayPause}); err != nil {
		t.Errorf("Perform(play_pause) error = %v", err)
	}
	err = a.Perform(context.Background(), &protocol.Command{Action: action.NextTrack})
	if err == nil || !strings.Contains(err.Error(), "no player") {
		t.Errorf("Perform(next_track) error = %v, want plugin failure", err)
	}

	data, err := os.ReadFile(record)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"action":"media-play-pause"`) || !strings.Contains(string(data), `"command":"play_pause"`) {
		t.Errorf("plugin received %q", data)
	}
}
