// Package main provides the media-control actuator plugin. It performs
// volume steps, next track and play/pause with osascript on macOS and with
// pactl and playerctl on Linux.
package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"runtime"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action    string          `json:"action"`
	Command   string          `json:"command"`
	Magnitude *float64        `json:"magnitude,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Config    json.RawMessage `json:"config,omitempty"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// defaultStep is the volume change in percent for one step without a
// magnitude.
const defaultStep = 5

// actionHandler performs one action. step is only used by volume actions.
type actionHandler func(step int) error

var actionHandlers = map[string]actionHandler{
	"volume-up":        volumeUp,
	"volume-down":      volumeDown,
	"media-play-pause": mediaPlayPause,
	"media-next":       mediaNext,
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	handler, ok := actionHandlers[req.Action]
	if !ok {
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
		return
	}

	if err := handler(stepFor(req.Magnitude)); err != nil {
		writeErrorResponse(fmt.Sprintf("action %s failed: %v", req.Action, err))
		return
	}

	writeSuccessResponse()
}

// stepFor maps a normalized hand displacement to a volume step in percent,
// between 2 and 10.
func stepFor(magnitude *float64) int {
	if magnitude == nil {
		return defaultStep
	}
	step := int(math.Round(math.Abs(*magnitude) * 100))
	return max(2, min(step, 10))
}

func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}

func writeSuccessResponse() {
	json.NewEncoder(os.Stdout).Encode(Response{Success: true})
}

func run(name string, args ...string) error {
	output, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, string(output))
	}
	return nil
}

func runAppleScript(script string) error {
	return run("osascript", "-e", script)
}

func unsupported() error {
	return fmt.Errorf("unsupported platform %s", runtime.GOOS)
}

func volumeUp(step int) error {
	switch runtime.GOOS {
	case "darwin":
		return runAppleScript(fmt.Sprintf(`set volume output volume ((output volume of (get volume settings)) + %d)`, step))
	case "linux":
		return run("pactl", "set-sink-volume", "@DEFAULT_SINK@", fmt.Sprintf("+%d%%", step))
	}
	return unsupported()
}

func volumeDown(step int) error {
	switch runtime.GOOS {
	case "darwin":
		return runAppleScript(fmt.Sprintf(`set volume output volume ((output volume of (get volume settings)) - %d)`, step))
	case "linux":
		return run("pactl", "set-sink-volume", "@DEFAULT_SINK@", fmt.Sprintf("-%d%%", step))
	}
	return unsupported()
}

// mediaPlayPause toggles playback with the Play/Pause media key.
func mediaPlayPause(int) error {
	switch runtime.GOOS {
	case "darwin":
		return runAppleScript(`tell application "System Events"
	key code 100
end tell`)
	case "linux":
		return run("playerctl", "play-pause")
	}
	return unsupported()
}

// mediaNext skips to the next track with the Next media key.
func mediaNext(int) error {
	switch runtime.GOOS {
	case "darwin":
		return runAppleScript(`tell application "System Events"
	key code 101
end tell`)
	case "linux":
		return run("playerctl", "next")
	}
	return unsupported()
}
