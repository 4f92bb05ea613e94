// mudra turns hand-landmark streams into media commands.
//
// Usage:
//
//	mudra serve                          # HTTP, WebSocket and framed TCP sessions
//	mudra stream --replay frames.jsonl   # send recorded landmarks to a server
//	mudra record --out frames.jsonl      # capture extractor output for replay
//	mudra plugins                        # list actuator plugins
//
// Configuration is read from --config (YAML), MUDRA_* environment variables
// and an optional .env file.
package main

import (
	"os"

	"github.com/ayusman/mudra/cmd/mudra/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
