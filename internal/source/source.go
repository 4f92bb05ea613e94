// Package source produces landmark frames for the streaming client: a
// recorded JSONL replay or a live extractor subprocess.
package source

import (
	"context"
	"errors"

	"github.com/ayusman/mudra/internal/landmark"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("source: closed")

// Source yields landmark frames. Sequence ids and timestamps on returned
// frames are advisory; the client assigns its own before sending.
type Source interface {
	// Next blocks until a frame is available. It returns io.EOF when a
	// finite source is exhausted.
	Next(ctx context.Context) (*landmark.Frame, error)
	Close() error
}
