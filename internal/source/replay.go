package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/protocol"
)

const maxLineBytes = 1 << 20

// Replay reads JSON landmark envelopes, one per line, from a file. Blank
// lines are skipped.
type Replay struct {
	path  string
	loop  bool
	codec *protocol.Codec

	mu      sync.Mutex
	file    *os.File
	scanner *bufio.Scanner
	line    int
	frames  int // frames read in the current pass
	closed  bool
}

// NewReplay opens path. With loop set the file is replayed from the start
// when it ends.
func NewReplay(path string, loop bool) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay: %w", err)
	}
	r := &Replay{path: path, loop: loop, codec: protocol.JSON(), file: f}
	r.rewind()
	return r, nil
}

func (r *Replay) rewind() {
	r.scanner = bufio.NewScanner(r.file)
	r.scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	r.line = 0
	r.frames = 0
}

// Next returns the next recorded frame.
func (r *Replay) Next(ctx context.Context) (*landmark.Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		if r.closed {
			return nil, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return nil, fmt.Errorf("%s:%d: %w", r.path, r.line+1, err)
			}
			// An empty file would loop forever.
			if !r.loop || r.frames == 0 {
				return nil, io.EOF
			}
			if _, err := r.file.Seek(0, io.SeekStart); err != nil {
				return nil, fmt.Errorf("rewind replay: %w", err)
			}
			r.rewind()
			continue
		}
		r.line++

		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		env, err := r.codec.Decode(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", r.path, r.line, err)
		}
		r.frames++
		return env.Frame, nil
	}
}

// Close closes the file.
func (r *Replay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

// Recorder writes frames in the format Replay reads.
type Recorder struct {
	w     io.Writer
	codec *protocol.Codec
}

// NewRecorder creates a recorder writing to w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{w: w, codec: protocol.JSON()}
}

// Write appends one frame as a line.
func (r *Recorder) Write(f *landmark.Frame) error {
	data, err := r.codec.EncodeFrame(f)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = r.w.Write(data)
	return err
}
