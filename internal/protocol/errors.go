package protocol

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is against a *DecodeError.
var (
	ErrMalformed          = errors.New("malformed payload")
	ErrUnsupportedVersion = errors.New("unsupported schema version")
)

// ErrInvalidFrame is returned when encoding a frame that violates the frame
// invariants (nil frame, non-finite coordinates).
var ErrInvalidFrame = errors.New("invalid frame")

// ErrorKind classifies decode failures.
type ErrorKind int

const (
	// Malformed covers structurally invalid input: bad syntax, wrong point
	// count, non-numeric coordinates, truncated payloads, wrong type.
	Malformed ErrorKind = iota + 1
	// UnsupportedVersion means the envelope is newer than this decoder.
	UnsupportedVersion
)

func (k ErrorKind) String() string {
	switch k {
	case Malformed:
		return "malformed"
	case UnsupportedVersion:
		return "unsupported_version"
	default:
		return "unknown"
	}
}

// DecodeError is returned by every decode operation. Both kinds are
// recoverable: callers drop the message and keep the session alive.
type DecodeError struct {
	Kind    ErrorKind
	Version int    // schema_version seen on the wire, if any
	Reason  string // human readable detail
	Err     error  // underlying parser error, may be nil
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("decode %s", e.Kind)
	if e.Kind == UnsupportedVersion {
		msg += fmt.Sprintf(" %d (max %d)", e.Version, SchemaVersion)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *DecodeError) Unwrap() []error {
	var sentinel error
	switch e.Kind {
	case Malformed:
		sentinel = ErrMalformed
	case UnsupportedVersion:
		sentinel = ErrUnsupportedVersion
	}
	errs := make([]error, 0, 2)
	if sentinel != nil {
		errs = append(errs, sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func malformed(reason string, err error) *DecodeError {
	return &DecodeError{Kind: Malformed, Reason: reason, Err: err}
}
