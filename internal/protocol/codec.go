// Package protocol implements the versioned wire envelopes exchanged between
// landmark producers, the gesture service and actuators.
//
// Every envelope carries a schema_version and a type discriminator. Within a
// version only additive fields are allowed; removing or retyping a field
// requires a version bump. Decoders reject versions newer than SchemaVersion
// instead of guessing at their layout.
package protocol

import (
	"fmt"
	"time"

	"github.com/ayusman/mudra/internal/action"
	"github.com/ayusman/mudra/internal/landmark"
)

// SchemaVersion is the newest envelope version this package understands.
const SchemaVersion = 1

// Envelope type discriminators.
const (
	TypeLandmarks = "landmarks"
	TypeCommand   = "command"
)

// Envelope is a decoded landmark envelope.
type Envelope struct {
	SchemaVersion int
	Type          string
	Frame         *landmark.Frame
}

// Command is the outbound envelope sent to actuators on a confirmed action.
type Command struct {
	Action    action.Kind
	Magnitude *float64
	SessionID string
	EmittedAt time.Time
}

// CommandFromEvent builds the command envelope for a confirmed event.
func CommandFromEvent(e *action.Event) *Command {
	return &Command{
		Action:    e.Action,
		Magnitude: e.Magnitude,
		SessionID: e.SessionID,
		EmittedAt: e.EmittedAt,
	}
}

type header struct {
	SchemaVersion int    `json:"schema_version" cbor:"schema_version"`
	Type          string `json:"type" cbor:"type"`
}

// Timestamps are carried as whole microseconds plus the nanoseconds past
// that microsecond, so frames keep full time.Time precision while readers
// that only know timestamp_us stay correct to the microsecond.
type wireLandmarks struct {
	SchemaVersion  int         `json:"schema_version" cbor:"schema_version"`
	Type           string      `json:"type" cbor:"type"`
	SequenceID     uint64      `json:"sequence_id" cbor:"sequence_id"`
	TimestampUS    int64       `json:"timestamp_us" cbor:"timestamp_us"`
	TimestampSubUS int64       `json:"timestamp_sub_us,omitempty" cbor:"timestamp_sub_us,omitempty"`
	Payload        *wireHand   `json:"payload" cbor:"payload"`
	Pose           []wirePoint `json:"pose,omitempty" cbor:"pose,omitempty"`
}

type wireHand struct {
	Points     []wirePoint `json:"points" cbor:"points"`
	Handedness string      `json:"handedness,omitempty" cbor:"handedness,omitempty"`
	Score      float64     `json:"score,omitempty" cbor:"score,omitempty"`
}

// wirePoint is [x, y, z]. Coordinates are pointers so a null decodes as nil
// instead of silently becoming zero.
type wirePoint []*float64

type wireCommand struct {
	SchemaVersion int      `json:"schema_version" cbor:"schema_version"`
	Type          string   `json:"type" cbor:"type"`
	Action        string   `json:"action" cbor:"action"`
	Magnitude     *float64 `json:"magnitude,omitempty" cbor:"magnitude,omitempty"`
	SessionID     string   `json:"session_id,omitempty" cbor:"session_id,omitempty"`
	EmittedAtUS   int64    `json:"emitted_at_us,omitempty" cbor:"emitted_at_us,omitempty"`
	EmittedSubUS  int64    `json:"emitted_at_sub_us,omitempty" cbor:"emitted_at_sub_us,omitempty"`
}

// Codec encodes and decodes envelopes in one Encoding. A Codec is stateless
// and safe for concurrent use.
type Codec struct {
	encoding Encoding
	m        marshaler
}

// NewCodec returns a codec for the given encoding.
func NewCodec(e Encoding) (*Codec, error) {
	switch e {
	case EncodingJSON:
		return &Codec{encoding: e, m: jsonMarshaler{}}, nil
	case EncodingCBOR:
		return &Codec{encoding: e, m: cborMarshaler{}}, nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", e)
	}
}

// JSON returns the JSON codec.
func JSON() *Codec {
	return &Codec{encoding: EncodingJSON, m: jsonMarshaler{}}
}

// CBOR returns the CBOR codec.
func CBOR() *Codec {
	return &Codec{encoding: EncodingCBOR, m: cborMarshaler{}}
}

// Encoding returns the codec's encoding.
func (c *Codec) Encoding() Encoding {
	return c.encoding
}

// EncodeFrame encodes a landmark frame. A frame without a hand is encoded as
// the no-hand variant with a null payload.
func (c *Codec) EncodeFrame(f *landmark.Frame) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: nil frame", ErrInvalidFrame)
	}

	w := wireLandmarks{
		SchemaVersion: SchemaVersion,
		Type:          TypeLandmarks,
		SequenceID:    f.SequenceID,
	}
	w.TimestampUS, w.TimestampSubUS = splitMicros(f.Timestamp)

	if f.Hand != nil {
		if !f.Hand.IsFinite() {
			return nil, fmt.Errorf("%w: non-finite hand coordinate", ErrInvalidFrame)
		}
		w.Payload = &wireHand{
			Points:     pointsToWire(f.Hand.Points[:]),
			Handedness: f.Hand.Handedness,
			Score:      f.Hand.Score,
		}
	}

	if len(f.Pose) > 0 {
		for _, p := range f.Pose {
			if !p.IsFinite() {
				return nil, fmt.Errorf("%w: non-finite pose coordinate", ErrInvalidFrame)
			}
		}
		w.Pose = pointsToWire(f.Pose)
	}

	data, err := c.m.marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}

// Decode decodes a landmark envelope. Every failure is a *DecodeError.
func (c *Codec) Decode(data []byte) (*Envelope, error) {
	if _, err := c.checkHeader(data, TypeLandmarks); err != nil {
		return nil, err
	}

	var w wireLandmarks
	if err := c.m.unmarshal(data, &w); err != nil {
		return nil, malformed("invalid landmarks envelope", err)
	}

	ts, err := joinMicros(w.TimestampUS, w.TimestampSubUS)
	if err != nil {
		return nil, malformed("timestamp", err)
	}
	frame := &landmark.Frame{
		SequenceID: w.SequenceID,
		Timestamp:  ts,
	}

	if w.Payload != nil {
		if len(w.Payload.Points) != landmark.NumLandmarks {
			return nil, malformed(fmt.Sprintf("expected %d points, got %d", landmark.NumLandmarks, len(w.Payload.Points)), nil)
		}
		points, err := pointsFromWire(w.Payload.Points)
		if err != nil {
			return nil, malformed("hand points", err)
		}
		hand := &landmark.Hand{
			Handedness: w.Payload.Handedness,
			Score:      w.Payload.Score,
		}
		copy(hand.Points[:], points)
		frame.Hand = hand
	}

	if len(w.Pose) > 0 {
		pose, err := pointsFromWire(w.Pose)
		if err != nil {
			return nil, malformed("pose points", err)
		}
		frame.Pose = pose
	}

	return &Envelope{
		SchemaVersion: w.SchemaVersion,
		Type:          w.Type,
		Frame:         frame,
	}, nil
}

// EncodeCommand encodes a command envelope.
func (c *Codec) EncodeCommand(cmd *Command) ([]byte, error) {
	if cmd == nil || !cmd.Action.Valid() {
		return nil, fmt.Errorf("encode command: invalid action")
	}

	w := wireCommand{
		SchemaVersion: SchemaVersion,
		Type:          TypeCommand,
		Action:        cmd.Action.String(),
		Magnitude:     cmd.Magnitude,
		SessionID:     cmd.SessionID,
	}
	if !cmd.EmittedAt.IsZero() {
		w.EmittedAtUS, w.EmittedSubUS = splitMicros(cmd.EmittedAt)
	}

	data, err := c.m.marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	return data, nil
}

// DecodeCommand decodes a command envelope. Every failure is a *DecodeError.
func (c *Codec) DecodeCommand(data []byte) (*Command, error) {
	if _, err := c.checkHeader(data, TypeCommand); err != nil {
		return nil, err
	}

	var w wireCommand
	if err := c.m.unmarshal(data, &w); err != nil {
		return nil, malformed("invalid command envelope", err)
	}

	kind, err := action.Parse(w.Action)
	if err != nil {
		return nil, malformed("command action", err)
	}

	cmd := &Command{
		Action:    kind,
		Magnitude: w.Magnitude,
		SessionID: w.SessionID,
	}
	if w.EmittedAtUS != 0 || w.EmittedSubUS != 0 {
		at, err := joinMicros(w.EmittedAtUS, w.EmittedSubUS)
		if err != nil {
			return nil, malformed("emitted_at", err)
		}
		cmd.EmittedAt = at
	}
	return cmd, nil
}

// checkHeader validates the version and type discriminator before the body
// is interpreted.
func (c *Codec) checkHeader(data []byte, wantType string) (header, error) {
	var h header
	if len(data) == 0 {
		return h, malformed("empty message", nil)
	}
	if err := c.m.unmarshal(data, &h); err != nil {
		return h, malformed("invalid envelope header", err)
	}
	if h.SchemaVersion > SchemaVersion {
		return h, &DecodeError{Kind: UnsupportedVersion, Version: h.SchemaVersion}
	}
	if h.SchemaVersion < 1 {
		return h, malformed(fmt.Sprintf("missing or invalid schema_version %d", h.SchemaVersion), nil)
	}
	if h.Type != wantType {
		return h, malformed(fmt.Sprintf("expected type %q, got %q", wantType, h.Type), nil)
	}
	return h, nil
}

// splitMicros returns t as Unix microseconds and the nanoseconds past them.
func splitMicros(t time.Time) (us, subUS int64) {
	return t.UnixMicro(), int64(t.Nanosecond() % 1000)
}

func joinMicros(us, subUS int64) (time.Time, error) {
	if subUS < 0 || subUS >= 1000 {
		return time.Time{}, fmt.Errorf("sub-microsecond part %d out of range [0,1000)", subUS)
	}
	return time.UnixMicro(us).Add(time.Duration(subUS)), nil
}

func pointsToWire(points []landmark.Point3D) []wirePoint {
	out := make([]wirePoint, len(points))
	for i, p := range points {
		x, y, z := p.X, p.Y, p.Z
		out[i] = wirePoint{&x, &y, &z}
	}
	return out
}

func pointsFromWire(raw []wirePoint) ([]landmark.Point3D, error) {
	out := make([]landmark.Point3D, len(raw))
	for i, xyz := range raw {
		if len(xyz) != 3 {
			return nil, fmt.Errorf("point %d has %d coordinates, want 3", i, len(xyz))
		}
		if xyz[0] == nil || xyz[1] == nil || xyz[2] == nil {
			return nil, fmt.Errorf("point %d has a null coordinate", i)
		}
		p := landmark.Point3D{X: *xyz[0], Y: *xyz[1], Z: *xyz[2]}
		if !p.IsFinite() {
			return nil, fmt.Errorf("point %d is not finite", i)
		}
		out[i] = p
	}
	return out, nil
}
