package protocol

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Encoding selects the byte representation of envelopes.
type Encoding string

const (
	// EncodingJSON is the text encoding carried in WebSocket text frames.
	EncodingJSON Encoding = "json"
	// EncodingCBOR is the binary encoding carried in WebSocket binary frames.
	EncodingCBOR Encoding = "cbor"
)

// ParseEncoding parses an encoding name. The empty string selects JSON.
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(s))) {
	case "", EncodingJSON:
		return EncodingJSON, nil
	case EncodingCBOR:
		return EncodingCBOR, nil
	default:
		return "", fmt.Errorf("unknown encoding %q", s)
	}
}

// Binary reports whether the encoding produces binary (non UTF-8) output.
func (e Encoding) Binary() bool {
	return e == EncodingCBOR
}

// cborEnc uses Core Deterministic Encoding (RFC 8949 §4.2) so the same
// envelope always produces identical bytes.
var cborEnc cbor.EncMode

var cborDec cbor.DecMode

func init() {
	var err error

	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}

	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		// A hand is 21 points; pose is at most a few dozen. Anything
		// larger is hostile input.
		MaxArrayElements: 1024,
		MaxMapPairs:      64,
		MaxNestedLevels:  8,
	}.DecMode()
	if err != nil {
		panic("protocol: CBOR decoder initialization failed: " + err.Error())
	}
}

type marshaler interface {
	marshal(v any) ([]byte, error)
	unmarshal(data []byte, v any) error
}

type jsonMarshaler struct{}

func (jsonMarshaler) marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonMarshaler) unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type cborMarshaler struct{}

func (cborMarshaler) marshal(v any) ([]byte, error)      { return cborEnc.Marshal(v) }
func (cborMarshaler) unmarshal(data []byte, v any) error { return cborDec.Unmarshal(data, v) }
