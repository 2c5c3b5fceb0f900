package session

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
)

// Supported session encodings.
const (
	EncodingJSON = "json"
	EncodingCBOR = "cbor"
)

// Codec frames events for one encoding.
type Codec interface {
	// Name returns the encoding name.
	Name() string

	// MessageType is the websocket frame type used for this encoding.
	MessageType() int

	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// CodecFor returns the codec for name. An empty name selects JSON.
func CodecFor(name string) (Codec, error) {
	switch name {
	case "", EncodingJSON:
		return jsonCodec{}, nil
	case EncodingCBOR:
		return cborCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string     { return EncodingJSON }
func (jsonCodec) MessageType() int { return websocket.TextMessage }

func (jsonCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode keeps numbers as json.Number so integer parameters survive intact.
func (jsonCodec) Decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON value")
	}
	return nil
}

type cborCodec struct{}

func (cborCodec) Name() string     { return EncodingCBOR }
func (cborCodec) MessageType() int { return websocket.BinaryMessage }

func (cborCodec) Encode(v any) ([]byte, error) {
	return cbor.Marshal(v)
}

func (cborCodec) Decode(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}
