package osc

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Codec converts messages to and from datagram payloads. Whatever Encode
// produces, Decode of the same codec reads back into an equal message.
type Codec interface {
	Name() string
	Encode(msg *Message) ([]byte, error)
	Decode(data []byte) (*Message, error)
}

// CodecByName returns the codec registered under name: "osc" (binary, the
// default when name is empty) or "json".
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "osc", "binary":
		return BinaryCodec{}, nil
	case "json":
		return JSONCodec{}, nil
	default:
		return nil, errors.Errorf("unknown codec %q", name)
	}
}

// BinaryCodec is the OSC 1.0 message encoding.
type BinaryCodec struct{}

var _ Codec = BinaryCodec{}

func (BinaryCodec) Name() string { return "osc" }

func (BinaryCodec) Encode(msg *Message) ([]byte, error) {
	return msg.MarshalBinary()
}

func (BinaryCodec) Decode(data []byte) (*Message, error) {
	return NewMessageFromData(data)
}

// JSONCodec encodes a message as {"address": "/a", "args": [...]}.
//
// Integers decode as int32 when they fit and int64 otherwise. Floats are
// always written with a fraction or exponent and decode as float64. Blobs
// are written as base64 strings and read back as strings.
type JSONCodec struct{}

var _ Codec = JSONCodec{}

type jsonMessage struct {
	Address string            `json:"address"`
	Args    []json.RawMessage `json:"args"`
}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Encode(msg *Message) ([]byte, error) {
	if err := ValidateAddress(msg.Address); err != nil {
		return nil, errors.Wrap(err, "json encode")
	}

	jm := jsonMessage{
		Address: msg.Address,
		Args:    make([]json.RawMessage, 0, len(msg.Arguments)),
	}
	for _, arg := range msg.Arguments {
		raw, err := encodeJSONArg(arg)
		if err != nil {
			return nil, errors.Wrap(err, "json encode")
		}
		jm.Args = append(jm.Args, raw)
	}

	data, err := json.Marshal(jm)
	if err != nil {
		return nil, errors.Wrap(err, "json encode")
	}
	if len(data) > MaxPacketSize {
		return nil, errors.Errorf("json encode: packet too large: %d", len(data))
	}
	return data, nil
}

func encodeJSONArg(arg interface{}) (json.RawMessage, error) {
	switch t := arg.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case bool:
		return json.RawMessage(strconv.FormatBool(t)), nil
	case int32:
		return json.RawMessage(strconv.FormatInt(int64(t), 10)), nil
	case int64:
		return json.RawMessage(strconv.FormatInt(t, 10)), nil
	case float32:
		return encodeJSONFloat(float64(t), 32)
	case float64:
		return encodeJSONFloat(t, 64)
	case string, []byte:
		return json.Marshal(t)
	default:
		return nil, errors.Errorf("unsupported type: %T", arg)
	}
}

func encodeJSONFloat(f float64, bitSize int) (json.RawMessage, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, errors.Errorf("unsupported float value: %v", f)
	}
	s := strconv.FormatFloat(f, 'g', -1, bitSize)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return json.RawMessage(s), nil
}

func (JSONCodec) Decode(data []byte) (*Message, error) {
	var raw struct {
		Address string        `json:"address"`
		Args    []interface{} `json:"args"`
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "json decode")
	}
	if rest := bytes.TrimSpace(data[dec.InputOffset():]); len(rest) > 0 {
		return nil, errors.Errorf("json decode: %d trailing bytes", len(rest))
	}
	if err := ValidateAddress(raw.Address); err != nil {
		return nil, errors.Wrap(err, "json decode")
	}

	msg := &Message{Address: raw.Address}
	if len(raw.Args) > 0 {
		msg.Arguments = make([]interface{}, 0, len(raw.Args))
	}
	for i, a := range raw.Args {
		v, err := decodeJSONArg(a)
		if err != nil {
			return nil, errors.Wrapf(err, "json decode: argument %d", i)
		}
		msg.Arguments = append(msg.Arguments, v)
	}
	return msg, nil
}

func decodeJSONArg(a interface{}) (interface{}, error) {
	switch t := a.(type) {
	case nil, bool, string:
		return t, nil
	case json.Number:
		s := t.String()
		if !strings.ContainsAny(s, ".eE") {
			if i, err := t.Int64(); err == nil {
				if i >= math.MinInt32 && i <= math.MaxInt32 {
					return int32(i), nil
				}
				return i, nil
			}
		}
		return t.Float64()
	default:
		return nil, errors.Errorf("unsupported JSON value %T", a)
	}
}
