package osc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// Message represents a single OSC message. An OSC message consists of an OSC
// address and zero or more arguments.
type Message struct {
	Address   string
	Arguments []interface{}

	// Sender is set on received messages. It is never encoded.
	Sender net.Addr
}

// NewMessage returns a new Message. The address parameter is the OSC address.
// Go ints are stored as int32 when they fit and int64 otherwise.
func NewMessage(addr string, args ...interface{}) *Message {
	m := &Message{Address: addr}
	if len(args) > 0 {
		m.Arguments = make([]interface{}, 0, len(args))
		for _, a := range args {
			m.Arguments = append(m.Arguments, normalizeArg(a))
		}
	}
	return m
}

// Append appends the given arguments to the arguments list.
func (m *Message) Append(args ...interface{}) error {
	normalized := make([]interface{}, 0, len(args))
	for _, a := range args {
		a = normalizeArg(a)
		if ToTypeTag(a) == TypeInvalid {
			return errors.Errorf("Append: unsupported type: %T", a)
		}
		normalized = append(normalized, a)
	}
	m.Arguments = append(m.Arguments, normalized...)
	return nil
}

// Equals reports whether m and o carry the same address and arguments.
// The sender is ignored.
func (m *Message) Equals(o *Message) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.Address != o.Address || len(m.Arguments) != len(o.Arguments) {
		return false
	}
	for i := range m.Arguments {
		if !reflect.DeepEqual(m.Arguments[i], o.Arguments[i]) {
			return false
		}
	}
	return true
}

// TypeTags returns the type tag string.
func (m *Message) TypeTags() (string, error) {
	if m == nil {
		return "", errors.New("TypeTags: message is nil")
	}
	return GetTypeTags(m.Arguments)
}

// String implements the fmt.Stringer interface.
func (m *Message) String() string {
	if m == nil {
		return ""
	}

	tags, _ := m.TypeTags()

	strBuf := bufPool.Get().(*bytes.Buffer)
	defer bufPool.Put(strBuf)
	strBuf.Reset()

	strBuf.WriteString(m.Address)
	if len(m.Arguments) == 0 {
		return strBuf.String()
	}

	strBuf.WriteByte(' ')
	strBuf.WriteString(tags)

	for _, arg := range m.Arguments {
		switch arg := arg.(type) {
		case bool, int32, int64, float32, float64, string:
			fmt.Fprintf(strBuf, " %v", arg)

		case nil:
			strBuf.WriteString(" Nil")

		case []byte:
			strBuf.WriteString(" blob")
		}
	}

	return strBuf.String()
}

// MarshalBinary implements the encoding.BinaryMarshaler interface. The result
// has the following layout:
// 1. OSC Address
// 2. OSC Type Tag String
// 3. OSC Arguments
func (m *Message) MarshalBinary() ([]byte, error) {
	data := bufPool.Get().(*bytes.Buffer)
	defer bufPool.Put(data)
	data.Reset()

	if err := m.LightMarshalBinary(data); err != nil {
		return nil, err
	}
	return append([]byte(nil), data.Bytes()...), nil
}

// LightMarshalBinary appends the encoded message to data.
func (m *Message) LightMarshalBinary(data *bytes.Buffer) error {
	if err := ValidateAddress(m.Address); err != nil {
		return errors.Wrap(err, "LightMarshalBinary")
	}
	if err := checkString(m.Address); err != nil {
		return errors.Wrap(err, "LightMarshalBinary: address")
	}

	typetags, err := m.TypeTags()
	if err != nil {
		return errors.Wrap(err, "LightMarshalBinary")
	}

	start := data.Len()
	writePaddedString(m.Address, data)
	writePaddedString(typetags, data)

	var buf [bit64Size]byte
	for _, arg := range m.Arguments {
		switch t := arg.(type) {
		case bool, nil:
			continue
		case int32:
			binary.BigEndian.PutUint32(buf[:bit32Size], uint32(t))
			data.Write(buf[:bit32Size])
		case float32:
			binary.BigEndian.PutUint32(buf[:bit32Size], math.Float32bits(t))
			data.Write(buf[:bit32Size])
		case int64:
			binary.BigEndian.PutUint64(buf[:], uint64(t))
			data.Write(buf[:])
		case float64:
			binary.BigEndian.PutUint64(buf[:], math.Float64bits(t))
			data.Write(buf[:])
		case string:
			if err := checkString(t); err != nil {
				return errors.Wrap(err, "LightMarshalBinary: argument")
			}
			writePaddedString(t, data)
		case []byte:
			writeBlob(t, data)
		}
	}

	if n := data.Len() - start; n > MaxPacketSize {
		return errors.Errorf("LightMarshalBinary: packet too large: %d", n)
	}

	return nil
}

// NewMessageFromData decodes a binary OSC message.
func NewMessageFromData(data []byte) (msg *Message, err error) {
	msg = &Message{}
	if err = msg.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return msg, nil
}

// UnmarshalBinary implements the encoding.BinaryUnmarshaler interface. The
// message never references data after returning.
func (m *Message) UnmarshalBinary(data []byte) error {
	if len(data) == 0 || data[0] != '/' {
		return errors.New("UnmarshalBinary: data not a valid OSC message")
	}

	if (len(data) % bit32Size) != 0 {
		return errors.New("UnmarshalBinary: data isn't mod 4")
	}

	addr, n, err := parsePaddedString(data)
	if err != nil {
		return errors.Wrap(err, "UnmarshalBinary: address")
	}

	m.Address = addr
	m.Arguments = nil
	if err = m.readArguments(data[n:]); err != nil {
		return errors.Wrap(err, "UnmarshalBinary")
	}

	return nil
}

// readArguments decodes the type tag string and the arguments that follow it.
func (m *Message) readArguments(data []byte) error {
	// Some senders omit the type tag string for messages without arguments.
	if len(data) == 0 {
		return nil
	}

	typetags, n, err := parsePaddedString(data)
	if err != nil {
		return errors.Wrap(err, "readArguments: type tags")
	}
	data = data[n:]

	if len(typetags) == 0 || typetags[0] != ',' {
		return errors.Errorf("unsupported typetag string: %q", typetags)
	}

	if len(typetags) > 1 {
		m.Arguments = make([]interface{}, 0, len(typetags)-1)
	}

	for _, c := range typetags[1:] {
		switch TypeTag(c) {
		default:
			return errors.Errorf("unsupported typetag: %c", c)

		case TypeInt32:
			if len(data) < bit32Size {
				return errors.Wrap(io.ErrUnexpectedEOF, "readArguments: int32")
			}
			m.Arguments = append(m.Arguments, int32(binary.BigEndian.Uint32(data)))
			data = data[bit32Size:]

		case TypeInt64:
			if len(data) < bit64Size {
				return errors.Wrap(io.ErrUnexpectedEOF, "readArguments: int64")
			}
			m.Arguments = append(m.Arguments, int64(binary.BigEndian.Uint64(data)))
			data = data[bit64Size:]

		case TypeFloat32:
			if len(data) < bit32Size {
				return errors.Wrap(io.ErrUnexpectedEOF, "readArguments: float32")
			}
			m.Arguments = append(m.Arguments, math.Float32frombits(binary.BigEndian.Uint32(data)))
			data = data[bit32Size:]

		case TypeFloat64:
			if len(data) < bit64Size {
				return errors.Wrap(io.ErrUnexpectedEOF, "readArguments: float64")
			}
			m.Arguments = append(m.Arguments, math.Float64frombits(binary.BigEndian.Uint64(data)))
			data = data[bit64Size:]

		case TypeString:
			str, n, err := parsePaddedString(data)
			if err != nil {
				return errors.Wrap(err, "readArguments: string")
			}
			m.Arguments = append(m.Arguments, str)
			data = data[n:]

		case TypeBlob:
			blob, n, err := parseBlob(data)
			if err != nil {
				return errors.Wrap(err, "readArguments")
			}
			m.Arguments = append(m.Arguments, blob)
			data = data[n:]

		case TypeNil:
			m.Arguments = append(m.Arguments, nil)

		case TypeTrue:
			m.Arguments = append(m.Arguments, true)

		case TypeFalse:
			m.Arguments = append(m.Arguments, false)
		}
	}

	return nil
}

// ValidateAddress checks that addr is a non-empty path starting with '/'.
func ValidateAddress(addr string) error {
	if addr == "" || addr[0] != '/' {
		return errors.Wrapf(ErrInvalidAddress, "%q", addr)
	}
	return nil
}

// validateMethodAddress additionally rejects OSC pattern characters, which
// can never match under exact dispatch.
func validateMethodAddress(addr string) error {
	if err := ValidateAddress(addr); err != nil {
		return err
	}
	if strings.ContainsAny(addr, "*?,[]{}# ") {
		return errors.Wrapf(ErrInvalidAddress, "%q may not contain any characters in \"*?,[]{}# \"", addr)
	}
	return nil
}
