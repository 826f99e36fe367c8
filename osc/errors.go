package osc

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrInvalidAddress   = errors.New("invalid OSC address")
	ErrAlreadyListening = errors.New("channel is already listening")
	ErrChannelClosed    = errors.New("channel is closed")
	ErrNoTarget         = errors.New("channel has no target")
)

// BindError is returned by Open when the local address cannot be bound,
// e.g. because the port is in use or privileged.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("osc: bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// TransmitError is returned when the socket refuses a datagram. UDP gives no
// delivery guarantee, so a nil error only means the OS accepted it.
type TransmitError struct {
	Addr string
	Err  error
}

func (e *TransmitError) Error() string {
	return fmt.Sprintf("osc: transmit to %s: %v", e.Addr, e.Err)
}

func (e *TransmitError) Unwrap() error { return e.Err }

// DecodeError describes a datagram that could not be decoded into a message.
type DecodeError struct {
	Codec string
	Len   int
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("osc: decode %d byte %s datagram: %v", e.Len, e.Codec, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
