// Package speech implements the control contract between a speech-to-text
// server and its clients on top of osc channels.
//
// A client connects with /connect, toggles capture with /startRecording and
// /stopRecording and receives /connected, /recordingStatus and transcribed
// text. The server side is a Controller; the client side is a Remote.
package speech

import (
	"context"
	"net"

	"github.com/osc-t2s/osc-t2s/osc"
)

// Control addresses.
const (
	AddrStartRecording  = "/startRecording"
	AddrStopRecording   = "/stopRecording"
	AddrText            = "/text"
	AddrTranscription   = "/transcription"
	AddrConnect         = "/connect"
	AddrConnected       = "/connected"
	AddrRecordingStatus = "/recordingStatus"
)

// Default ports.
const (
	// ServerPort is where the speech server receives control messages.
	ServerPort = 57120
	// ClientPort is where clients receive status and text.
	ClientPort = 57121
	// LegacyPort is used by the JSON scripts.
	LegacyPort = 12000
)

// Recorder is the audio capture the server drives. Implementations live
// outside this module.
type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Transport is the part of an osc.Channel the controller needs.
type Transport interface {
	SendContext(ctx context.Context, addr string, args ...interface{}) error
	SendTo(ctx context.Context, to net.Addr, addr string, args ...interface{}) error
	Reply(ctx context.Context, req *osc.Message, addr string, args ...interface{}) error
	// Target is the default destination, nil when there is none.
	Target() net.Addr
}

// Sender is the part of an osc.Channel the remote needs.
type Sender interface {
	SendContext(ctx context.Context, addr string, args ...interface{}) error
}

var (
	_ Transport = (*osc.Channel)(nil)
	_ Sender    = (*osc.Channel)(nil)
)

// truthy interprets a status argument. Clients in the wild send booleans as
// well as 0/1 integers.
func truthy(arg interface{}) bool {
	switch t := arg.(type) {
	case bool:
		return t
	case int32:
		return t != 0
	case int64:
		return t != 0
	case float32:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t == "true" || t == "1"
	default:
		return false
	}
}
