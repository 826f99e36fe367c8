package speech

import (
	"context"
	"log/slog"
	"sync"

	"github.com/osc-t2s/osc-t2s/osc"
)

// Remote is the client side of the control contract. It sends commands to a
// speech server and tracks the state the server reports back.
type Remote struct {
	sender Sender
	logger *slog.Logger

	mu          sync.Mutex
	session     string
	connected   bool
	recording   bool
	transcripts []string
	onText      func(text string)
}

// NewRemote returns a remote that sends through s.
func NewRemote(s Sender, logger *slog.Logger) *Remote {
	if logger == nil {
		logger = slog.Default()
	}
	return &Remote{sender: s, logger: logger}
}

// Register installs the remote's handlers on d.
func (r *Remote) Register(d *osc.Dispatcher) {
	d.HandleFunc(AddrConnected, r.handleConnected)
	d.HandleFunc(AddrRecordingStatus, r.handleStatus)
	d.HandleFunc(AddrText, r.handleText)
	d.HandleFunc(AddrTranscription, r.handleText)
}

// OnText sets a callback run for every received transcription. It runs on
// the receive loop and must not block.
func (r *Remote) OnText(f func(text string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onText = f
}

func (r *Remote) Connect(ctx context.Context) error {
	return r.sender.SendContext(ctx, AddrConnect, 1)
}

func (r *Remote) StartRecording(ctx context.Context) error {
	return r.sender.SendContext(ctx, AddrStartRecording)
}

func (r *Remote) StopRecording(ctx context.Context) error {
	return r.sender.SendContext(ctx, AddrStopRecording)
}

// Session returns the session id the server acknowledged, if any.
func (r *Remote) Session() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session, r.connected
}

// Recording returns the last recording status the server reported.
func (r *Remote) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Transcripts returns the received transcriptions in arrival order.
func (r *Remote) Transcripts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.transcripts...)
}

func (r *Remote) handleConnected(msg *osc.Message) {
	var id string
	if len(msg.Arguments) > 0 {
		if s, ok := msg.Arguments[0].(string); ok {
			id = s
		}
	}

	r.mu.Lock()
	r.session = id
	r.connected = true
	r.mu.Unlock()

	r.logger.Info("connected to server", "session", id)
}

func (r *Remote) handleStatus(msg *osc.Message) {
	if len(msg.Arguments) == 0 {
		r.logger.Warn("recording status without argument")
		return
	}
	on := truthy(msg.Arguments[0])

	r.mu.Lock()
	r.recording = on
	r.mu.Unlock()

	r.logger.Info("recording status", "recording", on)
}

func (r *Remote) handleText(msg *osc.Message) {
	if len(msg.Arguments) == 0 {
		return
	}
	text, ok := msg.Arguments[0].(string)
	if !ok {
		r.logger.Warn("text is not a string", "address", msg.Address, "arg", msg.Arguments[0])
		return
	}

	r.mu.Lock()
	r.transcripts = append(r.transcripts, text)
	f := r.onText
	r.mu.Unlock()

	r.logger.Info("transcription", "text", text)
	if f != nil {
		f(text)
	}
}
