package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/osc-t2s/osc-t2s/osc"
	"github.com/osc-t2s/osc-t2s/session"
)

// Controller is the server side of the control contract. It answers the
// handshake, drives a Recorder and publishes transcribed text.
type Controller struct {
	transport Transport
	sessions  *session.Registry
	recorder  Recorder
	logger    *slog.Logger

	mu        sync.Mutex
	recording bool
}

// NewController returns a controller that replies through t and keeps
// connected clients in sessions. rec may be nil when capture happens
// elsewhere.
func NewController(t Transport, sessions *session.Registry, rec Recorder, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if sessions == nil {
		sessions = session.NewRegistry(nil, 0)
	}
	return &Controller{
		transport: t,
		sessions:  sessions,
		recorder:  rec,
		logger:    logger,
	}
}

// Register installs the controller's handlers on d.
func (c *Controller) Register(d *osc.Dispatcher) {
	d.HandleFunc(AddrConnect, c.handleConnect)
	d.HandleFunc(AddrStartRecording, c.handleStart)
	d.HandleFunc(AddrStopRecording, c.handleStop)
}

// Recording reports whether capture is running.
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// Sessions returns the registry of connected clients.
func (c *Controller) Sessions() *session.Registry {
	return c.sessions
}

func (c *Controller) handleConnect(msg *osc.Message) {
	ctx := context.Background()
	if msg.Sender == nil {
		return
	}

	s := c.sessions.Connect(msg.Sender)
	c.logger.Info("client connected", "session", s.ID, "addr", msg.Sender.String())

	if err := c.transport.Reply(ctx, msg, AddrConnected, s.ID); err != nil {
		c.logger.Warn("replying to connect", "session", s.ID, "error", err)
	}
}

func (c *Controller) handleStart(msg *osc.Message) {
	c.setRecording(msg, true)
}

func (c *Controller) handleStop(msg *osc.Message) {
	c.setRecording(msg, false)
}

// setRecording starts or stops capture and reports the resulting state to
// the sender. A failing recorder leaves the state unchanged.
func (c *Controller) setRecording(msg *osc.Message, on bool) {
	ctx := context.Background()
	if msg.Sender != nil {
		c.sessions.Touch(msg.Sender)
	}

	c.mu.Lock()
	if c.recording != on && c.recorder != nil {
		var err error
		if on {
			err = c.recorder.Start(ctx)
		} else {
			err = c.recorder.Stop(ctx)
		}
		if err != nil {
			c.logger.Error("recorder failed", "recording", on, "error", err)
			on = c.recording
		}
	}
	c.recording = on
	c.mu.Unlock()

	c.logger.Info("recording status", "recording", on)

	if msg.Sender == nil {
		return
	}
	if err := c.transport.Reply(ctx, msg, AddrRecordingStatus, on); err != nil {
		c.logger.Warn("replying recording status", "error", err)
	}
}

// PublishText sends text as /transcription to every connected client and as
// /text to the channel's target, when it has one. A client listening on the
// target address only gets the /text copy.
func (c *Controller) PublishText(ctx context.Context, text string) error {
	var errs []error

	if err := c.transport.SendContext(ctx, AddrText, text); err != nil && !errors.Is(err, osc.ErrNoTarget) {
		errs = append(errs, err)
	}

	var target string
	if t := c.transport.Target(); t != nil {
		target = t.String()
	}
	for _, s := range c.sessions.All() {
		if target != "" && s.Addr.String() == target {
			continue
		}
		if err := c.transport.SendTo(ctx, s.Addr, AddrTranscription, text); err != nil {
			c.logger.Warn("publishing text", "session", s.ID, "error", err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
