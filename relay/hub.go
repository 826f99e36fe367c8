// Package relay mirrors OSC traffic to websocket clients and lets them send
// messages on the OSC channel.
//
// Every message the dispatcher sees is written to each client as
//
//	{"type": "osc", "address": "/text", "args": ["hello"]}
//
// A client may send {"type": "send", "address": ..., "args": [...]} to have
// the relay transmit a message, or {"type": "register"} to learn its id.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/osc-t2s/osc-t2s/observe"
	"github.com/osc-t2s/osc-t2s/osc"
)

const (
	writeWait = 5 * time.Second
	closeWait = time.Second

	DefaultLimit      = rate.Limit(20)
	DefaultBurst      = 10
	DefaultSendBuffer = 64
)

// Frame types.
const (
	TypeOSC        = "osc"
	TypeSend       = "send"
	TypeRegister   = "register"
	TypeRegistered = "registered"
	TypeError      = "error"
)

// Frame is a message exchanged with websocket clients.
type Frame struct {
	Type    string        `json:"type"`
	ID      string        `json:"id,omitempty"`
	Address string        `json:"address,omitempty"`
	Args    []interface{} `json:"args,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// inFrame keeps the arguments raw so numbers are typed by the OSC JSON codec
// rather than all becoming float64.
type inFrame struct {
	Type    string          `json:"type"`
	Address string          `json:"address"`
	Args    json.RawMessage `json:"args"`
}

// Sender transmits OSC messages. *osc.Channel implements it.
type Sender interface {
	SendContext(ctx context.Context, addr string, args ...interface{}) error
}

// Options tunes a Hub.
type Options struct {
	// Limit and Burst bound the frames a single client may send.
	Limit rate.Limit
	Burst int

	// SendBuffer is the number of frames queued per client. Frames for a
	// client whose queue is full are dropped.
	SendBuffer int

	Logger  *slog.Logger
	Metrics *observe.Metrics
}

// Hub tracks websocket clients. Register it as an observer on a dispatcher
// to forward received messages.
type Hub struct {
	sender  Sender
	limit   rate.Limit
	burst   int
	buffer  int
	logger  *slog.Logger
	metrics *observe.Metrics

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

var _ osc.Handler = (*Hub)(nil)

type client struct {
	id      string
	conn    *websocket.Conn
	limiter *rate.Limiter

	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
}

// enqueue queues data for the writer and reports false when the queue is
// full or the client is gone.
func (c *client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// goAway sends a going-away close frame and closes the connection.
// WriteControl may run concurrently with the writer.
func (c *client) goAway() {
	c.stop()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay closed"),
		time.Now().Add(closeWait))
	c.conn.Close()
}

// NewHub returns a hub that transmits client sends through s. s may be nil
// for a read-only relay.
func NewHub(s Sender, opts Options) *Hub {
	if opts.Limit == 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Burst == 0 {
		opts.Burst = DefaultBurst
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Hub{
		sender:  s,
		limit:   opts.Limit,
		burst:   opts.Burst,
		buffer:  opts.SendBuffer,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		clients: make(map[string]*client),
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleMessage broadcasts msg to every client.
func (h *Hub) HandleMessage(msg *osc.Message) {
	h.Broadcast(Frame{Type: TypeOSC, Address: msg.Address, Args: msg.Arguments})
}

// Broadcast queues f for every client without waiting for the writes. A
// frame that cannot be encoded is dropped once; a client with a full queue
// misses it.
func (h *Hub) Broadcast(f Frame) {
	ctx := context.Background()
	data, err := json.Marshal(f)
	if err != nil {
		h.metrics.RecordRelayDrop(ctx, "encode")
		h.logger.Warn("relay frame not encodable", "address", f.Address, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.enqueue(data) {
			h.metrics.RecordRelayDrop(ctx, "slow")
			h.logger.Debug("relay client queue full", "client", c.id)
		}
	}
}

// reply queues f for c alone.
func (h *Hub) reply(c *client, f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		h.logger.Warn("relay reply not encodable", "client", c.id, "error", err)
		return
	}
	if !c.enqueue(data) {
		h.metrics.RecordRelayDrop(context.Background(), "slow")
	}
}

// writePump writes queued frames to c until it stops or a write fails.
func (h *Hub) writePump(c *client) {
	for {
		select {
		case data := <-c.send:
			err := c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err == nil {
				err = c.conn.WriteMessage(websocket.TextMessage, data)
			}
			if err != nil {
				select {
				case <-c.done:
				default:
					h.logger.Warn("relay write failed", "client", c.id, "error", err)
				}
				c.stop()
				c.conn.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close disconnects every client with a going-away close frame.
// Connections accepted afterwards are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[string]*client)
	h.metrics.RelayClientDelta(context.Background(), -int64(len(clients)))
	h.mu.Unlock()

	for _, c := range clients {
		c.goAway()
	}
}

func (h *Hub) add(conn *websocket.Conn) (*client, bool) {
	c := &client{
		id:      uuid.NewString(),
		conn:    conn,
		limiter: rate.NewLimiter(h.limit, h.burst),
		send:    make(chan []byte, h.buffer),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	h.clients[c.id] = c
	h.metrics.RelayClientDelta(context.Background(), 1)
	return c, true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		h.metrics.RelayClientDelta(context.Background(), -1)
	}
}

// serve reads frames from c until the connection fails.
func (h *Hub) serve(ctx context.Context, c *client) {
	defer func() {
		h.remove(c)
		c.stop()
		c.conn.Close()
		h.logger.Info("relay client disconnected", "client", c.id)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("relay read failed", "client", c.id, "error", err)
			}
			return
		}

		if !c.limiter.Allow() {
			h.metrics.RecordRelayDrop(ctx, "rate")
			h.logger.Debug("relay frame over rate limit", "client", c.id)
			continue
		}

		if err := h.handleFrame(ctx, c, data); err != nil {
			h.logger.Warn("relay frame rejected", "client", c.id, "error", err)
			h.reply(c, Frame{Type: TypeError, Error: err.Error()})
		}
	}
}

func (h *Hub) handleFrame(ctx context.Context, c *client, data []byte) error {
	var in inFrame
	if err := json.Unmarshal(data, &in); err != nil {
		h.metrics.RecordRelayDrop(ctx, "malformed")
		return errors.Wrap(err, "decoding frame")
	}

	switch in.Type {
	case TypeRegister:
		h.reply(c, Frame{Type: TypeRegistered, ID: c.id})
		return nil

	case TypeSend:
		msg, err := decodeSend(in)
		if err != nil {
			h.metrics.RecordRelayDrop(ctx, "malformed")
			return err
		}
		if h.sender == nil {
			return errors.New("relay is read-only")
		}
		return h.sender.SendContext(ctx, msg.Address, msg.Arguments...)

	default:
		h.metrics.RecordRelayDrop(ctx, "unknown")
		return errors.Errorf("unknown frame type %q", in.Type)
	}
}

// decodeSend converts a send frame into a message with the OSC JSON codec's
// argument typing.
func decodeSend(in inFrame) (*osc.Message, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"address":`)
	addr, err := json.Marshal(in.Address)
	if err != nil {
		return nil, err
	}
	buf.Write(addr)
	if len(in.Args) > 0 {
		buf.WriteString(`,"args":`)
		buf.Write(in.Args)
	}
	buf.WriteByte('}')

	return osc.JSONCodec{}.Decode(buf.Bytes())
}
