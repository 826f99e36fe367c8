package osc

import (
	"context"
	"log/slog"
	"net"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/osc-t2s/osc-t2s/observe"
)

// DefaultReadTimeout bounds a single socket read in the receive loop, and with
// it how long a cancelled loop can take to notice.
const DefaultReadTimeout = 250 * time.Millisecond

// State is the lifecycle state of a Channel.
type State int

const (
	StateUnopened State = iota
	StateOpen
	StateListening
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpen:
		return "open"
	case StateListening:
		return "listening"
	case StateClosed:
		return "closed"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// Endpoint is a host and port pair. Port 0 binds an ephemeral port, or, for
// a target, means the channel has no default destination.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Options tunes a Channel. The zero value is usable.
type Options struct {
	// Codec defaults to BinaryCodec.
	Codec Codec
	// ReadTimeout defaults to DefaultReadTimeout.
	ReadTimeout time.Duration

	Logger  *slog.Logger
	Metrics *observe.Metrics
	Clock   clock.Clock
}

func (o Options) withDefaults() Options {
	if o.Codec == nil {
		o.Codec = BinaryCodec{}
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	return o
}

// Channel owns one UDP socket. It sends messages to a fixed target or to
// explicit peers, and its receive loop feeds incoming messages to a
// Dispatcher. Send may be called concurrently with the receive loop.
type Channel struct {
	conn       *net.UDPConn
	target     *net.UDPAddr
	dispatcher *Dispatcher

	codec       Codec
	readTimeout time.Duration
	logger      *slog.Logger
	metrics     *observe.Metrics
	clock       clock.Clock

	mu    sync.Mutex
	state State

	closing   chan struct{}
	closeOnce sync.Once
	closeErr  error

	done     chan struct{}
	doneOnce sync.Once
}

// Open binds a UDP socket on bind and records target as the default
// destination for Send. A bind failure is returned as *BindError.
func Open(bind, target Endpoint, d *Dispatcher, opts Options) (*Channel, error) {
	opts = opts.withDefaults()
	if d == nil {
		d = NewDispatcher(opts.Logger)
	}

	var targetAddr *net.UDPAddr
	if target.Port != 0 {
		a, err := net.ResolveUDPAddr("udp", target.String())
		if err != nil {
			return nil, errors.Wrapf(err, "resolving target %s", target)
		}
		targetAddr = a
	}

	bindAddr, err := net.ResolveUDPAddr("udp", bind.String())
	if err != nil {
		return nil, &BindError{Addr: bind.String(), Err: err}
	}
	conn, err := net.ListenUDP("udp", bindAddr)
	if err != nil {
		return nil, &BindError{Addr: bind.String(), Err: err}
	}

	c := &Channel{
		conn:        conn,
		target:      targetAddr,
		dispatcher:  d,
		codec:       opts.Codec,
		readTimeout: opts.ReadTimeout,
		metrics:     opts.Metrics,
		clock:       opts.Clock,
		state:       StateOpen,
		closing:     make(chan struct{}),
		done:        make(chan struct{}),
	}
	c.logger = opts.Logger.With("local", conn.LocalAddr().String(), "codec", c.codec.Name())
	c.logger.Debug("channel open", "target", targetAddr)

	return c, nil
}

// LocalAddr returns the bound address of the socket.
func (c *Channel) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Dispatcher returns the dispatcher incoming messages are fed to.
func (c *Channel) Dispatcher() *Dispatcher {
	return c.dispatcher
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	if c == nil {
		return StateUnopened
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Target returns the default destination, or nil when the channel has none.
func (c *Channel) Target() net.Addr {
	if c.target == nil {
		return nil
	}
	return c.target
}

// Done is closed once the channel is closed and its receive loop has exited.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Send encodes a message and sends it to the default target.
func (c *Channel) Send(addr string, args ...interface{}) error {
	return c.SendContext(context.Background(), addr, args...)
}

// SendContext is Send with a context for logging and metrics.
func (c *Channel) SendContext(ctx context.Context, addr string, args ...interface{}) error {
	if c.target == nil {
		return ErrNoTarget
	}
	return c.send(ctx, c.target, NewMessage(addr, args...))
}

// SendTo encodes a message and sends it to the given peer.
func (c *Channel) SendTo(ctx context.Context, to net.Addr, addr string, args ...interface{}) error {
	udpAddr, err := toUDPAddr(to)
	if err != nil {
		return err
	}
	return c.send(ctx, udpAddr, NewMessage(addr, args...))
}

// Reply sends a message to the sender of req.
func (c *Channel) Reply(ctx context.Context, req *Message, addr string, args ...interface{}) error {
	if req == nil || req.Sender == nil {
		return errors.New("osc: reply to a message without sender")
	}
	return c.SendTo(ctx, req.Sender, addr, args...)
}

func (c *Channel) send(ctx context.Context, to *net.UDPAddr, msg *Message) error {
	if err := ValidateAddress(msg.Address); err != nil {
		return err
	}
	if c.State() == StateClosed {
		return ErrChannelClosed
	}

	data, err := c.codec.Encode(msg)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", msg.Address)
	}

	if _, err := c.conn.WriteToUDP(data, to); err != nil {
		c.metrics.RecordTransmitError(ctx, c.codec.Name())
		if errors.Is(err, net.ErrClosed) {
			return ErrChannelClosed
		}
		return &TransmitError{Addr: to.String(), Err: err}
	}

	c.metrics.RecordSent(ctx, c.codec.Name())
	c.logger.DebugContext(ctx, "sent", "to", to.String(), "message", msg)
	return nil
}

// Listen starts the receive loop in a new goroutine. The loop runs until
// Close is called or ctx is done, in which case the channel is closed.
func (c *Channel) Listen(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateClosed:
		return ErrChannelClosed
	case StateListening:
		return ErrAlreadyListening
	}
	c.state = StateListening

	go c.serve(ctx)
	return nil
}

// serve reads datagrams and dispatches them until the channel closes.
func (c *Channel) serve(ctx context.Context) {
	defer c.finish()

	c.logger.Info("listening")

	buf := readPool.Get().(*[]byte)
	defer readPool.Put(buf)

	var tempDelay time.Duration
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("listen context done", "error", ctx.Err())
			c.closeOnce.Do(c.release)
			return
		case <-c.closing:
			return
		default:
		}

		// Socket deadlines are wall-clock; the injected clock only drives backoff and timing.
		if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			if c.isClosing() {
				return
			}
			c.logger.Warn("setting read deadline", "error", err)
		}

		n, from, err := c.conn.ReadFromUDP(*buf)
		if err != nil {
			if c.isClosing() || errors.Is(err, net.ErrClosed) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				tempDelay = 0
				continue
			}

			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if max := 1 * time.Second; tempDelay > max {
				tempDelay = max
			}
			c.logger.Warn("read error, retrying", "error", err, "delay", tempDelay)

			select {
			case <-c.clock.After(tempDelay):
			case <-c.closing:
				return
			case <-ctx.Done():
			}
			continue
		}
		tempDelay = 0

		c.handle(ctx, (*buf)[:n], from)
	}
}

// handle decodes and dispatches one datagram. Nothing that goes wrong here
// reaches the loop.
func (c *Channel) handle(ctx context.Context, data []byte, from *net.UDPAddr) {
	c.metrics.RecordReceived(ctx, c.codec.Name())

	msg, err := c.codec.Decode(data)
	if err != nil {
		derr := &DecodeError{Codec: c.codec.Name(), Len: len(data), Err: err}
		c.metrics.RecordDecodeError(ctx, c.codec.Name())
		c.logger.Warn("dropping datagram", "from", from.String(), "error", derr)
		return
	}
	msg.Sender = from

	defer func() {
		if r := recover(); r != nil {
			stack := make([]byte, 8<<10)
			stack = stack[:runtime.Stack(stack, false)]
			c.metrics.RecordHandlerPanic(ctx, msg.Address)
			c.logger.Error("panic in handler",
				"address", msg.Address,
				"from", from.String(),
				"panic", r,
				"stack", string(stack),
			)
		}
	}()

	start := c.clock.Now()
	if !c.dispatcher.Dispatch(msg) {
		c.metrics.RecordDispatchMiss(ctx, msg.Address)
		return
	}
	c.metrics.RecordDispatch(ctx, msg.Address, c.clock.Since(start).Seconds())
}

// Close releases the socket and waits for the receive loop to exit. It is
// safe to call from any state and more than once, but not from a handler
// running on this channel's loop; cancel the Listen context there instead.
func (c *Channel) Close() error {
	c.closeOnce.Do(c.release)
	<-c.done
	return c.closeErr
}

func (c *Channel) release() {
	c.mu.Lock()
	listening := c.state == StateListening
	c.state = StateClosed
	c.mu.Unlock()

	close(c.closing)
	c.closeErr = c.conn.Close()
	c.logger.Debug("channel closed")

	if !listening {
		c.finish()
	}
}

func (c *Channel) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Channel) isClosing() bool {
	select {
	case <-c.closing:
		return true
	default:
		return false
	}
}

func toUDPAddr(a net.Addr) (*net.UDPAddr, error) {
	switch t := a.(type) {
	case *net.UDPAddr:
		return t, nil
	case nil:
		return nil, errors.New("osc: nil peer address")
	default:
		u, err := net.ResolveUDPAddr("udp", a.String())
		if err != nil {
			return nil, errors.Wrapf(err, "resolving peer %s", a)
		}
		return u, nil
	}
}
