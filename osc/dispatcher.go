package osc

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Handler is an interface for OSC message handlers.
type Handler interface {
	HandleMessage(msg *Message)
}

// HandlerFunc implements the Handler interface. Type definition for an OSC handler function.
type HandlerFunc func(msg *Message)

// HandleMessage calls itself with the given OSC Message. Implements the Handler interface.
func (f HandlerFunc) HandleMessage(msg *Message) {
	f(msg)
}

// Dispatcher maps OSC addresses to Handlers. Lookups are exact: there is no
// pattern matching. The zero value is ready to use.
type Dispatcher struct {
	mu        sync.RWMutex
	methods   map[string]Handler
	observers []Handler

	logger *slog.Logger
}

// NewDispatcher returns an empty Dispatcher that logs to logger.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		methods: make(map[string]Handler),
		logger:  logger,
	}
}

// Handle registers h for addr, replacing any handler registered before.
// It panics if addr is not a valid method address or h is nil.
func (d *Dispatcher) Handle(addr string, h Handler) {
	if err := validateMethodAddress(addr); err != nil {
		panic(fmt.Sprintf("osc: Handle: %v", err))
	}
	if h == nil {
		panic("osc: Handle: nil handler")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.methods == nil {
		d.methods = make(map[string]Handler)
	}
	if _, ok := d.methods[addr]; ok {
		d.log().Debug("replacing handler", "address", addr)
	}
	d.methods[addr] = h
}

// HandleFunc allows you to just pass a function.
func (d *Dispatcher) HandleFunc(addr string, f func(msg *Message)) {
	d.Handle(addr, HandlerFunc(f))
}

// Observe registers h to see every dispatched message, handled or not.
// Observers run in registration order before the addressed handler.
func (d *Dispatcher) Observe(h Handler) {
	if h == nil {
		panic("osc: Observe: nil handler")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, h)
}

// Dispatch invokes the handler registered for msg.Address and reports
// whether there was one. A message without a handler is dropped.
func (d *Dispatcher) Dispatch(msg *Message) bool {
	d.mu.RLock()
	method, ok := d.methods[msg.Address]
	observers := d.observers
	d.mu.RUnlock()

	for _, o := range observers {
		o.HandleMessage(msg)
	}

	if !ok {
		d.log().Debug("no handler for address", "address", msg.Address, "sender", msg.Sender)
		return false
	}

	method.HandleMessage(msg)
	return true
}

// Addresses returns the registered addresses in sorted order.
func (d *Dispatcher) Addresses() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	addrs := make([]string, 0, len(d.methods))
	for addr := range d.methods {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	return addrs
}

func (d *Dispatcher) log() *slog.Logger {
	if d.logger != nil {
		return d.logger
	}
	return slog.Default()
}
