// Package observe holds the OpenTelemetry metric instruments for OSC channels
// and the relay, and the Prometheus exporter bridge used to scrape them.
//
// A nil *Metrics is valid and records nothing, so components can take an
// optional *Metrics without guarding every call.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/osc-t2s/osc-t2s"

// Metrics holds all metric instruments. All fields are safe for concurrent use.
type Metrics struct {
	// DatagramsSent counts datagrams handed to the OS. Attribute: codec.
	DatagramsSent metric.Int64Counter

	// DatagramsReceived counts datagrams read from the socket. Attribute: codec.
	DatagramsReceived metric.Int64Counter

	// TransmitErrors counts sends the socket refused. Attribute: codec.
	TransmitErrors metric.Int64Counter

	// DecodeErrors counts dropped undecodable datagrams. Attribute: codec.
	DecodeErrors metric.Int64Counter

	// DispatchMisses counts messages without a handler. Attribute: address.
	DispatchMisses metric.Int64Counter

	// HandlerPanics counts recovered handler panics. Attribute: address.
	HandlerPanics metric.Int64Counter

	// DispatchDuration tracks time spent in handlers. Attribute: address.
	DispatchDuration metric.Float64Histogram

	// RelayClients tracks connected websocket relay clients.
	RelayClients metric.Int64UpDownCounter

	// RelayDropped counts relay frames dropped by rate limiting or bad input.
	// Attribute: reason.
	RelayDropped metric.Int64Counter
}

var dispatchBuckets = []float64{
	0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1,
}

// NewMetrics creates the instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.DatagramsSent, err = m.Int64Counter("osc.datagrams.sent",
		metric.WithDescription("Datagrams handed to the OS for transmission."),
	); err != nil {
		return nil, err
	}
	if met.DatagramsReceived, err = m.Int64Counter("osc.datagrams.received",
		metric.WithDescription("Datagrams read from the socket."),
	); err != nil {
		return nil, err
	}
	if met.TransmitErrors, err = m.Int64Counter("osc.transmit.errors",
		metric.WithDescription("Datagrams the socket refused to send."),
	); err != nil {
		return nil, err
	}
	if met.DecodeErrors, err = m.Int64Counter("osc.decode.errors",
		metric.WithDescription("Received datagrams dropped because they could not be decoded."),
	); err != nil {
		return nil, err
	}
	if met.DispatchMisses, err = m.Int64Counter("osc.dispatch.misses",
		metric.WithDescription("Received messages dropped because no handler was registered."),
	); err != nil {
		return nil, err
	}
	if met.HandlerPanics, err = m.Int64Counter("osc.handler.panics",
		metric.WithDescription("Handler panics recovered by the receive loop."),
	); err != nil {
		return nil, err
	}
	if met.DispatchDuration, err = m.Float64Histogram("osc.dispatch.duration",
		metric.WithDescription("Time spent dispatching a received message."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(dispatchBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RelayClients, err = m.Int64UpDownCounter("osc.relay.clients",
		metric.WithDescription("Connected websocket relay clients."),
	); err != nil {
		return nil, err
	}
	if met.RelayDropped, err = m.Int64Counter("osc.relay.dropped",
		metric.WithDescription("Relay frames dropped."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a package-level Metrics built on the global meter
// provider. Call it after InitProvider so the instruments are exported.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

func (m *Metrics) RecordSent(ctx context.Context, codec string) {
	if m == nil {
		return
	}
	m.DatagramsSent.Add(ctx, 1, metric.WithAttributes(attribute.String("codec", codec)))
}

func (m *Metrics) RecordReceived(ctx context.Context, codec string) {
	if m == nil {
		return
	}
	m.DatagramsReceived.Add(ctx, 1, metric.WithAttributes(attribute.String("codec", codec)))
}

func (m *Metrics) RecordTransmitError(ctx context.Context, codec string) {
	if m == nil {
		return
	}
	m.TransmitErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("codec", codec)))
}

func (m *Metrics) RecordDecodeError(ctx context.Context, codec string) {
	if m == nil {
		return
	}
	m.DecodeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("codec", codec)))
}

func (m *Metrics) RecordDispatchMiss(ctx context.Context, address string) {
	if m == nil {
		return
	}
	m.DispatchMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("address", address)))
}

func (m *Metrics) RecordHandlerPanic(ctx context.Context, address string) {
	if m == nil {
		return
	}
	m.HandlerPanics.Add(ctx, 1, metric.WithAttributes(attribute.String("address", address)))
}

func (m *Metrics) RecordDispatch(ctx context.Context, address string, seconds float64) {
	if m == nil {
		return
	}
	m.DispatchDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("address", address)))
}

// RelayClientDelta adjusts the connected relay client gauge.
func (m *Metrics) RelayClientDelta(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.RelayClients.Add(ctx, delta)
}

func (m *Metrics) RecordRelayDrop(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.RelayDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
