// Package observetest provides a Metrics instance backed by a ManualReader
// for inspecting recorded values in tests.
package observetest

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/osc-t2s/osc-t2s/observe"
)

// Reader collects metrics recorded through the Metrics it was created with.
type Reader struct {
	t      testing.TB
	reader *sdkmetric.ManualReader
}

// NewMetrics returns a Metrics instance and a Reader over it. The provider is
// shut down when the test ends.
func NewMetrics(t testing.TB) (*observe.Metrics, *Reader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, &Reader{t: t, reader: reader}
}

// Collect gathers all metric data from the reader.
func (r *Reader) Collect() metricdata.ResourceMetrics {
	r.t.Helper()
	var rm metricdata.ResourceMetrics
	if err := r.reader.Collect(context.Background(), &rm); err != nil {
		r.t.Fatalf("Collect: %v", err)
	}
	return rm
}

// Find searches for a metric by name across all scope metrics.
func Find(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// Sum returns the total of an int64 sum metric over all attribute sets, or 0
// when nothing was recorded.
func (r *Reader) Sum(name string) int64 {
	r.t.Helper()
	met := Find(r.Collect(), name)
	if met == nil {
		return 0
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		r.t.Fatalf("metric %q is %T, not an int64 sum", name, met.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}
