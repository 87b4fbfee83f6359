package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Counter is a monotonic int64 counter that never fails to construct
type Counter struct {
	c metric.Int64Counter
}

// NewCounter registers a counter on the global meter provider. Registration
// errors fall back to a counter that drops measurements.
func NewCounter(meterName, name, description string) *Counter {
	c, err := otel.Meter(meterName).Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return &Counter{}
	}
	return &Counter{c: c}
}

// Add records n with attributes
func (c *Counter) Add(ctx context.Context, n int64, attrs ...attribute.KeyValue) {
	if c == nil || c.c == nil {
		return
	}
	c.c.Add(ctx, n, metric.WithAttributes(attrs...))
}

// Inc records 1 with attributes
func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, attrs...)
}
