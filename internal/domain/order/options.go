package order

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/tulip-tech/order-service/internal/domain/order"

	defaultPayerLabel = "Me"
	defaultWorkers    = 16
)

type options struct {
	tp         trace.TracerProvider
	mp         metric.MeterProvider
	now        func() time.Time
	payerLabel string
	workers    int
}

func newOptions(opts []Option) options {
	o := options{
		tp:         otel.GetTracerProvider(),
		mp:         otel.GetMeterProvider(),
		now:        time.Now,
		payerLabel: defaultPayerLabel,
		workers:    defaultWorkers,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a Service or an Aggregator.
type Option func(*options)

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tp = tp }
}

// WithMeterProvider sets the meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.mp = mp }
}

// WithClock overrides the creation timestamp source of placed orders.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithPayerLabel sets the payer label sent with every charge.
func WithPayerLabel(label string) Option {
	return func(o *options) {
		if label != "" {
			o.payerLabel = label
		}
	}
}

// WithWorkers bounds the number of concurrent enrichment calls of an
// Aggregator.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

func newCounter(mp metric.MeterProvider, name, description string) metric.Int64Counter {
	c, err := mp.Meter(instrumentationName).Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}
