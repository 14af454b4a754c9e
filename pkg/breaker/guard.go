// Package breaker protects calls to a single downstream dependency with a
// circuit breaker and routes every skipped or failed call through a fallback.
//
// A Guard starts CLOSED. While closed, call outcomes are counted over a
// window; once at least MinimumCalls were observed and the failure ratio
// reaches FailureRateThreshold the guard trips to OPEN. After
// OpenStateDuration it admits up to HalfOpenTrialCalls trial calls
// (HALF_OPEN): that many consecutive successes close it, any failure opens it
// again. Calls canceled by the caller are neither successes nor failures.
// There is no terminal state.
package breaker

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/tulip-tech/order-service/pkg/breaker"

// State is the breaker state of a single dependency.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

func (s State) String() string { return string(s) }

// Errors passed to the fallback when the operation was not invoked at all.
var (
	// ErrOpen means the breaker is open and the call was skipped.
	ErrOpen = gobreaker.ErrOpenState
	// ErrTooManyTrials means the breaker is half-open and all trial slots
	// are already taken.
	ErrTooManyTrials = gobreaker.ErrTooManyRequests
)

// Operation is a guarded remote call.
type Operation = func(ctx context.Context) error

// Fallback receives the error that triggered it and returns the error the
// caller should see.
type Fallback = func(err error) error

// Config holds the tunables of a single guard.
type Config struct {
	FailureRateThreshold float64       `default:"0.5" usage:"Failure ratio (0..1] within the window that opens the breaker"`
	MinimumCalls         uint32        `default:"10"  usage:"Calls observed in the window before the failure ratio is evaluated"`
	OpenStateDuration    time.Duration `default:"30s" usage:"Time the breaker stays open before admitting trial calls"`
	HalfOpenTrialCalls   uint32        `default:"3"   usage:"Consecutive successful trial calls required to close the breaker"`
	Window               time.Duration `default:"60s" usage:"Window over which closed-state outcomes are counted (0 keeps counting forever)"`
}

// Validate reports whether the configuration can drive a breaker.
func (c Config) Validate() error {
	switch {
	case c.FailureRateThreshold <= 0 || c.FailureRateThreshold > 1:
		return errors.Errorf("failure rate threshold %v must be in (0, 1]", c.FailureRateThreshold)
	case c.MinimumCalls == 0:
		return errors.New("minimum calls must be positive")
	case c.OpenStateDuration <= 0:
		return errors.New("open state duration must be positive")
	case c.HalfOpenTrialCalls == 0:
		return errors.New("half-open trial calls must be positive")
	case c.Window < 0:
		return errors.New("window must not be negative")
	}
	return nil
}

// Counts is a snapshot of the outcomes observed in the current window or
// half-open generation. Requests includes calls still in flight and calls
// that ended in Canceled.
type Counts struct {
	Requests             uint32
	Successes            uint32
	Failures             uint32
	Canceled             uint32
	ConsecutiveFailures  uint32
	ConsecutiveSuccesses uint32
}

type options struct {
	lg *zap.Logger
	mp metric.MeterProvider
}

// Option configures a Guard.
type Option func(*options)

// WithLogger sets the logger used for state transitions.
func WithLogger(lg *zap.Logger) Option {
	return func(o *options) { o.lg = lg }
}

// WithMeterProvider sets the meter provider for transition and rejection
// counters. The global provider is used by default.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.mp = mp }
}

// Guard wraps calls to one dependency. It is safe for concurrent use; each
// Guard owns its state, so guards of different dependencies never contend.
type Guard struct {
	name       string
	cb         *gobreaker.CircuitBreaker[struct{}]
	rejections metric.Int64Counter
	attrs      metric.MeasurementOption
}

// New creates a CLOSED guard for the named dependency.
func New(name string, cfg Config, opts ...Option) (*Guard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "breaker %s", name)
	}

	o := options{
		lg: zap.NewNop(),
		mp: otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	meter := o.mp.Meter(instrumentationName)
	transitions, err := meter.Int64Counter("breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "transitions counter")
	}
	rejections, err := meter.Int64Counter("breaker.rejections",
		metric.WithDescription("Calls skipped because the breaker was open or saturated"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "rejections counter")
	}

	g := &Guard{
		name:       name,
		rejections: rejections,
		attrs:      metric.WithAttributes(attribute.String("dependency", name)),
	}
	g.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:         name,
		MaxRequests:  cfg.HalfOpenTrialCalls,
		Interval:     cfg.Window,
		Timeout:      cfg.OpenStateDuration,
		ReadyToTrip:  readyToTrip(cfg),
		IsSuccessful: isSuccessful,
		IsExcluded:   isExcluded,
		OnStateChange: func(name string, from, to gobreaker.State) {
			o.lg.Warn("Circuit breaker state changed",
				zap.String("dependency", name),
				zap.Stringer("from", stateOf(from)),
				zap.Stringer("to", stateOf(to)),
			)
			transitions.Add(context.Background(), 1, metric.WithAttributes(
				attribute.String("dependency", name),
				attribute.String("from", stateOf(from).String()),
				attribute.String("to", stateOf(to).String()),
			))
		},
	})
	return g, nil
}

// Execute runs op unless the breaker is open. When op is skipped or fails,
// fallback is invoked with the triggering error and its result is returned.
// A fallback that returns nil does not turn a failure into a success: the
// triggering error is returned instead.
func (g *Guard) Execute(ctx context.Context, op Operation, fallback Fallback) error {
	_, err := g.cb.Execute(func() (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrOpen) || errors.Is(err, ErrTooManyTrials) {
		g.rejections.Add(ctx, 1, g.attrs)
	}
	if fallback == nil {
		return err
	}
	if ferr := fallback(err); ferr != nil {
		return ferr
	}
	return err
}

// Name returns the dependency name.
func (g *Guard) Name() string { return g.name }

// State returns the current state, applying any elapsed open timeout.
func (g *Guard) State() State { return stateOf(g.cb.State()) }

// Counts returns the outcome counters of the current window.
func (g *Guard) Counts() Counts {
	c := g.cb.Counts()
	return Counts{
		Requests:             c.Requests,
		Successes:            c.TotalSuccesses,
		Failures:             c.TotalFailures,
		Canceled:             c.TotalExclusions,
		ConsecutiveFailures:  c.ConsecutiveFailures,
		ConsecutiveSuccesses: c.ConsecutiveSuccesses,
	}
}

func readyToTrip(cfg Config) func(gobreaker.Counts) bool {
	return func(c gobreaker.Counts) bool {
		observed := c.TotalSuccesses + c.TotalFailures
		if observed < cfg.MinimumCalls {
			return false
		}
		return float64(c.TotalFailures)/float64(observed) >= cfg.FailureRateThreshold
	}
}

func isSuccessful(err error) bool {
	return err == nil
}

// isExcluded keeps calls canceled by the caller out of the outcome counts.
// In HALF_OPEN the trial slot is released without deciding the transition.
func isExcluded(err error) bool {
	return errors.Is(err, context.Canceled)
}

func stateOf(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
