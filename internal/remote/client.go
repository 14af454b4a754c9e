// Package remote implements HTTP clients for the product and payment
// services.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/tulip-tech/order-service/internal/domain/order"
)

// maxErrorBody caps how much of a failed response is read for decoding.
const maxErrorBody = 64 << 10

// Config holds connection settings for one remote service.
type Config struct {
	URL     string        `usage:"Base URL of the service"`
	Timeout time.Duration `default:"5s" usage:"Per-call timeout"`
}

// StatusError is a 5xx, 408 or 429 response. It is transient and counts against the
// breaker of the calling dependency.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("status %d", e.Status)
}

type options struct {
	tp        trace.TracerProvider
	mp        metric.MeterProvider
	transport http.RoundTripper
}

// Option configures a client.
type Option func(*options)

// WithTracerProvider sets the tracer provider of the HTTP transport.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tp = tp }
}

// WithMeterProvider sets the meter provider of the HTTP transport.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.mp = mp }
}

// WithTransport replaces the base round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// client is the JSON-over-HTTP core shared by the service clients.
type client struct {
	base *url.URL
	http *http.Client
}

func newClient(name string, cfg Config, opts []Option) (*client, error) {
	if cfg.URL == "" {
		return nil, errors.Errorf("%s: empty url", name)
	}
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: parse url", name)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("%s: url %q must be absolute", name, cfg.URL)
	}

	o := options{transport: http.DefaultTransport}
	for _, opt := range opts {
		opt(&o)
	}
	var otelOpts []otelhttp.Option
	if o.tp != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(o.tp))
	}
	if o.mp != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(o.mp))
	}
	otelOpts = append(otelOpts, otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
		return name + " " + r.Method
	}))

	return &client{
		base: base,
		http: &http.Client{
			Transport: otelhttp.NewTransport(o.transport, otelOpts...),
			Timeout:   cfg.Timeout,
		},
	}, nil
}

// do sends a request and decodes a 2xx body with decode, if set. Non-2xx
// responses become *order.RejectionError (4xx) or *StatusError.
func (c *client) do(
	ctx context.Context,
	method, path string,
	query url.Values,
	body []byte,
	decode func(d *jx.Decoder) error,
) error {
	u := c.base.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, u.Path)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeFailure(resp)
	}
	if decode == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response")
	}
	if err := decode(jx.DecodeBytes(data)); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

// isRejection reports whether status is a client error the caller cannot
// fix by retrying. Timeouts and throttling stay transient.
func isRejection(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return status >= 400 && status < 500
}

// decodeFailure reads a {"errorMessage", "errorCode"} body. Unparseable
// bodies still produce an error with the status code.
func decodeFailure(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var code, message string
	if len(data) > 0 {
		_ = jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
			switch string(key) {
			case "errorMessage":
				v, err := d.Str()
				message = v
				return err
			case "errorCode":
				v, err := d.Str()
				code = v
				return err
			default:
				return d.Skip()
			}
		})
	}

	if isRejection(resp.StatusCode) {
		return &order.RejectionError{
			Status:  resp.StatusCode,
			Code:    code,
			Message: message,
		}
	}
	return &StatusError{
		Status:  resp.StatusCode,
		Code:    code,
		Message: message,
	}
}
