// Package catalogapi is the client for the remote product catalog: HTTP GET
// plus JSON decode, with bounded exponential retry and typed errors.
package catalogapi

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/domain/product"
)

const maxBodySize = 16 << 20

var _ product.Catalog = (*Client)(nil)

// Config holds catalog client settings.
type Config struct {
	BaseURL string

	// RequestTimeout bounds a single attempt.
	RequestTimeout time.Duration

	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt; each further wait doubles.
	BaseDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	return c
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(lg *zap.Logger) Option {
	return func(c *Client) { c.logger = lg }
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer("storefront/catalogapi") }
}

// WithMeterProvider sets the meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Client) { c.meter = mp.Meter("storefront") }
}

// Client fetches catalog resources over HTTP.
type Client struct {
	http   *http.Client
	cfg    Config
	logger *zap.Logger
	tracer trace.Tracer
	meter  metric.Meter

	attempts metric.Int64Counter
}

// New creates a catalog client using httpClient for transport.
func New(httpClient *http.Client, cfg Config, opts ...Option) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		http:   httpClient,
		cfg:    cfg.withDefaults(),
		logger: zap.NewNop(),
		tracer: otel.GetTracerProvider().Tracer("storefront/catalogapi"),
		meter:  otel.GetMeterProvider().Meter("storefront"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if _, err := Products().URL(c.cfg.BaseURL); err != nil {
		return nil, err
	}

	attempts, err := c.meter.Int64Counter("storefront.catalog.attempts",
		metric.WithDescription("Catalog HTTP attempts by endpoint and outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create attempts counter")
	}
	c.attempts = attempts
	return c, nil
}

// FetchProducts returns the full product list.
func (c *Client) FetchProducts(ctx context.Context) ([]product.Product, error) {
	return Fetch[[]product.Product](ctx, c, Products())
}

// FetchProduct returns a single product. A 404 or empty body is reported as
// product.ErrNotFound in addition to the catalog error.
func (c *Client) FetchProduct(ctx context.Context, id int) (product.Product, error) {
	p, err := Fetch[product.Product](ctx, c, Product(id))
	if err != nil {
		if StatusCode(err) == http.StatusNotFound || errors.Is(err, ErrEmptyBody) {
			return product.Product{}, &product.NotFoundError{ID: id, Err: err}
		}
		return product.Product{}, err
	}
	return p, nil
}

// FetchCategories returns the category names.
func (c *Client) FetchCategories(ctx context.Context) ([]string, error) {
	return Fetch[[]string](ctx, c, Categories())
}

// FetchProductsByCategory returns the products of one category.
func (c *Client) FetchProductsByCategory(ctx context.Context, category string) ([]product.Product, error) {
	return Fetch[[]product.Product](ctx, c, ProductsByCategory(category))
}

// Ping performs one request without retry to check that the catalog is
// reachable.
func (c *Client) Ping(ctx context.Context) error {
	target, err := Categories().URL(c.cfg.BaseURL)
	if err != nil {
		return err
	}
	_, err = c.get(ctx, target)
	return err
}

// Fetch decodes ep into a T, retrying every failure up to MaxAttempts times
// with exponential backoff. The error of the final attempt is returned.
// Cancelling ctx stops the retry loop.
func Fetch[T any](ctx context.Context, c *Client, ep Endpoint) (T, error) {
	var zero T

	target, err := ep.URL(c.cfg.BaseURL)
	if err != nil {
		return zero, err
	}

	ctx, span := c.tracer.Start(ctx, "catalog.Fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("catalog.endpoint", ep.Name())),
	)
	defer span.End()

	var (
		result  T
		attempt int
	)
	op := func() error {
		attempt++
		v, err := fetchOnce[T](ctx, c, target)
		c.attempts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("endpoint", ep.Name()),
			attribute.String("outcome", outcome(err)),
		))
		if err != nil {
			return err
		}
		result = v
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Catalog request failed, retrying",
			zap.String("endpoint", ep.Name()),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(c.newBackOff(), ctx), notify); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Debug("Catalog request failed",
			zap.String("endpoint", ep.Name()),
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
		return zero, err
	}
	span.SetAttributes(attribute.Int("catalog.attempts", attempt))
	return result, nil
}

// newBackOff yields BaseDelay, 2*BaseDelay, ... for MaxAttempts-1 retries.
func (c *Client) newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.BaseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = c.cfg.BaseDelay << (c.cfg.MaxAttempts - 1)
	bo.MaxElapsedTime = 0
	bo.Reset()
	return backoff.WithMaxRetries(bo, uint64(c.cfg.MaxAttempts-1))
}

func fetchOnce[T any](ctx context.Context, c *Client, target string) (T, error) {
	var v T
	body, err := c.get(ctx, target)
	if err != nil {
		return v, err
	}
	if len(body) == 0 {
		return v, &DecodingError{Err: ErrEmptyBody}
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return v, &DecodingError{Err: err}
	}
	return v, nil
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidURL, "%s: %v", target, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &HTTPError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	return body, nil
}

// classifyTransportError keeps network-level failures as they are and marks
// protocol-level failures (no well-formed HTTP response) as ErrInvalidResponse.
func classifyTransportError(err error) error {
	inner := err
	var uerr *url.Error
	if errors.As(err, &uerr) {
		inner = uerr.Err
	}

	var nerr net.Error
	if errors.Is(inner, context.Canceled) || errors.Is(inner, context.DeadlineExceeded) || errors.As(inner, &nerr) {
		return errors.Wrap(err, "do request")
	}
	return &InvalidResponseError{Err: err}
}

func outcome(err error) string {
	var (
		herr *HTTPError
		derr *DecodingError
	)
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &herr):
		return "http_error"
	case errors.As(err, &derr):
		return "decoding_error"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid_response"
	default:
		return "network_error"
	}
}
