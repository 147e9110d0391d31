// Package httpclient provides the outbound HTTP client factory shared by the
// catalog client and the image loader.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Config holds configuration options for creating HTTP clients.
type Config struct {
	// Timeout bounds a whole request including reading the body.
	Timeout time.Duration

	// DialTimeout bounds a single connection attempt.
	DialTimeout time.Duration

	// WaitForConnectivity re-dials while the network is unreachable or the
	// peer refuses connections, until the request context is done.
	WaitForConnectivity bool

	// RedialInterval is the pause between dials while waiting for connectivity.
	RedialInterval time.Duration

	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	TLSHandshakeTimeout time.Duration

	// Tracer and meter providers for transport instrumentation; nil uses the
	// global providers.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// DefaultConfig returns a Config with a 60s resource timeout that waits for
// connectivity.
func DefaultConfig() Config {
	return Config{
		Timeout:             60 * time.Second,
		DialTimeout:         10 * time.Second,
		WaitForConnectivity: true,
		RedialInterval:      500 * time.Millisecond,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// New creates an instrumented HTTP client.
func New(cfg Config) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	dial := dialer.DialContext
	if cfg.WaitForConnectivity {
		dial = waitingDialer(dialer.DialContext, cfg.RedialInterval)
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dial,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: time.Second,
	}

	var opts []otelhttp.Option
	if cfg.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}
	if cfg.MeterProvider != nil {
		opts = append(opts, otelhttp.WithMeterProvider(cfg.MeterProvider))
	}

	return &http.Client{
		Transport: otelhttp.NewTransport(transport, opts...),
		Timeout:   cfg.Timeout,
	}
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

func waitingDialer(dial dialFunc, interval time.Duration) dialFunc {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		for {
			conn, err := dial(ctx, network, addr)
			if err == nil || !isOffline(err) {
				return conn, err
			}
			select {
			case <-ctx.Done():
				return nil, err
			case <-time.After(interval):
			}
		}
	}
}

// isOffline reports whether a dial error means "no route right now" rather
// than a hard failure.
func isOffline(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETDOWN)
}
