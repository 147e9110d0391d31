// Package health provides liveness and readiness checks.
//
// Each registered check runs in its own goroutine at a fixed interval and must
// fail failureThreshold times in a row before it counts as unhealthy, and then
// pass successThreshold times in a row to recover. A check registered with
// Degraded does not fail readiness; its failures are reported as "degraded".
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"go.uber.org/zap"
)

// CheckFunc reports the health of one dependency.
type CheckFunc func(ctx context.Context) error

// Status of a single check or of the whole service.
const (
	StatusOK        = "ok"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckOption configures a registered check.
type CheckOption func(*check)

// WithThresholds overrides the consecutive failure and success counts needed
// to flip the check state. Defaults are 3 and 1.
func WithThresholds(failures, successes int) CheckOption {
	return func(c *check) {
		if failures > 0 {
			c.failureThreshold = failures
		}
		if successes > 0 {
			c.successThreshold = successes
		}
	}
}

// Degraded marks a readiness check as non-critical.
func Degraded() CheckOption {
	return func(c *check) { c.degraded = true }
}

// check is the state of one registered check. run is only ever called from
// one goroutine, so the counters need no locking; healthy and lastErr are read
// by HTTP handlers.
type check struct {
	name             string
	timeout          time.Duration
	fn               CheckFunc
	failureThreshold int
	successThreshold int
	degraded         bool

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	consecutiveFails int
	consecutiveOK    int
}

func newCheck(name string, timeout time.Duration, fn CheckFunc, opts []CheckOption) *check {
	c := &check{
		name:             name,
		timeout:          timeout,
		fn:               fn,
		failureThreshold: 3,
		successThreshold: 1,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.healthy.Store(true)
	return c
}

// run executes the check once and reports whether its state flipped.
func (c *check) run(ctx context.Context) (flipped bool) {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.fn(checkCtx)
	c.lastErr.Store(&err)

	was := c.healthy.Load()
	if err != nil {
		c.consecutiveOK = 0
		c.consecutiveFails++
		if c.consecutiveFails >= c.failureThreshold {
			c.healthy.Store(false)
		}
	} else {
		c.consecutiveFails = 0
		c.consecutiveOK++
		if c.consecutiveOK >= c.successThreshold {
			c.healthy.Store(true)
		}
	}
	return was != c.healthy.Load()
}

func (c *check) failure() string {
	if p := c.lastErr.Load(); p != nil && *p != nil {
		return (*p).Error()
	}
	return "check is unhealthy"
}

// Health manages liveness and readiness checks.
type Health struct {
	ready  atomic.Bool
	logger *zap.Logger

	mu        sync.RWMutex
	liveness  []*check
	readiness []*check
	cancel    context.CancelFunc
}

// New creates a Health in the not-ready state. Call SetReady(true) once
// initialization is complete.
func New(logger *zap.Logger) *Health {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Health{logger: logger}
}

// AddLivenessCheck registers a check that decides whether the process should
// be restarted.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc, opts ...CheckOption) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newCheck(name, timeout, fn, opts))
}

// AddReadinessCheck registers a check that decides whether the service should
// receive traffic.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc, opts ...CheckOption) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newCheck(name, timeout, fn, opts))
}

// Start runs every registered check immediately and then every interval until
// Stop is called or ctx is done.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := make([]*check, 0, len(h.liveness)+len(h.readiness))
	checks = append(checks, h.liveness...)
	checks = append(checks, h.readiness...)
	h.mu.Unlock()

	for _, c := range checks {
		go h.loop(ctx, c, interval)
	}
}

func (h *Health) loop(ctx context.Context, c *check, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if c.run(ctx) && ctx.Err() == nil {
			if c.healthy.Load() {
				h.logger.Info("Health check recovered", zap.String("check", c.name))
			} else {
				h.logger.Warn("Health check failing",
					zap.String("check", c.name),
					zap.String("error", c.failure()),
				)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels the check goroutines. It is safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady sets the manual readiness flag; false during startup and drain.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is marked ready and every critical
// readiness check passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	return report(h.snapshot(&h.readiness)).Status != StatusUnhealthy
}

// Report is the health endpoint response body.
type Report struct {
	Status string
	Checks map[string]string
}

func (h *Health) snapshot(list *[]*check) []*check {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]*check(nil), (*list)...)
}

func report(checks []*check) Report {
	r := Report{Status: StatusOK, Checks: map[string]string{}}
	for _, c := range checks {
		if c.healthy.Load() {
			continue
		}
		r.Checks[c.name] = c.failure()
		if c.degraded {
			if r.Status == StatusOK {
				r.Status = StatusDegraded
			}
			continue
		}
		r.Status = StatusUnhealthy
	}
	return r
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, report(h.snapshot(&h.liveness)))
}

// ReadyEndpoint serves /readyz. Degraded checks are listed but keep 200.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	r := report(h.snapshot(&h.readiness))
	if !h.ready.Load() {
		r.Status = StatusUnhealthy
		r.Checks["_readiness"] = "service is not ready"
	}
	writeReport(w, r)
}

// Encode writes the report as JSON.
func (r Report) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("status")
	e.Str(r.Status)
	if len(r.Checks) > 0 {
		names := make([]string, 0, len(r.Checks))
		for name := range r.Checks {
			names = append(names, name)
		}
		sort.Strings(names)

		e.FieldStart("checks")
		e.ObjStart()
		for _, name := range names {
			e.FieldStart(name)
			e.Str(r.Checks[name])
		}
		e.ObjEnd()
	}
	e.ObjEnd()
}

func writeReport(w http.ResponseWriter, r Report) {
	status := http.StatusOK
	if r.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	var e jx.Encoder
	r.Encode(&e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
