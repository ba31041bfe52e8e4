package scaleway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/claudine-dev/claudine/pkg/logger"
	"github.com/pkg/errors"
)

// Health statuses
const (
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
	HealthTimeout   = "timeout"
	HealthError     = "error"
)

// HealthOptions configures an HTTP health check
type HealthOptions struct {
	Host           string
	Port           int
	Path           string
	Timeout        time.Duration
	Retries        int
	Interval       time.Duration
	ExpectedStatus int
	InitialWait    time.Duration
	Continuous     bool
	MaxWait        time.Duration
}

// DefaultHealthOptions returns the defaults used by the health command
func DefaultHealthOptions(host string) HealthOptions {
	return HealthOptions{
		Host:           host,
		Port:           8000,
		Path:           "/health",
		Timeout:        10 * time.Second,
		Retries:        3,
		Interval:       5 * time.Second,
		ExpectedStatus: http.StatusOK,
		MaxWait:        300 * time.Second,
	}
}

// URL is the endpoint probed for opts
func (o HealthOptions) URL() string {
	return "http://" + net.JoinHostPort(o.Host, strconv.Itoa(o.Port)) + o.Path
}

// HealthResult is the outcome of one probe
type HealthResult struct {
	URL        string        `json:"url"`
	Status     string        `json:"status"`
	Message    string        `json:"message"`
	StatusCode int           `json:"status_code,omitempty"`
	Response   time.Duration `json:"-"`
	ResponseMS int64         `json:"response_time_ms,omitempty"`
	Attempts   int           `json:"attempts"`
}

// Healthy reports whether the probe succeeded
func (r HealthResult) Healthy() bool {
	return r.Status == HealthHealthy
}

// Probe issues a single GET against url
func Probe(ctx context.Context, client *http.Client, url string, timeout time.Duration, expected int) HealthResult {
	result := HealthResult{URL: url, Attempts: 1}
	if expected == 0 {
		expected = http.StatusOK
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		result.Status, result.Message = HealthError, fmt.Sprintf("Error: %v", err)
		return result
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			result.Status, result.Message = HealthTimeout, fmt.Sprintf("Request timed out after %s", timeout)
		} else {
			result.Status, result.Message = HealthError, fmt.Sprintf("Connection failed: %v", err)
		}
		return result
	}
	resp.Body.Close()

	result.Response = time.Since(start)
	result.ResponseMS = result.Response.Milliseconds()
	result.StatusCode = resp.StatusCode
	if resp.StatusCode == expected {
		result.Status, result.Message = HealthHealthy, fmt.Sprintf("Status %d", resp.StatusCode)
	} else {
		result.Status, result.Message = HealthUnhealthy, fmt.Sprintf("Expected %d, got %d", expected, resp.StatusCode)
	}
	return result
}

// HealthChecker probes HTTP health endpoints
type HealthChecker struct {
	client *http.Client
}

// NewHealthChecker creates a checker using client, or http.DefaultClient when nil
func NewHealthChecker(client *http.Client) *HealthChecker {
	if client == nil {
		client = http.DefaultClient
	}
	return &HealthChecker{client: client}
}

// Check runs the configured probe. In continuous mode it polls until the
// endpoint is healthy or MaxWait elapses, otherwise it retries up to
// Retries times.
func (h *HealthChecker) Check(ctx context.Context, opts HealthOptions) (HealthResult, error) {
	if opts.InitialWait > 0 {
		logger.G(ctx).WithField("wait", opts.InitialWait).Info("waiting before health checks")
		if err := sleepCtx(ctx, opts.InitialWait); err != nil {
			return HealthResult{URL: opts.URL(), Status: HealthError, Message: err.Error()}, err
		}
	}
	if opts.Continuous {
		return h.waitHealthy(ctx, opts)
	}
	return h.checkWithRetry(ctx, opts), nil
}

func (h *HealthChecker) checkWithRetry(ctx context.Context, opts HealthOptions) HealthResult {
	attempts := opts.Retries
	if attempts < 1 {
		attempts = 1
	}

	var last HealthResult
	n := 0
	_ = retry.Do(
		func() error {
			n++
			last = Probe(ctx, h.client, opts.URL(), opts.Timeout, opts.ExpectedStatus)
			if last.Healthy() {
				return nil
			}
			return errors.New(last.Message)
		},
		retry.Attempts(uint(attempts)),
		retry.Delay(opts.Interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(i uint, err error) {
			logger.G(ctx).WithField("attempt", fmt.Sprintf("%d/%d", i+1, attempts)).
				WithField("interval", opts.Interval).
				Warnf("health check failed: %v", err)
		}),
	)
	last.Attempts = n
	return last
}

// ErrHealthTimeout is returned when continuous mode gives up
var ErrHealthTimeout = errors.New("health check timed out")

func (h *HealthChecker) waitHealthy(ctx context.Context, opts HealthOptions) (HealthResult, error) {
	deadline := time.Now().Add(opts.MaxWait)
	var last HealthResult
	n := 0
	for time.Now().Before(deadline) {
		n++
		last = Probe(ctx, h.client, opts.URL(), opts.Timeout, opts.ExpectedStatus)
		last.Attempts = n
		if last.Healthy() {
			return last, nil
		}
		logger.G(ctx).WithField("last", last.Message).Debug("waiting for healthy status")
		if err := sleepCtx(ctx, opts.Interval); err != nil {
			return last, err
		}
	}
	return last, errors.Wrapf(ErrHealthTimeout, "not healthy after %s", opts.MaxWait)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
