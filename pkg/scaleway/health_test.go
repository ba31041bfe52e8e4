package scaleway

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serverOptions(t *testing.T, srv *httptest.Server) HealthOptions {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	opts := DefaultHealthOptions(host)
	opts.Port = port
	opts.Timeout = time.Second
	opts.Interval = time.Millisecond
	opts.MaxWait = time.Second
	return opts
}

func TestHealthOptions_URL(t *testing.T) {
	opts := DefaultHealthOptions("51.15.1.2")
	assert.Equal(t, "http://51.15.1.2:8000/health", opts.URL())
	assert.Equal(t, 3, opts.Retries)
	assert.Equal(t, 5*time.Second, opts.Interval)
	assert.Equal(t, 300*time.Second, opts.MaxWait)
}

func TestHealthChecker_Healthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res, err := NewHealthChecker(srv.Client()).Check(context.Background(), serverOptions(t, srv))
	require.NoError(t, err)
	assert.True(t, res.Healthy())
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "Status 200", res.Message)
}

func TestHealthChecker_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res, err := NewHealthChecker(srv.Client()).Check(context.Background(), serverOptions(t, srv))
	require.NoError(t, err)
	assert.True(t, res.Healthy())
	assert.Equal(t, 3, res.Attempts)
}

func TestHealthChecker_Unhealthy(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	opts := serverOptions(t, srv)
	opts.Retries = 2
	res, err := NewHealthChecker(srv.Client()).Check(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, HealthUnhealthy, res.Status)
	assert.Equal(t, "Expected 200, got 500", res.Message)
	assert.Equal(t, 500, res.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHealthChecker_ExpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	opts := serverOptions(t, srv)
	opts.ExpectedStatus = http.StatusNoContent
	res, err := NewHealthChecker(srv.Client()).Check(context.Background(), opts)
	require.NoError(t, err)
	assert.True(t, res.Healthy())
}

func TestHealthChecker_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	opts := serverOptions(t, srv)
	opts.Retries = 1
	opts.Timeout = 20 * time.Millisecond
	res, err := NewHealthChecker(srv.Client()).Check(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, HealthTimeout, res.Status)
}

func TestHealthChecker_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	opts := serverOptions(t, srv)
	srv.Close()

	opts.Retries = 1
	res, err := NewHealthChecker(nil).Check(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, HealthError, res.Status)
	assert.Contains(t, res.Message, "Connection failed")
}

func TestHealthChecker_ContinuousWaitsForHealthy(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 5 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	opts := serverOptions(t, srv)
	opts.Continuous = true
	res, err := NewHealthChecker(srv.Client()).Check(context.Background(), opts)
	require.NoError(t, err)
	assert.True(t, res.Healthy())
	assert.Equal(t, 5, res.Attempts)
}

func TestHealthChecker_ContinuousGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	opts := serverOptions(t, srv)
	opts.Continuous = true
	opts.MaxWait = 50 * time.Millisecond
	opts.Interval = 10 * time.Millisecond
	res, err := NewHealthChecker(srv.Client()).Check(context.Background(), opts)
	assert.ErrorIs(t, err, ErrHealthTimeout)
	assert.Equal(t, HealthUnhealthy, res.Status)
}
