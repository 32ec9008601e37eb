package resilience

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hive-corporation/vantage/internal/config"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func fastRetry(breaker bool, retries int) Config {
	return Config{
		EnableCircuitBreaker: breaker,
		MaxFailures:          3,
		CircuitTimeout:       time.Second,
		MaxRetries:           retries,
		InitialInterval:      10 * time.Millisecond,
		MaxInterval:          50 * time.Millisecond,
		Timeout:              5 * time.Second,
	}
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.ResilienceConfig{
		CircuitBreakerEnabled: true,
		MaxFailures:           4,
		CircuitTimeoutSecs:    30,
		MaxRetries:            2,
		InitialIntervalMs:     250,
		MaxIntervalMs:         4000,
		HTTPTimeoutSecs:       7,
	})

	assert.True(t, cfg.EnableCircuitBreaker)
	assert.Equal(t, uint32(4), cfg.MaxFailures)
	assert.Equal(t, 30*time.Second, cfg.CircuitTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.InitialInterval)
	assert.Equal(t, 4*time.Second, cfg.MaxInterval)
	assert.Equal(t, 7*time.Second, cfg.Timeout)

	client := NewClient("slack", cfg)
	assert.NotNil(t, client.breaker)
	assert.Equal(t, 7*time.Second, client.client.Timeout)
}

func TestClient_SuccessfulRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok": true}`)) //nolint:errcheck
	}))
	defer server.Close()

	client := NewClient("test", fastRetry(true, 3))
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClient_Retry5xxReplaysBody(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"text":"hello"}`, string(body))
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient("test", fastRetry(false, 3))
	req, err := http.NewRequest(http.MethodPost, server.URL, strings.NewReader(`{"text":"hello"}`))
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestClient_NoRetryOn4xx(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient("test", fastRetry(false, 3))
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	_, err := client.Do(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 400")
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient("test", fastRetry(true, 0))

	var openErrs int
	for i := 0; i < 5; i++ {
		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		if _, err := client.Do(req); errors.Is(err, ErrCircuitOpen) {
			openErrs++
		}
	}

	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	assert.Equal(t, 2, openErrs)
}

func TestClient_CircuitBreakerRecovers(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := fastRetry(true, 0)
	cfg.MaxFailures = 2
	cfg.CircuitTimeout = 200 * time.Millisecond
	client := NewClient("test", cfg)

	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		client.Do(req) //nolint:errcheck
	}

	time.Sleep(300 * time.Millisecond)
	failing.Store(false)

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
}

func TestClient_DisabledCircuitBreaker(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient("test", fastRetry(false, 0))
	for i := 0; i < 5; i++ {
		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		client.Do(req) //nolint:errcheck
	}
	assert.Equal(t, int32(5), atomic.LoadInt32(&attempts))
}

func TestClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient("test", fastRetry(false, 3))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadline exceeded")
}

func TestShouldRetry(t *testing.T) {
	client := NewClient("test", fastRetry(false, 0))

	tests := []struct {
		name       string
		err        error
		statusCode int
		want       bool
	}{
		{"500 error", nil, http.StatusInternalServerError, true},
		{"502 error", nil, http.StatusBadGateway, true},
		{"503 error", nil, http.StatusServiceUnavailable, true},
		{"504 error", nil, http.StatusGatewayTimeout, true},
		{"429 error", nil, http.StatusTooManyRequests, true},
		{"400 error", nil, http.StatusBadRequest, false},
		{"401 error", nil, http.StatusUnauthorized, false},
		{"404 error", nil, http.StatusNotFound, false},
		{"200 success", nil, http.StatusOK, false},
		{"context deadline", context.DeadlineExceeded, 0, true},
		{"connection refused", errors.New("dial tcp: connection refused"), 0, true},
		{"EOF error", errors.New("unexpected EOF"), 0, true},
		{"unknown error", errors.New("unknown error"), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			if tt.statusCode > 0 {
				resp = &http.Response{StatusCode: tt.statusCode}
			}
			assert.Equal(t, tt.want, client.shouldRetry(tt.err, resp))
		})
	}
}
