package resilience

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rotisserie/eris"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/hive-corporation/vantage/internal/config"
	"github.com/hive-corporation/vantage/internal/metrics"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Client wraps an HTTP client with circuit breaker and retry logic.
// One Client should be used per outbound target so breakers trip
// independently.
type Client struct {
	target  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	config  Config
}

// Config holds circuit breaker and retry settings.
type Config struct {
	// Circuit breaker settings
	EnableCircuitBreaker bool
	MaxFailures          uint32
	CircuitTimeout       time.Duration

	// Retry settings
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration

	Timeout time.Duration
}

// FromConfig converts the resilience section of the application config.
func FromConfig(c config.ResilienceConfig) Config {
	return Config{
		EnableCircuitBreaker: c.CircuitBreakerEnabled,
		MaxFailures:          uint32(c.MaxFailures),
		CircuitTimeout:       time.Duration(c.CircuitTimeoutSecs) * time.Second,
		MaxRetries:           c.MaxRetries,
		InitialInterval:      time.Duration(c.InitialIntervalMs) * time.Millisecond,
		MaxInterval:          time.Duration(c.MaxIntervalMs) * time.Millisecond,
		Timeout:              time.Duration(c.HTTPTimeoutSecs) * time.Second,
	}
}

// NewClient creates a resilient HTTP client for the named target
// ("slack", a feed name, ...). The target labels metrics and logs.
func NewClient(target string, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	var breaker *gobreaker.CircuitBreaker
	if cfg.EnableCircuitBreaker {
		maxFailures := cfg.MaxFailures
		if maxFailures == 0 {
			maxFailures = 5
		}
		breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        target,
			MaxRequests: 1,
			Interval:    0, // counts reset only on state change
			Timeout:     cfg.CircuitTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				zap.L().Warn("circuit breaker state changed",
					zap.String("target", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
				if to == gobreaker.StateOpen {
					metrics.RecordOutboundError(name, "circuit_open")
				}
			},
		})
	}

	return &Client{
		target:  target,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		config:  cfg,
	}
}

// Do executes req with retries, through the circuit breaker when enabled.
// Responses with status >= 400 are returned as errors and their bodies closed.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.doWithRetry(req)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doWithRetry(req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.RecordOutboundError(c.target, "circuit_open")
			return nil, eris.Wrapf(ErrCircuitOpen, "resilience: %s", c.target)
		}
		return nil, err
	}
	return result.(*http.Response), nil
}

func (c *Client) doWithRetry(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, eris.Wrap(err, "resilience: read request body")
		}
	}

	var resp *http.Response
	var lastErr error

	operation := func() error {
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		var err error
		resp, err = c.client.Do(req)
		if err != nil {
			lastErr = err
			metrics.RecordOutboundError(c.target, "connection")
			if c.shouldRetry(err, nil) {
				return err
			}
			return backoff.Permanent(err)
		}

		if resp.StatusCode >= 400 {
			lastErr = eris.Errorf("resilience: %s returned HTTP %d", c.target, resp.StatusCode)
			c.recordErrorFromResponse(resp)
			resp.Body.Close()
			if c.shouldRetry(nil, resp) {
				return lastErr
			}
			return backoff.Permanent(lastErr)
		}
		return nil
	}

	var policy backoff.BackOff = &backoff.StopBackOff{}
	if c.config.MaxRetries > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = c.config.InitialInterval
		exp.MaxInterval = c.config.MaxInterval
		exp.Multiplier = 2.0
		exp.MaxElapsedTime = 0 // bounded by MaxRetries only
		policy = backoff.WithMaxRetries(exp, uint64(c.config.MaxRetries))
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, req.Context())); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		if ctxErr := req.Context().Err(); ctxErr != nil && !errors.Is(lastErr, ctxErr) {
			return nil, eris.Wrapf(ctxErr, "resilience: %s request cancelled", c.target)
		}
		return nil, eris.Wrapf(lastErr, "resilience: %s request failed", c.target)
	}
	return resp, nil
}

// shouldRetry reports whether an error or response is transient.
func (c *Client) shouldRetry(err error, resp *http.Response) bool {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return true
		}
		msg := err.Error()
		return strings.Contains(msg, "connection refused") ||
			strings.Contains(msg, "connection reset") ||
			strings.Contains(msg, "EOF")
	}

	if resp != nil {
		switch resp.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
			http.StatusBadGateway,
			http.StatusInternalServerError:
			return true
		}
	}
	return false
}

func (c *Client) recordErrorFromResponse(resp *http.Response) {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		metrics.RecordOutboundError(c.target, "auth")
	case http.StatusTooManyRequests:
		metrics.RecordOutboundError(c.target, "rate_limit")
	case http.StatusRequestTimeout:
		metrics.RecordOutboundError(c.target, "timeout")
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		metrics.RecordOutboundError(c.target, "server_error")
	default:
		metrics.RecordOutboundError(c.target, "http_error")
	}
}
