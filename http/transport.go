package http

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// DefaultTimeout is the default overall timeout for clients built on Transport.
const DefaultTimeout = 5 * time.Minute

// DefaultMaxRetries is the default number of attempts per request.
const DefaultMaxRetries = 3

// DefaultRetryWait is the default initial wait between attempts.
const DefaultRetryWait = 1 * time.Second

// maxRetryWait caps both the exponential backoff and Retry-After.
const maxRetryWait = time.Minute

// TransportConfig holds configuration for Transport.
type TransportConfig struct {
	// Base performs the actual round trips. Defaults to http.DefaultTransport.
	Base http.RoundTripper

	// MaxRetries is the total number of attempts, including the first.
	MaxRetries int

	// RetryWait is the wait before the second attempt; it doubles after
	// each further failure.
	RetryWait time.Duration

	// Headers are set on every outgoing request, replacing existing values.
	Headers map[string]string

	Logger *slog.Logger

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Transport is an http.RoundTripper that sets default headers and retries
// transient failures (network errors, 429 and 5xx) with exponential
// backoff, honoring Retry-After.
type Transport struct {
	base       http.RoundTripper
	maxRetries int
	retryWait  time.Duration
	headers    map[string]string
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewTransport creates a Transport with the given configuration.
func NewTransport(cfg TransportConfig) *Transport {
	t := &Transport{
		base:       cfg.Base,
		maxRetries: cfg.MaxRetries,
		retryWait:  cfg.RetryWait,
		headers:    cfg.Headers,
		logger:     cfg.Logger,
		sleep:      cfg.sleep,
	}

	if t.base == nil {
		t.base = http.DefaultTransport
	}
	if t.maxRetries <= 0 {
		t.maxRetries = DefaultMaxRetries
	}
	if t.retryWait <= 0 {
		t.retryWait = DefaultRetryWait
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	if t.sleep == nil {
		t.sleep = sleepContext
	}

	return t
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	// A body that cannot be rewound gets exactly one attempt.
	attempts := t.maxRetries
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		attempts = 1
	}

	var lastErr error
	for attempt := range attempts {
		attemptReq, err := t.prepare(req, attempt)
		if err != nil {
			return nil, err
		}

		resp, err := t.base.RoundTrip(attemptReq)
		last := attempt == attempts-1
		if err != nil {
			lastErr = err
			if last || ctx.Err() != nil {
				break
			}
			wait := t.backoff(attempt)
			t.logger.Debug("retrying request after transport error",
				"url", req.URL.Redacted(), "attempt", attempt+1, "wait", wait, "error", err)
			if err := t.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		if !shouldRetry(resp) || last {
			return resp, nil
		}

		wait := t.getRetryWait(resp, attempt)
		drain(resp.Body)
		t.logger.Debug("retrying request after status",
			"url", req.URL.Redacted(), "status", resp.StatusCode, "attempt", attempt+1, "wait", wait)
		if err := t.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

// prepare clones the request for one attempt so the caller's request is
// never mutated.
func (t *Transport) prepare(req *http.Request, attempt int) (*http.Request, error) {
	out := req.Clone(req.Context())
	if attempt > 0 && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewind request body: %w", err)
		}
		out.Body = body
	}
	for k, v := range t.headers {
		out.Header.Set(k, v)
	}
	return out, nil
}

// getRetryWait calculates the wait time for a retry.
func (t *Transport) getRetryWait(resp *http.Response, attempt int) time.Duration {
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds >= 0 {
			return min(time.Duration(seconds)*time.Second, maxRetryWait)
		}
	}
	return t.backoff(attempt)
}

func (t *Transport) backoff(attempt int) time.Duration {
	return min(t.retryWait*time.Duration(1<<attempt), maxRetryWait)
}

// shouldRetry reports whether a response is worth another attempt.
func shouldRetry(resp *http.Response) bool {
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
