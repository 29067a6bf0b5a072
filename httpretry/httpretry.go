// Package httpretry sends HTTP requests to engine APIs, retrying transient
// failures with exponential backoff.
package httpretry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"
)

const (
	DefaultRetries = 3
	DefaultBackoff = time.Second
)

// StatusError is returned for non-2xx responses that are not retried or
// that exhausted all retries.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	HTTP *http.Client
	// Retries is the number of extra attempts after the first one.
	Retries int
	// Backoff is the delay before the first retry; it doubles after that.
	Backoff time.Duration
	Logger  *slog.Logger
}

// Do sends the request built by newReq and returns the response body of the
// first 2xx response. newReq is called once per attempt since request bodies
// cannot be replayed. Network errors and 5xx responses are retried.
func (c Client) Do(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	retries := c.Retries
	if retries < 0 {
		retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			if c.Logger != nil {
				c.Logger.Warn("retrying request", "attempt", attempt, "backoff", delay, "error", lastErr)
			}
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
			case <-time.After(delay):
			}
		}

		body, retry, err := c.once(ctx, hc, newReq)
		if err == nil {
			return body, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("all %d retries exhausted: %w", retries, lastErr)
}

func (c Client) once(ctx context.Context, hc *http.Client, newReq func(ctx context.Context) (*http.Request, error)) ([]byte, bool, error) {
	req, err := newReq(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	resp, err := hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, err
		}
		return nil, true, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode >= 500, &StatusError{StatusCode: resp.StatusCode, Body: truncate(body, 200)}
	}
	return body, false, nil
}

// backoff returns base * 2^(attempt-1) plus up to 25% jitter.
func (c Client) backoff(attempt int) time.Duration {
	delay := c.Backoff
	if delay <= 0 {
		delay = DefaultBackoff
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}

// IsStatus reports whether err carries an HTTP response with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
