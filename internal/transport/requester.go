// Package transport wraps resty with the rate limiting, timeout and retry policy
// shared by every outbound REST client.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options configures a Requester.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RateLimit  float64 // requests per second; <= 0 disables limiting
	Burst      int
	MaxRetries int
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// StatusError is returned when the remote side answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %s: %s", e.Status, e.Body)
}

// Transient reports whether retrying the same request may succeed.
func (e *StatusError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusTeapot || e.StatusCode >= 500
}

// IsTransient classifies an error returned by Do or DoWithRetry.
// Network failures and throttling/server statuses are transient; context
// cancellation and client errors are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}
	return true
}

// Requester executes resty requests with rate limiting and optional retries.
type Requester struct {
	client     *resty.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	maxRetries int
	backoff    *backoff.Backoff
}

// New creates a Requester for a single base URL.
func New(opts Options, logger *zap.Logger) *Requester {
	client := resty.New().SetBaseURL(opts.BaseURL)
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	minBackoff, maxBackoff := opts.MinBackoff, opts.MaxBackoff
	if minBackoff <= 0 {
		minBackoff = time.Second
	}
	if maxBackoff < minBackoff {
		maxBackoff = 8 * minBackoff
	}

	return &Requester{
		client:     client,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
		maxRetries: maxRetries,
		backoff:    &backoff.Backoff{Min: minBackoff, Max: maxBackoff, Factor: 2},
	}
}

// R starts a new request on the underlying client.
func (r *Requester) R() *resty.Request {
	return r.client.R()
}

// BaseURL returns the configured base URL.
func (r *Requester) BaseURL() string {
	return r.client.BaseURL
}

// Do executes the request exactly once. Used for non-idempotent calls such as order placement.
func (r *Requester) Do(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	r.logger.Debug("Executing request", zap.String("method", method), zap.String("url", r.client.BaseURL+url))
	resp, err := req.SetContext(ctx).Execute(method, url)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	if resp.IsError() {
		se := &StatusError{StatusCode: resp.StatusCode(), Status: resp.Status(), Body: resp.String()}
		if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil {
			se.RetryAfter = time.Duration(seconds) * time.Second
		}
		return nil, se
	}
	return resp, nil
}

// DoWithRetry executes the request, retrying transient failures with exponential backoff.
func (r *Requester) DoWithRetry(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var err error
	for i := 0; i < r.maxRetries; i++ {
		var resp *resty.Response
		resp, err = r.Do(ctx, method, url, req)
		if err == nil {
			return resp, nil
		}
		if !IsTransient(err) {
			return nil, err
		}
		if i == r.maxRetries-1 {
			break
		}

		retryAfter := r.backoff.ForAttempt(float64(i))
		var se *StatusError
		if errors.As(err, &se) && se.RetryAfter > 0 {
			retryAfter = se.RetryAfter
		}

		r.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", r.maxRetries, err)
}
