package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

const maxBackoff = 2 * time.Second

// New returns a client for calls to the billing API and the identity
// provider. Both are few hosts with steady traffic, so idle connections are
// kept per host.
func New(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			ForceAttemptHTTP2:   true,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     60 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
		},
	}
}

// StatusError is a non-2xx answer from an upstream service.
type StatusError struct {
	Service string
	Code    int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s responded %d", e.Service, e.Code)
}

// Retry calls fn up to attempts times, doubling the pause from baseDelay
// between calls. Errors that IsRetriable rejects end the loop at once.
func Retry(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error) error {
	err := fn()
	for n := 1; n < attempts && err != nil && IsRetriable(err); n++ {
		t := time.NewTimer(backoff(baseDelay, n))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		err = fn()
	}
	return err
}

// backoff is the pause before retry n (1-based).
func backoff(base time.Duration, n int) time.Duration {
	d := base << (n - 1)
	if d <= 0 || d > maxBackoff {
		return maxBackoff
	}
	return d
}

// IsRetriable reports 5xx and 429 answers, network failures and deadlines.
func IsRetriable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= http.StatusInternalServerError || se.Code == http.StatusTooManyRequests
	}
	var ne net.Error
	return errors.As(err, &ne) || errors.Is(err, context.DeadlineExceeded)
}
