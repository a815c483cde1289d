package jira

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	backoffBase = 2 * time.Second
	backoffCap  = 10 * time.Second
	maxAttempts = 3
)

// RetryTransport wraps an HTTP transport with bearer-token authentication and
// retry behavior for transient failures. A 429 response is retried no earlier
// than the server-hinted Retry-After; 5xx responses use exponential backoff
// (2s, 4s, 8s, capped at 10s).
type RetryTransport struct {
	Token string
	Base  http.RoundTripper

	// sleep is replaceable for tests.
	sleep func(time.Duration)
}

// NewRetryTransport creates a transport with auth and retry handling.
func NewRetryTransport(token string, base http.RoundTripper) *RetryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &RetryTransport{
		Token: token,
		Base:  base,
		sleep: time.Sleep,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			t.sleep(t.delayFor(resp, attempt))
		}

		clone := req.Clone(req.Context())
		clone.Header.Set("Authorization", "Bearer "+t.Token)

		resp, err = t.Base.RoundTrip(clone)
		if err != nil {
			// Network-level failure: retry with backoff.
			continue
		}
		if !retryable(resp.StatusCode) {
			return resp, nil
		}
		if attempt < maxAttempts-1 {
			drain(resp)
		}
	}

	if err != nil {
		return nil, &ClientError{
			Type:    "transport_error",
			Message: fmt.Sprintf("request failed after %d attempts", maxAttempts),
			Err:     err,
			Context: req.URL.Path,
		}
	}
	return resp, nil
}

// delayFor computes the wait before the given attempt. Retry-After from the
// previous response wins over the computed backoff.
func (t *RetryTransport) delayFor(prev *http.Response, attempt int) time.Duration {
	if prev != nil && prev.StatusCode == http.StatusTooManyRequests {
		if ra := prev.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	delay := backoffBase << (attempt - 1)
	if delay > backoffCap {
		delay = backoffCap
	}
	return delay
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func drain(resp *http.Response) {
	if resp.Body != nil {
		_ = resp.Body.Close()
	}
}
