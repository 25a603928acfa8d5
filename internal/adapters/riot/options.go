package riot

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/champstock/pkg/logger"
)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the regional routing host.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient replaces the HTTP client. One client is shared by every scan of a cycle.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithRequestTimeout sets the per-request timeout of the default HTTP client.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit sets client-side pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithRetryPolicy bounds the 429 handling: at most maxRetries waits, the first one
// defaultWait when the provider sends no Retry-After, doubling up to maxWait.
func WithRetryPolicy(maxRetries int, defaultWait, maxWait time.Duration) Option {
	return func(c *Client) {
		if maxRetries >= 0 {
			c.maxRetries = maxRetries
		}
		if defaultWait > 0 {
			c.defaultRetryAfter = defaultWait
		}
		if maxWait > 0 {
			c.maxBackoff = maxWait
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}
