package bench

import (
	"net/http"
	"time"
)

// HTTPClientConfig contains HTTP client configuration.
type HTTPClientConfig struct {
	// MaxIdleConns controls the maximum number of idle connections
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections per host.
	// It should be at least the highest stage concurrency so that workers
	// keep their connections between requests.
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits the total connections per host (0 = unlimited)
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// DisableKeepAlives disables HTTP keep-alives
	DisableKeepAlives bool

	// DisableCompression disables automatic decompression
	DisableCompression bool
}

// DefaultHTTPClientConfig returns sensible defaults for load testing.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     0,
		IdleConnTimeout:     90 * time.Second,
		DisableKeepAlives:   false,
		DisableCompression:  false,
	}
}

// ForConcurrency returns a copy sized for the given worker count.
func (c HTTPClientConfig) ForConcurrency(workers int) HTTPClientConfig {
	if workers > c.MaxIdleConnsPerHost {
		c.MaxIdleConnsPerHost = workers
	}
	if c.MaxIdleConns < c.MaxIdleConnsPerHost {
		c.MaxIdleConns = c.MaxIdleConnsPerHost
	}
	return c
}

// newHTTPClient creates an HTTP client with the configured settings.
//
// The client has no overall timeout: each request carries its own deadline
// derived from the target timeout.
func newHTTPClient(cfg HTTPClientConfig) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
		DisableCompression:  cfg.DisableCompression,
	}

	return &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// Redirects are reported as non-2xx responses, never followed.
			return http.ErrUseLastResponse
		},
	}
}
