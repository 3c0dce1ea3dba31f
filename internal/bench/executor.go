package bench

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/wesleyorama2/lbbench/internal/config"
)

// Executor issues a single request against a target.
//
// Execute never fails: every failure mode is reported as an Outcome so a
// single bad request cannot abort a run.
type Executor interface {
	Execute(ctx context.Context, target config.Target) Outcome
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, target config.Target) Outcome

// Execute calls f(ctx, target).
func (f ExecutorFunc) Execute(ctx context.Context, target config.Target) Outcome {
	return f(ctx, target)
}

// HTTPExecutor executes requests with a shared HTTP client.
type HTTPExecutor struct {
	client *http.Client
}

// NewHTTPExecutor creates an executor with its own connection pool.
func NewHTTPExecutor(cfg HTTPClientConfig) *HTTPExecutor {
	return &HTTPExecutor{client: newHTTPClient(cfg)}
}

// Execute issues target.Method against target.URL(), bounded by
// target.Timeout, and classifies the result.
//
// Latency runs from just before the request is sent until the response body
// has been fully drained, or until the failure.
func (e *HTTPExecutor) Execute(ctx context.Context, target config.Target) Outcome {
	startTime := time.Now()

	outcome := Outcome{
		Target:    target.Name,
		StartedAt: startTime,
	}

	if target.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, target.Timeout)
		defer cancel()
	}

	req, err := buildRequest(ctx, target)
	if err != nil {
		outcome.Latency = time.Since(startTime)
		outcome.Status = StatusConnectionError
		outcome.Err = err
		return outcome
	}

	resp, err := e.client.Do(req)
	if err != nil {
		outcome.Latency = time.Since(startTime)
		outcome.Status = classifyError(ctx, err)
		outcome.Err = err
		return outcome
	}

	n, err := io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	outcome.Latency = time.Since(startTime)
	outcome.Code = resp.StatusCode
	outcome.Bytes = n

	if err != nil {
		outcome.Status = classifyError(ctx, err)
		outcome.Err = err
		return outcome
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		outcome.Status = StatusSuccess
	} else {
		outcome.Status = StatusHTTPError
	}
	return outcome
}

// CloseIdleConnections drops pooled connections so the next target starts
// from a cold pool.
func (e *HTTPExecutor) CloseIdleConnections() {
	e.client.CloseIdleConnections()
}

// buildRequest builds an HTTP request from the target.
func buildRequest(ctx context.Context, target config.Target) (*http.Request, error) {
	method := target.Method
	if method == "" {
		method = config.DefaultMethod
	}

	req, err := http.NewRequestWithContext(ctx, method, target.URL(), nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", "lbbench")
	for key, value := range target.Headers {
		if http.CanonicalHeaderKey(key) == "Host" {
			req.Host = value
			continue
		}
		req.Header.Set(key, value)
	}

	return req, nil
}

// classifyError maps a transport error to Timeout or ConnectionError.
func classifyError(ctx context.Context, err error) Status {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return StatusTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StatusTimeout
	}

	return StatusConnectionError
}
