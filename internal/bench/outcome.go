// Package bench provides the request executor and the worker pool used by
// the load generator.
package bench

import (
	"strconv"
	"time"
)

// Status classifies the result of a single request attempt.
type Status int

const (
	// StatusSuccess is a 2xx response.
	StatusSuccess Status = iota
	// StatusHTTPError is any non-2xx response.
	StatusHTTPError
	// StatusTimeout means the request exceeded the target timeout.
	StatusTimeout
	// StatusConnectionError covers refused/reset connections, DNS failures
	// and any other transport error.
	StatusConnectionError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusHTTPError:
		return "http_error"
	case StatusTimeout:
		return "timeout"
	case StatusConnectionError:
		return "connection_error"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of one request. It is immutable once
// produced and is passed by value from the executor to the aggregator.
type Outcome struct {
	Target    string
	StartedAt time.Time
	Latency   time.Duration
	Status    Status

	// Code is the HTTP status code when a response was received
	Code int

	// Bytes is the number of body bytes drained
	Bytes int64

	// Err is the transport error, if any. Kept for logging only.
	Err error
}

// OK reports whether the request succeeded.
func (o Outcome) OK() bool {
	return o.Status == StatusSuccess
}

// Label returns the status label used in reports and metrics,
// e.g. "success", "http_503", "timeout".
func (o Outcome) Label() string {
	if o.Status == StatusHTTPError {
		return "http_" + strconv.Itoa(o.Code)
	}
	return o.Status.String()
}
