package bench_test

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wesleyorama2/lbbench/internal/bench"
	"github.com/wesleyorama2/lbbench/internal/config"
	"github.com/wesleyorama2/lbbench/internal/testbackend"
)

func newTarget(baseURL, path string) config.Target {
	return config.Target{
		Name:    "test",
		BaseURL: baseURL,
		Path:    path,
		Method:  http.MethodGet,
		Timeout: time.Second,
	}
}

func TestHTTPExecutor_Classification(t *testing.T) {
	backend := testbackend.New()
	defer backend.Close()

	tests := []struct {
		name       string
		path       string
		timeout    time.Duration
		wantStatus bench.Status
		wantCode   int
		wantLabel  string
	}{
		{
			name:       "success",
			path:       "/ok",
			timeout:    time.Second,
			wantStatus: bench.StatusSuccess,
			wantCode:   200,
			wantLabel:  "success",
		},
		{
			name:       "no content is success",
			path:       "/status/204",
			timeout:    time.Second,
			wantStatus: bench.StatusSuccess,
			wantCode:   204,
			wantLabel:  "success",
		},
		{
			name:       "service unavailable",
			path:       "/status/503",
			timeout:    time.Second,
			wantStatus: bench.StatusHTTPError,
			wantCode:   503,
			wantLabel:  "http_503",
		},
		{
			name:       "redirect is not followed",
			path:       "/status/302",
			timeout:    time.Second,
			wantStatus: bench.StatusHTTPError,
			wantCode:   302,
			wantLabel:  "http_302",
		},
		{
			name:       "not found",
			path:       "/missing",
			timeout:    time.Second,
			wantStatus: bench.StatusHTTPError,
			wantCode:   404,
			wantLabel:  "http_404",
		},
		{
			name:       "timeout",
			path:       "/hang",
			timeout:    50 * time.Millisecond,
			wantStatus: bench.StatusTimeout,
			wantLabel:  "timeout",
		},
	}

	exec := bench.NewHTTPExecutor(bench.DefaultHTTPClientConfig())
	defer exec.CloseIdleConnections()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := newTarget(backend.URL, tt.path)
			target.Timeout = tt.timeout

			outcome := exec.Execute(context.Background(), target)

			if outcome.Status != tt.wantStatus {
				t.Errorf("Status = %v, want %v (err: %v)", outcome.Status, tt.wantStatus, outcome.Err)
			}
			if outcome.Code != tt.wantCode {
				t.Errorf("Code = %d, want %d", outcome.Code, tt.wantCode)
			}
			if outcome.Label() != tt.wantLabel {
				t.Errorf("Label() = %q, want %q", outcome.Label(), tt.wantLabel)
			}
			if outcome.Target != "test" {
				t.Errorf("Target = %q, want %q", outcome.Target, "test")
			}
			if outcome.Latency <= 0 {
				t.Errorf("Latency = %v, want > 0", outcome.Latency)
			}
			if outcome.StartedAt.IsZero() {
				t.Error("StartedAt is zero")
			}
		})
	}
}

func TestHTTPExecutor_TimeoutBoundsLatency(t *testing.T) {
	backend := testbackend.New()
	defer backend.Close()

	exec := bench.NewHTTPExecutor(bench.DefaultHTTPClientConfig())
	target := newTarget(backend.URL, "/slow?delay=2s")
	target.Timeout = 100 * time.Millisecond

	outcome := exec.Execute(context.Background(), target)

	if outcome.Status != bench.StatusTimeout {
		t.Fatalf("Status = %v, want timeout", outcome.Status)
	}
	if outcome.Latency > time.Second {
		t.Errorf("Latency = %v, want close to the 100ms timeout", outcome.Latency)
	}
}

func TestHTTPExecutor_ConnectionRefused(t *testing.T) {
	// Grab a free port and release it so nothing is listening there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	exec := bench.NewHTTPExecutor(bench.DefaultHTTPClientConfig())
	outcome := exec.Execute(context.Background(), newTarget("http://"+addr, "/"))

	if outcome.Status != bench.StatusConnectionError {
		t.Errorf("Status = %v, want connection_error", outcome.Status)
	}
	if outcome.Err == nil {
		t.Error("Err is nil for a refused connection")
	}
	if outcome.OK() {
		t.Error("OK() = true for a refused connection")
	}
}

func TestHTTPExecutor_MalformedURL(t *testing.T) {
	exec := bench.NewHTTPExecutor(bench.DefaultHTTPClientConfig())
	target := newTarget("http://exa mple.com", "/")

	outcome := exec.Execute(context.Background(), target)

	if outcome.Status != bench.StatusConnectionError {
		t.Errorf("Status = %v, want connection_error", outcome.Status)
	}
}

func TestHTTPExecutor_HeadersAndMethod(t *testing.T) {
	var (
		gotMethod string
		gotHost   string
		gotAgent  string
		gotCustom string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHost = r.Host
		gotAgent = r.Header.Get("User-Agent")
		gotCustom = r.Header.Get("X-Bench")
		w.Write([]byte(strings.Repeat("x", 128)))
	}))
	defer server.Close()

	exec := bench.NewHTTPExecutor(bench.DefaultHTTPClientConfig())
	target := newTarget(server.URL, "/")
	target.Method = http.MethodHead
	target.Headers = map[string]string{
		"Host":    "backend.local",
		"X-Bench": "1",
	}

	outcome := exec.Execute(context.Background(), target)

	if outcome.Status != bench.StatusSuccess {
		t.Fatalf("Status = %v, want success (err: %v)", outcome.Status, outcome.Err)
	}
	if gotMethod != http.MethodHead {
		t.Errorf("method = %q, want HEAD", gotMethod)
	}
	if gotHost != "backend.local" {
		t.Errorf("host = %q, want backend.local", gotHost)
	}
	if gotAgent != "lbbench" {
		t.Errorf("user agent = %q, want lbbench", gotAgent)
	}
	if gotCustom != "1" {
		t.Errorf("X-Bench = %q, want 1", gotCustom)
	}
}

func TestHTTPExecutor_DrainsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer server.Close()

	exec := bench.NewHTTPExecutor(bench.DefaultHTTPClientConfig())
	outcome := exec.Execute(context.Background(), newTarget(server.URL, "/"))

	if outcome.Bytes != 4096 {
		t.Errorf("Bytes = %d, want 4096", outcome.Bytes)
	}
}

func TestHTTPExecutor_CancelledContext(t *testing.T) {
	backend := testbackend.New()
	defer backend.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := bench.NewHTTPExecutor(bench.DefaultHTTPClientConfig())
	outcome := exec.Execute(ctx, newTarget(backend.URL, "/ok"))

	if outcome.Status != bench.StatusConnectionError {
		t.Errorf("Status = %v, want connection_error", outcome.Status)
	}
}

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status bench.Status
		want   string
	}{
		{bench.StatusSuccess, "success"},
		{bench.StatusHTTPError, "http_error"},
		{bench.StatusTimeout, "timeout"},
		{bench.StatusConnectionError, "connection_error"},
		{bench.Status(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestHTTPClientConfig_ForConcurrency(t *testing.T) {
	cfg := bench.DefaultHTTPClientConfig().ForConcurrency(500)

	if cfg.MaxIdleConnsPerHost != 500 {
		t.Errorf("MaxIdleConnsPerHost = %d, want 500", cfg.MaxIdleConnsPerHost)
	}
	if cfg.MaxIdleConns < 500 {
		t.Errorf("MaxIdleConns = %d, want >= 500", cfg.MaxIdleConns)
	}

	small := bench.DefaultHTTPClientConfig().ForConcurrency(4)
	if small.MaxIdleConnsPerHost != 100 {
		t.Errorf("MaxIdleConnsPerHost = %d, want default 100", small.MaxIdleConnsPerHost)
	}
}
