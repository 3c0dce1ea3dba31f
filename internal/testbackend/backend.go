// Package testbackend provides a fake proxy backend. Package tests start it
// on an httptest listener; cmd/lbbench-backend serves it on a real port.
package testbackend

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
)

// Backend serves a fixed set of routes:
//
//	GET /healthz         200 "ok"
//	GET /ok              200 with a small JSON body
//	GET /slow?delay=50ms 200 after the given delay
//	GET /status/{code}   responds with the given status code
//	GET /hang            blocks until the client gives up
//
// It counts requests and tracks the peak number of requests in flight.
type Backend struct {
	router chi.Router

	requests atomic.Int64
	inFlight atomic.Int64
	peak     atomic.Int64
}

// NewBackend builds the handler without listening anywhere.
func NewBackend() *Backend {
	b := &Backend{}

	r := chi.NewRouter()
	r.Use(b.track)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/slow", b.slow)
	r.Get("/status/{code}", func(w http.ResponseWriter, r *http.Request) {
		code, err := strconv.Atoi(chi.URLParam(r, "code"))
		if err != nil || code < 100 || code > 999 {
			http.Error(w, "bad status code", http.StatusBadRequest)
			return
		}
		w.WriteHeader(code)
	})
	r.Get("/hang", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	b.router = r
	return b
}

// ServeHTTP implements http.Handler.
func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.router.ServeHTTP(w, r)
}

func (b *Backend) slow(w http.ResponseWriter, r *http.Request) {
	delay := 50 * time.Millisecond
	if v := r.URL.Query().Get("delay"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		delay = d
	}

	select {
	case <-time.After(delay):
		w.Write([]byte("slow"))
	case <-r.Context().Done():
	}
}

func (b *Backend) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.requests.Add(1)
		n := b.inFlight.Add(1)
		defer b.inFlight.Add(-1)

		for {
			peak := b.peak.Load()
			if n <= peak || b.peak.CompareAndSwap(peak, n) {
				break
			}
		}

		next.ServeHTTP(w, r)
	})
}

// Requests returns the number of requests received so far.
func (b *Backend) Requests() int64 {
	return b.requests.Load()
}

// PeakInFlight returns the highest number of concurrently served requests.
func (b *Backend) PeakInFlight() int64 {
	return b.peak.Load()
}

// Server is a Backend listening on a local httptest server.
type Server struct {
	*httptest.Server
	*Backend
}

// New starts a backend. Callers must Close it.
func New() *Server {
	b := NewBackend()
	return &Server{Server: httptest.NewServer(b), Backend: b}
}
