package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/wesleyorama2/lbbench/internal/bench"
)

// Tracker keeps running totals for progress display while a target is being
// benchmarked. Its numbers are approximate and never used for the report.
//
// Tracker is safe for concurrent use. Counters are atomic and the histogram
// is guarded by a mutex.
type Tracker struct {
	latencyHist   *hdrhistogram.Histogram
	latencyHistMu sync.Mutex

	totalRequests   atomic.Int64
	successRequests atomic.Int64
	failedRequests  atomic.Int64
	totalBytes      atomic.Int64

	startTime time.Time
}

// NewTracker creates a tracker starting now.
func NewTracker() *Tracker {
	return &Tracker{
		latencyHist: hdrhistogram.New(histogramMin, histogramMax, histogramSigFigs),
		startTime:   time.Now(),
	}
}

// Observe records an outcome.
func (t *Tracker) Observe(o bench.Outcome) {
	t.totalRequests.Add(1)
	t.totalBytes.Add(o.Bytes)

	if !o.OK() {
		t.failedRequests.Add(1)
		return
	}
	t.successRequests.Add(1)

	t.latencyHistMu.Lock()
	t.latencyHist.RecordValue(clampMicros(o.Latency))
	t.latencyHistMu.Unlock()
}

// Progress is a point-in-time view of a tracker.
type Progress struct {
	TotalRequests int64
	Errors        int64
	ErrorRate     float64
	TotalBytes    int64
	RPS           float64
	P50           time.Duration
	P95           time.Duration
	P99           time.Duration
	Elapsed       time.Duration
}

// Snapshot returns the current totals.
func (t *Tracker) Snapshot() Progress {
	t.latencyHistMu.Lock()
	p50 := histQuantile(t.latencyHist, 50)
	p95 := histQuantile(t.latencyHist, 95)
	p99 := histQuantile(t.latencyHist, 99)
	t.latencyHistMu.Unlock()

	elapsed := time.Since(t.startTime)
	total := t.totalRequests.Load()
	failed := t.failedRequests.Load()

	return Progress{
		TotalRequests: total,
		Errors:        failed,
		ErrorRate:     ratio(failed, total),
		TotalBytes:    t.totalBytes.Load(),
		RPS:           perSecond(total, elapsed),
		P50:           p50,
		P95:           p95,
		P99:           p99,
		Elapsed:       elapsed,
	}
}
