// Package metrics reduces outcome streams to per-target summaries.
//
// The Aggregator is the authoritative source for reported numbers. It is a
// single consumer and owns its state; nothing else touches it while the
// stream is being drained. The Tracker and the Exporter observe the same
// outcomes for live progress and Prometheus output.
package metrics

import (
	"sort"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/wesleyorama2/lbbench/internal/bench"
	"github.com/wesleyorama2/lbbench/internal/bench/loadgen"
)

// Histogram range: 1 microsecond to 1 hour, 3 significant figures.
const (
	histogramMin     = 1
	histogramMax     = 3600000000
	histogramSigFigs = 3
)

// TargetSummary is the aggregated result for one target.
//
// Latency fields are nil when no request succeeded.
type TargetSummary struct {
	Target        string
	TotalRequests int64
	ErrorCount    int64
	ErrorRate     float64
	ThroughputRPS float64
	Elapsed       time.Duration

	LatencyP50  *time.Duration
	LatencyP95  *time.Duration
	LatencyP99  *time.Duration
	LatencyMean *time.Duration

	// StatusCounts is keyed by outcome label: "success", "http_503",
	// "timeout", "connection_error".
	StatusCounts map[string]int64

	Stages  []StageSummary
	Aborted bool
}

// StageSummary is the breakdown for one executed stage. Its latency
// percentiles come from an HDR histogram and are approximate to three
// significant figures.
type StageSummary struct {
	Index         int
	Concurrency   int
	Elapsed       time.Duration
	Requests      int64
	Errors        int64
	ErrorRate     float64
	ThroughputRPS float64

	P50 *time.Duration
	P95 *time.Duration
	P99 *time.Duration
}

// StageLocator maps a request start time to the stage running at that time.
type StageLocator interface {
	StageAt(ts time.Time) int
}

// Observer receives every outcome the aggregator consumes.
type Observer interface {
	Observe(bench.Outcome)
}

type stageBucket struct {
	requests int64
	errors   int64
	hist     *hdrhistogram.Histogram
}

// Aggregator accumulates the outcomes of one target. It is not safe for
// concurrent use.
type Aggregator struct {
	target  string
	locator StageLocator

	total        int64
	errors       int64
	statusCounts map[string]int64

	// successful latencies, kept for exact percentiles
	latencies []time.Duration

	stages map[int]*stageBucket
}

// NewAggregator creates an aggregator for target. A nil locator puts every
// outcome into stage 0.
func NewAggregator(target string, locator StageLocator) *Aggregator {
	return &Aggregator{
		target:       target,
		locator:      locator,
		statusCounts: make(map[string]int64),
		stages:       make(map[int]*stageBucket),
	}
}

// Add records one outcome.
func (a *Aggregator) Add(o bench.Outcome) {
	a.total++
	a.statusCounts[o.Label()]++

	stage := 0
	if a.locator != nil {
		if idx := a.locator.StageAt(o.StartedAt); idx >= 0 {
			stage = idx
		}
	}
	bucket, ok := a.stages[stage]
	if !ok {
		bucket = &stageBucket{
			hist: hdrhistogram.New(histogramMin, histogramMax, histogramSigFigs),
		}
		a.stages[stage] = bucket
	}
	bucket.requests++

	if !o.OK() {
		a.errors++
		bucket.errors++
		return
	}

	a.latencies = append(a.latencies, o.Latency)
	bucket.hist.RecordValue(clampMicros(o.Latency))
}

// Total returns the number of outcomes recorded so far.
func (a *Aggregator) Total() int64 {
	return a.total
}

// Summary computes the target summary. The stage windows and elapsed time
// come from the finished load generation run.
func (a *Aggregator) Summary(stats loadgen.Stats) TargetSummary {
	summary := TargetSummary{
		Target:        a.target,
		TotalRequests: a.total,
		ErrorCount:    a.errors,
		ErrorRate:     ratio(a.errors, a.total),
		ThroughputRPS: perSecond(a.total, stats.Elapsed),
		Elapsed:       stats.Elapsed,
		StatusCounts:  make(map[string]int64, len(a.statusCounts)),
		Aborted:       stats.Aborted,
	}
	for label, n := range a.statusCounts {
		summary.StatusCounts[label] = n
	}

	if n := len(a.latencies); n > 0 {
		sorted := make([]time.Duration, n)
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		summary.LatencyP50 = durationPtr(nearestRank(sorted, 500))
		summary.LatencyP95 = durationPtr(nearestRank(sorted, 950))
		summary.LatencyP99 = durationPtr(nearestRank(sorted, 990))
		summary.LatencyMean = durationPtr(mean(sorted))
	}

	summary.Stages = a.stageSummaries(stats.Windows)
	return summary
}

func (a *Aggregator) stageSummaries(windows []loadgen.StageWindow) []StageSummary {
	if len(windows) == 0 {
		return nil
	}

	out := make([]StageSummary, 0, len(windows))
	for _, w := range windows {
		s := StageSummary{
			Index:       w.Index,
			Concurrency: w.Concurrency,
			Elapsed:     w.Elapsed(),
		}
		if bucket, ok := a.stages[w.Index]; ok {
			s.Requests = bucket.requests
			s.Errors = bucket.errors
			s.ErrorRate = ratio(bucket.errors, bucket.requests)
			s.ThroughputRPS = perSecond(bucket.requests, s.Elapsed)
			if bucket.hist.TotalCount() > 0 {
				s.P50 = durationPtr(histQuantile(bucket.hist, 50))
				s.P95 = durationPtr(histQuantile(bucket.hist, 95))
				s.P99 = durationPtr(histQuantile(bucket.hist, 99))
			}
		}
		out = append(out, s)
	}
	return out
}

// Aggregate drains the run's outcome stream, feeding every outcome to the
// aggregator and the observers, and returns the summary once the stream is
// closed.
func Aggregate(run *loadgen.Run, observers ...Observer) TargetSummary {
	agg := NewAggregator(run.Target().Name, run.Timeline())
	for o := range run.Outcomes() {
		agg.Add(o)
		for _, obs := range observers {
			obs.Observe(o)
		}
	}
	return agg.Summary(run.Stats())
}

// nearestRank returns the perMille-th percentile of an ascending slice:
// the element at index ceil(p*n)-1, clamped to the slice.
func nearestRank(sorted []time.Duration, perMille int) time.Duration {
	n := len(sorted)
	idx := (perMille*n+999)/1000 - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}

func mean(values []time.Duration) time.Duration {
	var sum int64
	for _, v := range values {
		sum += int64(v)
	}
	return time.Duration(sum / int64(len(values)))
}

func ratio(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}

func perSecond(n int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(n) / elapsed.Seconds()
}

func clampMicros(d time.Duration) int64 {
	us := d.Microseconds()
	if us < histogramMin {
		us = histogramMin
	}
	if us > histogramMax {
		us = histogramMax
	}
	return us
}

func histQuantile(h *hdrhistogram.Histogram, q float64) time.Duration {
	return time.Duration(h.ValueAtQuantile(q)) * time.Microsecond
}

func durationPtr(d time.Duration) *time.Duration {
	return &d
}
