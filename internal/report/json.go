package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wesleyorama2/lbbench/internal/metrics"
	"github.com/wesleyorama2/lbbench/internal/runner"
)

// JSON report layout. Durations are milliseconds as floats; undefined
// latencies are null.
type jsonReport struct {
	RunID     string       `json:"run_id"`
	Plan      string       `json:"plan,omitempty"`
	StartedAt time.Time    `json:"started_at"`
	ElapsedMS float64      `json:"elapsed_ms"`
	Aborted   bool         `json:"aborted"`
	Skipped   []string     `json:"skipped"`
	Targets   []jsonTarget `json:"targets"`
}

type jsonTarget struct {
	Target        string           `json:"target"`
	TotalRequests int64            `json:"total_requests"`
	ErrorCount    int64            `json:"error_count"`
	ErrorRate     float64          `json:"error_rate"`
	ThroughputRPS float64          `json:"throughput_rps"`
	ElapsedMS     float64          `json:"elapsed_ms"`
	Latency       jsonLatency      `json:"latency_ms"`
	StatusCounts  map[string]int64 `json:"status_counts"`
	Stages        []jsonStage      `json:"stages"`
	Aborted       bool             `json:"aborted"`
}

type jsonLatency struct {
	P50  *float64 `json:"p50"`
	P95  *float64 `json:"p95"`
	P99  *float64 `json:"p99"`
	Mean *float64 `json:"mean"`
}

type jsonStage struct {
	Stage         int         `json:"stage"`
	Concurrency   int         `json:"concurrency"`
	ElapsedMS     float64     `json:"elapsed_ms"`
	Requests      int64       `json:"requests"`
	Errors        int64       `json:"errors"`
	ErrorRate     float64     `json:"error_rate"`
	ThroughputRPS float64     `json:"throughput_rps"`
	Latency       jsonLatency `json:"latency_ms"`
}

// WriteJSON writes the machine-readable report. Targets keep plan order.
func WriteJSON(w io.Writer, result *runner.Result) error {
	report := jsonReport{
		RunID:     result.RunID,
		Plan:      result.PlanName,
		StartedAt: result.StartedAt.UTC(),
		ElapsedMS: millis(result.Elapsed),
		Aborted:   result.Aborted,
		Skipped:   result.Skipped,
		Targets:   make([]jsonTarget, 0, len(result.Summaries)),
	}
	if report.Skipped == nil {
		report.Skipped = []string{}
	}

	for _, s := range result.Summaries {
		report.Targets = append(report.Targets, toJSONTarget(s))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// WriteJSONFile writes the JSON report to path.
func WriteJSONFile(path string, result *runner.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}

	if err := WriteJSON(f, result); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}

func toJSONTarget(s metrics.TargetSummary) jsonTarget {
	t := jsonTarget{
		Target:        s.Target,
		TotalRequests: s.TotalRequests,
		ErrorCount:    s.ErrorCount,
		ErrorRate:     s.ErrorRate,
		ThroughputRPS: s.ThroughputRPS,
		ElapsedMS:     millis(s.Elapsed),
		Latency: jsonLatency{
			P50:  millisPtr(s.LatencyP50),
			P95:  millisPtr(s.LatencyP95),
			P99:  millisPtr(s.LatencyP99),
			Mean: millisPtr(s.LatencyMean),
		},
		StatusCounts: s.StatusCounts,
		Stages:       make([]jsonStage, 0, len(s.Stages)),
		Aborted:      s.Aborted,
	}
	if t.StatusCounts == nil {
		t.StatusCounts = map[string]int64{}
	}

	for _, st := range s.Stages {
		t.Stages = append(t.Stages, jsonStage{
			Stage:         st.Index + 1,
			Concurrency:   st.Concurrency,
			ElapsedMS:     millis(st.Elapsed),
			Requests:      st.Requests,
			Errors:        st.Errors,
			ErrorRate:     st.ErrorRate,
			ThroughputRPS: st.ThroughputRPS,
			Latency: jsonLatency{
				P50: millisPtr(st.P50),
				P95: millisPtr(st.P95),
				P99: millisPtr(st.P99),
			},
		})
	}
	return t
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func millisPtr(d *time.Duration) *float64 {
	if d == nil {
		return nil
	}
	v := millis(*d)
	return &v
}
