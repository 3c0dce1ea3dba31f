package runner

import (
	"context"
	"time"

	"github.com/wesleyorama2/lbbench/internal/bench"
	"github.com/wesleyorama2/lbbench/internal/config"
)

// DefaultProbeTimeout bounds each dry-run request.
const DefaultProbeTimeout = 2 * time.Second

// ProbeResult is the reachability of one target.
type ProbeResult struct {
	Target    string
	URL       string
	Reachable bool
	Code      int
	Latency   time.Duration
	Err       error
}

// Probe sends exactly one request to every target, in plan order, and
// reports which ones answered. Any HTTP response counts as reachable. No
// ramp stage is run.
func Probe(ctx context.Context, plan *config.Plan, timeout time.Duration, exec bench.Executor) []ProbeResult {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if exec == nil {
		exec = bench.NewHTTPExecutor(bench.DefaultHTTPClientConfig())
	}

	results := make([]ProbeResult, 0, len(plan.Targets))
	for _, target := range plan.Targets {
		target.Timeout = timeout

		o := exec.Execute(ctx, target)
		results = append(results, ProbeResult{
			Target:    target.Name,
			URL:       target.URL(),
			Reachable: o.Status == bench.StatusSuccess || o.Status == bench.StatusHTTPError,
			Code:      o.Code,
			Latency:   o.Latency,
			Err:       o.Err,
		})
	}
	return results
}

// CountReachable returns how many probed targets answered.
func CountReachable(results []ProbeResult) int {
	n := 0
	for _, r := range results {
		if r.Reachable {
			n++
		}
	}
	return n
}
