package metrics_test

import (
	"context"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/wesleyorama2/lbbench/internal/bench"
	"github.com/wesleyorama2/lbbench/internal/bench/loadgen"
	"github.com/wesleyorama2/lbbench/internal/config"
	"github.com/wesleyorama2/lbbench/internal/metrics"
)

type locatorFunc func(time.Time) int

func (f locatorFunc) StageAt(ts time.Time) int { return f(ts) }

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func success(latency time.Duration) bench.Outcome {
	return bench.Outcome{Target: "nginx", StartedAt: epoch, Latency: latency, Status: bench.StatusSuccess, Code: 200}
}

func failure(status bench.Status, code int) bench.Outcome {
	return bench.Outcome{Target: "nginx", StartedAt: epoch, Latency: time.Millisecond, Status: status, Code: code}
}

func oneStage(elapsed time.Duration) loadgen.Stats {
	return loadgen.Stats{
		Windows: []loadgen.StageWindow{{Index: 0, Concurrency: 1, Start: epoch, End: epoch.Add(elapsed)}},
		Elapsed: elapsed,
	}
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func TestAggregator_Empty(t *testing.T) {
	agg := metrics.NewAggregator("nginx", nil)
	s := agg.Summary(loadgen.Stats{})

	if s.TotalRequests != 0 || s.ErrorCount != 0 {
		t.Errorf("counts = %d/%d, want 0/0", s.TotalRequests, s.ErrorCount)
	}
	if s.ErrorRate != 0 {
		t.Errorf("ErrorRate = %v, want 0", s.ErrorRate)
	}
	if s.ThroughputRPS != 0 {
		t.Errorf("ThroughputRPS = %v, want 0", s.ThroughputRPS)
	}
	if s.LatencyP50 != nil || s.LatencyP95 != nil || s.LatencyP99 != nil || s.LatencyMean != nil {
		t.Error("latencies should be undefined for an empty stream")
	}
	if s.Target != "nginx" {
		t.Errorf("Target = %q, want nginx", s.Target)
	}
}

func TestAggregator_NearestRankPercentiles(t *testing.T) {
	tests := []struct {
		name      string
		latencies []time.Duration
		wantP50   time.Duration
		wantP95   time.Duration
		wantP99   time.Duration
		wantMean  time.Duration
	}{
		{
			name:      "single sample",
			latencies: []time.Duration{ms(7)},
			wantP50:   ms(7),
			wantP95:   ms(7),
			wantP99:   ms(7),
			wantMean:  ms(7),
		},
		{
			name:      "two samples",
			latencies: []time.Duration{ms(10), ms(20)},
			wantP50:   ms(10),
			wantP95:   ms(20),
			wantP99:   ms(20),
			wantMean:  ms(15),
		},
		{
			name:      "twenty samples",
			latencies: seq(20),
			wantP50:   ms(10),
			wantP95:   ms(19),
			wantP99:   ms(20),
			wantMean:  10500 * time.Microsecond,
		},
		{
			name:      "one to one hundred",
			latencies: seq(100),
			wantP50:   ms(50),
			wantP95:   ms(95),
			wantP99:   ms(99),
			wantMean:  50500 * time.Microsecond,
		},
		{
			name:      "integer mean truncates",
			latencies: []time.Duration{1, 2},
			wantP50:   1,
			wantP95:   2,
			wantP99:   2,
			wantMean:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := metrics.NewAggregator("nginx", nil)
			for _, l := range tt.latencies {
				agg.Add(success(l))
			}
			s := agg.Summary(oneStage(time.Second))

			if s.LatencyP50 == nil || s.LatencyP95 == nil || s.LatencyP99 == nil || s.LatencyMean == nil {
				t.Fatal("latencies undefined for a non-empty success set")
			}
			if *s.LatencyP50 != tt.wantP50 {
				t.Errorf("P50 = %v, want %v", *s.LatencyP50, tt.wantP50)
			}
			if *s.LatencyP95 != tt.wantP95 {
				t.Errorf("P95 = %v, want %v", *s.LatencyP95, tt.wantP95)
			}
			if *s.LatencyP99 != tt.wantP99 {
				t.Errorf("P99 = %v, want %v", *s.LatencyP99, tt.wantP99)
			}
			if *s.LatencyMean != tt.wantMean {
				t.Errorf("Mean = %v, want %v", *s.LatencyMean, tt.wantMean)
			}
			if !(*s.LatencyP50 <= *s.LatencyP95 && *s.LatencyP95 <= *s.LatencyP99) {
				t.Errorf("percentiles not monotonic: %v %v %v", *s.LatencyP50, *s.LatencyP95, *s.LatencyP99)
			}
		})
	}
}

func seq(n int) []time.Duration {
	out := make([]time.Duration, n)
	for i := range out {
		out[i] = ms(i + 1)
	}
	return out
}

func TestAggregator_ErrorsExcludedFromLatency(t *testing.T) {
	agg := metrics.NewAggregator("nginx", nil)
	agg.Add(success(ms(10)))
	agg.Add(success(ms(30)))
	agg.Add(failure(bench.StatusHTTPError, 503))
	agg.Add(failure(bench.StatusHTTPError, 503))
	agg.Add(failure(bench.StatusTimeout, 0))
	agg.Add(bench.Outcome{Target: "nginx", StartedAt: epoch, Latency: ms(5000), Status: bench.StatusConnectionError})

	s := agg.Summary(oneStage(2 * time.Second))

	if s.TotalRequests != 6 {
		t.Errorf("TotalRequests = %d, want 6", s.TotalRequests)
	}
	if s.ErrorCount != 4 {
		t.Errorf("ErrorCount = %d, want 4", s.ErrorCount)
	}
	if want := 4.0 / 6.0; s.ErrorRate != want {
		t.Errorf("ErrorRate = %v, want %v", s.ErrorRate, want)
	}
	if s.ThroughputRPS != 3 {
		t.Errorf("ThroughputRPS = %v, want 3", s.ThroughputRPS)
	}
	if *s.LatencyP99 != ms(30) {
		t.Errorf("P99 = %v, want 30ms (errors must not count)", *s.LatencyP99)
	}
	if *s.LatencyMean != ms(20) {
		t.Errorf("Mean = %v, want 20ms", *s.LatencyMean)
	}

	wantCounts := map[string]int64{
		"success":          2,
		"http_503":         2,
		"timeout":          1,
		"connection_error": 1,
	}
	if !reflect.DeepEqual(s.StatusCounts, wantCounts) {
		t.Errorf("StatusCounts = %v, want %v", s.StatusCounts, wantCounts)
	}
}

func TestAggregator_AllFailures(t *testing.T) {
	agg := metrics.NewAggregator("down", nil)
	for i := 0; i < 50; i++ {
		agg.Add(failure(bench.StatusConnectionError, 0))
	}
	s := agg.Summary(oneStage(time.Second))

	if s.ErrorRate != 1.0 {
		t.Errorf("ErrorRate = %v, want 1.0", s.ErrorRate)
	}
	if s.LatencyP50 != nil || s.LatencyMean != nil {
		t.Error("latencies should be undefined when nothing succeeded")
	}
	if len(s.Stages) != 1 || s.Stages[0].P50 != nil {
		t.Error("stage latencies should be undefined when nothing succeeded")
	}
}

func TestAggregator_OrderIndependent(t *testing.T) {
	var outcomes []bench.Outcome
	for i := 1; i <= 200; i++ {
		if i%7 == 0 {
			outcomes = append(outcomes, failure(bench.StatusHTTPError, 502))
			continue
		}
		o := success(time.Duration(i*37%101) * time.Millisecond)
		o.StartedAt = epoch.Add(time.Duration(i) * 10 * time.Millisecond)
		outcomes = append(outcomes, o)
	}

	locator := locatorFunc(func(ts time.Time) int {
		if ts.Before(epoch.Add(time.Second)) {
			return 0
		}
		return 1
	})
	stats := loadgen.Stats{
		Windows: []loadgen.StageWindow{
			{Index: 0, Concurrency: 2, Start: epoch, End: epoch.Add(time.Second)},
			{Index: 1, Concurrency: 4, Start: epoch.Add(time.Second), End: epoch.Add(2 * time.Second)},
		},
		Elapsed: 2 * time.Second,
	}

	summarize := func(in []bench.Outcome) metrics.TargetSummary {
		agg := metrics.NewAggregator("nginx", locator)
		for _, o := range in {
			agg.Add(o)
		}
		return agg.Summary(stats)
	}

	want := summarize(outcomes)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 5; i++ {
		shuffled := make([]bench.Outcome, len(outcomes))
		copy(shuffled, outcomes)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		if got := summarize(shuffled); !reflect.DeepEqual(got, want) {
			t.Fatalf("summary depends on arrival order:\n got %+v\nwant %+v", got, want)
		}
	}
}

func TestAggregator_StageBreakdown(t *testing.T) {
	locator := locatorFunc(func(ts time.Time) int {
		return int(ts.Sub(epoch) / time.Second)
	})
	agg := metrics.NewAggregator("nginx", locator)

	add := func(offset time.Duration, o bench.Outcome) {
		o.StartedAt = epoch.Add(offset)
		agg.Add(o)
	}
	for i := 0; i < 10; i++ {
		add(100*time.Millisecond, success(ms(10)))
	}
	for i := 0; i < 30; i++ {
		add(1500*time.Millisecond, success(ms(40)))
	}
	for i := 0; i < 10; i++ {
		add(1500*time.Millisecond, failure(bench.StatusTimeout, 0))
	}

	s := agg.Summary(loadgen.Stats{
		Windows: []loadgen.StageWindow{
			{Index: 0, Concurrency: 1, Start: epoch, End: epoch.Add(time.Second)},
			{Index: 1, Concurrency: 4, Start: epoch.Add(time.Second), End: epoch.Add(2 * time.Second)},
			{Index: 2, Concurrency: 2, Start: epoch.Add(2 * time.Second), End: epoch.Add(3 * time.Second)},
		},
		Elapsed: 3 * time.Second,
	})

	if len(s.Stages) != 3 {
		t.Fatalf("len(Stages) = %d, want 3", len(s.Stages))
	}

	first, second, third := s.Stages[0], s.Stages[1], s.Stages[2]
	if first.Requests != 10 || first.Errors != 0 || first.ThroughputRPS != 10 {
		t.Errorf("stage 1 = %+v", first)
	}
	if first.P50 == nil || *first.P50 < ms(9) || *first.P50 > ms(11) {
		t.Errorf("stage 1 P50 = %v, want about 10ms", first.P50)
	}
	if second.Requests != 40 || second.Errors != 10 || second.ErrorRate != 0.25 {
		t.Errorf("stage 2 = %+v", second)
	}
	if second.Concurrency != 4 || second.Elapsed != time.Second {
		t.Errorf("stage 2 window = %d workers / %v", second.Concurrency, second.Elapsed)
	}
	if third.Requests != 0 || third.P50 != nil {
		t.Errorf("stage 3 = %+v, want empty", third)
	}
	if s.TotalRequests != first.Requests+second.Requests+third.Requests {
		t.Error("stage requests do not add up to the total")
	}
}

func TestAggregate_Run(t *testing.T) {
	exec := bench.ExecutorFunc(func(ctx context.Context, target config.Target) bench.Outcome {
		start := time.Now()
		time.Sleep(10 * time.Millisecond)
		return bench.Outcome{Target: target.Name, StartedAt: start, Latency: time.Since(start), Status: bench.StatusSuccess, Code: 200}
	})

	gen := loadgen.New(exec, loadgen.Options{})
	run := gen.Start(context.Background(), config.Target{Name: "nginx"}, []config.Stage{
		{Concurrency: 5, Duration: 2 * time.Second},
	})

	tracker := metrics.NewTracker()
	s := metrics.Aggregate(run, tracker)

	if s.TotalRequests < 750 || s.TotalRequests > 1250 {
		t.Errorf("TotalRequests = %d, want about 1000", s.TotalRequests)
	}
	if s.ErrorRate != 0 {
		t.Errorf("ErrorRate = %v, want 0", s.ErrorRate)
	}
	if s.LatencyP50 == nil || *s.LatencyP50 < 10*time.Millisecond || *s.LatencyP50 > 20*time.Millisecond {
		t.Errorf("P50 = %v, want about 10ms", s.LatencyP50)
	}
	if s.ThroughputRPS < 375 || s.ThroughputRPS > 625 {
		t.Errorf("ThroughputRPS = %v, want about 500", s.ThroughputRPS)
	}
	if len(s.Stages) != 1 || s.Stages[0].Requests != s.TotalRequests {
		t.Errorf("stage breakdown = %+v", s.Stages)
	}
	if got := tracker.Snapshot().TotalRequests; got != s.TotalRequests {
		t.Errorf("tracker saw %d outcomes, aggregator %d", got, s.TotalRequests)
	}
}
