// Package runner benchmarks the targets of a plan one after another.
package runner

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wesleyorama2/lbbench/internal/bench"
	"github.com/wesleyorama2/lbbench/internal/bench/loadgen"
	"github.com/wesleyorama2/lbbench/internal/config"
	"github.com/wesleyorama2/lbbench/internal/metrics"
)

// ErrAborted is returned when the run was cancelled before every target was
// benchmarked. The accompanying result holds the partial summaries.
var ErrAborted = errors.New("benchmark aborted")

// Options configures a Runner.
type Options struct {
	// RunID identifies the run in logs and reports. Generated when empty.
	RunID string

	Logger *zap.Logger

	// ProgressInterval is the cadence of progress log lines while a target
	// is running. Zero disables progress logging.
	ProgressInterval time.Duration

	// Exporter, when set, observes every outcome and receives every summary.
	Exporter *metrics.Exporter

	// Executor replaces the HTTP executor. Used by tests.
	Executor bench.Executor
}

// Result is the outcome of a whole run.
type Result struct {
	RunID     string
	PlanName  string
	StartedAt time.Time
	Elapsed   time.Duration

	// Stages is the ramp every target went through.
	Stages []config.Stage

	// Summaries are in plan order.
	Summaries []metrics.TargetSummary

	// Skipped lists the targets that were never started because the run
	// was aborted.
	Skipped []string

	Aborted bool
}

// Runner runs a plan.
type Runner struct {
	plan   *config.Plan
	opts   Options
	runID  string
	logger *zap.Logger
}

// NewRunID returns a fresh run id.
func NewRunID() string {
	return uuid.NewString()
}

// New creates a runner.
func New(plan *config.Plan, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	runID := opts.RunID
	if runID == "" {
		runID = NewRunID()
	}
	return &Runner{
		plan:   plan,
		opts:   opts,
		runID:  runID,
		logger: opts.Logger.With(zap.String("run_id", runID)),
	}
}

// RunID returns the id attached to every log line of the run.
func (r *Runner) RunID() string {
	return r.runID
}

// Run benchmarks every target in plan order. Targets are strictly
// sequential: a target starts only after the previous one has been fully
// aggregated.
//
// When ctx is cancelled the current target is summarized from the outcomes
// collected so far, the remaining targets are skipped and ErrAborted is
// returned together with the partial result.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	exec := r.opts.Executor
	if exec == nil {
		cfg := bench.DefaultHTTPClientConfig().ForConcurrency(r.plan.MaxConcurrency())
		exec = bench.NewHTTPExecutor(cfg)
	}

	gen := loadgen.New(exec, loadgen.Options{
		RequestDelay: r.plan.Settings.RequestDelay,
		Logger:       r.logger,
	})

	result := &Result{
		RunID:     r.runID,
		PlanName:  r.plan.Name,
		StartedAt: time.Now(),
		Stages:    r.plan.Stages,
	}

	r.logger.Info("benchmark started",
		zap.Int("targets", len(r.plan.Targets)),
		zap.Int("stages", len(r.plan.Stages)),
		zap.Duration("duration_per_target", r.plan.TotalDuration()))

	for i, target := range r.plan.Targets {
		if ctx.Err() != nil {
			for _, skipped := range r.plan.Targets[i:] {
				result.Skipped = append(result.Skipped, skipped.Name)
			}
			result.Aborted = true
			break
		}

		summary := r.runTarget(ctx, gen, target)
		result.Summaries = append(result.Summaries, summary)

		if closer, ok := exec.(interface{ CloseIdleConnections() }); ok {
			closer.CloseIdleConnections()
		}

		if summary.Aborted {
			result.Aborted = true
			for _, skipped := range r.plan.Targets[i+1:] {
				result.Skipped = append(result.Skipped, skipped.Name)
			}
			break
		}
	}

	result.Elapsed = time.Since(result.StartedAt)

	if result.Aborted {
		r.logger.Warn("benchmark aborted",
			zap.Int("completed_targets", len(result.Summaries)),
			zap.Strings("skipped", result.Skipped))
		return result, ErrAborted
	}

	r.logger.Info("benchmark finished", zap.Duration("elapsed", result.Elapsed))
	return result, nil
}

func (r *Runner) runTarget(ctx context.Context, gen *loadgen.Generator, target config.Target) metrics.TargetSummary {
	logger := r.logger.With(zap.String("target", target.Name))
	logger.Info("target started", zap.String("url", target.URL()))

	run := gen.Start(ctx, target, r.plan.Stages)

	tracker := metrics.NewTracker()
	observers := []metrics.Observer{tracker}
	if r.opts.Exporter != nil {
		observers = append(observers, r.opts.Exporter)
	}

	stopProgress := r.reportProgress(run, tracker, logger)
	summary := metrics.Aggregate(run, observers...)
	stopProgress()

	if r.opts.Exporter != nil {
		r.opts.Exporter.RecordSummary(summary)
	}

	fields := []zap.Field{
		zap.Int64("requests", summary.TotalRequests),
		zap.Int64("errors", summary.ErrorCount),
		zap.Float64("rps", summary.ThroughputRPS),
		zap.Duration("elapsed", summary.Elapsed),
	}
	if summary.LatencyP95 != nil {
		fields = append(fields, zap.Duration("p95", *summary.LatencyP95))
	}
	logger.Info("target finished", fields...)

	return summary
}

// reportProgress logs the tracker periodically until the returned function
// is called.
func (r *Runner) reportProgress(run *loadgen.Run, tracker *metrics.Tracker, logger *zap.Logger) func() {
	if r.opts.ProgressInterval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)

		ticker := time.NewTicker(r.opts.ProgressInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				p := tracker.Snapshot()
				logger.Info("progress",
					zap.Int("stage", run.CurrentStage()+1),
					zap.Int("workers", run.ActiveWorkers()),
					zap.Int64("requests", p.TotalRequests),
					zap.Float64("rps", p.RPS),
					zap.Float64("error_rate", p.ErrorRate),
					zap.Duration("p95", p.P95))
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
	}
}
