// Package loadgen drives one target through the ramp stages of a plan.
//
// A single supervisor goroutine walks the stages. At every stage boundary it
// records the stage start on the Timeline and scales the worker pool to the
// stage concurrency: new workers are spawned, excess workers are taken from
// the end of the pool and stopped after their current request. Transitions
// are immediate; there is no interpolation between stages.
package loadgen

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/lbbench/internal/bench"
	"github.com/wesleyorama2/lbbench/internal/config"
)

const minBufferSize = 1024

// Options configures a Generator.
type Options struct {
	// RequestDelay is the minimum spacing between request starts of one
	// worker. Zero means back-to-back requests.
	RequestDelay time.Duration

	// BufferSize is the outcome channel capacity. Defaults to four times the
	// highest stage concurrency, at least 1024.
	BufferSize int

	Logger *zap.Logger
}

// Generator starts load generation runs.
type Generator struct {
	exec bench.Executor
	opts Options
}

// New creates a generator that issues requests through exec.
func New(exec bench.Executor, opts Options) *Generator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Generator{exec: exec, opts: opts}
}

// Stats describes a finished run.
type Stats struct {
	StartedAt time.Time
	Windows   []StageWindow
	Elapsed   time.Duration
	Spawned   int
	Aborted   bool
}

// Run is one target's load generation in progress.
type Run struct {
	target   config.Target
	outcomes chan bench.Outcome
	timeline *Timeline
	pool     *bench.Pool
	logger   *zap.Logger

	currentStage atomic.Int32
	done         chan struct{}
	stats        Stats
}

// Start begins generating load against target following stages and returns
// immediately.
//
// The returned run's Outcomes channel must be drained until it is closed.
// Cancelling ctx aborts the run: workers stop issuing requests, in-flight
// requests finish or time out, and the channel is closed.
func (g *Generator) Start(ctx context.Context, target config.Target, stages []config.Stage) *Run {
	size := g.opts.BufferSize
	if size <= 0 {
		size = 4 * maxConcurrency(stages)
		if size < minBufferSize {
			size = minBufferSize
		}
	}

	outcomes := make(chan bench.Outcome, size)
	r := &Run{
		target:   target,
		outcomes: outcomes,
		timeline: NewTimeline(),
		pool:     bench.NewPool(g.exec, target, g.opts.RequestDelay, outcomes),
		logger:   g.opts.Logger.With(zap.String("target", target.Name)),
		done:     make(chan struct{}),
	}
	r.currentStage.Store(-1)

	go r.supervise(ctx, stages)
	return r
}

// supervise walks the stages, then shuts the pool down and closes the
// outcome channel.
func (r *Run) supervise(ctx context.Context, stages []config.Stage) {
	defer close(r.done)

	startTime := time.Now()
	aborted := false

	for i, stage := range stages {
		if ctx.Err() != nil {
			aborted = true
			break
		}

		r.timeline.Begin(i, stage.Concurrency)
		r.currentStage.Store(int32(i))
		size := r.pool.Scale(ctx, stage.Concurrency)

		r.logger.Debug("stage started",
			zap.Int("stage", i+1),
			zap.Int("concurrency", size),
			zap.Duration("duration", stage.Duration))

		timer := time.NewTimer(stage.Duration)
		select {
		case <-ctx.Done():
			timer.Stop()
			aborted = true
		case <-timer.C:
		}

		if aborted {
			break
		}
	}

	r.pool.StopAll()
	r.timeline.Finish()
	r.pool.Wait()
	close(r.outcomes)

	r.stats = Stats{
		StartedAt: startTime,
		Windows:   r.timeline.Windows(),
		Elapsed:   r.timeline.Elapsed(),
		Spawned:   r.pool.Spawned(),
		Aborted:   aborted,
	}

	r.logger.Debug("run finished",
		zap.Duration("elapsed", r.stats.Elapsed),
		zap.Int("workers_spawned", r.stats.Spawned),
		zap.Bool("aborted", aborted))
}

// Outcomes returns the outcome stream. It is closed once the final stage has
// drained.
func (r *Run) Outcomes() <-chan bench.Outcome {
	return r.outcomes
}

// Timeline returns the stage timeline of the run.
func (r *Run) Timeline() *Timeline {
	return r.timeline
}

// Target returns the target being benchmarked.
func (r *Run) Target() config.Target {
	return r.target
}

// CurrentStage returns the index of the running stage, or -1 before the
// first stage starts.
func (r *Run) CurrentStage() int {
	return int(r.currentStage.Load())
}

// ActiveWorkers returns the number of worker goroutines still running.
func (r *Run) ActiveWorkers() int {
	return r.pool.Active()
}

// Done is closed when the run has finished and its stats are final.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Stats waits for the run to finish and returns its stats. The outcome
// channel must be drained concurrently or Stats blocks forever.
func (r *Run) Stats() Stats {
	<-r.done
	return r.stats
}

func maxConcurrency(stages []config.Stage) int {
	highest := 0
	for _, s := range stages {
		if s.Concurrency > highest {
			highest = s.Concurrency
		}
	}
	return highest
}
