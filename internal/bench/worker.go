package bench

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/wesleyorama2/lbbench/internal/config"
)

// WorkerState represents the lifecycle state of a worker.
type WorkerState int32

const (
	// WorkerIdle indicates the worker is between requests.
	WorkerIdle WorkerState = iota
	// WorkerRunning indicates a request is in flight.
	WorkerRunning
	// WorkerStopping indicates the worker has been asked to stop after its
	// current request.
	WorkerStopping
	// WorkerStopped indicates the worker goroutine has exited.
	WorkerStopped
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerRunning:
		return "running"
	case WorkerStopping:
		return "stopping"
	case WorkerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Worker is one request loop. It issues requests strictly one after another
// against a single target until it is stopped or the run is cancelled.
type Worker struct {
	// Unique identifier within the pool
	ID int

	// Lifecycle state (atomic for lock-free reads)
	state atomic.Int32

	// Stop signal
	stopCh chan struct{}

	// Done signal (closed when the worker fully stops)
	doneCh chan struct{}

	// Optional pacing between request starts
	limiter *rate.Limiter

	requests atomic.Int64
}

// NewWorker creates a worker. A positive delay spaces consecutive request
// starts at least that far apart.
func NewWorker(id int, delay time.Duration) *Worker {
	w := &Worker{
		ID:     id,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	if delay > 0 {
		w.limiter = rate.NewLimiter(rate.Every(delay), 1)
	}
	return w
}

// GetState returns the current worker state.
func (w *Worker) GetState() WorkerState {
	return WorkerState(w.state.Load())
}

// Requests returns how many requests the worker has completed.
func (w *Worker) Requests() int64 {
	return w.requests.Load()
}

// Run issues requests until the worker is stopped or ctx is cancelled.
//
// Cancellation is checked between requests. A request already in flight is
// detached from ctx and only bounded by the target timeout, so its outcome is
// still delivered to out.
func (w *Worker) Run(ctx context.Context, exec Executor, target config.Target, out chan<- Outcome) {
	defer w.MarkStopped()

	reqCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return
			}
		}

		if !w.state.CompareAndSwap(int32(WorkerIdle), int32(WorkerRunning)) {
			return
		}

		outcome := exec.Execute(reqCtx, target)
		w.requests.Add(1)
		out <- outcome

		w.state.CompareAndSwap(int32(WorkerRunning), int32(WorkerIdle))
	}
}

// RequestStop signals the worker to stop after its current request.
func (w *Worker) RequestStop() {
	if w.state.CompareAndSwap(int32(WorkerRunning), int32(WorkerStopping)) ||
		w.state.CompareAndSwap(int32(WorkerIdle), int32(WorkerStopping)) {
		close(w.stopCh)
	}
}

// WaitForStop waits for the worker to stop with a timeout.
//
// Returns true if the worker stopped within the timeout, false otherwise.
func (w *Worker) WaitForStop(timeout time.Duration) bool {
	select {
	case <-w.doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// MarkStopped marks the worker as fully stopped.
func (w *Worker) MarkStopped() {
	w.state.Store(int32(WorkerStopped))
	select {
	case <-w.doneCh:
	default:
		close(w.doneCh)
	}
}
