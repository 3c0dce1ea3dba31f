package bench

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/lbbench/internal/config"
)

// Pool manages the workers of one target run.
//
// It provides:
//   - worker spawning and stopping (Scale)
//   - a shared outcome channel
//   - shutdown coordination (StopAll, Wait)
//
// The pool is driven by a single supervisor; Scale is not meant to be called
// concurrently from several goroutines, but the read accessors are safe.
type Pool struct {
	exec   Executor
	target config.Target
	delay  time.Duration
	out    chan<- Outcome

	workers   []*Worker
	workersMu sync.Mutex

	nextID  int
	spawned atomic.Int64
	active  atomic.Int32
	wg      sync.WaitGroup
}

// NewPool creates a pool whose workers send their outcomes to out.
func NewPool(exec Executor, target config.Target, delay time.Duration, out chan<- Outcome) *Pool {
	return &Pool{
		exec:   exec,
		target: target,
		delay:  delay,
		out:    out,
	}
}

// Scale adjusts the number of workers to n.
//
// New workers start issuing requests immediately. Excess workers are taken
// from the end of the pool and asked to stop after their current request.
// Returns the pool size after adjustment.
func (p *Pool) Scale(ctx context.Context, n int) int {
	p.workersMu.Lock()
	defer p.workersMu.Unlock()

	current := len(p.workers)

	if n > current {
		for i := current; i < n; i++ {
			p.nextID++
			w := NewWorker(p.nextID, p.delay)
			p.workers = append(p.workers, w)
			p.spawned.Add(1)
			p.wg.Add(1)
			go p.runWorker(ctx, w)
		}
	} else if n < current {
		for i := current - 1; i >= n; i-- {
			p.workers[i].RequestStop()
		}
		p.workers = p.workers[:n]
	}

	return len(p.workers)
}

func (p *Pool) runWorker(ctx context.Context, w *Worker) {
	defer p.wg.Done()

	p.active.Add(1)
	defer p.active.Add(-1)

	w.Run(ctx, p.exec, p.target, p.out)
}

// Size returns the number of workers currently assigned to the pool.
func (p *Pool) Size() int {
	p.workersMu.Lock()
	defer p.workersMu.Unlock()
	return len(p.workers)
}

// Active returns the number of worker goroutines still running, including
// workers that were asked to stop and are finishing their last request.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Spawned returns how many workers were started over the pool's lifetime.
func (p *Pool) Spawned() int {
	return int(p.spawned.Load())
}

// StopAll asks every worker to stop after its current request.
func (p *Pool) StopAll() {
	p.Scale(context.Background(), 0)
}

// Wait blocks until every worker goroutine has exited. In-flight requests
// are bounded by the target timeout, so Wait returns within one timeout of
// StopAll or cancellation.
func (p *Pool) Wait() {
	p.wg.Wait()
}
