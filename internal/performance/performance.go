// Package performance provides the worker pool used for parallel backtest sweeps.
package performance

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrPoolStopped is returned when submitting to a pool that is not running.
var ErrPoolStopped = errors.New("worker pool is not running")

// ErrTaskPanicked wraps the value of a recovered task panic.
var ErrTaskPanicked = errors.New("task panicked")

// WorkerPool runs submitted tasks on a fixed number of goroutines.
type WorkerPool struct {
	workers    int
	taskQueue  chan func()
	wg         sync.WaitGroup
	pending    sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	running    atomic.Bool
	tasksTotal atomic.Uint64
	tasksDone  atomic.Uint64

	mu       sync.Mutex
	panicErr error
}

// NewWorkerPool creates a new worker pool with the specified number of workers.
// If workers is 0, it defaults to runtime.NumCPU().
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		workers:   workers,
		taskQueue: make(chan func(), workers*4),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts the worker pool.
func (p *WorkerPool) Start() {
	if p.running.Swap(true) {
		return // Already running
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.run(task)
		}
	}
}

// run executes one task. A panic is recovered and kept as the pool error so
// the worker survives and Wait still returns.
func (p *WorkerPool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.mu.Lock()
			if p.panicErr == nil {
				p.panicErr = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
			}
			p.mu.Unlock()
		}
		p.tasksDone.Add(1)
		p.pending.Done()
	}()
	task()
}

// Submit queues a task, blocking while the queue is full. It fails when ctx
// is done first or the pool is not running.
func (p *WorkerPool) Submit(ctx context.Context, task func()) error {
	if !p.running.Load() {
		return ErrPoolStopped
	}

	p.pending.Add(1)
	select {
	case p.taskQueue <- task:
		p.tasksTotal.Add(1)
		return nil
	case <-ctx.Done():
		p.pending.Done()
		return ctx.Err()
	case <-p.ctx.Done():
		p.pending.Done()
		return ErrPoolStopped
	}
}

// Wait blocks until every submitted task has finished.
func (p *WorkerPool) Wait() {
	p.pending.Wait()
}

// Err returns the first recovered task panic, or nil.
func (p *WorkerPool) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.panicErr
}

// Stop stops the worker pool and waits for all workers to finish.
// Queued tasks that have not started are dropped.
func (p *WorkerPool) Stop() {
	if !p.running.Swap(false) {
		return // Not running
	}

	p.cancel()
	p.wg.Wait()
}

// Stats returns pool statistics.
func (p *WorkerPool) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		Running:    p.running.Load(),
		TasksTotal: p.tasksTotal.Load(),
		TasksDone:  p.tasksDone.Load(),
		QueueLen:   len(p.taskQueue),
	}
}

// PoolStats contains worker pool statistics.
type PoolStats struct {
	Workers    int
	Running    bool
	TasksTotal uint64
	TasksDone  uint64
	QueueLen   int
}

// ForEach runs fn(i) for every i in [0, n) on a temporary pool and waits for
// all of them. It returns ctx.Err() if submission was cut short, or the first
// task panic wrapped in ErrTaskPanicked.
func ForEach(ctx context.Context, workers, n int, fn func(i int)) error {
	pool := NewWorkerPool(workers)
	pool.Start()
	defer pool.Stop()

	for i := 0; i < n; i++ {
		i := i
		if err := pool.Submit(ctx, func() { fn(i) }); err != nil {
			pool.Wait()
			return err
		}
	}
	pool.Wait()
	return pool.Err()
}
