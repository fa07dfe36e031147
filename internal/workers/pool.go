// Package workers provides a bounded goroutine pool for per-instrument
// evaluation. Worker count is a tuning parameter, not a correctness
// requirement: every task owns its inputs.
package workers

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Task is a unit of work to be processed.
type Task interface {
	Execute(ctx context.Context) error
}

// TaskFunc adapts a function to the Task interface.
type TaskFunc func(ctx context.Context) error

// Execute runs the function.
func (f TaskFunc) Execute(ctx context.Context) error { return f(ctx) }

// Pool runs submitted tasks on a fixed number of worker goroutines.
type Pool struct {
	logger *zap.Logger
	config PoolConfig

	taskQueue chan Task
	wg        sync.WaitGroup
	pending   sync.WaitGroup

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	completed atomic.Int64
	failed    atomic.Int64
	recovered atomic.Int64
}

// PoolConfig configures the worker pool.
type PoolConfig struct {
	Name       string // pool name for logging
	NumWorkers int    // number of worker goroutines
	QueueSize  int    // size of the task queue
}

// DefaultPoolConfig returns defaults sized for a watch-list evaluation run,
// where each task blocks on one provider fetch and then computes quickly.
func DefaultPoolConfig(name string) PoolConfig {
	return PoolConfig{Name: name, NumWorkers: 5, QueueSize: 256}
}

// NewPool creates a stopped pool.
func NewPool(logger *zap.Logger, config PoolConfig) *Pool {
	if config.NumWorkers < 1 {
		config.NumWorkers = 1
	}
	if config.QueueSize < 1 {
		config.QueueSize = config.NumWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		logger:    logger,
		config:    config,
		taskQueue: make(chan Task, config.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	if p.running.Swap(true) {
		return
	}

	p.logger.Debug("starting worker pool",
		zap.String("name", p.config.Name),
		zap.Int("workers", p.config.NumWorkers))

	for i := 0; i < p.config.NumWorkers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
}

func (p *Pool) run(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.execute(id, task)
		}
	}
}

func (p *Pool) execute(id int, task Task) {
	defer p.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			p.recovered.Add(1)
			p.failed.Add(1)
			p.logger.Error("worker recovered from panic",
				zap.String("pool", p.config.Name),
				zap.Int("worker_id", id),
				zap.Any("panic", r))
		}
	}()

	if err := task.Execute(p.ctx); err != nil {
		p.failed.Add(1)
		p.logger.Debug("task failed", zap.String("pool", p.config.Name), zap.Error(err))
		return
	}
	p.completed.Add(1)
}

// Submit queues a task. It blocks while the queue is full and returns
// ErrPoolStopped once the pool is shut down.
func (p *Pool) Submit(task Task) error {
	if !p.running.Load() {
		return ErrPoolStopped
	}
	p.pending.Add(1)
	select {
	case p.taskQueue <- task:
		return nil
	case <-p.ctx.Done():
		p.pending.Done()
		return ErrPoolStopped
	}
}

// SubmitFunc queues a function as a task.
func (p *Pool) SubmitFunc(fn func(ctx context.Context) error) error {
	return p.Submit(TaskFunc(fn))
}

// Wait blocks until every submitted task has finished.
func (p *Pool) Wait() {
	p.pending.Wait()
}

// Stop shuts the pool down after in-flight tasks complete.
func (p *Pool) Stop() {
	if !p.running.Swap(false) {
		return
	}
	p.pending.Wait()
	p.cancel()
	p.wg.Wait()

	p.logger.Debug("worker pool stopped",
		zap.String("name", p.config.Name),
		zap.Int64("completed", p.completed.Load()),
		zap.Int64("failed", p.failed.Load()))
}

// Stats reports pool counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Recovered: p.recovered.Load(),
	}
}

// PoolStats contains pool counters.
type PoolStats struct {
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Recovered int64 `json:"recovered"`
}

// ErrPoolStopped is returned by Submit after Stop.
var ErrPoolStopped = &PoolError{Message: "pool is stopped"}

// PoolError represents a pool error.
type PoolError struct {
	Message string
}

func (e *PoolError) Error() string { return e.Message }
