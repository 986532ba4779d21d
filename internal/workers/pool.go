package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrPoolStopped = errors.New("worker pool stopped")
	ErrQueueFull   = errors.New("worker queue full")
)

// Task is a unit of background work, typically one backtest run.
type Task interface {
	ID() string
	Execute(ctx context.Context) error
}

// TaskFunc adapts a plain function to the Task interface.
type TaskFunc struct {
	TaskID string
	Fn     func(ctx context.Context) error
}

func (t TaskFunc) ID() string { return t.TaskID }

func (t TaskFunc) Execute(ctx context.Context) error { return t.Fn(ctx) }

type Config struct {
	NumWorkers int
	QueueSize  int
}

func DefaultConfig() Config {
	return Config{
		NumWorkers: 4,
		QueueSize:  64,
	}
}

// Pool runs submitted tasks on a fixed set of goroutines.
type Pool struct {
	logger *zap.Logger
	config Config

	queue  chan Task
	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	stopped bool

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

func NewPool(logger *zap.Logger, config Config) *Pool {
	if config.NumWorkers <= 0 {
		config.NumWorkers = DefaultConfig().NumWorkers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}
	return &Pool{
		logger: logger.Named("workers"),
		config: config,
		queue:  make(chan Task, config.QueueSize),
	}
}

func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("worker pool already started")
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.config.NumWorkers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	p.logger.Info("worker pool started",
		zap.Int("workers", p.config.NumWorkers),
		zap.Int("queue_size", p.config.QueueSize))
	return nil
}

// Submit enqueues a task without blocking. It fails when the queue is
// full or the pool has been stopped.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || !p.started {
		return ErrPoolStopped
	}

	select {
	case p.queue <- task:
		p.submitted.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop drains queued tasks and waits for in-flight work to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.queue)
	p.wg.Wait()
	if p.cancel != nil {
		p.cancel()
	}
	p.logger.Info("worker pool stopped",
		zap.Int64("completed", p.completed.Load()),
		zap.Int64("failed", p.failed.Load()))
}

func (p *Pool) Stats() (submitted, completed, failed int64) {
	return p.submitted.Load(), p.completed.Load(), p.failed.Load()
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for task := range p.queue {
		p.execute(ctx, id, task)
	}
}

func (p *Pool) execute(ctx context.Context, workerID int, task Task) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			p.logger.Error("task panicked",
				zap.Int("worker", workerID),
				zap.String("task_id", task.ID()),
				zap.Any("panic", r))
		}
	}()

	err := task.Execute(ctx)
	elapsed := time.Since(start)
	if err != nil {
		p.failed.Add(1)
		p.logger.Warn("task failed",
			zap.Int("worker", workerID),
			zap.String("task_id", task.ID()),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return
	}
	p.completed.Add(1)
	p.logger.Debug("task completed",
		zap.Int("worker", workerID),
		zap.String("task_id", task.ID()),
		zap.Duration("elapsed", elapsed))
}

// String reports queue occupancy for diagnostics endpoints.
func (p *Pool) String() string {
	return fmt.Sprintf("workers=%d queued=%d submitted=%d completed=%d failed=%d",
		p.config.NumWorkers, len(p.queue),
		p.submitted.Load(), p.completed.Load(), p.failed.Load())
}
