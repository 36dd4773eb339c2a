package pools

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Job is a unit of work handed to the pool. Once submitted the pool owns it.
type Job interface {
	Run()
}

// JobFunc adapts a plain function to the Job interface
type JobFunc func()

// Run calls f()
func (f JobFunc) Run() { f() }

var (
	// ErrInvalidPoolSize is matched by the ConfigError returned for size < 1.
	ErrInvalidPoolSize = errors.New("pool size must be at least 1")
	// ErrPoolClosed is returned by Submit once Shutdown has begun.
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrNilJob is returned when a nil job is submitted.
	ErrNilJob = errors.New("nil job")
)

// ConfigError reports an invalid pool construction parameter
type ConfigError struct {
	Size int
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid worker pool size %d: %v", e.Size, ErrInvalidPoolSize)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidPoolSize }

// WorkerPool runs submitted jobs on a fixed set of long-lived worker goroutines.
//
// All workers receive from one shared channel, so each job is taken by exactly
// one worker: whichever is idle first. Closing the channel is the shutdown
// signal; workers drain what was already accepted and then exit.
type WorkerPool struct {
	size    int
	jobs    chan Job
	workers []*worker
	wg      sync.WaitGroup
	logger  *slog.Logger

	// quit is closed first by Shutdown and releases every Submit waiting on a
	// send. mu then guards closing jobs against sends still in flight.
	quit     chan struct{}
	quitOnce sync.Once
	mu       sync.RWMutex
	closed   bool

	// Statistics
	stats struct {
		tasksSubmitted atomic.Uint64
		tasksCompleted atomic.Uint64
		tasksPanicked  atomic.Uint64
		busyWorkers    atomic.Int64
	}
}

// worker is one goroutine draining the shared job channel
type worker struct {
	id   int
	pool *WorkerPool
}

// Option configures a WorkerPool.
type Option func(*poolOptions)

type poolOptions struct {
	queueSize int
	logger    *slog.Logger
}

// WithQueueSize buffers up to n accepted jobs ahead of the workers.
// The default of 0 hands each job directly to an idle worker.
func WithQueueSize(n int) Option {
	return func(o *poolOptions) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithLogger sets the logger used for worker lifecycle and job panics.
func WithLogger(l *slog.Logger) Option {
	return func(o *poolOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewWorkerPool creates size workers and starts them immediately
func NewWorkerPool(size int, opts ...Option) (*WorkerPool, error) {
	if size < 1 {
		return nil, &ConfigError{Size: size}
	}

	o := poolOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	pool := &WorkerPool{
		size:    size,
		jobs:    make(chan Job, o.queueSize),
		quit:    make(chan struct{}),
		workers: make([]*worker, size),
		logger:  o.logger,
	}

	for i := 0; i < size; i++ {
		w := &worker{id: i, pool: pool}
		pool.workers[i] = w
		pool.wg.Add(1)
		go w.run()
	}

	pool.logger.Debug("worker pool started",
		slog.Int("workers", size),
		slog.Int("queue_size", o.queueSize),
	)

	return pool, nil
}

// Size returns the number of workers
func (p *WorkerPool) Size() int { return p.size }

// Submit hands job to the pool. It blocks until a worker (or a queue slot)
// accepts the job and fails with ErrPoolClosed once Shutdown has begun,
// including when it was already waiting at that moment.
func (p *WorkerPool) Submit(job Job) error {
	if job == nil {
		return ErrNilJob
	}

	select {
	case <-p.quit:
		return ErrPoolClosed
	default:
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobs <- job:
		p.stats.tasksSubmitted.Add(1)
		return nil
	case <-p.quit:
		return ErrPoolClosed
	}
}

// SubmitFunc submits f as a job
func (p *WorkerPool) SubmitFunc(f func()) error {
	if f == nil {
		return ErrNilJob
	}
	return p.Submit(JobFunc(f))
}

// Shutdown stops accepting jobs and waits for every worker to exit.
// Jobs accepted before the call still run to completion. Safe to call more than once.
func (p *WorkerPool) Shutdown() {
	p.quitOnce.Do(func() { close(p.quit) })

	p.mu.Lock()
	if !p.closed {
		p.closed = true
		p.logger.Debug("worker pool shutting down", slog.Int("workers", p.size))
		close(p.jobs)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

// Closed reports whether Shutdown has begun
func (p *WorkerPool) Closed() bool {
	select {
	case <-p.quit:
		return true
	default:
		return false
	}
}

// run is the main loop for a worker goroutine
func (w *worker) run() {
	defer w.pool.wg.Done()

	for job := range w.pool.jobs {
		w.execute(job)
	}

	w.pool.logger.Debug("worker disconnected; shutting down", slog.Int("worker", w.id))
}

// execute runs one job. A panic is confined to this job; the worker moves on.
func (w *worker) execute(job Job) {
	p := w.pool
	p.stats.busyWorkers.Add(1)
	defer func() {
		p.stats.busyWorkers.Add(-1)
		p.stats.tasksCompleted.Add(1)
		if r := recover(); r != nil {
			p.stats.tasksPanicked.Add(1)
			p.logger.Error("job panicked",
				slog.Int("worker", w.id),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	job.Run()
}

// Stats returns pool statistics
func (p *WorkerPool) Stats() WorkerPoolStats {
	completed := p.stats.tasksCompleted.Load()
	submitted := p.stats.tasksSubmitted.Load()
	if completed > submitted {
		completed = submitted
	}
	return WorkerPoolStats{
		NumWorkers:     p.size,
		BusyWorkers:    int(p.stats.busyWorkers.Load()),
		TasksSubmitted: submitted,
		TasksCompleted: completed,
		TasksPanicked:  p.stats.tasksPanicked.Load(),
		TasksPending:   submitted - completed,
	}
}

// WorkerPoolStats contains pool statistics
type WorkerPoolStats struct {
	NumWorkers     int
	BusyWorkers    int
	TasksSubmitted uint64
	TasksCompleted uint64
	TasksPanicked  uint64
	TasksPending   uint64
}
