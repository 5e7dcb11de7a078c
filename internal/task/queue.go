package task

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var (
	// ErrQueueFull reports that the queue has no room for another task.
	ErrQueueFull = eris.New("task queue is full")

	// ErrQueueClosed reports an enqueue attempted during or after shutdown.
	ErrQueueClosed = eris.New("task queue is shut down")
)

// Runner executes one registered task to completion, recording the outcome on
// the registry. The returned error is for logging only.
type Runner interface {
	RunTask(ctx context.Context, taskID string) error
}

// Job is one unit of queued work.
type Job struct {
	TaskID string
}

// Queue fans registered tasks out to a fixed pool of workers over a bounded
// channel. A full channel rejects instead of blocking, so the HTTP layer can
// shed load.
type Queue struct {
	runner  Runner
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithWorkers sets the worker count.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithCapacity sets the queue buffer size.
func WithCapacity(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

// WithTaskTimeout bounds the wall time of a single task.
func WithTaskTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// NewQueue creates the queue and starts its workers.
func NewQueue(runner Runner, opts ...Option) *Queue {
	q := &Queue{
		runner:  runner,
		workers: 4,
		timeout: 5 * time.Minute,
		ch:      make(chan Job, 64),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				zap.L().Info("task worker started", zap.Int("worker_id", workerID))

				for job := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					err := q.runner.RunTask(ctx, job.TaskID)
					cancel()

					if err != nil {
						zap.L().Error("task failed",
							zap.Int("worker_id", workerID),
							zap.String("task_id", job.TaskID),
							zap.Error(err),
						)
					}
				}

				zap.L().Info("task worker stopped", zap.Int("worker_id", workerID))
			}(i + 1)
		}
	})
}

// TryEnqueue hands a job to the workers without blocking. A full queue
// returns ErrQueueFull and a stopped queue returns ErrQueueClosed; the caller
// owns unwinding whatever the job referenced.
func (q *Queue) TryEnqueue(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- job:
		zap.L().Info("task queued", zap.String("task_id", job.TaskID), zap.Int("depth", len(q.ch)))
		return nil
	default:
		zap.L().Warn("task queue full", zap.String("task_id", job.TaskID))
		return ErrQueueFull
	}
}

// Shutdown stops intake and waits for in-flight tasks to drain, giving up
// when ctx expires.
func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		zap.L().Warn("task queue shutdown interrupted")
	case <-done:
		zap.L().Info("task queue drained")
	}
}
