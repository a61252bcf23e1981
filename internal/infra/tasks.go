package infra

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// TaskQueue is a bounded in-process work queue for post-response tasks
// (audit writes, AML analysis, last-used stamps). Submission never blocks
// the caller: when the queue is full the task is dropped and counted.
type TaskQueue struct {
	tasks   chan task
	logger  *slog.Logger
	wg      sync.WaitGroup
	timeout time.Duration

	mu      sync.Mutex
	dropped int64
}

type task struct {
	name string
	fn   func(context.Context) error
}

// NewTaskQueue creates a queue with the given capacity and worker count.
func NewTaskQueue(capacity, workers int, logger *slog.Logger) *TaskQueue {
	if capacity <= 0 {
		capacity = 256
	}
	if workers <= 0 {
		workers = 4
	}
	q := &TaskQueue{
		tasks:   make(chan task, capacity),
		logger:  logger,
		timeout: 30 * time.Second,
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Submit enqueues a task. Returns false if the queue is full.
func (q *TaskQueue) Submit(name string, fn func(context.Context) error) bool {
	select {
	case q.tasks <- task{name: name, fn: fn}:
		return true
	default:
		q.mu.Lock()
		q.dropped++
		q.mu.Unlock()
		q.logger.Warn("task queue full, task dropped", "task", name)
		return false
	}
}

// Dropped returns the number of tasks rejected because the queue was full.
func (q *TaskQueue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close stops accepting tasks and waits for in-flight ones to finish.
func (q *TaskQueue) Close() {
	close(q.tasks)
	q.wg.Wait()
}

func (q *TaskQueue) worker() {
	defer q.wg.Done()
	for t := range q.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		if err := t.fn(ctx); err != nil {
			q.logger.Error("background task failed", "task", t.name, "error", err)
		}
		cancel()
	}
}
