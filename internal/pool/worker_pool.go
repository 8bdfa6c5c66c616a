// Package pool runs per-record work with bounded parallelism and rate limiting.
package pool

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/kyleking/slidefill/internal/errors"
)

// WorkerPool manages parallel execution of API-bound tasks with rate limiting
type WorkerPool struct {
	workers     int
	rateLimiter chan struct{}
	interval    time.Duration
}

// NewWorkerPool creates a pool of workers sharing burst tokens. A token is
// returned interval after it was taken; zero returns it immediately.
func NewWorkerPool(workers, burst int, interval time.Duration) *WorkerPool {
	if workers < 1 {
		workers = 1
	}

	if burst < 1 {
		burst = workers
	}

	rateLimiter := make(chan struct{}, burst)
	for range burst {
		rateLimiter <- struct{}{}
	}

	return &WorkerPool{
		workers:     workers,
		rateLimiter: rateLimiter,
		interval:    interval,
	}
}

// Workers returns the parallelism bound
func (wp *WorkerPool) Workers() int {
	return wp.workers
}

// Task represents a unit of work for the worker pool
type Task struct {
	ID   string
	Func func(ctx context.Context) (interface{}, error)
}

// Result represents the result of a task execution.
// Started is false for tasks that never ran because the context ended first.
type Result struct {
	ID      string
	Data    interface{}
	Error   error
	Started bool
}

// Execute runs tasks in parallel. The result slice is aligned with tasks,
// so results[i] always belongs to tasks[i].
func (wp *WorkerPool) Execute(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	for i, t := range tasks {
		results[i].ID = t.ID
	}

	if len(tasks) == 0 {
		return results
	}

	indexes := make(chan int)

	var wg sync.WaitGroup

	for range min(wp.workers, len(tasks)) {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range indexes {
				results[i] = wp.executeTask(ctx, tasks[i])
			}
		}()
	}

	dispatched := 0

dispatch:
	for i := range tasks {
		select {
		case indexes <- i:
			dispatched++
		case <-ctx.Done():
			break dispatch
		}
	}

	close(indexes)
	wg.Wait()

	for i := dispatched; i < len(tasks); i++ {
		results[i].Error = ctx.Err()
	}

	return results
}

// executeTask runs a single task once it holds a rate limit token
func (wp *WorkerPool) executeTask(ctx context.Context, task Task) Result {
	if err := ctx.Err(); err != nil {
		return Result{ID: task.ID, Error: err}
	}

	select {
	case <-wp.rateLimiter:
	case <-ctx.Done():
		return Result{ID: task.ID, Error: ctx.Err()}
	}

	defer wp.returnToken()

	data, err := task.Func(ctx)

	return Result{ID: task.ID, Data: data, Error: err, Started: true}
}

func (wp *WorkerPool) returnToken() {
	if wp.interval <= 0 {
		wp.rateLimiter <- struct{}{}
		return
	}

	time.AfterFunc(wp.interval, func() {
		wp.rateLimiter <- struct{}{}
	})
}

// Backoff configures Retry
type Backoff struct {
	Base       time.Duration
	Max        time.Duration
	MaxRetries int
}

// nextBackoff calculates the next backoff duration with exponential backoff
func (b Backoff) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if b.Max > 0 && next > b.Max {
		return b.Max
	}

	return next
}

// Retry calls fn until it succeeds, fails with an error that is not a rate
// limit, or MaxRetries retries have been spent.
func Retry(ctx context.Context, b Backoff, fn func(ctx context.Context) error) error {
	delay := b.Base

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil || !IsRateLimitError(err) || attempt >= b.MaxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}

		delay = b.nextBackoff(delay)
	}
}

// IsRateLimitError checks if an error is related to rate limiting
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	if errors.IsType(err, errors.ErrTypeRateLimit) {
		return true
	}

	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) {
		if apiErr.Code == 429 {
			return true
		}

		if apiErr.Code == 403 {
			for _, item := range apiErr.Errors {
				if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
					return true
				}
			}
		}

		return false
	}

	return strings.Contains(strings.ToLower(err.Error()), "rate limit")
}
