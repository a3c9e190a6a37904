// Package executor runs a wave of jobs on a bounded number of workers.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/liweiyi88/pgbackup/jobresult"
)

const DefaultMaxWorkers = 5

var ErrPanic = errors.New("job panicked")

// Work performs a single job and returns its captured output.
type Work func(ctx context.Context, job *jobresult.Job) (string, error)

type Option func(executor *Executor)

// WithTimeout bounds every job with its own deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(executor *Executor) {
		executor.timeout = timeout
	}
}

// WithOnResult is called once per finished job, from the goroutine that called RunAll.
func WithOnResult(onResult func(result *jobresult.JobResult)) Option {
	return func(executor *Executor) {
		executor.onResult = onResult
	}
}

type Executor struct {
	maxWorkers int
	timeout    time.Duration
	onResult   func(result *jobresult.JobResult)
}

func New(maxWorkers int, opts ...Option) *Executor {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}

	executor := &Executor{maxWorkers: maxWorkers}
	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

func (executor *Executor) MaxWorkers() int {
	return executor.maxWorkers
}

// RunAll runs every job and waits for all of them. A failing or panicking job
// never stops its siblings. Results are returned in completion order; jobs that
// had not started when ctx was cancelled are reported with the context error.
func (executor *Executor) RunAll(ctx context.Context, jobs []*jobresult.Job, work Work) []*jobresult.JobResult {
	resultCh := make(chan *jobresult.JobResult, len(jobs))
	semaphore := make(chan struct{}, executor.maxWorkers)

	var wg sync.WaitGroup

	go func() {
		defer func() {
			wg.Wait()
			close(resultCh)
		}()

		for _, job := range jobs {
			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				resultCh <- &jobresult.JobResult{Job: job, Error: ctx.Err()}
				continue
			}

			if err := ctx.Err(); err != nil {
				<-semaphore
				resultCh <- &jobresult.JobResult{Job: job, Error: err}
				continue
			}

			wg.Add(1)
			go func() {
				defer func() {
					<-semaphore
					wg.Done()
				}()

				resultCh <- executor.run(ctx, job, work)
			}()
		}
	}()

	results := make([]*jobresult.JobResult, 0, len(jobs))
	for result := range resultCh {
		if executor.onResult != nil {
			executor.onResult(result)
		}

		results = append(results, result)
	}

	return results
}

func (executor *Executor) run(ctx context.Context, job *jobresult.Job, work Work) (result *jobresult.JobResult) {
	start := time.Now()
	result = &jobresult.JobResult{Job: job}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("job panicked", slog.String("job", result.JobName()), slog.Any("panic", r))
			result.Error = fmt.Errorf("%w: %v", ErrPanic, r)
		}

		result.Elapsed = time.Since(start)
	}()

	if executor.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, executor.timeout)
		defer cancel()
	}

	output, err := work(ctx, job)
	result.Output = output
	result.Error = err

	return result
}

// RunAll runs jobs on at most maxWorkers goroutines with default options.
func RunAll(ctx context.Context, jobs []*jobresult.Job, maxWorkers int, work Work) []*jobresult.JobResult {
	return New(maxWorkers).RunAll(ctx, jobs, work)
}
