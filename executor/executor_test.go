package executor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/liweiyi88/pgbackup/jobresult"
	"github.com/stretchr/testify/assert"
)

func newJobs(n int) []*jobresult.Job {
	jobs := make([]*jobresult.Job, 0, n)
	for i := range n {
		jobs = append(jobs, &jobresult.Job{Database: fmt.Sprintf("db%d", i), Operation: jobresult.OperationFull})
	}

	return jobs
}

func TestRunAllIsolatesFailures(t *testing.T) {
	assert := assert.New(t)

	jobs := newJobs(10)
	failing := jobs[rand.IntN(len(jobs))]
	jobErr := errors.New("pg_dump failed")

	var running, peak atomic.Int32

	results := RunAll(context.Background(), jobs, 3, func(ctx context.Context, job *jobresult.Job) (string, error) {
		current := running.Add(1)
		defer running.Add(-1)

		for {
			old := peak.Load()
			if current <= old || peak.CompareAndSwap(old, current) {
				break
			}
		}

		time.Sleep(10 * time.Millisecond)

		if job == failing {
			return "", jobErr
		}

		return "dumped " + job.Database, nil
	})

	assert.Len(results, 10)
	assert.LessOrEqual(peak.Load(), int32(3))

	failed := 0
	seen := make(map[*jobresult.Job]bool)
	for _, result := range results {
		seen[result.Job] = true
		if !result.Succeeded() {
			failed++
			assert.Same(failing, result.Job)
			assert.ErrorIs(result.Error, jobErr)
			continue
		}

		assert.Equal("dumped "+result.Job.Database, result.Output)
	}

	assert.Equal(1, failed)
	assert.Len(seen, 10)
}

func TestRunAllRecoversPanic(t *testing.T) {
	assert := assert.New(t)

	jobs := newJobs(3)
	results := RunAll(context.Background(), jobs, 2, func(ctx context.Context, job *jobresult.Job) (string, error) {
		if job.Database == "db1" {
			panic("boom")
		}

		return "", nil
	})

	assert.Len(results, 3)

	for _, result := range results {
		if result.Job.Database == "db1" {
			assert.ErrorIs(result.Error, ErrPanic)
			assert.ErrorContains(result.Error, "boom")
			continue
		}

		assert.True(result.Succeeded())
	}
}

func TestRunAllSequentialKeepsOrder(t *testing.T) {
	assert := assert.New(t)

	var mu sync.Mutex
	order := make([]string, 0)

	results := New(1).RunAll(context.Background(), newJobs(4), func(ctx context.Context, job *jobresult.Job) (string, error) {
		mu.Lock()
		order = append(order, job.Database)
		mu.Unlock()

		if job.Database == "db1" {
			return "", errors.New("failed")
		}

		return "", nil
	})

	assert.Equal([]string{"db0", "db1", "db2", "db3"}, order)
	assert.Len(results, 4)
	assert.False(results[1].Succeeded())
	assert.True(results[3].Succeeded())
}

func TestRunAllEmpty(t *testing.T) {
	results := RunAll(context.Background(), nil, 3, func(ctx context.Context, job *jobresult.Job) (string, error) {
		t.Fatal("should not be called")
		return "", nil
	})

	assert.Empty(t, results)
}

func TestRunAllCancelled(t *testing.T) {
	assert := assert.New(t)
	ctx, cancel := context.WithCancel(context.Background())

	var started atomic.Int32

	results := New(1).RunAll(ctx, newJobs(5), func(ctx context.Context, job *jobresult.Job) (string, error) {
		started.Add(1)
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	})

	assert.Len(results, 5)
	assert.Equal(int32(1), started.Load())

	for _, result := range results {
		assert.ErrorIs(result.Error, context.Canceled)
	}
}

func TestRunAllTimeoutAndCallback(t *testing.T) {
	assert := assert.New(t)

	var callbacks int
	executor := New(2, WithTimeout(20*time.Millisecond), WithOnResult(func(result *jobresult.JobResult) {
		callbacks++
	}))

	assert.Equal(2, executor.MaxWorkers())
	assert.Equal(DefaultMaxWorkers, New(0).MaxWorkers())

	results := executor.RunAll(context.Background(), newJobs(2), func(ctx context.Context, job *jobresult.Job) (string, error) {
		if job.Database == "db0" {
			<-ctx.Done()
			return "", ctx.Err()
		}

		return "", nil
	})

	assert.Equal(2, callbacks)

	for _, result := range results {
		if result.Job.Database == "db0" {
			assert.ErrorIs(result.Error, context.DeadlineExceeded)
			continue
		}

		assert.NoError(result.Error)
	}
}
