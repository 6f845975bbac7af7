// Package dispatch runs independent per-key jobs on a bounded worker pool.
//
// Jobs are admitted in submission order (FIFO) but complete in whatever order
// the workers finish them; callers must not rely on positional alignment and
// should match results to jobs by key. Each job's success or failure is
// isolated: one key failing never aborts its siblings.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// Job is one key's unit of work. Do must respect the context for
// cancellation and deadlines; jobs that ignore it are abandoned when their
// timeout expires.
type Job[T any] struct {
	Key string
	Do  func(ctx context.Context) (T, error)
}

// Result is the outcome of one job, tagged with its key even on failure so
// blame can always be attributed.
type Result[T any] struct {
	Key   string
	Value T
	Err   error
}

// Options configures a dispatch run.
type Options struct {
	// Concurrency is the maximum number of jobs executing simultaneously.
	// Zero or negative means the available parallelism (GOMAXPROCS).
	Concurrency int

	// JobTimeout bounds each individual job. Zero means no per-job timeout.
	JobTimeout time.Duration
}

// TimeoutError reports that one job exceeded the per-job timeout. Sibling
// jobs are unaffected.
type TimeoutError struct {
	Key string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job for key %q timed out", e.Key)
}

// Run executes all jobs with at most opts.Concurrency running at once and
// returns exactly one Result per submitted job, in submission order.
//
// If ctx is canceled, no new jobs are started; jobs that already completed
// keep their results and jobs never started are accounted with the context
// error. Result slots are written once each, by the worker that ran the job,
// so no locking is needed around the result slice.
func Run[T any](ctx context.Context, jobs []Job[T], opts Options) []Result[T] {
	results := make([]Result[T], len(jobs))
	if len(jobs) == 0 {
		return results
	}

	workers := opts.Concurrency
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	jobCh := make(chan int)
	started := make([]bool, len(jobs))

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobCh {
				// Cancellation is checked between jobs, not preemptively
				// mid-job; an in-flight job runs to completion or timeout.
				if ctx.Err() != nil {
					return
				}
				started[idx] = true
				results[idx] = runOne(ctx, jobs[idx], opts.JobTimeout)
			}
		}()
	}

	// FIFO admission. The send blocks while all workers are busy, which
	// keeps admission in submission order without materializing a queue.
	go func() {
		defer close(jobCh)
		for i := range jobs {
			select {
			case jobCh <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()

	for i := range jobs {
		if !started[i] {
			results[i] = Result[T]{Key: jobs[i].Key, Err: context.Cause(ctx)}
		}
	}

	return results
}

// runOne executes a single job, enforcing the per-job timeout.
//
// The job body runs in its own goroutine so that a job which ignores its
// context cannot block collection of sibling results: on expiry the job is
// abandoned and recorded as a TimeoutError.
func runOne[T any](ctx context.Context, job Job[T], timeout time.Duration) Result[T] {
	if timeout <= 0 {
		value, err := job.Do(ctx)
		return Result[T]{Key: job.Key, Value: value, Err: err}
	}

	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := job.Do(jobCtx)
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return Result[T]{Key: job.Key, Err: &TimeoutError{Key: job.Key}}
		}
		return Result[T]{Key: job.Key, Value: out.value, Err: out.err}
	case <-jobCtx.Done():
		if errors.Is(jobCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return Result[T]{Key: job.Key, Err: &TimeoutError{Key: job.Key}}
		}
		return Result[T]{Key: job.Key, Err: jobCtx.Err()}
	}
}
