// Package fetchqueue fetches a known set of independent resources with
// bounded parallelism, exponential-backoff retry and per-job failure isolation.
//
// A Queue admits jobs in submission order until MaxConcurrent are in flight,
// then admits the next pending job each time one settles. A job that is
// waiting out a backoff keeps its slot. Queues hold no state between
// SubmitAll calls; create one per load.
package fetchqueue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"runtime/debug"
	"sync"
	"time"
)

const (
	DefaultMaxConcurrent = 3
	DefaultMaxRetries    = 3
	DefaultBaseDelay     = time.Second
)

// Fetcher retrieves the raw content behind a locator. Implementations report
// non-2xx responses as *HTTPStatusError and transport failures as *TransportError.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, locator string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, locator string) ([]byte, error) {
	return f(ctx, locator)
}

// Sink receives the content of a successfully fetched job.
type Sink interface {
	Install(content []byte) error
}

// Job is one fetch-and-install unit of work.
type Job struct {
	Locator string
	Sink    Sink
}

// Result is the terminal outcome of a job.
type Result struct {
	Job      Job
	State    JobState // StateSucceeded or StateFailedTerminal
	Attempts int      // fetch attempts made
	Bytes    int      // content size on success
	Err      error    // *TerminalJobFailure or *InstallError on failure
}

// Queue is a bounded-concurrency fetch scheduler.
type Queue struct {
	fetcher        Fetcher
	maxConcurrent  int
	maxRetries     int
	baseDelay      time.Duration
	maxDelay       time.Duration
	attemptTimeout time.Duration
	observer       Observer
	sleep          func(ctx context.Context, d time.Duration) error
}

// Option configures a Queue.
type Option func(*Queue) error

var errNilFetcher = errors.New("fetchqueue: nil fetcher")

// WithMaxConcurrent sets the number of jobs allowed in flight at once.
func WithMaxConcurrent(n int) Option {
	return func(q *Queue) error {
		if n < 1 {
			return fmt.Errorf("fetchqueue: max concurrent must be >= 1, got %d", n)
		}
		q.maxConcurrent = n
		return nil
	}
}

// WithMaxRetries sets how many retries follow a job's first failed attempt.
func WithMaxRetries(n int) Option {
	return func(q *Queue) error {
		if n < 0 {
			return fmt.Errorf("fetchqueue: max retries must be >= 0, got %d", n)
		}
		q.maxRetries = n
		return nil
	}
}

// WithBaseDelay sets the backoff unit; retry n waits base * 2^(n-1).
func WithBaseDelay(d time.Duration) Option {
	return func(q *Queue) error {
		if d < 0 {
			return fmt.Errorf("fetchqueue: base delay must be >= 0, got %s", d)
		}
		q.baseDelay = d
		return nil
	}
}

// WithMaxDelay caps a single backoff wait. Zero leaves it uncapped.
func WithMaxDelay(d time.Duration) Option {
	return func(q *Queue) error {
		if d < 0 {
			return fmt.Errorf("fetchqueue: max delay must be >= 0, got %s", d)
		}
		q.maxDelay = d
		return nil
	}
}

// WithAttemptTimeout bounds each fetch attempt so a hung request can't hold
// its slot forever. A timed-out attempt counts as a transport failure.
func WithAttemptTimeout(d time.Duration) Option {
	return func(q *Queue) error {
		if d < 0 {
			return fmt.Errorf("fetchqueue: attempt timeout must be >= 0, got %s", d)
		}
		q.attemptTimeout = d
		return nil
	}
}

// WithObserver registers an observer for job state transitions.
func WithObserver(o Observer) Option {
	return func(q *Queue) error {
		if o != nil {
			q.observer = o
		}
		return nil
	}
}

// New builds a Queue with defaults of 3 concurrent jobs, 3 retries and a 1s base delay.
func New(fetcher Fetcher, opts ...Option) (*Queue, error) {
	if fetcher == nil {
		return nil, errNilFetcher
	}
	q := &Queue{
		fetcher:       fetcher,
		maxConcurrent: DefaultMaxConcurrent,
		maxRetries:    DefaultMaxRetries,
		baseDelay:     DefaultBaseDelay,
		observer:      nopObserver{},
		sleep:         sleepContext,
	}
	for _, opt := range opts {
		if err := opt(q); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// MaxConcurrent returns the configured slot count.
func (q *Queue) MaxConcurrent() int { return q.maxConcurrent }

// MaxRetries returns the configured retry limit.
func (q *Queue) MaxRetries() int { return q.maxRetries }

// SubmitAll runs every job and returns once all of them are terminal.
// Results are in submission order. A failed job never cancels its siblings;
// cancelling ctx stops admissions and settles unfinished jobs as failed.
func (q *Queue) SubmitAll(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	sem := make(chan struct{}, q.maxConcurrent)
	var wg sync.WaitGroup

	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			results[i] = q.fail(job, 0, cancelled(job.Locator, 0, err))
			continue
		}
		select {
		case <-ctx.Done():
			results[i] = q.fail(job, 0, cancelled(job.Locator, 0, ctx.Err()))
			continue
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(i int, job Job) {
			defer func() {
				<-sem
				wg.Done()
			}()
			results[i] = q.run(ctx, job)
		}(i, job)
	}

	wg.Wait()
	return results
}

// run fetches and installs one job while it holds a slot.
func (q *Queue) run(ctx context.Context, job Job) Result {
	content, attempts, err := q.fetchWithRetry(ctx, job)
	if err != nil {
		return q.fail(job, attempts, err)
	}
	if err := install(job, content); err != nil {
		return q.fail(job, attempts, &InstallError{Locator: job.Locator, Err: err})
	}
	res := Result{Job: job, State: StateSucceeded, Attempts: attempts, Bytes: len(content)}
	q.observer.Observe(Event{Job: job, State: StateSucceeded, Attempt: attempts - 1})
	return res
}

func (q *Queue) fail(job Job, attempts int, err error) Result {
	log.Printf("failed to load %s attempts=%d: %v", job.Locator, attempts, err)
	q.observer.Observe(Event{Job: job, State: StateFailedTerminal, Attempt: max(attempts-1, 0), Err: err})
	return Result{Job: job, State: StateFailedTerminal, Attempts: attempts, Err: err}
}

// fetchWithRetry makes up to maxRetries+1 sequential attempts and returns
// the content with the number of attempts made.
func (q *Queue) fetchWithRetry(ctx context.Context, job Job) ([]byte, int, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, attempt, cancelled(job.Locator, attempt, err)
		}
		q.observer.Observe(Event{Job: job, State: StateInFlight, Attempt: attempt})
		content, err := q.attempt(ctx, job.Locator)
		if err == nil {
			return content, attempt + 1, nil
		}

		failure := &FetchFailure{Locator: job.Locator, Attempt: attempt, Cause: err}
		if attempt >= q.maxRetries || ctx.Err() != nil {
			return nil, attempt + 1, &TerminalJobFailure{Locator: job.Locator, Attempts: attempt + 1, Last: failure}
		}

		delay := Backoff(q.baseDelay, attempt, q.maxDelay)
		log.Printf("retry %d/%d for %s after %s: %v", attempt+1, q.maxRetries, job.Locator, delay, err)
		q.observer.Observe(Event{Job: job, State: StateRetryScheduled, Attempt: attempt, Delay: delay, Err: failure})
		if ctxErr := q.sleep(ctx, delay); ctxErr != nil {
			// Last real cause, joined with the context error.
			last := &FetchFailure{Locator: job.Locator, Attempt: attempt, Cause: errors.Join(err, ctxErr)}
			return nil, attempt + 1, &TerminalJobFailure{Locator: job.Locator, Attempts: attempt + 1, Last: last}
		}
	}
}

func (q *Queue) attempt(ctx context.Context, locator string) ([]byte, error) {
	if q.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.attemptTimeout)
		defer cancel()
	}
	return q.fetcher.Fetch(ctx, locator)
}

// install hands content to the job's sink, turning a panic into an error.
func install(job Job, content []byte) (err error) {
	if job.Sink == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("install panic for %s: %v\n%s", job.Locator, r, debug.Stack())
			err = fmt.Errorf("install panicked: %v", r)
		}
	}()
	return job.Sink.Install(content)
}

// cancelled reports a job interrupted by its context before the given attempt ran.
func cancelled(locator string, attempts int, cause error) *TerminalJobFailure {
	return &TerminalJobFailure{
		Locator:  locator,
		Attempts: attempts,
		Last:     &FetchFailure{Locator: locator, Attempt: attempts, Cause: cause},
	}
}

// Backoff returns base * 2^attempt, capped at maxDelay when maxDelay > 0.
func Backoff(base time.Duration, attempt int, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		if delay > math.MaxInt64/2 {
			delay = math.MaxInt64
			break
		}
		delay *= 2
	}
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
