package fetchqueue

import "time"

// JobState is a job's position in its lifecycle.
type JobState int

const (
	StatePending JobState = iota
	StateInFlight
	StateRetryScheduled
	StateSucceeded
	StateFailedTerminal
)

func (s JobState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInFlight:
		return "in_flight"
	case StateRetryScheduled:
		return "retry_scheduled"
	case StateSucceeded:
		return "succeeded"
	case StateFailedTerminal:
		return "failed_terminal"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can follow s.
func (s JobState) Terminal() bool {
	return s == StateSucceeded || s == StateFailedTerminal
}

// Event describes one state transition of a job.
type Event struct {
	Job     Job
	State   JobState      // state entered
	Attempt int           // zero-based attempt the transition belongs to
	Delay   time.Duration // backoff wait, set for StateRetryScheduled
	Err     error
}

// Observer receives job events. Observe is called from job goroutines
// and must be safe for concurrent use.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) {
	f(e)
}

type nopObserver struct{}

func (nopObserver) Observe(Event) {}
