package page

import (
	"context"

	"fragment-loader/internal/fetchqueue"
)

// Report summarizes one load of a page's placeholders.
type Report struct {
	Results []fetchqueue.Result // submission order, one per placeholder
	Loaded  int
	Failed  int
}

// Degraded reports whether at least one fragment failed to load.
func (r Report) Degraded() bool {
	return r.Failed > 0
}

// Failures returns the failed results.
func (r Report) Failures() []fetchqueue.Result {
	var out []fetchqueue.Result
	for _, res := range r.Results {
		if res.State == fetchqueue.StateFailedTerminal {
			out = append(out, res)
		}
	}
	return out
}

// Jobs maps placeholders to queue jobs, each installing into its placeholder.
func Jobs(placeholders []*Placeholder) []fetchqueue.Job {
	jobs := make([]fetchqueue.Job, len(placeholders))
	for i, p := range placeholders {
		jobs[i] = fetchqueue.Job{Locator: p.Path(), Sink: p}
	}
	return jobs
}

// Load runs every placeholder through q and waits for all of them to settle.
// Failed placeholders keep their original content.
func Load(ctx context.Context, q *fetchqueue.Queue, placeholders []*Placeholder) Report {
	results := q.SubmitAll(ctx, Jobs(placeholders))
	report := Report{Results: results}
	for _, res := range results {
		if res.State == fetchqueue.StateSucceeded {
			report.Loaded++
		} else {
			report.Failed++
		}
	}
	return report
}
