// Package saga reacts to domain events: each handler family keeps its read
// projection in sync and decides, deterministically, whether a follow-up
// command should be scheduled. Business retries are time-boxed and end in an
// explicit terminal command, unlike transport retries which are bounded per
// attempt.
package saga

import "time"

// Policy is a time-boxed retry window. Attempts are permitted while the time
// since the first failure stays within Limit; each permitted attempt is
// delayed by Interval scaled linearly by the attempt number.
type Policy struct {
	Interval time.Duration
	Limit    time.Duration
}

// Decision is the outcome of evaluating a policy for one failure event.
// The decision is taken exactly once per event and never re-evaluated.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Decide evaluates the window. attempt is 1-based: the number of failures
// observed so far including the one being decided.
func (p Policy) Decide(now, firstFailureAt time.Time, attempt int) Decision {
	if now.Sub(firstFailureAt) <= p.Limit {
		return Decision{Retry: true, Delay: p.Interval * time.Duration(attempt)}
	}
	return Decision{Retry: false}
}
