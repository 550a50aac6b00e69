// Package taskqueue tracks the conversion backlog used as the pool scaling signal.
package taskqueue

import "sync/atomic"

// WorkQueue counts jobs submitted but not yet resolved.
//
// It is a load signal only: a lost update skews scaling decisions but
// never the outcome of a job.
type WorkQueue struct {
	submitted atomic.Int64
	resolved  atomic.Int64
}

// New returns an empty queue.
func New() *WorkQueue { return &WorkQueue{} }

// Push records a submission.
func (q *WorkQueue) Push() { q.submitted.Add(1) }

// Done records a resolution.
func (q *WorkQueue) Done() { q.resolved.Add(1) }

// Depth returns the backlog, never negative.
func (q *WorkQueue) Depth() int {
	d := q.submitted.Load() - q.resolved.Load()
	if d < 0 {
		return 0
	}
	return int(d)
}

// Submitted returns the total number of submissions.
func (q *WorkQueue) Submitted() int64 { return q.submitted.Load() }

// Resolved returns the total number of resolutions.
func (q *WorkQueue) Resolved() int64 { return q.resolved.Load() }
