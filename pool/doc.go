// Package pool runs conversion jobs on a bounded, resizable set of workers.
//
// Pool keeps submitted jobs in a FIFO list and starts them while the number
// of running jobs is below the current capacity. Capacity may change at any
// time through Resize or Adjust; shrinking never preempts a running job, it
// only delays new starts until occupancy drops. Every capacity change goes
// through the pool mutex, so two scaling decisions never interleave.
//
// Scaler is the background hill-climb that nudges capacity by one step per
// tick from the backlog depth.
//
// Once the pool context is cancelled (shutdown), no queued job starts: each
// is resolved immediately with a Cancelled outcome, and later submissions
// resolve the same way. Running jobs finish their current attempt.
package pool
