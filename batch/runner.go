// Package batch submits a list of jobs to a worker pool, scales the pool
// while they run and aggregates their outcomes.
package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"jpg2png/job"
	"jpg2png/logger"
	"jpg2png/metrics"
	"jpg2png/models"
	"jpg2png/pool"
	"jpg2png/shutdown"
	"jpg2png/taskqueue"

	"github.com/google/uuid"
)

// Recorder persists resolved outcomes. Errors are logged, never fatal.
type Recorder interface {
	Record(runID string, o models.JobOutcome) error
}

// Progress is told about every resolved outcome, cancelled ones included.
type Progress interface {
	Observe(o models.JobOutcome)
}

// Runner runs one batch. Zero-value optional fields are filled with
// defaults on Run: a fresh coordinator, queue and run id.
type Runner struct {
	Executor    pool.Executor
	Coordinator *shutdown.Coordinator
	Queue       *taskqueue.WorkQueue

	Workers       int
	MaxWorkers    int
	Threshold     int
	ScaleInterval time.Duration

	Recorder Recorder         // optional
	Progress Progress         // optional
	Tracker  *job.Tracker     // optional
	Metrics  *metrics.Metrics // optional
	RunID    string

	mu      sync.Mutex
	pool    *pool.Pool
	running bool
	partial models.BatchResult
	started time.Time
}

// ErrNotRunning is returned by Resize outside of Run.
var ErrNotRunning = errors.New("no batch is running")

// Run submits jobs in order and blocks until every one of them has an
// outcome. It always returns exactly len(jobs) outcomes, in input order;
// jobs that could not start because of shutdown are reported as Cancelled.
func (r *Runner) Run(jobs []models.JobSpec) models.BatchResult {
	start := time.Now()
	r.mu.Lock()
	r.init()
	r.started = start
	r.partial = models.BatchResult{RunID: r.RunID}
	r.mu.Unlock()

	if len(jobs) == 0 {
		logger.Info("no jobs to run")
		return r.finish(start)
	}

	var observer pool.Observer
	if r.Metrics != nil {
		observer = r.Metrics
	}
	p := pool.New(r.Executor, pool.Options{
		InitialCapacity: r.Workers,
		MaxCapacity:     r.MaxWorkers,
		Context:         r.Coordinator.Context(),
		Observer:        observer,
	})
	r.mu.Lock()
	r.pool = p
	r.running = true
	r.mu.Unlock()

	scaleCtx, stopScaler := context.WithCancel(context.Background())
	scaler := &pool.Scaler{
		Pool:      p,
		Queue:     r.Queue,
		Threshold: r.Threshold,
		Interval:  r.ScaleInterval,
		Stop:      r.Coordinator.Done(),
	}
	var scalerDone sync.WaitGroup
	scalerDone.Add(1)
	go func() {
		defer scalerDone.Done()
		scaler.Run(scaleCtx)
	}()

	logger.Infow("batch started", "run_id", r.RunID, "jobs", len(jobs), "workers", p.Capacity(), "max_workers", p.State().MaxCapacity)

	handles := make([]*pool.Handle, 0, len(jobs))
	var unsubmitted []models.JobSpec
	for i, spec := range jobs {
		if r.Coordinator.ShuttingDown() {
			unsubmitted = jobs[i:]
			logger.Warnf("shutdown requested: %d jobs not submitted", len(unsubmitted))
			break
		}
		if r.Tracker != nil {
			r.Tracker.Add(spec.InputPath)
		}
		r.Queue.Push()
		r.setBacklog()
		handles = append(handles, p.Submit(spec))
	}

	for o := range pool.AsCompleted(handles) {
		r.Queue.Done()
		r.setBacklog()
		r.resolve(o)
	}
	// every handle is resolved by now; collect them again in input order
	outcomes := pool.AwaitAll(handles)
	for _, spec := range unsubmitted {
		o := models.Cancelled(spec)
		r.resolve(o)
		outcomes = append(outcomes, o)
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	stopScaler()
	scalerDone.Wait()
	p.Close()

	res := r.finish(start)
	res.Outcomes = outcomes
	return res
}

// Resize sets the worker capacity of the running batch, clamped to
// [1, MaxWorkers], and returns the applied value. The scaler keeps
// climbing from there on its next tick.
func (r *Runner) Resize(n int) (int, error) {
	r.mu.Lock()
	p, running := r.pool, r.running
	r.mu.Unlock()
	if !running || p == nil {
		return 0, ErrNotRunning
	}
	applied := p.Resize(n)
	logger.Infow("workers resized", "run_id", r.RunID, "requested", n, "capacity", applied)
	return applied, nil
}

// init fills defaults. Callers hold r.mu.
func (r *Runner) init() {
	if r.Coordinator == nil {
		r.Coordinator = shutdown.New()
	}
	if r.Queue == nil {
		r.Queue = taskqueue.New()
	}
	if r.RunID == "" {
		r.RunID = uuid.NewString()
	}
}

func (r *Runner) finish(start time.Time) models.BatchResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.partial.TotalElapsed = time.Since(start)
	return r.partial
}

// resolve aggregates one outcome and fans it out to the optional sinks.
func (r *Runner) resolve(o models.JobOutcome) {
	r.mu.Lock()
	if o.Success {
		r.partial.SuccessCount++
	} else {
		r.partial.FailureCount++
		if o.ErrorKind == models.KindCancelled {
			r.partial.CancelledCount++
		}
	}
	r.mu.Unlock()

	switch {
	case o.Success:
	case o.ErrorKind == models.KindCancelled:
		logger.Warnw("job cancelled", "input", o.Spec.InputPath, "attempts", o.Attempts, "kind", o.ErrorKind.String())
	default:
		logger.Errorw("conversion failed",
			"input", o.Spec.InputPath,
			"attempts", o.Attempts,
			"kind", o.ErrorKind.String(),
			"error", o.Detail,
		)
	}

	if r.Tracker != nil {
		r.Tracker.Finish(o)
	}
	if r.Progress != nil {
		r.Progress.Observe(o)
	}
	if r.Metrics != nil {
		r.Metrics.Observe(o)
	}
	if r.Recorder != nil {
		if err := r.Recorder.Record(r.RunID, o); err != nil {
			logger.Warnf("Failed to record outcome for %s: %v", o.Spec.InputPath, err)
		}
	}
}

func (r *Runner) setBacklog() {
	if r.Metrics != nil {
		r.Metrics.SetBacklog(r.Queue.Depth())
	}
}

// Status is a point-in-time view of a running batch.
type Status struct {
	RunID          string           `json:"run_id"`
	State          string           `json:"state"`
	Elapsed        string           `json:"elapsed"`
	Pool           models.PoolState `json:"pool"`
	QueueDepth     int              `json:"queue_depth"`
	Submitted      int64            `json:"submitted"`
	Resolved       int64            `json:"resolved"`
	SuccessCount   int              `json:"success_count"`
	FailureCount   int              `json:"failure_count"`
	CancelledCount int              `json:"cancelled_count"`
	Jobs           map[string]int   `json:"jobs,omitempty"`
}

// Snapshot reports progress. It is safe to call from any goroutine,
// before, during and after Run.
func (r *Runner) Snapshot() Status {
	r.mu.Lock()
	s := Status{
		RunID:          r.RunID,
		SuccessCount:   r.partial.SuccessCount,
		FailureCount:   r.partial.FailureCount,
		CancelledCount: r.partial.CancelledCount,
	}
	if !r.started.IsZero() {
		s.Elapsed = time.Since(r.started).Round(time.Millisecond).String()
	}
	p, q, coord := r.pool, r.Queue, r.Coordinator
	r.mu.Unlock()

	if p != nil {
		s.Pool = p.State()
	}
	if q != nil {
		s.QueueDepth = q.Depth()
		s.Submitted = q.Submitted()
		s.Resolved = q.Resolved()
	}
	s.State = shutdown.Running.String()
	if coord != nil {
		s.State = coord.State().String()
	}
	if r.Tracker != nil {
		s.Jobs = r.Tracker.Counts()
	}
	return s
}
