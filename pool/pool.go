package pool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"jpg2png/logger"
	"jpg2png/models"
)

// Executor runs one job to its terminal outcome.
type Executor interface {
	Execute(ctx context.Context, spec models.JobSpec) models.JobOutcome
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, spec models.JobSpec) models.JobOutcome

func (f ExecutorFunc) Execute(ctx context.Context, spec models.JobSpec) models.JobOutcome {
	return f(ctx, spec)
}

// Observer is told about capacity and occupancy changes. Calls are made
// with the pool lock held and must not call back into the pool.
type Observer interface {
	CapacityChanged(capacity int)
	ActiveChanged(active, pending int)
}

type Options struct {
	InitialCapacity int
	MaxCapacity     int // defaults to runtime.NumCPU()
	// Context is the shutdown context. When it is done, queued jobs resolve
	// as Cancelled and running jobs receive it to stop retrying.
	Context  context.Context
	Observer Observer
}

// Handle resolves once its job has an outcome.
type Handle struct {
	spec    models.JobSpec
	done    chan struct{}
	outcome models.JobOutcome
}

// Done is closed when the outcome is available.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Outcome blocks until the job resolves.
func (h *Handle) Outcome() models.JobOutcome {
	<-h.done
	return h.outcome
}

func (h *Handle) resolve(o models.JobOutcome) {
	h.outcome = o
	close(h.done)
}

type Pool struct {
	exec     Executor
	ctx      context.Context
	observer Observer

	mu       sync.Mutex
	capacity int
	max      int
	active   int
	pending  []*Handle
	closed   bool

	running   sync.WaitGroup
	stopWatch chan struct{}
	closeOnce sync.Once
}

// New starts a pool. Close must be called to release the shutdown watcher.
func New(exec Executor, opts Options) *Pool {
	if opts.MaxCapacity < 1 {
		opts.MaxCapacity = runtime.NumCPU()
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	p := &Pool{
		exec:      exec,
		ctx:       opts.Context,
		observer:  opts.Observer,
		max:       opts.MaxCapacity,
		capacity:  clamp(opts.InitialCapacity, 1, opts.MaxCapacity),
		stopWatch: make(chan struct{}),
	}
	if p.observer != nil {
		p.observer.CapacityChanged(p.capacity)
	}
	go p.watch()

	logger.Debugf("pool started: capacity=%d max=%d", p.capacity, p.max)
	return p
}

func (p *Pool) watch() {
	select {
	case <-p.ctx.Done():
		p.Shutdown()
	case <-p.stopWatch:
	}
}

// Submit queues spec and returns its handle. After shutdown the handle is
// already resolved as Cancelled.
func (p *Pool) Submit(spec models.JobSpec) *Handle {
	h := &Handle{spec: spec, done: make(chan struct{})}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.ctx.Err() != nil {
		h.resolve(models.Cancelled(spec))
		return h
	}
	p.pending = append(p.pending, h)
	p.dispatchLocked()
	p.notifyActiveLocked()
	return h
}

// dispatchLocked starts queued jobs while there is spare capacity and no
// shutdown has been requested.
func (p *Pool) dispatchLocked() {
	for !p.closed && p.ctx.Err() == nil && p.active < p.capacity && len(p.pending) > 0 {
		h := p.pending[0]
		p.pending[0] = nil
		p.pending = p.pending[1:]
		p.active++
		p.running.Add(1)
		go p.run(h)
	}
}

func (p *Pool) run(h *Handle) {
	defer p.running.Done()
	outcome := p.execute(h.spec)

	p.mu.Lock()
	p.active--
	p.dispatchLocked()
	p.notifyActiveLocked()
	p.mu.Unlock()

	h.resolve(outcome)
}

// execute turns a panicking executor into a NonRecoverable outcome.
func (p *Pool) execute(spec models.JobSpec) (outcome models.JobOutcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("executor panicked", "input", spec.InputPath, "panic", r)
			outcome = models.JobOutcome{
				Spec:      spec,
				Attempts:  1,
				Elapsed:   time.Since(start),
				ErrorKind: models.KindNonRecoverable,
				Detail:    fmt.Sprintf("panic: %v", r),
			}
		}
	}()
	return p.exec.Execute(p.ctx, spec)
}

// Resize sets the capacity, clamped to [1, max], and returns the applied value.
func (p *Pool) Resize(n int) int {
	return p.Adjust(func(int, int) int { return n })
}

// Adjust computes and applies a new capacity atomically: fn sees the
// current capacity and the maximum and returns the wanted capacity, which
// is clamped to [1, max].
func (p *Pool) Adjust(fn func(current, max int) int) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := clamp(fn(p.capacity, p.max), 1, p.max)
	if next != p.capacity {
		logger.Debugf("pool capacity %d -> %d", p.capacity, next)
		p.capacity = next
		if p.observer != nil {
			p.observer.CapacityChanged(next)
		}
		p.dispatchLocked()
		p.notifyActiveLocked()
	}
	return next
}

func (p *Pool) notifyActiveLocked() {
	if p.observer != nil {
		p.observer.ActiveChanged(p.active, len(p.pending))
	}
}

func (p *Pool) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}

// State returns a consistent snapshot of capacity and occupancy.
func (p *Pool) State() models.PoolState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return models.PoolState{
		CurrentCapacity: p.capacity,
		MaxCapacity:     p.max,
		ActiveWorkers:   p.active,
		Pending:         len(p.pending),
	}
}

// Shutdown stops starting jobs. Queued jobs resolve as Cancelled right away;
// running jobs are left to finish. It is safe to call more than once.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	queued := p.pending
	p.pending = nil
	p.notifyActiveLocked()
	p.mu.Unlock()

	if len(queued) > 0 {
		logger.Infof("pool shutting down: cancelling %d queued jobs", len(queued))
	}
	for _, h := range queued {
		h.resolve(models.Cancelled(h.spec))
	}
}

// Close shuts the pool down and waits for running jobs to return.
func (p *Pool) Close() {
	p.closeOnce.Do(func() { close(p.stopWatch) })
	p.Shutdown()
	p.running.Wait()
}

// AwaitAll blocks until every handle resolves and returns the outcomes in
// handle order.
func AwaitAll(handles []*Handle) []models.JobOutcome {
	outcomes := make([]models.JobOutcome, len(handles))
	for i, h := range handles {
		outcomes[i] = h.Outcome()
	}
	return outcomes
}

// AsCompleted delivers outcomes in completion order and closes the channel
// after the last one.
func AsCompleted(handles []*Handle) <-chan models.JobOutcome {
	out := make(chan models.JobOutcome, len(handles))
	var wg sync.WaitGroup
	wg.Add(len(handles))
	for _, h := range handles {
		go func() {
			defer wg.Done()
			out <- h.Outcome()
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
