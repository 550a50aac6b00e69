// Package shutdown holds the process-wide, one-way stop signal.
//
// A Coordinator starts Running and moves to ShuttingDown on the first
// termination signal. It never moves back. Shutdown is advisory: work
// already running finishes its current attempt, new work does not start.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"jpg2png/logger"
)

// State of a Coordinator.
type State int32

const (
	Running State = iota
	ShuttingDown
)

func (s State) String() string {
	if s == ShuttingDown {
		return "shutting_down"
	}
	return "running"
}

type Coordinator struct {
	state   atomic.Int32
	signals atomic.Int32
	once    sync.Once
	ctx     context.Context
	cancel  context.CancelFunc
}

// New returns a Coordinator in the Running state.
func New() *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{ctx: ctx, cancel: cancel}
}

// OnTerminationSignal moves the coordinator to ShuttingDown. It reports
// whether this call made the transition.
func (c *Coordinator) OnTerminationSignal() bool {
	c.signals.Add(1)
	transitioned := false
	c.once.Do(func() {
		c.state.Store(int32(ShuttingDown))
		c.cancel()
		transitioned = true
	})
	return transitioned
}

// State returns the current state.
func (c *Coordinator) State() State { return State(c.state.Load()) }

// ShuttingDown reports whether a termination signal has been received.
func (c *Coordinator) ShuttingDown() bool { return c.State() == ShuttingDown }

// Done is closed on the transition to ShuttingDown.
func (c *Coordinator) Done() <-chan struct{} { return c.ctx.Done() }

// Context is cancelled on the transition to ShuttingDown. Long-running
// calls use it to stop waiting, never to abort an attempt in progress.
func (c *Coordinator) Context() context.Context { return c.ctx }

// Signals returns how many termination requests were received.
func (c *Coordinator) Signals() int { return int(c.signals.Load()) }

// Notify routes OS signals (SIGINT and SIGTERM by default) to
// OnTerminationSignal until the returned stop function is called.
func (c *Coordinator) Notify(sigs ...os.Signal) (stop func()) {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	quit := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case sig := <-ch:
				if c.OnTerminationSignal() {
					logger.Warnf("Termination signal received (%v). Finishing running jobs, cancelling the rest...", sig)
				} else {
					logger.Warnf("Signal %v received again; shutdown already in progress", sig)
				}
			case <-quit:
				return
			}
		}
	}()

	var stopOnce sync.Once
	return func() {
		stopOnce.Do(func() {
			signal.Stop(ch)
			close(quit)
			wg.Wait()
		})
	}
}
