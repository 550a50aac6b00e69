package pool

import (
	"context"
	"time"

	"jpg2png/logger"
)

// DefaultScaleInterval is the tick of the capacity hill-climb.
const DefaultScaleInterval = 5 * time.Second

// Depther reports the backlog depth used as the scaling signal.
type Depther interface {
	Depth() int
}

// NextCapacity is one hill-climb step: grow by one when depth is above
// threshold, shrink by one when below, otherwise hold. The result is
// always within [1, max].
func NextCapacity(depth, threshold, current, max int) int {
	if max < 1 {
		max = 1
	}
	next := current
	switch {
	case depth > threshold && current < max:
		next = current + 1
	case depth < threshold && current > 1:
		next = current - 1
	}
	return clamp(next, 1, max)
}

// Scaler periodically adjusts a Pool from a backlog signal.
type Scaler struct {
	Pool      *Pool
	Queue     Depther
	Threshold int
	Interval  time.Duration
	// Stop ends the loop early, typically the shutdown coordinator's Done.
	Stop <-chan struct{}
}

// Tick applies one scaling decision and returns the resulting capacity.
func (s *Scaler) Tick() int {
	depth := s.Queue.Depth()
	return s.Pool.Adjust(func(current, max int) int {
		next := NextCapacity(depth, s.Threshold, current, max)
		if next != current {
			logger.Infow("scaling workers", "depth", depth, "threshold", s.Threshold, "from", current, "to", next)
		}
		return next
	})
}

// Run ticks until ctx is done or Stop is closed.
func (s *Scaler) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultScaleInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.Stop:
			logger.Debug("scaler stopped: shutdown in progress")
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}
