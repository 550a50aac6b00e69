package job

import (
	"fmt"
	"sort"
	"sync"

	"jpg2png/models"
)

// JobState represents the current state of a job
type JobState int

const (
	JobStatePending JobState = iota
	JobStateProcessing
	JobStateCompleted
	JobStateFailed
	JobStateCancelled
)

func (s JobState) String() string {
	switch s {
	case JobStatePending:
		return "pending"
	case JobStateProcessing:
		return "processing"
	case JobStateCompleted:
		return "completed"
	case JobStateFailed:
		return "failed"
	case JobStateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Tracker records the state of every job of a run, keyed by input path.
type Tracker struct {
	mu     sync.RWMutex
	states map[string]JobState
}

func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]JobState)}
}

// Add registers a job as pending
func (t *Tracker) Add(input string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[input] = JobStatePending
}

// Start marks a job as processing. Unknown jobs are registered on the fly.
func (t *Tracker) Start(input string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[input] = JobStateProcessing
}

// Finish records the terminal state derived from an outcome.
func (t *Tracker) Finish(o models.JobOutcome) {
	state := JobStateFailed
	switch {
	case o.Success:
		state = JobStateCompleted
	case o.ErrorKind == models.KindCancelled:
		state = JobStateCancelled
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[o.Spec.InputPath] = state
}

// State returns the current state of a job
func (t *Tracker) State(input string) (JobState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.states[input]
	return s, ok
}

// Counts returns how many jobs are in each state, by state name.
func (t *Tracker) Counts() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	counts := make(map[string]int, 5)
	for _, s := range t.states {
		counts[s.String()]++
	}
	return counts
}

// InState lists the inputs currently in state s, sorted.
func (t *Tracker) InState(s JobState) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var inputs []string
	for in, st := range t.states {
		if st == s {
			inputs = append(inputs, in)
		}
	}
	sort.Strings(inputs)
	return inputs
}

// ParseState is the inverse of JobState.String.
func ParseState(name string) (JobState, error) {
	for s := JobStatePending; s <= JobStateCancelled; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown job state %q", name)
}
