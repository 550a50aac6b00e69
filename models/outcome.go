package models

import "time"

// ErrorKind classifies why a job did not succeed.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindTransient
	KindNonRecoverable
	KindRetriesExhausted
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransient:
		return "transient"
	case KindNonRecoverable:
		return "non_recoverable"
	case KindRetriesExhausted:
		return "retries_exhausted"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// JobOutcome is produced exactly once per submitted job.
type JobOutcome struct {
	Spec      JobSpec
	Success   bool
	Attempts  int
	Elapsed   time.Duration
	ErrorKind ErrorKind
	Detail    string // last error message, empty on success
}

// Cancelled returns the outcome of a job that never started because of shutdown.
func Cancelled(spec JobSpec) JobOutcome {
	return JobOutcome{
		Spec:      spec,
		ErrorKind: KindCancelled,
		Detail:    "shutdown requested before the job started",
	}
}

// PoolState is a snapshot of worker pool occupancy.
type PoolState struct {
	CurrentCapacity int `json:"current_capacity"`
	MaxCapacity     int `json:"max_capacity"`
	ActiveWorkers   int `json:"active_workers"`
	Pending         int `json:"pending"`
}

// BatchResult is what the engine hands to the reporting layer.
type BatchResult struct {
	RunID          string
	SuccessCount   int
	FailureCount   int
	CancelledCount int // subset of FailureCount
	TotalElapsed   time.Duration
	Outcomes       []JobOutcome // input order
}

// Total returns the number of outcomes aggregated.
func (r BatchResult) Total() int { return r.SuccessCount + r.FailureCount }
