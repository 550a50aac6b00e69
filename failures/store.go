package failures

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"jpg2png/models"

	pebble "github.com/cockroachdb/pebble"
)

// FailureRecord represents a conversion that did not succeed
type FailureRecord struct {
	Input     string        `json:"input"`
	Output    string        `json:"output"`
	RunID     string        `json:"run_id"`
	Timestamp time.Time     `json:"timestamp"`
	Attempts  int           `json:"attempts"`
	Elapsed   time.Duration `json:"elapsed"`
	Kind      string        `json:"kind"`
	Error     string        `json:"error"`
}

var db *pebble.DB

// Init initializes the failure store
func Init(dbPath string) error {
	var err error
	db, err = pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return fmt.Errorf("failed to open failure store: %w", err)
	}
	return nil
}

// Close closes the failure store
func Close() error {
	if db != nil {
		err := db.Close()
		db = nil
		return err
	}
	return nil
}

// StoreFailure records a failed or cancelled outcome under its input path.
func StoreFailure(runID string, o models.JobOutcome) error {
	if db == nil {
		return fmt.Errorf("failure store not initialized")
	}

	record := FailureRecord{
		Input:     o.Spec.InputPath,
		Output:    o.Spec.OutputPath,
		RunID:     runID,
		Timestamp: time.Now(),
		Attempts:  o.Attempts,
		Elapsed:   o.Elapsed,
		Kind:      o.ErrorKind.String(),
		Error:     o.Detail,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal failure record: %w", err)
	}
	return db.Set([]byte(record.Input), data, pebble.Sync)
}

// GetFailure retrieves a failure record by input path
func GetFailure(input string) (*FailureRecord, error) {
	if db == nil {
		return nil, fmt.Errorf("failure store not initialized")
	}

	data, closer, err := db.Get([]byte(input))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil // No failure found
		}
		return nil, fmt.Errorf("failed to get failure: %w", err)
	}
	defer closer.Close()

	var record FailureRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal failure record: %w", err)
	}
	return &record, nil
}

// DeleteFailure removes a failure record
func DeleteFailure(input string) error {
	if db == nil {
		return fmt.Errorf("failure store not initialized")
	}
	return db.Delete([]byte(input), pebble.Sync)
}

// ListFailures returns failure records, newest first, optionally filtered
// by run id and error kind.
func ListFailures(runID, kind string) ([]FailureRecord, error) {
	if db == nil {
		return nil, fmt.Errorf("failure store not initialized")
	}

	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var failures []FailureRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var record FailureRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			continue // Skip invalid records
		}
		if runID != "" && record.RunID != runID {
			continue
		}
		if kind != "" && record.Kind != kind {
			continue
		}
		failures = append(failures, record)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iteration error: %w", err)
	}

	sort.SliceStable(failures, func(i, j int) bool { return failures[i].Timestamp.After(failures[j].Timestamp) })
	return failures, nil
}

// CleanupOldRecords removes failure records older than maxAge and returns
// how many were deleted.
func CleanupOldRecords(maxAge time.Duration) (int, error) {
	if db == nil {
		return 0, fmt.Errorf("failure store not initialized")
	}

	cutoff := time.Now().Add(-maxAge)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}

	var keysToDelete [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		var record FailureRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			continue
		}
		if record.Timestamp.Before(cutoff) {
			keysToDelete = append(keysToDelete, append([]byte(nil), iter.Key()...))
		}
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}

	for _, key := range keysToDelete {
		if err := db.Delete(key, pebble.Sync); err != nil {
			return 0, fmt.Errorf("failed to delete old failure record: %w", err)
		}
	}
	return len(keysToDelete), nil
}

// CheckHealth performs a basic health check on the failure database
func CheckHealth() error {
	if db == nil {
		return fmt.Errorf("failure database not initialized")
	}
	_, closer, err := db.Get([]byte("__health_check__"))
	if err != nil && !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if closer != nil {
		closer.Close()
	}
	return nil
}
