package success

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"jpg2png/models"

	pebble "github.com/cockroachdb/pebble"
)

// SuccessRecord represents a successful conversion
type SuccessRecord struct {
	Input     string        `json:"input"`
	Output    string        `json:"output"`
	RunID     string        `json:"run_id"`
	Timestamp time.Time     `json:"timestamp"`
	Attempts  int           `json:"attempts"`
	Elapsed   time.Duration `json:"elapsed"`
}

var db *pebble.DB

// Init initializes the success store
func Init(dbPath string) error {
	var err error
	db, err = pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return fmt.Errorf("failed to open success store: %w", err)
	}
	return nil
}

// Close closes the success store
func Close() error {
	if db != nil {
		err := db.Close()
		db = nil
		return err
	}
	return nil
}

// StoreSuccess records a successful outcome under its input path.
func StoreSuccess(runID string, o models.JobOutcome) error {
	if db == nil {
		return fmt.Errorf("success store not initialized")
	}

	record := SuccessRecord{
		Input:     o.Spec.InputPath,
		Output:    o.Spec.OutputPath,
		RunID:     runID,
		Timestamp: time.Now(),
		Attempts:  o.Attempts,
		Elapsed:   o.Elapsed,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal success record: %w", err)
	}
	return db.Set([]byte(record.Input), data, pebble.Sync)
}

// GetSuccess retrieves a success record by input path
func GetSuccess(input string) (*SuccessRecord, error) {
	if db == nil {
		return nil, fmt.Errorf("success store not initialized")
	}

	data, closer, err := db.Get([]byte(input))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil // Not found is not an error
		}
		return nil, err
	}
	defer closer.Close()

	var record SuccessRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal success record: %w", err)
	}
	return &record, nil
}

// DeleteSuccess removes a success record
func DeleteSuccess(input string) error {
	if db == nil {
		return fmt.Errorf("success store not initialized")
	}
	return db.Delete([]byte(input), pebble.Sync)
}

// ListSuccessRecords returns success records, newest first. An empty runID
// lists every run.
func ListSuccessRecords(runID string) ([]SuccessRecord, error) {
	if db == nil {
		return nil, fmt.Errorf("success store not initialized")
	}

	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var records []SuccessRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var record SuccessRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			continue // Skip invalid records
		}
		if runID != "" && record.RunID != runID {
			continue
		}
		records = append(records, record)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iteration error: %w", err)
	}

	sort.SliceStable(records, func(i, j int) bool { return records[i].Timestamp.After(records[j].Timestamp) })
	return records, nil
}

// CleanupOldRecords removes success records older than maxAge and returns
// how many were deleted.
func CleanupOldRecords(maxAge time.Duration) (int, error) {
	if db == nil {
		return 0, fmt.Errorf("success store not initialized")
	}

	cutoff := time.Now().Add(-maxAge)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}

	var keysToDelete [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		var record SuccessRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			continue
		}
		if record.Timestamp.Before(cutoff) {
			key := make([]byte, len(iter.Key()))
			copy(key, iter.Key())
			keysToDelete = append(keysToDelete, key)
		}
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}

	batch := db.NewBatch()
	defer batch.Close()
	for _, key := range keysToDelete {
		if err := batch.Delete(key, nil); err != nil {
			return 0, fmt.Errorf("failed to delete old success record: %w", err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("failed to delete old success records: %w", err)
	}
	return len(keysToDelete), nil
}

// CheckHealth performs a basic health check on the success database
func CheckHealth() error {
	if db == nil {
		return fmt.Errorf("success database not initialized")
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
