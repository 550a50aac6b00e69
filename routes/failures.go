package routes

import (
	"net/http"

	"jpg2png/failures"
	"jpg2png/logger"
)

// FailureQueryHandler handles queries for a single input
func FailureQueryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	input := r.URL.Query().Get("input")
	if input == "" {
		http.Error(w, "input parameter required", http.StatusBadRequest)
		return
	}

	record, err := failures.GetFailure(input)
	if err != nil {
		logger.Errorf("Failed to query failure for %s: %v", input, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if record == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"input":   input,
			"status":  "not_failed",
			"message": "No failure recorded for this input",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"input":     record.Input,
		"status":    "failed",
		"run_id":    record.RunID,
		"timestamp": record.Timestamp,
		"attempts":  record.Attempts,
		"kind":      record.Kind,
		"error":     record.Error,
	})
}

// FailureListHandler lists failures, filtered by run_id and kind
func FailureListHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	failuresList, err := failures.ListFailures(q.Get("run_id"), q.Get("kind"))
	if err != nil {
		logger.Errorf("Failed to list failures: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"failures": failuresList,
		"count":    len(failuresList),
	})
}
