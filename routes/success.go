package routes

import (
	"net/http"

	"jpg2png/logger"
	"jpg2png/success"
)

// SuccessQueryHandler handles queries for a single input
func SuccessQueryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	input := r.URL.Query().Get("input")
	if input == "" {
		http.Error(w, "input parameter required", http.StatusBadRequest)
		return
	}

	record, err := success.GetSuccess(input)
	if err != nil {
		logger.Errorf("Failed to query success for %s: %v", input, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if record == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"input":   input,
			"status":  "not_found",
			"message": "No success record found for this input",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"input":     record.Input,
		"output":    record.Output,
		"status":    "success",
		"run_id":    record.RunID,
		"timestamp": record.Timestamp,
		"attempts":  record.Attempts,
	})
}

// SuccessListHandler lists success records, filtered by run_id
func SuccessListHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := success.ListSuccessRecords(r.URL.Query().Get("run_id"))
	if err != nil {
		logger.Errorf("Failed to list success records: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success_records": records,
		"count":           len(records),
	})
}
