package routes

import (
	"fmt"
	"net/http"

	"jpg2png/batch"
	"jpg2png/job"
	"jpg2png/logger"
)

// StatusSource is implemented by batch.Runner.
type StatusSource interface {
	Snapshot() batch.Status
}

// JobStatusResponse represents the state of a single input
type JobStatusResponse struct {
	Input string `json:"input"`
	State string `json:"state"`
}

// StateListResponse lists the inputs currently in one state
type StateListResponse struct {
	State  string   `json:"state"`
	Inputs []string `json:"inputs"`
}

// StatusHandler returns batch progress, the state of one job when the
// input query parameter is set, or the inputs in a state given by state.
func StatusHandler(src StatusSource, tracker *job.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Debugf("Status request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

		if r.Method != http.MethodGet {
			logger.Warnf("Invalid method for status endpoint: %s", r.Method)
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		input := r.URL.Query().Get("input")
		stateName := r.URL.Query().Get("state")
		if input == "" && stateName == "" {
			writeJSON(w, http.StatusOK, src.Snapshot())
			return
		}

		if tracker == nil {
			http.Error(w, "Job tracking disabled", http.StatusNotFound)
			return
		}
		if input == "" {
			state, err := job.ParseState(stateName)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			inputs := tracker.InState(state)
			if inputs == nil {
				inputs = []string{}
			}
			writeJSON(w, http.StatusOK, StateListResponse{State: state.String(), Inputs: inputs})
			return
		}
		state, exists := tracker.State(input)
		if !exists {
			logger.Warnf("Job not found: %s", input)
			http.Error(w, fmt.Sprintf("Job for %s not found", input), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, JobStatusResponse{Input: input, State: state.String()})
	}
}
