package routes

import (
	"errors"
	"net/http"
	"strconv"

	"jpg2png/batch"
	"jpg2png/logger"
)

// WorkerControl is implemented by batch.Runner.
type WorkerControl interface {
	Resize(n int) (int, error)
}

// WorkersResponse reports the capacity applied by a resize request
type WorkersResponse struct {
	Requested int `json:"requested"`
	Capacity  int `json:"capacity"`
}

// WorkersHandler resizes the worker pool of the running batch:
// POST /workers?capacity=N. The value is clamped to [1, max workers].
func WorkersHandler(ctl WorkerControl) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Debugf("Workers request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

		if r.Method != http.MethodPost {
			logger.Warnf("Invalid method for workers endpoint: %s", r.Method)
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		n, err := strconv.Atoi(r.URL.Query().Get("capacity"))
		if err != nil {
			http.Error(w, "capacity must be an integer", http.StatusBadRequest)
			return
		}

		applied, err := ctl.Resize(n)
		if err != nil {
			if errors.Is(err, batch.ErrNotRunning) {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			logger.Errorf("Failed to resize workers: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		logger.Infof("Workers resized over HTTP by %s: requested %d, applied %d", r.RemoteAddr, n, applied)
		writeJSON(w, http.StatusOK, WorkersResponse{Requested: n, Capacity: applied})
	}
}
