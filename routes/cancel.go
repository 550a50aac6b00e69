package routes

import (
	"net/http"

	"jpg2png/logger"
	"jpg2png/shutdown"
)

// CancelResponse reports the coordinator state after a cancel request
type CancelResponse struct {
	State           string `json:"state"`
	AlreadyStopping bool   `json:"already_stopping"`
}

// CancelHandler requests a graceful stop of the running batch, exactly as a
// termination signal would: running jobs finish, queued jobs are cancelled.
func CancelHandler(coord *shutdown.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Debugf("Cancel request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

		if r.Method != http.MethodPost {
			logger.Warnf("Invalid method for cancel endpoint: %s", r.Method)
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		transitioned := coord.OnTerminationSignal()
		if transitioned {
			logger.Warnf("Shutdown requested over HTTP by %s", r.RemoteAddr)
		} else {
			logger.Infof("Cancel request from %s ignored: shutdown already in progress", r.RemoteAddr)
		}

		writeJSON(w, http.StatusAccepted, CancelResponse{
			State:           coord.State().String(),
			AlreadyStopping: !transitioned,
		})
	}
}
