package routes

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"jpg2png/logger"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	GoVersion string            `json:"go_version"`
	Uptime    string            `json:"uptime"`
	StartTime string            `json:"start_time"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Global start time for uptime calculation
var startTime = time.Now()

// formatUptime formats a duration into days, hours, minutes, seconds
func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
}

// HealthHandler reports liveness. Each named check is run on every request;
// a failing check turns the status to "degraded" with a 503.
func HealthHandler(checks map[string]func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Debugf("Health check request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

		if r.Method != http.MethodGet {
			logger.Warnf("Invalid method for health endpoint: %s", r.Method)
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		response := HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now(),
			Version:   Version(),
			GoVersion: runtime.Version(),
			Uptime:    formatUptime(time.Since(startTime)),
			StartTime: startTime.Format("2006-01-02 15:04:05 MST"),
		}
		code := http.StatusOK
		if len(checks) > 0 {
			response.Checks = make(map[string]string, len(checks))
			for name, check := range checks {
				if err := check(); err != nil {
					response.Checks[name] = err.Error()
					response.Status = "degraded"
					code = http.StatusServiceUnavailable
				} else {
					response.Checks[name] = "ok"
				}
			}
		}

		writeJSON(w, code, response)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}
