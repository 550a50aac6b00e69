package routes

import (
	"fmt"
	"net/http"
	"runtime"

	"jpg2png/logger"
)

// Build-time variables (injected by ldflags)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// VersionResponse represents the version information response
type VersionResponse struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	GitCommit string `json:"git_commit,omitempty"`
}

// Version returns the application version (injected at build time)
func Version() string { return version }

// VersionString is the one-line form printed by -version.
func VersionString() string {
	return fmt.Sprintf("jpg2png %s (commit %s, built %s, %s)", version, gitCommit, buildTime, runtime.Version())
}

// VersionHandler provides version information about the build
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Version request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

	if r.Method != http.MethodGet {
		logger.Warnf("Invalid method for version endpoint: %s", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, VersionResponse{
		Version:   version,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
		GitCommit: gitCommit,
	})
}
