package routes

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"jpg2png/job"
	"jpg2png/logger"
	"jpg2png/metrics"
	"jpg2png/shutdown"
)

// Deps are the collaborators the status server reads from.
type Deps struct {
	Status      StatusSource
	Tracker     *job.Tracker
	Coordinator *shutdown.Coordinator
	Workers     WorkerControl    // optional
	Metrics     *metrics.Metrics // optional
	Ledger      bool             // register the success/failure endpoints
	Checks      map[string]func() error
}

// NewMux registers every HTTP route.
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", HealthHandler(d.Checks))
	mux.HandleFunc("/version", VersionHandler)
	mux.HandleFunc("/status", StatusHandler(d.Status, d.Tracker))
	mux.HandleFunc("/cancel", CancelHandler(d.Coordinator))
	if d.Workers != nil {
		mux.HandleFunc("/workers", WorkersHandler(d.Workers))
	}
	if d.Ledger {
		mux.HandleFunc("/failures", FailureQueryHandler)
		mux.HandleFunc("/failures/list", FailureListHandler)
		mux.HandleFunc("/success", SuccessQueryHandler)
		mux.HandleFunc("/success/list", SuccessListHandler)
	}
	if d.Metrics != nil {
		mux.Handle("/metrics", d.Metrics.Handler())
	}
	return mux
}

// Serve listens on addr until ctx is done, then shuts the server down.
// The returned channel yields the serve error, if any, and is then closed.
func Serve(ctx context.Context, addr string, handler http.Handler) (<-chan error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		logger.Infof("Status server listening on %s", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	return errc, nil
}
