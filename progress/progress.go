// Package progress shows how far a batch has got. On a terminal it redraws
// one inline counter line; otherwise it logs a progress line now and then.
package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"jpg2png/logger"
	"jpg2png/models"

	"golang.org/x/term"
)

// DefaultLogInterval is how often progress is logged when not on a terminal.
const DefaultLogInterval = 5 * time.Second

const lineWidth = 80

// Reporter counts resolved outcomes against a known total.
type Reporter struct {
	out      io.Writer
	tty      bool
	total    int
	interval time.Duration
	logf     func(format string, args ...interface{})
	now      func() time.Time

	mu      sync.Mutex
	done    int
	failed  int
	lastLog time.Time
	drawn   bool
}

// New returns a reporter writing to f, inline when f is a terminal.
func New(f *os.File, total int) *Reporter {
	return NewWriter(f, term.IsTerminal(int(f.Fd())), total)
}

// NewWriter returns a reporter over w. tty selects the inline counter.
func NewWriter(w io.Writer, tty bool, total int) *Reporter {
	return &Reporter{
		out:      w,
		tty:      tty,
		total:    total,
		interval: DefaultLogInterval,
		logf:     logger.Infof,
		now:      time.Now,
		lastLog:  time.Now(),
	}
}

// Observe counts one resolved outcome.
func (r *Reporter) Observe(o models.JobOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.done++
	if !o.Success {
		r.failed++
	}

	if r.tty {
		r.draw(filepath.Base(o.Spec.InputPath))
		return
	}
	if now := r.now(); now.Sub(r.lastLog) >= r.interval || r.done == r.total {
		r.lastLog = now
		r.logf("Converting: %d/%d files (%d%%), %d failed", r.done, r.total, r.percent(), r.failed)
	}
}

// Finish erases the inline line so the summary starts on a clean row.
func (r *Reporter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tty && r.drawn {
		fmt.Fprintf(r.out, "\r%s\r", strings.Repeat(" ", lineWidth))
		r.drawn = false
	}
}

// Counts returns resolved and failed totals so far.
func (r *Reporter) Counts() (done, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done, r.failed
}

func (r *Reporter) percent() int {
	if r.total <= 0 {
		return 100
	}
	return r.done * 100 / r.total
}

// draw rewrites the counter line. Callers hold r.mu.
func (r *Reporter) draw(name string) {
	status := fmt.Sprintf("Converting [%d/%d] %d%% ", r.done, r.total, r.percent())
	if r.failed > 0 {
		status += fmt.Sprintf("(%d failed) ", r.failed)
	}

	const maxName = 30
	if len(name) > maxName {
		name = name[:maxName-1] + "…"
	}
	status += name

	if len(status) < lineWidth {
		status += strings.Repeat(" ", lineWidth-len(status))
	}
	fmt.Fprintf(r.out, "\r%s", status)
	r.drawn = true
}
