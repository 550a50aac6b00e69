package batch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"jpg2png/encoder"
	"jpg2png/failures"
	"jpg2png/job"
	"jpg2png/metrics"
	"jpg2png/models"
	"jpg2png/pool"
	"jpg2png/progress"
	"jpg2png/shutdown"
	"jpg2png/success"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func makeSpecs(t *testing.T, n int, opts models.ConversionOptions) []models.JobSpec {
	t.Helper()
	dir := t.TempDir()
	specs := make([]models.JobSpec, n)
	for i := range specs {
		in := filepath.Join(dir, fmt.Sprintf("img-%02d.jpg", i))
		if err := os.WriteFile(in, []byte("jpeg"), 0o644); err != nil {
			t.Fatal(err)
		}
		specs[i] = models.JobSpec{InputPath: in, OutputPath: job.OutputPath(in, dir, "", "png"), Options: opts}
	}
	return specs
}

type memRecorder struct {
	mu       sync.Mutex
	outcomes map[string]models.JobOutcome
}

func (m *memRecorder) Record(_ string, o models.JobOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = map[string]models.JobOutcome{}
	}
	m.outcomes[o.Spec.InputPath] = o
	return nil
}

func TestEightSucceedTwoExhaustRetries(t *testing.T) {
	specs := makeSpecs(t, 10, models.ConversionOptions{Retries: 3, RetryDelay: 0})
	failing := map[string]bool{specs[3].InputPath: true, specs[7].InputPath: true}

	enc := func(_ context.Context, input, output string, _ encoder.EncodeOptions) error {
		if failing[input] {
			return &os.PathError{Op: "open", Path: input, Err: syscall.EBUSY}
		}
		return os.WriteFile(output, []byte("png"), 0o644)
	}
	tracker := job.NewTracker()
	rec := &memRecorder{}
	m := metrics.New()
	r := &Runner{
		Executor:   job.NewOperation(enc, nil, tracker),
		Workers:    2,
		MaxWorkers: 4,
		Threshold:  10,
		Recorder:   rec,
		Tracker:    tracker,
		Metrics:    m,
	}

	res := r.Run(specs)
	if res.SuccessCount != 8 || res.FailureCount != 2 || res.CancelledCount != 0 {
		t.Fatalf("result = %d/%d/%d, want 8/2/0", res.SuccessCount, res.FailureCount, res.CancelledCount)
	}
	if len(res.Outcomes) != 10 || res.Total() != 10 || res.RunID == "" {
		t.Fatalf("outcomes = %d, run id = %q", len(res.Outcomes), res.RunID)
	}
	for _, o := range res.Outcomes {
		if failing[o.Spec.InputPath] {
			if o.ErrorKind != models.KindRetriesExhausted || o.Attempts != 3 {
				t.Errorf("failing job outcome = %+v", o)
			}
		} else if !o.Success || o.Attempts != 1 {
			t.Errorf("job outcome = %+v", o)
		}
	}

	if len(rec.outcomes) != 10 {
		t.Errorf("recorded %d outcomes", len(rec.outcomes))
	}
	if c := tracker.Counts(); c["completed"] != 8 || c["failed"] != 2 {
		t.Errorf("tracker = %v", c)
	}
	if got := testutil.ToFloat64(m.Outcomes.WithLabelValues("success", "none")); got != 8 {
		t.Errorf("success metric = %v", got)
	}
	st := r.Snapshot()
	if st.QueueDepth != 0 || st.Submitted != 10 || st.Resolved != 10 {
		t.Errorf("snapshot = %+v", st)
	}
}

func TestEmptyBatchStartsNoWorkers(t *testing.T) {
	var calls atomic.Int32
	r := &Runner{
		Executor: pool.ExecutorFunc(func(_ context.Context, s models.JobSpec) models.JobOutcome {
			calls.Add(1)
			return models.JobOutcome{Spec: s, Success: true}
		}),
		Workers:    2,
		MaxWorkers: 2,
	}
	res := r.Run(nil)
	if res.SuccessCount != 0 || res.FailureCount != 0 || len(res.Outcomes) != 0 {
		t.Fatalf("result = %+v", res)
	}
	if calls.Load() != 0 {
		t.Error("executor must not run")
	}
	if st := r.Snapshot(); st.Pool.CurrentCapacity != 0 {
		t.Errorf("no pool should exist: %+v", st.Pool)
	}
}

func TestShutdownBeforeRunCancelsEverything(t *testing.T) {
	coord := shutdown.New()
	coord.OnTerminationSignal()
	var calls atomic.Int32
	r := &Runner{
		Executor: pool.ExecutorFunc(func(_ context.Context, s models.JobSpec) models.JobOutcome {
			calls.Add(1)
			return models.JobOutcome{Spec: s, Success: true}
		}),
		Coordinator: coord,
		Workers:     2,
		MaxWorkers:  2,
	}
	specs := makeSpecs(t, 5, models.ConversionOptions{Retries: 1})

	res := r.Run(specs)
	if res.FailureCount != 5 || res.CancelledCount != 5 || len(res.Outcomes) != 5 {
		t.Fatalf("result = %+v", res)
	}
	if calls.Load() != 0 {
		t.Errorf("executor ran %d times after shutdown", calls.Load())
	}
}

func TestProgressSeesEveryOutcome(t *testing.T) {
	specs := makeSpecs(t, 5, models.ConversionOptions{Retries: 1})
	exec := pool.ExecutorFunc(func(_ context.Context, s models.JobSpec) models.JobOutcome {
		if s.InputPath == specs[2].InputPath {
			return models.JobOutcome{Spec: s, Attempts: 1, ErrorKind: models.KindNonRecoverable}
		}
		return models.JobOutcome{Spec: s, Success: true, Attempts: 1}
	})
	prog := progress.NewWriter(io.Discard, false, len(specs))
	r := &Runner{Executor: exec, Workers: 2, MaxWorkers: 2, Progress: prog}

	r.Run(specs)
	if done, failed := prog.Counts(); done != 5 || failed != 1 {
		t.Errorf("progress = %d done, %d failed; want 5, 1", done, failed)
	}
}

func TestShutdownMidBatchYieldsEveryOutcome(t *testing.T) {
	coord := shutdown.New()
	release := make(chan struct{})
	var started atomic.Int32
	exec := pool.ExecutorFunc(func(ctx context.Context, s models.JobSpec) models.JobOutcome {
		if started.Add(1) == 1 {
			coord.OnTerminationSignal()
		}
		<-release
		return models.JobOutcome{Spec: s, Success: true, Attempts: 1}
	})
	r := &Runner{Executor: exec, Coordinator: coord, Workers: 2, MaxWorkers: 2, ScaleInterval: time.Millisecond}
	specs := makeSpecs(t, 20, models.ConversionOptions{Retries: 1})

	done := make(chan models.BatchResult, 1)
	go func() { done <- r.Run(specs) }()

	time.Sleep(20 * time.Millisecond)
	close(release)

	var res models.BatchResult
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("batch did not finish after shutdown")
	}

	if len(res.Outcomes) != 20 || res.Total() != 20 {
		t.Fatalf("got %d outcomes, want 20", len(res.Outcomes))
	}
	if res.SuccessCount != int(started.Load()) {
		t.Errorf("success = %d, started = %d: running jobs must finish", res.SuccessCount, started.Load())
	}
	if res.CancelledCount != 20-int(started.Load()) {
		t.Errorf("cancelled = %d, want %d", res.CancelledCount, 20-int(started.Load()))
	}
	seen := map[string]bool{}
	for _, o := range res.Outcomes {
		seen[o.Spec.InputPath] = true
	}
	if len(seen) != 20 {
		t.Errorf("%d distinct inputs resolved, want 20", len(seen))
	}
}

func TestLedgerRecordsAndClearsFailures(t *testing.T) {
	dir := t.TempDir()
	if err := success.Init(filepath.Join(dir, "success.db")); err != nil {
		t.Fatal(err)
	}
	defer success.Close()
	if err := failures.Init(filepath.Join(dir, "failures.db")); err != nil {
		t.Fatal(err)
	}
	defer failures.Close()

	spec := models.JobSpec{InputPath: "/p/a.jpg", OutputPath: "/p/a.png"}
	var l Ledger
	if err := l.Record("run-1", models.JobOutcome{Spec: spec, ErrorKind: models.KindTransient, Attempts: 3, Detail: "busy"}); err != nil {
		t.Fatal(err)
	}
	if rec, _ := failures.GetFailure(spec.InputPath); rec == nil || rec.Kind != "transient" {
		t.Fatalf("failure record = %+v", rec)
	}

	if err := l.Record("run-2", models.JobOutcome{Spec: spec, Success: true, Attempts: 1}); err != nil {
		t.Fatal(err)
	}
	if rec, _ := failures.GetFailure(spec.InputPath); rec != nil {
		t.Error("success should clear the old failure")
	}
	if rec, _ := success.GetSuccess(spec.InputPath); rec == nil || rec.RunID != "run-2" {
		t.Errorf("success record = %+v", rec)
	}
}

func TestLedgerSkipsDryRun(t *testing.T) {
	dir := t.TempDir()
	if err := success.Init(filepath.Join(dir, "success.db")); err != nil {
		t.Fatal(err)
	}
	defer success.Close()
	if err := failures.Init(filepath.Join(dir, "failures.db")); err != nil {
		t.Fatal(err)
	}
	defer failures.Close()

	spec := models.JobSpec{InputPath: "/p/broken.jpg", OutputPath: "/p/broken.png"}
	var l Ledger
	if err := l.Record("run-1", models.JobOutcome{Spec: spec, ErrorKind: models.KindNonRecoverable, Attempts: 1}); err != nil {
		t.Fatal(err)
	}

	dry := spec
	dry.Options.DryRun = true
	if err := l.Record("run-2", models.JobOutcome{Spec: dry, Success: true}); err != nil {
		t.Fatal(err)
	}
	if rec, _ := failures.GetFailure(spec.InputPath); rec == nil || rec.RunID != "run-1" {
		t.Errorf("dry run must keep the earlier failure, got %+v", rec)
	}
	if rec, _ := success.GetSuccess(spec.InputPath); rec != nil {
		t.Errorf("dry run must not store a success, got %+v", rec)
	}
}

func TestOutcomesFollowInputOrder(t *testing.T) {
	specs := makeSpecs(t, 6, models.ConversionOptions{Retries: 1})
	index := map[string]int{}
	for i, s := range specs {
		index[s.InputPath] = i
	}
	// later inputs finish first
	exec := pool.ExecutorFunc(func(_ context.Context, s models.JobSpec) models.JobOutcome {
		time.Sleep(time.Duration(len(specs)-index[s.InputPath]) * 5 * time.Millisecond)
		return models.JobOutcome{Spec: s, Success: true, Attempts: 1}
	})
	r := &Runner{Executor: exec, Workers: 6, MaxWorkers: 6}

	res := r.Run(specs)
	if len(res.Outcomes) != len(specs) {
		t.Fatalf("got %d outcomes", len(res.Outcomes))
	}
	for i, o := range res.Outcomes {
		if o.Spec.InputPath != specs[i].InputPath {
			t.Fatalf("outcome %d is %s, want %s", i, o.Spec.InputPath, specs[i].InputPath)
		}
	}
}

func TestResizeWhileRunning(t *testing.T) {
	release := make(chan struct{})
	var active atomic.Int32
	exec := pool.ExecutorFunc(func(_ context.Context, s models.JobSpec) models.JobOutcome {
		active.Add(1)
		defer active.Add(-1)
		<-release
		return models.JobOutcome{Spec: s, Success: true, Attempts: 1}
	})
	r := &Runner{Executor: exec, Workers: 1, MaxWorkers: 4, Threshold: 100, ScaleInterval: time.Hour}
	if _, err := r.Resize(2); err != ErrNotRunning {
		t.Fatalf("Resize before Run = %v, want ErrNotRunning", err)
	}

	specs := makeSpecs(t, 6, models.ConversionOptions{Retries: 1})
	done := make(chan models.BatchResult, 1)
	go func() { done <- r.Run(specs) }()

	deadline := time.Now().Add(2 * time.Second)
	for active.Load() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	got, err := r.Resize(3)
	if err != nil || got != 3 {
		t.Fatalf("Resize(3) = %d, %v", got, err)
	}
	for active.Load() != 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if active.Load() != 3 {
		t.Fatalf("active = %d after resize, want 3", active.Load())
	}
	if got, _ := r.Resize(10); got != 4 {
		t.Errorf("Resize(10) = %d, want clamp to 4", got)
	}

	close(release)
	res := <-done
	if res.SuccessCount != 6 {
		t.Errorf("result = %+v", res)
	}
	if _, err := r.Resize(2); err != ErrNotRunning {
		t.Errorf("Resize after Run = %v, want ErrNotRunning", err)
	}
}
