package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"jpg2png/encoder"
	"jpg2png/logger"
	"jpg2png/models"

	boff "github.com/Andrej220/go-utils/backoff"
)

// Operation converts one file with retries. It is safe for concurrent use
// by many workers; all per-job state lives on the stack of Execute.
type Operation struct {
	Encode  encoder.EncodeFunc
	Writers []models.WriterJob // publish destinations, may be empty
	Tracker *Tracker           // optional

	// wait blocks for d or until ctx is done. It reports whether the full
	// delay elapsed. Tests replace it.
	wait func(ctx context.Context, d time.Duration) bool
}

// NewOperation returns an Operation over enc.
func NewOperation(enc encoder.EncodeFunc, writers []models.WriterJob, tracker *Tracker) *Operation {
	return &Operation{Encode: enc, Writers: writers, Tracker: tracker}
}

// Execute runs spec to a terminal outcome. Per-attempt errors never escape:
// they are classified and folded into the returned JobOutcome.
//
// ctx is the shutdown context. Its cancellation stops the retry loop between
// attempts but never interrupts an attempt that has already started.
func (o *Operation) Execute(ctx context.Context, spec models.JobSpec) models.JobOutcome {
	// dispatched, but shutdown began before the job got going
	if ctx.Err() != nil {
		return models.Cancelled(spec)
	}

	start := time.Now()
	opts := spec.Options
	if o.Tracker != nil {
		o.Tracker.Start(spec.InputPath)
	}

	if opts.DryRun {
		logger.Infof("[dry-run] would convert %s -> %s", spec.InputPath, spec.OutputPath)
		return models.JobOutcome{Spec: spec, Success: true, Elapsed: time.Since(start)}
	}

	next := o.delays(opts)
	var lastErr error
	for attempt := 1; attempt <= opts.Retries; attempt++ {
		err := o.attempt(ctx, spec)
		if err == nil {
			logger.Debugf("converted %s -> %s (attempt %d)", spec.InputPath, spec.OutputPath, attempt)
			return models.JobOutcome{Spec: spec, Success: true, Attempts: attempt, Elapsed: time.Since(start)}
		}
		lastErr = err

		if encoder.Classify(err) == encoder.NonRecoverable {
			return failed(spec, attempt, start, models.KindNonRecoverable, err)
		}
		if attempt == opts.Retries {
			return failed(spec, attempt, start, models.KindRetriesExhausted, err)
		}

		delay := next()
		logger.Warnw("attempt failed; backing off",
			"input", spec.InputPath,
			"attempt", attempt,
			"sleep", delay.String(),
			"error", err,
		)
		if ctx.Err() != nil || !o.sleep(ctx, delay) {
			logger.Infow("retry abandoned, shutdown in progress", "input", spec.InputPath, "attempt", attempt)
			return failed(spec, attempt, start, models.KindTransient, err)
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no attempts configured")
	}
	return failed(spec, 0, start, models.KindRetriesExhausted, lastErr)
}

func failed(spec models.JobSpec, attempts int, start time.Time, kind models.ErrorKind, err error) models.JobOutcome {
	return models.JobOutcome{
		Spec:      spec,
		Attempts:  attempts,
		Elapsed:   time.Since(start),
		ErrorKind: kind,
		Detail:    err.Error(),
	}
}

// delays returns the retry delay generator: fixed RetryDelay, or jittered
// exponential growth capped at RetryMaxDelay when that is larger.
func (o *Operation) delays(opts models.ConversionOptions) func() time.Duration {
	if opts.RetryMaxDelay > opts.RetryDelay && opts.RetryDelay > 0 {
		bo := boff.New(opts.RetryDelay, opts.RetryMaxDelay, time.Now().UnixNano())
		return func() time.Duration { return bo.Next() }
	}
	return func() time.Duration { return opts.RetryDelay }
}

func (o *Operation) sleep(ctx context.Context, d time.Duration) bool {
	if o.wait != nil {
		return o.wait(ctx, d)
	}
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		if !timer.Stop() {
			<-timer.C
		}
		return false
	}
}

// attempt encodes into a hidden temp file next to the destination, publishes
// it, then renames it into place. The destination is never left half written.
func (o *Operation) attempt(ctx context.Context, spec models.JobSpec) error {
	attemptCtx := context.WithoutCancel(ctx)
	if spec.Options.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(attemptCtx, spec.Options.AttemptTimeout)
		defer cancel()
	}

	dir := filepath.Dir(spec.OutputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return encoder.NewTransient("mkdir", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(spec.OutputPath)+"-*.tmp")
	if err != nil {
		return encoder.NewTransient("create", dir, err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	opts := encoder.EncodeOptions{
		Improve:          spec.Options.Improve,
		UpscaleFactor:    spec.Options.UpscaleFactor,
		CompressionLevel: spec.Options.CompressionLevel,
		Format:           outputFormat(spec),
	}

	if err := o.encode(attemptCtx, spec.InputPath, tmpPath, opts); err != nil {
		return err
	}

	if len(o.Writers) > 0 {
		key := spec.PublishKey
		if key == "" {
			key = filepath.Base(spec.OutputPath)
		}
		if err := publishAll(attemptCtx, o.Writers, tmpPath, key); err != nil {
			os.Remove(tmpPath)
			return err
		}
	}

	if err := os.Rename(tmpPath, spec.OutputPath); err != nil {
		os.Remove(tmpPath)
		return encoder.NewTransient("rename", spec.OutputPath, err)
	}
	return nil
}

// encode runs the encoder and removes tmpPath on failure. With a deadline
// on ctx the call runs in its own goroutine so a stalled encoder cannot
// hold the worker past the deadline; the abandoned call cleans up after itself.
func (o *Operation) encode(ctx context.Context, input, tmpPath string, opts encoder.EncodeOptions) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		err := o.Encode(ctx, input, tmpPath, opts)
		if err != nil {
			os.Remove(tmpPath)
		}
		return err
	}

	done := make(chan error, 1)
	go func() {
		err := o.Encode(ctx, input, tmpPath, opts)
		if err != nil || ctx.Err() != nil {
			os.Remove(tmpPath)
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil && ctx.Err() != nil {
			return encoder.NewTransient("encode", input, ctx.Err())
		}
		return err
	case <-ctx.Done():
		return encoder.NewTransient("encode", input, fmt.Errorf("attempt deadline: %w", ctx.Err()))
	}
}

func outputFormat(spec models.JobSpec) string {
	if spec.Options.Format != "" {
		return spec.Options.Format
	}
	return strings.TrimPrefix(filepath.Ext(spec.OutputPath), ".")
}
