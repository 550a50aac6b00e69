package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"jpg2png/batch"
	"jpg2png/config"
	"jpg2png/credentials"
	"jpg2png/encoder"
	"jpg2png/failures"
	"jpg2png/job"
	"jpg2png/logger"
	"jpg2png/metrics"
	"jpg2png/models"
	"jpg2png/progress"
	"jpg2png/routes"
	"jpg2png/shutdown"
	"jpg2png/success"
	"jpg2png/utils"

	"github.com/joho/godotenv"
)

// ledgerMaxAge is how long success and failure records are kept.
const ledgerMaxAge = 30 * 24 * time.Hour

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: .env not loaded: %v\n", err)
	}

	cfg := config.DefaultConfig()
	if err := config.ParseFlags(cfg, args, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if cfg.ShowVersion {
		fmt.Println(routes.VersionString())
		return 0
	}

	if err := logger.Init(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile, Console: true}); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 2
	}
	defer logger.Close()

	if cfg.ImportCredentials != "" {
		return importCredentials(cfg.ImportCredentials)
	}

	if cfg.Manifest != "" {
		claims, err := utils.ReadManifest(cfg.Manifest, utils.VerifyConfig{
			SecretKey: config.GetManifestSecret(),
			ClockSkew: time.Minute,
		})
		if err != nil {
			logger.Errorf("Manifest rejected: %v", err)
			return 2
		}
		if err := cfg.ApplyManifest(claims.Options); err != nil {
			logger.Errorf("Manifest rejected: %v", err)
			return 2
		}
		logger.Infof("Applied manifest '%s' issued by '%s'", claims.Subject, claims.Issuer)
	}

	if err := cfg.Validate(); err != nil {
		logger.Error(err)
		return 2
	}

	encoder.RegisterDefaults()
	enc, ok := encoder.Get(cfg.Encoder)
	if !ok {
		logger.Errorf("Encoder '%s' is not available (have: %v)", cfg.Encoder, encoder.Names())
		return 2
	}

	inputs, err := utils.Discover(cfg.InputDir, cfg.Ext)
	if err != nil {
		logger.Errorf("The specified path '%s' is not usable: %v", cfg.InputDir, err)
		return 1
	}
	if len(inputs) == 0 {
		logger.Errorf("No %s files found in the specified directory.", cfg.Ext)
		return 0
	}

	specs, err := job.BuildSpecs(inputs, cfg.InputDir, cfg.OutputDir, cfg.ConversionOptions())
	if err != nil {
		logger.Error(err)
		return 1
	}
	if cfg.SkipExisting {
		specs = skipExisting(specs)
	}
	if cfg.OutputDir != "" && !cfg.DryRun {
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			logger.Errorf("Failed to create output directory '%s': %v", cfg.OutputDir, err)
			return 1
		}
	}

	if !cfg.NoLedger {
		closeLedger, err := openLedger()
		if err != nil {
			logger.Errorf("Failed to open ledger: %v", err)
			return 1
		}
		defer closeLedger()
	}

	writers := resolveWriters(cfg.Publish)

	coord := shutdown.New()
	stopSignals := coord.Notify()
	defer stopSignals()

	tracker := job.NewTracker()
	m := metrics.New()
	runner := &batch.Runner{
		Executor:      job.NewOperation(enc, writers, tracker),
		Coordinator:   coord,
		Workers:       cfg.Workers,
		MaxWorkers:    cfg.MaxWorkers,
		Threshold:     cfg.Threshold,
		ScaleInterval: cfg.ScaleInterval,
		Tracker:       tracker,
		Metrics:       m,
	}
	if !cfg.NoLedger && !cfg.DryRun {
		runner.Recorder = batch.Ledger{}
	}

	if cfg.StatusAddr != "" {
		serverCtx, stopServer := context.WithCancel(context.Background())
		defer stopServer()
		errc, err := routes.Serve(serverCtx, cfg.StatusAddr, routes.NewMux(routes.Deps{
			Status:      runner,
			Tracker:     tracker,
			Coordinator: coord,
			Workers:     runner,
			Metrics:     m,
			Ledger:      !cfg.NoLedger,
			Checks:      ledgerChecks(cfg.NoLedger),
		}))
		if err != nil {
			logger.Errorf("Status server failed to start: %v", err)
			return 1
		}
		go watchServer(errc, func(err error) {
			logger.Errorf("Status server stopped: %v", err)
		})
	}

	logger.Infof("Using %d workers (max %d) for %d files", cfg.Workers, cfg.MaxWorkers, len(specs))
	prog := progress.New(os.Stderr, len(specs))
	runner.Progress = prog
	res := runner.Run(specs)
	prog.Finish()
	report(res)

	if coord.ShuttingDown() {
		logger.Warn("Conversion process interrupted.")
		return 1
	}
	return 0
}

// report is the reporting layer: the engine only returns counts.
func report(res models.BatchResult) {
	logger.Infow("batch finished",
		"run_id", res.RunID,
		"succeeded", res.SuccessCount,
		"failed", res.FailureCount,
		"cancelled", res.CancelledCount,
		"elapsed", res.TotalElapsed.Round(time.Millisecond).String(),
	)
	logger.Infof("Conversion completed in %.2f seconds", res.TotalElapsed.Seconds())
	logger.Infof("Successfully converted %d files", res.SuccessCount)
	logger.Infof("Failed to convert %d files", res.FailureCount)
}

// watchServer hands the first serve error, if any, to report. A clean
// shutdown closes errc without a value.
func watchServer(errc <-chan error, report func(error)) {
	if err, ok := <-errc; ok && err != nil {
		report(err)
	}
}

func skipExisting(specs []models.JobSpec) []models.JobSpec {
	kept := specs[:0]
	for _, s := range specs {
		if _, err := os.Stat(s.OutputPath); err == nil {
			logger.Debugf("Skipping %s: %s exists", s.InputPath, s.OutputPath)
			continue
		}
		kept = append(kept, s)
	}
	if skipped := len(specs) - len(kept); skipped > 0 {
		logger.Infof("Skipping %d files with existing output", skipped)
	}
	return kept
}

func openLedger() (func(), error) {
	if err := os.MkdirAll(config.GetDataDir(), 0o755); err != nil {
		return nil, err
	}
	if err := success.Init(config.GetSuccessDBPath()); err != nil {
		return nil, err
	}
	if err := failures.Init(config.GetFailuresDBPath()); err != nil {
		success.Close()
		return nil, err
	}

	if n, err := success.CleanupOldRecords(ledgerMaxAge); err != nil {
		logger.Errorf("Failed to cleanup old success records: %v", err)
	} else if n > 0 {
		logger.Infof("Removed %d success records older than %v", n, ledgerMaxAge)
	}
	if n, err := failures.CleanupOldRecords(ledgerMaxAge); err != nil {
		logger.Errorf("Failed to cleanup old failure records: %v", err)
	} else if n > 0 {
		logger.Infof("Removed %d failure records older than %v", n, ledgerMaxAge)
	}

	return func() {
		success.Close()
		failures.Close()
	}, nil
}

func ledgerChecks(disabled bool) map[string]func() error {
	if disabled {
		return nil
	}
	return map[string]func() error{
		"success_db":  success.CheckHealth,
		"failures_db": failures.CheckHealth,
	}
}

// resolveWriters reads stored credentials for each publish backend and
// closes the store again; access info is copied into the writer jobs.
func resolveWriters(backends []string) []models.WriterJob {
	if len(backends) == 0 {
		return nil
	}
	if err := credentials.OpenDB(config.GetCredentialsDBPath()); err != nil {
		logger.Warnf("Credentials store unavailable, using environment only: %v", err)
	} else {
		defer credentials.CloseDB()
	}

	writers := make([]models.WriterJob, 0, len(backends))
	for _, b := range backends {
		writers = append(writers, credentials.Resolve(b))
		logger.Infof("Publishing to %s", b)
	}
	return writers
}

func importCredentials(spec string) int {
	backend, path, err := config.ParseCredentialImport(spec)
	if err != nil {
		logger.Error(err)
		return 2
	}
	if err := os.MkdirAll(config.GetDataDir(), 0o755); err != nil {
		logger.Errorf("Failed to create data directory: %v", err)
		return 1
	}
	if err := credentials.OpenDB(config.GetCredentialsDBPath()); err != nil {
		return 1
	}
	defer credentials.CloseDB()

	if err := credentials.ImportFile(backend, path); err != nil {
		logger.Error(err)
		return 1
	}
	return 0
}
