package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"runtime"
	"slices"
	"strings"
	"time"

	"jpg2png/models"
	writerbackends "jpg2png/writerBackends"
)

// Config is the validated command line of one run.
type Config struct {
	InputDir  string
	OutputDir string
	Ext       string

	Workers        int
	MaxWorkers     int
	Threshold      int
	ScaleInterval  time.Duration
	Retries        int
	RetryDelay     time.Duration
	RetryMaxDelay  time.Duration
	AttemptTimeout time.Duration

	CompressionLevel int
	DryRun           bool
	Improve          bool
	Upscale          int
	Format           string
	Encoder          string
	SkipExisting     bool
	Publish          []string

	LogLevel          string
	LogFile           string
	StatusAddr        string
	NoLedger          bool
	ImportCredentials string
	Manifest          string
	ShowVersion       bool
}

// Formats accepted by -format.
var Formats = []string{"png", "jpg", "jpeg", "gif", "bmp", "tif", "tiff"}

var ErrUsage = errors.New("usage error")

// DefaultConfig mirrors the defaults of the original command line tool.
func DefaultConfig() *Config {
	cpus := runtime.NumCPU()
	return &Config{
		Ext:              ".jpg",
		Workers:          cpus,
		MaxWorkers:       cpus,
		Threshold:        10,
		ScaleInterval:    5 * time.Second,
		Retries:          3,
		RetryDelay:       time.Second,
		CompressionLevel: 6,
		Upscale:          1,
		Format:           "png",
		Encoder:          "imaging",
		LogLevel:         "info",
		LogFile:          GetLogFile(),
		StatusAddr:       GetStatusAddr(),
	}
}

// ParseFlags parses args (without the program name) over cfg.
func ParseFlags(cfg *Config, args []string, output io.Writer) error {
	fs := flag.NewFlagSet("jpg2png", flag.ContinueOnError)
	if output != nil {
		fs.SetOutput(output)
	}
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: jpg2png [flags] <directory>\n\nConvert every %s file under directory.\n\nFlags:\n", cfg.Ext)
		fs.PrintDefaults()
	}

	fs.StringVar(&cfg.OutputDir, "o", cfg.OutputDir, "output directory (default: next to each input)")
	fs.IntVar(&cfg.Workers, "t", cfg.Workers, "initial number of workers")
	fs.IntVar(&cfg.MaxWorkers, "max-workers", cfg.MaxWorkers, "upper bound for the worker pool")
	fs.IntVar(&cfg.Threshold, "threshold", cfg.Threshold, "backlog depth around which the pool grows or shrinks")
	fs.DurationVar(&cfg.ScaleInterval, "scale-interval", cfg.ScaleInterval, "interval between pool scaling decisions")
	fs.IntVar(&cfg.Retries, "r", cfg.Retries, "attempts per file")
	fs.DurationVar(&cfg.RetryDelay, "d", cfg.RetryDelay, "delay between attempts")
	fs.DurationVar(&cfg.RetryMaxDelay, "retry-max-delay", cfg.RetryMaxDelay, "cap for exponential backoff (0 = fixed delay)")
	fs.DurationVar(&cfg.AttemptTimeout, "attempt-timeout", cfg.AttemptTimeout, "deadline per attempt (0 = none)")
	fs.IntVar(&cfg.CompressionLevel, "c", cfg.CompressionLevel, "PNG compression level 0-9")
	fs.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "list what would be converted without writing")
	fs.BoolVar(&cfg.Improve, "improve", cfg.Improve, "sharpen and boost contrast")
	fs.IntVar(&cfg.Upscale, "upscale", cfg.Upscale, "upscale factor (1 = keep size)")
	fs.StringVar(&cfg.Ext, "ext", cfg.Ext, "input file extension, case-insensitive")
	fs.StringVar(&cfg.Format, "format", cfg.Format, "output format: "+strings.Join(Formats, ", "))
	fs.StringVar(&cfg.Encoder, "encoder", cfg.Encoder, "encoder backend (imaging, magick)")
	fs.BoolVar(&cfg.SkipExisting, "skip-existing", cfg.SkipExisting, "skip inputs whose output already exists")
	publish := fs.String("publish", strings.Join(cfg.Publish, ","), "comma separated publish backends: "+strings.Join(writerbackends.Names(), ", "))
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "console log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "also write errors to this file")
	fs.StringVar(&cfg.StatusAddr, "status-addr", cfg.StatusAddr, "serve status and metrics on this address (e.g. :8080)")
	fs.BoolVar(&cfg.NoLedger, "no-ledger", cfg.NoLedger, "do not record outcomes in the data directory")
	fs.StringVar(&cfg.ImportCredentials, "import-credentials", cfg.ImportCredentials, "store backend credentials from a JSON file (backend=file.json) and exit")
	fs.StringVar(&cfg.Manifest, "manifest", cfg.Manifest, "signed manifest (JWT) overriding conversion options")
	fs.BoolVar(&cfg.ShowVersion, "version", cfg.ShowVersion, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.Publish = splitList(*publish)

	switch fs.NArg() {
	case 0:
	case 1:
		cfg.InputDir = fs.Arg(0)
	default:
		return fmt.Errorf("%w: expected one directory, got %d arguments", ErrUsage, fs.NArg())
	}
	return nil
}

// Validate checks ranges and normalises values. Worker counts outside
// [1, MaxWorkers] are clamped rather than rejected.
func (c *Config) Validate() error {
	if c.ShowVersion || c.ImportCredentials != "" {
		return nil
	}
	var errs []error
	if c.InputDir == "" {
		errs = append(errs, errors.New("missing directory argument"))
	}
	if c.Retries < 1 {
		errs = append(errs, fmt.Errorf("-r must be at least 1, got %d", c.Retries))
	}
	if c.RetryDelay < 0 || c.RetryMaxDelay < 0 || c.AttemptTimeout < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if c.CompressionLevel < 0 || c.CompressionLevel > 9 {
		errs = append(errs, fmt.Errorf("-c must be within 0-9, got %d", c.CompressionLevel))
	}
	if c.Upscale < 1 {
		errs = append(errs, fmt.Errorf("-upscale must be at least 1, got %d", c.Upscale))
	}
	if c.Threshold < 0 {
		errs = append(errs, fmt.Errorf("-threshold must not be negative, got %d", c.Threshold))
	}
	if c.ScaleInterval <= 0 {
		errs = append(errs, fmt.Errorf("-scale-interval must be positive, got %v", c.ScaleInterval))
	}

	c.Format = strings.ToLower(strings.TrimPrefix(c.Format, "."))
	if !slices.Contains(Formats, c.Format) {
		errs = append(errs, fmt.Errorf("unsupported -format %q", c.Format))
	}
	if c.Ext == "" {
		errs = append(errs, errors.New("-ext must not be empty"))
	} else if !strings.HasPrefix(c.Ext, ".") {
		c.Ext = "." + c.Ext
	}
	for _, p := range c.Publish {
		if !slices.Contains(writerbackends.Names(), p) {
			errs = append(errs, fmt.Errorf("unknown publish backend %q", p))
		}
	}

	if c.MaxWorkers < 1 {
		c.MaxWorkers = 1
	}
	c.Workers = min(max(c.Workers, 1), c.MaxWorkers)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrUsage, errors.Join(errs...))
	}
	return nil
}

// ConversionOptions returns the options shared by every job of the run.
func (c *Config) ConversionOptions() models.ConversionOptions {
	return models.ConversionOptions{
		Retries:          c.Retries,
		RetryDelay:       c.RetryDelay,
		RetryMaxDelay:    c.RetryMaxDelay,
		CompressionLevel: c.CompressionLevel,
		DryRun:           c.DryRun,
		Improve:          c.Improve,
		UpscaleFactor:    c.Upscale,
		AttemptTimeout:   c.AttemptTimeout,
		Format:           c.Format,
		Publish:          slices.Clone(c.Publish),
	}
}

// ApplyManifest overrides conversion settings with the non-nil fields of m.
// Call Validate afterwards.
func (c *Config) ApplyManifest(m models.ManifestOptions) error {
	if m.Retries != nil {
		c.Retries = *m.Retries
	}
	if m.RetryDelay != nil {
		d, err := time.ParseDuration(*m.RetryDelay)
		if err != nil {
			return fmt.Errorf("manifest retryDelay: %w", err)
		}
		c.RetryDelay = d
	}
	if m.CompressionLevel != nil {
		c.CompressionLevel = *m.CompressionLevel
	}
	if m.DryRun != nil {
		c.DryRun = *m.DryRun
	}
	if m.Improve != nil {
		c.Improve = *m.Improve
	}
	if m.UpscaleFactor != nil {
		c.Upscale = *m.UpscaleFactor
	}
	if m.Format != nil {
		c.Format = *m.Format
	}
	if m.Publish != nil {
		c.Publish = slices.Clone(m.Publish)
	}
	return nil
}

// ParseCredentialImport splits "backend=file.json".
func ParseCredentialImport(s string) (backend, path string, err error) {
	backend, path, ok := strings.Cut(s, "=")
	if !ok || backend == "" || path == "" {
		return "", "", fmt.Errorf("%w: -import-credentials wants backend=file.json, got %q", ErrUsage, s)
	}
	if !slices.Contains(writerbackends.Names(), backend) {
		return "", "", fmt.Errorf("%w: unknown backend %q", ErrUsage, backend)
	}
	return backend, path, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
