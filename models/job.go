package models

import "time"

// ConversionOptions is shared read-only by every job of a batch.
type ConversionOptions struct {
	// Retries is the number of attempts per job, counted from 1.
	Retries    int           `json:"retries"`
	RetryDelay time.Duration `json:"retry_delay"`
	// RetryMaxDelay above RetryDelay switches to jittered exponential backoff.
	RetryMaxDelay    time.Duration `json:"retry_max_delay"`
	CompressionLevel int           `json:"compression_level"`
	DryRun           bool          `json:"dry_run"`
	// Improve sharpens the image and then boosts its contrast.
	Improve        bool          `json:"improve"`
	UpscaleFactor  int           `json:"upscale_factor"`
	AttemptTimeout time.Duration `json:"attempt_timeout"`
	Format         string        `json:"format"`
	Publish        []string      `json:"publish"`
}

// JobSpec describes one file conversion. It is never mutated after creation.
type JobSpec struct {
	InputPath  string            `json:"input_path"`
	OutputPath string            `json:"output_path"`
	// PublishKey is OutputPath relative to the output root with forward
	// slashes. Publish sinks store the file under it; empty means the base name.
	PublishKey string            `json:"publish_key,omitempty"`
	Options    ConversionOptions `json:"options"`
}

// WriterJob is a publish destination resolved from configuration.
type WriterJob struct {
	Type        string            // "directServe", "s3", "gcs" or "sftp"
	Credentials map[string]string // backend specific access info
}
