package writerbackends

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// Backend names accepted by WriteImage and the -publish flag.
const (
	DirectServe = "directServe"
	S3          = "s3"
	GCS         = "gcs"
	SFTP        = "sftp"
)

var (
	// ErrMissingConfig means the access info lacks a required key. Retrying
	// cannot fix it.
	ErrMissingConfig  = errors.New("missing backend configuration")
	ErrUnknownBackend = errors.New("unknown backend type")
)

// Names lists the supported backends.
func Names() []string { return []string{DirectServe, S3, GCS, SFTP} }

// Required returns the access info keys a backend cannot work without.
func Required(backendType string) []string {
	switch backendType {
	case DirectServe:
		return nil
	case S3:
		return []string{"accessKey", "secretKey", "region", "bucket"}
	case GCS:
		return []string{"credentialsJSON", "bucket"}
	case SFTP:
		return []string{"host", "user"}
	}
	return nil
}

func WriteImage(ctx context.Context, accessInfo map[string]string, reader io.Reader, backendType string) error {
	switch backendType {
	case DirectServe:
		if err := UploadToDirectServe(ctx, accessInfo, reader); err != nil {
			return fmt.Errorf("failed to upload to direct serve: %w", err)
		}
	case S3:
		if err := UploadToS3WithCreds(ctx, accessInfo, reader); err != nil {
			return fmt.Errorf("failed to upload to S3: %w", err)
		}
	case GCS:
		if err := UploadToGCSWithJSON(ctx, accessInfo, reader); err != nil {
			return fmt.Errorf("failed to upload to GCS: %w", err)
		}
	case SFTP:
		if err := UploadToSFTPWithCreds(ctx, accessInfo, reader); err != nil {
			return fmt.Errorf("failed to upload to SFTP: %w", err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownBackend, backendType)
	}
	return nil
}

// checkRequired fails with ErrMissingConfig naming every absent key.
func checkRequired(accessInfo map[string]string, keys ...string) error {
	var missing []string
	for _, k := range keys {
		if accessInfo[k] == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}
	return nil
}

// objectKey joins the optional folder prefix with the file name, using
// forward slashes as object stores and SFTP servers expect.
func objectKey(accessInfo map[string]string) string {
	return strings.TrimPrefix(path.Join(accessInfo["folder"], accessInfo["filename"]), "/")
}
