package writerbackends

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"path"

	"jpg2png/logger"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// UploadToGCSWithJSON uploads content from an io.Reader to a Google Cloud Storage object,
// using a service account key given as raw JSON or base64.
func UploadToGCSWithJSON(ctx context.Context, accessInfo map[string]string, reader io.Reader) error {
	if err := checkRequired(accessInfo, Required(GCS)...); err != nil {
		return err
	}
	credentialsJSON := decodeMaybeBase64(accessInfo["credentialsJSON"])
	bucketName := accessInfo["bucket"]
	objectName := objectKey(accessInfo)

	client, err := storage.NewClient(ctx, option.WithCredentialsJSON(credentialsJSON))
	if err != nil {
		return fmt.Errorf("storage.NewClient: %w", err)
	}
	defer client.Close()

	wc := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	wc.ContentType = contentType(objectName)

	if _, err = io.Copy(wc, reader); err != nil {
		wc.Close()
		return fmt.Errorf("io.Copy: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("Writer.Close: %w", err)
	}

	logger.Infof("Successfully uploaded object '%s' to bucket '%s'", objectName, bucketName)
	return nil
}

// decodeMaybeBase64 accepts padded or raw base64 and falls back to the input.
func decodeMaybeBase64(s string) []byte {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b
	}
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b
	}
	return []byte(s)
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
