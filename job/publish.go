package job

import (
	"context"
	"errors"
	"os"

	"jpg2png/config"
	"jpg2png/encoder"
	"jpg2png/models"
	writerbackends "jpg2png/writerBackends"

	"golang.org/x/sync/errgroup"
)

// publishAll uploads the converted file to every writer concurrently.
// Configuration problems are non-recoverable, everything else is retried
// with the attempt.
func publishAll(ctx context.Context, writers []models.WriterJob, localPath, filename string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range writers {
		g.Go(func() error {
			reader, err := os.Open(localPath)
			if err != nil {
				return encoder.NewTransient("publish", localPath, err)
			}
			defer reader.Close()

			accessInfo := prepareAccessInfo(w, filename)
			if err := writerbackends.WriteImage(gctx, accessInfo, reader, w.Type); err != nil {
				if errors.Is(err, writerbackends.ErrMissingConfig) || errors.Is(err, writerbackends.ErrUnknownBackend) {
					return encoder.NewNonRecoverable("publish", w.Type, err)
				}
				return encoder.NewTransient("publish", w.Type, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// prepareAccessInfo prepares the access info map for the writer backend
func prepareAccessInfo(w models.WriterJob, filename string) map[string]string {
	accessInfo := make(map[string]string, len(w.Credentials)+2)
	for k, v := range w.Credentials {
		accessInfo[k] = v
	}
	accessInfo["filename"] = filename

	if w.Type == writerbackends.DirectServe && accessInfo["baseDir"] == "" {
		accessInfo["baseDir"] = config.GetDirectServeBaseDir()
	}
	return accessInfo
}
