package writerbackends

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"jpg2png/logger"
)

// UploadToDirectServe copies content into baseDir/folder/filename, the tree
// served by a static file server.
func UploadToDirectServe(ctx context.Context, accessInfo map[string]string, reader io.Reader) error {
	if err := checkRequired(accessInfo, "baseDir", "filename"); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// filename may carry subdirectories (a/x.png)
	fullPath := filepath.Join(accessInfo["baseDir"], filepath.FromSlash(objectKey(accessInfo)))
	fullDir := filepath.Dir(fullPath)

	if err := os.MkdirAll(fullDir, 0o755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	// stage next to the target so a reader of the serve tree never sees a partial file
	tmp, err := os.CreateTemp(fullDir, "."+filepath.Base(fullPath)+"-*.part")
	if err != nil {
		return fmt.Errorf("failed to create file in %s: %w", fullDir, err)
	}
	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write to file %s: %w", fullPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write to file %s: %w", fullPath, err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move file into %s: %w", fullPath, err)
	}

	logger.Infof("Successfully saved file '%s' to '%s'", accessInfo["filename"], fullPath)
	return nil
}
