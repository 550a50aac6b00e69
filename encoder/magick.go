package encoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/disintegration/imaging"
)

// EncodeMagick runs the same pipeline through the ImageMagick CLI.
func EncodeMagick(ctx context.Context, in, out string, o EncodeOptions) error {
	if _, err := os.Stat(in); err != nil {
		return NewTransient("open", in, err)
	}
	format, err := outputFormat(out, o.Format)
	if err != nil {
		return NewNonRecoverable("format", out, err)
	}

	cmd := exec.CommandContext(ctx, "magick", magickArgs(in, out, format, o)...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return NewTransient("magick", in, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return NewNonRecoverable("magick", in, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String())))
		}
		if errors.Is(err, exec.ErrNotFound) {
			return NewNonRecoverable("magick", in, err)
		}
		return tag("magick", in, err)
	}
	return nil
}

// magickArgs builds the argument list for a single magick invocation
func magickArgs(in, out string, format imaging.Format, o EncodeOptions) []string {
	args := []string{in}
	if o.Improve {
		args = append(args,
			"-sharpen", fmt.Sprintf("0x%.1f", improveSharpness-1),
			"-brightness-contrast", fmt.Sprintf("0x%.0f", (improveContrast-1)*100),
		)
	}
	if o.UpscaleFactor > 1 {
		args = append(args, "-filter", "Lanczos", "-resize", fmt.Sprintf("%d%%", o.UpscaleFactor*100))
	}
	if format == imaging.PNG {
		args = append(args, "-define", fmt.Sprintf("png:compression-level=%d", clampLevel(o.CompressionLevel)))
	}
	args = append(args, fmt.Sprintf("%s:%s", strings.ToLower(format.String()), out))
	return args
}

func clampLevel(level int) int {
	switch {
	case level < 0:
		return 0
	case level > 9:
		return 9
	default:
		return level
	}
}
