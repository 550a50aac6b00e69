package encoder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/disintegration/imaging"
)

// EnhanceKind selects an enhancement applied by Transformer.Enhance.
type EnhanceKind int

const (
	Sharpness EnhanceKind = iota
	Contrast
)

// Enhancement factors used by EncodeOptions.Improve. 1.0 leaves the image unchanged.
const (
	improveSharpness = 2.0
	improveContrast  = 1.5
)

// Transformer is the image capability driven by Pipeline.
type Transformer interface {
	Open(path string) (image.Image, error)
	Enhance(img image.Image, kind EnhanceKind, factor float64) (image.Image, error)
	Resize(img image.Image, width, height int) (image.Image, error)
	Save(img image.Image, w io.Writer, format imaging.Format, compressionLevel int) error
}

// Pipeline runs open, improve, upscale and save through a Transformer and
// tags every failure with a Class.
type Pipeline struct {
	t Transformer
}

// NewPipeline returns a pipeline over t, or over the imaging library when t is nil.
func NewPipeline(t Transformer) *Pipeline {
	if t == nil {
		t = imagingTransformer{}
	}
	return &Pipeline{t: t}
}

// Encode satisfies EncodeFunc.
func (p *Pipeline) Encode(ctx context.Context, input, output string, opts EncodeOptions) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewNonRecoverable("transform", input, fmt.Errorf("panic: %v", r))
		}
	}()

	format, err := outputFormat(output, opts.Format)
	if err != nil {
		return NewNonRecoverable("format", output, err)
	}

	img, err := p.t.Open(input)
	if err != nil {
		return tag("open", input, err)
	}

	if opts.Improve {
		if err := ctx.Err(); err != nil {
			return NewTransient("enhance", input, err)
		}
		if img, err = p.t.Enhance(img, Sharpness, improveSharpness); err != nil {
			return tag("enhance", input, err)
		}
		if img, err = p.t.Enhance(img, Contrast, improveContrast); err != nil {
			return tag("enhance", input, err)
		}
	}

	if opts.UpscaleFactor > 1 {
		if err := ctx.Err(); err != nil {
			return NewTransient("resize", input, err)
		}
		b := img.Bounds()
		if img, err = p.t.Resize(img, b.Dx()*opts.UpscaleFactor, b.Dy()*opts.UpscaleFactor); err != nil {
			return tag("resize", input, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return NewTransient("save", output, err)
	}
	f, err := os.Create(output)
	if err != nil {
		return NewTransient("save", output, err)
	}
	saveErr := p.t.Save(img, f, format, opts.CompressionLevel)
	closeErr := f.Close()
	if saveErr != nil {
		return tag("save", output, saveErr)
	}
	if closeErr != nil {
		return NewTransient("save", output, closeErr)
	}
	return nil
}

func outputFormat(output, format string) (imaging.Format, error) {
	if format != "" {
		return imaging.FormatFromExtension(strings.TrimPrefix(format, "."))
	}
	return imaging.FormatFromFilename(output)
}

// PNGLevel maps a 0..9 compression level onto the levels Go's png encoder knows.
func PNGLevel(level int) png.CompressionLevel {
	switch {
	case level <= 0:
		return png.NoCompression
	case level <= 3:
		return png.BestSpeed
	case level <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

// imagingTransformer implements Transformer with github.com/disintegration/imaging.
type imagingTransformer struct{}

func (imagingTransformer) Open(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err == nil {
		return img, nil
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return nil, err
	}
	// decoder errors: the bytes are there but are not an image we understand
	return nil, NewNonRecoverable("decode", path, err)
}

func (imagingTransformer) Enhance(img image.Image, kind EnhanceKind, factor float64) (image.Image, error) {
	switch kind {
	case Sharpness:
		if factor <= 1 {
			return img, nil
		}
		return imaging.Sharpen(img, factor-1), nil
	case Contrast:
		return imaging.AdjustContrast(img, (factor-1)*100), nil
	default:
		return nil, fmt.Errorf("unknown enhancement %d", kind)
	}
}

func (imagingTransformer) Resize(img image.Image, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", width, height)
	}
	return imaging.Resize(img, width, height, imaging.Lanczos), nil
}

func (imagingTransformer) Save(img image.Image, w io.Writer, format imaging.Format, compressionLevel int) error {
	var opts []imaging.EncodeOption
	switch format {
	case imaging.PNG:
		opts = append(opts, imaging.PNGCompressionLevel(PNGLevel(compressionLevel)))
	case imaging.JPEG:
		opts = append(opts, imaging.JPEGQuality(95))
	}
	return imaging.Encode(w, img, format, opts...)
}
