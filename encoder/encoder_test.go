package encoder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/disintegration/imaging"
)

func writeJPEG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return path
}

func decodePNG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	return img
}

func TestPipelineConvertsJPEGToPNG(t *testing.T) {
	dir := t.TempDir()
	in := writeJPEG(t, dir, "photo.jpg", 8, 6)
	out := filepath.Join(dir, "photo.png")

	if err := NewPipeline(nil).Encode(context.Background(), in, out, EncodeOptions{CompressionLevel: 6}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b := decodePNG(t, out).Bounds()
	if b.Dx() != 8 || b.Dy() != 6 {
		t.Errorf("size = %dx%d, want 8x6", b.Dx(), b.Dy())
	}
}

func TestPipelineImproveAndUpscale(t *testing.T) {
	dir := t.TempDir()
	in := writeJPEG(t, dir, "photo.jpg", 8, 6)
	out := filepath.Join(dir, "photo.png")

	opts := EncodeOptions{Improve: true, UpscaleFactor: 3, CompressionLevel: 9}
	if err := NewPipeline(nil).Encode(context.Background(), in, out, opts); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b := decodePNG(t, out).Bounds()
	if b.Dx() != 24 || b.Dy() != 18 {
		t.Errorf("size = %dx%d, want 24x18", b.Dx(), b.Dy())
	}
}

func TestPipelineMissingInputIsTransient(t *testing.T) {
	dir := t.TempDir()
	err := NewPipeline(nil).Encode(context.Background(), filepath.Join(dir, "gone.jpg"), filepath.Join(dir, "gone.png"), EncodeOptions{})
	if got := Classify(err); got != Transient {
		t.Fatalf("class = %v, want transient (err=%v)", got, err)
	}
}

func TestPipelineCorruptInputIsNonRecoverable(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "fake.jpg")
	if err := os.WriteFile(in, []byte("fake jpg content"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := NewPipeline(nil).Encode(context.Background(), in, filepath.Join(dir, "fake.png"), EncodeOptions{})
	if got := Classify(err); got != NonRecoverable {
		t.Fatalf("class = %v, want non_recoverable (err=%v)", got, err)
	}
}

func TestPipelineUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	in := writeJPEG(t, dir, "photo.jpg", 2, 2)
	err := NewPipeline(nil).Encode(context.Background(), in, filepath.Join(dir, "photo.xyz"), EncodeOptions{})
	if got := Classify(err); got != NonRecoverable {
		t.Fatalf("class = %v, want non_recoverable", got)
	}
}

func TestPipelineExplicitFormatOverridesExtension(t *testing.T) {
	dir := t.TempDir()
	in := writeJPEG(t, dir, "photo.jpg", 4, 4)
	out := filepath.Join(dir, ".photo-123.tmp")
	if err := NewPipeline(nil).Encode(context.Background(), in, out, EncodeOptions{Format: "png"}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decodePNG(t, out)
}

type panickyTransformer struct{ imagingTransformer }

func (panickyTransformer) Resize(image.Image, int, int) (image.Image, error) {
	panic("resize exploded")
}

func TestPipelineRecoversPanics(t *testing.T) {
	dir := t.TempDir()
	in := writeJPEG(t, dir, "photo.jpg", 4, 4)
	err := NewPipeline(panickyTransformer{}).Encode(context.Background(), in, filepath.Join(dir, "p.png"), EncodeOptions{UpscaleFactor: 2})
	if got := Classify(err); got != NonRecoverable {
		t.Fatalf("class = %v, want non_recoverable", got)
	}
	if !strings.Contains(err.Error(), "resize exploded") {
		t.Errorf("error should carry the panic value: %v", err)
	}
}

type failingSave struct {
	imagingTransformer
	err error
}

func (f failingSave) Save(image.Image, io.Writer, imaging.Format, int) error { return f.err }

func TestPipelineSaveErrorsAreTagged(t *testing.T) {
	dir := t.TempDir()
	in := writeJPEG(t, dir, "photo.jpg", 4, 4)
	out := filepath.Join(dir, "photo.png")

	err := NewPipeline(failingSave{err: syscall.ENOSPC}).Encode(context.Background(), in, out, EncodeOptions{})
	if got := Classify(err); got != Transient {
		t.Errorf("ENOSPC class = %v, want transient", got)
	}

	err = NewPipeline(failingSave{err: errors.New("bad palette")}).Encode(context.Background(), in, out, EncodeOptions{})
	if got := Classify(err); got != NonRecoverable {
		t.Errorf("encoder error class = %v, want non_recoverable", got)
	}
}

func TestPipelineExpiredContextIsTransient(t *testing.T) {
	dir := t.TempDir()
	in := writeJPEG(t, dir, "photo.jpg", 4, 4)
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()

	err := NewPipeline(nil).Encode(ctx, in, filepath.Join(dir, "photo.png"), EncodeOptions{})
	if got := Classify(err); got != Transient {
		t.Fatalf("class = %v, want transient", got)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, 0},
		{"path error", &os.PathError{Op: "open", Path: "x", Err: syscall.EBUSY}, Transient},
		{"errno", syscall.EMFILE, Transient},
		{"wrapped errno", fmt.Errorf("write: %w", syscall.EAGAIN), Transient},
		{"deadline", context.DeadlineExceeded, Transient},
		{"plain", errors.New("malformed"), NonRecoverable},
		{"tagged transient", NewTransient("publish", "k", errors.New("503")), Transient},
		{"tagged wins over io", NewNonRecoverable("open", "x", syscall.EBUSY), NonRecoverable},
		{"format", image.ErrFormat, NonRecoverable},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("%s: Classify = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestPNGLevel(t *testing.T) {
	cases := map[int]png.CompressionLevel{
		-1: png.NoCompression,
		0:  png.NoCompression,
		1:  png.BestSpeed,
		6:  png.DefaultCompression,
		9:  png.BestCompression,
	}
	for in, want := range cases {
		if got := PNGLevel(in); got != want {
			t.Errorf("PNGLevel(%d) = %v, want %v", in, got, want)
		}
	}
}

func TestMagickArgs(t *testing.T) {
	args := magickArgs("in.jpg", "out.png", imaging.PNG, EncodeOptions{Improve: true, UpscaleFactor: 2, CompressionLevel: 12})
	joined := strings.Join(args, " ")
	for _, want := range []string{"in.jpg", "-sharpen 0x1.0", "-resize 200%", "png:compression-level=9", "png:out.png"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
}

func TestRegistry(t *testing.T) {
	RegisterDefaults()
	if _, ok := Get(Default); !ok {
		t.Fatalf("%s encoder should always be registered", Default)
	}
	if _, ok := Get("does-not-exist"); ok {
		t.Error("unexpected encoder")
	}
	if Register("never", "definitely-not-a-real-binary-xyz", EncodeMagick) {
		t.Error("encoder with a missing command must be skipped")
	}
	found := false
	for _, n := range Names() {
		if n == Default {
			found = true
		}
	}
	if !found {
		t.Errorf("Names() = %v, missing %s", Names(), Default)
	}
}
