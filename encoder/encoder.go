package encoder

import (
	"context"
	"os/exec"
	"sort"
	"sync"

	"jpg2png/logger"
)

// EncodeFunc is the function signature for any encoder.
// It reads input, applies the requested transforms and writes output.
// Returned errors are tagged with a Class.
type EncodeFunc func(ctx context.Context, input, output string, opts EncodeOptions) error

type EncodeOptions struct {
	Improve          bool
	UpscaleFactor    int
	CompressionLevel int    // 0..9
	Format           string // empty means derive from the output extension
}

// Default is the backend used when none is configured.
const Default = "imaging"

var (
	registry   = map[string]EncodeFunc{}
	registryMu sync.RWMutex
)

// Register adds an encoder. When cmdName is set the encoder is skipped
// unless the command exists on PATH.
func Register(name string, cmdName string, fn EncodeFunc) bool {
	if cmdName != "" {
		if _, err := exec.LookPath(cmdName); err != nil {
			logger.Warnf("encoder [%s] skipped: command '%s' not found in PATH", name, cmdName)
			return false
		}
	}
	registryMu.Lock()
	registry[name] = fn
	registryMu.Unlock()

	if cmdName == "" {
		logger.Debugf("encoder [%s] registered (in-process)", name)
	} else {
		logger.Debugf("encoder [%s] registered (command: %s)", name, cmdName)
	}
	return true
}

// Get looks up an encoder by name
func Get(name string) (EncodeFunc, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}

// Names lists registered encoders, sorted
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var defaultsOnce sync.Once

// RegisterDefaults registers the in-process imaging encoder and, when
// ImageMagick is installed, the magick encoder.
func RegisterDefaults() {
	defaultsOnce.Do(func() {
		Register(Default, "", NewPipeline(nil).Encode)
		Register("magick", "magick", EncodeMagick)
	})
}
