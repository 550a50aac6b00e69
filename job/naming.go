package job

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"jpg2png/models"
)

var ErrOutputCollision = errors.New("output path collision")

// OutputPath maps input to <outDir>/<relative dir>/<stem>.<format>, where the
// relative dir is input's directory relative to inputRoot. An empty outDir
// writes next to the input.
func OutputPath(input, inputRoot, outDir, format string) string {
	if outDir == "" {
		outDir = inputRoot
	}
	rel, err := filepath.Rel(inputRoot, input)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		rel = filepath.Base(input)
	}
	stem := strings.TrimSuffix(rel, filepath.Ext(rel))
	return filepath.Join(outDir, stem+"."+strings.TrimPrefix(format, "."))
}

// BuildSpecs turns discovered inputs into job specs sharing opts. Two inputs
// that would write the same output, or an output that would overwrite its
// own input, are rejected before anything runs.
func BuildSpecs(inputs []string, inputRoot, outDir string, opts models.ConversionOptions) ([]models.JobSpec, error) {
	outRoot := outDir
	if outRoot == "" {
		outRoot = inputRoot
	}
	specs := make([]models.JobSpec, 0, len(inputs))
	seen := make(map[string]string, len(inputs))
	for _, in := range inputs {
		out := OutputPath(in, inputRoot, outDir, opts.Format)
		key := strings.ToLower(filepath.Clean(out))
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: %s and %s both map to %s", ErrOutputCollision, prev, in, out)
		}
		if filepath.Clean(in) == filepath.Clean(out) {
			return nil, fmt.Errorf("%w: %s would overwrite itself", ErrOutputCollision, in)
		}
		seen[key] = in
		specs = append(specs, models.JobSpec{
			InputPath:  in,
			OutputPath: out,
			PublishKey: PublishKey(out, outRoot),
			Options:    opts,
		})
	}
	return specs, nil
}

// PublishKey returns out relative to outRoot with forward slashes, so two
// outputs that differ only by directory keep distinct remote names.
func PublishKey(out, outRoot string) string {
	rel, err := filepath.Rel(outRoot, out)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		rel = filepath.Base(out)
	}
	return filepath.ToSlash(rel)
}
