// Package environment discovers version pins that apply to the working directory.
package environment

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/goccy/go-yaml"

	"github.com/Helcaraxan/wasmenv/internal/config"
	"github.com/Helcaraxan/wasmenv/internal/errs"
	"github.com/Helcaraxan/wasmenv/internal/release"
)

// PinFileName is looked up in the working directory and each of its parents. In configuration directories the file
// is not hidden.
const PinFileName = "." + config.DriverName + ".yaml"

type pinSpec struct {
	Version string `yaml:"version"`
}

// Pin is a version constraint read from a pin file.
type Pin struct {
	Constraint *semver.Constraints
	Raw        string
	Path       string
}

// FindPin returns the pin closest to startDir, walking up to the filesystem root and then trying the given
// configuration directories in order. It returns nil when there is no pin at all.
func FindPin(startDir string, configDirs ...string) (*Pin, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	var candidatePaths []string
	for {
		candidatePaths = append(candidatePaths, filepath.Join(dir, PinFileName))
		if dir == filepath.Dir(dir) {
			break
		}
		dir = filepath.Dir(dir)
	}
	for _, p := range configDirs {
		if p != "" {
			candidatePaths = append(candidatePaths, filepath.Join(p, strings.TrimPrefix(PinFileName, ".")))
		}
	}

	for _, p := range candidatePaths {
		raw, err := os.ReadFile(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		} else if err != nil {
			return nil, fmt.Errorf("%w: unable to read pin file %q: %w", errs.ErrFilesystem, p, err)
		}
		return parsePin(p, raw)
	}
	return nil, nil
}

func parsePin(path string, content []byte) (*Pin, error) {
	var spec pinSpec
	dec := yaml.NewDecoder(bytes.NewReader(content), yaml.Strict())
	if err := dec.Decode(&spec); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: invalid pin file %q: %w", errs.ErrPrecondition, path, err)
	}
	if strings.TrimSpace(spec.Version) == "" {
		return nil, fmt.Errorf("%w: pin file %q does not specify a version", errs.ErrPrecondition, path)
	}

	c, err := release.ParseConstraint(spec.Version)
	if err != nil {
		return nil, fmt.Errorf("pin file %q: %w", path, err)
	}
	return &Pin{Constraint: c, Raw: strings.TrimSpace(spec.Version), Path: path}, nil
}
