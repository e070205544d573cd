// Package probe discovers which version of the managed binary is active by asking the binary itself.
package probe

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/Helcaraxan/wasmenv/internal/config"
	"github.com/Helcaraxan/wasmenv/internal/errs"
)

// Probe reports the version of the active binary, or nil when none can be determined. Not having an active version is
// a normal state, e.g. on first use, and is hence not an error.
type Probe interface {
	CurrentVersion(ctx context.Context) *semver.Version
}

var (
	_ Probe = &Exec{}
	_ Probe = &Fake{}
)

const outputPrefix = config.BinaryName + " "

// Exec runs '<Binary> --version'. An empty Binary means the managed binary as found on the PATH.
type Exec struct {
	Log    *zap.Logger
	Binary string
}

func (p *Exec) CurrentVersion(ctx context.Context) *semver.Version {
	bin := p.Binary
	if bin == "" {
		bin = config.BinaryName
	}
	log := p.Log.With(zap.String("binary", bin))

	path, err := exec.LookPath(bin)
	if err != nil {
		log.Debug("No binary available to probe.", zap.Error(err))
		return nil
	}

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "--version")
	cmd.Stdout = &stdout
	if err = cmd.Run(); err != nil {
		log.Debug("Version probe failed.", zap.Error(err))
		return nil
	}

	v, err := ParseOutput(stdout.String())
	if err != nil {
		log.Debug("Unable to parse version probe output.", zap.Error(err))
		return nil
	}
	return v
}

// ParseOutput extracts the version from the output of '<binary> --version', e.g. "wasmer 4.2.0".
func ParseOutput(out string) (*semver.Version, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(out), outputPrefix)
	// Some builds append the commit and date, e.g. "wasmer 4.2.0 (abc1234 2023-09-12)".
	if i := strings.IndexByte(raw, ' '); i > 0 {
		raw = raw[:i]
	}
	v, err := semver.StrictNewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: probe output %q", errs.ErrMalformedVersion, strings.TrimSpace(out))
	}
	return v, nil
}

// Fake returns canned version output without running anything.
type Fake struct {
	Output string
	Calls  int
}

func (p *Fake) CurrentVersion(context.Context) *semver.Version {
	p.Calls++
	v, err := ParseOutput(p.Output)
	if err != nil {
		return nil
	}
	return v
}
