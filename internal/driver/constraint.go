package driver

import (
	"io"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/Helcaraxan/wasmenv/internal/config"
	"github.com/Helcaraxan/wasmenv/internal/environment"
	"github.com/Helcaraxan/wasmenv/internal/release"
)

type constraintOrigin string

const (
	originArgument    constraintOrigin = "argument"
	originStdin       constraintOrigin = "stdin"
	originEnvironment constraintOrigin = "environment"
	originPinFile     constraintOrigin = "pin-file"
	originNone        constraintOrigin = "none"
)

// constraintSources are consulted in order: an explicit argument, piped stdin, the WASMER_VERSION variable and finally
// the nearest pin file.
type constraintSources struct {
	arg        string
	stdin      io.Reader
	env        string
	workDir    string
	configDirs []string
}

func (c *CommonOpts) constraintSources(args []string, readStdin bool) constraintSources {
	s := constraintSources{
		env:        c.getenv(config.EnvDefaultVersion),
		configDirs: []string{config.UserDir(), config.SystemDir()},
	}
	if len(args) > 0 {
		s.arg = args[0]
	}
	if readStdin && c.Stdin != nil && !term.IsTerminal(int(c.Stdin.Fd())) {
		s.stdin = c.Stdin
	}
	if wd, err := os.Getwd(); err == nil {
		s.workDir = wd
	}
	return s
}

func resolveConstraint(log *zap.Logger, s constraintSources) (*semver.Constraints, constraintOrigin, error) {
	if raw := strings.TrimSpace(s.arg); raw != "" {
		c, err := release.ParseConstraint(raw)
		return c, originArgument, err
	}

	if s.stdin != nil {
		raw, err := io.ReadAll(s.stdin)
		if err != nil {
			log.Debug("Unable to read a version from stdin.", zap.Error(err))
		} else if v := strings.TrimSpace(string(raw)); v != "" {
			c, err := release.ParseConstraint(v)
			return c, originStdin, err
		}
	}

	if raw := strings.TrimSpace(s.env); raw != "" {
		c, err := release.ParseConstraint(raw)
		return c, originEnvironment, err
	}

	if s.workDir != "" {
		pin, err := environment.FindPin(s.workDir, s.configDirs...)
		if err != nil {
			return nil, originPinFile, err
		}
		if pin != nil {
			log.Debug("Using pinned version.", zap.String("pin-file", pin.Path), zap.String("constraint", pin.Raw))
			return pin.Constraint, originPinFile, nil
		}
	}
	return nil, originNone, nil
}
