package driver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Helcaraxan/wasmenv/internal/backend"
	"github.com/Helcaraxan/wasmenv/internal/cache"
	"github.com/Helcaraxan/wasmenv/internal/catalog"
	"github.com/Helcaraxan/wasmenv/internal/config"
	"github.com/Helcaraxan/wasmenv/internal/errs"
	"github.com/Helcaraxan/wasmenv/internal/install"
	"github.com/Helcaraxan/wasmenv/internal/logger"
	"github.com/Helcaraxan/wasmenv/internal/probe"
	"github.com/Helcaraxan/wasmenv/internal/progress"
)

var ErrShellNotInitialised = fmt.Errorf(
	"%w: Looks like you haven't initialized %s. run `%s shell | source` to initialize it",
	errs.ErrPrecondition,
	config.DriverName,
	config.DriverName,
)

// ExitCodeError carries the exit status of an executed binary up to main.
type ExitCodeError struct {
	Code int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("exited with status %d", e.Code)
}

type CommonOpts struct {
	LogBuilder *logger.Builder
	Log        *zap.Logger
	Config     *config.Global
	Dirs       config.Dirs
	Verbose    []string

	Platform config.Platform
	Arch     config.Arch

	// Probe reports the active version. Nil means probing the binary found on the PATH.
	Probe probe.Probe
	// SystemProbe reports the version of a binary installed without wasmenv. Nil means probing ~/.wasmer/bin/wasmer.
	SystemProbe probe.Probe
	HTTPClient  *http.Client
	Spinner     progress.Indicator
	Stdin       *os.File
	Getenv      func(string) string
}

func NewCommonOpts() *CommonOpts {
	return &CommonOpts{
		LogBuilder: logger.NewBuilder(os.Stderr),
		Config:     config.Defaults(),
		Platform:   config.CurrentPlatform(),
		Arch:       config.CurrentArch(),
		Spinner:    progress.NewSpinner(os.Stderr),
		Stdin:      os.Stdin,
		Getenv:     os.Getenv,
	}
}

func (c *CommonOpts) Parse() error {
	for _, domain := range c.Verbose {
		c.LogBuilder.SetDomainLevel(domain, zapcore.DebugLevel)
	}
	c.Log = c.LogBuilder.Domain(logger.CLIDomain)

	if err := config.Parse(c.LogBuilder.Domain(logger.InitDomain), c.Config); err != nil {
		return err
	}
	c.Dirs = config.ResolveDirs(c.Config)

	if _, err := config.AssetName(c.Platform, c.Arch); err != nil {
		c.Log.Fatal(
			"Unsupported platform.",
			zap.String("platform", string(c.Platform)),
			zap.String("arch", string(c.Arch)),
			zap.Error(err),
		)
	}
	return nil
}

func (c *CommonOpts) logger() *zap.Logger {
	if c.Log == nil {
		c.Log = c.LogBuilder.Domain(logger.CLIDomain)
	}
	return c.Log
}

func (c *CommonOpts) getenv(key string) string {
	if c.Getenv == nil {
		return os.Getenv(key)
	}
	return c.Getenv(key)
}

func (c *CommonOpts) spinner() progress.Indicator {
	if c.Spinner == nil {
		return progress.Nop{}
	}
	return c.Spinner
}

// requireShell fails unless the shell integration has been sourced.
func (c *CommonOpts) requireShell() error {
	if c.getenv(config.EnvShellInitialised) == "" {
		c.logger().Debug("Shell integration not detected.", zap.String("variable", config.EnvShellInitialised))
		return ErrShellNotInitialised
	}
	return nil
}

func (c *CommonOpts) layout() install.Layout {
	return install.Layout{Root: c.Dirs.Data, Platform: c.Platform}
}

func (c *CommonOpts) activeProbe() probe.Probe {
	if c.Probe != nil {
		return c.Probe
	}
	return &probe.Exec{Log: c.LogBuilder.Domain(logger.InstallDomain)}
}

func (c *CommonOpts) systemProbe() probe.Probe {
	if c.SystemProbe != nil {
		return c.SystemProbe
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return &probe.Fake{}
	}
	return &probe.Exec{
		Log:    c.LogBuilder.Domain(logger.InstallDomain),
		Binary: filepath.Join(home, "."+config.BinaryName, "bin", config.BinaryFileName(c.Platform)),
	}
}

func (c *CommonOpts) catalog() (*catalog.Client, error) {
	return catalog.New(c.LogBuilder, c.Config.Catalog, c.HTTPClient, c.spinner())
}

func (c *CommonOpts) cache(ctx context.Context) (*cache.Cache, error) {
	opts := []cache.Option{cache.WithSpinner(c.spinner())}
	if c.HTTPClient != nil {
		opts = append(opts, cache.WithHTTPClient(c.HTTPClient))
	}
	if rc := c.Config.RemoteCache; rc != nil {
		mirror, err := backend.New(ctx, c.LogBuilder, rc)
		if err != nil {
			return nil, err
		}
		opts = append(opts, cache.WithMirror(mirror, rc.ReadOnly))
	}
	if err := os.MkdirAll(c.Dirs.Cache, 0o755); err != nil {
		return nil, fmt.Errorf("%w: unable to create cache directory %q: %w", errs.ErrFilesystem, c.Dirs.Cache, err)
	}
	return cache.New(c.LogBuilder, c.Dirs.Cache, opts...), nil
}

func (c *CommonOpts) installer(ctx context.Context) (*install.Installer, error) {
	assetName, err := config.AssetName(c.Platform, c.Arch)
	if err != nil {
		return nil, err
	}
	cat, err := c.catalog()
	if err != nil {
		return nil, err
	}
	artifacts, err := c.cache(ctx)
	if err != nil {
		return nil, err
	}
	return install.New(
		c.LogBuilder,
		c.layout(),
		cat,
		artifacts,
		c.activeProbe(),
		assetName,
		install.WithSpinner(c.spinner()),
	), nil
}

// IsExitCode reports whether err only carries the exit status of an executed binary.
func IsExitCode(err error) (int, bool) {
	var exitErr *ExitCodeError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}
