// Package install resolves, installs and activates versions of the managed binary. Switching versions never leaves
// the active installation missing: the previous one is backed up first and restored when anything goes wrong.
package install

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/Helcaraxan/wasmenv/internal/archive"
	"github.com/Helcaraxan/wasmenv/internal/errs"
	"github.com/Helcaraxan/wasmenv/internal/flock"
	"github.com/Helcaraxan/wasmenv/internal/logger"
	"github.com/Helcaraxan/wasmenv/internal/probe"
	"github.com/Helcaraxan/wasmenv/internal/progress"
	"github.com/Helcaraxan/wasmenv/internal/release"
)

type Catalog interface {
	FetchReleases(ctx context.Context) ([]release.Release, error)
}

type ArtifactCache interface {
	EnsureCached(ctx context.Context, rel release.Release, assetName string) (string, error)
	Open(path string) (io.ReadCloser, error)
}

type Outcome uint8

const (
	Installed Outcome = iota
	AlreadyCurrent
	AlreadyInstalled
	Reverted
)

func (o Outcome) String() string {
	switch o {
	case Installed:
		return "installed"
	case AlreadyCurrent:
		return "already-current"
	case AlreadyInstalled:
		return "already-installed"
	case Reverted:
		return "reverted"
	default:
		return "unknown"
	}
}

// Result describes what Install did. Root is the directory that should be exported as WASMER_DIR.
type Result struct {
	Release    release.Release
	Version    *semver.Version
	Outcome    Outcome
	Root       string
	VersionDir string
	Binary     string
	// Cause is the failure that triggered a rollback when Outcome is Reverted.
	Cause error
}

type Installer struct {
	log     *zap.Logger
	layout  Layout
	catalog Catalog
	cache   ArtifactCache
	probe   probe.Probe
	asset   string
	spinner progress.Indicator
}

type Option func(*Installer)

func WithSpinner(spinner progress.Indicator) Option {
	return func(i *Installer) { i.spinner = spinner }
}

// New returns an installer for the given layout. assetName is the release asset matching the current platform.
func New(
	logBuilder *logger.Builder,
	layout Layout,
	catalog Catalog,
	cache ArtifactCache,
	prober probe.Probe,
	assetName string,
	opts ...Option,
) *Installer {
	i := &Installer{
		log:     logBuilder.Domain(logger.InstallDomain).With(zap.String("root", layout.Root)),
		layout:  layout,
		catalog: catalog,
		cache:   cache,
		probe:   prober,
		asset:   assetName,
		spinner: progress.Nop{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Installer) Layout() Layout {
	return i.layout
}

// Resolve fetches the catalog and selects the release matching the constraint. A nil constraint selects the latest
// release.
func (i *Installer) Resolve(
	ctx context.Context,
	constraint *semver.Constraints,
	allowPrerelease bool,
) (*release.Release, *semver.Version, error) {
	all, err := i.catalog.FetchReleases(ctx)
	if err != nil {
		return nil, nil, err
	}

	candidates := release.Selectable(all)
	if skipped := len(all) - len(candidates); skipped > 0 {
		i.log.Debug("Ignoring releases without a semantic version tag.", zap.Int("count", skipped))
	}
	selectable := candidates
	if !allowPrerelease {
		candidates = release.Stable(candidates)
	}

	rel := release.Resolve(constraint, candidates)
	if rel == nil {
		hint := ""
		if !allowPrerelease && release.Resolve(constraint, selectable) != nil {
			hint = " (only prereleases match, use --prerelease to include them)"
		}
		i.log.Debug("No matching release.", zap.String("constraint", constraintString(constraint)))
		return nil, nil, fmt.Errorf("%w: release not found for %q%s", errs.ErrNotFound, constraintString(constraint), hint)
	}

	v, err := rel.Version()
	if err != nil {
		return nil, nil, err
	}
	return rel, v, nil
}

// Install makes the release matching the constraint the active one. When the switch fails after the previous
// installation was backed up, the backup is restored and the result has Outcome Reverted with a nil error.
func (i *Installer) Install(ctx context.Context, constraint *semver.Constraints, allowPrerelease bool) (*Result, error) {
	rel, v, err := i.Resolve(ctx, constraint, allowPrerelease)
	if err != nil {
		return nil, err
	}
	log := i.log.With(zap.Stringer("version", v))

	res := &Result{
		Release:    *rel,
		Version:    v,
		Root:       i.layout.Current(),
		VersionDir: i.layout.VersionDir(v),
		Binary:     i.layout.CurrentBinary(),
	}

	if active := i.probe.CurrentVersion(ctx); active != nil && active.Equal(v) {
		log.Debug("Requested version is already the active one.")
		res.Outcome = AlreadyCurrent
		return res, nil
	}

	linked, err := i.layout.CurrentVersion()
	if err != nil {
		log.Debug("The current installation is not valid.", zap.Error(err))
	} else if linked != nil && linked.Equal(v) {
		log.Debug("Requested version is already installed as the current one.")
		res.Outcome = AlreadyInstalled
		return res, nil
	}

	if err = os.MkdirAll(i.layout.Root, 0o755); err != nil {
		log.Error("Unable to create installation root.", zap.Error(err))
		return nil, fmt.Errorf("%w: unable to create %q: %w", errs.ErrFilesystem, i.layout.Root, err)
	}
	lock, err := flock.Acquire(ctx, i.log, i.layout.LockFile())
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release() }()

	if err = i.backup(log, linked != nil); err != nil {
		return nil, err
	}

	if err = i.activate(ctx, log, *rel, v); err != nil {
		return i.rollback(log, res, err)
	}

	if err = os.RemoveAll(i.layout.Backup()); err != nil {
		log.Warn("Unable to remove the backup of the previous installation.", zap.Error(err))
	}
	res.Outcome = Installed
	return res, nil
}

// Provision makes sure the slot of the given release is populated without changing the active version, and returns
// the path of its binary.
func (i *Installer) Provision(ctx context.Context, rel release.Release) (string, error) {
	v, err := rel.Version()
	if err != nil {
		return "", err
	}
	log := i.log.With(zap.Stringer("version", v))

	if err = os.MkdirAll(i.layout.Root, 0o755); err != nil {
		return "", fmt.Errorf("%w: unable to create %q: %w", errs.ErrFilesystem, i.layout.Root, err)
	}
	lock, err := flock.Acquire(ctx, i.log, i.layout.LockFile())
	if err != nil {
		return "", err
	}
	defer func() { _ = lock.Release() }()

	if err = i.populate(ctx, log, rel, v); err != nil {
		return "", err
	}
	return i.layout.VersionBinary(v), nil
}

func (i *Installer) activate(ctx context.Context, log *zap.Logger, rel release.Release, v *semver.Version) error {
	if err := i.populate(ctx, log, rel, v); err != nil {
		return err
	}

	i.spinner.Start(fmt.Sprintf("Switching to %s...", v))
	defer i.spinner.Stop()

	bin := filepath.Dir(i.layout.CurrentBinary())
	if err := os.MkdirAll(bin, 0o755); err != nil {
		log.Error("Unable to create the current installation directory.", zap.Error(err))
		return fmt.Errorf("%w: unable to create %q: %w", errs.ErrFilesystem, bin, err)
	}

	target := i.layout.VersionBinary(v)
	for _, link := range []string{i.layout.CurrentBinary(), i.layout.Alias(v)} {
		if err := replaceSymlink(target, link); err != nil {
			log.Error("Unable to switch binary link.", zap.String("link", link), zap.Error(err))
			return fmt.Errorf("%w: unable to link %q to %q: %w", errs.ErrFilesystem, link, target, err)
		}
	}
	i.removeDanglingAliases(log)
	return nil
}

// populate extracts the release into its version slot unless the slot already holds the binary.
func (i *Installer) populate(ctx context.Context, log *zap.Logger, rel release.Release, v *semver.Version) (err error) {
	slot := i.layout.VersionDir(v)
	if _, err = os.Stat(i.layout.VersionBinary(v)); err == nil {
		log.Debug("Reusing existing version slot.", zap.String("slot", slot))
		return nil
	}

	archivePath, err := i.cache.EnsureCached(ctx, rel, i.asset)
	if err != nil {
		return err
	}
	src, err := i.cache.Open(archivePath)
	if err != nil {
		return err
	}
	defer src.Close()

	i.spinner.Start(fmt.Sprintf("Installing %s...", v))
	defer i.spinner.Stop()

	staging, err := os.MkdirTemp(i.layout.Root, ".staging-")
	if err != nil {
		log.Error("Unable to create staging directory.", zap.Error(err))
		return fmt.Errorf("%w: unable to create staging directory: %w", errs.ErrFilesystem, err)
	}
	defer func() {
		if rmErr := os.RemoveAll(staging); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			log.Warn("Unable to remove staging directory.", zap.String("staging", staging), zap.Error(rmErr))
		}
	}()

	if err = archive.Extract(log, src, i.asset, staging); err != nil {
		return err
	}
	stagedBinary := filepath.Join(staging, binDirName, i.layout.binaryFile())
	if _, err = os.Stat(stagedBinary); err != nil {
		log.Error("Archive does not contain the expected binary.", zap.String("archive", archivePath))
		return fmt.Errorf("%w: archive %q does not contain %s/%s", errs.ErrExtraction, archivePath, binDirName, i.layout.binaryFile())
	}

	// A slot without binary is a leftover from an interrupted run.
	if err = os.RemoveAll(slot); err != nil {
		return fmt.Errorf("%w: unable to clear incomplete slot %q: %w", errs.ErrFilesystem, slot, err)
	}
	if err = os.Rename(staging, slot); err != nil {
		log.Error("Unable to move extracted release into place.", zap.Error(err))
		return fmt.Errorf("%w: unable to move release into %q: %w", errs.ErrFilesystem, slot, err)
	}
	log.Debug("Populated version slot.", zap.String("slot", slot))
	return nil
}

// backup snapshots the current installation into the backup slot. A broken current installation is not backed up so
// that a backup left behind by an interrupted run is preserved.
func (i *Installer) backup(log *zap.Logger, currentValid bool) error {
	if !currentValid {
		if _, err := os.Stat(i.layout.Backup()); err == nil {
			log.Warn("Keeping the backup of a previous installation left by an interrupted run.")
		}
		return nil
	}

	tmp := i.layout.Backup() + ".tmp"
	if err := os.RemoveAll(tmp); err != nil {
		return fmt.Errorf("%w: unable to clear %q: %w", errs.ErrFilesystem, tmp, err)
	}
	if err := copyTree(i.layout.Current(), tmp); err != nil {
		_ = os.RemoveAll(tmp)
		log.Error("Unable to back up the current installation.", zap.Error(err))
		return fmt.Errorf("%w: unable to back up the current installation: %w", errs.ErrFilesystem, err)
	}
	if err := os.RemoveAll(i.layout.Backup()); err != nil {
		return fmt.Errorf("%w: unable to replace previous backup: %w", errs.ErrFilesystem, err)
	}
	if err := os.Rename(tmp, i.layout.Backup()); err != nil {
		return fmt.Errorf("%w: unable to move backup into place: %w", errs.ErrFilesystem, err)
	}
	log.Debug("Backed up the current installation.")
	return nil
}

func (i *Installer) rollback(log *zap.Logger, res *Result, cause error) (*Result, error) {
	backup := i.layout.Backup()
	if _, err := os.Stat(backup); err != nil {
		log.Error("Installation failed and no previous installation is available to restore.", zap.Error(cause))
		return nil, cause
	}

	log.Warn("Installation failed, restoring the previous installation.", zap.Error(cause))
	trash := filepath.Join(i.layout.Root, ".trash")
	if err := os.RemoveAll(trash); err != nil {
		return nil, errors.Join(cause, fmt.Errorf("%w: rollback failed: %w", errs.ErrFilesystem, err))
	}
	if err := os.Rename(i.layout.Current(), trash); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Join(cause, fmt.Errorf("%w: rollback failed: %w", errs.ErrFilesystem, err))
	}
	if err := os.Rename(backup, i.layout.Current()); err != nil {
		return nil, errors.Join(cause, fmt.Errorf("%w: rollback failed, %q is unusable: %w", errs.ErrFilesystem, i.layout.Current(), err))
	}
	if err := os.RemoveAll(trash); err != nil {
		log.Warn("Unable to remove the failed installation.", zap.String("path", trash), zap.Error(err))
	}

	res.Outcome = Reverted
	res.Cause = cause
	return res, nil
}

// removeDanglingAliases drops the versioned aliases whose version slot no longer holds a binary. Aliases of other
// installed versions are kept so they remain invocable without going through 'current'.
func (i *Installer) removeDanglingAliases(log *zap.Logger) {
	bin := filepath.Dir(i.layout.CurrentBinary())
	entries, err := os.ReadDir(bin)
	if err != nil {
		return
	}
	ext := filepath.Ext(i.layout.binaryFile())
	prefix := strings.TrimSuffix(i.layout.binaryFile(), ext)
	for _, e := range entries {
		name := e.Name()
		if e.Type()&fs.ModeSymlink == 0 || !strings.HasPrefix(name, prefix) {
			continue
		}
		if _, err = semver.StrictNewVersion(strings.TrimSuffix(strings.TrimPrefix(name, prefix), ext)); err != nil {
			continue
		}
		alias := filepath.Join(bin, name)
		if _, err = os.Stat(alias); !errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err = os.Remove(alias); err != nil {
			log.Debug("Unable to remove dangling alias.", zap.String("alias", name), zap.Error(err))
		}
	}
}

func constraintString(c *semver.Constraints) string {
	if c == nil {
		return "latest"
	}
	return c.String()
}
