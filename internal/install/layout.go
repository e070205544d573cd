package install

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/Helcaraxan/wasmenv/internal/config"
	"github.com/Helcaraxan/wasmenv/internal/errs"
	"github.com/Helcaraxan/wasmenv/internal/release"
)

const (
	currentDirName = "current"
	backupDirName  = ".old"
	lockFileName   = ".lock.pid"
	binDirName     = "bin"
)

// Layout describes the installation directory:
//
//	<root>/<version>/bin/wasmer
//	<root>/current/bin/wasmer           -> <root>/<version>/bin/wasmer
//	<root>/current/bin/wasmer<version>  -> <root>/<version>/bin/wasmer
//	<root>/.old/                          backup of 'current' while switching
type Layout struct {
	Root     string
	Platform config.Platform
}

func (l Layout) binaryFile() string {
	return config.BinaryFileName(l.Platform)
}

func (l Layout) VersionDir(v *semver.Version) string {
	return filepath.Join(l.Root, v.String())
}

func (l Layout) VersionBinary(v *semver.Version) string {
	return filepath.Join(l.VersionDir(v), binDirName, l.binaryFile())
}

func (l Layout) Current() string {
	return filepath.Join(l.Root, currentDirName)
}

func (l Layout) CurrentBinary() string {
	return filepath.Join(l.Current(), binDirName, l.binaryFile())
}

// Alias is the versioned name under which the active binary is also reachable, e.g. 'wasmer4.2.0'.
func (l Layout) Alias(v *semver.Version) string {
	name := l.binaryFile()
	ext := filepath.Ext(name)
	return filepath.Join(l.Current(), binDirName, strings.TrimSuffix(name, ext)+v.String()+ext)
}

func (l Layout) Backup() string {
	return filepath.Join(l.Root, backupDirName)
}

func (l Layout) LockFile() string {
	return filepath.Join(l.Root, lockFileName)
}

// CurrentVersion reads back which version the 'current' binary points to. It returns nil without error when there is
// no active version and an error when the pointer exists but is not a valid installation.
func (l Layout) CurrentVersion() (*semver.Version, error) {
	return l.linkedVersion(l.CurrentBinary())
}

func (l Layout) linkedVersion(link string) (*semver.Version, error) {
	target, err := os.Readlink(link)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("%w: unable to read %q: %w", errs.ErrFilesystem, link, err)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(link), target)
	}

	v, err := release.ParseTag(filepath.Base(filepath.Dir(filepath.Dir(target))))
	if err != nil {
		return nil, err
	}
	if _, err = os.Stat(target); err != nil {
		return nil, fmt.Errorf("%w: %q points to missing binary %q: %w", errs.ErrFilesystem, link, target, err)
	}
	return v, nil
}

// Installed lists the versions that have a populated slot, in ascending order.
func (l Layout) Installed() ([]*semver.Version, error) {
	entries, err := os.ReadDir(l.Root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("%w: unable to list %q: %w", errs.ErrFilesystem, l.Root, err)
	}

	var versions []*semver.Version
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		v, err := semver.StrictNewVersion(e.Name())
		if err != nil {
			continue
		}
		if _, err = os.Stat(l.VersionBinary(v)); err == nil {
			versions = append(versions, v)
		}
	}
	sort.Sort(semver.Collection(versions))
	return versions, nil
}
