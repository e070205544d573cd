// Package cache keeps downloaded release archives on local disk so that a version is only ever downloaded once.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"go.uber.org/zap"

	"github.com/Helcaraxan/wasmenv/internal/backend"
	"github.com/Helcaraxan/wasmenv/internal/config"
	"github.com/Helcaraxan/wasmenv/internal/errs"
	"github.com/Helcaraxan/wasmenv/internal/logger"
	"github.com/Helcaraxan/wasmenv/internal/progress"
	"github.com/Helcaraxan/wasmenv/internal/release"
)

type Cache struct {
	log     *zap.Logger
	root    string
	storage billy.Filesystem
	client  *http.Client
	spinner progress.Indicator

	mirror         backend.Storage
	mirrorReadOnly bool
}

type Option func(*Cache)

// WithMirror makes the cache consult a remote mirror before downloading from the release provider. Unless readOnly is
// set, archives downloaded from the provider are pushed to the mirror afterwards.
func WithMirror(mirror backend.Storage, readOnly bool) Option {
	return func(c *Cache) {
		c.mirror = mirror
		c.mirrorReadOnly = readOnly
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Cache) { c.client = client }
}

func WithSpinner(spinner progress.Indicator) Option {
	return func(c *Cache) { c.spinner = spinner }
}

// WithFileSystem replaces the on-disk storage rooted at the cache directory.
func WithFileSystem(fs billy.Filesystem) Option {
	return func(c *Cache) { c.storage = fs }
}

func New(logBuilder *logger.Builder, root string, opts ...Option) *Cache {
	c := &Cache{
		log:     logBuilder.Domain(logger.CacheDomain).With(zap.String("cache-root", root)),
		root:    root,
		client:  http.DefaultClient,
		spinner: progress.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.storage == nil {
		c.storage = osfs.New(root)
	}
	return c
}

func (c *Cache) Root() string {
	return c.root
}

// EnsureCached returns the path of the given release asset in the cache, retrieving it first if it is not yet present.
// A present file is always a complete one: retrievals are written to a temporary file and only then moved into place.
func (c *Cache) EnsureCached(ctx context.Context, rel release.Release, assetName string) (string, error) {
	name, err := rel.CacheFilename(assetName)
	if err != nil {
		return "", err
	}
	log := c.log.With(zap.Stringer("release", rel), zap.String("archive", name))
	target := filepath.Join(c.root, name)

	if _, err = c.storage.Stat(name); err == nil {
		log.Debug("Archive already cached.")
		return target, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Error("Unable to check the cache for the archive.", zap.Error(err))
		return "", fmt.Errorf("%w: unable to check cache for %q: %w", errs.ErrFilesystem, name, err)
	}

	if c.mirror != nil {
		err = c.fromMirror(ctx, log, name)
		if err == nil {
			return target, nil
		}
		if !errors.Is(err, errs.ErrNotFound) {
			log.Warn("Unable to retrieve archive from the remote cache, falling back to the release provider.", zap.Error(err))
		}
	}

	asset, ok := rel.Asset(assetName)
	if !ok {
		log.Error("Release does not provide an archive for this platform.", zap.String("asset", assetName))
		return "", fmt.Errorf("%w: release %s has no asset %q", errs.ErrNotFound, rel, assetName)
	}
	if err = c.fromProvider(ctx, log, name, asset); err != nil {
		return "", err
	}

	if c.mirror != nil && !c.mirrorReadOnly {
		c.toMirror(ctx, log, name)
	}
	return target, nil
}

// Open returns the content of a file previously returned by EnsureCached.
func (c *Cache) Open(path string) (io.ReadCloser, error) {
	rel, err := filepath.Rel(c.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("%w: %q is not located in the cache", errs.ErrFilesystem, path)
	}
	fd, err := c.storage.Open(rel)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to open cached archive %q: %w", errs.ErrFilesystem, path, err)
	}
	return fd, nil
}

func (c *Cache) fromMirror(ctx context.Context, log *zap.Logger, name string) error {
	src, err := c.mirror.Fetch(ctx, name)
	if err != nil {
		return err
	}
	defer src.Close()

	c.spinner.Start(fmt.Sprintf("Downloading %s from %s...", name, c.mirror))
	defer c.spinner.Stop()

	if err = c.writeAtomically(name, src); err != nil {
		return err
	}
	log.Debug("Retrieved archive from the remote cache.", zap.Stringer("mirror", c.mirror))
	return nil
}

func (c *Cache) fromProvider(ctx context.Context, log *zap.Logger, name string, asset release.Asset) error {
	log = log.With(zap.String("url", asset.DownloadURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.DownloadURL, nil)
	if err != nil {
		log.Error("Invalid download URL.", zap.Error(err))
		return fmt.Errorf("%w: invalid download URL %q: %w", errs.ErrNetwork, asset.DownloadURL, err)
	}
	req.Header.Set("User-Agent", config.ClientIdentifier)

	c.spinner.Start(fmt.Sprintf("Downloading %s...", asset.Name))
	defer c.spinner.Stop()

	resp, err := c.client.Do(req)
	if err != nil {
		log.Error("Failed to download archive.", zap.Error(err))
		return fmt.Errorf("%w: unable to download %q: %w", errs.ErrNetwork, asset.DownloadURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		log.Error("Unexpected response while downloading archive.", zap.Int("status", resp.StatusCode))
		return fmt.Errorf("%w: unable to download %q: %s", errs.ErrNetwork, asset.DownloadURL, resp.Status)
	}

	if err = c.writeAtomically(name, &networkReader{r: resp.Body}); err != nil {
		log.Error("Failed to store archive in the cache.", zap.Error(err))
		return err
	}
	log.Debug("Downloaded archive.")
	return nil
}

func (c *Cache) toMirror(ctx context.Context, log *zap.Logger, name string) {
	fd, err := c.storage.Open(name)
	if err != nil {
		log.Warn("Unable to read back archive for the remote cache.", zap.Error(err))
		return
	}
	defer fd.Close()

	if err = c.mirror.Store(ctx, name, fd); err != nil && !errors.Is(err, backend.ErrExists) {
		log.Warn("Unable to push archive to the remote cache.", zap.Stringer("mirror", c.mirror), zap.Error(err))
	}
}

func (c *Cache) writeAtomically(name string, src io.Reader) (err error) {
	tmp, err := c.storage.TempFile(".", "."+name+".partial-")
	if err != nil {
		return fmt.Errorf("%w: unable to create temporary file in cache: %w", errs.ErrFilesystem, err)
	}
	defer func() {
		if err != nil {
			_ = c.storage.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		var nErr *networkError
		if errors.As(err, &nErr) {
			return fmt.Errorf("%w: transfer of %q interrupted: %w", errs.ErrNetwork, name, nErr.err)
		}
		return fmt.Errorf("%w: unable to write %q: %w", errs.ErrFilesystem, name, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: unable to write %q: %w", errs.ErrFilesystem, name, err)
	}
	if err = c.storage.Rename(tmp.Name(), name); err != nil {
		return fmt.Errorf("%w: unable to move %q into place: %w", errs.ErrFilesystem, name, err)
	}
	return nil
}

// Clear removes every file from the cache and returns how many were removed.
func (c *Cache) Clear() (int, error) {
	entries, err := c.entries()
	if err != nil {
		return 0, err
	}
	var removed int
	for _, e := range entries {
		if err = c.storage.Remove(e.Name()); err != nil {
			c.log.Error("Failed to remove cached file.", zap.String("file", e.Name()), zap.Error(err))
			return removed, fmt.Errorf("%w: unable to remove %q: %w", errs.ErrFilesystem, e.Name(), err)
		}
		removed++
	}
	c.log.Debug("Cleared cache.", zap.Int("removed", removed))
	return removed, nil
}

// Prune removes the archives of all but the keep newest versions present in the cache. Files that do not follow the
// cache naming scheme are left alone.
func (c *Cache) Prune(keep int) ([]string, error) {
	entries, err := c.entries()
	if err != nil {
		return nil, err
	}

	byVersion := map[string][]string{}
	var versions []*semver.Version
	for _, e := range entries {
		v, ok := archiveVersion(e.Name())
		if !ok {
			continue
		}
		if _, seen := byVersion[v.String()]; !seen {
			versions = append(versions, v)
		}
		byVersion[v.String()] = append(byVersion[v.String()], e.Name())
	}
	sort.Sort(sort.Reverse(semver.Collection(versions)))

	var removed []string
	for i, v := range versions {
		if i < keep {
			continue
		}
		for _, name := range byVersion[v.String()] {
			if err = c.storage.Remove(name); err != nil {
				c.log.Error("Failed to remove cached archive.", zap.String("file", name), zap.Error(err))
				return removed, fmt.Errorf("%w: unable to remove %q: %w", errs.ErrFilesystem, name, err)
			}
			removed = append(removed, name)
		}
	}
	c.log.Debug("Pruned cache.", zap.Int("kept", min(keep, len(versions))), zap.Strings("removed", removed))
	return removed, nil
}

func (c *Cache) entries() ([]os.FileInfo, error) {
	entries, err := c.storage.ReadDir(".")
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		c.log.Error("Unable to list cache content.", zap.Error(err))
		return nil, fmt.Errorf("%w: unable to list cache content: %w", errs.ErrFilesystem, err)
	}
	var files []os.FileInfo
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e)
		}
	}
	return files, nil
}

func archiveVersion(name string) (*semver.Version, bool) {
	idx := strings.Index(name, "-"+config.BinaryName+"-")
	if idx <= 0 {
		return nil, false
	}
	v, err := semver.StrictNewVersion(name[:idx])
	if err != nil {
		return nil, false
	}
	return v, true
}

// networkReader marks read errors of a download so that they are not mistaken for local write failures.
type networkReader struct {
	r io.Reader
}

type networkError struct {
	err error
}

func (e *networkError) Error() string { return e.err.Error() }
func (e *networkError) Unwrap() error { return e.err }

func (n *networkReader) Read(p []byte) (int, error) {
	c, err := n.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		err = &networkError{err: err}
	}
	return c, err
}
