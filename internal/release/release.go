// Package release models the published versions of the managed binary and selects the one to install.
package release

import (
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/Helcaraxan/wasmenv/internal/errs"
)

type Release struct {
	Tag         string
	Prerelease  bool
	PublishedAt time.Time
	Assets      []Asset
}

type Asset struct {
	Name        string
	DownloadURL string
}

func (r Release) String() string {
	return r.Tag
}

// Version parses the release tag, ignoring a leading 'v'.
func (r Release) Version() (*semver.Version, error) {
	return ParseTag(r.Tag)
}

// Asset returns the asset with the given name, which is expected to be the one for the current platform.
func (r Release) Asset(name string) (Asset, bool) {
	for _, a := range r.Assets {
		if a.Name == name {
			return a, true
		}
	}
	return Asset{}, false
}

// CacheFilename is the collision-free name under which the given asset of this release is cached.
func (r Release) CacheFilename(assetName string) (string, error) {
	v, err := r.Version()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", v, assetName), nil
}

const publishedTimeLayout = "January 2 2006 03:04:05 PM"

func (r Release) PublishedTime() string {
	if r.PublishedAt.IsZero() {
		return "-"
	}
	return r.PublishedAt.Format(publishedTimeLayout)
}

func ParseTag(tag string) (*semver.Version, error) {
	v, err := semver.StrictNewVersion(strings.TrimPrefix(strings.TrimSpace(tag), "v"))
	if err != nil {
		return nil, fmt.Errorf("%w: tag %q: %w", errs.ErrMalformedVersion, tag, err)
	}
	return v, nil
}

func ParseConstraint(raw string) (*semver.Constraints, error) {
	c, err := semver.NewConstraint(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: constraint %q: %w", errs.ErrMalformedVersion, raw, err)
	}
	return c, nil
}
