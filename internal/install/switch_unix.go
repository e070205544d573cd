//go:build !windows

package install

import "github.com/google/renameio/v2"

// replaceSymlink points link at target. The new link is created under a temporary name and renamed over the old one
// so that link always resolves to either the old or the new target.
func replaceSymlink(target string, link string) error {
	return renameio.Symlink(target, link)
}
