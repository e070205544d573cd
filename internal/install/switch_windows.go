//go:build windows

package install

import (
	"errors"
	"os"
)

// Windows can not rename a symlink over an existing one so the swap is not atomic.
func replaceSymlink(target string, link string) error {
	if err := os.Remove(link); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.Symlink(target, link)
}
