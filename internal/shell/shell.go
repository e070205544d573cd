// Package shell generates the snippets that hook wasmenv into interactive shells.
package shell

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Helcaraxan/wasmenv/internal/config"
	"github.com/Helcaraxan/wasmenv/internal/errs"
)

const (
	posixConfigFile = config.DriverName + ".sh"
	fishConfigFile  = config.DriverName + ".fish"
)

var ErrUnknownShell = errors.New("shell not recognized")

type flavour struct {
	rcFile string
	init   func(configDir string) string
}

var flavours = map[string]flavour{
	"bash": {rcFile: "~/.bashrc", init: posixInit},
	"zsh":  {rcFile: "~/.zshrc", init: posixInit},
	"fish": {rcFile: "~/.config/fish/config.fish", init: fishInit},
}

// Supported lists the recognised shell names.
func Supported() []string {
	names := make([]string, 0, len(flavours))
	for n := range flavours {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Script returns the initialisation code for the given shell. The name may be a path such as the content of $SHELL.
func Script(name string, configDir string) (string, error) {
	shellName := filepath.Base(strings.TrimSpace(name))
	f, ok := flavours[shellName]
	if !ok {
		return "", fmt.Errorf("%w: `%s`, try one of `%s`", ErrUnknownShell, name, strings.Join(Supported(), "`, `"))
	}
	return fmt.Sprintf("# %s config for %s\n# copy this to %s\n%s", shellName, config.DriverName, f.rcFile, f.init(configDir)), nil
}

func posixInit(configDir string) string {
	return fmt.Sprintf(
		"export %[1]s=%[2]q\n[ -s \"$%[1]s/%[3]s\" ] && source \"$%[1]s/%[3]s\"\n",
		config.EnvShellInitialised,
		configDir,
		posixConfigFile,
	)
}

func fishInit(configDir string) string {
	return fmt.Sprintf(
		"set -gx %[1]s %[2]q\ntest -s \"$%[1]s/%[3]s\"; and source \"$%[1]s/%[3]s\"\n",
		config.EnvShellInitialised,
		configDir,
		fishConfigFile,
	)
}

// WriteConfigFiles creates the files sourced by the initialisation code. They expose the active installation through
// WASMER_DIR and PATH. Existing files are left untouched so that user modifications survive.
func WriteConfigFiles(configDir string, currentDir string) ([]string, error) {
	files := map[string]string{
		posixConfigFile: fmt.Sprintf(
			"# %[1]s config\nexport %[2]s=%[3]q\nexport PATH=\"$%[2]s/bin:$PATH\"\n",
			config.BinaryName,
			config.EnvActiveRoot,
			currentDir,
		),
		fishConfigFile: fmt.Sprintf(
			"# %[1]s config for fish\nset -gx %[2]s %[3]q\nset -gx PATH $%[2]s/bin $PATH\n",
			config.BinaryName,
			config.EnvActiveRoot,
			currentDir,
		),
	}

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: unable to create %q: %w", errs.ErrFilesystem, configDir, err)
	}

	var written []string
	for _, name := range []string{posixConfigFile, fishConfigFile} {
		p := filepath.Join(configDir, name)
		fd, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		} else if err != nil {
			return written, fmt.Errorf("%w: unable to create %q: %w", errs.ErrFilesystem, p, err)
		}
		_, err = fd.WriteString(files[name])
		if closeErr := fd.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return written, fmt.Errorf("%w: unable to write %q: %w", errs.ErrFilesystem, p, err)
		}
		written = append(written, p)
	}
	return written, nil
}
