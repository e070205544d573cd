package driver

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Helcaraxan/wasmenv/internal/config"
	"github.com/Helcaraxan/wasmenv/internal/errs"
	"github.com/Helcaraxan/wasmenv/internal/release"
	"github.com/Helcaraxan/wasmenv/internal/shell"
)

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	err := cmd.Execute()
	return out.String(), err
}

func TestCurrent(t *testing.T) {
	t.Parallel()

	t.Run("NoActiveVersion", func(t *testing.T) {
		t.Parallel()

		opts, _ := newTestOpts(t, nil, map[string]string{})
		_, err := execute(t, Current(opts))
		assert.ErrorIs(t, err, errs.ErrNotFound)
	})

	t.Run("Active", func(t *testing.T) {
		t.Parallel()

		opts, active := newTestOpts(t, nil, map[string]string{})
		active.Output = "wasmer 4.2.0"
		out, err := execute(t, Current(opts))
		require.NoError(t, err)
		assert.Equal(t, "wasmer 4.2.0\n", out)
	})

	t.Run("VerboseUnmanaged", func(t *testing.T) {
		t.Parallel()

		opts, active := newTestOpts(t, nil, map[string]string{})
		active.Output = "wasmer 4.2.0"
		out, err := execute(t, Current(opts), "--verbose")
		require.NoError(t, err)
		assert.Equal(t, "wasmer 4.2.0\nmanaged installation: none\n", out)
	})

	t.Run("VerboseManaged", func(t *testing.T) {
		t.Parallel()

		srv := newReleaseServer(t, map[string]bool{}, "v2.5.0")
		opts, active := newTestOpts(t, srv, map[string]string{config.EnvShellInitialised: "/config"})
		_, err := execute(t, Use(opts))
		require.NoError(t, err)

		active.Output = "wasmer 2.5.0"
		out, err := execute(t, Current(opts), "--verbose")
		require.NoError(t, err)
		l := opts.layout()
		assert.Contains(t, out, "managed installation: wasmer 2.5.0\n")
		assert.Contains(t, out, config.EnvActiveRoot+": "+l.Current()+"\n")
		assert.NotContains(t, out, "note:")
	})
}

func TestCurrentFlags(t *testing.T) {
	t.Parallel()

	opts, active := newTestOpts(t, nil, map[string]string{})
	active.Output = "wasmer 4.2.0"

	out, err := execute(t, Current(opts), "--verbose", "--log-domains=cli,install")
	require.NoError(t, err)
	assert.Equal(t, "wasmer 4.2.0\nmanaged installation: none\n", out)
	assert.Equal(t, []string{"cli", "install"}, opts.Verbose)

	cmd := Current(opts)
	assert.Equal(t, "bool", cmd.Flags().Lookup("verbose").Value.Type())
	assert.Contains(t, cmd.Long, "--log-domains")
}

func TestExecProvisionsWithoutSwitching(t *testing.T) {
	t.Parallel()

	srv := newReleaseServer(t, map[string]bool{}, "v3.0.0", "v2.5.0")
	opts, active := newTestOpts(t, srv, map[string]string{})
	active.Output = "wasmer 3.0.0"

	c, err := release.ParseConstraint("~2.5")
	require.NoError(t, err)

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	bin, err := (&execOptions{CommonOpts: opts}).binaryFor(cmd, c)
	require.NoError(t, err)

	l := opts.layout()
	assert.Equal(t, l.VersionBinary(semver.MustParse("2.5.0")), bin)
	assert.FileExists(t, bin)
	assert.NoFileExists(t, l.CurrentBinary())
}

func TestExecRun(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("shell scripts can not be executed on Windows")
	}

	script := filepath.Join(t.TempDir(), "wasmer")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit \"$1\"\n"), 0o755))

	opts, _ := newTestOpts(t, nil, map[string]string{})
	o := &execOptions{CommonOpts: opts}

	require.NoError(t, o.run(script, []string{"0"}))

	err := o.run(script, []string{"3"})
	code, ok := IsExitCode(err)
	require.True(t, ok)
	assert.Equal(t, 3, code)

	code, ok = IsExitCode(o.run(filepath.Join(t.TempDir(), "missing"), nil))
	require.True(t, ok)
	assert.Equal(t, execExitCode, code)
}

func TestExecArguments(t *testing.T) {
	t.Parallel()

	opts, _ := newTestOpts(t, nil, map[string]string{})
	_, err := execute(t, Exec(opts), "^2", "^3", "--", "run")
	assert.ErrorContains(t, err, "at most one version constraint")
}

func TestShellCommand(t *testing.T) {
	t.Parallel()

	testcases := map[string]struct {
		args     []string
		env      map[string]string
		header   string
		expected error
	}{
		"FromArgument": {
			args:   []string{"fish"},
			header: "# fish config for wasmenv\n",
		},
		"FromEnvironment": {
			env:    map[string]string{"SHELL": "/usr/bin/zsh"},
			header: "# zsh config for wasmenv\n",
		},
		"Unknown": {
			args:     []string{"tcsh"},
			expected: shell.ErrUnknownShell,
		},
		"Missing": {
			expected: errs.ErrPrecondition,
		},
	}

	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			opts, _ := newTestOpts(t, nil, tc.env)
			out, err := execute(t, Shell(opts), tc.args...)
			if tc.expected != nil {
				assert.ErrorIs(t, err, tc.expected)
				return
			}
			require.NoError(t, err)
			assert.True(t, len(out) > len(tc.header) && out[:len(tc.header)] == tc.header, out)
			assert.Contains(t, out, opts.Dirs.Config)
			assert.FileExists(t, filepath.Join(opts.Dirs.Config, "wasmenv.sh"))
			assert.FileExists(t, filepath.Join(opts.Dirs.Config, "wasmenv.fish"))
			assert.DirExists(t, opts.layout().Current())
		})
	}
}

func TestClearCache(t *testing.T) {
	t.Parallel()

	seed := func(t *testing.T, opts *CommonOpts) {
		t.Helper()

		require.NoError(t, os.MkdirAll(opts.Dirs.Cache, 0o755))
		for _, v := range []string{"2.0.0", "2.5.0", "3.0.0"} {
			require.NoError(t, os.WriteFile(filepath.Join(opts.Dirs.Cache, v+"-"+testAsset), []byte(v), 0o644))
		}
	}

	t.Run("All", func(t *testing.T) {
		t.Parallel()

		opts, _ := newTestOpts(t, nil, map[string]string{config.EnvShellInitialised: "/config"})
		seed(t, opts)

		out, err := execute(t, ClearCache(opts))
		require.NoError(t, err)
		assert.Contains(t, out, "(3 files removed)")

		entries, err := os.ReadDir(opts.Dirs.Cache)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("Keep", func(t *testing.T) {
		t.Parallel()

		opts, _ := newTestOpts(t, nil, map[string]string{config.EnvShellInitialised: "/config"})
		seed(t, opts)

		out, err := execute(t, ClearCache(opts), "--keep", "1")
		require.NoError(t, err)
		assert.Contains(t, out, "(2 files removed)")
		assert.FileExists(t, filepath.Join(opts.Dirs.Cache, "3.0.0-"+testAsset))
		assert.NoFileExists(t, filepath.Join(opts.Dirs.Cache, "2.0.0-"+testAsset))
	})

	t.Run("RequiresShellIntegration", func(t *testing.T) {
		t.Parallel()

		opts, _ := newTestOpts(t, nil, map[string]string{})
		_, err := execute(t, ClearCache(opts))
		assert.ErrorIs(t, err, errs.ErrPrecondition)
	})

	t.Run("NegativeKeep", func(t *testing.T) {
		t.Parallel()

		opts, _ := newTestOpts(t, nil, map[string]string{config.EnvShellInitialised: "/config"})
		_, err := execute(t, ClearCache(opts), "--keep=-1")
		assert.Error(t, err)
	})
}
