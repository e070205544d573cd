package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Helcaraxan/wasmenv/internal/backend"
	"github.com/Helcaraxan/wasmenv/internal/config"
	"github.com/Helcaraxan/wasmenv/internal/errs"
	"github.com/Helcaraxan/wasmenv/internal/logger"
	"github.com/Helcaraxan/wasmenv/internal/release"
)

const (
	testRoot  = "/cache"
	testAsset = "wasmer-linux-amd64.tar.gz"
)

var testArchive = []byte("wasmer-archive-content")

type testServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newTestServer(t *testing.T, status int) *testServer {
	t.Helper()

	s := &testServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		assert.Equal(t, config.ClientIdentifier, r.UserAgent())
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = w.Write(testArchive)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func testRelease(tag string, url string) release.Release {
	return release.Release{
		Tag:    tag,
		Assets: []release.Asset{{Name: testAsset, DownloadURL: url + "/" + tag + "/" + testAsset}},
	}
}

func readAll(t *testing.T, c *Cache, path string) []byte {
	t.Helper()

	rc, err := c.Open(path)
	require.NoError(t, err)
	defer rc.Close()

	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return b
}

func TestEnsureCached(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, http.StatusOK)
	c := New(logger.NewTestBuilder(), testRoot, WithFileSystem(memfs.New()))
	rel := testRelease("v4.2.0", srv.URL)

	path, err := c.EnsureCached(context.Background(), rel, testAsset)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(testRoot, "4.2.0-"+testAsset), path)
	assert.Equal(t, testArchive, readAll(t, c, path))
	assert.EqualValues(t, 1, srv.hits.Load())

	// A second request is served from disk without any network activity.
	again, err := c.EnsureCached(context.Background(), rel, testAsset)
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.EqualValues(t, 1, srv.hits.Load())
}

func TestEnsureCachedFailures(t *testing.T) {
	t.Parallel()

	testcases := map[string]struct {
		status   int
		asset    string
		tag      string
		expected error
	}{
		"NotFoundOnProvider": {
			status:   http.StatusNotFound,
			asset:    testAsset,
			tag:      "v4.2.0",
			expected: errs.ErrNetwork,
		},
		"ServerError": {
			status:   http.StatusBadGateway,
			asset:    testAsset,
			tag:      "v4.2.0",
			expected: errs.ErrNetwork,
		},
		"MissingAsset": {
			status:   http.StatusOK,
			asset:    "wasmer-darwin-arm64.tar.gz",
			tag:      "v4.2.0",
			expected: errs.ErrNotFound,
		},
		"MalformedTag": {
			status:   http.StatusOK,
			asset:    testAsset,
			tag:      "nightly",
			expected: errs.ErrMalformedVersion,
		},
	}

	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			srv := newTestServer(t, tc.status)
			fs := memfs.New()
			c := New(logger.NewTestBuilder(), testRoot, WithFileSystem(fs))

			_, err := c.EnsureCached(context.Background(), testRelease(tc.tag, srv.URL), tc.asset)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.expected)

			// Nothing, not even a partial download, may be left behind.
			entries, err := fs.ReadDir(".")
			if !errors.Is(err, os.ErrNotExist) {
				require.NoError(t, err)
			}
			assert.Empty(t, entries)
		})
	}
}

func TestEnsureCachedFromMirror(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, http.StatusOK)
	mirror := backend.NewFileSystem(logger.NewTestBuilder(), "/mirror", true)
	require.NoError(t, mirror.Store(context.Background(), "4.2.0-"+testAsset, bytes.NewReader([]byte("mirrored-content"))))

	c := New(logger.NewTestBuilder(), testRoot, WithFileSystem(memfs.New()), WithMirror(mirror, false))

	path, err := c.EnsureCached(context.Background(), testRelease("v4.2.0", srv.URL), testAsset)
	require.NoError(t, err)
	assert.Equal(t, []byte("mirrored-content"), readAll(t, c, path))
	assert.EqualValues(t, 0, srv.hits.Load())
}

func TestEnsureCachedPushesToMirror(t *testing.T) {
	t.Parallel()

	testcases := map[string]struct {
		readOnly bool
		pushed   bool
	}{
		"Writable": {readOnly: false, pushed: true},
		"ReadOnly": {readOnly: true, pushed: false},
	}

	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			srv := newTestServer(t, http.StatusOK)
			mirror := backend.NewFileSystem(logger.NewTestBuilder(), "/mirror", true)
			c := New(logger.NewTestBuilder(), testRoot, WithFileSystem(memfs.New()), WithMirror(mirror, tc.readOnly))

			_, err := c.EnsureCached(context.Background(), testRelease("v4.2.0", srv.URL), testAsset)
			require.NoError(t, err)
			assert.EqualValues(t, 1, srv.hits.Load())

			rc, err := mirror.Fetch(context.Background(), "4.2.0-"+testAsset)
			if !tc.pushed {
				assert.ErrorIs(t, err, errs.ErrNotFound)
				return
			}
			require.NoError(t, err)
			defer rc.Close()
			b, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, testArchive, b)
		})
	}
}

func TestOpenOutsideCache(t *testing.T) {
	t.Parallel()

	c := New(logger.NewTestBuilder(), testRoot, WithFileSystem(memfs.New()))
	_, err := c.Open("/elsewhere/4.2.0-" + testAsset)
	assert.ErrorIs(t, err, errs.ErrFilesystem)
}

func TestClearAndPrune(t *testing.T) {
	t.Parallel()

	seed := func(t *testing.T) *Cache {
		t.Helper()

		fs := memfs.New()
		for _, name := range []string{
			"4.2.0-" + testAsset,
			"4.2.0-wasmer-darwin-arm64.tar.gz",
			"4.1.2-" + testAsset,
			"4.3.0-beta.1-" + testAsset,
			"3.0.0-" + testAsset,
			"unrelated.txt",
		} {
			require.NoError(t, util.WriteFile(fs, name, testArchive, 0o644))
		}
		return New(logger.NewTestBuilder(), testRoot, WithFileSystem(fs))
	}

	t.Run("Clear", func(t *testing.T) {
		t.Parallel()

		c := seed(t)
		removed, err := c.Clear()
		require.NoError(t, err)
		assert.Equal(t, 6, removed)

		removed, err = c.Clear()
		require.NoError(t, err)
		assert.Zero(t, removed)
	})

	t.Run("Prune", func(t *testing.T) {
		t.Parallel()

		c := seed(t)
		removed, err := c.Prune(2)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"4.1.2-" + testAsset, "3.0.0-" + testAsset}, removed)

		entries, err := c.storage.ReadDir(".")
		require.NoError(t, err)
		var left []string
		for _, e := range entries {
			left = append(left, e.Name())
		}
		assert.ElementsMatch(t, []string{
			"4.3.0-beta.1-" + testAsset,
			"4.2.0-" + testAsset,
			"4.2.0-wasmer-darwin-arm64.tar.gz",
			"unrelated.txt",
		}, left)
	})
}

func TestArchiveVersion(t *testing.T) {
	t.Parallel()

	testcases := map[string]struct {
		name    string
		version string
		ok      bool
	}{
		"Release":    {name: "4.2.0-wasmer-linux-amd64.tar.gz", version: "4.2.0", ok: true},
		"Prerelease": {name: "4.3.0-beta.1-wasmer-linux-amd64.tar.gz", version: "4.3.0-beta.1", ok: true},
		"Windows":    {name: "4.2.0-wasmer-windows.exe", version: "4.2.0", ok: true},
		"Unrelated":  {name: "unrelated.txt"},
		"BadVersion": {name: "latest-wasmer-linux-amd64.tar.gz"},
		"Partial":    {name: ".4.2.0-wasmer-linux-amd64.tar.gz.partial-1234"},
	}

	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			v, ok := archiveVersion(tc.name)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.version, v.String())
			}
		})
	}
}
