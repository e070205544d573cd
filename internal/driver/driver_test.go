package driver

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Helcaraxan/wasmenv/internal/config"
	"github.com/Helcaraxan/wasmenv/internal/logger"
	"github.com/Helcaraxan/wasmenv/internal/probe"
	"github.com/Helcaraxan/wasmenv/internal/progress"
)

const testAsset = "wasmer-linux-amd64.tar.gz"

func testArchive(t *testing.T, version string) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	content := []byte("#!/bin/sh\necho 'wasmer " + version + "'\n")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "bin/", Typeflag: tar.TypeDir, Mode: 0o755}))
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "bin/wasmer", Typeflag: tar.TypeReg, Mode: 0o755, Size: int64(len(content))}))
	_, err := tw.Write(content)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

// newReleaseServer serves a GitHub Enterprise compatible release listing together with the release archives.
func newReleaseServer(t *testing.T, tags map[string]bool, order ...string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	var listing bytes.Buffer
	listing.WriteString("[")
	for i, tag := range order {
		if i > 0 {
			listing.WriteString(",")
		}
		fmt.Fprintf(&listing, `{"tag_name":%q,"prerelease":%t,"published_at":"2024-03-0%dT12:00:00Z","assets":[{"name":%q,"browser_download_url":%q}]}`,
			tag, tags[tag], i+1, testAsset, srv.URL+"/download/"+tag+"/"+testAsset)

		archive := testArchive(t, tag[1:])
		mux.HandleFunc("/download/"+tag+"/"+testAsset, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write(archive)
		})
	}
	listing.WriteString("]")

	mux.HandleFunc("/api/v3/repos/wasmerio/wasmer/releases", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(listing.Bytes())
	})
	return srv
}

func newTestOpts(t *testing.T, srv *httptest.Server, env map[string]string) (*CommonOpts, *probe.Fake) {
	t.Helper()

	conf := config.Defaults()
	if srv != nil {
		conf.Catalog.BaseURL = srv.URL + "/"
	}
	root := t.TempDir()
	active := &probe.Fake{}

	return &CommonOpts{
		LogBuilder: logger.NewTestBuilder(),
		Config:     conf,
		Dirs: config.Dirs{
			Config: filepath.Join(root, "config"),
			Data:   filepath.Join(root, "data"),
			Cache:  filepath.Join(root, "cache"),
		},
		Platform:    config.PlatformLinux,
		Arch:        config.ArchX64,
		Probe:       active,
		SystemProbe: &probe.Fake{},
		Spinner:     progress.Nop{},
		Getenv:      func(key string) string { return env[key] },
	}, active
}
