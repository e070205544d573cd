package backend

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Helcaraxan/wasmenv/internal/config"
	"github.com/Helcaraxan/wasmenv/internal/errs"
	"github.com/Helcaraxan/wasmenv/internal/logger"
)

const testKey = "4.2.0-wasmer-linux-amd64.tar.gz"

var testContent = []byte("wasmer-archive-content")

// testStorageRoundTrip exercises the contract shared by every mirror implementation.
func testStorageRoundTrip(t *testing.T, s Storage) {
	t.Helper()

	ctx := context.Background()

	_, err := s.Fetch(ctx, testKey)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, s.Store(ctx, testKey, bytes.NewReader(testContent)))

	err = s.Store(ctx, testKey, bytes.NewReader([]byte("other-content")))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExists)

	rc, err := s.Fetch(ctx, testKey)
	require.NoError(t, err)
	defer rc.Close()

	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, testContent, b)
}

func TestObjectPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, testKey, objectPath("", testKey))
	assert.Equal(t, "mirror/wasmer/"+testKey, objectPath("mirror/wasmer", testKey))
	assert.Equal(t, "mirror/"+testKey, objectPath("mirror/", testKey))
}

func TestNew(t *testing.T) {
	t.Parallel()

	s, err := New(context.Background(), logger.NewTestBuilder(), nil)
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = New(context.Background(), logger.NewTestBuilder(), &config.RemoteCache{})
	assert.ErrorIs(t, err, config.ErrInvalidRemoteCache)

	dir := t.TempDir()
	s, err = New(context.Background(), logger.NewTestBuilder(), &config.RemoteCache{PathPrefix: dir})
	require.NoError(t, err)
	assert.IsType(t, &FileSystem{}, s)
	assert.Equal(t, dir, s.String())

	s, err = New(context.Background(), logger.NewTestBuilder(), &config.RemoteCache{HTTPSHost: "mirror.example.com", PathPrefix: "wasmer"})
	require.NoError(t, err)
	assert.IsType(t, &HTTPS{}, s)
	assert.Equal(t, "https://mirror.example.com/wasmer", s.String())
}
