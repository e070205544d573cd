// Package backend implements the optional remote mirrors on which release archives can be shared between machines.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/Helcaraxan/wasmenv/internal/config"
	"github.com/Helcaraxan/wasmenv/internal/errs"
	"github.com/Helcaraxan/wasmenv/internal/logger"
)

// Storage holds release archives under their cache filename. Fetch wraps errs.ErrNotFound for absent objects. Store
// never overwrites an existing object and returns an error wrapping ErrExists instead.
type Storage interface {
	fmt.Stringer
	Fetch(ctx context.Context, key string) (io.ReadCloser, error)
	Store(ctx context.Context, key string, content io.Reader) error
}

var (
	// To guarantee that implementations remain compatible with the interface.
	_ Storage = &FileSystem{}
	_ Storage = &GCS{}
	_ Storage = &HTTPS{}
	_ Storage = &S3{}

	ErrExists = errors.New("object already exists")
)

// New instantiates the mirror described by the configuration. A nil configuration means no mirror.
func New(ctx context.Context, logBuilder *logger.Builder, c *config.RemoteCache) (Storage, error) {
	if c == nil {
		return nil, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch {
	case c.GCSBucket != "":
		return NewGCS(ctx, logBuilder, c.GCSBucket, c.PathPrefix)
	case c.S3Bucket != "":
		return NewS3(ctx, logBuilder, c.S3Bucket, c.PathPrefix)
	case c.HTTPSHost != "":
		return NewHTTPS(logBuilder, "https://"+c.HTTPSHost, c.PathPrefix), nil
	default:
		return NewFileSystem(logBuilder, c.PathPrefix, false), nil
	}
}

func objectPath(prefix string, key string) string {
	if prefix == "" {
		return key
	}
	return path.Join(prefix, key)
}

func notFound(key string, err error) error {
	return fmt.Errorf("%w: no object %q on remote cache: %w", errs.ErrNotFound, key, err)
}

func exists(key string) error {
	return fmt.Errorf("%w: %q", ErrExists, key)
}
