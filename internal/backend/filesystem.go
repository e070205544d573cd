package backend

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"go.uber.org/zap"

	"github.com/Helcaraxan/wasmenv/internal/logger"
)

// FileSystem is a mirror on a directory, typically a network share mounted on several machines.
type FileSystem struct {
	log     *zap.Logger
	root    string
	storage billy.Filesystem
}

func NewFileSystem(logBuilder *logger.Builder, root string, inMem bool) *FileSystem {
	var fs billy.Filesystem
	if inMem {
		fs = memfs.New()
	} else {
		fs = osfs.New(root)
	}

	return &FileSystem{
		log:     logBuilder.Domain(logger.FileSystemDomain).With(zap.String("mirror-root", root)),
		root:    root,
		storage: fs,
	}
}

func (s *FileSystem) String() string {
	return s.root
}

func (s *FileSystem) Fetch(_ context.Context, key string) (io.ReadCloser, error) {
	log := s.log.With(zap.String("key", key))

	fd, err := s.storage.Open(key)
	if errors.Is(err, os.ErrNotExist) {
		log.Debug("No archive on the mirror.")
		return nil, notFound(key, err)
	} else if err != nil {
		log.Error("Failed to open archive on the mirror.", zap.Error(err))
		return nil, err
	}
	return fd, nil
}

func (s *FileSystem) Store(_ context.Context, key string, content io.Reader) (err error) {
	log := s.log.With(zap.String("key", key))

	if _, err = s.storage.Stat(key); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Error("Unable to check for a pre-existing archive.", zap.Error(err))
		return err
	} else if err == nil {
		log.Error("Can not store archive as it is already present.")
		return exists(key)
	}

	dir := filepath.Dir(key)
	if err = s.storage.MkdirAll(dir, 0o755); err != nil {
		log.Error("Failed to create mirror directory.", zap.Error(err))
		return err
	}

	// Copy into a temporary file first so that readers never observe a partial archive.
	tmp, err := s.storage.TempFile(dir, ".upload-")
	if err != nil {
		log.Error("Failed to create temporary file.", zap.Error(err))
		return err
	}
	defer func() {
		if err != nil {
			_ = s.storage.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, content); err != nil {
		_ = tmp.Close()
		log.Error("Failed to write archive.", zap.Error(err))
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = s.storage.Rename(tmp.Name(), key); err != nil {
		log.Error("Failed to move archive into place.", zap.Error(err))
		return err
	}
	log.Debug("Stored archive on the mirror.")
	return nil
}
