// Package archive unpacks release archives into an installation directory.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
	"go.uber.org/zap"

	"github.com/Helcaraxan/wasmenv/internal/errs"
)

var ErrUnsupportedFormat = fmt.Errorf("%w: unrecognised archive format", errs.ErrExtraction)

// Extract unpacks the archive read from r into dest. The format is derived from the archive's file name. Entries that
// would end up outside of dest are rejected.
func Extract(log *zap.Logger, r io.Reader, name string, dest string) error {
	log = log.With(zap.String("archive", name), zap.String("destination", dest))

	rd, err := decompressor(log, r, name)
	if err != nil {
		return err
	}

	if err = os.MkdirAll(dest, 0o755); err != nil {
		log.Error("Unable to create extraction directory.", zap.Error(err))
		return fmt.Errorf("%w: %w", errs.ErrFilesystem, err)
	}

	if err = extractTAR(log, rd, dest); err != nil {
		return err
	}
	log.Debug("Successfully extracted archive.")
	return nil
}

func decompressor(log *zap.Logger, r io.Reader, name string) (io.Reader, error) {
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		log.Debug("Applying a GZIP decoder on the archive.")
		gz, err := gzip.NewReader(r)
		if err != nil {
			log.Error("Failed to open archive with a GZIP reader.", zap.Error(err))
			return nil, fmt.Errorf("%w: failed to open gzip reader: %w", errs.ErrExtraction, err)
		}
		return gz, nil

	case strings.HasSuffix(name, ".tar.xz"):
		log.Debug("Applying an XZ decoder on the archive.")
		xr, err := xz.NewReader(r)
		if err != nil {
			log.Error("Failed to open archive with an XZ reader.", zap.Error(err))
			return nil, fmt.Errorf("%w: failed to open xz reader: %w", errs.ErrExtraction, err)
		}
		return xr, nil

	case strings.HasSuffix(name, ".tar"):
		return r, nil

	default:
		log.Error("Unrecognised archive format.")
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

func extractTAR(log *zap.Logger, r io.Reader, dest string) error {
	tr := tar.NewReader(r)

	var entries int
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			log.Error("Failed to read archive entry.", zap.Error(err))
			return fmt.Errorf("%w: corrupt archive: %w", errs.ErrExtraction, err)
		}
		entries++

		target, err := withinRoot(dest, hdr.Name)
		if err != nil {
			log.Error("Archive entry escapes the extraction directory.", zap.String("entry", hdr.Name))
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			err = os.MkdirAll(target, 0o755)

		case tar.TypeReg:
			src := &trackingReader{r: tr}
			if err = writeFile(src, target, hdr.FileInfo().Mode().Perm()); err != nil && src.err != nil {
				log.Error("Failed to read archive entry content.", zap.String("entry", hdr.Name), zap.Error(src.err))
				return fmt.Errorf("%w: corrupt archive: %w", errs.ErrExtraction, src.err)
			}

		case tar.TypeSymlink:
			if filepath.IsAbs(hdr.Linkname) {
				err = fmt.Errorf("%w: absolute symlink %q in archive", errs.ErrExtraction, hdr.Name)
			} else {
				_, err = withinRoot(dest, filepath.Join(filepath.Dir(hdr.Name), hdr.Linkname))
			}
			if err != nil {
				log.Error("Archive symlink points outside of the extraction directory.", zap.String("entry", hdr.Name))
				return err
			}
			if err = os.MkdirAll(filepath.Dir(target), 0o755); err == nil {
				_ = os.Remove(target)
				err = os.Symlink(hdr.Linkname, target)
			}

		default:
			log.Debug("Skipping unsupported archive entry.", zap.String("entry", hdr.Name), zap.Any("type", hdr.Typeflag))
			continue
		}
		if err != nil {
			log.Error("Failed to extract archive entry.", zap.String("entry", hdr.Name), zap.Error(err))
			return fmt.Errorf("%w: %w", errs.ErrFilesystem, err)
		}
	}

	if entries == 0 {
		log.Error("Archive is empty.")
		return fmt.Errorf("%w: archive has no entries", errs.ErrExtraction)
	}
	return nil
}

func writeFile(r io.Reader, target string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if mode == 0 {
		mode = 0o644
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err = io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// trackingReader remembers read failures so that corrupt archives can be told apart from failing writes.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		t.err = err
	}
	return n, err
}

func withinRoot(root string, name string) (string, error) {
	root = filepath.Clean(root)
	target := filepath.Join(root, filepath.FromSlash(name))
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: illegal path %q in archive", errs.ErrExtraction, name)
	}
	return target, nil
}
