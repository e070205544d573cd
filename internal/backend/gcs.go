package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/Helcaraxan/wasmenv/internal/logger"
)

type GCS struct {
	log     *zap.Logger
	timeout time.Duration
	client  *storage.Client
	bucket  string
	prefix  string
}

func NewGCS(ctx context.Context, logBuilder *logger.Builder, bucket string, prefix string) (*GCS, error) {
	log := logBuilder.Domain(logger.GCSDomain).With(zap.String("gcs-bucket", bucket))

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := storage.NewClient(ctx, option.WithScopes(storage.ScopeReadWrite))
	if err != nil {
		log.Error("Unable to set up a GCS storage client.", zap.Error(err))
		return nil, err
	}

	return &GCS{
		log:     log,
		timeout: 5 * time.Minute,
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
	}, nil
}

func (s *GCS) String() string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, s.prefix)
}

func (s *GCS) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	bucketPath := objectPath(s.prefix, key)
	log := s.log.With(zap.String("artefact-path", bucketPath))

	src, err := s.client.Bucket(s.bucket).Object(bucketPath).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		log.Debug("No archive found.")
		return nil, notFound(key, err)
	} else if err != nil {
		log.Error("Unable to open reader on remote GCS object.", zap.Error(err))
		return nil, err
	}
	return src, nil
}

func (s *GCS) Store(ctx context.Context, key string, content io.Reader) (err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	bucketPath := objectPath(s.prefix, key)
	log := s.log.With(zap.String("artefact-path", bucketPath))

	obj := s.client.Bucket(s.bucket).Object(bucketPath)
	if _, err = obj.Attrs(ctx); err == nil {
		log.Error("Can not store archive as one already exists.")
		return exists(key)
	} else if !errors.Is(err, storage.ErrObjectNotExist) {
		log.Error("Can not check if an archive already exists.", zap.Error(err))
		return err
	}

	dst := obj.NewWriter(ctx)
	defer func() {
		closeErr := dst.Close()
		if err == nil && closeErr != nil {
			log.Error("Failed to correctly close remote object.", zap.Error(closeErr))
			err = closeErr
		}
	}()

	if _, err = io.Copy(dst, content); err != nil {
		// Cancelling before the writer is closed aborts the upload instead of committing a partial object.
		cancel()
		log.Error("Failed to upload archive.", zap.Error(err))
		return err
	}
	log.Debug("Finished uploading the archive as blob to GCS.")
	return nil
}
