package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/Helcaraxan/wasmenv/internal/logger"
)

type S3 struct {
	log     *zap.Logger
	timeout time.Duration
	client  *s3.Client
	bucket  string
	prefix  string
}

func NewS3(ctx context.Context, logBuilder *logger.Builder, bucket string, prefix string) (*S3, error) {
	log := logBuilder.Domain(logger.S3Domain).With(zap.String("s3-bucket", bucket))

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	cfg, err := aws_config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Error("Failed to load AWS configuration from environment.", zap.Error(err))
		return nil, err
	}

	return &S3{
		log:     log,
		timeout: 5 * time.Minute,
		client:  s3.NewFromConfig(cfg),
		bucket:  bucket,
		prefix:  prefix,
	}, nil
}

func (s *S3) String() string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.prefix)
}

func (s *S3) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	bucketPath := objectPath(s.prefix, key)
	log := s.log.With(zap.String("artefact-path", bucketPath))

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(bucketPath),
	})
	if isMissing(err) {
		log.Debug("No such object available in S3.", zap.Error(err))
		return nil, notFound(key, err)
	} else if err != nil {
		log.Error("Failed to lookup object on S3.", zap.Error(err))
		return nil, err
	}
	return out.Body, nil
}

func (s *S3) Store(ctx context.Context, key string, content io.Reader) error {
	bucketPath := objectPath(s.prefix, key)
	log := s.log.With(zap.String("artefact-path", bucketPath))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(bucketPath),
	})
	if err == nil {
		log.Error("Can not store an archive as one already exists.")
		return exists(key)
	} else if !isMissing(err) {
		log.Error("Failed to check if an archive already exists.", zap.Error(err))
		return err
	}

	// The request signature covers the payload so it has to be seekable.
	raw, err := io.ReadAll(content)
	if err != nil {
		log.Error("Failed to read archive content.", zap.Error(err))
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(bucketPath),
		Body:   bytes.NewReader(raw),
	})
	if err != nil {
		log.Error("Failed to store archive as object in S3.", zap.Error(err))
		return err
	}
	log.Debug("Finished uploading the archive as object to S3.")
	return nil
}

func isMissing(err error) bool {
	if err == nil {
		return false
	}
	var (
		noSuchKey *types.NoSuchKey
		notFound  *types.NotFound
		respErr   *awshttp.ResponseError
	)
	switch {
	case errors.As(err, &noSuchKey), errors.As(err, &notFound):
		return true
	case errors.As(err, &respErr):
		return respErr.HTTPStatusCode() == http.StatusNotFound
	default:
		return false
	}
}
