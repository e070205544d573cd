package config

import (
	"errors"
)

var ErrInvalidRemoteCache = errors.New("invalid remote cache configuration")

// RemoteCache describes an optional shared mirror of release archives. At most one of the GCS bucket, HTTPS host or S3
// bucket may be set. With none of them the path prefix designates a directory on a (shared) filesystem.
type RemoteCache struct {
	PathPrefix string `yaml:"path_prefix"`

	GCSBucket string `yaml:"gcs_bucket"`
	HTTPSHost string `yaml:"https_host"`
	S3Bucket  string `yaml:"s3_bucket"`

	ReadOnly bool `yaml:"read_only"`
}

func (c *RemoteCache) Validate() error {
	var hostCount int
	for _, h := range []string{c.GCSBucket, c.HTTPSHost, c.S3Bucket} {
		if h != "" {
			hostCount++
		}
	}
	switch {
	case hostCount > 1:
		return errors.Join(ErrInvalidRemoteCache, errors.New("multiple remote hosts / buckets found"))
	case hostCount == 0 && c.PathPrefix == "":
		return errors.Join(ErrInvalidRemoteCache, errors.New("neither a remote host / bucket nor a path prefix is set"))
	}
	return nil
}
