package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Helcaraxan/wasmenv/internal/config"
	"github.com/Helcaraxan/wasmenv/internal/logger"
)

// HTTPS is a mirror on a plain web server accepting GET and PUT requests, e.g. an artifact repository.
type HTTPS struct {
	log     *zap.Logger
	client  *http.Client
	baseURL string
	prefix  string
}

func NewHTTPS(logBuilder *logger.Builder, baseURL string, prefix string) *HTTPS {
	return &HTTPS{
		log:     logBuilder.Domain(logger.HTTPSDomain).With(zap.String("https-host", baseURL)),
		client:  &http.Client{Timeout: 5 * time.Minute},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		prefix:  prefix,
	}
}

func (s *HTTPS) String() string {
	return s.baseURL + "/" + s.prefix
}

func (s *HTTPS) url(key string) string {
	return s.baseURL + "/" + strings.TrimPrefix(objectPath(s.prefix, key), "/")
}

func (s *HTTPS) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	log := s.log.With(zap.String("url", s.url(key)))

	resp, err := s.do(ctx, http.MethodGet, key, nil)
	if err != nil {
		log.Error("Failed to request archive.", zap.Error(err))
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		_ = resp.Body.Close()
		log.Debug("No archive found.")
		return nil, notFound(key, fmt.Errorf("status %s", resp.Status))
	case resp.StatusCode/100 != 2:
		_ = resp.Body.Close()
		log.Error("Unexpected response while requesting archive.", zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("unexpected response for %q: %s", key, resp.Status)
	}
	return resp.Body, nil
}

func (s *HTTPS) Store(ctx context.Context, key string, content io.Reader) error {
	log := s.log.With(zap.String("url", s.url(key)))

	resp, err := s.do(ctx, http.MethodHead, key, nil)
	if err != nil {
		log.Error("Can not check if an archive already exists.", zap.Error(err))
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode/100 == 2 {
		log.Error("Can not store archive as one already exists.")
		return exists(key)
	}

	if resp, err = s.do(ctx, http.MethodPut, key, content); err != nil {
		log.Error("Failed to upload archive.", zap.Error(err))
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		log.Error("Upload of archive was rejected.", zap.Int("status", resp.StatusCode))
		return fmt.Errorf("upload of %q rejected: %s", key, resp.Status)
	}
	log.Debug("Finished uploading the archive.")
	return nil
}

func (s *HTTPS) do(ctx context.Context, method string, key string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.url(key), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", config.ClientIdentifier)
	return s.client.Do(req)
}
