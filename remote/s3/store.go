// Package s3 provides a remote.Store backed by S3-compatible object storage.
//
// Locators are public object URLs of the form <public base>/<object>. The
// public base defaults to the path-style bucket URL on the endpoint.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/meigma/mediacache/remote"
)

// Config holds S3 store configuration.
type Config struct {
	// Endpoint is the S3 server host[:port] (e.g. "localhost:9000").
	Endpoint string

	// Region is the bucket region. Optional for most S3-compatible servers.
	Region string

	// Bucket is the bucket objects are stored in.
	Bucket string

	// AccessKey and SecretKey authenticate requests.
	AccessKey string
	SecretKey string

	// UseSSL enables HTTPS connections.
	UseSSL bool

	// PathStyle forces path-style bucket addressing.
	PathStyle bool

	// Prefix is prepended to every object name.
	Prefix string

	// PublicURL is the base URL locators are built from. Defaults to
	// <scheme>://<endpoint>/<bucket>.
	PublicURL string

	// Transport overrides the HTTP transport, e.g. to set request timeouts.
	Transport http.RoundTripper

	// Client is an optional pre-configured client. When set, Endpoint and
	// credentials are only used to derive the default PublicURL.
	Client *minio.Client
}

// Store implements remote.Store over S3.
type Store struct {
	client    *minio.Client
	bucket    string
	prefix    string
	publicURL *url.URL
}

var _ remote.Store = (*Store)(nil)

func (c *Config) validate() error {
	if c.Bucket == "" {
		return errors.New("s3: bucket is required")
	}
	if c.Client != nil {
		return nil
	}
	if c.Endpoint == "" {
		return errors.New("s3: endpoint is required when client is not provided")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return errors.New("s3: access key and secret key are required when client is not provided")
	}
	return nil
}

// New creates an S3 store.
func New(cfg Config) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client := cfg.Client
	if client == nil {
		opts := &minio.Options{
			Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure:    cfg.UseSSL,
			Region:    cfg.Region,
			Transport: cfg.Transport,
		}
		if cfg.PathStyle {
			opts.BucketLookup = minio.BucketLookupPath
		}
		var err error
		client, err = minio.New(cfg.Endpoint, opts)
		if err != nil {
			return nil, fmt.Errorf("s3: create client: %w", err)
		}
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = client.EndpointURL().Host
		}
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s/%s", scheme, endpoint, cfg.Bucket)
	}
	pub, err := url.Parse(strings.TrimSuffix(publicURL, "/") + "/")
	if err != nil || !pub.IsAbs() {
		return nil, fmt.Errorf("s3: invalid public url %q", publicURL)
	}

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	return &Store{
		client:    client,
		bucket:    cfg.Bucket,
		prefix:    prefix,
		publicURL: pub,
	}, nil
}

// FetchBytes downloads the object named by locator.
func (s *Store) FetchBytes(ctx context.Context, locator string) ([]byte, error) {
	object, err := s.objectName(locator)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, translate(err)
	}
	var buf bytes.Buffer
	if info.Size > 0 {
		buf.Grow(int(info.Size))
	}
	n, err := io.Copy(&buf, obj)
	if err != nil {
		return nil, translate(err)
	}
	if n != info.Size {
		return nil, fmt.Errorf("%w: got %d of %d bytes", remote.ErrTruncated, n, info.Size)
	}
	return buf.Bytes(), nil
}

// StoreBytes uploads data and returns its public URL.
func (s *Store) StoreBytes(ctx context.Context, data []byte, pathHint, contentType string) (string, error) {
	object := s.prefix + remote.ObjectName(pathHint, contentType)
	_, err := s.client.PutObject(ctx, s.bucket, object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", translate(err)
	}
	return s.publicURL.JoinPath(object).String(), nil
}

// DeleteBytes removes the object named by locator.
func (s *Store) DeleteBytes(ctx context.Context, locator string) error {
	object, err := s.objectName(locator)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, object, minio.RemoveObjectOptions{}); err != nil {
		return translate(err)
	}
	return nil
}

// objectName maps a locator back to its object name.
func (s *Store) objectName(locator string) (string, error) {
	base := s.publicURL.String()
	if !strings.HasPrefix(locator, base) {
		return "", fmt.Errorf("%w: %q is not under %s", remote.ErrInvalidLocator, locator, base)
	}
	object, err := url.PathUnescape(strings.TrimPrefix(locator, base))
	if err != nil || !remote.Contained(object) {
		return "", fmt.Errorf("%w: %q", remote.ErrInvalidLocator, locator)
	}
	return object, nil
}

// translate maps S3 error responses onto remote.StatusError.
func translate(err error) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode != 0 {
		return fmt.Errorf("%w: %s", &remote.StatusError{Code: resp.StatusCode}, resp.Code)
	}
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %s", &remote.StatusError{Code: http.StatusNotFound}, resp.Code)
	case "AccessDenied":
		return fmt.Errorf("%w: %s", &remote.StatusError{Code: http.StatusForbidden}, resp.Code)
	}
	return err
}
