// Package http provides a remote.Store backed by plain REST object URLs.
//
// Objects are uploaded with PUT to <base>/<object>, fetched with GET, and
// removed with DELETE. Locators are public object URLs under the public base
// URL, which defaults to the upload base. This matches the storage REST APIs
// exposed by most backend-as-a-service providers.
package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"

	"github.com/meigma/mediacache/remote"
)

// Store implements remote.Store over HTTP.
type Store struct {
	baseURL   *url.URL
	publicURL *url.URL
	client    *nethttp.Client
	headers   nethttp.Header
}

var _ remote.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(s *Store) {
		s.client = client
	}
}

// WithHeaders sets additional headers on each request.
func WithHeaders(headers nethttp.Header) Option {
	return func(s *Store) {
		if headers == nil {
			return
		}
		s.headers = headers.Clone()
	}
}

// WithHeader sets a single header on each request.
func WithHeader(key, value string) Option {
	return func(s *Store) {
		if s.headers == nil {
			s.headers = make(nethttp.Header)
		}
		s.headers.Set(key, value)
	}
}

// WithBearerToken authenticates requests with a bearer token.
func WithBearerToken(token string) Option {
	return WithHeader("Authorization", "Bearer "+token)
}

// WithPublicURL sets the base URL used to build locators for uploaded
// objects, for stores that serve reads from a CDN or public endpoint.
func WithPublicURL(publicURL string) Option {
	return func(s *Store) {
		if u, err := parseBase(publicURL); err == nil {
			s.publicURL = u
		}
	}
}

// New creates a Store that uploads under baseURL.
func New(baseURL string, opts ...Option) (*Store, error) {
	base, err := parseBase(baseURL)
	if err != nil {
		return nil, err
	}
	s := &Store{
		baseURL: base,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = remote.NewHTTPClient(remote.DefaultRequestTimeout)
	}
	if s.publicURL == nil {
		s.publicURL = s.baseURL
	}
	return s, nil
}

// FetchBytes downloads the object at locator.
func (s *Store) FetchBytes(ctx context.Context, locator string) ([]byte, error) {
	if _, err := url.ParseRequestURI(locator); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", remote.ErrInvalidLocator, locator, err)
	}
	req, err := s.newRequest(ctx, nethttp.MethodGet, locator, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		buf.Grow(int(resp.ContentLength))
	}
	n, err := io.Copy(&buf, resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return nil, fmt.Errorf("%w: got %d of %d bytes", remote.ErrTruncated, n, resp.ContentLength)
	}
	return buf.Bytes(), nil
}

// StoreBytes uploads data and returns its public URL.
func (s *Store) StoreBytes(ctx context.Context, data []byte, pathHint, contentType string) (string, error) {
	object := remote.ObjectName(pathHint, contentType)
	target, err := resolve(s.baseURL, object)
	if err != nil {
		return "", err
	}

	req, err := s.newRequest(ctx, nethttp.MethodPut, target, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.ContentLength = int64(len(data))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if err := checkStatus(resp); err != nil {
		return "", err
	}
	return s.publicURL.JoinPath(object).String(), nil
}

// DeleteBytes removes the object at locator. Locators under the public URL
// are mapped back to the upload base.
func (s *Store) DeleteBytes(ctx context.Context, locator string) error {
	target, err := s.uploadURL(locator)
	if err != nil {
		return err
	}
	req, err := s.newRequest(ctx, nethttp.MethodDelete, target, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode == nethttp.StatusNotFound {
		return nil
	}
	return checkStatus(resp)
}

func (s *Store) uploadURL(locator string) (string, error) {
	u, err := url.Parse(locator)
	if err != nil || !u.IsAbs() {
		return "", fmt.Errorf("%w: %q", remote.ErrInvalidLocator, locator)
	}
	pub := s.publicURL.String()
	if strings.HasPrefix(locator, pub) {
		return resolve(s.baseURL, strings.TrimPrefix(locator, pub))
	}
	base := s.baseURL.String()
	if strings.HasPrefix(locator, base) {
		return resolve(s.baseURL, strings.TrimPrefix(locator, base))
	}
	return "", fmt.Errorf("%w: %q is not under %s", remote.ErrInvalidLocator, locator, pub)
}

// resolve joins object onto base, refusing names that would leave it.
func resolve(base *url.URL, object string) (string, error) {
	name, err := url.PathUnescape(object)
	if err != nil || !remote.Contained(name) {
		return "", fmt.Errorf("%w: %q escapes %s", remote.ErrInvalidLocator, object, base)
	}
	u := base.JoinPath(object)
	if !strings.HasPrefix(u.Path, base.Path) {
		return "", fmt.Errorf("%w: %q escapes %s", remote.ErrInvalidLocator, object, base)
	}
	return u.String(), nil
}

func (s *Store) newRequest(ctx context.Context, method, target string, body io.Reader) (*nethttp.Request, error) {
	req, err := nethttp.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	for key, values := range s.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if method == nethttp.MethodGet && req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "identity")
	}
	return req, nil
}

func checkStatus(resp *nethttp.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &remote.StatusError{Code: resp.StatusCode, Status: resp.Status}
}

// parseBase parses a base URL and ensures it ends with "/".
func parseBase(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", raw, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", raw)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}
