// Package oci provides a remote.Store that keeps images as blobs in an OCI
// registry.
//
// Blobs are content-addressed, so a locator has the form
// <registry>/<repository>@sha256:<hex>. Fetched content is verified against
// the digest in its locator before it is returned.
package oci

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
	"oras.land/oras-go/v2/registry/remote/errcode"

	mcremote "github.com/meigma/mediacache/remote"
)

// Store implements remote.Store over an OCI registry repository.
type Store struct {
	repoRef    string
	plainHTTP  bool
	userAgent  string
	anonymous  bool // skip credential lookup entirely
	credStore  credentials.Store
	httpClient *http.Client
	authClient *auth.Client // shared auth client with token cache
}

var _ mcremote.Store = (*Store)(nil)

// New creates a Store that pushes blobs to repoRef (e.g.
// "ghcr.io/acme/media").
func New(repoRef string, opts ...Option) (*Store, error) {
	ref, err := registry.ParseReference(repoRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mcremote.ErrInvalidLocator, err)
	}
	if ref.Reference != "" {
		return nil, fmt.Errorf("%w: repository %q must not include a tag or digest", mcremote.ErrInvalidLocator, repoRef)
	}

	s := &Store{
		repoRef:   ref.Registry + "/" + ref.Repository,
		userAgent: "mediacache/1.0",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.httpClient == nil {
		s.httpClient = mcremote.NewHTTPClient(mcremote.DefaultRequestTimeout)
	}

	s.authClient = &auth.Client{
		Client: s.httpClient,
		Cache:  auth.NewCache(),
		Credential: func(ctx context.Context, hostport string) (auth.Credential, error) {
			if s.anonymous || s.credStore == nil {
				return auth.EmptyCredential, nil
			}
			return s.credStore.Get(ctx, hostport)
		},
		Header: http.Header{
			"User-Agent": []string{s.userAgent},
		},
	}
	return s, nil
}

// Repository returns the repository blobs are pushed to.
func (s *Store) Repository() string {
	return s.repoRef
}

// FetchBytes fetches and verifies the blob named by locator.
func (s *Store) FetchBytes(ctx context.Context, locator string) ([]byte, error) {
	repo, ref, err := s.resolveLocator(locator)
	if err != nil {
		return nil, err
	}
	desc, err := repo.Blobs().Resolve(ctx, ref.Reference)
	if err != nil {
		return nil, mapError(err)
	}
	rc, err := repo.Blobs().Fetch(ctx, desc)
	if err != nil {
		return nil, mapError(err)
	}
	defer rc.Close()

	data, err := content.ReadAll(rc, desc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mcremote.ErrTruncated, err)
	}
	return data, nil
}

// StoreBytes pushes data as a blob and returns its digest reference. The
// path hint is recorded as the blob title; blobs are addressed by digest.
func (s *Store) StoreBytes(ctx context.Context, data []byte, pathHint, contentType string) (string, error) {
	repo, err := s.repository(s.repoRef)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	desc := content.NewDescriptorFromBytes(contentType, data)
	if pathHint != "" {
		desc.Annotations = map[string]string{ocispec.AnnotationTitle: pathHint}
	}

	exists, err := repo.Blobs().Exists(ctx, desc)
	if err != nil {
		return "", mapError(err)
	}
	if !exists {
		if err := repo.Blobs().Push(ctx, desc, bytes.NewReader(data)); err != nil && !errors.Is(err, errdef.ErrAlreadyExists) {
			return "", mapError(err)
		}
	}
	return s.repoRef + "@" + desc.Digest.String(), nil
}

// DeleteBytes deletes the blob named by locator. Registries that do not
// allow deletion report a status error.
func (s *Store) DeleteBytes(ctx context.Context, locator string) error {
	repo, ref, err := s.resolveLocator(locator)
	if err != nil {
		return err
	}
	desc, err := repo.Blobs().Resolve(ctx, ref.Reference)
	if err != nil {
		if errors.Is(err, errdef.ErrNotFound) {
			return nil
		}
		return mapError(err)
	}
	if err := repo.Blobs().Delete(ctx, desc); err != nil {
		if errors.Is(err, errdef.ErrNotFound) {
			return nil
		}
		return mapError(err)
	}
	return nil
}

// resolveLocator parses a digest locator and opens its repository.
func (s *Store) resolveLocator(locator string) (*remote.Repository, registry.Reference, error) {
	ref, err := registry.ParseReference(locator)
	if err != nil {
		return nil, registry.Reference{}, fmt.Errorf("%w: %v", mcremote.ErrInvalidLocator, err)
	}
	if _, err := ref.Digest(); err != nil {
		return nil, registry.Reference{}, fmt.Errorf("%w: %q has no digest", mcremote.ErrInvalidLocator, locator)
	}
	repo, err := s.repository(ref.Registry + "/" + ref.Repository)
	if err != nil {
		return nil, registry.Reference{}, err
	}
	return repo, ref, nil
}

// repository creates a Repository for the given reference.
// Uses the shared auth client to reuse tokens across requests.
func (s *Store) repository(ref string) (*remote.Repository, error) {
	repo, err := remote.NewRepository(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mcremote.ErrInvalidLocator, err)
	}
	repo.PlainHTTP = s.plainHTTP
	repo.Client = s.authClient
	return repo, nil
}

// mapError maps ORAS errors onto remote.StatusError.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var errResp *errcode.ErrorResponse
	if errors.As(err, &errResp) {
		return fmt.Errorf("%w: %v", &mcremote.StatusError{Code: errResp.StatusCode}, err)
	}
	if errors.Is(err, errdef.ErrNotFound) {
		return fmt.Errorf("%w: %v", &mcremote.StatusError{Code: http.StatusNotFound}, err)
	}
	return err
}
