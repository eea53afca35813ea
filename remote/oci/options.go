package oci

import (
	"net/http"

	"oras.land/oras-go/v2/registry/remote/credentials"
)

// Option configures a Store.
type Option func(*Store)

// WithCredentialStore sets the credential store for authentication.
func WithCredentialStore(store credentials.Store) Option {
	return func(s *Store) {
		s.credStore = store
	}
}

// WithStaticCredentials sets static username/password credentials for a registry.
func WithStaticCredentials(registry, username, password string) Option {
	return func(s *Store) {
		s.credStore = StaticCredentials(registry, username, password)
	}
}

// WithStaticToken sets a bearer token for a registry.
func WithStaticToken(registry, token string) Option {
	return func(s *Store) {
		s.credStore = StaticToken(registry, token)
	}
}

// WithDockerConfig enables reading credentials from ~/.docker/config.json.
// If the docker config cannot be loaded, the store falls back to no
// credentials.
func WithDockerConfig() Option {
	return func(s *Store) {
		store, err := DefaultCredentialStore()
		if err != nil {
			return
		}
		s.credStore = store
	}
}

// WithPlainHTTP enables plain HTTP (no TLS) for registries.
// This is useful for local development registries.
func WithPlainHTTP(enabled bool) Option {
	return func(s *Store) {
		s.plainHTTP = enabled
	}
}

// WithAnonymous disables all authentication, including credential store lookups.
func WithAnonymous() Option {
	return func(s *Store) {
		s.anonymous = true
	}
}

// WithUserAgent sets the User-Agent header for requests.
func WithUserAgent(ua string) Option {
	return func(s *Store) {
		s.userAgent = ua
	}
}

// WithHTTPClient sets the HTTP client used for registry requests.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Store) {
		s.httpClient = client
	}
}
