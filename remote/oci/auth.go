package oci

import (
	"context"
	"errors"
	"strings"

	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
)

var errReadOnlyCredentials = errors.New("oci: static credential store is read-only")

// DefaultCredentialStore reads credentials from the Docker config file and
// any credential helpers it names.
func DefaultCredentialStore() (credentials.Store, error) {
	store, err := credentials.NewStoreFromDocker(credentials.StoreOptions{})
	if err != nil {
		return nil, err
	}
	return &hubAliasStore{Store: store}, nil
}

// StaticCredentials returns a store answering with username and password for
// a single registry host.
func StaticCredentials(registry, username, password string) credentials.Store {
	return &staticStore{
		host: canonicalHost(registry),
		cred: auth.Credential{Username: username, Password: password},
	}
}

// StaticToken returns a store answering with a bearer token for a single
// registry host.
func StaticToken(registry, token string) credentials.Store {
	return &staticStore{
		host: canonicalHost(registry),
		cred: auth.Credential{AccessToken: token},
	}
}

type staticStore struct {
	host string
	cred auth.Credential
}

func (s *staticStore) Get(_ context.Context, serverAddress string) (auth.Credential, error) {
	if canonicalHost(serverAddress) == s.host {
		return s.cred, nil
	}
	return auth.EmptyCredential, nil
}

func (s *staticStore) Put(context.Context, string, auth.Credential) error {
	return errReadOnlyCredentials
}

func (s *staticStore) Delete(context.Context, string) error {
	return errReadOnlyCredentials
}

// hubAliasStore retries lookups for Docker Hub under the legacy names the
// Docker CLI writes credentials for.
type hubAliasStore struct {
	credentials.Store
}

func (s *hubAliasStore) Get(ctx context.Context, serverAddress string) (auth.Credential, error) {
	cred, err := s.Store.Get(ctx, serverAddress)
	if err == nil && cred != auth.EmptyCredential {
		return cred, nil
	}
	if canonicalHost(serverAddress) != dockerHubHost {
		return cred, err
	}
	for _, alias := range []string{"https://index.docker.io/v1/", "index.docker.io", "registry-1.docker.io", "docker.io"} {
		if alias == serverAddress {
			continue
		}
		if c, aerr := s.Store.Get(ctx, alias); aerr == nil && c != auth.EmptyCredential {
			return c, nil
		}
	}
	return cred, err
}

const dockerHubHost = "docker.io"

// canonicalHost strips scheme, path and the default HTTPS port, and folds
// the Docker Hub aliases onto one name.
func canonicalHost(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.TrimPrefix(addr, "https://")
	addr = strings.TrimPrefix(addr, "http://")
	if i := strings.IndexByte(addr, '/'); i >= 0 {
		addr = addr[:i]
	}
	addr = strings.TrimSuffix(strings.ToLower(addr), ":443")
	switch addr {
	case "index.docker.io", "registry-1.docker.io":
		return dockerHubHost
	}
	return addr
}
