// Package key derives stable cache keys from logical identifiers.
//
// A Key is the SHA256 digest of the identifier string, typically a remote
// locator such as an object URL. The same identifier always yields the same
// Key, in this process and in any other, so a locator echoed back by a
// remote store addresses the same cache entry that was seeded on upload.
package key

import (
	"errors"
	"fmt"

	"github.com/opencontainers/go-digest"
)

// ErrInvalidKey is returned when a hex key cannot be parsed.
var ErrInvalidKey = errors.New("key: invalid key")

// Key addresses a cached blob across tiers.
type Key struct {
	d digest.Digest
}

// New returns the Key for identifier.
func New(identifier string) Key {
	return Key{d: digest.SHA256.FromString(identifier)}
}

// Parse parses a hex-encoded key as returned by Key.Hex.
func Parse(hex string) (Key, error) {
	d := digest.NewDigestFromEncoded(digest.SHA256, hex)
	if err := d.Validate(); err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return Key{d: d}, nil
}

// Hex returns the lowercase hex encoding of the key. It is safe to use as a
// file name.
func (k Key) Hex() string {
	return k.d.Encoded()
}

// String returns the key in algorithm:hex form.
func (k Key) String() string {
	return k.d.String()
}

// Digest returns the underlying digest.
func (k Key) Digest() digest.Digest {
	return k.d
}

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool {
	return k.d == ""
}
