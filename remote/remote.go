// Package remote defines the durable object store the media cache publishes
// to and fetches from.
//
// Backends live in subpackages: http (REST object URLs), s3 (S3-compatible
// object storage), and oci (blobs in an OCI registry). All of them satisfy
// Store and are selected when the coordinator is constructed.
package remote

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store is a durable object store addressed by locator strings.
//
// Implementations must be safe for concurrent use. They do not retry; the
// caller decides the retry policy.
type Store interface {
	// FetchBytes returns the complete object at locator.
	// A body that ends early must be reported as an error, never returned.
	FetchBytes(ctx context.Context, locator string) ([]byte, error)

	// StoreBytes uploads data and returns a stable, publicly resolvable
	// locator for it. pathHint is a backend-specific destination such as an
	// object path; a hint ending in "/" names a directory and the backend
	// chooses a unique object name inside it.
	StoreBytes(ctx context.Context, data []byte, pathHint, contentType string) (string, error)

	// DeleteBytes removes the object at locator.
	DeleteBytes(ctx context.Context, locator string) error
}

// Sentinel errors for remote operations.
var (
	// ErrInvalidLocator is returned when a locator does not belong to the store.
	ErrInvalidLocator = errors.New("remote: invalid locator")

	// ErrTruncated is returned when a response body is shorter than advertised.
	ErrTruncated = errors.New("remote: truncated body")
)

// StatusError reports a non-2xx response from a backend.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return "remote: unexpected status " + e.Status
	}
	return fmt.Sprintf("remote: unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// ObjectName resolves a destination hint to an object name. Hints ending in
// "/" (or empty hints) are directories: a random name with an extension
// matching contentType is appended.
//
// The hint is cleaned as a rooted path, so ".." segments never climb above
// the backend's base and the result never starts with "/" or "..".
func ObjectName(pathHint, contentType string) string {
	name := strings.TrimPrefix(path.Clean("/"+pathHint), "/")
	if name != "" && !strings.HasSuffix(pathHint, "/") {
		return name
	}
	if name != "" {
		name += "/"
	}
	return name + uuid.NewString() + Extension(contentType)
}

// Contained reports whether the slash-separated object name stays below its
// root: it is non-empty, relative, and has no ".." segment.
func Contained(object string) bool {
	if object == "" || strings.HasPrefix(object, "/") {
		return false
	}
	for _, seg := range strings.Split(object, "/") {
		if seg == ".." {
			return false
		}
	}
	return true
}

// Extension returns the preferred file extension for contentType, or "" if
// none is known.
func Extension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	}
	exts, err := mime.ExtensionsByType(contentType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}

// DefaultRequestTimeout bounds how long a backend waits for a response to
// begin once a request has been sent.
const DefaultRequestTimeout = 30 * time.Second

// NewHTTPClient returns an HTTP client whose transport gives up on requests
// that receive no response headers within requestTimeout. Values <= 0 use
// DefaultRequestTimeout. Overall transfer deadlines are carried by the
// request context.
func NewHTTPClient(requestTimeout time.Duration) *http.Client {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone() //nolint:errcheck // DefaultTransport is always *http.Transport
	transport.ResponseHeaderTimeout = requestTimeout
	return &http.Client{Transport: transport}
}
