package transfer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/meigma/mediacache/remote"
)

// Kind classifies a network failure.
type Kind uint8

// Failure kinds.
const (
	KindConnectivity Kind = iota + 1
	KindStatus
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindConnectivity:
		return "connectivity"
	case KindStatus:
		return "status"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Sentinel errors matched by NetworkError.Is.
var (
	// ErrConnectivity matches failures to reach the backend or read a complete body.
	ErrConnectivity = errors.New("transfer: connectivity failure")

	// ErrStatus matches non-2xx responses.
	ErrStatus = errors.New("transfer: unexpected status")

	// ErrTimeout matches request and resource timeouts.
	ErrTimeout = errors.New("transfer: timeout")
)

// NetworkError is returned for every failed transfer that reached the
// network layer.
type NetworkError struct {
	Kind Kind

	// StatusCode is set for KindStatus.
	StatusCode int

	Op      Direction
	Locator string
	Err     error
}

func (e *NetworkError) Error() string {
	msg := fmt.Sprintf("transfer: %s %s: %s", e.Op, e.Locator, e.Kind)
	if e.Kind == KindStatus {
		msg += fmt.Sprintf(" %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *NetworkError) Is(target error) bool {
	switch target {
	case ErrConnectivity:
		return e.Kind == KindConnectivity
	case ErrStatus:
		return e.Kind == KindStatus
	case ErrTimeout:
		return e.Kind == KindTimeout
	}
	return false
}

// Temporary reports whether repeating the same request could succeed:
// timeouts, connectivity failures, 429 and 5xx responses.
func (e *NetworkError) Temporary() bool {
	switch e.Kind {
	case KindTimeout, KindConnectivity:
		return true
	case KindStatus:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// IsTemporary reports whether err is a NetworkError worth retrying.
func IsTemporary(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne) && ne.Temporary()
}

// StatusCode returns the status code carried by err, or 0.
func StatusCode(err error) int {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.StatusCode
	}
	return 0
}

// classify converts a backend error into the transfer error taxonomy.
// Invalid locators and caller cancellation are not network failures and are
// returned wrapped but unclassified.
func classify(op Direction, locator string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, remote.ErrInvalidLocator) {
		return fmt.Errorf("transfer: %s: %w", op, err)
	}
	if errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("transfer: %s %s: %w", op, locator, err)
	}

	ne := &NetworkError{Op: op, Locator: locator, Err: err}
	var netErr net.Error
	var statusErr *remote.StatusError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		ne.Kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		ne.Kind = KindTimeout
	case errors.As(err, &statusErr):
		ne.Kind = KindStatus
		ne.StatusCode = statusErr.Code
	default:
		ne.Kind = KindConnectivity
	}
	return ne
}
