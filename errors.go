package mediacache

import (
	"github.com/meigma/mediacache/pipeline"
	"github.com/meigma/mediacache/remote"
	"github.com/meigma/mediacache/transfer"
)

// Errors re-exported from pipeline.
var (
	// ErrInvalidImage is returned when publish input cannot be decoded.
	ErrInvalidImage = pipeline.ErrInvalidImage

	// ErrTooLarge is returned when an image cannot be compressed under the size budget.
	ErrTooLarge = pipeline.ErrTooLarge
)

// Errors re-exported from transfer. Failed transfers return a
// *NetworkError that matches exactly one of these.
var (
	// ErrConnectivity matches failures to reach the backend or read a complete body.
	ErrConnectivity = transfer.ErrConnectivity

	// ErrStatus matches non-2xx responses; use [transfer.StatusCode] for the code.
	ErrStatus = transfer.ErrStatus

	// ErrTimeout matches request and resource timeouts.
	ErrTimeout = transfer.ErrTimeout
)

// ErrInvalidLocator is returned for empty or foreign locators.
var ErrInvalidLocator = remote.ErrInvalidLocator

// NetworkError describes a failed transfer.
type NetworkError = transfer.NetworkError
