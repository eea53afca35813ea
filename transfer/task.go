package transfer

import (
	"context"
	"time"
)

// Direction identifies which way a transfer moves bytes.
type Direction uint8

// Transfer directions.
const (
	Download Direction = iota + 1
	Upload
	Delete
)

func (d Direction) String() string {
	switch d {
	case Download:
		return "download"
	case Upload:
		return "upload"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Status is the lifecycle state of a Task.
type Status uint8

// Task states. A task moves Pending -> InFlight -> Succeeded or Failed.
const (
	Pending Status = iota
	InFlight
	Succeeded
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case InFlight:
		return "in_flight"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Task describes one transfer as it moves through its states. Tasks are
// created per call and are never persisted.
type Task struct {
	Direction Direction

	// Target is the locator for downloads and deletes, and the destination
	// hint for uploads.
	Target string

	Status Status

	// Attempt is 1 for a first try. Callers that retry mark later attempts
	// with WithAttempt.
	Attempt int

	// Bytes is the payload size once known.
	Bytes int

	// Elapsed is set on the terminal transition.
	Elapsed time.Duration

	// Err is set when Status is Failed.
	Err error
}

// Observer receives task transitions. Implementations must be safe for
// concurrent calls.
type Observer func(Task)

type attemptKey struct{}

// WithAttempt marks ctx as carrying the given retry attempt number.
func WithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey{}, attempt)
}

func attemptFrom(ctx context.Context) int {
	if n, ok := ctx.Value(attemptKey{}).(int); ok && n > 0 {
		return n
	}
	return 1
}
