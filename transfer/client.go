// Package transfer moves bytes between the caches and a remote.Store.
//
// A Client applies a resource timeout to every transfer, classifies failures
// into NetworkError kinds, and reports each transfer to an optional
// observer. It never retries; retry policy belongs to the caller.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meigma/mediacache/remote"
)

// DefaultResourceTimeout bounds a whole transfer, including the body.
const DefaultResourceTimeout = 60 * time.Second

// Client performs uploads, downloads and deletes against a remote.Store.
type Client struct {
	store           remote.Store
	resourceTimeout time.Duration
	observers       []Observer
	logger          *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithResourceTimeout sets the deadline for a whole transfer.
// Values <= 0 disable the limit; the caller's context still applies.
func WithResourceTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.resourceTimeout = d
	}
}

// WithObserver registers fn to receive task transitions. Observers
// accumulate and are called in registration order.
func WithObserver(fn Observer) Option {
	return func(c *Client) {
		if fn != nil {
			c.observers = append(c.observers, fn)
		}
	}
}

// WithLogger sets the logger for transfer diagnostics.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Client over store.
func New(store remote.Store, opts ...Option) *Client {
	c := &Client{
		store:           store,
		resourceTimeout: DefaultResourceTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// log returns the configured logger or a no-op logger if none was set.
func (c *Client) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.New(slog.DiscardHandler)
}

// Download fetches the complete object at locator.
func (c *Client) Download(ctx context.Context, locator string) ([]byte, error) {
	var data []byte
	err := c.run(ctx, Download, locator, 0, func(ctx context.Context) (int, error) {
		var err error
		data, err = c.store.FetchBytes(ctx, locator)
		return len(data), err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Upload stores data at a location derived from destinationHint and returns
// the backend's locator for it.
func (c *Client) Upload(ctx context.Context, data []byte, destinationHint, contentType string) (string, error) {
	var locator string
	err := c.run(ctx, Upload, destinationHint, len(data), func(ctx context.Context) (int, error) {
		var err error
		locator, err = c.store.StoreBytes(ctx, data, destinationHint, contentType)
		return len(data), err
	})
	if err != nil {
		return "", err
	}
	return locator, nil
}

// Delete removes the object at locator.
func (c *Client) Delete(ctx context.Context, locator string) error {
	return c.run(ctx, Delete, locator, 0, func(ctx context.Context) (int, error) {
		return 0, c.store.DeleteBytes(ctx, locator)
	})
}

func (c *Client) run(ctx context.Context, dir Direction, target string, size int, fn func(context.Context) (int, error)) error {
	if dir != Upload && target == "" {
		return fmt.Errorf("transfer: %s: %w", dir, remote.ErrInvalidLocator)
	}

	task := Task{Direction: dir, Target: target, Attempt: attemptFrom(ctx), Bytes: size}
	c.notify(task)

	if c.resourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.resourceTimeout)
		defer cancel()
	}

	start := time.Now()
	task.Status = InFlight
	c.notify(task)

	n, err := fn(ctx)
	task.Elapsed = time.Since(start)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil && !errors.Is(err, cerr) {
			err = fmt.Errorf("%w: %w", cerr, err)
		}
		err = classify(dir, target, err)
		task.Status = Failed
		task.Err = err
		c.notify(task)
		c.log().Debug("transfer failed",
			"direction", dir.String(),
			"locator", target,
			"attempt", task.Attempt,
			"error", err)
		return err
	}

	task.Status = Succeeded
	task.Bytes = n
	c.notify(task)
	c.log().Debug("transfer complete",
		"direction", dir.String(),
		"locator", target,
		"bytes", n,
		"elapsed", task.Elapsed)
	return nil
}

func (c *Client) notify(t Task) {
	for _, fn := range c.observers {
		fn(t)
	}
}
