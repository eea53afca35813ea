package mediacache

import (
	"errors"
	"log/slog"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/meigma/mediacache/cache"
	"github.com/meigma/mediacache/cache/disk"
	"github.com/meigma/mediacache/pipeline"
	"github.com/meigma/mediacache/transfer"
)

// Option configures a Coordinator.
type Option func(*Coordinator) error

// WithLogger sets the logger for cache and transfer diagnostics.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) error {
		c.logger = logger
		return nil
	}
}

// --- Tier Options ---

// WithMemoryStore replaces the default in-memory tier.
func WithMemoryStore(store cache.Store) Option {
	return func(c *Coordinator) error {
		if store == nil {
			return errors.New("mediacache: nil memory store")
		}
		c.memory = store
		return nil
	}
}

// WithDiskStore sets the on-disk tier. Without a disk tier, misses in
// memory go straight to the remote store.
func WithDiskStore(store cache.Store) Option {
	return func(c *Coordinator) error {
		c.disk = store
		return nil
	}
}

// WithCacheDir opens a disk tier rooted at dir.
func WithCacheDir(dir string, opts ...disk.Option) Option {
	return func(c *Coordinator) error {
		store, err := disk.New(dir, opts...)
		if err != nil {
			return err
		}
		c.disk = store
		return nil
	}
}

// --- Pipeline and Transfer Options ---

// WithPipelineOptions configures how PublishImage prepares images.
func WithPipelineOptions(opts ...pipeline.Option) Option {
	return func(c *Coordinator) error {
		for _, opt := range opts {
			opt(&c.pipeline)
		}
		return c.pipeline.Validate()
	}
}

// WithTransferOptions configures the transfer client, e.g. its resource
// timeout or an observer.
func WithTransferOptions(opts ...transfer.Option) Option {
	return func(c *Coordinator) error {
		c.transferOpts = append(c.transferOpts, opts...)
		return nil
	}
}

// WithContentType overrides the content type sent with uploads. By default
// it follows the prepared image format.
func WithContentType(contentType string) Option {
	return func(c *Coordinator) error {
		c.contentType = contentType
		return nil
	}
}

// WithPublishRetry retries failed uploads up to n more times with
// exponential backoff. Only timeouts, connectivity failures, 429 and 5xx
// responses are retried. The default is no retry.
func WithPublishRetry(n int) Option {
	return func(c *Coordinator) error {
		if n < 0 {
			return errors.New("mediacache: publish retries must be >= 0")
		}
		c.publishRetries = n
		return nil
	}
}

// WithPreloadConcurrency bounds concurrent fetches in PreloadAll.
// Values < 1 use GOMAXPROCS.
func WithPreloadConcurrency(n int) Option {
	return func(c *Coordinator) error {
		if n < 1 {
			n = runtime.GOMAXPROCS(0)
		}
		c.preloadWorkers = n
		return nil
	}
}

// WithMetrics registers the coordinator's collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Coordinator) error {
		m, err := NewMetrics(reg)
		if err != nil {
			return err
		}
		c.metrics = m
		return nil
	}
}
