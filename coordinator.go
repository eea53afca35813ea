package mediacache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/meigma/mediacache/cache"
	"github.com/meigma/mediacache/cache/memory"
	"github.com/meigma/mediacache/key"
	"github.com/meigma/mediacache/pipeline"
	"github.com/meigma/mediacache/remote"
	"github.com/meigma/mediacache/transfer"
)

// defaultRetryInterval is the first backoff interval for publish retries.
const defaultRetryInterval = 500 * time.Millisecond

// Coordinator serves images from memory, then disk, then the remote store,
// and publishes prepared images to the remote store.
//
// Only the Coordinator writes to its tiers. It is safe for concurrent use.
type Coordinator struct {
	remote   remote.Store
	transfer *transfer.Client
	memory   cache.Store
	disk     cache.Store // nil disables the disk tier

	pipeline       pipeline.Options
	transferOpts   []transfer.Option
	contentType    string
	publishRetries int
	retryInterval  time.Duration
	preloadWorkers int

	metrics *Metrics
	logger  *slog.Logger

	downloads singleflight.Group
}

// New creates a Coordinator over store.
//
// The memory tier defaults to [memory.New] with its default budgets. There
// is no disk tier unless [WithCacheDir] or [WithDiskStore] is given.
func New(store remote.Store, opts ...Option) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("mediacache: nil remote store")
	}
	c := &Coordinator{
		remote:         store,
		memory:         memory.New(),
		pipeline:       pipeline.NewOptions(),
		retryInterval:  defaultRetryInterval,
		preloadWorkers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	topts := append([]transfer.Option{transfer.WithLogger(c.logger)}, c.transferOpts...)
	if c.metrics != nil {
		topts = append(topts, transfer.WithObserver(c.metrics.observeTransfer))
	}
	c.transfer = transfer.New(store, topts...)
	return c, nil
}

// log returns the configured logger or a no-op logger if none was set.
func (c *Coordinator) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.New(slog.DiscardHandler)
}

// LoadImage returns the bytes for identifier, a remote locator.
//
// Memory is consulted first, then disk (a hit is promoted to memory), then
// the remote store (the result is written through to disk and memory).
// Tier failures count as misses. Concurrent loads of the same identifier
// share one download; each caller still honours its own ctx.
//
// The returned slice may be shared with the cache and must not be modified.
func (c *Coordinator) LoadImage(ctx context.Context, identifier string) ([]byte, error) {
	if identifier == "" {
		return nil, fmt.Errorf("mediacache: load: %w", remote.ErrInvalidLocator)
	}
	k := key.New(identifier)
	if data, ok := c.lookup(k); ok {
		return data, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := c.downloads.DoChan(k.Hex(), func() (any, error) {
		// A Seed may have landed since the lookup above.
		if data, ok := c.recheck(k); ok {
			return data, nil
		}
		// Detached so one caller giving up does not fail the others; the
		// transfer client's resource timeout still bounds the download.
		data, err := c.transfer.Download(context.WithoutCancel(ctx), identifier)
		if err != nil {
			return nil, err
		}
		c.seed(k, identifier, data)
		return data, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			c.log().Debug("remote fetch failed", "identifier", identifier, "error", res.Err)
			return nil, res.Err
		}
		return res.Val.([]byte), nil //nolint:errcheck // the group only returns []byte
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// lookup checks memory then disk, promoting disk hits.
func (c *Coordinator) lookup(k key.Key) ([]byte, bool) {
	if data, ok := c.memory.Get(k); ok {
		c.metrics.lookup(cache.TierMemory, true)
		return data, true
	}
	c.metrics.lookup(cache.TierMemory, false)

	if c.disk == nil {
		return nil, false
	}
	data, ok := c.disk.Get(k)
	c.metrics.lookup(cache.TierDisk, ok)
	if !ok {
		return nil, false
	}
	c.putTier(cache.TierMemory, c.memory, k, data)
	return data, true
}

// recheck is lookup without metrics.
func (c *Coordinator) recheck(k key.Key) ([]byte, bool) {
	if data, ok := c.memory.Get(k); ok {
		return data, true
	}
	if c.disk == nil {
		return nil, false
	}
	data, ok := c.disk.Get(k)
	if ok {
		c.putTier(cache.TierMemory, c.memory, k, data)
	}
	return data, ok
}

// Seed writes data for identifier through to disk and memory, so a later
// LoadImage is served without the network.
func (c *Coordinator) Seed(identifier string, data []byte) {
	if identifier == "" {
		return
	}
	c.seed(key.New(identifier), identifier, data)
}

func (c *Coordinator) seed(k key.Key, identifier string, data []byte) {
	if c.disk != nil {
		c.putTier(cache.TierDisk, c.disk, k, data)
	}
	c.putTier(cache.TierMemory, c.memory, k, data)
	c.log().Debug("seeded", "identifier", identifier, "key", k.Hex(), "bytes", len(data))
}

func (c *Coordinator) putTier(tier cache.Tier, store cache.Store, k key.Key, data []byte) {
	if err := store.Put(k, data); err != nil {
		c.log().Warn("cache write failed", "tier", tier, "key", k.Hex(), "error", err)
	}
}

// Invalidate drops identifier from memory and disk. The remote object is
// untouched.
func (c *Coordinator) Invalidate(identifier string) {
	k := key.New(identifier)
	if err := c.memory.Delete(k); err != nil {
		c.log().Warn("cache delete failed", "tier", cache.TierMemory, "key", k.Hex(), "error", err)
	}
	if c.disk != nil {
		if err := c.disk.Delete(k); err != nil {
			c.log().Warn("cache delete failed", "tier", cache.TierDisk, "key", k.Hex(), "error", err)
		}
	}
}

// DeleteImage removes the object at locator from the remote store, then
// invalidates it locally. Cached thumbnails derived from it expire through
// normal eviction.
func (c *Coordinator) DeleteImage(ctx context.Context, locator string) error {
	if err := c.transfer.Delete(ctx, locator); err != nil {
		return err
	}
	c.Invalidate(locator)
	return nil
}

// ClearAll empties both tiers.
func (c *Coordinator) ClearAll() error {
	errs := []error{c.memory.Clear()}
	if c.disk != nil {
		errs = append(errs, c.disk.Clear())
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("mediacache: clear: %w", err)
	}
	return nil
}
