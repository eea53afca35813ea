package mediacache

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// BatchResult reports the outcome of PreloadAll per identifier, in input
// order.
type BatchResult struct {
	Loaded  []string
	Failed  map[string]error
	Skipped []string
}

type preloadState uint8

const (
	preloadSkipped preloadState = iota
	preloadLoaded
	preloadFailed
)

// PreloadAll loads every identifier into the tiers with bounded
// concurrency. A failed item does not affect the others; failures are
// logged and recorded in the result.
//
// When ctx ends, no new fetches start and the items never attempted are
// reported as skipped alongside ctx's error.
func (c *Coordinator) PreloadAll(ctx context.Context, identifiers []string) (BatchResult, error) {
	states := make([]preloadState, len(identifiers))
	errs := make([]error, len(identifiers))

	var g errgroup.Group
	g.SetLimit(c.preloadWorkers)
	for i, id := range identifiers {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if _, err := c.LoadImage(ctx, id); err != nil {
				if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
					return nil
				}
				states[i], errs[i] = preloadFailed, err
				c.log().Warn("preload failed", "identifier", id, "error", err)
				return nil
			}
			states[i] = preloadLoaded
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers record errors per item

	res := BatchResult{Failed: make(map[string]error)}
	for i, id := range identifiers {
		switch states[i] {
		case preloadLoaded:
			res.Loaded = append(res.Loaded, id)
		case preloadFailed:
			res.Failed[id] = errs[i]
		default:
			res.Skipped = append(res.Skipped, id)
		}
	}
	c.metrics.preload(res)
	c.log().Debug("preload finished",
		"loaded", len(res.Loaded),
		"failed", len(res.Failed),
		"skipped", len(res.Skipped))
	return res, ctx.Err()
}
