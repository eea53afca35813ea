package mediacache

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"

	"github.com/meigma/mediacache/pipeline"
	"github.com/meigma/mediacache/transfer"
)

// PublishImage prepares raw for upload, stores it remotely under
// destinationHint, and seeds the local tiers with the prepared bytes so the
// returned locator loads without the network.
//
// Failures to seed the tiers are logged and do not fail the publish.
func (c *Coordinator) PublishImage(ctx context.Context, raw []byte, destinationHint string) (string, error) {
	asset, err := pipeline.PrepareWith(ctx, raw, c.pipeline)
	if err != nil {
		c.metrics.publish(publishOutcome(err))
		return "", fmt.Errorf("mediacache: publish: %w", err)
	}

	contentType := c.contentType
	if contentType == "" {
		contentType = asset.ContentType()
	}

	locator, err := c.upload(ctx, asset.Bytes, destinationHint, contentType)
	if err != nil {
		c.metrics.publish("upload_failed")
		return "", fmt.Errorf("mediacache: publish: %w", err)
	}

	c.Seed(locator, asset.Bytes)
	c.metrics.publish("published")
	c.log().Info("published image",
		"locator", locator,
		"bytes", asset.SizeBytes,
		"width", asset.Width,
		"height", asset.Height)
	return locator, nil
}

// upload runs the transfer, retrying temporary failures when a retry budget
// is configured.
func (c *Coordinator) upload(ctx context.Context, data []byte, hint, contentType string) (string, error) {
	if c.publishRetries == 0 {
		return c.transfer.Upload(ctx, data, hint, contentType)
	}

	attempt := 0
	op := func() (string, error) {
		attempt++
		locator, err := c.transfer.Upload(transfer.WithAttempt(ctx, attempt), data, hint, contentType)
		if err == nil {
			return locator, nil
		}
		if !transfer.IsTemporary(err) {
			return "", backoff.Permanent(err)
		}
		c.log().Warn("upload failed, retrying", "attempt", attempt, "error", err)
		return "", err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.retryInterval
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.publishRetries)), ctx)
	return backoff.RetryWithData(op, policy)
}

func publishOutcome(err error) string {
	switch {
	case errors.Is(err, pipeline.ErrInvalidImage):
		return "invalid_image"
	case errors.Is(err, pipeline.ErrTooLarge):
		return "too_large"
	default:
		return "prepare_failed"
	}
}
