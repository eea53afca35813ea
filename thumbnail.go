package mediacache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/meigma/mediacache/key"
	"github.com/meigma/mediacache/pipeline"
)

// ThumbnailIdentifier is the cache identifier for a size-px thumbnail of
// identifier.
func ThumbnailIdentifier(identifier string, size int) string {
	return identifier + "#thumb=" + strconv.Itoa(size)
}

// Thumbnail returns a JPEG of identifier scaled to fit size x size. The
// thumbnail is cached in the tiers under [ThumbnailIdentifier].
func (c *Coordinator) Thumbnail(ctx context.Context, identifier string, size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("mediacache: thumbnail: %w: size %d", pipeline.ErrInvalidOptions, size)
	}
	tid := ThumbnailIdentifier(identifier, size)
	tk := key.New(tid)
	if data, ok := c.lookup(tk); ok {
		return data, nil
	}

	src, err := c.LoadImage(ctx, identifier)
	if err != nil {
		return nil, err
	}
	thumb, err := pipeline.Thumbnail(ctx, src, size)
	if err != nil {
		return nil, fmt.Errorf("mediacache: thumbnail: %w", err)
	}
	c.seed(tk, tid, thumb)
	return thumb, nil
}
