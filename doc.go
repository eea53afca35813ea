// Package mediacache turns user-selected photos into size-bounded remote
// assets and serves remote images from memory or disk without re-fetching.
//
// A [Coordinator] owns two cache tiers and a [remote.Store]:
//   - Memory: an LRU bounded by total bytes and entry count
//   - Disk: one file per key, written atomically, optionally size-bounded
//   - Remote: any backend from the remote subpackages (http, s3, oci)
//
// Identifiers are remote locators. They are hashed by the key package, so
// the same locator always maps to the same cache entry.
//
// # Loading
//
//	store, err := s3.New(s3.Config{Endpoint: "minio:9000", Bucket: "media", ...})
//	if err != nil {
//	    return err
//	}
//	c, err := mediacache.New(store,
//	    mediacache.WithCacheDir("/var/cache/mediacache"),
//	    mediacache.WithLogger(slog.Default()),
//	)
//	data, err := c.LoadImage(ctx, locator)
//
// # Publishing
//
// PublishImage decodes the photo, downscales it to at most 1024px on the
// longer side and compresses it below 10 MiB, uploads it, and seeds both
// tiers so the new locator loads offline:
//
//	locator, err := c.PublishImage(ctx, raw, "listings/42/")
//
// Failures surface as [ErrInvalidImage], [ErrTooLarge], or a
// [*NetworkError] matching [ErrConnectivity], [ErrStatus] or [ErrTimeout].
// Local storage failures are logged and never returned.
package mediacache
