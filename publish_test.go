package mediacache

import (
	"context"
	"image"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/mediacache/cache/disk"
	"github.com/meigma/mediacache/internal/testutil"
	"github.com/meigma/mediacache/pipeline"
	"github.com/meigma/mediacache/remote"
	"github.com/meigma/mediacache/transfer"
)

func TestPublishThenLoadOffline(t *testing.T) {
	t.Parallel()

	store := testutil.NewRemote()
	dir := t.TempDir()
	c, err := New(store, WithCacheDir(dir))
	require.NoError(t, err)

	raw := testutil.JPEG(t, testutil.Gradient(2000, 1000), 95)
	locator, err := c.PublishImage(context.Background(), raw, "listings/7/")
	require.NoError(t, err)
	assert.Contains(t, locator, testutil.RemoteScheme+"listings/7/")

	uploaded, contentType, ok := store.Object(locator)
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", contentType)

	img, _, err := pipeline.Decode(uploaded)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 1024, 512), img.Bounds())

	store.FailFetch(func(string) error { return &remote.StatusError{Code: http.StatusServiceUnavailable} })

	data, err := c.LoadImage(context.Background(), locator)
	require.NoError(t, err)
	assert.Equal(t, uploaded, data)

	// A fresh coordinator over the same directory reads from disk.
	fresh, err := New(store, WithCacheDir(dir))
	require.NoError(t, err)
	data, err = fresh.LoadImage(context.Background(), locator)
	require.NoError(t, err)
	assert.Equal(t, uploaded, data)
	assert.Zero(t, store.Fetches())
}

func TestPublishRejectsBadInput(t *testing.T) {
	t.Parallel()

	store := testutil.NewRemote()
	reg := prometheus.NewRegistry()
	c, err := New(store, WithMetrics(reg), WithPipelineOptions(pipeline.WithMaxSizeBytes(100)))
	require.NoError(t, err)

	_, err = c.PublishImage(context.Background(), []byte("not an image"), "x/")
	require.ErrorIs(t, err, ErrInvalidImage)

	_, err = c.PublishImage(context.Background(), testutil.PNG(t, testutil.Noise(300, 300, 1)), "x/")
	require.ErrorIs(t, err, ErrTooLarge)

	assert.Zero(t, store.Stores())
	assert.InDelta(t, 1, promtest.ToFloat64(c.metrics.publishes.WithLabelValues("invalid_image")), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(c.metrics.publishes.WithLabelValues("too_large")), 0)
}

func TestPublishSeedFailureIsLoggedOnly(t *testing.T) {
	t.Parallel()

	store := testutil.NewRemote()
	c, err := New(store, WithDiskStore(brokenStore{}))
	require.NoError(t, err)

	raw := testutil.PNG(t, testutil.Gradient(64, 64))
	locator, err := c.PublishImage(context.Background(), raw, "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, testutil.RemoteScheme+"a.jpg", locator)

	_, err = c.LoadImage(context.Background(), locator)
	require.NoError(t, err)
	assert.Zero(t, store.Fetches(), "memory tier still seeded")
}

func TestPublishContentTypeOverride(t *testing.T) {
	t.Parallel()

	store := testutil.NewRemote()
	c, err := New(store,
		WithContentType("application/octet-stream"),
		WithPipelineOptions(pipeline.WithFormat(pipeline.FormatPNG)),
	)
	require.NoError(t, err)

	locator, err := c.PublishImage(context.Background(), testutil.PNG(t, testutil.Gradient(32, 32)), "b.png")
	require.NoError(t, err)
	_, contentType, ok := store.Object(locator)
	require.True(t, ok)
	assert.Equal(t, "application/octet-stream", contentType)
}

func TestPublishRetry(t *testing.T) {
	t.Parallel()

	raw := testutil.PNG(t, testutil.Gradient(32, 32))
	unavailable := &remote.StatusError{Code: http.StatusServiceUnavailable}
	forbidden := &remote.StatusError{Code: http.StatusForbidden}

	tests := []struct {
		name      string
		retries   int
		fail      func(n int) error
		wantErr   error
		wantCalls int
	}{
		{
			name:      "no retry by default",
			fail:      func(int) error { return unavailable },
			wantErr:   ErrStatus,
			wantCalls: 1,
		},
		{
			name:    "recovers from temporary failures",
			retries: 3,
			fail: func(n int) error {
				if n <= 2 {
					return unavailable
				}
				return nil
			},
			wantCalls: 3,
		},
		{
			name:      "gives up after budget",
			retries:   2,
			fail:      func(int) error { return unavailable },
			wantErr:   ErrStatus,
			wantCalls: 3,
		},
		{
			name:      "client errors are permanent",
			retries:   3,
			fail:      func(int) error { return forbidden },
			wantErr:   ErrStatus,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := testutil.NewRemote()
			store.FailStore(tt.fail)

			var attempts []int
			c, err := New(store,
				WithPublishRetry(tt.retries),
				WithTransferOptions(transfer.WithObserver(func(task transfer.Task) {
					if task.Status == transfer.Pending {
						attempts = append(attempts, task.Attempt)
					}
				})),
			)
			require.NoError(t, err)
			c.retryInterval = time.Millisecond

			_, err = c.PublishImage(context.Background(), raw, "r.jpg")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, store.Stores())
			assert.Len(t, attempts, tt.wantCalls)
			if tt.retries > 0 {
				assert.Equal(t, tt.wantCalls, attempts[len(attempts)-1])
			}
		})
	}
}

func TestPublishWithDiskCompression(t *testing.T) {
	t.Parallel()

	store := testutil.NewRemote()
	dir := t.TempDir()
	c, err := New(store, WithCacheDir(dir, disk.WithCompression(disk.CompressionZstd)))
	require.NoError(t, err)

	locator, err := c.PublishImage(context.Background(), testutil.PNG(t, testutil.Gradient(40, 40)), "z.jpg")
	require.NoError(t, err)
	uploaded, _, _ := store.Object(locator)

	fresh, err := New(store, WithCacheDir(dir, disk.WithCompression(disk.CompressionZstd)))
	require.NoError(t, err)
	data, err := fresh.LoadImage(context.Background(), locator)
	require.NoError(t, err)
	assert.Equal(t, uploaded, data)
	assert.Zero(t, store.Fetches())
}
