package mediacache

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/mediacache/internal/testutil"
)

func TestPreloadAllIsolatesFailures(t *testing.T) {
	t.Parallel()

	store := testutil.NewRemote()
	ids := make([]string, 6)
	for i := range ids {
		ids[i] = fmt.Sprintf("mem://p/%d.jpg", i)
		if i%3 != 1 {
			store.Add(ids[i], []byte(ids[i]))
		}
	}
	c, mem, _ := newTestCoordinator(t, store, WithPreloadConcurrency(2))

	res, err := c.PreloadAll(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[0], ids[2], ids[3], ids[5]}, res.Loaded)
	assert.Empty(t, res.Skipped)
	require.Len(t, res.Failed, 2)
	assert.ErrorIs(t, res.Failed[ids[1]], ErrStatus)
	assert.ErrorIs(t, res.Failed[ids[4]], ErrStatus)
	assert.Equal(t, 4, mem.Len())

	// Preloaded items are served locally.
	_, err = c.LoadImage(context.Background(), ids[3])
	require.NoError(t, err)
	assert.Equal(t, 6, store.Fetches())
}

func TestPreloadAllCancelledBeforeStart(t *testing.T) {
	t.Parallel()

	store := testutil.NewRemote()
	c, _, _ := newTestCoordinator(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ids := []string{"mem://a", "mem://b"}
	res, err := c.PreloadAll(ctx, ids)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ids, res.Skipped)
	assert.Empty(t, res.Loaded)
	assert.Empty(t, res.Failed)
	assert.Zero(t, store.Fetches())
}

func TestPreloadAllStopsIssuingAfterCancel(t *testing.T) {
	t.Parallel()

	store := testutil.NewRemote()
	ids := make([]string, 20)
	for i := range ids {
		ids[i] = fmt.Sprintf("mem://q/%d", i)
		store.Add(ids[i], []byte("x"))
	}
	c, _, _ := newTestCoordinator(t, store, WithPreloadConcurrency(1))

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	store.FailFetch(func(string) error {
		if calls.Add(1) == 3 {
			cancel()
			time.Sleep(10 * time.Millisecond)
		}
		return nil
	})

	res, err := c.PreloadAll(ctx, ids)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Failed)
	// The third caller gives up on its in-flight fetch; nothing after it starts.
	assert.Equal(t, ids[:2], res.Loaded)
	assert.Equal(t, ids[2:], res.Skipped)
	assert.Equal(t, 3, store.Fetches())
}
