//go:build integration

package integration

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/mediacache"
	"github.com/meigma/mediacache/internal/testutil"
	"github.com/meigma/mediacache/remote/oci"
)

func newOCIStore(t *testing.T) *oci.Store {
	t.Helper()
	addr := getRegistry(t)
	store, err := oci.New(addr+"/test/"+strings.ToLower(t.Name()), oci.WithPlainHTTP(true), oci.WithAnonymous())
	require.NoError(t, err)
	return store
}

func TestOCIRoundTrip(t *testing.T) {
	t.Parallel()
	store := newOCIStore(t)
	ctx := context.Background()

	data := []byte("registry blob")
	locator, err := store.StoreBytes(ctx, data, "a.jpg", "image/jpeg")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(locator, store.Repository()+"@sha256:"), locator)

	again, err := store.StoreBytes(ctx, data, "b.jpg", "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, locator, again, "identical content has one locator")

	got, err := store.FetchBytes(ctx, locator)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NoError(t, store.DeleteBytes(ctx, locator))
	_, err = store.FetchBytes(ctx, locator)
	require.Error(t, err)
	require.NoError(t, store.DeleteBytes(ctx, locator), "deleting a missing blob succeeds")
}

func TestOCICoordinator(t *testing.T) {
	t.Parallel()
	store := newOCIStore(t)
	ctx := context.Background()

	c := newCoordinator(t, store)
	raw := testutil.JPEG(t, testutil.Gradient(1600, 1200), 90)
	locator, err := c.PublishImage(ctx, raw, "listing/")
	require.NoError(t, err)

	fresh := newCoordinator(t, store)
	data, err := fresh.LoadImage(ctx, locator)
	require.NoError(t, err)

	published, err := store.FetchBytes(ctx, locator)
	require.NoError(t, err)
	assert.Equal(t, published, data)

	_, err = fresh.LoadImage(ctx, store.Repository()+"@sha256:"+strings.Repeat("0", 64))
	require.ErrorIs(t, err, mediacache.ErrStatus)
}
