package disk

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/mediacache/key"
)

func TestCachePutGet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir)
	require.NoError(t, err)

	k := key.New("https://cdn.example.com/a.jpg")
	require.NoError(t, c.Put(k, []byte("hello")))

	got, ok := c.Get(k)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), got)
	assert.Equal(t, int64(5), c.SizeBytes())

	hexKey := k.Hex()
	path := filepath.Join(dir, hexKey[:defaultShardPrefixLen], hexKey)
	_, err = os.Stat(path)
	require.NoError(t, err, "expected cache file at %s", path)
}

func TestCacheMiss(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir())
	require.NoError(t, err)

	got, ok := c.Get(key.New("missing"))
	assert.False(t, ok)
	assert.Nil(t, got)

	_, ok = c.Get(key.Key{})
	assert.False(t, ok)
	assert.Error(t, c.Put(key.Key{}, []byte("x")))
}

func TestCacheOverwrite(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir())
	require.NoError(t, err)

	k := key.New("a")
	require.NoError(t, c.Put(k, []byte("first version")))
	require.NoError(t, c.Put(k, []byte("second")))

	got, ok := c.Get(k)
	require.True(t, ok)
	assert.Equal(t, []byte("second"), got)
	assert.Equal(t, int64(len("second")), c.SizeBytes())
}

func TestCacheShardDisable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir, WithShardPrefixLen(0))
	require.NoError(t, err)

	k := key.New("flat")
	require.NoError(t, c.Put(k, []byte("flat")))

	_, err = os.Stat(filepath.Join(dir, k.Hex()))
	require.NoError(t, err)
}

func TestCacheDeleteClear(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir)
	require.NoError(t, err)

	k1, k2 := key.New("1"), key.New("2")
	require.NoError(t, c.Put(k1, []byte("one")))
	require.NoError(t, c.Put(k2, []byte("two")))

	require.NoError(t, c.Delete(k1))
	require.NoError(t, c.Delete(k1), "deleting a missing entry is a no-op")
	_, ok := c.Get(k1)
	assert.False(t, ok)
	assert.Equal(t, int64(3), c.SizeBytes())

	require.NoError(t, c.Clear())
	_, ok = c.Get(k2)
	assert.False(t, ok)
	assert.Equal(t, int64(0), c.SizeBytes())

	info, err := os.Stat(dir)
	require.NoError(t, err, "clear must recreate the directory")
	assert.True(t, info.IsDir())

	require.NoError(t, c.Put(k2, []byte("again")))
	_, ok = c.Get(k2)
	assert.True(t, ok)
}

func TestCacheSurvivesReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, c.Put(key.New("persist"), []byte("persisted")))

	reopened, err := New(dir)
	require.NoError(t, err)
	got, ok := reopened.Get(key.New("persist"))
	require.True(t, ok)
	assert.Equal(t, []byte("persisted"), got)
	assert.Equal(t, int64(len("persisted")), reopened.SizeBytes())
}

func TestCacheIgnoresLeftoverTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir)
	require.NoError(t, err)

	k := key.New("crash")
	require.NoError(t, c.Put(k, []byte("complete")))

	// Simulate a writer that died after creating its temp file.
	shard := filepath.Join(dir, k.Hex()[:defaultShardPrefixLen])
	tmp, err := os.CreateTemp(shard, tempPattern)
	require.NoError(t, err)
	_, err = tmp.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	got, ok := c.Get(k)
	require.True(t, ok)
	assert.Equal(t, []byte("complete"), got)

	reopened, err := New(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(len("complete")), reopened.SizeBytes())
}

func TestCacheConcurrentWritersNeverExposePartialFiles(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir())
	require.NoError(t, err)

	k := key.New("contended")
	versionA := bytes.Repeat([]byte{'a'}, 256<<10)
	versionB := bytes.Repeat([]byte{'b'}, 128<<10)
	require.NoError(t, c.Put(k, versionA))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			content := versionA
			if i%2 == 1 {
				content = versionB
			}
			for {
				select {
				case <-stop:
					return
				default:
				}
				_ = c.Put(k, content)
			}
		}()
	}

	for range 200 {
		got, ok := c.Get(k)
		if !ok {
			continue
		}
		if !bytes.Equal(got, versionA) && !bytes.Equal(got, versionB) {
			close(stop)
			wg.Wait()
			t.Fatalf("observed partial content of length %d", len(got))
		}
	}
	close(stop)
	wg.Wait()
}

func TestCacheMaxBytesEvictsOldest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir, WithMaxBytes(30))
	require.NoError(t, err)

	a, b, cc, d := key.New("A"), key.New("B"), key.New("C"), key.New("D")
	for _, k := range []key.Key{a, b, cc} {
		require.NoError(t, c.Put(k, bytes.Repeat([]byte{'x'}, 10)))
	}

	past := time.Now().Add(-time.Hour)
	for i, k := range []key.Key{a, b, cc} {
		path, err := c.path(k)
		require.NoError(t, err)
		ts := past.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(path, ts, ts))
	}

	// Reading A makes it the most recently used entry.
	_, ok := c.Get(a)
	require.True(t, ok)

	require.NoError(t, c.Put(d, bytes.Repeat([]byte{'y'}, 10)))

	_, ok = c.Get(b)
	assert.False(t, ok, "oldest entry should be swept")
	for _, k := range []key.Key{a, cc, d} {
		_, ok := c.Get(k)
		assert.True(t, ok)
	}
	assert.LessOrEqual(t, c.SizeBytes(), int64(30))
}

func TestCacheMaxBytesSkipsOversized(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir(), WithMaxBytes(8))
	require.NoError(t, err)

	require.NoError(t, c.Put(key.New("big"), bytes.Repeat([]byte{'x'}, 9)))
	_, ok := c.Get(key.New("big"))
	assert.False(t, ok)
}

func TestCachePrune(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir())
	require.NoError(t, err)
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, c.Put(key.New(id), bytes.Repeat([]byte{'z'}, 100)))
	}

	freed, err := c.Prune(150)
	require.NoError(t, err)
	assert.Equal(t, int64(200), freed)
	assert.Equal(t, int64(100), c.SizeBytes())
}

func TestCacheZstd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir, WithCompression(CompressionZstd))
	require.NoError(t, err)

	k := key.New("compressed")
	content := bytes.Repeat([]byte("compressible "), 1000)
	require.NoError(t, c.Put(k, content))

	got, ok := c.Get(k)
	require.True(t, ok)
	assert.Equal(t, content, got)
	assert.Less(t, c.SizeBytes(), int64(len(content)))

	// A corrupt frame is treated as a miss.
	path, err := c.path(k)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))
	_, ok = c.Get(k)
	assert.False(t, ok)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New("")
	require.Error(t, err)

	_, err = New(t.TempDir(), WithShardPrefixLen(-1))
	require.Error(t, err)

	_, err = New(t.TempDir(), WithMaxBytes(-1))
	require.Error(t, err)

	_, err = New(t.TempDir(), WithCompression(Compression(9)))
	require.Error(t, err)
}
