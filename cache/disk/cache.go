// Package disk provides a disk-backed cache tier.
//
// Each entry is one file named by the hex key, optionally sharded into
// subdirectories by key prefix. There is no index: the presence of a file
// is the index. Writes go to a temporary file in the target directory and
// are renamed into place, so concurrent readers observe either the previous
// complete file or the new complete file, never a partial one.
//
// The cache is unbounded unless WithMaxBytes is set.
package disk

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/meigma/mediacache/cache"
	"github.com/meigma/mediacache/key"
)

const (
	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o700
	defaultFilePerm       = 0o600
	tempPattern           = ".tmp-*"
)

// Compression selects how entries are stored at rest.
type Compression uint8

const (
	// CompressionNone stores entries as-is.
	CompressionNone Compression = iota
	// CompressionZstd stores entries as zstd frames.
	CompressionZstd
)

// Cache implements cache.Store using the local filesystem.
// The cache is safe for concurrent use.
type Cache struct {
	dir            string       // root directory for cached files
	shardPrefixLen int          // number of hex chars for subdirectory sharding
	dirPerm        os.FileMode  // permissions for created directories
	maxBytes       int64        // maximum cache size (0 = unlimited)
	compression    Compression  // at-rest encoding
	bytes          atomic.Int64 // current total size of cached files
	pruneMu        sync.Mutex   // serializes prune and clear
	enc            *zstd.Encoder
	dec            *zstd.Decoder
}

var _ cache.Store = (*Cache)(nil)

// Option configures a disk cache.
type Option func(*Cache)

// WithShardPrefixLen sets the number of hex characters used for sharding.
// Use 0 to disable sharding. Defaults to 2.
func WithShardPrefixLen(n int) Option {
	return func(c *Cache) {
		c.shardPrefixLen = n
	}
}

// WithDirPerm sets the directory permissions used for cache directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(c *Cache) {
		c.dirPerm = mode
	}
}

// WithMaxBytes bounds the cache size in bytes. When a Put would exceed the
// bound, least recently used files are removed first. Reads refresh a file's
// modification time so it counts as recently used.
// Values < 0 are invalid. Use 0 to disable the limit.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) {
		c.maxBytes = n
	}
}

// WithCompression sets the at-rest encoding for new entries.
func WithCompression(comp Compression) Option {
	return func(c *Cache) {
		c.compression = comp
	}
}

// New creates a disk-backed cache rooted at dir.
func New(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("cache dir is empty")
	}
	c := &Cache{
		dir:            dir,
		shardPrefixLen: defaultShardPrefixLen,
		dirPerm:        defaultDirPerm,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.shardPrefixLen < 0 {
		return nil, errors.New("shard prefix length must be >= 0")
	}
	if c.maxBytes < 0 {
		return nil, errors.New("max bytes must be >= 0")
	}
	switch c.compression {
	case CompressionNone:
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, err
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		c.enc, c.dec = enc, dec
	default:
		return nil, errors.New("unknown compression")
	}
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return nil, err
	}
	size, err := dirSize(dir)
	if err != nil {
		return nil, err
	}
	c.bytes.Store(size)
	return c, nil
}

// Dir returns the cache root directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Get returns the content stored under k.
// Missing, unreadable, or undecodable files are reported as a miss.
func (c *Cache) Get(k key.Key) ([]byte, bool) {
	path, err := c.path(k)
	if err != nil {
		return nil, false
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is derived from key, not user input
	if err != nil {
		return nil, false
	}
	if c.dec != nil {
		data, err = c.dec.DecodeAll(data, nil)
		if err != nil {
			return nil, false
		}
	}
	if c.maxBytes > 0 {
		now := time.Now()
		_ = os.Chtimes(path, now, now)
	}
	return data, true
}

// Put stores content under k, replacing any existing entry.
func (c *Cache) Put(k key.Key, content []byte) error {
	path, err := c.path(k)
	if err != nil {
		return err
	}
	if c.enc != nil {
		content = c.enc.EncodeAll(content, make([]byte, 0, len(content)))
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Chmod(defaultFilePerm); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	written := int64(len(content))
	if ok, err := c.ensureCapacity(written - fileSize(path)); err != nil {
		_ = os.Remove(tmpPath)
		return err
	} else if !ok {
		_ = os.Remove(tmpPath)
		return nil
	}

	previous := fileSize(path)
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	c.bytes.Add(written - previous)
	return nil
}

// Delete removes the entry for k.
func (c *Cache) Delete(k key.Key) error {
	path, err := c.path(k)
	if err != nil {
		return err
	}
	info, statErr := os.Stat(path)
	if statErr != nil {
		if errors.Is(statErr, os.ErrNotExist) {
			return nil
		}
		return statErr
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	c.bytes.Add(-info.Size())
	return nil
}

// Clear removes and recreates the cache directory.
func (c *Cache) Clear() error {
	c.pruneMu.Lock()
	defer c.pruneMu.Unlock()

	if err := os.RemoveAll(c.dir); err != nil {
		return err
	}
	c.bytes.Store(0)
	return os.MkdirAll(c.dir, c.dirPerm)
}

// MaxBytes returns the configured cache size limit (0 = unlimited).
func (c *Cache) MaxBytes() int64 {
	return c.maxBytes
}

// SizeBytes returns the current cache size in bytes.
func (c *Cache) SizeBytes() int64 {
	return c.bytes.Load()
}

// Prune removes least recently used entries until the cache is at or below
// targetBytes. It returns the number of bytes freed. Prune is safe to call
// from an external periodic sweep even when no size limit is configured.
func (c *Cache) Prune(targetBytes int64) (int64, error) {
	if targetBytes < 0 {
		targetBytes = 0
	}
	c.pruneMu.Lock()
	defer c.pruneMu.Unlock()

	freed, remaining, err := pruneDir(c.dir, targetBytes)
	if err != nil {
		return 0, err
	}
	c.bytes.Store(remaining)
	return freed, nil
}

func (c *Cache) path(k key.Key) (string, error) {
	if k.IsZero() {
		return "", errors.New("key is empty")
	}
	hexKey := k.Hex()
	if c.shardPrefixLen <= 0 {
		return filepath.Join(c.dir, hexKey), nil
	}
	prefixLen := min(c.shardPrefixLen, len(hexKey))
	return filepath.Join(c.dir, hexKey[:prefixLen], hexKey), nil
}

func (c *Cache) ensureCapacity(need int64) (bool, error) {
	if c.maxBytes <= 0 || need <= 0 {
		return true, nil
	}
	if need > c.maxBytes {
		return false, nil
	}
	if c.SizeBytes()+need <= c.maxBytes {
		return true, nil
	}
	if _, err := c.Prune(c.maxBytes - need); err != nil {
		return false, err
	}
	return c.SizeBytes()+need <= c.maxBytes, nil
}
