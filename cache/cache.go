// Package cache defines the storage tiers used by the media cache.
//
// Tiers are best-effort: a tier that cannot serve a read reports a miss, and
// a tier that cannot accept a write is skipped. The coordinator above them
// owns entry lifecycle; tiers never create entries on their own.
package cache

import "github.com/meigma/mediacache/key"

// Store is a single cache tier holding raw byte blobs by key.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the blob stored under k.
	// Returns nil, false on a miss or when the tier cannot be read.
	Get(k key.Key) ([]byte, bool)

	// Put stores data under k, replacing any existing entry.
	Put(k key.Key, data []byte) error

	// Delete removes the entry for k.
	// Missing entries are a no-op.
	Delete(k key.Key) error

	// Clear removes every entry in the tier.
	Clear() error
}

// Tier names a cache tier for logging and metrics.
type Tier string

const (
	TierMemory Tier = "memory"
	TierDisk   Tier = "disk"
	TierRemote Tier = "remote"
)
