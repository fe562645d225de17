// Package blobstore defines the durable key-value blob contract used by
// offcache for the outbox journal and cold-start cache snapshots.
//
// Implementations MUST be byte-for-byte transparent: Load must return exactly
// the same []byte previously passed to Save for a key (no prepended metadata,
// no re-encoding). If a store performs internal transforms (e.g., compression)
// they MUST be fully reversed.
//
// Blobs are durable until deleted; unlike a cache, implementations must not
// evict under pressure. A lost blob means lost user intent.
package blobstore

import "context"

// Store is a minimal durable blob store. Must be safe for concurrent use.
type Store interface {
	// Save durably stores blob under key, replacing any prior blob.
	Save(ctx context.Context, key string, blob []byte) error

	// Load returns (blob, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO error happens, return (nil, false, err).
	Load(ctx context.Context, key string) ([]byte, bool, error)

	// Delete removes a key (best-effort; missing keys are not an error).
	Delete(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}
