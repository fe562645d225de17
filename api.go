package offcache

import (
	"context"
	"time"

	c "github.com/tradewire/offcache/blobstore"
	cd "github.com/tradewire/offcache/codec"
)

// Fetcher loads a value from the backend for a parameter set. It must be
// idempotent and safe to call repeatedly for the same params; the engine may
// retry it. The ctx it receives is detached from any single caller and
// bounded by Options.FetchTimeout.
type Fetcher[V any] func(ctx context.Context, params []string) (V, error)

// SyntheticFunc produces a renderable placeholder for a parameter set when
// neither a fresh nor a stale entry exists. Deterministic output is
// recommended so UIs do not flicker between retries.
type SyntheticFunc[V any] func(params []string) V

// Result is what Get hands back: always a well-typed value plus provenance.
type Result[V any] struct {
	Value     V
	Origin    Origin
	FetchedAt time.Time
}

// Stats is a point-in-time view of the cache for operational visibility.
type Stats struct {
	EntryCount      int
	OldestEntryAge  time.Duration
	Hits            uint64
	Misses          uint64
	StaleServed     uint64
	SyntheticServed uint64
}

// Cache is the per-domain read cache. Construct one instance per request
// kind at application start and share it; all coordination happens behind
// these methods.
type Cache[V any] interface {
	// Get returns a value for params, coalescing concurrent callers for the
	// same canonical key into one fetch. It never surfaces a fetch error:
	// failures degrade to a stale entry or a synthetic value, visible via
	// Result.Origin. The only error returned is ctx.Err() when the calling
	// context is cancelled while awaiting a shared fetch.
	Get(ctx context.Context, params []string, fetch Fetcher[V]) (Result[V], error)

	Stats() Stats
	Clear()

	// SaveSnapshot / LoadSnapshot persist and restore entries through
	// Options.SnapshotStore. No-ops when no store is configured. A corrupt
	// snapshot is discarded (never an error); only store IO fails.
	SaveSnapshot(ctx context.Context) error
	LoadSnapshot(ctx context.Context) error

	// Close stops background maintenance and best-effort saves a snapshot
	// when a store is configured.
	Close(ctx context.Context) error
}

// Options tune a cache instance. Only Namespace is required.
type Options[V any] struct {
	// Required. Logical data domain, e.g. "quotes", "options", "portfolio".
	// Also the key prefix, so two instances never collide in one store.
	Namespace string

	DefaultTTL   time.Duration // freshness window; 0 => 10s
	FetchTimeout time.Duration // per-fetch bound; 0 => 5s

	// Synthetic builds the last-resort fallback value. If nil, the zero V is
	// served with OriginSynthetic.
	Synthetic SyntheticFunc[V]

	Logger Logger // if nil, NopLogger
	Hooks  Hooks  // if nil, NopHooks

	// Optional cold-start snapshot persistence. Both must be set together.
	SnapshotStore      c.Store
	SnapshotCodec      cd.Codec[V]
	MaxSnapshotEntries int // cap on persisted entries; 0 => 256

	// Retention for expired entries kept for stale fallback, and how often
	// the sweep runs. 0 => 24h retention, 1h sweep.
	StaleRetention  time.Duration
	CleanupInterval time.Duration

	// Disabled bypasses storage and coalescing entirely: every Get goes to
	// the fetcher, still with synthetic fallback. For tests and kill switches.
	Disabled bool
}

func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache[V](opts)
}
