package offcache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tradewire/offcache/blobstore"
	"github.com/tradewire/offcache/codec"
	"github.com/tradewire/offcache/internal/keys"
	"github.com/tradewire/offcache/internal/wire"
)

const (
	defaultTTL          = 10 * time.Second
	defaultFetchTimeout = 5 * time.Second
	defaultRetention    = 24 * time.Hour
	defaultSweep        = time.Hour
	defaultSnapEntries  = 256
)

// entry is the single stored record per key. Expired entries are kept (up to
// StaleRetention) so a failed fetch can fall back to them.
type entry[V any] struct {
	value     V
	fetchedAt time.Time
	origin    Origin
}

type cache[V any] struct {
	ns           string
	ttl          time.Duration
	fetchTimeout time.Duration
	synthetic    SyntheticFunc[V]
	log          Logger
	hooks        Hooks
	enabled      bool

	snapStore blobstore.Store
	snapCodec codec.Codec[V]
	maxSnap   int
	retention time.Duration

	mu      sync.RWMutex
	entries map[string]entry[V]

	// flight coalesces concurrent Gets per key: exactly one fetch in flight,
	// all callers observe its result. Handles are torn down when the fetch
	// settles, never by an individual caller losing interest.
	flight singleflight.Group

	hits, misses, staleServed, syntheticServed atomic.Uint64

	ticker    *time.Ticker
	stopCh    chan struct{}
	closeWg   sync.WaitGroup
	closeOnce sync.Once
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Namespace == "" {
		return nil, fmt.Errorf("offcache: namespace is required")
	}
	if (opts.SnapshotStore == nil) != (opts.SnapshotCodec == nil) {
		return nil, fmt.Errorf("offcache: SnapshotStore and SnapshotCodec must be set together")
	}

	c := &cache[V]{
		ns:        opts.Namespace,
		synthetic: opts.Synthetic,
		snapStore: opts.SnapshotStore,
		snapCodec: opts.SnapshotCodec,
		entries:   make(map[string]entry[V]),
		enabled:   !opts.Disabled,
	}

	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.ttl = coalesce[time.Duration](opts.DefaultTTL, defaultTTL)
	c.fetchTimeout = coalesce[time.Duration](opts.FetchTimeout, defaultFetchTimeout)
	c.retention = coalesce[time.Duration](opts.StaleRetention, defaultRetention)
	c.maxSnap = coalesce[int](opts.MaxSnapshotEntries, defaultSnapEntries)
	sweep := coalesce[time.Duration](opts.CleanupInterval, defaultSweep)

	if c.enabled {
		c.ticker = time.NewTicker(sweep)
		c.stopCh = make(chan struct{})
		c.closeWg.Add(1)
		go c.sweepLoop()
	}
	return c, nil
}

func (c *cache[V]) Get(ctx context.Context, params []string, fetch Fetcher[V]) (Result[V], error) {
	if !c.enabled {
		return c.refresh("", params, fetch), nil
	}

	key := keys.Canonical(c.ns, params)

	if e, ok := c.lookup(key); ok {
		if Evaluate(time.Since(e.fetchedAt), c.ttl) == Fresh {
			c.hits.Add(1)
			return Result[V]{Value: e.value, Origin: e.origin, FetchedAt: e.fetchedAt}, nil
		}
	}
	c.misses.Add(1)

	ch := c.flight.DoChan(key, func() (any, error) {
		return c.refresh(key, params, fetch), nil
	})

	select {
	case res := <-ch:
		return res.Val.(Result[V]), nil
	case <-ctx.Done():
		// the shared fetch keeps running for remaining callers
		return Result[V]{}, ctx.Err()
	}
}

// refresh runs the single underlying fetch for a key and picks the fallback
// tier on failure: stale entry first, synthetic last. It never errors.
// The fetch context is detached from callers so cancellation of one caller
// cannot abort a fetch others are awaiting.
func (c *cache[V]) refresh(key string, params []string, fetch Fetcher[V]) Result[V] {
	fctx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
	defer cancel()

	v, err := fetch(fctx, params)
	if err == nil {
		now := time.Now()
		if c.enabled {
			c.store(key, entry[V]{value: v, fetchedAt: now, origin: OriginNetwork})
		}
		return Result[V]{Value: v, Origin: OriginNetwork, FetchedAt: now}
	}

	c.hooks.FetchFailed(key, err)
	c.log.Warn("fetch failed", Fields{"key": key, "err": err})

	if c.enabled {
		if e, ok := c.lookup(key); ok {
			age := time.Since(e.fetchedAt)
			c.staleServed.Add(1)
			c.hooks.StaleServed(key, age)
			c.log.Debug("serving stale entry", Fields{"key": key, "age": age})
			return Result[V]{Value: e.value, Origin: OriginStale, FetchedAt: e.fetchedAt}
		}
	}

	c.syntheticServed.Add(1)
	c.hooks.SyntheticServed(key)
	var sv V
	if c.synthetic != nil {
		sv = c.synthetic(params)
	}
	return Result[V]{Value: sv, Origin: OriginSynthetic, FetchedAt: time.Now()}
}

func (c *cache[V]) lookup(key string) (entry[V], bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	return e, ok
}

// store replaces (never merges) the prior entry for key.
func (c *cache[V]) store(key string, e entry[V]) {
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

func (c *cache[V]) Stats() Stats {
	s := Stats{
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		StaleServed:     c.staleServed.Load(),
		SyntheticServed: c.syntheticServed.Load(),
	}
	now := time.Now()
	c.mu.RLock()
	s.EntryCount = len(c.entries)
	for _, e := range c.entries {
		if age := now.Sub(e.fetchedAt); age > s.OldestEntryAge {
			s.OldestEntryAge = age
		}
	}
	c.mu.RUnlock()
	return s
}

func (c *cache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry[V])
	c.mu.Unlock()
}

func (c *cache[V]) SaveSnapshot(ctx context.Context) error {
	if c.snapStore == nil || !c.enabled {
		return nil
	}

	c.mu.RLock()
	all := make([]struct {
		key string
		e   entry[V]
	}, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, struct {
			key string
			e   entry[V]
		}{k, e})
	}
	c.mu.RUnlock()

	// newest first; cap at maxSnap so snapshots stay small on device
	sort.Slice(all, func(i, j int) bool { return all[i].e.fetchedAt.After(all[j].e.fetchedAt) })
	if len(all) > c.maxSnap {
		all = all[:c.maxSnap]
	}

	entries := make([]wire.SnapshotEntry, 0, len(all))
	for _, it := range all {
		payload, err := c.snapCodec.Encode(it.e.value)
		if err != nil {
			c.log.Warn("snapshot encode skipped entry", Fields{"key": it.key, "err": err})
			continue
		}
		entries = append(entries, wire.SnapshotEntry{
			Key:       it.key,
			FetchedAt: it.e.fetchedAt.UnixNano(),
			Origin:    byte(it.e.origin),
			Payload:   payload,
		})
	}

	blob := wire.EncodeSnapshot(entries)
	if err := c.snapStore.Save(ctx, c.snapshotKey(), blob); err != nil {
		c.hooks.PersistError(c.snapshotKey(), err)
		return &SnapshotError{Key: c.snapshotKey(), Op: "save", Err: err}
	}
	c.log.Debug("snapshot saved", Fields{"entries": len(entries)})
	return nil
}

func (c *cache[V]) LoadSnapshot(ctx context.Context) error {
	if c.snapStore == nil || !c.enabled {
		return nil
	}

	blob, ok, err := c.snapStore.Load(ctx, c.snapshotKey())
	if err != nil {
		return &SnapshotError{Key: c.snapshotKey(), Op: "load", Err: err}
	}
	if !ok {
		return nil
	}

	records, err := wire.DecodeSnapshot(blob)
	if err != nil {
		// corrupt snapshot: start empty, self-heal the blob
		c.hooks.CorruptDiscarded(c.snapshotKey(), err)
		c.log.Warn("corrupt snapshot discarded", Fields{"key": c.snapshotKey(), "err": err})
		_ = c.snapStore.Delete(ctx, c.snapshotKey())
		return nil
	}

	restored := 0
	c.mu.Lock()
	for _, r := range records {
		v, err := c.snapCodec.Decode(r.Payload)
		if err != nil {
			continue // skip undecodable entries, keep the rest
		}
		c.entries[r.Key] = entry[V]{
			value:     v,
			fetchedAt: time.Unix(0, r.FetchedAt),
			origin:    Origin(r.Origin),
		}
		restored++
	}
	c.mu.Unlock()

	c.log.Debug("snapshot loaded", Fields{"entries": restored})
	return nil
}

func (c *cache[V]) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		if c.stopCh != nil {
			close(c.stopCh)
			c.closeWg.Wait()
			c.ticker.Stop()
		}
		err = c.SaveSnapshot(ctx)
	})
	return err
}

func (c *cache[V]) snapshotKey() string { return "snapshot:" + c.ns }

func (c *cache[V]) sweepLoop() {
	defer c.closeWg.Done()
	for {
		select {
		case <-c.ticker.C:
			c.sweep()
		case <-c.stopCh:
			return
		}
	}
}

// sweep drops entries that are past TTL plus the stale-retention window.
// Within the window expired entries stay put: they are the stale fallback.
func (c *cache[V]) sweep() {
	cutoff := time.Now().Add(-(c.ttl + c.retention))
	removed := 0

	c.mu.Lock()
	for k, e := range c.entries {
		if e.fetchedAt.Before(cutoff) {
			delete(c.entries, k)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.log.Debug("sweep removed aged-out entries", Fields{"removed": removed})
	}
}
