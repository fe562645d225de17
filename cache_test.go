package offcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tradewire/offcache/blobstore"
	cd "github.com/tradewire/offcache/codec"
)

type memStore struct {
	mu       sync.Mutex
	m        map[string][]byte
	failSave bool
}

var _ blobstore.Store = (*memStore)(nil)

func newMemStore() *memStore { return &memStore{m: make(map[string][]byte)} }

func (s *memStore) Save(_ context.Context, key string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		return errors.New("disk full")
	}
	cp := make([]byte, len(blob))
	copy(cp, blob)
	s.m[key] = cp
	return nil
}

func (s *memStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.m[key]
	return b, ok, nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func (s *memStore) Close(_ context.Context) error { return nil }

type quoteBook struct {
	Prices map[string]float64 `json:"prices"`
}

func sampleBook(params []string) quoteBook {
	prices := make(map[string]float64, len(params))
	for _, p := range params {
		prices[p] = 0
	}
	return quoteBook{Prices: prices}
}

func newTestCache(t *testing.T, optsOpt func(*Options[quoteBook])) Cache[quoteBook] {
	t.Helper()
	opts := Options[quoteBook]{
		Namespace: "quotes",
		Synthetic: sampleBook,
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	cc, err := New[quoteBook](opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return cc
}

func bookFetcher(calls *atomic.Int64, gate <-chan struct{}) Fetcher[quoteBook] {
	return func(_ context.Context, params []string) (quoteBook, error) {
		calls.Add(1)
		if gate != nil {
			<-gate
		}
		prices := make(map[string]float64, len(params))
		for _, p := range params {
			prices[p] = 100 + float64(len(p))
		}
		return quoteBook{Prices: prices}, nil
	}
}

func failingFetcher(calls *atomic.Int64) Fetcher[quoteBook] {
	return func(_ context.Context, _ []string) (quoteBook, error) {
		calls.Add(1)
		return quoteBook{}, errors.New("upstream down")
	}
}

// TestFreshHitSkipsFetch verifies an entry younger than TTL is returned
// without another fetcher invocation, matching the stored value exactly.
func TestFreshHitSkipsFetch(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, func(o *Options[quoteBook]) { o.DefaultTTL = 10 * time.Second })
	defer cc.Close(ctx)

	var calls atomic.Int64
	fetch := bookFetcher(&calls, nil)

	first, err := cc.Get(ctx, []string{"AAPL"}, fetch)
	if err != nil || first.Origin != OriginNetwork {
		t.Fatalf("first Get: origin=%v err=%v", first.Origin, err)
	}

	second, err := cc.Get(ctx, []string{"AAPL"}, fetch)
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 fetch, got %d", got)
	}
	if second.Value.Prices["AAPL"] != first.Value.Prices["AAPL"] {
		t.Fatalf("cached value mismatch: %v vs %v", second.Value, first.Value)
	}
	if !second.FetchedAt.Equal(first.FetchedAt) {
		t.Fatalf("fresh hit should carry original FetchedAt")
	}
}

// TestCoalescingSingleFetch launches many concurrent Gets for permutations of
// the same symbol set and requires exactly one underlying fetch, with every
// caller observing the identical result.
func TestCoalescingSingleFetch(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, nil)
	defer cc.Close(ctx)

	var calls atomic.Int64
	gate := make(chan struct{})
	fetch := bookFetcher(&calls, gate)

	const n = 8
	perms := [][]string{
		{"MSFT", "AAPL"},
		{"AAPL", "MSFT"},
		{"AAPL", "MSFT", "AAPL"},
	}

	var started, done sync.WaitGroup
	results := make([]Result[quoteBook], n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		started.Add(1)
		done.Add(1)
		go func(i int) {
			defer done.Done()
			started.Done()
			results[i], errs[i] = cc.Get(ctx, perms[i%len(perms)], fetch)
		}(i)
	}
	started.Wait()
	time.Sleep(50 * time.Millisecond) // let all callers join the in-flight handle
	close(gate)
	done.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected exactly 1 fetch for %d callers, got %d", n, got)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i].Origin != OriginNetwork {
			t.Fatalf("caller %d: origin=%v", i, results[i].Origin)
		}
		if results[i].Value.Prices["AAPL"] != results[0].Value.Prices["AAPL"] ||
			results[i].Value.Prices["MSFT"] != results[0].Value.Prices["MSFT"] {
			t.Fatalf("caller %d saw a different value: %v", i, results[i].Value)
		}
	}
}

// TestTTLExpiryRefetchesOnce checks the next Get after expiry invokes the
// fetcher exactly once more.
func TestTTLExpiryRefetchesOnce(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, func(o *Options[quoteBook]) { o.DefaultTTL = 30 * time.Millisecond })
	defer cc.Close(ctx)

	var calls atomic.Int64
	fetch := bookFetcher(&calls, nil)

	if _, err := cc.Get(ctx, []string{"TSLA"}, fetch); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := cc.Get(ctx, []string{"TSLA"}, fetch); err != nil {
		t.Fatalf("Get within TTL: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 fetch within TTL, got %d", got)
	}

	time.Sleep(60 * time.Millisecond)
	res, err := cc.Get(ctx, []string{"TSLA"}, fetch)
	if err != nil || res.Origin != OriginNetwork {
		t.Fatalf("Get after expiry: origin=%v err=%v", res.Origin, err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 fetches after expiry, got %d", got)
	}
}

// TestStaleFallback: an expired entry plus a failing fetcher yields the prior
// value tagged STALE, never an error.
func TestStaleFallback(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, func(o *Options[quoteBook]) { o.DefaultTTL = 20 * time.Millisecond })
	defer cc.Close(ctx)

	var okCalls atomic.Int64
	first, err := cc.Get(ctx, []string{"NVDA"}, bookFetcher(&okCalls, nil))
	if err != nil {
		t.Fatalf("seed Get: %v", err)
	}

	time.Sleep(40 * time.Millisecond)

	var failCalls atomic.Int64
	res, err := cc.Get(ctx, []string{"NVDA"}, failingFetcher(&failCalls))
	if err != nil {
		t.Fatalf("Get with failing fetcher must not error: %v", err)
	}
	if res.Origin != OriginStale {
		t.Fatalf("expected OriginStale, got %v", res.Origin)
	}
	if res.Value.Prices["NVDA"] != first.Value.Prices["NVDA"] {
		t.Fatalf("stale value mismatch: %v vs %v", res.Value, first.Value)
	}
	if failCalls.Load() != 1 {
		t.Fatalf("expected failing fetcher to be tried once, got %d", failCalls.Load())
	}
}

// TestSyntheticFallback: no entry and a failing fetcher yields the synthetic
// placeholder, well-typed and tagged SYNTHETIC.
func TestSyntheticFallback(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, nil)
	defer cc.Close(ctx)

	var calls atomic.Int64
	res, err := cc.Get(ctx, []string{"AMZN", "GOOG"}, failingFetcher(&calls))
	if err != nil {
		t.Fatalf("Get must not error: %v", err)
	}
	if res.Origin != OriginSynthetic {
		t.Fatalf("expected OriginSynthetic, got %v", res.Origin)
	}
	if len(res.Value.Prices) != 2 {
		t.Fatalf("synthetic value not shaped for params: %v", res.Value)
	}

	// synthetic values are never stored; a later success must not see them
	var okCalls atomic.Int64
	res2, err := cc.Get(ctx, []string{"AMZN", "GOOG"}, bookFetcher(&okCalls, nil))
	if err != nil || res2.Origin != OriginNetwork {
		t.Fatalf("recovery Get: origin=%v err=%v", res2.Origin, err)
	}
}

// TestCancelledCallerLeavesFlight: cancelling one caller returns its ctx error
// but the shared fetch still settles for the remaining caller.
func TestCancelledCallerLeavesFlight(t *testing.T) {
	cc := newTestCache(t, nil)
	defer cc.Close(context.Background())

	var calls atomic.Int64
	gate := make(chan struct{})
	fetch := bookFetcher(&calls, gate)

	ctx1, cancel1 := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := cc.Get(ctx1, []string{"AAPL"}, fetch)
		errCh <- err
	}()

	resCh := make(chan Result[quoteBook], 1)
	go func() {
		r, _ := cc.Get(context.Background(), []string{"AAPL"}, fetch)
		resCh <- r
	}()

	// wait until the shared fetch is actually in flight
	deadline := time.After(2 * time.Second)
	for calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("fetch never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	time.Sleep(20 * time.Millisecond)

	cancel1()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller: want context.Canceled, got %v", err)
	}

	close(gate)
	res := <-resCh
	if res.Origin != OriginNetwork || res.Value.Prices["AAPL"] == 0 {
		t.Fatalf("surviving caller got %+v", res)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 fetch, got %d", calls.Load())
	}
}

func TestStatsAndClear(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, nil)
	defer cc.Close(ctx)

	var calls atomic.Int64
	fetch := bookFetcher(&calls, nil)

	if _, err := cc.Get(ctx, []string{"AAPL"}, fetch); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := cc.Get(ctx, []string{"MSFT"}, fetch); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := cc.Get(ctx, []string{"AAPL"}, fetch); err != nil {
		t.Fatalf("Get: %v", err)
	}

	s := cc.Stats()
	if s.EntryCount != 2 {
		t.Fatalf("EntryCount=%d, want 2", s.EntryCount)
	}
	if s.Hits != 1 || s.Misses != 2 {
		t.Fatalf("hits=%d misses=%d, want 1/2", s.Hits, s.Misses)
	}
	if s.OldestEntryAge < 0 {
		t.Fatalf("negative OldestEntryAge: %v", s.OldestEntryAge)
	}

	cc.Clear()
	if s := cc.Stats(); s.EntryCount != 0 {
		t.Fatalf("EntryCount after Clear=%d", s.EntryCount)
	}
}

// TestSnapshotRoundTrip persists entries, then restores them into a fresh
// instance; restored entries serve as stale fallback after expiry.
func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	mk := func() Cache[quoteBook] {
		return newTestCache(t, func(o *Options[quoteBook]) {
			o.DefaultTTL = 50 * time.Millisecond
			o.SnapshotStore = store
			o.SnapshotCodec = cd.JSON[quoteBook]{}
		})
	}

	cc := mk()
	var calls atomic.Int64
	if _, err := cc.Get(ctx, []string{"AAPL", "MSFT"}, bookFetcher(&calls, nil)); err != nil {
		t.Fatalf("seed Get: %v", err)
	}
	if err := cc.Close(ctx); err != nil {
		t.Fatalf("Close (snapshot save): %v", err)
	}

	// simulated restart
	cc2 := mk()
	defer cc2.Close(ctx)
	if err := cc2.LoadSnapshot(ctx); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if s := cc2.Stats(); s.EntryCount != 1 {
		t.Fatalf("restored EntryCount=%d, want 1", s.EntryCount)
	}

	time.Sleep(60 * time.Millisecond) // past TTL

	var failCalls atomic.Int64
	res, err := cc2.Get(ctx, []string{"MSFT", "AAPL"}, failingFetcher(&failCalls))
	if err != nil {
		t.Fatalf("Get after restore: %v", err)
	}
	if res.Origin != OriginStale {
		t.Fatalf("expected restored entry served stale, got %v", res.Origin)
	}
	if res.Value.Prices["AAPL"] == 0 {
		t.Fatalf("restored value lost payload: %v", res.Value)
	}
}

// TestCorruptSnapshotStartsEmpty: garbage in the snapshot blob must not fail
// load; it is discarded and self-healed.
func TestCorruptSnapshotStartsEmpty(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.m["snapshot:quotes"] = []byte("not-wire-format")

	cc := newTestCache(t, func(o *Options[quoteBook]) {
		o.SnapshotStore = store
		o.SnapshotCodec = cd.JSON[quoteBook]{}
	})
	defer cc.Close(ctx)

	if err := cc.LoadSnapshot(ctx); err != nil {
		t.Fatalf("LoadSnapshot on corrupt blob must not error: %v", err)
	}
	if s := cc.Stats(); s.EntryCount != 0 {
		t.Fatalf("corrupt snapshot restored entries: %d", s.EntryCount)
	}
	if _, ok := store.m["snapshot:quotes"]; ok {
		t.Fatalf("corrupt snapshot blob was not self-healed")
	}
}

func TestDisabledBypassesCache(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, func(o *Options[quoteBook]) { o.Disabled = true })
	defer cc.Close(ctx)

	var calls atomic.Int64
	fetch := bookFetcher(&calls, nil)
	if _, err := cc.Get(ctx, []string{"AAPL"}, fetch); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := cc.Get(ctx, []string{"AAPL"}, fetch); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("disabled cache should fetch every time, got %d calls", calls.Load())
	}

	// still never errors: synthetic fallback applies
	var failCalls atomic.Int64
	res, err := cc.Get(ctx, []string{"AAPL"}, failingFetcher(&failCalls))
	if err != nil || res.Origin != OriginSynthetic {
		t.Fatalf("disabled fallback: origin=%v err=%v", res.Origin, err)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New[quoteBook](Options[quoteBook]{}); err == nil {
		t.Fatal("missing namespace must fail")
	}
	if _, err := New[quoteBook](Options[quoteBook]{
		Namespace:     "quotes",
		SnapshotStore: newMemStore(),
	}); err == nil {
		t.Fatal("snapshot store without codec must fail")
	}
}
