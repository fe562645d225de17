// Package asynchook decouples hook sinks from the engine's hot paths: events
// are handed to a bounded queue and delivered by worker goroutines. When the
// queue is full events are dropped, never blocked on.
//
// usage:
//
//	raw := loghooks.New(slog.Default(), loghooks.Options{StaleEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := offcache.New[QuoteBook](offcache.Options[QuoteBook]{
//	    Namespace: "quotes",
//	    Hooks:     hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"time"

	"github.com/tradewire/offcache"
)

type Hooks struct {
	inner offcache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ offcache.Hooks = (*Hooks)(nil)

func New(inner offcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) FetchFailed(k string, err error) { h.try(func() { h.inner.FetchFailed(k, err) }) }
func (h *Hooks) SyntheticServed(k string)        { h.try(func() { h.inner.SyntheticServed(k) }) }
func (h *Hooks) StaleServed(k string, age time.Duration) {
	h.try(func() { h.inner.StaleServed(k, age) })
}
func (h *Hooks) CorruptDiscarded(k string, err error) {
	h.try(func() { h.inner.CorruptDiscarded(k, err) })
}
func (h *Hooks) PersistError(k string, err error) {
	h.try(func() { h.inner.PersistError(k, err) })
}
func (h *Hooks) ActionRejected(id, kind string, err error) {
	h.try(func() { h.inner.ActionRejected(id, kind, err) })
}
func (h *Hooks) DrainHalted(id string, attempts int, err error) {
	h.try(func() { h.inner.DrainHalted(id, attempts, err) })
}
