// Package loghooks logs engine events through slog, with sampling on the
// hot ones (stale serves under an outage can fire on every render).
package loghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tradewire/offcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	StaleEvery     uint64
	SyntheticEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix so symbol sets do
	// not leak into shared logs.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	staleCtr     atomic.Uint64
	syntheticCtr atomic.Uint64
}

var _ offcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) FetchFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("offcache fetch failed", "key", h.redact(key), "err", err)
}

func (h *Hooks) StaleServed(key string, age time.Duration) {
	if h.l == nil || !sample(h.opts.StaleEvery, &h.staleCtr) {
		return
	}
	h.l.Info("offcache served stale entry", "key", h.redact(key), "age", age)
}

func (h *Hooks) SyntheticServed(key string) {
	if h.l == nil || !sample(h.opts.SyntheticEvery, &h.syntheticCtr) {
		return
	}
	h.l.Info("offcache served synthetic value", "key", h.redact(key))
}

func (h *Hooks) CorruptDiscarded(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("offcache discarded corrupt blob", "key", key, "err", err)
}

func (h *Hooks) PersistError(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("offcache persistence failed", "key", key, "err", err)
}

func (h *Hooks) ActionRejected(id, kind string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("offcache action permanently rejected", "id", id, "kind", kind, "err", err)
}

func (h *Hooks) DrainHalted(id string, attempts int, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("offcache drain halted", "id", id, "attempts", attempts, "err", err)
}
