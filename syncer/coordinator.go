// Package syncer drains the outbox against the backend: one action at a
// time, strict FIFO, at-least-once. A transient failure halts the pass so
// the head is retried before any successor — out-of-order application would
// be incorrect for financial actions. A permanent rejection drops the action
// and surfaces an explicit failure event instead of stalling the queue.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tradewire/offcache"
	"github.com/tradewire/offcache/netmon"
	"github.com/tradewire/offcache/outbox"
)

// Applier executes one pending action against the backend. It must wrap
// non-retryable business rejections with Permanent; bare errors are treated
// as transient. The backend deduplicates on Action.ID, since replay is
// at-least-once.
type Applier interface {
	Apply(ctx context.Context, a outbox.Action) error
}

// ApplierFunc adapts a function to the Applier interface.
type ApplierFunc func(ctx context.Context, a outbox.Action) error

func (f ApplierFunc) Apply(ctx context.Context, a outbox.Action) error { return f(ctx, a) }

type Options struct {
	// Interval between periodic drain attempts while online and non-empty.
	// 0 => 5m.
	Interval time.Duration
	// ApplyTimeout bounds each backend attempt. 0 => 5s.
	ApplyTimeout time.Duration

	Logger offcache.Logger
	Hooks  offcache.Hooks

	// OnRejected, if set, receives actions dropped after a permanent
	// rejection — the out-of-band "this intent will never be satisfied"
	// notification the UI must show.
	OnRejected func(a outbox.Action, err error)
}

// Coordinator owns drain scheduling for one queue. States: Idle (no drain in
// progress) and Draining; at most one pass runs at a time, so a reconnect
// arriving mid-drain is a no-op.
type Coordinator struct {
	queue   *outbox.Queue
	applier Applier
	mon     *netmon.Monitor

	interval     time.Duration
	applyTimeout time.Duration
	log          offcache.Logger
	hooks        offcache.Hooks
	onRejected   func(outbox.Action, error)

	cron          *cron.Cron
	draining      atomic.Bool
	started       atomic.Bool
	reconnectHook sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

func New(queue *outbox.Queue, applier Applier, mon *netmon.Monitor, opts Options) *Coordinator {
	c := &Coordinator{
		queue:      queue,
		applier:    applier,
		mon:        mon,
		onRejected: opts.OnRejected,
	}
	c.interval = opts.Interval
	if c.interval <= 0 {
		c.interval = 5 * time.Minute
	}
	c.applyTimeout = opts.ApplyTimeout
	if c.applyTimeout <= 0 {
		c.applyTimeout = 5 * time.Second
	}
	c.log = opts.Logger
	if c.log == nil {
		c.log = offcache.NopLogger{}
	}
	c.hooks = opts.Hooks
	if c.hooks == nil {
		c.hooks = offcache.NopHooks{}
	}
	return c
}

// Start registers the reconnect trigger and the periodic schedule, then
// kicks an initial drain if anything is already pending. Idempotent.
func (c *Coordinator) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(ctx)

	// the monitor has no unregister, so hook it once for the coordinator's
	// lifetime; the callback is inert while stopped
	if c.mon != nil {
		c.reconnectHook.Do(func() {
			c.mon.OnReconnect(func() {
				if c.started.Load() {
					go c.Drain()
				}
			})
		})
	}

	c.cron = cron.New()
	spec := fmt.Sprintf("@every %s", c.interval)
	if _, err := c.cron.AddFunc(spec, func() {
		if c.online() && c.queue.Size() > 0 {
			c.Drain()
		}
	}); err != nil {
		return fmt.Errorf("syncer: schedule %q: %w", spec, err)
	}
	c.cron.Start()

	if c.online() && c.queue.Size() > 0 {
		go c.Drain()
	}
	return nil
}

// Stop halts scheduling. A pass already in progress finishes its current
// attempt and then observes the cancelled context.
func (c *Coordinator) Stop() {
	if !c.started.CompareAndSwap(true, false) {
		return
	}
	c.cron.Stop()
	c.cancel()
}

// Draining reports whether a drain pass is currently active.
func (c *Coordinator) Draining() bool { return c.draining.Load() }

// Drain runs one pass over the queue head. Concurrent calls collapse into
// the active pass. Success acknowledges and moves to the next head; a
// transient failure records the attempt and halts (Idle) so the same head is
// retried on the next trigger; a permanent rejection acknowledges the action
// as failed and continues.
func (c *Coordinator) Drain() {
	if !c.draining.CompareAndSwap(false, true) {
		return // already draining; the in-progress pass will see new heads
	}
	defer c.draining.Store(false)

	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		if ctx.Err() != nil {
			return
		}
		a, ok := c.queue.Front()
		if !ok {
			return // queue empty -> Idle
		}

		actx, cancel := context.WithTimeout(ctx, c.applyTimeout)
		err := c.applier.Apply(actx, a)
		cancel()

		switch {
		case err == nil:
			if ackErr := c.queue.Ack(a.ID); ackErr != nil {
				c.log.Error("ack failed", offcache.Fields{"id": a.ID, "err": ackErr})
				return
			}
			c.log.Debug("action applied", offcache.Fields{"id": a.ID, "kind": a.Kind})

		case IsPermanent(err):
			// never going to succeed; remove and surface instead of stalling
			if ackErr := c.queue.Ack(a.ID); ackErr != nil {
				c.log.Error("ack of rejected action failed", offcache.Fields{"id": a.ID, "err": ackErr})
				return
			}
			c.hooks.ActionRejected(a.ID, a.Kind, err)
			if c.onRejected != nil {
				c.onRejected(a, err)
			}
			c.log.Warn("action permanently rejected", offcache.Fields{"id": a.ID, "kind": a.Kind, "err": err})

		default:
			// transient: keep the head, halt the pass; strict ordering means
			// successors wait behind it
			_ = c.queue.RecordFailure(a.ID, err.Error())
			c.hooks.DrainHalted(a.ID, a.Attempts+1, err)
			c.log.Warn("drain halted on transient failure", offcache.Fields{"id": a.ID, "attempts": a.Attempts + 1, "err": err})
			return
		}
	}
}

func (c *Coordinator) online() bool {
	return c.mon == nil || c.mon.Status() == netmon.Online
}
