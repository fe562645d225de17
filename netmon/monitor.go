// Package netmon tracks device connectivity for the offline-sync engine.
// It is a thin, process-wide wrapper over whatever platform primitive reports
// reachability: the platform glue calls SetStatus on transitions, or Run
// polls a Probe. Reconnect/disconnect callbacks fire exactly once per
// transition, never repeatedly while the status is unchanged.
package netmon

import (
	"context"
	"sync"
	"time"

	"github.com/tradewire/offcache"
)

// Status is the binary connectivity state.
type Status uint8

const (
	Offline Status = iota
	Online
)

func (s Status) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

// Monitor is the single source of connectivity truth for one process.
type Monitor struct {
	log offcache.Logger

	mu             sync.Mutex
	status         Status
	lastTransition time.Time
	onReconnect    []func()
	onDisconnect   []func()
	subs           []func(Status)
}

type Options struct {
	// Initial status; a freshly started process usually assumes Online until
	// the platform says otherwise.
	Initial Status
	Logger  offcache.Logger
}

func New(opts Options) *Monitor {
	log := opts.Logger
	if log == nil {
		log = offcache.NopLogger{}
	}
	return &Monitor{
		log:            log,
		status:         opts.Initial,
		lastTransition: time.Now(),
	}
}

// Status returns the current connectivity state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// LastTransition returns when the status last changed.
func (m *Monitor) LastTransition() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastTransition
}

// OnReconnect registers fn to run once per offline->online transition.
func (m *Monitor) OnReconnect(fn func()) {
	m.mu.Lock()
	m.onReconnect = append(m.onReconnect, fn)
	m.mu.Unlock()
}

// OnDisconnect registers fn to run once per online->offline transition.
// Informational only; no queue draining is triggered by going offline.
func (m *Monitor) OnDisconnect(fn func()) {
	m.mu.Lock()
	m.onDisconnect = append(m.onDisconnect, fn)
	m.mu.Unlock()
}

// Subscribe registers fn for every transition, receiving the new status.
func (m *Monitor) Subscribe(fn func(Status)) {
	m.mu.Lock()
	m.subs = append(m.subs, fn)
	m.mu.Unlock()
}

// SetStatus records a connectivity observation. Repeated observations of the
// same status are no-ops; callbacks fire only on an actual transition and are
// invoked outside the monitor's lock.
func (m *Monitor) SetStatus(s Status) {
	m.mu.Lock()
	if s == m.status {
		m.mu.Unlock()
		return
	}
	m.status = s
	m.lastTransition = time.Now()

	var fire []func()
	if s == Online {
		fire = append(fire, m.onReconnect...)
	} else {
		fire = append(fire, m.onDisconnect...)
	}
	subs := append(([]func(Status))(nil), m.subs...)
	m.mu.Unlock()

	m.log.Info("connectivity transition", offcache.Fields{"status": s.String()})
	for _, fn := range fire {
		fn()
	}
	for _, fn := range subs {
		fn(s)
	}
}

// Run polls probe every interval and feeds results into SetStatus until ctx
// is done. Use when the platform offers no push-style connectivity events.
func (m *Monitor) Run(ctx context.Context, probe Probe, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if probe.Online(ctx) {
				m.SetStatus(Online)
			} else {
				m.SetStatus(Offline)
			}
		case <-ctx.Done():
			return
		}
	}
}
