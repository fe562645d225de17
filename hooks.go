package offcache

import "time"

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; the engine calls them on
// hot paths. Wrap with hooks/async for fan-out to slow sinks.
type Hooks interface {
	// A fetch settled with an error (before any fallback was chosen).
	FetchFailed(key string, err error)

	// A fetch failed and an expired entry was served instead.
	StaleServed(key string, age time.Duration)

	// A fetch failed with nothing to fall back on; a synthetic value was served.
	SyntheticServed(key string)

	// A persisted blob (snapshot or journal) failed validation and was discarded.
	CorruptDiscarded(key string, err error)

	// A Save to the blob store failed; in-memory state is still authoritative.
	PersistError(key string, err error)

	// The backend permanently rejected a pending action; it was removed from
	// the queue and will never be applied. Surface to the user.
	ActionRejected(id, kind string, err error)

	// A drain pass halted on a transient failure; the head action stays queued.
	DrainHalted(id string, attempts int, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) FetchFailed(string, error)            {}
func (NopHooks) StaleServed(string, time.Duration)    {}
func (NopHooks) SyntheticServed(string)               {}
func (NopHooks) CorruptDiscarded(string, error)       {}
func (NopHooks) PersistError(string, error)           {}
func (NopHooks) ActionRejected(string, string, error) {}
func (NopHooks) DrainHalted(string, int, error)       {}
