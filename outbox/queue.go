// Package outbox implements the durable pending-action queue: user intents
// recorded while offline (or after a failed mutation) awaiting ordered,
// at-least-once replay against the backend. The queue is the single source
// of truth for "what the user intended but the server has not confirmed".
//
// Every mutation re-journals the whole queue to the blob store, so a process
// restart reloads identical ordered content. A corrupt journal is discarded
// (empty queue, logged, hooked) rather than crashing startup.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tradewire/offcache"
	"github.com/tradewire/offcache/blobstore"
	"github.com/tradewire/offcache/internal/wire"
)

// Action is one locally recorded user intent. ID doubles as the idempotency
// key the backend can deduplicate on, since replay is at-least-once.
type Action struct {
	ID        string
	Kind      string // e.g. "trade-submission", "comment-post", "preference-update"
	Payload   json.RawMessage
	CreatedAt time.Time
	Attempts  int
	LastError string
}

type Options struct {
	Logger offcache.Logger
	Hooks  offcache.Hooks
}

// Journal fields are length-prefixed with 16 bits on the wire; an applier can
// hand back an arbitrarily long error message, so bound the strings here
// instead of letting the encoder reject the record.
const (
	maxIDLen    = 0xFFFF
	maxKindLen  = 256
	maxErrorLen = 4096
)

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// Queue is a strict-FIFO, journaled action queue. All methods are safe for
// concurrent use; ordering is never changed by any operation.
type Queue struct {
	store blobstore.Store
	key   string
	log   offcache.Logger
	hooks offcache.Hooks

	mu      sync.Mutex
	actions []Action
}

// Open loads the journal stored under key. A missing journal yields an empty
// queue; a corrupt one is discarded and logged, never a startup failure.
func Open(ctx context.Context, store blobstore.Store, key string, opts Options) (*Queue, error) {
	if store == nil {
		return nil, fmt.Errorf("outbox: store is required")
	}
	if key == "" {
		return nil, fmt.Errorf("outbox: journal key is required")
	}

	q := &Queue{store: store, key: key}
	q.log = opts.Logger
	if q.log == nil {
		q.log = offcache.NopLogger{}
	}
	q.hooks = opts.Hooks
	if q.hooks == nil {
		q.hooks = offcache.NopHooks{}
	}

	blob, ok, err := store.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("outbox: load journal %q: %w", key, err)
	}
	if !ok {
		return q, nil
	}

	records, err := wire.DecodeJournal(blob)
	if err != nil {
		q.hooks.CorruptDiscarded(key, err)
		q.log.Warn("corrupt outbox journal discarded", offcache.Fields{"key": key, "err": err})
		_ = store.Delete(ctx, key)
		return q, nil
	}

	q.actions = make([]Action, 0, len(records))
	for _, r := range records {
		q.actions = append(q.actions, Action{
			ID:        r.ID,
			Kind:      r.Kind,
			Payload:   append(json.RawMessage(nil), r.Payload...),
			CreatedAt: time.Unix(0, r.CreatedAt),
			Attempts:  int(r.Attempts),
			LastError: r.LastError,
		})
	}
	q.log.Debug("outbox journal loaded", offcache.Fields{"key": key, "actions": len(q.actions)})
	return q, nil
}

// Enqueue appends the action and journals immediately, returning the action
// ID synchronously so the caller can reference it before any network
// attempt. A missing ID gets a UUID; a zero CreatedAt gets now. Enqueue
// never fails the caller: a journal write error leaves the in-memory queue
// authoritative and fires PersistError.
func (q *Queue) Enqueue(a Action) string {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.ID = clip(a.ID, maxIDLen)
	a.Kind = clip(a.Kind, maxKindLen)
	a.LastError = clip(a.LastError, maxErrorLen)
	a.Payload = append(json.RawMessage(nil), a.Payload...)

	q.mu.Lock()
	q.actions = append(q.actions, a)
	q.persistLocked()
	q.mu.Unlock()

	q.log.Debug("action enqueued", offcache.Fields{"id": a.ID, "kind": a.Kind})
	return a.ID
}

// Front peeks at the queue head without removing it. Removal happens only
// through Ack once the backend durably confirmed the action (or it was
// explicitly abandoned).
func (q *Queue) Front() (Action, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.actions) == 0 {
		return Action{}, false
	}
	a := q.actions[0]
	a.Payload = append(json.RawMessage(nil), a.Payload...)
	return a, true
}

// Ack removes the action with the given id and journals the change.
func (q *Queue) Ack(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, a := range q.actions {
		if a.ID == id {
			q.actions = append(q.actions[:i], q.actions[i+1:]...)
			q.persistLocked()
			return nil
		}
	}
	return fmt.Errorf("outbox: ack unknown action %q", id)
}

// RecordFailure increments the attempt counter and stores the error text for
// the action with the given id, journaling the change. The action stays at
// its position; ordering is preserved.
func (q *Queue) RecordFailure(id, msg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.actions {
		if q.actions[i].ID == id {
			q.actions[i].Attempts++
			q.actions[i].LastError = clip(msg, maxErrorLen)
			q.persistLocked()
			return nil
		}
	}
	return fmt.Errorf("outbox: record failure for unknown action %q", id)
}

// Size returns the number of pending actions, for UI badges.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}

// List returns a copy of the pending actions in FIFO order.
func (q *Queue) List() []Action {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Action, len(q.actions))
	copy(out, q.actions)
	for i := range out {
		out[i].Payload = append(json.RawMessage(nil), out[i].Payload...)
	}
	return out
}

// persistLocked journals the whole queue. Called with q.mu held. Durability
// is best-effort: a failed save is logged and hooked, the in-memory queue
// stays authoritative.
func (q *Queue) persistLocked() {
	records := make([]wire.JournalRecord, 0, len(q.actions))
	for _, a := range q.actions {
		records = append(records, wire.JournalRecord{
			ID:        a.ID,
			Kind:      a.Kind,
			CreatedAt: a.CreatedAt.UnixNano(),
			Attempts:  uint32(a.Attempts),
			LastError: a.LastError,
			Payload:   a.Payload,
		})
	}
	blob := wire.EncodeJournal(records)

	// short bound: persistence must not stall an enqueue indefinitely
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := q.store.Save(ctx, q.key, blob); err != nil {
		q.hooks.PersistError(q.key, err)
		q.log.Error("outbox journal save failed", offcache.Fields{"key": q.key, "err": err})
	}
}
