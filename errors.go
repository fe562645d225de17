package offcache

import "fmt"

// SnapshotError reports a snapshot save/load failure against the blob store.
// Corrupt snapshot contents are not an error (they are discarded and logged);
// this covers IO-level failures only.
type SnapshotError struct {
	Key string
	Op  string // "save" or "load"
	Err error
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("snapshot %s %q failed: %v", e.Op, e.Key, e.Err)
}

func (e *SnapshotError) Unwrap() error { return e.Err }
