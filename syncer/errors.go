package syncer

import "errors"

// permanentError marks a backend rejection that retrying can never fix
// (e.g. "insufficient funds"). The coordinator drops such actions instead of
// stalling the queue on them forever.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return "permanent: " + e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the coordinator treats it as non-retryable.
// Appliers must classify structured business errors with this; anything
// unwrapped counts as transient and halts draining for a later retry.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err (or anything it wraps) was marked Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
