package pairing

import "errors"

var (
	// ErrNotPaired means no record exists yet; a scan+pair run is
	// required before addresses can be reused.
	ErrNotPaired = errors.New("NOT_PAIRED")

	// ErrIdentityMismatch means a side's advertised identity deviates
	// from the stored validated record (swapped or foreign unit). Never
	// auto-retried; explicit re-pairing required.
	ErrIdentityMismatch = errors.New("IDENTITY_MISMATCH")

	// ErrPersistence wraps storage failures.
	ErrPersistence = errors.New("PERSISTENCE")
)
