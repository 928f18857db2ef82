package jobcache

import (
	"errors"
	"fmt"
)

// ValidationError indicates bad user input: missing required job fields,
// a duplicate hostname, an out-of-range index, or a malformed value.
//
// Validation failures are surfaced directly to the caller and are never
// retried.
type ValidationError struct {
	// Field is the offending field or argument, if known.
	Field string

	// Message describes what was wrong with it.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// LockError indicates the cache lock could not be acquired within the
// retry budget. HolderPID is the process recorded in the lock file at the
// time of the last attempt.
type LockError struct {
	// Path is the lock file path.
	Path string

	// HolderPID is the pid written by the current holder. Zero if the
	// lock file could not be read.
	HolderPID int

	// Attempts is how many acquisition attempts were made.
	Attempts int
}

// Error implements the error interface.
func (e *LockError) Error() string {
	return fmt.Sprintf("cannot obtain lock file after %d attempts: %s; lock held by process %d", e.Attempts, e.Path, e.HolderPID)
}

// IsValidation returns true if the error is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsLock returns true if the error is a LockError.
func IsLock(err error) bool {
	var le *LockError
	return errors.As(err, &le)
}
