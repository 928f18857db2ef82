package transfer

import (
	"errors"
	"fmt"
)

// Sentinel errors for fetch operations.
var (
	// ErrNotFound indicates the remote cache file does not exist.
	ErrNotFound = errors.New("remote cache not found")

	// ErrAccessDenied indicates insufficient permissions on the remote.
	ErrAccessDenied = errors.New("access denied")

	// ErrHostnameRequired indicates the source carries no hostname of its
	// own (a local path or an s3 URL) and none was supplied.
	ErrHostnameRequired = errors.New("a hostname label for the fetched cache is required")
)

// TransportError wraps remote-retrieval failures with context. It is
// fatal to the merge command that triggered the fetch.
type TransportError struct {
	// Op is the operation that failed (e.g., "scp", "s3.GetObject").
	Op string

	// Source is the remote specification being fetched.
	Source string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Source, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport returns true if the error is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsNotFound returns true if the error indicates the remote cache was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
