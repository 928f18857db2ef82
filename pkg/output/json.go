package output

import (
	"encoding/json"
	"io"
)

// EncodeJSON writes v as indented JSON followed by a newline, the shape
// shared by every --json listing and the HTTP API.
func EncodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return &WriteError{Op: "encode_json", Err: err}
	}
	return nil
}

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "encode_json", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
