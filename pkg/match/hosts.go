// Package match selects servers by hostname glob patterns.
//
// The repeatable --server flag accepts literal hostnames and glob patterns
// (cluster-*, eu-**). A HostFilter validates the patterns up front so a
// typo fails before any cache is touched, then matches hostnames against
// them. Literal names behave as exact matches.
package match

import (
	"errors"

	"github.com/bmatcuk/doublestar/v4"
)

// Errors returned by HostFilter operations.
var (
	// ErrInvalidPattern is returned when a pattern cannot be compiled.
	ErrInvalidPattern = errors.New("invalid glob pattern")
)

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// HostFilter matches hostnames against a set of glob patterns.
//
// A HostFilter is safe for concurrent use after creation.
type HostFilter struct {
	patterns []string
}

// NewHostFilter creates a filter from the given patterns. An empty
// pattern list matches every hostname. Returns a PatternError if any
// pattern is invalid.
func NewHostFilter(patterns []string) (*HostFilter, error) {
	compiled := make([]string, 0, len(patterns))
	for _, raw := range patterns {
		if raw == "" {
			continue
		}
		if !doublestar.ValidatePattern(raw) {
			return nil, &PatternError{Pattern: raw, Err: ErrInvalidPattern}
		}
		compiled = append(compiled, raw)
	}
	return &HostFilter{patterns: compiled}, nil
}

// Match reports whether the hostname matches any pattern. A filter with
// no patterns matches everything.
func (f *HostFilter) Match(hostname string) bool {
	if len(f.patterns) == 0 {
		return true
	}
	for _, p := range f.patterns {
		if p == hostname {
			return true
		}
		if ok, _ := doublestar.Match(p, hostname); ok {
			return true
		}
	}
	return false
}

// All reports whether the filter matches every hostname (no patterns).
func (f *HostFilter) All() bool {
	return len(f.patterns) == 0
}

// Patterns returns the raw patterns.
func (f *HostFilter) Patterns() []string {
	out := make([]string, len(f.patterns))
	copy(out, f.patterns)
	return out
}
