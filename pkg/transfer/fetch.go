// Package transfer retrieves remote job cache files for merging.
//
// Three source kinds are supported:
//
//	[user@]host:path  copied with scp (requires password-free access)
//	s3://bucket/key   fetched with the AWS SDK default credential chain
//	/local/path       used in place
//
// scp and s3 sources land in a temporary file; the caller consumes the
// local path and the hostname label, then runs the returned cleanup.
package transfer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
)

// Fetched is a locally readable copy of a remote cache.
type Fetched struct {
	// Path is the local file holding the cache blob.
	Path string

	// Hostname labels the cache's localhost server during a merge. For
	// scp sources it defaults to the remote host; local and s3 sources
	// have no intrinsic host, so there the label must be supplied.
	Hostname string

	// Cleanup removes any temporary file. Always non-nil.
	Cleanup func()
}

// scpSpecRe recognizes [user@]host:path remote specifications. A leading
// slash or a drive-letter-free relative path never matches, so plain
// local paths fall through.
var scpSpecRe = regexp.MustCompile(`^(?:([^@:/]+)@)?([^@:/]+):(.+)$`)

// ExecCommandFunc builds the scp command. Swappable in tests.
type ExecCommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

var scpCommand ExecCommandFunc = exec.CommandContext

// SetSCPCommand overrides how scp is executed. Passing nil restores the
// default.
func SetSCPCommand(fn ExecCommandFunc) {
	if fn == nil {
		scpCommand = exec.CommandContext
		return
	}
	scpCommand = fn
}

// Fetch resolves a remote cache specification into a local file. The
// hostname argument overrides the label derived from the spec; it is
// mandatory for sources that carry no host of their own.
func Fetch(ctx context.Context, spec, hostname string) (*Fetched, error) {
	switch {
	case strings.HasPrefix(spec, "s3://"):
		return fetchS3(ctx, spec, hostname)
	case scpSpecRe.MatchString(spec):
		return fetchSCP(ctx, spec, hostname)
	default:
		return fetchLocal(spec, hostname)
	}
}

func fetchLocal(path, hostname string) (*Fetched, error) {
	if hostname == "" {
		return nil, &TransportError{Op: "local", Source: path, Err: ErrHostnameRequired}
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, &TransportError{Op: "local", Source: path, Err: ErrNotFound}
		}
		return nil, &TransportError{Op: "local", Source: path, Err: err}
	}
	return &Fetched{Path: path, Hostname: hostname, Cleanup: func() {}}, nil
}

func fetchSCP(ctx context.Context, spec, hostname string) (*Fetched, error) {
	m := scpSpecRe.FindStringSubmatch(spec)
	if hostname == "" {
		hostname = m[2]
	}

	tmp, err := os.CreateTemp("", "jobkeep-fetch-*.cache")
	if err != nil {
		return nil, &TransportError{Op: "scp", Source: spec, Err: err}
	}
	tmpName := tmp.Name()
	_ = tmp.Close()
	cleanup := func() { _ = os.Remove(tmpName) }

	cmd := scpCommand(ctx, "scp", "-q", spec, tmpName)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		cleanup()
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return nil, &TransportError{Op: "scp", Source: spec, Err: err}
	}
	return &Fetched{Path: tmpName, Hostname: hostname, Cleanup: cleanup}, nil
}
