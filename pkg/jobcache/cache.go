// Package jobcache is the data layer for tracking long-running
// computational jobs across named servers: the in-memory Job / JobServer /
// JobCache model, its file-backed persistence guarded by a lock file, the
// timestamp-based merge between independently modified caches, and the
// status auto-update driven by external process/queue listings.
package jobcache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Lock acquisition defaults.
const (
	DefaultLockMaxAttempts = 30
	DefaultLockRetryDelay  = time.Second
)

// Config tunes lock acquisition for a JobCache.
type Config struct {
	// LockMaxAttempts is how many times to try creating the lock file
	// before giving up. Zero means DefaultLockMaxAttempts.
	LockMaxAttempts int

	// LockRetryDelay is the sleep between attempts. Zero means
	// DefaultLockRetryDelay.
	LockRetryDelay time.Duration

	// TakeOverStaleLock removes a lock file whose recorded pid is no
	// longer alive, instead of waiting for it.
	TakeOverStaleLock bool
}

// DefaultConfig returns the standard lock configuration: 30 one-second
// attempts, stale locks taken over.
func DefaultConfig() Config {
	return Config{
		LockMaxAttempts:   DefaultLockMaxAttempts,
		LockRetryDelay:    DefaultLockRetryDelay,
		TakeOverStaleLock: true,
	}
}

// JobCache is the full persisted collection of JobServers, addressed by
// one cache file. A fresh cache starts with a single empty localhost
// server.
//
// A JobCache is not safe for concurrent use within a process; cross-process
// access to the cache file is serialized by the adjacent lock file.
// Load and Dump bracket one read-modify-write cycle: Load leaves the lock
// held, Dump writes, resets the in-memory state and releases it. A caller
// that Loads but errors out before Dump must call Close to give the lock
// back.
type JobCache struct {
	servers  map[string]*JobServer
	path     string
	lockPath string
	hasLock  bool
	cfg      Config
}

// Open binds a JobCache to a cache file path. The path has ~ and
// environment variables expanded and is normalized to an absolute path;
// the parent directory is created if missing. No file is read and no lock
// is taken: the returned cache holds the default single empty localhost
// server until Load.
func Open(path string, cfg Config) (*JobCache, error) {
	if path == "" {
		return nil, &ValidationError{Field: "cache", Message: "cache file path is required"}
	}
	expanded, err := expandPath(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &JobCache{
		servers:  defaultServers(),
		path:     expanded,
		lockPath: expanded + ".lock",
		cfg:      cfg,
	}, nil
}

func defaultServers() map[string]*JobServer {
	return map[string]*JobServer{Localhost: NewServer(Localhost)}
}

func expandPath(path string) (string, error) {
	if path == "~" || len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}
	path = os.ExpandEnv(path)
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve cache path: %w", err)
	}
	return filepath.Clean(abs), nil
}

// Path returns the normalized absolute cache file path.
func (c *JobCache) Path() string { return c.path }

// LockPath returns the adjacent lock file path.
func (c *JobCache) LockPath() string { return c.lockPath }

// Load acquires the lock and replaces the in-memory mapping with the
// deserialized cache file. A missing cache file is not an error: the
// default empty localhost server is kept (first run). The lock stays held
// after Load returns so the read-modify-write cycle up to Dump is atomic
// with respect to other processes.
func (c *JobCache) Load(ctx context.Context) error {
	if err := c.acquireLock(ctx); err != nil {
		return err
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read cache file %s: %w", c.path, err)
	}
	servers, err := decodeServers(data)
	if err != nil {
		return err
	}
	if _, ok := servers[Localhost]; !ok {
		servers[Localhost] = NewServer(Localhost)
	}
	c.servers = servers
	return nil
}

// Dump serializes the mapping to the cache file, resets the in-memory
// state to a fresh empty localhost server and releases the lock. The file
// is written atomically (temp file + rename) so a reader never observes a
// partial write. Dump acquires the lock itself when called without a
// preceding Load.
func (c *JobCache) Dump(ctx context.Context) error {
	if err := c.acquireLock(ctx); err != nil {
		return err
	}
	data, err := encodeServers(c.servers)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(c.path, data); err != nil {
		return err
	}
	c.servers = defaultServers()
	return c.releaseLock()
}

// Close releases the lock if it is still held. It is the error-path
// safety net for a Load that never reached its Dump; calling it after a
// clean Dump is a no-op.
func (c *JobCache) Close() error {
	return c.releaseLock()
}

// AddServer creates an empty JobServer for the hostname. A hostname may
// appear at most once per cache.
func (c *JobCache) AddServer(hostname string) error {
	if hostname == "" {
		return &ValidationError{Field: "hostname", Message: "hostname is required"}
	}
	if _, ok := c.servers[hostname]; ok {
		return &ValidationError{Field: "hostname", Message: "hostname already exists: " + hostname}
	}
	c.servers[hostname] = NewServer(hostname)
	return nil
}

// Server returns the JobServer for the hostname.
func (c *JobCache) Server(hostname string) (*JobServer, error) {
	server, ok := c.servers[hostname]
	if !ok {
		return nil, &ValidationError{Field: "server", Message: "no such server: " + hostname}
	}
	return server, nil
}

// HasServer reports whether the hostname is present.
func (c *JobCache) HasServer(hostname string) bool {
	_, ok := c.servers[hostname]
	return ok
}

// Hostnames returns every hostname in the cache, localhost first, then
// sorted.
func (c *JobCache) Hostnames() []string {
	return sortedHostnames(c.servers)
}

// AutoUpdate probes the status of every job on the localhost server and
// returns the transitions made. Jobs on other hosts are never touched.
func (c *JobCache) AutoUpdate(ctx context.Context, probe StatusProbe) ([]Transition, error) {
	return c.servers[Localhost].AutoUpdate(ctx, probe)
}

// Merge folds another cache into this one, server by server. The other
// cache's localhost server is treated as belonging to otherHostname for
// the duration of the merge: two caches both call their own machine
// localhost, so keeping the name would collapse unrelated hosts into one.
// Servers present in both caches merge job-by-job (last writer wins);
// servers only in other are deep-copied across. The other cache is never
// mutated and never aliased: it remains usable by the caller afterwards.
func (c *JobCache) Merge(other *JobCache, otherHostname string) error {
	if otherHostname == "" {
		return &ValidationError{Field: "hostname", Message: "a hostname for the merged cache's localhost server is required"}
	}
	if otherHostname == Localhost {
		return &ValidationError{Field: "hostname", Message: "merged cache's localhost server cannot keep the name localhost"}
	}
	for _, name := range sortedHostnames(other.servers) {
		theirs := other.servers[name]
		effective := name
		if name == Localhost {
			effective = otherHostname
		}
		if ours, ok := c.servers[effective]; ok {
			ours.Merge(theirs)
			continue
		}
		copied := theirs.clone()
		copied.hostname = effective
		c.servers[effective] = copied
	}
	return nil
}
