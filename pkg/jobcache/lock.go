package jobcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// acquireLock takes the advisory lock on the cache file by creating the
// lock file exclusively with this process's pid inside. On conflict it
// retries up to the configured attempt budget, sleeping between attempts,
// then fails with a LockError naming the blocking pid.
//
// A lock file whose recorded pid is no longer alive is treated as left
// behind by a crashed process: it is removed and the attempt repeated
// immediately. Config.TakeOverStaleLock disables this.
func (c *JobCache) acquireLock(ctx context.Context) error {
	if c.hasLock {
		return nil
	}
	attempts := c.cfg.LockMaxAttempts
	if attempts <= 0 {
		attempts = DefaultLockMaxAttempts
	}
	delay := c.cfg.LockRetryDelay
	if delay <= 0 {
		delay = DefaultLockRetryDelay
	}

	holderPID := 0
	for attempt := 0; attempt < attempts; attempt++ {
		err := c.tryLock()
		if err == nil {
			c.hasLock = true
			return nil
		}
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("create lock file %s: %w", c.lockPath, err)
		}

		holderPID = c.readLockPID()
		if c.cfg.TakeOverStaleLock && holderPID > 0 && !isProcessAlive(holderPID) {
			// Crashed holder. Reclaim and retry without burning the
			// attempt budget on a dead pid.
			_ = os.Remove(c.lockPath)
			attempt--
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return &LockError{Path: c.lockPath, HolderPID: holderPID, Attempts: attempts}
}

// tryLock attempts the exclusive create. os.ErrExist means another
// process holds the lock.
func (c *JobCache) tryLock() error {
	f, err := os.OpenFile(c.lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	_, werr := fmt.Fprintf(f, "%d", os.Getpid())
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(c.lockPath)
		if werr != nil {
			return werr
		}
		return cerr
	}
	return nil
}

// releaseLock removes the lock file. No-op when the lock is not held.
func (c *JobCache) releaseLock() error {
	if !c.hasLock {
		return nil
	}
	c.hasLock = false
	if err := os.Remove(c.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file %s: %w", c.lockPath, err)
	}
	return nil
}

// readLockPID reads the pid recorded in the lock file. Zero if the file
// is unreadable or malformed (e.g. it vanished between attempts).
func (c *JobCache) readLockPID() int {
	b, err := os.ReadFile(c.lockPath)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0
	}
	return pid
}

// LockHolder reports the pid recorded in the lock file at lockPath and
// whether that process is still alive. Pid zero means the file is
// missing or malformed.
func LockHolder(lockPath string) (pid int, alive bool) {
	b, err := os.ReadFile(lockPath)
	if err != nil {
		return 0, false
	}
	pid, err = strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, false
	}
	return pid, isProcessAlive(pid)
}

func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// signal 0 is supported on unix; it checks for existence without sending a signal.
	if err := p.Signal(os.Signal(syscall.Signal(0))); err != nil {
		return false
	}
	return true
}
