package jobcache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestCache(t *testing.T, dir string) *JobCache {
	t.Helper()
	cache, err := Open(filepath.Join(dir, "jobkeep.cache"), Config{
		LockMaxAttempts: 2,
		LockRetryDelay:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	return cache
}

func TestCache_FirstLoadHasEmptyLocalhost(t *testing.T) {
	cache := openTestCache(t, t.TempDir())
	defer func() { _ = cache.Close() }()

	if err := cache.Load(context.Background()); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	server, err := cache.Server(Localhost)
	if err != nil {
		t.Fatalf("Server(localhost) error: %v", err)
	}
	if server.Len() != 0 {
		t.Fatalf("fresh cache has %d jobs", server.Len())
	}
}

func TestCache_RoundTripPreservesJobsAndTimestamps(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cache := openTestCache(t, dir)
	if err := cache.Load(ctx); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := cache.AddServer("cluster1"); err != nil {
		t.Fatalf("AddServer() error: %v", err)
	}
	local, _ := cache.Server(Localhost)
	addJob(t, local, JobSpec{
		JobID:       "1234",
		Program:     "vasp",
		Path:        "/scratch/co2",
		InputFname:  "INCAR",
		OutputFname: "OUTCAR",
		Status:      StatusRunning,
		Submit:      "sub.sh",
		Comment:     "first attempt",
	})
	stamp := time.Date(2026, 8, 1, 10, 30, 0, 0, time.UTC)
	local.jobs[0].modifiedAt = stamp

	remote, _ := cache.Server("cluster1")
	addJob(t, remote, JobSpec{JobID: "9", Program: "gauss", Path: "/work"})

	if err := cache.Dump(ctx); err != nil {
		t.Fatalf("Dump() error: %v", err)
	}

	// Dump resets the in-memory state.
	if cache.HasServer("cluster1") {
		t.Fatal("Dump did not reset the cache to a fresh localhost server")
	}

	reloaded := openTestCache(t, dir)
	defer func() { _ = reloaded.Close() }()
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("reload error: %v", err)
	}

	local, err := reloaded.Server(Localhost)
	if err != nil {
		t.Fatalf("Server(localhost) error: %v", err)
	}
	if local.Len() != 1 {
		t.Fatalf("localhost has %d jobs, want 1", local.Len())
	}
	job := local.Jobs()[0]
	snap := job.Snapshot()
	if snap.JobID != "1234" || snap.Program != "vasp" || snap.Comment != "first attempt" {
		t.Fatalf("job fields lost in round trip: %+v", snap)
	}
	if snap.Status != StatusRunning {
		t.Fatalf("status = %q, want running", snap.Status)
	}
	if !job.ModifiedAt().Equal(stamp) {
		t.Fatalf("modification timestamp changed in round trip: %v, want %v", job.ModifiedAt(), stamp)
	}
	if !reloaded.HasServer("cluster1") {
		t.Fatal("cluster1 server lost in round trip")
	}
}

func TestCache_LoadHoldsLockUntilDump(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := openTestCache(t, dir)
	if err := first.Load(ctx); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	defer func() { _ = first.Close() }()

	second := openTestCache(t, dir)
	err := second.Load(ctx)
	if !IsLock(err) {
		t.Fatalf("expected LockError while first holds the lock, got %v", err)
	}
	var le *LockError
	if !errors.As(err, &le) {
		t.Fatalf("error is not a *LockError: %v", err)
	}
	if le.HolderPID != os.Getpid() {
		t.Fatalf("holder pid = %d, want %d", le.HolderPID, os.Getpid())
	}

	if err := first.Dump(ctx); err != nil {
		t.Fatalf("Dump() error: %v", err)
	}
	if err := second.Load(ctx); err != nil {
		t.Fatalf("Load() after Dump error: %v", err)
	}
	_ = second.Close()
}

func TestCache_CloseReleasesLockOnErrorPath(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cache := openTestCache(t, dir)
	if err := cache.Load(ctx); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if _, err := os.Stat(cache.LockPath()); !os.IsNotExist(err) {
		t.Fatal("lock file still present after Close")
	}
}

func TestCache_StaleLockTakenOver(t *testing.T) {
	dir := t.TempDir()
	cache, err := Open(filepath.Join(dir, "jobkeep.cache"), Config{
		LockMaxAttempts:   2,
		LockRetryDelay:    time.Millisecond,
		TakeOverStaleLock: true,
	})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer func() { _ = cache.Close() }()

	// A pid far beyond any plausible pid_max: the holder is dead.
	if err := os.WriteFile(cache.LockPath(), []byte("99999999"), 0o644); err != nil {
		t.Fatalf("write stale lock: %v", err)
	}

	if err := cache.Load(context.Background()); err != nil {
		t.Fatalf("Load() did not reclaim stale lock: %v", err)
	}
}

func TestCache_StaleLockRespectedWithoutTakeover(t *testing.T) {
	dir := t.TempDir()
	cache := openTestCache(t, dir) // TakeOverStaleLock off

	if err := os.WriteFile(cache.LockPath(), []byte("99999999"), 0o644); err != nil {
		t.Fatalf("write stale lock: %v", err)
	}

	err := cache.Load(context.Background())
	if !IsLock(err) {
		t.Fatalf("expected LockError, got %v", err)
	}
}

func TestCache_LoadRejectsNewerSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobkeep.cache")
	data := `{"schema_version": 99, "saved_at": "2026-08-01T10:00:00Z", "servers": []}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write cache file: %v", err)
	}

	cache, err := Open(path, Config{LockMaxAttempts: 1, LockRetryDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer func() { _ = cache.Close() }()

	if err := cache.Load(context.Background()); err == nil {
		t.Fatal("Load() accepted a cache written by a newer schema")
	}
}

func TestCache_MergeRenamesLocalhost(t *testing.T) {
	ours := openTestCache(t, t.TempDir())
	theirs := openTestCache(t, t.TempDir())

	theirLocal, _ := theirs.Server(Localhost)
	addJob(t, theirLocal, JobSpec{JobID: "42", Program: "vasp", Path: "/w"})

	if err := ours.Merge(theirs, "cluster1"); err != nil {
		t.Fatalf("Merge() error: %v", err)
	}

	merged, err := ours.Server("cluster1")
	if err != nil {
		t.Fatalf("merged localhost not filed under cluster1: %v", err)
	}
	if merged.Hostname() != "cluster1" {
		t.Fatalf("merged server hostname = %q, want cluster1", merged.Hostname())
	}
	if merged.Len() != 1 || merged.Jobs()[0].JobID() != "42" {
		t.Fatalf("merged jobs wrong: %v", jobIDs(merged))
	}

	// Our own localhost is untouched.
	ourLocal, _ := ours.Server(Localhost)
	if ourLocal.Len() != 0 {
		t.Fatalf("merge leaked jobs into our localhost: %v", jobIDs(ourLocal))
	}
}

func TestCache_MergeRequiresUsableHostname(t *testing.T) {
	ours := openTestCache(t, t.TempDir())
	theirs := openTestCache(t, t.TempDir())

	if err := ours.Merge(theirs, ""); !IsValidation(err) {
		t.Fatalf("expected ValidationError for empty hostname, got %v", err)
	}
	if err := ours.Merge(theirs, Localhost); !IsValidation(err) {
		t.Fatalf("expected ValidationError for localhost label, got %v", err)
	}
}

func TestCache_MergeExistingHostIsLastWriterWins(t *testing.T) {
	ours := openTestCache(t, t.TempDir())
	theirs := openTestCache(t, t.TempDir())

	if err := ours.AddServer("cluster1"); err != nil {
		t.Fatalf("AddServer() error: %v", err)
	}
	ourServer, _ := ours.Server("cluster1")
	addJob(t, ourServer, JobSpec{JobID: "7", Program: "vasp", Path: "/w", Comment: "stale"})
	ourServer.jobs[0].modifiedAt = time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	theirLocal, _ := theirs.Server(Localhost)
	addJob(t, theirLocal, JobSpec{JobID: "7", Program: "vasp", Path: "/w", Comment: "fresh"})
	theirLocal.jobs[0].modifiedAt = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	if err := ours.Merge(theirs, "cluster1"); err != nil {
		t.Fatalf("Merge() error: %v", err)
	}
	if got := ourServer.Jobs()[0].Snapshot().Comment; got != "fresh" {
		t.Fatalf("comment = %q, want fresh", got)
	}
}

func TestCache_AddServerRejectsDuplicates(t *testing.T) {
	cache := openTestCache(t, t.TempDir())
	if err := cache.AddServer("cluster1"); err != nil {
		t.Fatalf("AddServer() error: %v", err)
	}
	if err := cache.AddServer("cluster1"); !IsValidation(err) {
		t.Fatalf("expected ValidationError for duplicate, got %v", err)
	}
	if err := cache.AddServer(""); !IsValidation(err) {
		t.Fatalf("expected ValidationError for empty hostname, got %v", err)
	}
}

func TestCache_HostnamesLocalhostFirst(t *testing.T) {
	cache := openTestCache(t, t.TempDir())
	for _, h := range []string{"zeta", "alpha"} {
		if err := cache.AddServer(h); err != nil {
			t.Fatalf("AddServer(%q) error: %v", h, err)
		}
	}
	got := cache.Hostnames()
	want := []string{"localhost", "alpha", "zeta"}
	if len(got) != len(want) {
		t.Fatalf("hostnames = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("hostnames = %v, want %v", got, want)
		}
	}
}
