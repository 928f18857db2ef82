package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_AppendAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ts := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	err := s.Append(ctx, []Transition{
		{Hostname: "localhost", JobID: "111", From: "running", To: "finished", ChangedAt: ts, RunID: "run-a"},
		{Hostname: "localhost", JobID: "222", From: "queueing", To: "running", ChangedAt: ts.Add(time.Minute), RunID: "run-a"},
	})
	require.NoError(t, err)

	got, err := s.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Newest first.
	assert.Equal(t, "222", got[0].JobID)
	assert.Equal(t, "111", got[1].JobID)
	assert.Equal(t, "running", got[1].From)
	assert.Equal(t, "finished", got[1].To)
	assert.Equal(t, "run-a", got[1].RunID)
	assert.True(t, got[1].ChangedAt.Equal(ts))
}

func TestStore_AppendEmptyIsNoop(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Append(context.Background(), nil))
}

func TestStore_ListFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.Append(ctx, []Transition{
		{Hostname: "localhost", JobID: "111", From: "running", To: "finished", ChangedAt: base},
		{Hostname: "cluster1", JobID: "111", From: "held", To: "queueing", ChangedAt: base.Add(time.Hour)},
		{Hostname: "cluster1", JobID: "222", From: "queueing", To: "running", ChangedAt: base.Add(2 * time.Hour)},
	}))

	got, err := s.List(ctx, Query{Hostname: "cluster1"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.List(ctx, Query{JobID: "111"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.List(ctx, Query{Hostname: "cluster1", JobID: "111"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "queueing", got[0].To)

	got, err = s.List(ctx, Query{Since: base.Add(90 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "222", got[0].JobID)

	got, err = s.List(ctx, Query{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestStore_FileBacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history", "history.db")
	ctx := context.Background()

	s, err := Open(ctx, Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, []Transition{
		{Hostname: "localhost", JobID: "111", From: "unknown", To: "running"},
	}))
	require.NoError(t, s.Close())

	// Reopen: the schema migration must be idempotent and the row durable.
	s, err = Open(ctx, Config{Path: path})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	got, err := s.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "111", got[0].JobID)
	assert.False(t, got[0].ChangedAt.IsZero())
}

func TestStore_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	require.Error(t, err)
}
