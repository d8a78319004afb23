package journal

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpen_CreatesSchema(t *testing.T) {
	j := newTestJournal(t)

	entries, err := j.List(context.Background(), ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOpen_ReopensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	require.NoError(t, j.Record(context.Background(), Entry{Command: "init", Outcome: OutcomeSuccess}))
	require.NoError(t, j.Close())

	j, err = Open(path, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.List(context.Background(), ListOptions{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestOpen_BadPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "journal.db"), nil)
	assert.Error(t, err)
}

func TestRecord_InsertsEntry(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	started := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(3 * time.Second)

	err := j.Record(ctx, Entry{
		Command:    "start",
		Arguments:  "postgresql airflow",
		Outcome:    OutcomeSuccess,
		Detail:     "2 services started",
		StartedAt:  started,
		FinishedAt: finished,
	})
	require.NoError(t, err)

	entries, err := j.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.NotZero(t, e.ID)
	assert.NotEmpty(t, e.ReferenceID)
	assert.Equal(t, "start", e.Command)
	assert.Equal(t, "postgresql airflow", e.Arguments)
	assert.Equal(t, OutcomeSuccess, e.Outcome)
	assert.Equal(t, "2 services started", e.Detail)
	assert.Equal(t, started, e.StartedAt)
	assert.Equal(t, finished, e.FinishedAt)
}

func TestRecord_GeneratesReferenceID(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Record(ctx, Entry{Command: "init", Outcome: OutcomeSuccess}))
	require.NoError(t, j.Record(ctx, Entry{Command: "init", Outcome: OutcomeSuccess}))

	entries, err := j.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.NotEmpty(t, entries[0].ReferenceID)
	assert.NotEqual(t, entries[0].ReferenceID, entries[1].ReferenceID)
}

func TestRecord_KeepsProvidedReferenceID(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	err := j.Record(ctx, Entry{ReferenceID: "op-fixed", Command: "stop", Outcome: OutcomeError, Detail: "compose failed"})
	require.NoError(t, err)

	entries, err := j.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "op-fixed", entries[0].ReferenceID)
}

func TestRecord_DuplicateReferenceID(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Record(ctx, Entry{ReferenceID: "op-1", Command: "init", Outcome: OutcomeSuccess}))

	err := j.Record(ctx, Entry{ReferenceID: "op-1", Command: "init", Outcome: OutcomeSuccess})
	assert.Error(t, err)
}

func TestRecord_DefaultsTimestamps(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	before := time.Now().Add(-time.Second)
	require.NoError(t, j.Record(ctx, Entry{Command: "status", Outcome: OutcomeSuccess}))

	entries, err := j.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].StartedAt.Before(before.Truncate(time.Second)))
	assert.Equal(t, entries[0].StartedAt, entries[0].FinishedAt)
}

func TestList_NewestFirst(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	for _, cmd := range []string{"init", "start", "stop"} {
		require.NoError(t, j.Record(ctx, Entry{Command: cmd, Outcome: OutcomeSuccess}))
	}

	entries, err := j.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "stop", entries[0].Command)
	assert.Equal(t, "start", entries[1].Command)
	assert.Equal(t, "init", entries[2].Command)
}

func TestList_LimitAndOffset(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	for _, cmd := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, j.Record(ctx, Entry{Command: cmd, Outcome: OutcomeSuccess}))
	}

	entries, err := j.List(ctx, ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e", entries[0].Command)
	assert.Equal(t, "d", entries[1].Command)

	entries, err = j.List(ctx, ListOptions{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].Command)
	assert.Equal(t, "b", entries[1].Command)
}

func TestListOptions_Normalize(t *testing.T) {
	opts := ListOptions{}.Normalize()
	assert.Equal(t, 100, opts.Limit)
	assert.Equal(t, 0, opts.Offset)

	opts = ListOptions{Limit: -5, Offset: -1}.Normalize()
	assert.Equal(t, 100, opts.Limit)
	assert.Equal(t, 0, opts.Offset)

	opts = ListOptions{Limit: 5000, Offset: 10}.Normalize()
	assert.Equal(t, 1000, opts.Limit)
	assert.Equal(t, 10, opts.Offset)
}
