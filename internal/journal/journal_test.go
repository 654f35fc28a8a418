package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer j.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	version, err := j.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion() failed: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("schema version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestOpen_ReopenKeepsEntries(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	j1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j1.Append(ctx, Entry{Seq: 1, Kind: KindOperation, Op: "do"}))
	require.NoError(t, j1.Close())

	j2, err := Open(path)
	require.NoError(t, err)
	defer j2.Close()

	entries, err := j2.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "do", entries[0].Op)
}

func TestOpen_InMemory(t *testing.T) {
	j, err := Open(":memory:")
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.Entries(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestJournal_AppendAndRead(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	outcome := Entry{
		Seq:           2,
		Kind:          KindOutcome,
		CommandID:     "cmd-1",
		CommandName:   "Increment",
		TransactionID: "tx-1",
		Direction:     "forward",
		Status:        "error",
		Error:         "boom",
		Elapsed:       1500 * time.Microsecond,
		RecordedAt:    at,
	}
	op := Entry{
		Seq:       1,
		Kind:      KindOperation,
		Op:        "do",
		CommandID: "cmd-1",
		UndoDepth: 1,
	}
	require.NoError(t, j.Append(ctx, outcome))
	require.NoError(t, j.Append(ctx, op))

	entries, err := j.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, int64(1), entries[0].Seq, "ordered by seq")
	assert.Equal(t, KindOperation, entries[0].Kind)
	assert.Equal(t, 1, entries[0].UndoDepth)

	got := entries[1]
	assert.Equal(t, KindOutcome, got.Kind)
	assert.Equal(t, "Increment", got.CommandName)
	assert.Equal(t, "tx-1", got.TransactionID)
	assert.Equal(t, "boom", got.Error)
	assert.Equal(t, 1500*time.Microsecond, got.Elapsed)
	assert.True(t, at.Equal(got.RecordedAt))
}

func TestJournal_AppendIsIdempotentPerSeq(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	require.NoError(t, j.Append(ctx, Entry{Seq: 1, Kind: KindOperation, Op: "do"}))
	require.NoError(t, j.Append(ctx, Entry{Seq: 1, Kind: KindOperation, Op: "undo"}))

	entries, err := j.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "do", entries[0].Op)
}

func TestJournal_AppendRejectsUnknownKind(t *testing.T) {
	j := openTestJournal(t)
	err := j.Append(context.Background(), Entry{Seq: 1, Kind: "other"})
	assert.ErrorContains(t, err, "invalid kind")
}

func TestJournal_EntriesForCommand(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	require.NoError(t, j.Append(ctx, Entry{Seq: 1, Kind: KindOutcome, CommandID: "a"}))
	require.NoError(t, j.Append(ctx, Entry{Seq: 2, Kind: KindOutcome, CommandID: "b"}))
	require.NoError(t, j.Append(ctx, Entry{Seq: 3, Kind: KindOutcome, CommandID: "a"}))

	entries, err := j.EntriesForCommand(ctx, "a")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].Seq)
	assert.Equal(t, int64(3), entries[1].Seq)
}

func TestJournal_LastSeq(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	seq, err := j.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)

	require.NoError(t, j.Append(ctx, Entry{Seq: 7, Kind: KindOperation}))
	require.NoError(t, j.Append(ctx, Entry{Seq: 3, Kind: KindOperation}))

	seq, err = j.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), seq)
}
