package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Kind separates stack operations from command outcomes.
type Kind string

const (
	KindOperation Kind = "operation"
	KindOutcome   Kind = "outcome"
)

// Entry is one journal row.
//
// Operation entries carry Op and the stack depths after the operation.
// Outcome entries carry the command, its direction and status.
type Entry struct {
	Seq           int64
	Kind          Kind
	Op            string
	CommandID     string
	CommandName   string
	TransactionID string
	Direction     string
	Status        string
	Message       string
	Error         string
	Elapsed       time.Duration
	UndoDepth     int
	RedoDepth     int
	RecordedAt    time.Time
}

// Append writes e. Entries are keyed by Seq; writing the same Seq twice
// keeps the first entry.
func (j *Journal) Append(ctx context.Context, e Entry) error {
	if e.Kind != KindOperation && e.Kind != KindOutcome {
		return fmt.Errorf("append entry %d: invalid kind %q", e.Seq, e.Kind)
	}
	recordedAt := e.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO entries
		(seq, kind, op, command_id, command_name, transaction_id, direction, status,
		 message, error, elapsed_us, undo_depth, redo_depth, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		e.Seq,
		string(e.Kind),
		e.Op,
		e.CommandID,
		e.CommandName,
		e.TransactionID,
		e.Direction,
		e.Status,
		e.Message,
		e.Error,
		e.Elapsed.Microseconds(),
		e.UndoDepth,
		e.RedoDepth,
		recordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append entry %d: %w", e.Seq, err)
	}
	return nil
}

const selectEntries = `
	SELECT seq, kind, op, command_id, command_name, transaction_id, direction, status,
	       message, error, elapsed_us, undo_depth, redo_depth, recorded_at
	FROM entries`

// Entries returns every entry ordered by seq.
// Returns an empty slice (not nil) for an empty journal.
func (j *Journal) Entries(ctx context.Context) ([]Entry, error) {
	return j.query(ctx, selectEntries+` ORDER BY seq ASC`)
}

// EntriesForCommand returns the entries naming commandID, ordered by seq.
func (j *Journal) EntriesForCommand(ctx context.Context, commandID string) ([]Entry, error) {
	return j.query(ctx, selectEntries+` WHERE command_id = ? ORDER BY seq ASC`, commandID)
}

// LastSeq returns the highest seq written, or 0 for an empty journal.
// A manager reopening a journal resumes its clock from here.
func (j *Journal) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := j.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM entries`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return seq.Int64, nil
}

func (j *Journal) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e          Entry
			kind       string
			elapsedUS  int64
			recordedAt string
		)
		if err := rows.Scan(
			&e.Seq, &kind, &e.Op, &e.CommandID, &e.CommandName, &e.TransactionID,
			&e.Direction, &e.Status, &e.Message, &e.Error, &elapsedUS,
			&e.UndoDepth, &e.RedoDepth, &recordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Kind = Kind(kind)
		e.Elapsed = time.Duration(elapsedUS) * time.Microsecond
		if e.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
			return nil, fmt.Errorf("parse recorded_at of entry %d: %w", e.Seq, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}
