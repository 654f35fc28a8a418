package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/commanding/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Command  string // optional command ID filter
}

// TraceEntry is one journal entry in trace output.
type TraceEntry struct {
	Seq         int64  `json:"seq"`
	Kind        string `json:"kind"`
	Op          string `json:"op,omitempty"`
	CommandID   string `json:"command_id,omitempty"`
	CommandName string `json:"command_name,omitempty"`
	Transaction string `json:"transaction,omitempty"`
	Direction   string `json:"direction,omitempty"`
	Status      string `json:"status,omitempty"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
	ElapsedMS   int64  `json:"elapsed_ms,omitempty"`
	UndoDepth   int    `json:"undo_depth"`
	RedoDepth   int    `json:"redo_depth"`
	RecordedAt  string `json:"recorded_at"`
}

// TraceStats summarizes a trace.
type TraceStats struct {
	Operations int `json:"operations"`
	Successes  int `json:"successes"`
	Errors     int `json:"errors"`
	Aborts     int `json:"aborts"`
}

// TraceResult is the output of the trace command.
type TraceResult struct {
	Database string       `json:"database"`
	Timeline []TraceEntry `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show a command journal",
		Long: `Print the timeline recorded in a command journal: every stack operation
and every command outcome, in the order the manager produced them.

Examples:
  commanding trace --db ./journal.db
  commanding trace --db ./journal.db --command 0192f3c1-...
  commanding trace --db ./journal.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the journal database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Command, "command", "", "only show entries for this command ID")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	// journal.Open creates missing files; a trace of nothing is a usage error.
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "journal not found", err)
	}
	j, err := journal.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	var entries []journal.Entry
	if opts.Command != "" {
		entries, err = j.EntriesForCommand(ctx, opts.Command)
	} else {
		entries, err = j.Entries(ctx)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	result := buildTrace(opts.Database, entries)
	if out.JSON() {
		return out.Success(result)
	}
	printTraceText(out, result)
	return nil
}

func buildTrace(db string, entries []journal.Entry) TraceResult {
	result := TraceResult{Database: db, Timeline: make([]TraceEntry, 0, len(entries))}
	for _, e := range entries {
		result.Timeline = append(result.Timeline, TraceEntry{
			Seq:         e.Seq,
			Kind:        string(e.Kind),
			Op:          e.Op,
			CommandID:   e.CommandID,
			CommandName: e.CommandName,
			Transaction: e.TransactionID,
			Direction:   e.Direction,
			Status:      e.Status,
			Message:     e.Message,
			Error:       e.Error,
			ElapsedMS:   e.Elapsed.Milliseconds(),
			UndoDepth:   e.UndoDepth,
			RedoDepth:   e.RedoDepth,
			RecordedAt:  e.RecordedAt.UTC().Format(time.RFC3339Nano),
		})

		switch {
		case e.Kind == journal.KindOperation:
			result.Stats.Operations++
		case e.Status == "aborted":
			result.Stats.Aborts++
		case e.Status == "error":
			result.Stats.Errors++
		default:
			result.Stats.Successes++
		}
	}
	return result
}

func printTraceText(out *OutputFormatter, result TraceResult) {
	w := out.Writer
	if len(result.Timeline) == 0 {
		fmt.Fprintf(w, "No entries in %s\n", result.Database)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tEVENT\tCOMMAND\tUNDO/REDO\tDETAIL")
	for _, e := range result.Timeline {
		event := e.Op
		if e.Kind == string(journal.KindOutcome) {
			event = e.Direction + " " + e.Status
		}
		command := e.CommandName
		if e.CommandID != "" {
			command = fmt.Sprintf("%s (%s)", e.CommandName, e.CommandID)
		}
		detail := e.Message
		if e.Error != "" {
			detail = e.Error
		}
		if out.Verbose && e.Transaction != "" {
			detail = fmt.Sprintf("%s [tx %s]", detail, e.Transaction)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d/%d\t%s\n", e.Seq, event, command, e.UndoDepth, e.RedoDepth, detail)
	}
	tw.Flush()

	fmt.Fprintf(w, "\n%d operations, %d succeeded, %d failed, %d aborted\n",
		result.Stats.Operations, result.Stats.Successes, result.Stats.Errors, result.Stats.Aborts)
}
