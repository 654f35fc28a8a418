package harness

import (
	"fmt"

	"github.com/roach88/commanding/internal/journal"
)

// TraceEvent is one journal entry as seen by assertions and golden files.
type TraceEvent struct {
	Seq       int64  `json:"seq"`
	Kind      string `json:"kind"`
	Op        string `json:"op,omitempty"`
	Command   string `json:"command,omitempty"`
	Direction string `json:"direction,omitempty"`
	Status    string `json:"status,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	UndoDepth int    `json:"undo_depth"`
	RedoDepth int    `json:"redo_depth"`
}

// Label is the string assertions match the event by.
func (e TraceEvent) Label() string {
	if e.Kind == string(journal.KindOperation) {
		return e.Op
	}
	return fmt.Sprintf("%s %s %s", e.Command, e.Direction, e.Status)
}

func traceFromEntries(entries []journal.Entry) []TraceEvent {
	trace := make([]TraceEvent, len(entries))
	for i, e := range entries {
		trace[i] = TraceEvent{
			Seq:       e.Seq,
			Kind:      string(e.Kind),
			Op:        e.Op,
			Command:   e.CommandID,
			Direction: e.Direction,
			Status:    e.Status,
			Message:   e.Message,
			Error:     e.Error,
			UndoDepth: e.UndoDepth,
			RedoDepth: e.RedoDepth,
		}
	}
	return trace
}

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when no step failed unexpectedly and every expectation
	// and assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	Errors []string `json:"errors,omitempty"`

	// Counters holds the final counter values.
	Counters map[string]int `json:"counters"`

	UndoDepth int `json:"undo_depth"`
	RedoDepth int `json:"redo_depth"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Counters: make(map[string]int),
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
