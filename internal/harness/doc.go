// Package harness runs YAML scenarios against a real command manager and
// checks the resulting journal trace.
//
// Every scenario gets a fresh manager bound to its own owner loop, an
// in-memory journal, a deterministic clock and sequential command IDs, so
// the same scenario always produces the same trace. Background steps are
// waited for before the next step runs.
//
// # Scenario Format
//
//	name: undo_restores_value
//	description: "Undo reverts the last increment"
//	counters:
//	  a: 1
//	steps:
//	  - op: do
//	    counter: a
//	    by: 1
//	  - op: undo
//	  - op: transaction
//	    commit: true
//	    steps:
//	      - op: do
//	        counter: a
//	        by: 5
//	      - op: do
//	        abort: "not allowed"
//	expect:
//	  counters: { a: 6 }
//	  undo_depth: 0
//	  can_redo: false
//	assertions:
//	  - type: trace_contains
//	    event: "cmd-0003 forward aborted"
//	  - type: trace_order
//	    events: [do, undo, abort]
//	  - type: trace_count
//	    event: do
//	    count: 1
//
// # Trace Labels
//
// Assertions match events by label. An operation entry is labelled with
// its op ("do", "undo", "redo", "commit", "rollback", "clear", "abort"). An
// outcome entry is labelled "<command-id> <direction> <status>".
//
// # Golden Files
//
// RunWithGolden renders the trace and final counters as canonical JSON and
// compares them with testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
