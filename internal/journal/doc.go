// Package journal stores an append-only audit trail of what a command
// manager did: every stack operation and every accepted command outcome,
// stamped with a logical sequence number.
//
// The journal is for inspection (the `trace` CLI command, tests). It is
// not an undo log: undo/redo state lives only in memory.
package journal
