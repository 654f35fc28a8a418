package manager

import (
	"context"

	"github.com/roach88/commanding/internal/command"
	"github.com/roach88/commanding/internal/journal"
)

// Op names a stack operation.
type Op string

const (
	OpDo       Op = "do"
	OpUndo     Op = "undo"
	OpRedo     Op = "redo"
	OpCommit   Op = "commit"
	OpRollback Op = "rollback"
	OpClear    Op = "clear"
	OpAbort    Op = "abort"
)

// Change is the notification raised after every stack-affecting operation.
type Change struct {
	Op        Op
	UndoDepth int
	RedoDepth int
}

// CanUndo reports whether the undo stack was non-empty after the change.
func (c Change) CanUndo() bool { return c.UndoDepth > 0 }

// CanRedo reports whether the redo stack was non-empty after the change.
func (c Change) CanRedo() bool { return c.RedoDepth > 0 }

// Subscribe registers fn for change notifications and returns a function
// that unregisters it. fn runs on the owner goroutine, after the operation
// and in registration order.
//
// Manager calls made from fn must use the ctx it is given. That ctx carries
// the owner affinity; any other ctx is queued behind the running operation
// and never returns.
func (m *Manager) Subscribe(fn func(ctx context.Context, c Change)) (unsubscribe func()) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Manager) subscribers() []func(context.Context, Change) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	out := make([]func(context.Context, Change), 0, len(m.subs))
	for id := 0; id < m.nextSub; id++ {
		if fn, ok := m.subs[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

// changed records and announces a stack-affecting operation.
func (m *Manager) changed(ctx context.Context, op Op, c *command.Command) {
	undo, redo := m.undo.len(), m.redo.len()
	if m.observer != nil {
		m.observer.ObserveDepth(undo, redo)
	}
	m.appendOperation(ctx, op, c)

	change := Change{Op: op, UndoDepth: undo, RedoDepth: redo}
	for _, fn := range m.subscribers() {
		fn(ctx, change)
	}
}

func (m *Manager) appendOperation(ctx context.Context, op Op, c *command.Command) {
	if m.journal == nil {
		return
	}
	e := journal.Entry{
		Seq:       m.clock.Next(),
		Kind:      journal.KindOperation,
		Op:        string(op),
		UndoDepth: m.undo.len(),
		RedoDepth: m.redo.len(),
	}
	if c != nil {
		e.CommandID = c.ID()
		e.CommandName = c.Name()
	}
	if m.current != nil {
		e.TransactionID = m.current.ID()
	}
	m.appendEntry(ctx, e)
}

func (m *Manager) appendOutcome(ctx context.Context, o command.Outcome) {
	if m.journal == nil || o.Command == nil {
		return
	}
	e := journal.Entry{
		Seq:         m.clock.Next(),
		Kind:        journal.KindOutcome,
		CommandID:   o.Command.ID(),
		CommandName: o.Command.Name(),
		Direction:   o.Direction.String(),
		Status:      o.Status(),
		Message:     o.Message,
		Elapsed:     o.Elapsed,
		UndoDepth:   m.undo.len(),
		RedoDepth:   m.redo.len(),
	}
	if o.Err != nil {
		e.Error = o.Err.Error()
	}
	m.appendEntry(ctx, e)
}

// appendEntry writes e. Journal failures are logged and never fail the
// operation being journaled.
func (m *Manager) appendEntry(ctx context.Context, e journal.Entry) {
	if err := m.journal.Append(context.WithoutCancel(ctx), e); err != nil {
		m.logger.Warn("journal append failed",
			"seq", e.Seq,
			"kind", e.Kind,
			"error", err)
	}
}
