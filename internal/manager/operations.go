package manager

import (
	"context"
	"fmt"

	"github.com/roach88/commanding/internal/command"
)

// Do submits a configured command.
//
// The redo stack is cleared first. A recorded submission is appended to the
// current transaction, opening and pushing one if none is open, and then
// run; an unrecorded one just runs if the command can execute. In
// autocommit mode the transaction is closed afterwards, so each Do is one
// undo unit.
//
// Background submissions return once dispatched. Do returns a fault only
// when a foreground command faulted without a completion callback.
func (m *Manager) Do(ctx context.Context, cfg *command.Config) error {
	if cfg == nil || cfg.Command() == nil {
		return command.NewUsageError(command.ErrCodeNilCommand, "Do needs a configured command")
	}
	return m.guarded(ctx, OpDo, func(ctx context.Context) error {
		m.redo.clear()

		c := cfg.Command()
		c.Bind(cfg, m, m.publisher)

		var err error
		if cfg.Recorded() {
			err = m.record(ctx, cfg)
			if command.IsUsageError(err) {
				return err
			}
		} else if c.CanExecute() {
			err = m.run(ctx, c, command.Forward, cfg.Background())
		} else {
			m.logger.Debug("unrecorded command skipped: already executed", "command", c.ID())
		}

		if m.autocommit {
			m.commit()
		}
		m.changed(ctx, OpDo, c)
		return wrapFault(OpDo, err)
	})
}

// record is the record-and-run path of Do.
func (m *Manager) record(ctx context.Context, cfg *command.Config) error {
	if m.unbounded && !m.builderCall {
		return &command.UsageError{
			Code:      command.ErrCodeUnboundedTransactionOpen,
			Message:   "an unbounded transaction is open; commit or roll it back first",
			CommandID: cfg.Command().ID(),
		}
	}

	if m.current == nil {
		m.current = command.NewTransaction(command.WithIDGenerator(m.ids))
		m.current.SetBackground(cfg.Background())
		m.undo.push(m.current)
		m.logger.Debug("transaction opened", "transaction", m.current.ID())
	}
	m.current.Add(cfg.Command())
	return m.run(ctx, cfg.Command(), command.Forward, cfg.Background())
}

// run executes c in the given direction, on a worker when background.
func (m *Manager) run(ctx context.Context, c *command.Command, dir command.Direction, background bool) error {
	if background {
		m.dispatch(ctx, c, dir)
		return nil
	}
	if dir == command.Backward {
		return c.UnExecute(ctx)
	}
	return c.Execute(ctx)
}

// Undo reverts the most recent undo unit and moves it to the redo stack.
// It does nothing when there is nothing to undo.
//
// The unit runs backward on a worker if it was opened by a background
// submission. An open transaction is closed (autocommit) afterwards.
func (m *Manager) Undo(ctx context.Context) error {
	return m.guarded(ctx, OpUndo, func(ctx context.Context) error {
		tx, ok := m.undo.pop()
		if !ok {
			m.logger.Debug("nothing to undo")
			return nil
		}
		m.current = tx
		err := m.run(ctx, tx.Command, command.Backward, tx.Background())
		m.redo.push(tx)
		if m.autocommit {
			m.commit()
		}
		m.changed(ctx, OpUndo, tx.Command)
		return wrapFault(OpUndo, err)
	})
}

// Redo re-executes the most recently undone unit and moves it back to the
// undo stack. It does nothing when there is nothing to redo.
//
// Redo always runs on the calling path, even for units that were
// originally submitted in the background.
func (m *Manager) Redo(ctx context.Context) error {
	return m.guarded(ctx, OpRedo, func(ctx context.Context) error {
		tx, ok := m.redo.pop()
		if !ok {
			m.logger.Debug("nothing to redo")
			return nil
		}
		m.undo.push(tx)
		err := tx.Execute(ctx)
		m.changed(ctx, OpRedo, tx.Command)
		return wrapFault(OpRedo, err)
	})
}

// CommitTransaction closes the current transaction and ends unbounded mode.
func (m *Manager) CommitTransaction(ctx context.Context) error {
	return m.onOwner(ctx, func(ctx context.Context) error {
		tx := m.current
		m.commit()
		if tx != nil {
			m.appendOperation(ctx, OpCommit, tx.Command)
		}
		return nil
	})
}

func (m *Manager) commit() {
	m.current = nil
	m.unbounded = false
}

// RollBackTransaction ends unbounded mode and, if a transaction is open,
// removes it from the undo stack and reverts every command in it.
func (m *Manager) RollBackTransaction(ctx context.Context) error {
	return m.onOwner(ctx, func(ctx context.Context) error {
		m.unbounded = false
		tx := m.current
		if tx == nil {
			return nil
		}
		m.current = nil
		if !m.undo.remove(tx) {
			m.logger.Warn("rolled back transaction was not on the undo stack", "transaction", tx.ID())
		}
		err := tx.UnExecute(ctx)
		m.changed(ctx, OpRollback, tx.Command)
		return wrapFault(OpRollback, err)
	})
}

// RunWithinTransaction runs fn with autocommit disabled and an unbounded
// transaction open, so every Do that fn makes lands in the same undo unit.
// The transaction stays open after fn returns; further calls keep adding
// to it until CommitTransaction or RollBackTransaction.
//
// fn runs on the owner goroutine and must use the ctx it is given for its
// manager calls.
func (m *Manager) RunWithinTransaction(ctx context.Context, fn func(ctx context.Context, m *Manager) error) error {
	return m.onOwner(ctx, func(ctx context.Context) error {
		return m.runWithin(ctx, fn)
	})
}

func (m *Manager) runWithin(ctx context.Context, fn func(ctx context.Context, m *Manager) error) error {
	prevCall, prevAutocommit := m.builderCall, m.autocommit
	m.builderCall = true
	m.unbounded = true
	m.autocommit = false
	defer func() {
		m.builderCall = prevCall
		m.autocommit = prevAutocommit
	}()
	return fn(ctx, m)
}

// RunWithinTransactionAndCommit is RunWithinTransaction followed by
// CommitTransaction. If fn returns an error the transaction is left open
// so the caller can roll it back.
func (m *Manager) RunWithinTransactionAndCommit(ctx context.Context, fn func(ctx context.Context, m *Manager) error) error {
	return m.onOwner(ctx, func(ctx context.Context) error {
		if err := m.runWithin(ctx, fn); err != nil {
			return err
		}
		tx := m.current
		m.commit()
		if tx != nil {
			m.appendOperation(ctx, OpCommit, tx.Command)
		}
		return nil
	})
}

// Clear empties both stacks and drops any open transaction.
func (m *Manager) Clear(ctx context.Context) error {
	return m.onOwner(ctx, func(ctx context.Context) error {
		m.undo.clear()
		m.redo.clear()
		m.commit()
		m.changed(ctx, OpClear, nil)
		return nil
	})
}

// CommandAborted removes the undo unit containing the aborted command.
//
// The whole stack is searched, most recent unit first, and the first unit
// containing the command is removed with all of its commands.
func (m *Manager) CommandAborted(ctx context.Context, o command.Outcome) error {
	return m.onOwner(ctx, func(ctx context.Context) error {
		m.excise(ctx, o)
		return nil
	})
}

func (m *Manager) excise(ctx context.Context, o command.Outcome) {
	if o.Command == nil {
		return
	}
	tx, ok := m.undo.findFromTop(func(tx *command.Transaction) bool {
		return tx.Contains(o.Command)
	})
	if !ok {
		return
	}
	m.undo.remove(tx)
	m.logger.Debug("transaction excised",
		"transaction", tx.ID(),
		"command", o.Command.ID(),
		"message", o.Message)
	if m.observer != nil {
		m.observer.ObserveExcised()
	}
	m.changed(ctx, OpAbort, o.Command)
}

// CommandCompleted is told about every outcome of a command this manager
// submitted. It journals and instruments the outcome and excises the
// owning unit of an aborted command.
//
// Outcomes reported from workers are handled on the owner goroutine, after
// the operation that dispatched them.
func (m *Manager) CommandCompleted(ctx context.Context, o command.Outcome) error {
	return m.onOwner(ctx, func(ctx context.Context) error {
		if m.observer != nil {
			m.observer.ObserveOutcome(o)
		}
		m.appendOutcome(ctx, o)
		if o.Aborted {
			m.excise(ctx, o)
		}
		return nil
	})
}

// wrapFault adds the operation to a fault returned by a command.
func wrapFault(op Op, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
