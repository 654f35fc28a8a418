// Package manager implements the command manager: undo/redo stacks of
// transactions, the autocommit and unbounded-transaction state machine,
// background dispatch and owner-goroutine marshalling.
//
// Threading contract: the stacks and the current-transaction pointer are
// only touched on the owner goroutine. When the manager is bound to an
// owner.Loop, every public operation is sent to that loop, so callers may
// use any goroutine. Without a loop the caller's goroutine is the owner and
// background submissions must not be used.
package manager

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/commanding/internal/command"
	"github.com/roach88/commanding/internal/journal"
	"github.com/roach88/commanding/internal/owner"
)

// Journal receives an audit entry for every stack operation and outcome.
// Implemented by *journal.Journal.
type Journal interface {
	Append(ctx context.Context, e journal.Entry) error
}

// Observer receives instrumentation callbacks.
// Implemented by *metrics.Recorder.
type Observer interface {
	ObserveOutcome(o command.Outcome)
	ObserveDepth(undo, redo int)
	ObserveExcised()
}

// Manager orchestrates command submissions and their undo/redo history.
type Manager struct {
	owner     *owner.Loop
	publisher command.Publisher
	logger    *slog.Logger
	journal   Journal
	observer  Observer
	clock     Sequencer
	ids       command.IDGenerator

	// Owner-goroutine state.
	undo        stack[*command.Transaction]
	redo        stack[*command.Transaction]
	current     *command.Transaction
	autocommit  bool
	unbounded   bool
	builderCall bool
	running     bool

	subsMu  sync.Mutex
	subs    map[int]func(context.Context, Change)
	nextSub int

	workersMu sync.Mutex
	workers   *errgroup.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithOwner binds the manager to an owner loop. The caller runs the loop.
func WithOwner(loop *owner.Loop) Option {
	return func(m *Manager) {
		m.owner = loop
	}
}

// WithPublisher sets the publish capability handed to every submitted command.
func WithPublisher(p command.Publisher) Option {
	return func(m *Manager) {
		m.publisher = p
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithJournal records every operation and outcome to j.
func WithJournal(j Journal) Option {
	return func(m *Manager) {
		m.journal = j
	}
}

// WithObserver reports outcomes and depths to o.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		m.observer = o
	}
}

// WithClock sets the sequencer that stamps journal entries.
func WithClock(s Sequencer) Option {
	return func(m *Manager) {
		m.clock = s
	}
}

// WithIDGenerator sets the generator for transaction IDs.
func WithIDGenerator(gen command.IDGenerator) Option {
	return func(m *Manager) {
		m.ids = gen
	}
}

// New creates a manager in autocommit mode with empty stacks.
func New(opts ...Option) *Manager {
	m := &Manager{
		logger:     slog.Default(),
		clock:      &Clock{},
		ids:        command.UUIDv7Generator{},
		autocommit: true,
		subs:       make(map[int]func(context.Context, Change)),
		workers:    &errgroup.Group{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// onOwner runs fn on the owner goroutine and returns its error.
func (m *Manager) onOwner(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.owner == nil {
		return fn(ctx)
	}
	var err error
	if sendErr := m.owner.Send(ctx, func(ctx context.Context) {
		err = fn(ctx)
	}); sendErr != nil {
		return sendErr
	}
	return err
}

// guarded is onOwner plus the reentrancy guard shared by Do, Undo and Redo.
// A guarded call made while another one is in progress does nothing.
func (m *Manager) guarded(ctx context.Context, op Op, fn func(ctx context.Context) error) error {
	return m.onOwner(ctx, func(ctx context.Context) error {
		if m.running {
			m.logger.Debug("nested stack operation ignored", "op", op)
			return nil
		}
		m.running = true
		defer func() { m.running = false }()
		return fn(ctx)
	})
}

// MarshallBack runs fn on the owner goroutine and waits for it. Without an
// owner loop fn runs inline.
func (m *Manager) MarshallBack(ctx context.Context, fn func(ctx context.Context)) error {
	if m.owner == nil {
		fn(ctx)
		return nil
	}
	return m.owner.Send(ctx, fn)
}

// CanUndo reports whether the undo stack is non-empty.
// Safe from any goroutine.
func (m *Manager) CanUndo() bool { return m.undo.len() > 0 }

// CanRedo reports whether the redo stack is non-empty.
// Safe from any goroutine.
func (m *Manager) CanRedo() bool { return m.redo.len() > 0 }

// UndoDepth returns the number of undo units.
func (m *Manager) UndoDepth() int { return m.undo.len() }

// RedoDepth returns the number of redo units.
func (m *Manager) RedoDepth() int { return m.redo.len() }

// UndoStack returns the undo units, bottom first.
func (m *Manager) UndoStack(ctx context.Context) ([]*command.Transaction, error) {
	var out []*command.Transaction
	err := m.onOwner(ctx, func(context.Context) error {
		out = m.undo.snapshot()
		return nil
	})
	return out, err
}

// RedoStack returns the redo units, bottom first.
func (m *Manager) RedoStack(ctx context.Context) ([]*command.Transaction, error) {
	var out []*command.Transaction
	err := m.onOwner(ctx, func(context.Context) error {
		out = m.redo.snapshot()
		return nil
	})
	return out, err
}

// CurrentTransaction returns the open transaction, or nil.
func (m *Manager) CurrentTransaction(ctx context.Context) (*command.Transaction, error) {
	var tx *command.Transaction
	err := m.onOwner(ctx, func(context.Context) error {
		tx = m.current
		return nil
	})
	return tx, err
}
