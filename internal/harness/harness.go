package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/roach88/commanding/internal/command"
	"github.com/roach88/commanding/internal/counter"
	"github.com/roach88/commanding/internal/journal"
	"github.com/roach88/commanding/internal/manager"
	"github.com/roach88/commanding/internal/owner"
	"github.com/roach88/commanding/internal/testutil"
)

// Harness executes the steps of one scenario.
type Harness struct {
	mgr      *manager.Manager
	counters map[string]*counter.Counter
	ids      *testutil.SequenceGenerator
	logger   *slog.Logger
	result   *Result
}

// Option configures Run.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	journalPath string
}

// WithLogger sets the logger handed to the loop and the manager.
// Defaults to a logger that discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithJournalPath journals to the SQLite database at path instead of an
// in-memory one. Sequence numbers restart at 1 for every scenario, so use
// a fresh path per scenario.
func WithJournalPath(path string) Option {
	return func(o *options) {
		o.journalPath = path
	}
}

// Run executes scenario against a fresh manager and returns the result.
// The error is non-nil only when the run could not be set up; scenario
// failures are reported in the result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		journalPath: ":memory:",
	}
	for _, opt := range opts {
		opt(&o)
	}

	j, err := journal.Open(o.journalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer j.Close()

	loop := owner.New(owner.WithLogger(o.logger))
	loopCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(loopCtx) }()

	mgr := manager.New(
		manager.WithOwner(loop),
		manager.WithJournal(j),
		manager.WithClock(testutil.NewDeterministicClock()),
		manager.WithIDGenerator(testutil.NewSequenceGenerator("tx")),
		manager.WithLogger(o.logger),
	)

	h := &Harness{
		mgr:      mgr,
		counters: make(map[string]*counter.Counter, len(scenario.Counters)),
		ids:      testutil.NewSequenceGenerator("cmd"),
		logger:   o.logger,
		result:   NewResult(),
	}
	for name, v := range scenario.Counters {
		h.counters[name] = counter.New(name, v)
	}

	ctx := context.Background()
	for i, step := range scenario.Steps {
		h.execute(ctx, fmt.Sprintf("steps[%d]", i), step, false)
	}
	if err := mgr.Wait(); err != nil {
		h.result.AddError(fmt.Sprintf("background: %v", err))
	}

	loop.Stop()
	if err := <-loopDone; err != nil {
		return nil, fmt.Errorf("owner loop: %w", err)
	}

	entries, err := j.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	h.result.Trace = traceFromEntries(entries)
	for name, c := range h.counters {
		h.result.Counters[name] = c.Value()
	}
	h.result.UndoDepth = mgr.UndoDepth()
	h.result.RedoDepth = mgr.RedoDepth()

	checkExpect(h.result, scenario.Expect)
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

// execute runs one step and records unexpected errors. Top-level steps wait
// for the workers they started. Nested steps run on the owner goroutine
// inside a transaction and must not wait.
func (h *Harness) execute(ctx context.Context, at string, step Step, nested bool) {
	err := h.apply(ctx, at, step)
	if err == nil && !nested {
		err = h.mgr.Wait()
	}

	h.logger.Debug("scenario step", "step", at, "op", step.Op, "error", err)

	switch {
	case step.ExpectError == "" && err != nil:
		h.result.AddError(fmt.Sprintf("%s (%s): unexpected error: %v", at, step.Op, err))
	case step.ExpectError != "" && err == nil:
		h.result.AddError(fmt.Sprintf("%s (%s): expected error %q, got none", at, step.Op, step.ExpectError))
	case step.ExpectError != "" && !errorMatches(err, step.ExpectError):
		h.result.AddError(fmt.Sprintf("%s (%s): expected error %q, got: %v", at, step.Op, step.ExpectError, err))
	}
}

func (h *Harness) apply(ctx context.Context, at string, step Step) error {
	switch step.Op {
	case OpDo:
		return h.mgr.Do(ctx, h.configure(step))
	case OpUndo:
		return h.mgr.Undo(ctx)
	case OpRedo:
		return h.mgr.Redo(ctx)
	case OpCommit:
		return h.mgr.CommitTransaction(ctx)
	case OpRollback:
		return h.mgr.RollBackTransaction(ctx)
	case OpClear:
		return h.mgr.Clear(ctx)
	case OpTransaction:
		fn := func(ctx context.Context, _ *manager.Manager) error {
			for i, s := range step.Steps {
				h.execute(ctx, fmt.Sprintf("%s.steps[%d]", at, i), s, true)
			}
			return nil
		}
		if step.Commit {
			return h.mgr.RunWithinTransactionAndCommit(ctx, fn)
		}
		return h.mgr.RunWithinTransaction(ctx, fn)
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
}

// configure builds the command and configuration a do step submits.
func (h *Harness) configure(step Step) *command.Config {
	opts := []command.Option{command.WithIDGenerator(h.ids)}
	if step.ID != "" {
		opts = append(opts, command.WithID(step.ID))
	}

	var c *command.Command
	switch {
	case step.Abort != "":
		c = counter.NewAborting(step.Abort, opts...)
	case step.Fail != "":
		c = counter.NewFailing(errors.New(step.Fail), opts...)
	default:
		c = counter.NewIncrement(h.counters[step.Counter], step.By, opts...)
	}

	cfg := command.For(c)
	if step.Record != nil && !*step.Record {
		cfg.WithoutUndo()
	}
	if step.Background {
		cfg.InBackground()
	}
	return cfg
}

func errorMatches(err error, want string) bool {
	if command.HasUsageCode(err, command.UsageErrorCode(want)) {
		return true
	}
	return strings.Contains(err.Error(), want)
}

func checkExpect(r *Result, e *Expect) {
	if e == nil {
		return
	}
	names := make([]string, 0, len(e.Counters))
	for name := range e.Counters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if got, want := r.Counters[name], e.Counters[name]; got != want {
			r.AddError(fmt.Sprintf("expect.counters.%s: expected %d, got %d", name, want, got))
		}
	}
	if e.UndoDepth != nil && *e.UndoDepth != r.UndoDepth {
		r.AddError(fmt.Sprintf("expect.undo_depth: expected %d, got %d", *e.UndoDepth, r.UndoDepth))
	}
	if e.RedoDepth != nil && *e.RedoDepth != r.RedoDepth {
		r.AddError(fmt.Sprintf("expect.redo_depth: expected %d, got %d", *e.RedoDepth, r.RedoDepth))
	}
	if e.CanUndo != nil && *e.CanUndo != (r.UndoDepth > 0) {
		r.AddError(fmt.Sprintf("expect.can_undo: expected %t", *e.CanUndo))
	}
	if e.CanRedo != nil && *e.CanRedo != (r.RedoDepth > 0) {
		r.AddError(fmt.Sprintf("expect.can_redo: expected %t", *e.CanRedo))
	}
}
