// Package owner provides the owner goroutine: a single goroutine that runs
// every task submitted to it, one at a time and in submission order.
//
// The command manager funnels all stack mutations and all marshalled
// callbacks through a Loop, so the undo/redo stacks are only ever touched
// on one goroutine without locking them.
//
// Calls made from inside a task carry the loop's affinity in their context.
// Send recognizes it and runs the function inline instead of queueing it
// behind the task that is waiting for it.
package owner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// ErrStopped is returned for tasks submitted to, or still queued on, a
// stopped loop.
var ErrStopped = errors.New("owner loop stopped")

type affinityKey struct{}

// Loop is the owner goroutine.
//
// Thread-safety model:
//   - Send, Post, Stop, Len: safe from any goroutine
//   - Run: must be called from exactly one goroutine
type Loop struct {
	queue  *taskQueue
	logger *slog.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// New creates a loop. Nothing runs until Run is called.
func New(opts ...Option) *Loop {
	l := &Loop{
		queue:  newTaskQueue(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run drains tasks until ctx is cancelled or Stop is called.
//
// After Stop, tasks already queued still run before Run returns nil. On
// context cancellation queued tasks are failed with ErrStopped and Run
// returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Debug("owner loop starting")

	for {
		if ctx.Err() != nil {
			return l.shutdown(ctx)
		}
		if t, ok := l.queue.TryDequeue(); ok {
			l.runTask(t)
			continue
		}

		select {
		case <-ctx.Done():
			return l.shutdown(ctx)

		case <-l.queue.Wait():
			// The signal channel is closed by Close, so this fires
			// immediately once stopped.
			if l.closedAndEmpty() {
				l.logger.Debug("owner loop stopping: stopped")
				return nil
			}
		}
	}
}

func (l *Loop) shutdown(ctx context.Context) error {
	l.logger.Debug("owner loop stopping: context cancelled")
	l.queue.Close()
	l.fail(l.queue.Drain())
	return ctx.Err()
}

func (l *Loop) closedAndEmpty() bool {
	l.queue.mu.Lock()
	defer l.queue.mu.Unlock()
	return l.queue.closed && len(l.queue.tasks) == 0
}

func (l *Loop) runTask(t task) {
	err := l.invoke(t)
	if t.done != nil {
		t.done <- err
		return
	}
	if err != nil {
		l.logger.Error("posted task failed", "error", err)
	}
}

func (l *Loop) invoke(t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("owner task panicked: %v\n%s", r, debug.Stack())
		}
	}()
	t.fn(l.bind(t.ctx))
	return nil
}

func (l *Loop) fail(tasks []task) {
	for _, t := range tasks {
		if t.done != nil {
			t.done <- ErrStopped
		}
	}
	if len(tasks) > 0 {
		l.logger.Warn("owner loop dropped queued tasks", "count", len(tasks))
	}
}

// bind marks ctx as running on this loop.
func (l *Loop) bind(ctx context.Context) context.Context {
	return context.WithValue(ctx, affinityKey{}, l)
}

// OnLoop reports whether ctx belongs to a task running on this loop.
func (l *Loop) OnLoop(ctx context.Context) bool {
	owner, _ := ctx.Value(affinityKey{}).(*Loop)
	return owner == l
}

// Detach strips loop affinity from ctx. Work handed to another goroutine
// must use a detached context so its marshalled calls are queued instead
// of run inline.
func Detach(ctx context.Context) context.Context {
	if ctx.Value(affinityKey{}) == nil {
		return ctx
	}
	return context.WithValue(ctx, affinityKey{}, (*Loop)(nil))
}

// Send runs fn on the owner goroutine and waits until it has run.
//
// When ctx already carries this loop's affinity, fn runs inline. If ctx is
// done before fn runs, Send returns ctx.Err() but fn may still run later.
// A panic in fn is returned as an error.
func (l *Loop) Send(ctx context.Context, fn func(ctx context.Context)) error {
	if l.OnLoop(ctx) {
		return l.invoke(task{ctx: ctx, fn: fn})
	}

	done := make(chan error, 1)
	if !l.queue.Enqueue(task{ctx: ctx, fn: fn, done: done}) {
		return ErrStopped
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post queues fn without waiting. Returns false if the loop is stopped.
func (l *Loop) Post(ctx context.Context, fn func(ctx context.Context)) bool {
	return l.queue.Enqueue(task{ctx: context.WithoutCancel(ctx), fn: fn})
}

// Stop closes the loop. Queued tasks still run; new ones are rejected.
func (l *Loop) Stop() {
	l.queue.Close()
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int {
	return l.queue.Len()
}
