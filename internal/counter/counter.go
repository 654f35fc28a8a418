// Package counter provides reference commands over a shared integer
// counter. The harness scenarios, the CLI and the manager tests drive the
// engine with them.
package counter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/commanding/internal/command"
)

// Counter is a named integer safe for concurrent use.
type Counter struct {
	mu    sync.Mutex
	name  string
	value int
}

// New creates a counter starting at initial.
func New(name string, initial int) *Counter {
	return &Counter{name: name, value: initial}
}

// Name returns the counter name.
func (c *Counter) Name() string { return c.name }

// Value returns the current value.
func (c *Counter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Add adds n and returns the new value.
func (c *Counter) Add(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value += n
	return c.value
}

// Increment adds By to a counter forward and subtracts it backward.
type Increment struct {
	Counter *Counter
	By      int
}

// NewIncrement creates an increment command.
func NewIncrement(c *Counter, by int, opts ...command.Option) *command.Command {
	return command.New(&Increment{Counter: c, By: by}, opts...)
}

// Apply adds By.
func (e *Increment) Apply(context.Context, *command.Command) error {
	e.Counter.Add(e.By)
	return nil
}

// Revert subtracts By.
func (e *Increment) Revert(context.Context, *command.Command) error {
	e.Counter.Add(-e.By)
	return nil
}

// Describe renders "<counter> by <n>".
func (e *Increment) Describe() string {
	return fmt.Sprintf("%s by %d", e.Counter.Name(), e.By)
}

// TryToMerge absorbs a following increment of the same counter.
func (e *Increment) TryToMerge(next *command.Command) bool {
	other, ok := next.Effect().(*Increment)
	if !ok || other.Counter != e.Counter {
		return false
	}
	e.By += other.By
	return true
}

// Aborting rejects itself forward with Message.
type Aborting struct {
	Message string
}

// NewAborting creates a command that always aborts.
func NewAborting(message string, opts ...command.Option) *command.Command {
	return command.New(&Aborting{Message: message}, opts...)
}

// Apply aborts c with Message.
func (e *Aborting) Apply(ctx context.Context, c *command.Command) error {
	return c.AbortCommand(ctx, e.Message)
}

// Revert does nothing.
func (e *Aborting) Revert(context.Context, *command.Command) error { return nil }

// Describe returns Message.
func (e *Aborting) Describe() string { return e.Message }

// Failing returns Err in both directions.
type Failing struct {
	Err error
}

// NewFailing creates a command that always faults with err.
func NewFailing(err error, opts ...command.Option) *command.Command {
	return command.New(&Failing{Err: err}, opts...)
}

// Apply returns Err.
func (e *Failing) Apply(context.Context, *command.Command) error { return e.Err }

// Revert returns Err.
func (e *Failing) Revert(context.Context, *command.Command) error { return e.Err }

// Progressing reports Updates progress steps of 100/(Updates+1) percent,
// sleeping Delay before each.
type Progressing struct {
	Task    string
	Updates int
	Delay   time.Duration
}

// NewProgressing creates a command that only reports progress.
func NewProgressing(task string, updates int, delay time.Duration, opts ...command.Option) *command.Command {
	return command.New(&Progressing{Task: task, Updates: updates, Delay: delay}, opts...)
}

// Apply reports each step in turn.
func (e *Progressing) Apply(ctx context.Context, c *command.Command) error {
	step := 100 / float64(e.Updates+1)
	for i := 1; i <= e.Updates; i++ {
		if e.Delay > 0 {
			time.Sleep(e.Delay)
		}
		c.UpdateProgress(ctx, command.Progress{
			Task:       e.Task,
			Percentage: float64(i) * step,
			Message:    fmt.Sprintf("step %d of %d", i, e.Updates),
		})
	}
	return nil
}

// Revert does nothing.
func (e *Progressing) Revert(context.Context, *command.Command) error { return nil }

// Loop adds 1 to Counter per iteration with a cancellation checkpoint
// before each. Revert takes back the iterations that ran.
type Loop struct {
	Counter    *Counter
	Iterations int

	mu   sync.Mutex
	done int
}

// NewLoop creates a cancelable looping command.
func NewLoop(c *Counter, iterations int, opts ...command.Option) *command.Command {
	opts = append([]command.Option{command.Cancelable()}, opts...)
	return command.New(&Loop{Counter: c, Iterations: iterations}, opts...)
}

// Apply runs the iterations until done or cancelled.
func (e *Loop) Apply(ctx context.Context, c *command.Command) error {
	for i := 0; i < e.Iterations; i++ {
		cancelled := c.AsCancelable(ctx, func() command.Progress {
			e.Counter.Add(1)
			e.mu.Lock()
			e.done++
			e.mu.Unlock()
			return command.Progress{
				Task:       "loop",
				Percentage: float64(i+1) * 100 / float64(e.Iterations),
			}
		})
		if cancelled {
			return nil
		}
	}
	return nil
}

// Revert subtracts the iterations that ran.
func (e *Loop) Revert(context.Context, *command.Command) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Counter.Add(-e.done)
	e.done = 0
	return nil
}

// Done returns how many iterations ran in the last forward cycle.
func (e *Loop) Done() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// Batch adds 1 to Counter per step inside a cancelable procedure.
// Revert takes back the steps that ran.
type Batch struct {
	Counter *Counter
	Steps   int

	mu   sync.Mutex
	done int
}

// NewBatch creates a procedure-driven cancelable command.
func NewBatch(c *Counter, steps int, opts ...command.Option) *command.Command {
	opts = append([]command.Option{command.Cancelable()}, opts...)
	return command.New(&Batch{Counter: c, Steps: steps}, opts...)
}

// Apply runs the steps as a procedure that stops on cancellation.
func (e *Batch) Apply(ctx context.Context, c *command.Command) error {
	steps := make([]func() command.Progress, e.Steps)
	for i := range steps {
		steps[i] = func() command.Progress {
			e.Counter.Add(1)
			e.mu.Lock()
			e.done++
			e.mu.Unlock()
			return command.Progress{Task: "batch", Percentage: float64(i+1) * 100 / float64(e.Steps)}
		}
	}
	c.NewProcedure(ctx, "batch cancelled").WithCancellation(steps...)
	return nil
}

// Revert subtracts the steps that ran.
func (e *Batch) Revert(context.Context, *command.Command) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Counter.Add(-e.done)
	e.done = 0
	return nil
}

// Done returns how many steps ran in the last forward cycle.
func (e *Batch) Done() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// Completing calls Completed Times times explicitly.
type Completing struct {
	Times int
}

// NewCompleting creates a command that signals completion itself.
func NewCompleting(times int, opts ...command.Option) *command.Command {
	return command.New(&Completing{Times: times}, opts...)
}

// Apply calls Completed Times times with a success outcome.
func (e *Completing) Apply(ctx context.Context, c *command.Command) error {
	for i := 0; i < e.Times; i++ {
		if err := c.Completed(ctx, command.Outcome{}); err != nil {
			return err
		}
	}
	return nil
}

// Revert does nothing.
func (e *Completing) Revert(context.Context, *command.Command) error { return nil }
