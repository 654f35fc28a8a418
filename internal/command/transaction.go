package command

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Transaction is a command that groups other commands into one undo unit.
//
// Forward execution runs the children in insertion order, each through its
// own Execute cycle, so every child's completion fires on its own. Reverse
// execution runs them in exactly the reverse order through UnExecute. The
// same command may appear more than once.
type Transaction struct {
	*Command

	mu         sync.Mutex
	children   []*Command
	background bool
}

// NewTransaction creates an empty transaction.
func NewTransaction(opts ...Option) *Transaction {
	t := &Transaction{}
	t.Command = New(transactionEffect{t: t}, opts...)
	return t
}

// Add appends c to the transaction.
// Panics with a *UsageError if c is nil.
func (t *Transaction) Add(c *Command) {
	if c == nil {
		panic(NewUsageError(ErrCodeNilCommand, "cannot add a nil command to transaction %s", t.ID()))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.children = append(t.children, c)
}

// Commands returns a copy of the children in insertion order.
func (t *Transaction) Commands() []*Command {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Command, len(t.children))
	copy(out, t.children)
	return out
}

// Len returns the number of children.
func (t *Transaction) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.children)
}

// Contains reports whether c is one of the children.
func (t *Transaction) Contains(c *Command) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, child := range t.children {
		if child == c {
			return true
		}
	}
	return false
}

// Background reports whether the transaction was opened by a background
// submission. Undo unexecutes such transactions on a worker.
func (t *Transaction) Background() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.background
}

// SetBackground records the dispatch mode of the submission that opened
// the transaction.
func (t *Transaction) SetBackground(background bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.background = background
}

// String lists the children as "1: Name // 2: Name //".
func (t *Transaction) String() string {
	var b strings.Builder
	for i, c := range t.Commands() {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d: %s //", i+1, c.Name())
	}
	return b.String()
}

type transactionEffect struct {
	t *Transaction
}

// Apply stops at the first child whose fault had no receiver.
func (e transactionEffect) Apply(ctx context.Context, _ *Command) error {
	for i, child := range e.t.Commands() {
		if err := child.Execute(ctx); err != nil {
			return fmt.Errorf("transaction child %d (%s): %w", i+1, child.Name(), err)
		}
	}
	return nil
}

func (e transactionEffect) Revert(ctx context.Context, _ *Command) error {
	children := e.t.Commands()
	for i := len(children) - 1; i >= 0; i-- {
		if err := children[i].UnExecute(ctx); err != nil {
			return fmt.Errorf("transaction child %d (%s): %w", i+1, children[i].Name(), err)
		}
	}
	return nil
}

func (transactionEffect) Describe() string { return "" }

func (transactionEffect) Name() string { return "Transaction" }

func (transactionEffect) TryToMerge(*Command) bool { return false }
