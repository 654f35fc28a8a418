// Package command implements the command lifecycle: a unit of work with a
// forward and a reverse effect, an at-most-once completion hook per cycle,
// cooperative cancellation and progress reporting.
//
// A Command wraps an Effect. The Effect does the actual work; the Command
// owns the bookkeeping around it:
//
//   - Execute/UnExecute run one cycle and move the execution counter by +1/-1
//     afterwards, whatever the outcome was.
//   - Faults returned (or panicked) by the effect are captured into an Outcome
//     and delivered through the completion path, never returned directly.
//   - If the effect returns without signalling completion, a success Outcome
//     is delivered automatically.
//   - The first Completed call in a cycle wins; later calls are dropped.
//
// Outcomes are delivered to the Config's completion callback. When the
// command is bound to a Host (the manager), the Host is told about every
// accepted outcome first and the callback is marshalled through
// Host.MarshallBack so it runs on the owner goroutine. Without a Host the
// callback runs inline. Without a callback, a fault Outcome is returned to
// whoever called Execute/UnExecute.
//
// Transaction is itself a Command whose effect runs its children in
// insertion order forward and strictly reversed backward.
package command
