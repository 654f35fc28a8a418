package command

import (
	"fmt"
	"time"
)

// Direction tells whether a cycle ran forward (execute, redo) or backward (undo).
type Direction int

const (
	// Forward is an Execute cycle.
	Forward Direction = iota + 1
	// Backward is an UnExecute cycle.
	Backward
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Outcome statuses as reported by Outcome.Status.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusAborted = "aborted"
)

// Outcome is the result of one Execute/UnExecute cycle.
//
// Command is a borrowed reference: it is valid for the duration of the
// callback that receives the Outcome and must not be retained after it.
type Outcome struct {
	Command   *Command
	Direction Direction
	Aborted   bool
	Err       error
	Message   string
	Elapsed   time.Duration
}

// Succeeded reports whether the cycle neither faulted nor aborted.
func (o Outcome) Succeeded() bool {
	return !o.Aborted && o.Err == nil
}

// Status returns StatusAborted, StatusError or StatusSuccess.
// An aborted outcome reports aborted even if it also carries an error.
func (o Outcome) Status() string {
	switch {
	case o.Aborted:
		return StatusAborted
	case o.Err != nil:
		return StatusError
	default:
		return StatusSuccess
	}
}

// Progress describes how far a running command has got.
type Progress struct {
	Task       string
	Percentage float64
	Message    string
	Elapsed    time.Duration
}

// Estimated returns the remaining time, extrapolated linearly from Elapsed
// and Percentage. It is zero until some progress has been made.
func (p Progress) Estimated() time.Duration {
	if p.Percentage <= 0 {
		return 0
	}
	elapsed := float64(p.Elapsed.Milliseconds())
	remaining := elapsed*(100/p.Percentage) - elapsed
	return time.Duration(remaining) * time.Millisecond
}

// String renders the progress as a single status line, e.g.
//
//	[Import]: 40% - remaining: 00:00:03.50 - action: reading rows
func (p Progress) String() string {
	remaining := "< 1 ms"
	if est := p.Estimated(); est >= time.Millisecond {
		remaining = formatClock(est)
	}
	return fmt.Sprintf("[%s]: %02.0f%% - remaining: %s - action: %s", p.Task, p.Percentage, remaining, p.Message)
}

// formatClock renders d as hh:mm:ss.ff.
func formatClock(d time.Duration) string {
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	cs := d / (10 * time.Millisecond)
	return fmt.Sprintf("%02d:%02d:%02d.%02d", h, m, s, cs)
}
