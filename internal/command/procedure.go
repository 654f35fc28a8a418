package command

import (
	"context"
	"log/slog"
)

// Procedure runs a sequence of steps with a cancellation checkpoint before
// each one. It is bound to the command that created it: progress goes to
// the command's progress callback and cancellation aborts the command.
type Procedure struct {
	cmd          *Command
	ctx          context.Context
	abortMessage string
	cancelled    bool
}

// NewProcedure creates a procedure bound to c. When the procedure observes
// cancellation it aborts c with abortMessage.
func (c *Command) NewProcedure(ctx context.Context, abortMessage string) *Procedure {
	return &Procedure{cmd: c, ctx: ctx, abortMessage: abortMessage}
}

// WithCancellation runs steps in order, reporting the progress each one
// returns. Before every step it checks for cancellation; once cancelled it
// aborts the command, skips the remaining steps and returns true.
func (p *Procedure) WithCancellation(steps ...func() Progress) bool {
	for _, step := range steps {
		if p.cmd.CancellationRequested() {
			p.cancelled = true
			if err := p.cmd.AbortCommand(p.ctx, p.abortMessage); err != nil {
				slog.Warn("abort not delivered", "command", p.cmd.ID(), "error", err)
			}
			return true
		}
		p.cmd.UpdateProgress(p.ctx, step())
	}
	return false
}

// Cancelled reports whether a previous WithCancellation call was cancelled.
func (p *Procedure) Cancelled() bool { return p.cancelled }
