package manager

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/commanding/internal/command"
	"github.com/roach88/commanding/internal/owner"
)

// dispatch runs c on a worker goroutine without waiting for it.
//
// The command gets a fresh cancellation token. The worker's context keeps
// the caller's values but neither its cancellation nor its owner affinity,
// so completions and progress from the worker are queued on the owner loop.
//
// The worker group has no limit: a worker blocks in MarshallBack until the
// owner loop runs its completion, and a limited group would make the owner
// wait on workers that wait on the owner.
func (m *Manager) dispatch(ctx context.Context, c *command.Command, dir command.Direction) {
	c.ResetToken()
	workerCtx := owner.Detach(context.WithoutCancel(ctx))

	m.logger.Debug("command dispatched to worker", "command", c.ID(), "direction", dir)

	m.workersMu.Lock()
	defer m.workersMu.Unlock()
	m.workers.Go(func() error {
		var err error
		if dir == command.Backward {
			err = c.UnExecute(workerCtx)
		} else {
			err = c.Execute(workerCtx)
		}
		if err != nil {
			m.logger.Error("background command failed",
				"command", c.ID(),
				"direction", dir,
				"error", err)
			return wrapFault(Op("background "+dir.String()), err)
		}
		return nil
	})
}

// Wait blocks until every background command dispatched so far has
// finished and returns the first fault none of them had a callback for.
//
// Wait must not be called from the owner goroutine: workers need the owner
// loop to deliver their completions.
func (m *Manager) Wait() error {
	m.workersMu.Lock()
	g := m.workers
	m.workers = &errgroup.Group{}
	m.workersMu.Unlock()
	return g.Wait()
}
