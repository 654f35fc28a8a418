package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcedure_RunsAllStepsWhenNotCancelled(t *testing.T) {
	ctx := context.Background()
	ran := 0
	step := func() Progress {
		ran++
		return Progress{Task: "import", Percentage: float64(ran * 25)}
	}

	var cancelled bool
	c := New(Funcs{Forward: func(ctx context.Context, c *Command) error {
		cancelled = c.NewProcedure(ctx, "import cancelled").WithCancellation(step, step, step, step)
		return nil
	}}, Cancelable())

	var progress []float64
	var got Outcome
	For(c).
		WhenCompleted(func(_ context.Context, o Outcome) { got = o }).
		OnProgress(func(_ context.Context, p Progress) { progress = append(progress, p.Percentage) })

	require.NoError(t, c.Execute(ctx))
	assert.False(t, cancelled)
	assert.Equal(t, 4, ran)
	assert.Equal(t, []float64{25, 50, 75, 100}, progress)
	assert.True(t, got.Succeeded())
}

func TestProcedure_CancellationAbortsCommand(t *testing.T) {
	ctx := context.Background()
	ran := 0

	var proc *Procedure
	c := New(Funcs{Forward: func(ctx context.Context, c *Command) error {
		proc = c.NewProcedure(ctx, "import cancelled")
		proc.WithCancellation(
			func() Progress { ran++; return Progress{Percentage: 30} },
			func() Progress { ran++; _ = c.Cancel(); return Progress{Percentage: 60} },
			func() Progress { ran++; return Progress{Percentage: 90} },
		)
		return nil
	}}, Cancelable())

	var got Outcome
	For(c).WhenCompleted(func(_ context.Context, o Outcome) { got = o })

	require.NoError(t, c.Execute(ctx))
	assert.Equal(t, 2, ran)
	assert.True(t, proc.Cancelled())
	assert.True(t, got.Aborted)
	assert.Equal(t, "import cancelled", got.Message)
}
