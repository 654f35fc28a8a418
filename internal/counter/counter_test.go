package counter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/commanding/internal/command"
)

func TestIncrement_AppliesAndReverts(t *testing.T) {
	ctx := context.Background()
	c := New("a", 1)
	cmd := NewIncrement(c, 5)

	require.NoError(t, cmd.Execute(ctx))
	assert.Equal(t, 6, c.Value())

	require.NoError(t, cmd.UnExecute(ctx))
	assert.Equal(t, 1, c.Value())
	assert.Equal(t, "CMD Increment : a by 5", cmd.String())
}

func TestIncrement_MergesSameCounterOnly(t *testing.T) {
	a, b := New("a", 0), New("b", 0)
	first := NewIncrement(a, 1)

	assert.True(t, first.TryToMerge(NewIncrement(a, 2)))
	assert.False(t, first.TryToMerge(NewIncrement(b, 2)))
	assert.False(t, first.TryToMerge(NewAborting("no")))
	assert.Equal(t, 3, first.Effect().(*Increment).By)
}

func TestAborting_CompletesAsAborted(t *testing.T) {
	ctx := context.Background()
	cmd := NewAborting("No You can't!")

	var got command.Outcome
	command.For(cmd).WhenCompleted(func(_ context.Context, o command.Outcome) { got = o })

	require.NoError(t, cmd.Execute(ctx))
	assert.True(t, got.Aborted)
	assert.Equal(t, "No You can't!", got.Message)
	assert.Equal(t, int64(1), cmd.ExecuteCount())
}

func TestFailing_ReturnsErrorWithoutCallback(t *testing.T) {
	errBoom := errors.New("boom")
	cmd := NewFailing(errBoom)

	err := cmd.Execute(context.Background())
	assert.ErrorIs(t, err, errBoom)
}

func TestProgressing_ReportsEvenSteps(t *testing.T) {
	ctx := context.Background()
	cmd := NewProgressing("work", 9, 0)

	var pct []float64
	command.For(cmd).OnProgress(func(_ context.Context, p command.Progress) {
		pct = append(pct, p.Percentage)
	})

	require.NoError(t, cmd.Execute(ctx))
	require.Len(t, pct, 9)
	assert.InDelta(t, 10, pct[0], 0.001)
	assert.InDelta(t, 60, pct[5], 0.001)
	assert.InDelta(t, 90, pct[8], 0.001)
}

func TestLoop_RunsAllIterationsWhenNotCancelled(t *testing.T) {
	ctx := context.Background()
	c := New("loop", 0)
	cmd := NewLoop(c, 100)
	assert.True(t, cmd.IsCancelable())

	require.NoError(t, cmd.Execute(ctx))
	assert.Equal(t, 100, c.Value())

	require.NoError(t, cmd.UnExecute(ctx))
	assert.Equal(t, 0, c.Value())
}

func TestLoop_CancelFromProgressStopsAtNextCheckpoint(t *testing.T) {
	ctx := context.Background()
	c := New("loop", 0)
	cmd := NewLoop(c, 100)

	var got command.Outcome
	command.For(cmd).
		OnProgress(func(context.Context, command.Progress) {
			if c.Value() == 3 {
				require.NoError(t, cmd.Cancel())
			}
		}).
		WhenCompleted(func(_ context.Context, o command.Outcome) { got = o })

	require.NoError(t, cmd.Execute(ctx))
	assert.Equal(t, 3, c.Value())
	assert.Equal(t, 3, cmd.Effect().(*Loop).Done())
	assert.True(t, got.Aborted)
	assert.Equal(t, command.CancelledMessage, got.Message)
}

func TestBatch_CancelledBeforeStartDoesNothing(t *testing.T) {
	ctx := context.Background()
	c := New("batch", 0)
	cmd := NewBatch(c, 4)
	require.NoError(t, cmd.Cancel())

	var got command.Outcome
	command.For(cmd).WhenCompleted(func(_ context.Context, o command.Outcome) { got = o })

	require.NoError(t, cmd.Execute(ctx))
	assert.Equal(t, 0, c.Value())
	assert.True(t, got.Aborted)
	assert.Equal(t, "batch cancelled", got.Message)
}

func TestBatch_RunsEveryStep(t *testing.T) {
	c := New("batch", 0)
	cmd := NewBatch(c, 4)

	require.NoError(t, cmd.Execute(context.Background()))
	assert.Equal(t, 4, c.Value())
}

func TestBatch_RevertTakesBackOnlyStepsThatRan(t *testing.T) {
	ctx := context.Background()
	c := New("batch", 0)
	cmd := NewBatch(c, 10)

	var got command.Outcome
	command.For(cmd).
		OnProgress(func(context.Context, command.Progress) {
			if c.Value() == 2 {
				require.NoError(t, cmd.Cancel())
			}
		}).
		WhenCompleted(func(_ context.Context, o command.Outcome) { got = o })

	require.NoError(t, cmd.Execute(ctx))
	assert.True(t, got.Aborted)
	assert.Equal(t, 2, c.Value())
	assert.Equal(t, 2, cmd.Effect().(*Batch).Done())

	require.NoError(t, cmd.UnExecute(ctx))
	assert.Equal(t, 0, c.Value())
}

func TestCompleting_OnlyFirstCompletionCounts(t *testing.T) {
	ctx := context.Background()
	cmd := NewCompleting(3)

	calls := 0
	command.For(cmd).WhenCompleted(func(context.Context, command.Outcome) { calls++ })

	require.NoError(t, cmd.Execute(ctx))
	assert.Equal(t, 1, calls)
}
