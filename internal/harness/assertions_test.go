package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleTrace = []TraceEvent{
	{Seq: 1, Kind: "outcome", Command: "cmd-0001", Direction: "forward", Status: "success"},
	{Seq: 2, Kind: "operation", Op: "do", Command: "cmd-0001"},
	{Seq: 3, Kind: "outcome", Command: "cmd-0001", Direction: "backward", Status: "success"},
	{Seq: 4, Kind: "operation", Op: "undo", Command: "tx-0001"},
	{Seq: 5, Kind: "operation", Op: "do", Command: "cmd-0002"},
}

func TestTraceEvent_Label(t *testing.T) {
	assert.Equal(t, "cmd-0001 forward success", sampleTrace[0].Label())
	assert.Equal(t, "do", sampleTrace[1].Label())
}

func TestAssertTraceContains(t *testing.T) {
	assert.NoError(t, assertTraceContains(sampleTrace, Assertion{Event: "cmd-0001 backward success"}))

	err := assertTraceContains(sampleTrace, Assertion{Event: "cmd-0009 forward success"})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertTraceContains, ae.Type)
	assert.Contains(t, err.Error(), "[4] undo")
}

func TestAssertTraceOrder(t *testing.T) {
	assert.NoError(t, assertTraceOrder(sampleTrace, Assertion{Events: []string{"do", "undo", "do"}}))

	err := assertTraceOrder(sampleTrace, Assertion{Events: []string{"undo", "cmd-0001 forward success"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing "cmd-0001 forward success"`)
}

func TestAssertTraceCount(t *testing.T) {
	assert.NoError(t, assertTraceCount(sampleTrace, Assertion{Event: "do", Count: 2}))
	assert.NoError(t, assertTraceCount(sampleTrace, Assertion{Event: "redo", Count: 0}))

	err := assertTraceCount(sampleTrace, Assertion{Event: "undo", Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 occurrences")
}

func TestEvaluateAssertions(t *testing.T) {
	result := &Result{Trace: sampleTrace}
	failures := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceContains, Event: "do"},
		{Type: AssertTraceCount, Event: "do", Count: 1},
		{Type: "bogus"},
	})
	require.Len(t, failures, 2)
	assert.Contains(t, failures[0], "trace_count")
	assert.Contains(t, failures[1], `unknown assertion type "bogus"`)
}
