package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_AllScenariosPass(t *testing.T) {
	scenarios, err := LoadScenarios(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
		})
	}
}

func mustParse(t *testing.T, doc string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(doc))
	require.NoError(t, err)
	return s
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	s := mustParse(t, `
name: wrong_expectations
counters: { a: 0 }
steps:
  - op: do
    counter: a
    by: 2
expect:
  counters: { a: 3 }
  undo_depth: 0
  can_redo: true
`)
	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Equal(t, []string{
		"expect.counters.a: expected 3, got 2",
		"expect.undo_depth: expected 0, got 1",
		"expect.can_redo: expected true",
	}, result.Errors)
}

func TestRun_UnexpectedStepErrorFails(t *testing.T) {
	s := mustParse(t, `
name: unexpected_fault
steps:
  - op: do
    fail: "boom"
`)
	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[0] (do): unexpected error: do: boom")
}

func TestRun_MissingExpectedErrorFails(t *testing.T) {
	s := mustParse(t, `
name: missing_error
counters: { a: 0 }
steps:
  - op: do
    counter: a
    by: 1
    expect_error: UNBOUNDED_TRANSACTION_OPEN
`)
	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected error")
}

func TestRun_BackgroundStepInsideTransaction(t *testing.T) {
	s := mustParse(t, `
name: background_in_transaction
counters: { a: 0, b: 0 }
steps:
  - op: transaction
    commit: true
    steps:
      - op: do
        counter: a
        by: 1
        background: true
      - op: do
        counter: b
        by: 2
  - op: undo
expect:
  counters: { a: 0, b: 0 }
  undo_depth: 0
  redo_depth: 1
`)
	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
}

func TestRun_JournalToFile(t *testing.T) {
	s := mustParse(t, `
name: journal_file
counters: { a: 0 }
steps:
  - op: do
    counter: a
    by: 1
`)
	path := filepath.Join(t.TempDir(), "journal.db")
	result, err := Run(s, WithJournalPath(path))
	require.NoError(t, err)
	assert.True(t, result.Pass)
	assert.Len(t, result.Trace, 2)
	assert.FileExists(t, path)
}
