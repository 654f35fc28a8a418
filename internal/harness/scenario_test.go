package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScenario_Valid(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: basic
description: "a scenario"
counters:
  a: 1
steps:
  - op: do
    counter: a
    by: 2
    id: first
    background: true
  - op: transaction
    commit: true
    steps:
      - op: do
        abort: "no"
expect:
  counters: { a: 3 }
  undo_depth: 1
assertions:
  - type: trace_contains
    event: "first forward success"
`))
	require.NoError(t, err)

	assert.Equal(t, "basic", s.Name)
	assert.Equal(t, map[string]int{"a": 1}, s.Counters)
	require.Len(t, s.Steps, 2)
	assert.Equal(t, "first", s.Steps[0].ID)
	assert.True(t, s.Steps[0].Background)
	assert.Equal(t, "no", s.Steps[1].Steps[0].Abort)
	require.NotNil(t, s.Expect.UndoDepth)
	assert.Equal(t, 1, *s.Expect.UndoDepth)
	assert.Nil(t, s.Expect.RedoDepth)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "unknown field",
			doc:  "name: x\nstep: []\n",
			want: "failed to parse YAML",
		},
		{
			name: "missing name",
			doc:  "steps:\n  - op: undo\n",
			want: "name is required",
		},
		{
			name: "no steps",
			doc:  "name: x\n",
			want: "steps list is required",
		},
		{
			name: "unknown op",
			doc:  "name: x\nsteps:\n  - op: jump\n",
			want: `steps[0]: unknown op "jump"`,
		},
		{
			name: "undeclared counter",
			doc:  "name: x\nsteps:\n  - op: do\n    counter: a\n",
			want: `steps[0]: unknown counter "a"`,
		},
		{
			name: "abort and fail",
			doc:  "name: x\nsteps:\n  - op: do\n    abort: a\n    fail: b\n",
			want: "mutually exclusive",
		},
		{
			name: "empty transaction",
			doc:  "name: x\nsteps:\n  - op: transaction\n",
			want: "transaction needs steps",
		},
		{
			name: "nested step error",
			doc:  "name: x\nsteps:\n  - op: transaction\n    steps:\n      - op: nope\n",
			want: `steps[0].steps[0]: unknown op "nope"`,
		},
		{
			name: "steps on non-transaction",
			doc:  "name: x\nsteps:\n  - op: undo\n    steps:\n      - op: redo\n",
			want: "only transaction steps may have steps",
		},
		{
			name: "unknown assertion",
			doc:  "name: x\nsteps:\n  - op: undo\nassertions:\n  - type: final_state\n",
			want: `unknown assertion type "final_state"`,
		},
		{
			name: "trace_order without events",
			doc:  "name: x\nsteps:\n  - op: undo\nassertions:\n  - type: trace_order\n",
			want: "events list is required",
		},
		{
			name: "expect unknown counter",
			doc:  "name: x\nsteps:\n  - op: undo\nexpect:\n  counters: { z: 1 }\n",
			want: `unknown counter "z"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenarios_SortedAndValidated(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("name: b\nsteps:\n  - op: undo\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yml"), []byte("name: a\nsteps:\n  - op: redo\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	scenarios, err := LoadScenarios(dir)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "a", scenarios[0].Name)
	assert.Equal(t, "b", scenarios[1].Name)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.yaml"), []byte("name: c\n"), 0o644))
	_, err = LoadScenarios(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "c.yaml")
}
