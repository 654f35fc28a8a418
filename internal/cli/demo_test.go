package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoCommand_JSON(t *testing.T) {
	out, err := execute(t, "demo", "--format", "json", "--delay", "0", "--metrics")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   DemoResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	// 1 + 5 + 10, then four loop iterations before the cancel lands.
	assert.Equal(t, 20, resp.Data.Total)
	assert.Equal(t, 3, resp.Data.UndoDepth)
	assert.Equal(t, 0, resp.Data.RedoDepth)

	assert.Contains(t, resp.Data.Events, "published demo.started: total")
	assert.Contains(t, resp.Data.Events, "Loop forward: aborted (execution of the current action was cancelled), total=20")
	assert.Contains(t, resp.Data.Events, "abort: can undo=true can redo=false")

	assert.Equal(t, 1.0, resp.Data.Metrics["commanding_transactions_excised_total"])
	assert.Equal(t, 3.0, resp.Data.Metrics["commanding_undo_depth"])
	assert.Equal(t, 1.0, resp.Data.Metrics[`commanding_outcomes_total{direction="forward",status="aborted"}`])
}

func TestDemoCommand_JournalsToDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "demo.db")

	out, err := execute(t, "demo", "--db", db, "--delay", "0", "--cancel-at", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "total=26 undo=4 redo=0")

	out, err = execute(t, "trace", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Loop")
	assert.Contains(t, out, "0 aborted")

	// A second session resumes the journal's numbering.
	_, err = execute(t, "demo", "--db", db, "--delay", "0")
	require.NoError(t, err)
}

func TestDemoCommand_RejectsBadIterations(t *testing.T) {
	_, err := execute(t, "demo", "--iterations", "0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
