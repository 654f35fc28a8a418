package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot is the part of a result kept in golden files.
type Snapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Counters     map[string]int
}

func (s Snapshot) canonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, e := range s.Trace {
		event := map[string]any{
			"seq":        e.Seq,
			"kind":       e.Kind,
			"undo_depth": e.UndoDepth,
			"redo_depth": e.RedoDepth,
		}
		for key, value := range map[string]string{
			"op":        e.Op,
			"command":   e.Command,
			"direction": e.Direction,
			"status":    e.Status,
			"message":   e.Message,
			"error":     e.Error,
		} {
			if value != "" {
				event[key] = value
			}
		}
		trace[i] = event
	}

	counters := make(map[string]any, len(s.Counters))
	for name, v := range s.Counters {
		counters[name] = v
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
		"counters":      counters,
	}
}

// MarshalSnapshot renders the golden form of a result.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	return MarshalCanonical(Snapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		Counters:     result.Counters,
	}.canonicalMap())
}

// RunWithGolden runs scenario and compares its snapshot with
// testdata/golden/<scenario.Name>.golden. Scenario failures fail the test.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Errorf("%s: %s", scenario.Name, msg)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
