package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of manager operations with the state and
// trace expected afterwards.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Counters declares the counters steps may touch, with initial values.
	Counters map[string]int `yaml:"counters"`

	Steps []Step `yaml:"steps"`

	Expect *Expect `yaml:"expect,omitempty"`

	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one manager operation.
type Step struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	// Counter and By describe the increment a do step submits.
	Counter string `yaml:"counter,omitempty"`
	By      int    `yaml:"by,omitempty"`

	// ID fixes the command ID. Defaults to the next "cmd-NNNN".
	ID string `yaml:"id,omitempty"`

	// Abort makes the do step submit a command that aborts with this message.
	Abort string `yaml:"abort,omitempty"`

	// Fail makes the do step submit a command that faults with this message.
	Fail string `yaml:"fail,omitempty"`

	Background bool `yaml:"background,omitempty"`

	// Record set to false submits without undo.
	Record *bool `yaml:"record,omitempty"`

	// Commit closes a transaction step's transaction when its steps are done.
	Commit bool `yaml:"commit,omitempty"`

	// Steps are run inside a transaction step.
	Steps []Step `yaml:"steps,omitempty"`

	// ExpectError is a usage error code or a substring of the error the
	// step must return. A step without it must not fail.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step operations.
const (
	OpDo          = "do"
	OpUndo        = "undo"
	OpRedo        = "redo"
	OpCommit      = "commit"
	OpRollback    = "rollback"
	OpClear       = "clear"
	OpTransaction = "transaction"
)

// Expect is the state checked after the last step.
type Expect struct {
	Counters  map[string]int `yaml:"counters,omitempty"`
	UndoDepth *int           `yaml:"undo_depth,omitempty"`
	RedoDepth *int           `yaml:"redo_depth,omitempty"`
	CanUndo   *bool          `yaml:"can_undo,omitempty"`
	CanRedo   *bool          `yaml:"can_redo,omitempty"`
}

// Assertion checks the trace.
type Assertion struct {
	// Type is one of trace_contains, trace_order or trace_count.
	Type string `yaml:"type"`

	// Event is the label matched by trace_contains and trace_count.
	Event string `yaml:"event,omitempty"`

	// Events are the labels trace_order expects, in order.
	Events []string `yaml:"events,omitempty"`

	Count int `yaml:"count,omitempty"`
}

// Assertion types.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml and *.yml file in dir, sorted by path.
func LoadScenarios(dir string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if err := validateSteps("steps", s.Steps, s.Counters); err != nil {
		return err
	}
	if s.Expect != nil {
		for name := range s.Expect.Counters {
			if _, ok := s.Counters[name]; !ok {
				return fmt.Errorf("expect.counters: unknown counter %q", name)
			}
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateSteps(path string, steps []Step, counters map[string]int) error {
	for i, step := range steps {
		at := fmt.Sprintf("%s[%d]", path, i)
		switch step.Op {
		case OpDo:
			if step.Abort != "" && step.Fail != "" {
				return fmt.Errorf("%s: abort and fail are mutually exclusive", at)
			}
			if step.Abort == "" && step.Fail == "" {
				if step.Counter == "" {
					return fmt.Errorf("%s: counter is required for do", at)
				}
				if _, ok := counters[step.Counter]; !ok {
					return fmt.Errorf("%s: unknown counter %q", at, step.Counter)
				}
			}
		case OpTransaction:
			if len(step.Steps) == 0 {
				return fmt.Errorf("%s: transaction needs steps", at)
			}
			if err := validateSteps(at+".steps", step.Steps, counters); err != nil {
				return err
			}
		case OpUndo, OpRedo, OpCommit, OpRollback, OpClear:
		case "":
			return fmt.Errorf("%s: op is required", at)
		default:
			return fmt.Errorf("%s: unknown op %q", at, step.Op)
		}
		if step.Op != OpTransaction && len(step.Steps) > 0 {
			return fmt.Errorf("%s: only transaction steps may have steps", at)
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
