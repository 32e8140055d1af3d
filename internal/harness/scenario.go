package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/stateengine/internal/compiler"
	"github.com/roach88/stateengine/internal/engine"
)

// Scenario defines a conformance test scenario.
// A scenario runs one workflow model with scripted state handlers and
// checks the resulting run against an expect block and assertions.
type Scenario struct {
	// Name uniquely identifies this scenario. Run ids are derived from it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Model is the path to the workflow model file (YAML, JSON or CUE).
	// Relative paths are resolved against the scenario file location.
	Model string `yaml:"model"`

	// Script lists, per state, the transitions its handler emits on each
	// successive execution. An entry is a comma-separated list of
	// transition names; "" emits nothing. The last entry repeats.
	// States without a script emit nothing.
	Script map[string][]string `yaml:"script,omitempty"`

	// Alter patches the model before the run.
	Alter []compiler.OpSpec `yaml:"alter,omitempty"`

	// Resume, if set, resumes from these comma-separated states instead
	// of starting a new run.
	Resume string `yaml:"resume,omitempty"`

	// MaxCycles overrides the model's dispatch-cycle ceiling.
	MaxCycles int `yaml:"max_cycles,omitempty"`

	// Expect is the required outcome of the run.
	Expect Expect `yaml:"expect"`

	// Assertions validate the recorded trace and run.
	// Supported types: state_visits, state_order, emitted, final_state
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Expect is the outcome a scenario requires. Empty fields other than
// Status and ErrorCode are not checked.
type Expect struct {
	// Status is the final run status (completed, idle, stalled, failed).
	Status string `yaml:"status"`

	Cycles int `yaml:"cycles,omitempty"`

	// Path is the full list of executed states in order.
	Path []string `yaml:"path,omitempty"`

	// States is the final workflow state as names, e.g. "P5" or "A|B".
	States string `yaml:"states,omitempty"`

	// ErrorCode is the runtime error code. Empty means the run must not
	// fail.
	ErrorCode string `yaml:"error_code,omitempty"`

	ErrorContains string `yaml:"error_contains,omitempty"`
}

// Assertion validates the trace or the stored run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "state_visits": State executed exactly Count times
	// - "state_order": States executed in this relative order
	// - "emitted": Some execution of State emitted exactly Transitions
	// - "final_state": Stored run fields match Expect
	Type string `yaml:"type"`

	// State is the state name (used by state_visits, emitted).
	State string `yaml:"state,omitempty"`

	// Count is the expected number of executions (used by state_visits).
	Count int `yaml:"count,omitempty"`

	// States is the expected order (used by state_order).
	States []string `yaml:"states,omitempty"`

	// Transitions are the expected emitted transitions (used by emitted).
	// Order is not significant. Empty means a null transition.
	Transitions []string `yaml:"transitions,omitempty"`

	// Expect contains expected stored run fields (used by final_state),
	// keyed by their JSON names: status, cycles, states, error_code...
	// Subset match - only specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertStateVisits = "state_visits"
	AssertStateOrder  = "state_order"
	AssertEmitted     = "emitted"
	AssertFinalState  = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
//
// The model path is resolved relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the model path relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Model != "" && !filepath.IsAbs(scenario.Model) && basePath != "" {
		scenario.Model = filepath.Join(basePath, scenario.Model)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Model == "" {
		return fmt.Errorf("model is required")
	}
	if _, err := os.Stat(s.Model); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", s.Model)
	}

	if s.MaxCycles < 0 {
		return fmt.Errorf("max_cycles must be non-negative")
	}

	for state := range s.Script {
		if strings.TrimSpace(state) == "" {
			return fmt.Errorf("script: state name is required")
		}
	}

	for i, op := range s.Alter {
		if _, err := op.Build(); err != nil {
			return fmt.Errorf("alter[%d]: %w", i, err)
		}
	}

	if s.Expect.Status == "" {
		return fmt.Errorf("expect.status is required")
	}
	if _, err := engine.ParseStatus(s.Expect.Status); err != nil {
		return fmt.Errorf("expect.status: %w", err)
	}
	if s.Expect.Cycles < 0 {
		return fmt.Errorf("expect.cycles must be non-negative")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertStateVisits:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for state_visits", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for state_visits", index)
		}
	case AssertStateOrder:
		if len(a.States) == 0 {
			return fmt.Errorf("assertions[%d]: states list is required for state_order", index)
		}
	case AssertEmitted:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for emitted", index)
		}
	case AssertFinalState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// splitEmission parses one script entry into transition names.
func splitEmission(entry string) []string {
	var names []string
	for _, n := range strings.Split(entry, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}
