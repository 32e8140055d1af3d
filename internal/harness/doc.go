// Package harness provides conformance testing for workflow models.
//
// The harness runs a workflow model with scripted state handlers, records
// the run in an in-memory store and validates the trace read back from it.
// Scenarios are executable contract tests for a model's routing: which
// states run, in which cycle, and how the run ends.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	model: ../models/pipeline.yaml
//	script:
//	  Review: [Reject, Approve]   # successive executions; last repeats
//	  Fan: ["Left, Right"]        # several transitions at once
//	alter:
//	  - op: DeleteStateTransition
//	    state: P4
//	    transition: T4_6
//	resume: Wait                  # resume instead of run
//	max_cycles: 20
//	expect:
//	  status: completed
//	  cycles: 6
//	  states: P7
//	  path: [P1, P2, P3, P4, P5, P6, P7]
//	assertions:
//	  - type: state_visits
//	    state: P6
//	    count: 1
//	  - type: final_state
//	    expect: { status: completed, cycles: 6 }
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - state_visits: Verifies a state executed exactly N times
//   - state_order: Verifies states executed in the given relative order
//   - emitted: Verifies some execution of a state emitted exactly the
//     given transitions
//   - final_state: Queries the stored run row and verifies expected values
//
// # Determinism
//
// Run ids are "<scenario>-1", seq values come from the engine's logical
// clock and states execute in model order within a cycle, so the golden
// trace of a scenario never changes between runs.
package harness
