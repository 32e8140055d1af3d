package harness

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/stateengine/internal/store"
)

// validIdentifier matches run log column names.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)

	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", FormatEvent(event))
		}
	}

	return buf.String()
}

// assertStateVisits checks that the state executed exactly Count times.
func assertStateVisits(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.State == assertion.State {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertStateVisits,
			Expected: fmt.Sprintf("%d executions of %s", assertion.Count, assertion.State),
			Actual:   fmt.Sprintf("%d executions", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertStateOrder checks that the states appear in the trace in order.
// States don't need to be consecutive and may repeat, so a loop can be
// asserted as A, B, A.
func assertStateOrder(trace []TraceEvent, assertion Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(assertion.States) && event.State == assertion.States[next] {
			next++
		}
	}
	if next == len(assertion.States) {
		return nil
	}

	return &AssertionError{
		Type:     AssertStateOrder,
		Expected: fmt.Sprintf("states in order: %v", assertion.States),
		Actual:   fmt.Sprintf("no %s after %v", assertion.States[next], assertion.States[:next]),
		Trace:    trace,
	}
}

// assertEmitted checks that some execution of the state emitted exactly
// the expected transitions.
func assertEmitted(trace []TraceEvent, assertion Assertion) error {
	want := slices.Clone(assertion.Transitions)
	sort.Strings(want)

	var seen []string
	for _, event := range trace {
		if event.State != assertion.State {
			continue
		}
		got := slices.Clone(event.Transitions)
		sort.Strings(got)
		if slices.Equal(got, want) {
			return nil
		}
		seen = append(seen, formatTransitions(event.Transitions))
	}

	actual := fmt.Sprintf("%s never executed", assertion.State)
	if len(seen) > 0 {
		actual = fmt.Sprintf("emitted %s", strings.Join(seen, "; "))
	}
	return &AssertionError{
		Type:     AssertEmitted,
		Expected: fmt.Sprintf("%s emits %s", assertion.State, formatTransitions(assertion.Transitions)),
		Actual:   actual,
		Trace:    trace,
	}
}

// assertFinalState checks the stored run row against expected values
// using subset semantics.
func assertFinalState(ctx context.Context, st *store.Store, runID string, assertion Assertion) error {
	keys := make([]string, 0, len(assertion.Expect))
	for k := range assertion.Expect {
		if !validIdentifier.MatchString(k) {
			return fmt.Errorf("invalid column name %q: must match pattern %s", k, validIdentifier.String())
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	actualRow, err := st.RunRow(ctx, runID)
	if errors.Is(err, store.ErrRunNotFound) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("stored run %s", runID),
			Actual:   "row not found",
		}
	}
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query run %s", runID),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}

	for _, key := range keys {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in stored run", key),
			}
		}

		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}

	return nil
}

// stateValuesEqual compares expected YAML values with SQLite values.
// Handles type coercion for SQLite values which may be returned as different types.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil && actual == nil {
		return true
	}
	if expected == nil || actual == nil {
		return false
	}

	switch exp := expected.(type) {
	case string:
		switch a := actual.(type) {
		case string:
			return exp == a
		case []byte:
			return exp == string(a)
		}
		return false
	case int:
		if actualInt, ok := actual.(int64); ok {
			return int64(exp) == actualInt
		}
		if actualInt, ok := actual.(int); ok {
			return exp == actualInt
		}
		return false
	case int64:
		if actualInt, ok := actual.(int64); ok {
			return exp == actualInt
		}
		return false
	case bool:
		// SQLite stores booleans as integers
		if actualInt, ok := actual.(int64); ok {
			return exp == (actualInt != 0)
		}
		if actualBool, ok := actual.(bool); ok {
			return exp == actualBool
		}
		return false
	}

	return reflect.DeepEqual(expected, actual)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
	RunID string
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for final_state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertStateVisits:
			err = assertStateVisits(result.Trace, assertion)
		case AssertStateOrder:
			err = assertStateOrder(result.Trace, assertion)
		case AssertEmitted:
			err = assertEmitted(result.Trace, assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, actx.RunID, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
