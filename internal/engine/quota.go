package engine

import (
	"errors"
	"fmt"
)

// CycleQuota counts the dispatch cycles of one run and enforces the
// ceiling compiled from MaxTransitionFactor.
//
// A limit of 0 means unlimited. Each run has its own CycleQuota.
type CycleQuota struct {
	limit   int
	current int
}

// NewCycleQuota creates a quota with the given limit (0 = unlimited).
func NewCycleQuota(limit int) *CycleQuota {
	return &CycleQuota{limit: limit}
}

// Check counts one more cycle and validates it against the limit.
//
// Returns CyclesExceededError once the count passes the limit.
func (q *CycleQuota) Check(runID string) error {
	q.current++
	if q.limit > 0 && q.current > q.limit {
		return &CyclesExceededError{
			RunID:  runID,
			Cycles: q.current,
			Limit:  q.limit,
		}
	}
	return nil
}

// Reset sets the cycle count back to 0.
func (q *CycleQuota) Reset() {
	q.current = 0
}

// Current returns the number of cycles counted.
func (q *CycleQuota) Current() int {
	return q.current
}

// Limit returns the cycle ceiling; 0 means unlimited.
func (q *CycleQuota) Limit() int {
	return q.limit
}

// CyclesExceededError is returned when a run exceeds its dispatch-cycle
// ceiling. It ends the run.
type CyclesExceededError struct {
	RunID  string
	Cycles int
	Limit  int
}

// Error implements the error interface.
func (e *CyclesExceededError) Error() string {
	return fmt.Sprintf("run %s exceeded dispatch cycle limit: %d cycles > %d limit",
		e.RunID, e.Cycles, e.Limit)
}

// IsCyclesExceededError returns true if the error is a CyclesExceededError.
// Uses errors.As to handle wrapped errors.
func IsCyclesExceededError(err error) bool {
	var ce *CyclesExceededError
	return errors.As(err, &ce)
}
