package engine

import "fmt"

// Status is the lifecycle state of one workflow run.
type Status int

const (
	StatusNotStarted Status = iota
	StatusRunning
	// StatusCompleted means the run ended in the Terminal state.
	StatusCompleted
	// StatusIdle means the run stopped with only Idle states set. It can be
	// resumed from its workflow state.
	StatusIdle
	StatusStalled
	StatusFailed
)

var statusNames = map[Status]string{
	StatusNotStarted: "not_started",
	StatusRunning:    "running",
	StatusCompleted:  "completed",
	StatusIdle:       "idle",
	StatusStalled:    "stalled",
	StatusFailed:     "failed",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Resumable reports whether a run that ended with this status can be
// resumed from its stored workflow state.
func (s Status) Resumable() bool {
	return s == StatusIdle
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	for st, n := range statusNames {
		if n == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown run status %q", s)
}
