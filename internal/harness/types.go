package harness

// TraceEvent is one recorded state execution.
type TraceEvent struct {
	Seq         int64    `json:"seq"`
	Cycle       int      `json:"cycle"`
	State       string   `json:"state"`
	Transitions []string `json:"transitions,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if the expect block and all assertions match.
	Pass bool `json:"pass"`

	RunID    string `json:"run_id"`
	Workflow string `json:"workflow"`
	Status   string `json:"status"`
	Cycles   int    `json:"cycles"`

	// States is the final workflow state as names.
	States string `json:"states"`

	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`

	// Trace contains every state execution in seq order, as read back from
	// the run log.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Path returns the executed state names in order.
func (r *Result) Path() []string {
	out := make([]string, len(r.Trace))
	for i, ev := range r.Trace {
		out[i] = ev.State
	}
	return out
}
