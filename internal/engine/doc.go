// Package engine runs workflows over a compiled model.
//
// ARCHITECTURE:
//
// Dispatch Cycles:
// A run is a sequence of dispatch cycles. At the start of each cycle the
// states readied by the previous cycle are folded into the engine state and
// that snapshot becomes the workflow state. Every ready state then executes
// once, in model declaration order, on the caller's goroutine:
//  1. The StateRunner calls the state's handler
//  2. The handler records transitions on the AppContext Pending set
//  3. The engine resolves them against the compiled tables immediately
//  4. New target states are readied for the next cycle, never this one
//
// After every state has run, open Fork, Merge and Sync progress is scanned
// and origins that still owe a transition are readied again.
//
// Composite Transitions:
//   - Split: every target is set as soon as the transition is emitted
//   - Fork: the origin emits all fork transitions before its targets are set
//   - Merge: every origin emits the transition before the target is set
//   - Sync: every sync transition is emitted before the target is set
//
// When a transition takes part in more than one composite the compiler has
// removed target bits claimed by a higher precedence pattern, so each target
// is set exactly once.
//
// Ending a Run:
// Terminal always executes alone in its own cycle. A run completes when the
// workflow state is exactly Terminal with no open progress, and goes idle
// when only Idle states remain without emitting for StallCycles cycles. Any
// other state left without progress is a stall and fails the run with a
// RuntimeError carrying the cycle, state names, last transitions and open
// progress.
//
// CRITICAL PATTERNS:
//
// Determinism:
// State execution order within a cycle depends only on the model. Progress
// tables are maps, but they are only iterated where order cannot matter or
// after sorting.
//
// Logical Clock:
// Every executed state is reported to the Observer stamped with a
// monotonic seq from Clock.Next(). Wall-clock time is never used for
// ordering.
package engine
