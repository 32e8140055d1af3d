// Package store provides SQLite-backed durable storage for workflow run logs.
//
// The store keeps an append-only log with:
//   - Runs: one row per engine run (workflow, model hash, final status)
//   - State log: one row per state execution (cycle, state, emitted
//     transitions, engine and workflow state masks)
//
// A Recorder implements engine.Observer, so attaching it to an engine records the
// run as it happens. A run that ends idle can be resumed later from its
// recorded workflow state (see ResumePoint).
//
// # Critical Patterns
//
// Logical Time:
//   - All ordering uses seq INTEGER (the engine's logical clock), never
//     timestamps
//   - A resumed run continues the seq of the run it resumes
//
// Deterministic Query Results:
//   - All log queries include ORDER BY seq ASC, id ASC
//
// Masks:
//   - uint64 masks are stored as the int64 with the same bits; SQLite
//     INTEGER is signed
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
