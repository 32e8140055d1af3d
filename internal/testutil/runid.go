package testutil

import (
	"fmt"
	"sync"
)

// SequenceRunIDs generates run ids "run-1", "run-2", ... so stored runs
// and golden traces are reproducible.
//
// Thread-safety: safe for concurrent use.
type SequenceRunIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceRunIDs creates a generator. An empty prefix means "run".
func NewSequenceRunIDs(prefix string) *SequenceRunIDs {
	if prefix == "" {
		prefix = "run"
	}
	return &SequenceRunIDs{prefix: prefix}
}

// Generate returns the next run id.
func (g *SequenceRunIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
