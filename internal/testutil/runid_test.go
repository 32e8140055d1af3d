package testutil

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceRunIDs_Increments(t *testing.T) {
	ids := NewSequenceRunIDs("loop_idle")

	assert.Equal(t, "loop_idle-1", ids.Generate())
	assert.Equal(t, "loop_idle-2", ids.Generate())
	assert.Equal(t, "loop_idle-3", ids.Generate())
}

func TestSequenceRunIDs_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "run-1", NewSequenceRunIDs("").Generate())
}

func TestSequenceRunIDs_IndependentGenerators(t *testing.T) {
	a := NewSequenceRunIDs("a")
	b := NewSequenceRunIDs("a")

	a.Generate()
	a.Generate()
	assert.Equal(t, "a-1", b.Generate(), "generators do not share a counter")
}

func TestSequenceRunIDs_ThreadSafe(t *testing.T) {
	ids := NewSequenceRunIDs("run")
	const numGoroutines = 50
	const callsPerGoroutine = 20

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	wg.Add(numGoroutines)
	for range numGoroutines {
		go func() {
			defer wg.Done()
			for range callsPerGoroutine {
				id := ids.Generate()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Every id from 1 to the total is issued exactly once
	total := numGoroutines * callsPerGoroutine
	require.Len(t, seen, total)
	for i := 1; i <= total; i++ {
		assert.True(t, seen[fmt.Sprintf("run-%d", i)], "missing run-%d", i)
	}
}
