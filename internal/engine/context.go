package engine

import (
	"slices"

	"github.com/roach88/stateengine/internal/mask"
)

// AppContext is the application data threaded through every state of a run.
// State handlers record the transitions they emit on its Pending set; the
// engine reads and clears it around each handler call.
type AppContext interface {
	Pending() *Pending
}

// Pending collects the transitions a state handler emits during one
// execution. Names are resolved against the model after the handler returns.
// An empty Pending means the state's auto transition, if it has one.
type Pending struct {
	names []string
	bits  uint64
}

// Set replaces the pending transitions. Each argument may be a
// comma-separated list.
func (p *Pending) Set(names ...string) {
	p.Reset()
	p.Add(names...)
}

// Add appends transitions to the pending set.
func (p *Pending) Add(names ...string) {
	for _, arg := range names {
		for _, n := range mask.SplitNames(arg) {
			if !slices.Contains(p.names, n) {
				p.names = append(p.names, n)
			}
		}
	}
}

// SetMask replaces the pending transitions with a resolved mask.
func (p *Pending) SetMask(m uint64) {
	p.Reset()
	p.bits = m
}

// AddMask adds a resolved mask to the pending transitions.
func (p *Pending) AddMask(m uint64) {
	p.bits |= m
}

// Reset clears the pending transitions.
func (p *Pending) Reset() {
	p.names = nil
	p.bits = 0
}

// Names returns the pending transition names in the order they were added.
func (p *Pending) Names() []string {
	return slices.Clone(p.names)
}

// Mask returns the pending transitions added by mask.
func (p *Pending) Mask() uint64 {
	return p.bits
}

// IsEmpty reports whether nothing is pending.
func (p *Pending) IsEmpty() bool {
	return len(p.names) == 0 && p.bits == 0
}

// BasicContext is a minimal AppContext for runs that carry no application
// data of their own.
type BasicContext struct {
	pending Pending
}

// Pending implements AppContext.
func (c *BasicContext) Pending() *Pending {
	return &c.pending
}
