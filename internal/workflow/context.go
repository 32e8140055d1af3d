package workflow

import (
	"maps"

	"github.com/roach88/stateengine/internal/engine"
)

// Context is the default application context: the pending transitions plus
// a bag of named values shared by every state of the run.
type Context struct {
	engine.BasicContext
	values map[string]any
}

// NewContext creates a context seeded with a copy of params.
func NewContext(params map[string]any) *Context {
	c := &Context{values: make(map[string]any, len(params))}
	maps.Copy(c.values, params)
	return c
}

// Get returns a value.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Set stores a value.
func (c *Context) Set(key string, v any) {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = v
}

// Values returns a copy of the stored values.
func (c *Context) Values() map[string]any {
	return maps.Clone(c.values)
}

// ContextFactory builds the application context for a run. Returning a nil
// context abandons the run before it starts.
type ContextFactory func(params map[string]any) (engine.AppContext, error)

func defaultContextFactory(params map[string]any) (engine.AppContext, error) {
	return NewContext(params), nil
}
