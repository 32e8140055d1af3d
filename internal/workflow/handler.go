package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/stateengine/internal/engine"
)

// Handler is the business logic of one workflow state. It reports the
// transitions it emits on app.Pending(); emitting nothing selects the
// state's auto transition, if any.
type Handler interface {
	Run(ctx context.Context, run *engine.Engine, app engine.AppContext) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, run *engine.Engine, app engine.AppContext) error

// Run implements Handler.
func (f HandlerFunc) Run(ctx context.Context, run *engine.Engine, app engine.AppContext) error {
	return f(ctx, run, app)
}

// Emit returns a handler that always emits the given transitions.
func Emit(transitions ...string) Handler {
	return HandlerFunc(func(_ context.Context, _ *engine.Engine, app engine.AppContext) error {
		app.Pending().Set(transitions...)
		return nil
	})
}

// Factory creates a handler instance.
type Factory func() (Handler, error)

// Registry maps handler names to factories.
//
// Singleton states share one instance per Registry, built on first use.
// Prototype states get a fresh instance for every execution.
//
// Thread-safety: safe for concurrent use. Singleton handlers shared by
// concurrent runs must themselves be safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	instances map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		instances: make(map[string]Handler),
	}
}

// Register adds a factory under name, replacing any earlier one and
// dropping its cached instance.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	delete(r.instances, name)
}

// RegisterHandler registers a fixed handler instance. It is shared even by
// prototype states.
func (r *Registry) RegisterHandler(name string, h Handler) {
	r.Register(name, func() (Handler, error) { return h, nil })
}

// RegisterFunc registers a handler function.
func (r *Registry) RegisterFunc(name string, fn HandlerFunc) {
	r.RegisterHandler(name, fn)
}

// Has reports whether a handler is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.factories[name]
	return ok
}

// Lookup returns the handler to run for name.
func (r *Registry) Lookup(name string, singleton bool) (Handler, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if singleton {
		if h, ok := r.instances[name]; ok {
			return h, nil
		}
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, &engine.RuntimeError{
			Code:    engine.ErrCodeUndefinedHandler,
			Message: fmt.Sprintf("no handler registered for %s", name),
		}
	}
	h, err := f()
	if err != nil {
		return nil, &engine.RuntimeError{
			Code:    engine.ErrCodeUndefinedHandler,
			Message: fmt.Sprintf("invalid handler %s: %v", name, err),
			Err:     err,
		}
	}
	if h == nil {
		return nil, &engine.RuntimeError{
			Code:    engine.ErrCodeUndefinedHandler,
			Message: fmt.Sprintf("handler factory %s returned nil", name),
		}
	}
	if singleton {
		r.instances[name] = h
	}
	return h, nil
}
