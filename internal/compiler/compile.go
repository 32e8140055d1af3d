package compiler

import (
	"errors"
	"log/slog"
	"slices"

	"github.com/roach88/stateengine/internal/mask"
	"github.com/roach88/stateengine/internal/model"
)

// pair is one origin/target edge of a named transition.
type pair struct {
	origin     string
	target     string
	originMask uint64
	targetMask uint64
}

// builder holds the intermediate tables while a model compiles.
type builder struct {
	raw   *model.Raw
	m     *Model
	pairs map[string][]pair // transition name -> edges, in declaration order

	precedentSync  map[uint64]uint64 // transition mask -> sync target
	precedentMerge map[uint64]uint64 // transition mask -> adjusted merge target
	precedentFork  map[uint64]uint64 // transition mask -> adjusted fork targets

	splits []model.SplitHint // declared then inferred

	logger *slog.Logger
}

// Option configures compilation.
type Option func(*builder)

// WithLogger sets the logger for compile notices. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *builder) {
		b.logger = l
	}
}

// Compile validates a raw model and builds its compiled tables.
//
// Compilation is fail-fast: the first defect is returned as a
// *CompileError and no model is produced. The raw model is not modified.
func Compile(raw *model.Raw, opts ...Option) (*Model, error) {
	raw = raw.Clone()
	b := &builder{
		raw:            raw,
		pairs:          make(map[string][]pair),
		precedentSync:  make(map[uint64]uint64),
		precedentMerge: make(map[uint64]uint64),
		precedentFork:  make(map[uint64]uint64),
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	steps := []func() error{
		b.defaults,
		b.checkUniqueNames,
		b.checkTerminal,
		b.indexNames,
		b.buildStates,
		b.buildTransitions,
		b.checkTargets,
		b.compileSyncs,
		b.compileMerges,
		b.compileForks,
		b.compileSplits,
		b.parameters,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	hash, err := model.Hash(raw)
	if err != nil {
		return nil, err
	}
	b.m.Hash = hash
	b.m.raw = raw
	return b.m, nil
}

func (b *builder) defaults() error {
	r := b.raw
	if r.Workflow == "" {
		return newError(ErrMissingWorkflow, "Workflow", "model contains no Workflow name")
	}
	if len(r.StateTransitions) == 0 {
		return newError(ErrMissingTransitions, "StateTransitions", "workflow contains no StateTransitions")
	}
	if r.StatePrefix == "" {
		r.StatePrefix = r.Workflow
	}
	if r.StartState == "" {
		r.StartState = r.StateTransitions[0].Origin
	}
	if r.TerminalState == "" {
		return newError(ErrMissingTerminalState, "TerminalState", "workflow contains no TerminalState")
	}
	b.m = &Model{
		Name:          r.Workflow,
		StatePrefix:   r.StatePrefix,
		Version:       r.Version,
		Build:         r.Build,
		StartState:    r.StartState,
		TerminalState: r.TerminalState,
		Transitions:   make(map[uint64]*Transition),
		StateEntries:  make(map[uint64]*StateEntry),
		states:        mask.NewIndex("state", InitialState),
		transitions:   mask.NewIndex("transition", InitialTransition),
	}
	for _, h := range r.Splits {
		b.addSplit(h)
	}
	return nil
}

// checkUniqueNames runs before anything else so a duplicated special
// transition is reported even when the model has other defects.
func (b *builder) checkUniqueNames() error {
	var names []string
	for _, s := range b.raw.Syncs {
		names = append(names, s.Transitions...)
	}
	if dup, ok := firstDuplicate(names); ok {
		return newError(ErrSyncNamesNotUnique, "Syncs", "workflow Sync transitions are not unique, %s repeats in: %s", dup, join(names))
	}
	names = names[:0]
	for _, f := range b.raw.Forks {
		names = append(names, f.Transitions...)
	}
	if dup, ok := firstDuplicate(names); ok {
		return newError(ErrForkNamesNotUnique, "Forks", "workflow Fork transitions are not unique, %s repeats in: %s", dup, join(names))
	}
	return nil
}

func (b *builder) checkTerminal() error {
	ts, ok := b.raw.StateTransitions.Lookup(b.raw.TerminalState)
	if ok && len(ts) > 0 {
		var names []string
		for _, t := range ts {
			names = append(names, t.Transition)
		}
		return newError(ErrTerminalHasTransitions, "TerminalState",
			"terminal state %s must not have transition: %s", b.raw.TerminalState, join(names))
	}
	return nil
}

// indexNames assigns state and transition masks. States are numbered in
// the order: explicit declarations, then origins, then remaining targets.
func (b *builder) indexNames() error {
	r := b.raw
	if err := checkReserved(r); err != nil {
		return err
	}
	var order []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name == InitialState || seen[name] {
			return
		}
		seen[name] = true
		order = append(order, name)
	}
	for _, d := range r.States {
		add(d.Name)
	}
	var targets []string
	for _, o := range r.StateTransitions {
		add(o.Origin)
		for _, t := range o.Transitions {
			if _, err := b.m.transitions.Add(t.Transition); err != nil {
				return tooLarge(err)
			}
			targets = append(targets, t.TargetStates...)
		}
	}
	for _, t := range targets {
		add(t)
	}
	add(r.TerminalState)

	for _, name := range order {
		if _, err := b.m.states.Add(name); err != nil {
			return tooLarge(err)
		}
	}
	return nil
}

// checkReserved rejects user names that collide with the implicit start
// state and transition, which own the zero masks.
func checkReserved(r *model.Raw) error {
	states := []string{r.StartState, r.TerminalState}
	for _, d := range r.States {
		states = append(states, d.Name)
	}
	for _, o := range r.StateTransitions {
		states = append(states, o.Origin)
		for _, t := range o.Transitions {
			if t.Transition == InitialTransition {
				return newError(ErrReservedName, "StateTransitions."+o.Origin,
					"transition name %s is reserved for the start transition", InitialTransition)
			}
			states = append(states, t.TargetStates...)
		}
	}
	if slices.Contains(states, InitialState) {
		return newError(ErrReservedName, "StateTransitions",
			"state name %s is reserved for the start state", InitialState)
	}
	return nil
}

func tooLarge(err error) error {
	var tl *mask.ModelTooLargeError
	if errors.As(err, &tl) {
		return &CompileError{Code: ErrModelTooLarge, Field: tl.Kind + "s", Message: tl.Error(), Err: err}
	}
	return err
}

func (b *builder) buildStates() error {
	r := b.raw
	for _, name := range b.m.states.All() {
		bit, _ := b.m.states.Mask(name)
		decl, _ := r.States.Lookup(name)
		handler := decl.Handler
		if handler == "" {
			handler = r.StatePrefix + name + "State"
		}
		st := State{
			Name:      name,
			Index:     mask.Position(bit),
			Mask:      bit,
			Handler:   handler,
			Singleton: !bool(decl.Prototype),
		}
		b.m.States = append(b.m.States, st)
		b.m.StateEntries[bit] = &StateEntry{State: name, Index: st.Index}
	}
	b.m.StateEntries[0] = &StateEntry{State: InitialState}

	var err error
	if b.m.StartMask, err = b.stateMask(r.StartState, "StartState"); err != nil {
		return err
	}
	if b.m.TerminalMask, err = b.stateMask(r.TerminalState, "TerminalState"); err != nil {
		return err
	}
	for _, name := range r.Idle.States {
		bit, err := b.stateMask(name, "Idle.States")
		if err != nil {
			return err
		}
		b.m.IdleMask |= bit
	}
	b.m.StopStates = b.m.TerminalMask | b.m.IdleMask
	return nil
}

func (b *builder) stateMask(name, field string) (uint64, error) {
	bit, ok := b.m.states.Mask(name)
	if !ok || name == InitialState {
		return 0, newError(ErrUndefinedState, field, "state %s is not defined in the workflow", name)
	}
	return bit, nil
}

func (b *builder) transitionMask(name, field string) (uint64, error) {
	bit, ok := b.m.transitions.Mask(name)
	if !ok || name == InitialTransition {
		return 0, newError(ErrUndefinedTransition, field, "transition %s is not defined in StateTransitions", name)
	}
	return bit, nil
}

// buildTransitions walks every origin/transition/target triple, with the
// implicit start transition first.
func (b *builder) buildTransitions() error {
	r := b.raw
	table := make(model.StateTransitions, 0, len(r.StateTransitions)+1)
	table = append(table, model.OriginTransitions{
		Origin: InitialState,
		Transitions: []model.TransitionDecl{
			{Transition: InitialTransition, TargetStates: model.NameList{r.StartState}},
		},
	})
	table = append(table, r.StateTransitions...)

	for _, o := range table {
		originMask, ok := b.m.states.Mask(o.Origin)
		if !ok {
			return newError(ErrUndefinedState, "StateTransitions", "origin %s is not defined", o.Origin)
		}
		entry := b.m.StateEntries[originMask]
		auto := len(o.Transitions) == 1 && originMask&b.m.IdleMask == 0

		for _, decl := range o.Transitions {
			tmask, _ := b.m.transitions.Mask(decl.Transition)
			entry.TransitionsMask |= tmask

			suppressed := decl.AutoTransition != nil && !bool(*decl.AutoTransition)
			if auto && !suppressed {
				entry.AutoTransition = tmask
				entry.HasAutoTransition = true
			} else {
				entry.AutoTransition = 0
				entry.HasAutoTransition = false
			}

			t := b.m.Transitions[tmask]
			if t == nil {
				t = &Transition{Name: decl.Transition, Mask: tmask, Targets: make(map[uint64]Target)}
				b.m.Transitions[tmask] = t
			}
			t.OriginsMask |= originMask

			var targetsMask uint64
			for _, target := range decl.TargetStates {
				targetMask, err := b.stateMask(target, "StateTransitions."+o.Origin)
				if err != nil {
					return err
				}
				b.pairs[decl.Transition] = append(b.pairs[decl.Transition], pair{
					origin:     o.Origin,
					target:     target,
					originMask: originMask,
					targetMask: targetMask,
				})
				targetsMask |= targetMask
			}
			if originMask&targetsMask != 0 && entry.HasAutoTransition {
				entry.AutoTransition = 0
				entry.HasAutoTransition = false
				b.logger.Warn("auto transition to self cancelled", "workflow", r.Workflow, "state", o.Origin)
			}
			t.Targets[originMask] = Target{Origin: o.Origin, TargetMask: targetsMask}

			if len(decl.TargetStates) > 1 {
				b.addSplit(model.SplitHint{OriginState: o.Origin, Transition: model.NameList{decl.Transition}})
			}
		}
	}
	return nil
}

// addSplit appends a split hint unless an identical one exists.
func (b *builder) addSplit(h model.SplitHint) {
	for _, s := range b.splits {
		if s.OriginState == h.OriginState && slices.Equal(s.Transition, h.Transition) {
			return
		}
	}
	b.splits = append(b.splits, h)
}

// checkTargets requires every state to be reachable as some transition's
// target. The start state is the target of the implicit start transition.
func (b *builder) checkTargets() error {
	targeted := make(map[string]bool)
	for _, ps := range b.pairs {
		for _, p := range ps {
			targeted[p.target] = true
		}
	}
	for _, s := range b.m.States {
		if !targeted[s.Name] {
			return newError(ErrUndeclaredTarget, "StateTransitions", "workflow state %s is not a transition target", s.Name)
		}
	}
	return nil
}

func (b *builder) parameters() error {
	p := b.raw.Parameters
	if p.MaxTransitionFactor != nil {
		if *p.MaxTransitionFactor < 0 {
			return newError(ErrInvalidParameter, "Parameters.MaxTransitionFactor", "must not be negative, got %d", *p.MaxTransitionFactor)
		}
		count := 0
		for _, ps := range b.pairs {
			count += len(ps)
		}
		b.m.DispatchMaxCount = count * *p.MaxTransitionFactor
	}
	b.m.StallCycles = 1
	if p.StallCycles != nil {
		if *p.StallCycles < 1 {
			return newError(ErrInvalidParameter, "Parameters.StallCycles", "must be at least 1, got %d", *p.StallCycles)
		}
		b.m.StallCycles = *p.StallCycles - 1
	}
	return nil
}

func firstDuplicate(names []string) (string, bool) {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			return n, true
		}
		seen[n] = true
	}
	return "", false
}
