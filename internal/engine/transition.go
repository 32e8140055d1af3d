package engine

import (
	"github.com/roach88/stateengine/internal/compiler"
	"github.com/roach88/stateengine/internal/mask"
)

// stateTransition applies the transitions emitted by the dispatch state.
// tm == 0 means nothing was emitted: the state's auto transition is used
// when it has one, otherwise a null transition clears the state.
//
// Returns true when new states were set or the state will run again.
func (e *Engine) stateTransition(tm uint64) (bool, error) {
	if tm == 0 {
		if entry := e.model.StateEntries[e.dispatchMask]; entry != nil && entry.HasAutoTransition {
			tm = entry.AutoTransition
		}
	}
	if tm == 0 && e.engineState == 0 {
		return e.initialTransition()
	}
	if e.isTerminal() {
		if tm == 0 {
			return false, nil
		}
		return false, e.fail(ErrCodeTerminalTransition, "isTerminal - no transition allowed! Transition: %s EngineStates: %s",
			e.model.TransitionNamesFromMask(tm), e.model.StateNamesFromMask(e.engineState))
	}
	if tm == 0 {
		return e.nullTransition(), nil
	}

	var transitioned, found bool
	var err error
	mask.Each(tm, func(bit uint64) {
		if err != nil {
			return
		}
		t := e.model.Transitions[bit]
		if t == nil || e.dispatchMask&t.OriginsMask == 0 {
			return
		}
		found = true
		var ok bool
		ok, err = e.nextTransition(t)
		transitioned = ok || transitioned
	})
	if err != nil {
		return false, err
	}
	if !found {
		return false, e.fail(ErrCodeInvalidOrigin, "Invalid Transition for state: '%s' ! Transition: %s not a valid Origin",
			e.dispatchName, e.model.TransitionNamesFromMask(tm))
	}
	// A state set to rerun counts as a transition.
	return transitioned || e.dispatchMask&e.ready != 0, nil
}

// initialTransition readies the StartState.
func (e *Engine) initialTransition() (bool, error) {
	t := e.model.Transitions[0]
	if t == nil {
		return false, e.fail(ErrCodeEngineFault, "no initial transition in model %s", e.model.Name)
	}
	target, err := e.findOrigin(t)
	if err != nil {
		return false, err
	}
	e.ready |= target
	return true, nil
}

// nullTransition clears the dispatch state. Idle states are readied again
// so they keep running until they emit.
func (e *Engine) nullTransition() bool {
	e.engineState &^= e.dispatchMask
	if e.dispatchMask&e.model.IdleMask != 0 {
		e.ready |= e.dispatchMask
	}
	return true
}

// isTerminal reports whether the workflow state is exactly Terminal.
func (e *Engine) isTerminal() bool {
	return e.workflowState == e.model.TerminalMask
}

func (e *Engine) nextTransition(t *compiler.Transition) (bool, error) {
	before := e.engineState
	target, err := e.findOrigin(t)
	if err != nil {
		return false, err
	}
	next, err := e.doTransition(t, target)
	if err != nil {
		return false, err
	}
	transitioned := before != e.engineState || next != 0
	e.history[e.cycle][e.dispatchMask] |= t.Mask
	e.ready |= next
	return transitioned, nil
}

// findOrigin returns the targets t reaches from the dispatch state.
func (e *Engine) findOrigin(t *compiler.Transition) (uint64, error) {
	if sp, ok := t.Splits[e.dispatchMask]; ok {
		return sp.TargetsMask, nil
	}
	target, ok := t.Targets[e.dispatchMask]
	if !ok {
		return 0, e.fail(ErrCodeEngineFault, "No Origin State '%s' in Transitions. EngineStates: %s",
			e.dispatchName, e.model.StateNamesFromMask(e.engineState))
	}
	return target.TargetMask, nil
}

// doTransition applies every composite the transition takes part in from
// the dispatch state and returns the states it sets. With no composite the
// origin is cleared and the candidate targets are set.
func (e *Engine) doTransition(t *compiler.Transition, candidate uint64) (uint64, error) {
	var next uint64
	simple := true

	if sp, ok := t.Splits[e.dispatchMask]; ok {
		next |= e.doSplit(sp)
		simple = false
	}
	for _, f := range t.Forks {
		if f.OriginMask == e.dispatchMask {
			next |= e.doFork(t.Mask, f)
			simple = false
		}
	}
	for _, mg := range t.Merges {
		if mg.OriginsMask&e.dispatchMask != 0 {
			n, err := e.doMerge(t.Mask, mg)
			if err != nil {
				return 0, err
			}
			next |= n
			simple = false
		}
	}
	for _, s := range t.Syncs {
		next |= e.doSync(t.Mask, s)
		simple = false
	}
	if !simple {
		return next, nil
	}
	e.engineState &^= e.dispatchMask
	return candidate, nil
}

func (e *Engine) doSplit(sp *compiler.Split) uint64 {
	e.engineState &^= e.dispatchMask
	return sp.TargetsMask
}

// doFork records bit against the fork; the targets are set once the
// origin has emitted every fork transition.
func (e *Engine) doFork(bit uint64, f *compiler.Fork) uint64 {
	k := forkKey{origin: f.OriginMask, transitions: f.TransitionsMask}
	e.forks[k] |= bit
	if e.forks[k] != f.TransitionsMask {
		return 0
	}
	e.engineState &^= e.dispatchMask
	delete(e.forks, k)
	return f.TargetsMask
}

// doMerge records the dispatch state against the merge; the target is set
// once every origin has emitted the merge transition.
func (e *Engine) doMerge(bit uint64, mg *compiler.Merge) (uint64, error) {
	if bit != mg.TransitionMask {
		return 0, e.fail(ErrCodeEngineFault, "FATAL: Engine fail! Merge Origin: %s Transition: %s not Merge transition: %s",
			e.dispatchName, e.model.TransitionNamesFromMask(bit), e.model.TransitionNamesFromMask(mg.TransitionMask))
	}
	k := mergeKey{target: mg.StateTargetMask, transition: bit}
	e.merges[k] |= e.dispatchMask
	e.engineState &^= e.dispatchMask
	if e.merges[k] != mg.OriginsMask {
		return 0, nil
	}
	delete(e.merges, k)
	return mg.TargetMask, nil
}

// doSync records bit against the sync; the target is set once every sync
// transition has been emitted. A transition that is also an open merge into
// the same target only counts when the merge completes.
func (e *Engine) doSync(bit uint64, s *compiler.Sync) uint64 {
	k := syncKey{target: s.TargetMask, transitions: s.TransitionsMask}
	progress := e.syncs[k]
	if _, merging := e.merges[mergeKey{target: s.TargetMask, transition: bit}]; !merging {
		progress |= bit
	}
	e.syncs[k] = progress
	e.engineState &^= e.dispatchMask
	if progress != s.TransitionsMask {
		return 0
	}
	delete(e.syncs, k)
	return s.TargetMask
}
