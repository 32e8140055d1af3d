package compiler

import (
	"strings"

	"github.com/roach88/stateengine/internal/mask"
)

// Composite patterns compile in precedence order: Sync, Merge, Fork, Split.
// Each later pattern removes the target bits already claimed by an earlier
// one for the same transition, so only the highest-precedence pattern
// decides when those targets activate.

func (b *builder) compileSyncs() error {
	for _, h := range b.raw.Syncs {
		targetMask, err := b.stateMask(h.TargetState, "Syncs.TargetState")
		if err != nil {
			return err
		}
		if len(h.Transitions) < 2 {
			return newError(ErrTooFewSyncTransitions, "Syncs", "sync target state %s has too few transitions", h.TargetState)
		}
		s := &Sync{
			TargetState: h.TargetState,
			Transitions: append([]string(nil), h.Transitions...),
			TargetMask:  targetMask,
		}
		for _, name := range h.Transitions {
			tmask, err := b.transitionMask(name, "Syncs.Transitions")
			if err != nil {
				return err
			}
			s.TransitionsMask |= tmask
			for _, p := range b.pairs[name] {
				s.OriginsMask |= p.originMask
			}
		}
		b.m.Syncs = append(b.m.Syncs, s)

		for _, name := range h.Transitions {
			tmask, _ := b.m.transitions.Mask(name)
			b.precedentSync[tmask] = targetMask
			t := b.m.Transitions[tmask]
			t.Syncs = append(t.Syncs, s)
			for _, p := range b.pairs[name] {
				e := b.m.StateEntries[p.originMask]
				if e.SyncOrigins == nil {
					e.SyncOrigins = make(map[uint64]SyncOrigin)
				}
				so := e.SyncOrigins[s.TransitionsMask]
				so.TargetMask = targetMask
				so.TransitionsMask |= tmask
				e.SyncOrigins[s.TransitionsMask] = so
			}
		}
	}
	for _, s := range b.m.Syncs {
		if s.OriginsMask&s.TargetMask != 0 {
			return newError(ErrSyncTargetIsOrigin, "Syncs", "sync target %s is origin", s.TargetState)
		}
	}
	return nil
}

func (b *builder) compileMerges() error {
	// all merge transitions converging on each target state
	targetTransitions := make(map[string]uint64)
	for _, h := range b.raw.Merges {
		if len(h.Transition) == 0 {
			return newError(ErrUndefinedTransition, "Merges.Transition", "merge into %s names no transition", h.TargetState)
		}
		tmask, err := b.transitionMask(h.Transition[0], "Merges.Transition")
		if err != nil {
			return err
		}
		targetTransitions[h.TargetState] |= tmask
	}

	for _, h := range b.raw.Merges {
		name := h.Transition[0]
		tmask, _ := b.m.transitions.Mask(name)
		stateTarget, err := b.stateMask(h.TargetState, "Merges.TargetState")
		if err != nil {
			return err
		}
		mg := &Merge{
			TargetState:     h.TargetState,
			Transition:      name,
			TransitionMask:  tmask,
			StateTargetMask: stateTarget,
		}
		for _, p := range b.pairs[name] {
			mg.OriginsMask |= p.originMask
		}
		if mask.Count(mg.OriginsMask) < 2 {
			return newError(ErrTooFewMergeOrigins, "Merges", "merge transition %s has too few origin states", name)
		}
		mg.TargetMask = stateTarget &^ b.precedentSync[tmask]
		b.precedentMerge[tmask] = mg.TargetMask
		b.m.Merges = append(b.m.Merges, mg)

		t := b.m.Transitions[tmask]
		t.Merges = append(t.Merges, mg)
		for _, p := range b.pairs[name] {
			e := b.m.StateEntries[p.originMask]
			if e.MergeOrigins == nil {
				e.MergeOrigins = make(map[uint64]MergeOrigin)
				e.MergeTargetTransitions = make(map[uint64]uint64)
			}
			e.MergeOrigins[tmask] = MergeOrigin{OriginsMask: mg.OriginsMask, TargetMask: stateTarget}
			e.MergeTargetTransitions[stateTarget] = targetTransitions[h.TargetState]
		}
	}
	for _, mg := range b.m.Merges {
		if mg.OriginsMask&mg.StateTargetMask != 0 {
			return newError(ErrMergeTargetIsOrigin, "Merges", "merge target %s is origin", mg.TargetState)
		}
	}
	return nil
}

func (b *builder) compileForks() error {
	for _, h := range b.raw.Forks {
		originMask, err := b.stateMask(h.OriginState, "Forks.OriginState")
		if err != nil {
			return err
		}
		f := &Fork{
			OriginState: h.OriginState,
			Transitions: append([]string(nil), h.Transitions...),
			OriginMask:  originMask,
		}
		var precedent uint64
		for _, name := range h.Transitions {
			tmask, ok := b.m.transitions.Mask(name)
			if !ok || name == InitialTransition {
				return newError(ErrUndefinedForkTransition, "Forks.Transitions", "fork transition %s not defined in StateTransitions", name)
			}
			precedent |= b.precedentSync[tmask] | b.precedentMerge[tmask]
			f.TransitionsMask |= tmask
			for _, p := range b.pairs[name] {
				if p.origin == h.OriginState {
					f.StateTargetsMask |= p.targetMask
				}
			}
		}
		f.TargetsMask = f.StateTargetsMask &^ precedent
		b.m.Forks = append(b.m.Forks, f)

		e := b.m.StateEntries[originMask]
		if e.ForkTargets == nil {
			e.ForkTargets = make(map[uint64]uint64)
		}
		e.ForkTargets[f.TransitionsMask] = f.StateTargetsMask
		for _, name := range h.Transitions {
			tmask, _ := b.m.transitions.Mask(name)
			b.precedentFork[tmask] = f.TargetsMask
			t := b.m.Transitions[tmask]
			t.Forks = append(t.Forks, f)
		}
	}
	for _, f := range b.m.Forks {
		if f.OriginMask&f.TargetsMask != 0 {
			return newError(ErrForkOriginIsTarget, "Forks", "fork origin %s is target", f.OriginState)
		}
	}
	return nil
}

func (b *builder) compileSplits() error {
	for _, h := range b.splits {
		if len(h.Transition) != 1 {
			return newError(ErrSplitTransitionCount, "Splits", "split origin %s must have exactly one transition", h.OriginState)
		}
		originMask, err := b.stateMask(h.OriginState, "Splits.OriginState")
		if err != nil {
			return err
		}
		name := h.Transition[0]
		tmask, err := b.transitionMask(name, "Splits.Transition")
		if err != nil {
			return err
		}
		var targets []string
		decls, _ := b.raw.StateTransitions.Lookup(h.OriginState)
		found := false
		for _, d := range decls {
			if d.Transition == name {
				targets = d.TargetStates
				found = true
			}
		}
		if !found {
			return newError(ErrUndefinedTransition, "Splits", "split %s: origin %s has no such state transition", name, h.OriginState)
		}
		if len(targets) < 2 {
			return newError(ErrSplitTargetCount, "Splits", "split %s: origin %s must split to multiple target states", name, h.OriginState)
		}
		s := &Split{
			OriginState:    h.OriginState,
			Transition:     name,
			OriginMask:     originMask,
			TransitionMask: tmask,
		}
		for _, target := range targets {
			bit, _ := b.m.states.Mask(target)
			s.StateTargetsMask |= bit
		}
		precedent := b.precedentSync[tmask] | b.precedentMerge[tmask] | b.precedentFork[tmask]
		s.TargetsMask = s.StateTargetsMask &^ precedent
		b.m.Splits = append(b.m.Splits, s)

		e := b.m.StateEntries[originMask]
		if e.SplitTargets == nil {
			e.SplitTargets = make(map[uint64]uint64)
		}
		e.SplitTargets[tmask] = s.StateTargetsMask

		t := b.m.Transitions[tmask]
		if t.Splits == nil {
			t.Splits = make(map[uint64]*Split)
		}
		t.Splits[originMask] = s
	}
	return nil
}

func join(names []string) string {
	return strings.Join(names, ", ")
}
