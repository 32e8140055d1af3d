package compiler

import (
	"fmt"
	"slices"

	"github.com/roach88/stateengine/internal/model"
)

// Op is one alteration applied by Patch.
type Op interface {
	apply(m *Model) (*Model, error)
	String() string
}

// DeleteStateTransition removes one transition from an origin state. The
// transition disappears from the origin's table, its auto transition, its
// split hint and its merge participation.
type DeleteStateTransition struct {
	State      string
	Transition string
}

// DeleteSyncOrigin removes the whole Sync that State takes part in through
// Transition.
type DeleteSyncOrigin struct {
	State      string
	Transition string
}

// DeleteSplit removes the split of Transition from State. The transition
// still reaches its declared targets.
type DeleteSplit struct {
	State      string
	Transition string
}

// ReplaceSyncTransitions replaces the transitions of the Sync targeting
// TargetState and recompiles the model, so the new Sync is fully
// validated.
type ReplaceSyncTransitions struct {
	TargetState string
	Transitions []string
}

// Patch applies ops in order to a copy of m and returns the copy. m is not
// modified. A failing op aborts the patch.
func Patch(m *Model, ops ...Op) (*Model, error) {
	out := m.Clone()
	for _, op := range ops {
		next, err := op.apply(out)
		if err != nil {
			return nil, fmt.Errorf("patch %s: %w", op, err)
		}
		out = next
	}
	hash, err := model.Hash(out.raw)
	if err != nil {
		return nil, err
	}
	out.Hash = hash
	return out, nil
}

func (m *Model) resolvePair(state, transition string) (uint64, uint64, error) {
	sm, ok := m.states.Mask(state)
	if !ok || state == InitialState {
		return 0, 0, &UnknownNameError{Kind: "state", Name: state}
	}
	tm, ok := m.transitions.Mask(transition)
	if !ok || transition == InitialTransition {
		return 0, 0, &UnknownNameError{Kind: "transition", Name: transition}
	}
	return sm, tm, nil
}

func (op DeleteStateTransition) String() string {
	return "DeleteStateTransition " + op.State + "," + op.Transition
}

func (op DeleteStateTransition) apply(m *Model) (*Model, error) {
	sm, tm, err := m.resolvePair(op.State, op.Transition)
	if err != nil {
		return nil, err
	}
	entry := m.StateEntries[sm]
	if entry.TransitionsMask&tm == 0 {
		return nil, fmt.Errorf("state %s has no transition %s", op.State, op.Transition)
	}

	for i, o := range m.raw.StateTransitions {
		if o.Origin != op.State {
			continue
		}
		o.Transitions = slices.DeleteFunc(o.Transitions, func(d model.TransitionDecl) bool {
			return d.Transition == op.Transition
		})
		if len(o.Transitions) == 0 {
			m.raw.StateTransitions = slices.Delete(m.raw.StateTransitions, i, i+1)
		} else {
			m.raw.StateTransitions[i] = o
		}
		break
	}

	entry.TransitionsMask &^= tm
	entry.AutoTransition = 0
	entry.HasAutoTransition = false
	delete(entry.MergeOrigins, tm)
	delete(entry.SplitTargets, tm)
	m.removeSplit(sm, tm, op.State, op.Transition)

	t := m.Transitions[tm]
	delete(t.Targets, sm)
	t.OriginsMask &^= sm
	return m, nil
}

func (op DeleteSyncOrigin) String() string {
	return "DeleteSyncOrigin " + op.State + "," + op.Transition
}

func (op DeleteSyncOrigin) apply(m *Model) (*Model, error) {
	sm, tm, err := m.resolvePair(op.State, op.Transition)
	if err != nil {
		return nil, err
	}
	idx := slices.IndexFunc(m.Syncs, func(s *Sync) bool {
		return s.OriginsMask&sm != 0 && s.TransitionsMask&tm != 0
	})
	if idx < 0 {
		return nil, fmt.Errorf("state %s has no sync through %s", op.State, op.Transition)
	}
	s := m.Syncs[idx]
	m.Syncs = slices.Delete(m.Syncs, idx, idx+1)

	for _, name := range s.Transitions {
		bit, _ := m.transitions.Mask(name)
		t := m.Transitions[bit]
		t.Syncs = slices.DeleteFunc(t.Syncs, func(x *Sync) bool { return x == s })
	}
	for bit, e := range m.StateEntries {
		if bit&s.OriginsMask != 0 {
			delete(e.SyncOrigins, s.TransitionsMask)
		}
	}
	m.raw.Syncs = slices.DeleteFunc(m.raw.Syncs, func(h model.SyncHint) bool {
		return h.TargetState == s.TargetState && slices.Equal(h.Transitions, s.Transitions)
	})
	return m, nil
}

func (op DeleteSplit) String() string {
	return "DeleteSplit " + op.State + "," + op.Transition
}

func (op DeleteSplit) apply(m *Model) (*Model, error) {
	sm, tm, err := m.resolvePair(op.State, op.Transition)
	if err != nil {
		return nil, err
	}
	if !m.removeSplit(sm, tm, op.State, op.Transition) {
		return nil, fmt.Errorf("state %s has no split through %s", op.State, op.Transition)
	}
	return m, nil
}

func (m *Model) removeSplit(sm, tm uint64, state, transition string) bool {
	idx := slices.IndexFunc(m.Splits, func(s *Split) bool {
		return s.OriginMask == sm && s.TransitionMask == tm
	})
	m.raw.Splits = slices.DeleteFunc(m.raw.Splits, func(h model.SplitHint) bool {
		return h.OriginState == state && len(h.Transition) > 0 && h.Transition[0] == transition
	})
	if idx < 0 {
		return false
	}
	m.Splits = slices.Delete(m.Splits, idx, idx+1)
	if t := m.Transitions[tm]; t.Splits != nil {
		delete(t.Splits, sm)
		if len(t.Splits) == 0 {
			t.Splits = nil
		}
	}
	return true
}

func (op ReplaceSyncTransitions) String() string {
	return "ReplaceSyncTransitions " + op.TargetState
}

func (op ReplaceSyncTransitions) apply(m *Model) (*Model, error) {
	raw := m.raw.Clone()
	idx := slices.IndexFunc(raw.Syncs, func(h model.SyncHint) bool {
		return h.TargetState == op.TargetState
	})
	if idx < 0 {
		return nil, fmt.Errorf("no sync targets state %s", op.TargetState)
	}
	raw.Syncs[idx].Transitions = append(model.NameList(nil), op.Transitions...)
	return Compile(raw)
}

// OpSpec is the declarative form of an Op, as written in scenario files.
type OpSpec struct {
	Op          string   `yaml:"op" json:"op"`
	State       string   `yaml:"state,omitempty" json:"state,omitempty"`
	Transition  string   `yaml:"transition,omitempty" json:"transition,omitempty"`
	TargetState string   `yaml:"target_state,omitempty" json:"target_state,omitempty"`
	Transitions []string `yaml:"transitions,omitempty" json:"transitions,omitempty"`
}

// Build converts the declaration to an Op.
func (s OpSpec) Build() (Op, error) {
	switch s.Op {
	case "DeleteStateTransition":
		return DeleteStateTransition{State: s.State, Transition: s.Transition}, nil
	case "DeleteSyncOrigin":
		return DeleteSyncOrigin{State: s.State, Transition: s.Transition}, nil
	case "DeleteSplit":
		return DeleteSplit{State: s.State, Transition: s.Transition}, nil
	case "ReplaceSyncTransitions":
		return ReplaceSyncTransitions{TargetState: s.TargetState, Transitions: s.Transitions}, nil
	default:
		return nil, fmt.Errorf("unknown patch op %q", s.Op)
	}
}
