package compiler

import (
	"maps"
	"strings"

	"github.com/roach88/stateengine/internal/mask"
	"github.com/roach88/stateengine/internal/model"
)

// Names of the implicit pseudo start state and its transition.
const (
	InitialState      = "InitialS"
	InitialTransition = "InitialT"
)

// State is a compiled workflow state.
type State struct {
	Name      string `json:"name"`
	Index     int    `json:"index"` // 1-based declaration order
	Mask      uint64 `json:"mask"`
	Handler   string `json:"handler"`
	Singleton bool   `json:"singleton"`
}

// Target is the target set a transition reaches from one origin.
type Target struct {
	Origin     string `json:"origin"`
	TargetMask uint64 `json:"target_mask"`
}

// Transition is the compiled entry for one transition name.
//
// Composite claims are stored with their precedence-adjusted target masks:
// bits claimed by a higher-precedence pattern (Sync > Merge > Fork > Split)
// have been removed.
type Transition struct {
	Name        string            `json:"name"`
	Mask        uint64            `json:"mask"`
	OriginsMask uint64            `json:"origins_mask"`
	Targets     map[uint64]Target `json:"targets"` // keyed by origin mask
	Syncs       []*Sync           `json:"syncs,omitempty"`
	Merges      []*Merge          `json:"merges,omitempty"`
	Forks       []*Fork           `json:"forks,omitempty"`
	Splits      map[uint64]*Split `json:"splits,omitempty"` // keyed by origin mask
}

// SyncOrigin records, for an origin state, which transitions of a Sync it
// can emit and the Sync target.
type SyncOrigin struct {
	TargetMask      uint64 `json:"target_mask"`
	TransitionsMask uint64 `json:"transitions_mask"`
}

// MergeOrigin records, for an origin state, the Merge it participates in.
type MergeOrigin struct {
	OriginsMask uint64 `json:"origins_mask"`
	TargetMask  uint64 `json:"target_mask"`
}

// StateEntry is the reverse index for one state mask.
type StateEntry struct {
	State           string `json:"state"`
	Index           int    `json:"index"`
	TransitionsMask uint64 `json:"transitions_mask"`
	// AutoTransition is emitted when the handler emits nothing.
	AutoTransition    uint64 `json:"auto_transition"`
	HasAutoTransition bool   `json:"has_auto_transition"`

	SyncOrigins            map[uint64]SyncOrigin  `json:"sync_origins,omitempty"`             // by sync transitions mask
	MergeOrigins           map[uint64]MergeOrigin `json:"merge_origins,omitempty"`            // by merge transition mask
	MergeTargetTransitions map[uint64]uint64      `json:"merge_target_transitions,omitempty"` // by merge target mask
	ForkTargets            map[uint64]uint64      `json:"fork_targets,omitempty"`             // by fork transitions mask
	SplitTargets           map[uint64]uint64      `json:"split_targets,omitempty"`            // by split transition mask
}

// Sync requires every transition in the set before the target activates.
type Sync struct {
	TargetState     string   `json:"target_state"`
	Transitions     []string `json:"transitions"`
	OriginsMask     uint64   `json:"origins_mask"`
	TargetMask      uint64   `json:"target_mask"`
	TransitionsMask uint64   `json:"transitions_mask"`
}

// Merge requires every origin to emit the transition before the target
// activates.
type Merge struct {
	TargetState    string `json:"target_state"`
	Transition     string `json:"transition"`
	TransitionMask uint64 `json:"transition_mask"`
	OriginsMask    uint64 `json:"origins_mask"`
	// StateTargetMask is the declared target; TargetMask has higher
	// precedence claims removed.
	StateTargetMask uint64 `json:"state_target_mask"`
	TargetMask      uint64 `json:"target_mask"`
}

// Fork requires the origin to emit every transition before the targets
// activate together.
type Fork struct {
	OriginState      string   `json:"origin_state"`
	Transitions      []string `json:"transitions"`
	OriginMask       uint64   `json:"origin_mask"`
	TransitionsMask  uint64   `json:"transitions_mask"`
	StateTargetsMask uint64   `json:"state_targets_mask"`
	TargetsMask      uint64   `json:"targets_mask"`
}

// Split activates every target as soon as the transition is emitted.
type Split struct {
	OriginState      string `json:"origin_state"`
	Transition       string `json:"transition"`
	OriginMask       uint64 `json:"origin_mask"`
	TransitionMask   uint64 `json:"transition_mask"`
	StateTargetsMask uint64 `json:"state_targets_mask"`
	TargetsMask      uint64 `json:"targets_mask"`
}

// Model is a compiled workflow: immutable lookup tables keyed by mask.
// Use Patch to derive a modified copy.
type Model struct {
	Name        string `json:"name"`
	StatePrefix string `json:"state_prefix"`
	Version     string `json:"version"`
	Build       string `json:"build"`
	Hash        string `json:"hash"`

	States        []State `json:"states"` // by index, States[i].Index == i+1
	StartState    string  `json:"start_state"`
	TerminalState string  `json:"terminal_state"`
	StartMask     uint64  `json:"start_mask"`
	TerminalMask  uint64  `json:"terminal_mask"`
	IdleMask      uint64  `json:"idle_mask"`
	StopStates    uint64  `json:"stop_states"`

	Transitions  map[uint64]*Transition `json:"transitions"`
	StateEntries map[uint64]*StateEntry `json:"state_entries"`

	Syncs  []*Sync  `json:"syncs,omitempty"`
	Merges []*Merge `json:"merges,omitempty"`
	Forks  []*Fork  `json:"forks,omitempty"`
	Splits []*Split `json:"splits,omitempty"`

	// DispatchMaxCount is the dispatch-cycle ceiling; 0 means unlimited.
	DispatchMaxCount int `json:"dispatch_max_count"`
	// StallCycles is the number of extra cycles run once the workflow is
	// idle before the engine stops.
	StallCycles int `json:"stall_cycles"`

	states      *mask.Index
	transitions *mask.Index
	raw         *model.Raw
}

// Raw returns a copy of the model the compiled tables were built from.
func (m *Model) Raw() *model.Raw {
	return m.raw.Clone()
}

// StateMask returns the mask of a state name.
func (m *Model) StateMask(name string) (uint64, bool) {
	return m.states.Mask(name)
}

// TransitionMask returns the mask of a transition name.
func (m *Model) TransitionMask(name string) (uint64, bool) {
	return m.transitions.Mask(name)
}

// StateName returns the name of a single state mask.
func (m *Model) StateName(bit uint64) string {
	return m.states.Name(bit)
}

// TransitionName returns the name of a single transition mask.
func (m *Model) TransitionName(bit uint64) string {
	return m.transitions.Name(bit)
}

// StateByMask returns the state for a single-bit mask.
func (m *Model) StateByMask(bit uint64) (State, bool) {
	i := mask.Position(bit)
	if i == 0 || i > len(m.States) || m.States[i-1].Mask != bit {
		return State{}, false
	}
	return m.States[i-1], true
}

// StateNamesFromMask formats the states of a mask as "S1, S2".
// The zero mask formats as "".
func (m *Model) StateNamesFromMask(states uint64) string {
	if states == 0 {
		return ""
	}
	return joinOrHash(m.states.Names(states))
}

// TransitionNamesFromMask formats the transitions of a mask as "T1, T2".
// The zero mask formats as "null".
func (m *Model) TransitionNamesFromMask(transitions uint64) string {
	if transitions == 0 {
		return "null"
	}
	return joinOrHash(m.transitions.Names(transitions))
}

func joinOrHash(names []string) string {
	if len(names) == 0 {
		return "#"
	}
	return strings.Join(names, ", ")
}

// TransitionNameToMask resolves transition names to a mask. Each argument
// may itself be a comma-separated list; empty entries are skipped.
func (m *Model) TransitionNameToMask(names ...string) (uint64, error) {
	var out uint64
	for _, arg := range names {
		for _, n := range mask.SplitNames(arg) {
			bit, ok := m.transitions.Mask(n)
			if !ok || n == InitialTransition {
				return 0, &UnknownNameError{Kind: "transition", Name: n}
			}
			out |= bit
		}
	}
	return out, nil
}

// StatesMaskFromNames resolves a comma-separated list of state names.
func (m *Model) StatesMaskFromNames(names string) (uint64, error) {
	var out uint64
	var invalid []string
	for _, n := range mask.SplitNames(names) {
		bit, ok := m.states.Mask(n)
		if !ok || n == InitialState {
			invalid = append(invalid, n)
			continue
		}
		out |= bit
	}
	if len(invalid) > 0 {
		return 0, &UnknownNameError{Kind: "state", Name: strings.Join(invalid, ", ")}
	}
	return out, nil
}

// TransitionNames returns every declared transition name in mask order.
func (m *Model) TransitionNames() []string {
	return m.transitions.All()
}

// StateCount returns the number of declared states.
func (m *Model) StateCount() int {
	return len(m.States)
}

// Clone returns a deep copy of the model.
func (m *Model) Clone() *Model {
	c := *m
	c.States = append([]State(nil), m.States...)
	c.states = m.states.Clone()
	c.transitions = m.transitions.Clone()
	c.raw = m.raw.Clone()

	syncs := make(map[*Sync]*Sync, len(m.Syncs))
	c.Syncs = make([]*Sync, len(m.Syncs))
	for i, s := range m.Syncs {
		cp := *s
		cp.Transitions = append([]string(nil), s.Transitions...)
		syncs[s] = &cp
		c.Syncs[i] = &cp
	}
	merges := make(map[*Merge]*Merge, len(m.Merges))
	c.Merges = make([]*Merge, len(m.Merges))
	for i, mg := range m.Merges {
		cp := *mg
		merges[mg] = &cp
		c.Merges[i] = &cp
	}
	forks := make(map[*Fork]*Fork, len(m.Forks))
	c.Forks = make([]*Fork, len(m.Forks))
	for i, f := range m.Forks {
		cp := *f
		cp.Transitions = append([]string(nil), f.Transitions...)
		forks[f] = &cp
		c.Forks[i] = &cp
	}
	splits := make(map[*Split]*Split, len(m.Splits))
	c.Splits = make([]*Split, len(m.Splits))
	for i, s := range m.Splits {
		cp := *s
		splits[s] = &cp
		c.Splits[i] = &cp
	}

	c.Transitions = make(map[uint64]*Transition, len(m.Transitions))
	for k, t := range m.Transitions {
		ct := *t
		ct.Targets = make(map[uint64]Target, len(t.Targets))
		for o, tg := range t.Targets {
			ct.Targets[o] = tg
		}
		ct.Syncs = nil
		for _, s := range t.Syncs {
			ct.Syncs = append(ct.Syncs, syncs[s])
		}
		ct.Merges = nil
		for _, mg := range t.Merges {
			ct.Merges = append(ct.Merges, merges[mg])
		}
		ct.Forks = nil
		for _, f := range t.Forks {
			ct.Forks = append(ct.Forks, forks[f])
		}
		ct.Splits = nil
		if t.Splits != nil {
			ct.Splits = make(map[uint64]*Split, len(t.Splits))
			for o, s := range t.Splits {
				ct.Splits[o] = splits[s]
			}
		}
		c.Transitions[k] = &ct
	}

	c.StateEntries = make(map[uint64]*StateEntry, len(m.StateEntries))
	for k, e := range m.StateEntries {
		ce := *e
		ce.SyncOrigins = maps.Clone(e.SyncOrigins)
		ce.MergeOrigins = maps.Clone(e.MergeOrigins)
		ce.MergeTargetTransitions = maps.Clone(e.MergeTargetTransitions)
		ce.ForkTargets = maps.Clone(e.ForkTargets)
		ce.SplitTargets = maps.Clone(e.SplitTargets)
		c.StateEntries[k] = &ce
	}
	return &c
}
