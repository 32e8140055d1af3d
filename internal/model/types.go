package model

// Raw is a declarative workflow model before compilation.
type Raw struct {
	Workflow         string           `yaml:"Workflow" json:"Workflow"`
	StatePrefix      string           `yaml:"StatePrefix,omitempty" json:"StatePrefix,omitempty"`
	Version          string           `yaml:"Version,omitempty" json:"Version,omitempty"`
	Build            string           `yaml:"Build,omitempty" json:"Build,omitempty"`
	States           States           `yaml:"States,omitempty" json:"States,omitempty"`
	StartState       string           `yaml:"StartState,omitempty" json:"StartState,omitempty"`
	TerminalState    string           `yaml:"TerminalState" json:"TerminalState"`
	Idle             IdleHint         `yaml:"Idle,omitempty" json:"Idle"`
	StateTransitions StateTransitions `yaml:"StateTransitions" json:"StateTransitions"`
	Splits           []SplitHint      `yaml:"Splits,omitempty" json:"Splits,omitempty"`
	Forks            []ForkHint       `yaml:"Forks,omitempty" json:"Forks,omitempty"`
	Syncs            []SyncHint       `yaml:"Syncs,omitempty" json:"Syncs,omitempty"`
	Merges           []MergeHint      `yaml:"Merges,omitempty" json:"Merges,omitempty"`
	Parameters       Parameters       `yaml:"Parameters,omitempty" json:"Parameters"`
}

// StateDecl declares attribute overrides for one state.
// States only need to be declared to override defaults; any name used as a
// transition target exists implicitly.
type StateDecl struct {
	Name string `yaml:"-" json:"-"`
	// Handler names the registered handler; defaults to StatePrefix+Name+"State".
	Handler string `yaml:"handler,omitempty" json:"handler,omitempty"`
	// Prototype requests a fresh handler instance per execution.
	Prototype Flag `yaml:"prototype,omitempty" json:"prototype,omitempty"`
}

// States is an ordered list of state declarations, encoded as a mapping
// from state name to attributes.
type States []StateDecl

// Lookup returns the declaration for name.
func (s States) Lookup(name string) (StateDecl, bool) {
	for _, d := range s {
		if d.Name == name {
			return d, true
		}
	}
	return StateDecl{}, false
}

// TransitionDecl is one named transition leaving an origin state.
type TransitionDecl struct {
	Transition   string   `yaml:"Transition" json:"Transition"`
	TargetStates NameList `yaml:"TargetStates" json:"TargetStates"`
	// AutoTransition, when explicitly false, stops a sole transition being
	// emitted automatically.
	AutoTransition *Flag `yaml:"autoTransition,omitempty" json:"autoTransition,omitempty"`
}

// OriginTransitions lists the transitions an origin state may emit.
type OriginTransitions struct {
	Origin      string
	Transitions []TransitionDecl
}

// StateTransitions is the ordered transition table, encoded as a mapping
// from origin state name to a list of transitions.
type StateTransitions []OriginTransitions

// Lookup returns the transitions declared for origin.
func (st StateTransitions) Lookup(origin string) ([]TransitionDecl, bool) {
	for _, o := range st {
		if o.Origin == origin {
			return o.Transitions, true
		}
	}
	return nil, false
}

// IdleHint names the states allowed to rest without emitting a transition.
type IdleHint struct {
	States NameList `yaml:"States,omitempty" json:"States,omitempty"`
}

// SplitHint declares one transition fanning out from an origin to several
// targets at once.
type SplitHint struct {
	OriginState string   `yaml:"OriginState" json:"OriginState"`
	Transition  NameList `yaml:"Transition" json:"Transition"`
}

// ForkHint declares several transitions an origin must all emit before any
// of their targets activate.
type ForkHint struct {
	OriginState string   `yaml:"OriginState" json:"OriginState"`
	Transitions NameList `yaml:"Transitions" json:"Transitions"`
}

// SyncHint declares several transitions that must all be emitted before
// TargetState activates.
type SyncHint struct {
	TargetState string   `yaml:"TargetState" json:"TargetState"`
	Transitions NameList `yaml:"Transitions" json:"Transitions"`
}

// MergeHint declares a transition every origin must emit before
// TargetState activates.
type MergeHint struct {
	TargetState string   `yaml:"TargetState" json:"TargetState"`
	Transition  NameList `yaml:"Transition" json:"Transition"`
}

// Parameters tune engine limits. Nil means not set.
type Parameters struct {
	StallCycles         *int `yaml:"StallCycles,omitempty" json:"StallCycles,omitempty"`
	MaxTransitionFactor *int `yaml:"MaxTransitionFactor,omitempty" json:"MaxTransitionFactor,omitempty"`
}

// NameList is a list of names. It decodes from either a list or a single
// comma-separated string.
type NameList []string

// Flag is a boolean that also decodes from the strings "true" and "false".
type Flag bool

// Clone returns a deep copy of the model.
func (r *Raw) Clone() *Raw {
	c := *r
	c.States = append(States(nil), r.States...)
	c.Idle.States = append(NameList(nil), r.Idle.States...)
	c.StateTransitions = make(StateTransitions, len(r.StateTransitions))
	for i, o := range r.StateTransitions {
		ts := make([]TransitionDecl, len(o.Transitions))
		for j, t := range o.Transitions {
			ts[j] = t
			ts[j].TargetStates = append(NameList(nil), t.TargetStates...)
			if t.AutoTransition != nil {
				v := *t.AutoTransition
				ts[j].AutoTransition = &v
			}
		}
		c.StateTransitions[i] = OriginTransitions{Origin: o.Origin, Transitions: ts}
	}
	c.Splits = make([]SplitHint, len(r.Splits))
	for i, h := range r.Splits {
		c.Splits[i] = SplitHint{OriginState: h.OriginState, Transition: append(NameList(nil), h.Transition...)}
	}
	c.Forks = make([]ForkHint, len(r.Forks))
	for i, h := range r.Forks {
		c.Forks[i] = ForkHint{OriginState: h.OriginState, Transitions: append(NameList(nil), h.Transitions...)}
	}
	c.Syncs = make([]SyncHint, len(r.Syncs))
	for i, h := range r.Syncs {
		c.Syncs[i] = SyncHint{TargetState: h.TargetState, Transitions: append(NameList(nil), h.Transitions...)}
	}
	c.Merges = make([]MergeHint, len(r.Merges))
	for i, h := range r.Merges {
		c.Merges[i] = MergeHint{TargetState: h.TargetState, Transition: append(NameList(nil), h.Transition...)}
	}
	if r.Parameters.StallCycles != nil {
		v := *r.Parameters.StallCycles
		c.Parameters.StallCycles = &v
	}
	if r.Parameters.MaxTransitionFactor != nil {
		v := *r.Parameters.MaxTransitionFactor
		c.Parameters.MaxTransitionFactor = &v
	}
	return &c
}
