package model

import "golang.org/x/text/unicode/norm"

// Normalize rewrites every state and transition name to Unicode NFC so
// that visually identical names compare equal.
func (r *Raw) Normalize() {
	r.Workflow = norm.NFC.String(r.Workflow)
	r.StatePrefix = norm.NFC.String(r.StatePrefix)
	r.StartState = norm.NFC.String(r.StartState)
	r.TerminalState = norm.NFC.String(r.TerminalState)
	for i := range r.States {
		r.States[i].Name = norm.NFC.String(r.States[i].Name)
		r.States[i].Handler = norm.NFC.String(r.States[i].Handler)
	}
	normalizeList(r.Idle.States)
	for i := range r.StateTransitions {
		o := &r.StateTransitions[i]
		o.Origin = norm.NFC.String(o.Origin)
		for j := range o.Transitions {
			o.Transitions[j].Transition = norm.NFC.String(o.Transitions[j].Transition)
			normalizeList(o.Transitions[j].TargetStates)
		}
	}
	for i := range r.Splits {
		r.Splits[i].OriginState = norm.NFC.String(r.Splits[i].OriginState)
		normalizeList(r.Splits[i].Transition)
	}
	for i := range r.Forks {
		r.Forks[i].OriginState = norm.NFC.String(r.Forks[i].OriginState)
		normalizeList(r.Forks[i].Transitions)
	}
	for i := range r.Syncs {
		r.Syncs[i].TargetState = norm.NFC.String(r.Syncs[i].TargetState)
		normalizeList(r.Syncs[i].Transitions)
	}
	for i := range r.Merges {
		r.Merges[i].TargetState = norm.NFC.String(r.Merges[i].TargetState)
		normalizeList(r.Merges[i].Transition)
	}
}

func normalizeList(names NameList) {
	for i, n := range names {
		names[i] = norm.NFC.String(n)
	}
}
