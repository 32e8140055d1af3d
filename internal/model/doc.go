// Package model defines the declarative workflow model as written by users
// (the "raw" model), and its YAML and JSON encodings.
//
// The raw model is the only input format the compiler accepts. Ordering is
// significant: state indices follow declaration order and transition masks
// follow first appearance in StateTransitions, so the ordered mapping types
// (States, StateTransitions) preserve document order in both encodings.
//
// All state and transition names are NFC-normalized on decode.
package model
