// Package mask provides the bitmask identity used for workflow states and
// transitions.
//
// Every state and every transition name is assigned a single power-of-two
// bit in first-seen order. Sets of states or transitions are the bitwise OR
// of their members. The value 0 is reserved: for states it names the
// implicit pseudo start state, for transitions the null transition.
package mask
