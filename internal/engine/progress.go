package engine

import (
	"cmp"
	"slices"
	"strings"
)

type forkKey struct {
	origin      uint64
	transitions uint64
}

type mergeKey struct {
	target     uint64
	transition uint64
}

type syncKey struct {
	target      uint64
	transitions uint64
}

func sortedKeys[K comparable, V any](m map[K]V, less func(a, b K) int) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, less)
	return keys
}

func byForkKey(a, b forkKey) int {
	return cmp.Or(cmp.Compare(a.origin, b.origin), cmp.Compare(a.transitions, b.transitions))
}

func byMergeKey(a, b mergeKey) int {
	return cmp.Or(cmp.Compare(a.target, b.target), cmp.Compare(a.transition, b.transition))
}

func bySyncKey(a, b syncKey) int {
	return cmp.Or(cmp.Compare(a.target, b.target), cmp.Compare(a.transitions, b.transitions))
}

// scanMergeProgress reruns every state executed this cycle that is an origin
// of an open merge it has not yet emitted.
func (e *Engine) scanMergeProgress() uint64 {
	var rerun uint64
	for k, progress := range e.merges {
		for origin := range e.history[e.cycle] {
			entry := e.model.StateEntries[origin]
			if entry == nil {
				continue
			}
			if _, ok := entry.MergeOrigins[k.transition]; ok && progress&origin == 0 {
				e.logger.Debug("merge rerun origin",
					"run_id", e.runID,
					"transition", e.model.TransitionName(k.transition),
					"origin", entry.State,
				)
				rerun |= origin
			}
		}
	}
	return rerun
}

// scanSyncProgress reruns every state executed this cycle that still owes
// an open sync a transition, unless a merge into the same target covers it.
func (e *Engine) scanSyncProgress() uint64 {
	var rerun uint64
	for k, progress := range e.syncs {
		for origin := range e.history[e.cycle] {
			entry := e.model.StateEntries[origin]
			if entry == nil {
				continue
			}
			so, ok := entry.SyncOrigins[k.transitions]
			if !ok || so.TargetMask != k.target {
				continue
			}
			required := so.TransitionsMask &^ progress
			if required != 0 && entry.MergeTargetTransitions[k.target]&required == 0 {
				e.logger.Debug("sync rerun origin",
					"run_id", e.runID,
					"origin", entry.State,
					"required", e.model.TransitionNamesFromMask(required),
				)
				rerun |= origin
			}
		}
	}
	return rerun
}

// scanForkProgress reruns every fork origin executed this cycle whose fork
// is still open.
func (e *Engine) scanForkProgress() uint64 {
	var rerun uint64
	for k := range e.forks {
		if _, ran := e.history[e.cycle][k.origin]; !ran {
			continue
		}
		entry := e.model.StateEntries[k.origin]
		if entry == nil {
			continue
		}
		if _, ok := entry.ForkTargets[k.transitions]; ok {
			e.logger.Debug("fork rerun origin",
				"run_id", e.runID,
				"origin", entry.State,
				"required", e.model.TransitionNamesFromMask(e.forks[k]^k.transitions),
			)
			rerun |= k.origin
		}
	}
	return rerun
}

// pendingDump describes open fork, sync and merge progress, one line per
// kind. Empty when nothing is open.
func (e *Engine) pendingDump() string {
	var b strings.Builder
	if len(e.forks) > 0 {
		b.WriteString("Fork pending: ")
		var origin uint64
		for i, k := range sortedKeys(e.forks, byForkKey) {
			if i == 0 || k.origin != origin {
				origin = k.origin
				b.WriteString(e.model.StateName(k.origin) + " ")
			}
			p := e.forks[k]
			b.WriteString("progress Transition(s): " + e.model.TransitionNamesFromMask(p) +
				" required: " + e.model.TransitionNamesFromMask(k.transitions&^p) + "| ")
		}
		b.WriteString("\n")
	}
	if len(e.syncs) > 0 {
		b.WriteString("Sync pending: ")
		var target uint64
		for i, k := range sortedKeys(e.syncs, bySyncKey) {
			if i == 0 || k.target != target {
				target = k.target
				b.WriteString(e.model.StateName(k.target))
			}
			p := e.syncs[k]
			b.WriteString(" progress Transition(s): " + e.model.TransitionNamesFromMask(p) +
				" required: " + e.model.TransitionNamesFromMask(p^k.transitions) + "| ")
		}
		b.WriteString("\n")
	}
	if len(e.merges) > 0 {
		b.WriteString("Merge pending: ")
		var target uint64
		for i, k := range sortedKeys(e.merges, byMergeKey) {
			if i == 0 || k.target != target {
				target = k.target
				b.WriteString(e.model.StateName(k.target) + " ")
			}
			p := e.merges[k]
			b.WriteString("transition: " + e.model.TransitionName(k.transition) +
				" progress Origin(s): " + e.model.StateNamesFromMask(p) +
				" required: " + e.model.StateNamesFromMask(e.mergeOrigins(k)&^p) + "| ")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// mergeOrigins returns every origin of the merge behind k.
func (e *Engine) mergeOrigins(k mergeKey) uint64 {
	for _, mg := range e.model.Merges {
		if mg.StateTargetMask == k.target && mg.TransitionMask == k.transition {
			return mg.OriginsMask
		}
	}
	return 0
}

// formatLastTransitions formats one cycle's history as
// "S1->T1, T2| S2->null".
func (e *Engine) formatLastTransitions(last map[uint64]uint64) string {
	var b strings.Builder
	for _, origin := range sortedKeys(last, cmp.Compare[uint64]) {
		b.WriteString(e.model.StateName(origin) + "->" + e.model.TransitionNamesFromMask(last[origin]) + "| ")
	}
	return strings.TrimRight(b.String(), "| ")
}
