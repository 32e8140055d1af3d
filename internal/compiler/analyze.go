package compiler

import (
	"fmt"
	"strings"
)

// Warning is a non-fatal finding about a compiled model.
//
// Loops are warnings, not errors, because most workflows with a retry
// or review step loop on purpose. They are worth a look when no
// MaxTransitionFactor bounds the run.
type Warning struct {
	Kind    string   `json:"kind"` // "loop", "dead_end" or "unreachable"
	States  []string `json:"states"`
	Message string   `json:"message"`
}

// Analyze inspects the state graph of a compiled model.
//
// It reports:
//   - loops (strongly connected states) when DispatchMaxCount is 0
//   - non-terminal, non-idle states that are never an origin
//   - a terminal state the start state cannot reach
//
// Results are ordered by state index.
func Analyze(m *Model) []Warning {
	graph, order := stateGraph(m)
	var warnings []Warning

	if m.DispatchMaxCount == 0 {
		for _, scc := range tarjanSCC(graph, order) {
			if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
				path := reconstructCyclePath(scc, graph)
				warnings = append(warnings, Warning{
					Kind:    "loop",
					States:  path,
					Message: fmt.Sprintf("unbounded loop: %s (set Parameters.MaxTransitionFactor)", strings.Join(path, " -> ")),
				})
			}
		}
	}

	for _, s := range m.States {
		if s.Mask&m.StopStates != 0 {
			continue
		}
		if e := m.StateEntries[s.Mask]; e.TransitionsMask == 0 {
			warnings = append(warnings, Warning{
				Kind:    "dead_end",
				States:  []string{s.Name},
				Message: fmt.Sprintf("state %s emits no transitions and is not idle or terminal", s.Name),
			})
		}
	}

	if !reachable(graph, m.StartState, m.TerminalState) {
		warnings = append(warnings, Warning{
			Kind:    "unreachable",
			States:  []string{m.TerminalState},
			Message: fmt.Sprintf("terminal state %s is not reachable from %s", m.TerminalState, m.StartState),
		})
	}
	return warnings
}

// stateGraph maps each state to the states its transitions target. Nodes
// are returned in state index order.
func stateGraph(m *Model) (map[string][]string, []string) {
	graph := make(map[string][]string, len(m.States))
	order := make([]string, 0, len(m.States))
	for _, s := range m.States {
		order = append(order, s.Name)
		graph[s.Name] = nil
	}
	for _, s := range m.States {
		seen := make(map[string]bool)
		for _, tname := range m.transitions.All() {
			bit, _ := m.transitions.Mask(tname)
			t, ok := m.Transitions[bit]
			if !ok {
				continue
			}
			target, ok := t.Targets[s.Mask]
			if !ok {
				continue
			}
			for _, name := range m.states.Names(target.TargetMask) {
				if !seen[name] {
					seen[name] = true
					graph[s.Name] = append(graph[s.Name], name)
				}
			}
		}
	}
	return graph, order
}

func hasSelfLoop(node string, graph map[string][]string) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

func reachable(graph map[string][]string, from, to string) bool {
	seen := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		if v == to {
			return true
		}
		for _, w := range graph[v] {
			if !seen[w] {
				seen[w] = true
				queue = append(queue, w)
			}
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm,
// visiting nodes in the given order.
func tarjanSCC(graph map[string][]string, order []string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack into an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// reconstructCyclePath walks SCC members from the first one until it
// returns to it.
func reconstructCyclePath(scc []string, graph map[string][]string) []string {
	if len(scc) == 1 {
		return []string{scc[0], scc[0]}
	}
	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}
	// SCC members are popped in reverse discovery order
	start := scc[len(scc)-1]
	current := start
	path := []string{current}
	visited := make(map[string]bool)
	for {
		visited[current] = true
		var next string
		for _, neighbor := range graph[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
