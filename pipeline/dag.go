package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// ExecutionDAG maps each artifact ID to the set of artifact IDs it depends
// on and tracks completion for incremental scheduling.
//
// The graph carries traversal state (the done set), so each run gets its own
// instance (ExecutionPlan.NewDAG). It is not safe for concurrent mutation:
// the executor serializes ReadySet/MarkDone on a single coordinator
// goroutine while workers run the actual artifact work.
type ExecutionDAG struct {
	deps       map[string]map[string]struct{}
	dependents map[string][]string
	done       map[string]struct{}
	validated  bool
}

// NewExecutionDAG builds a dependency graph from artifact definitions.
// Source artifacts have an empty dependency set.
func NewExecutionDAG(artifacts map[string]ArtifactDefinition) *ExecutionDAG {
	g := &ExecutionDAG{
		deps:       make(map[string]map[string]struct{}, len(artifacts)),
		dependents: make(map[string][]string),
		done:       make(map[string]struct{}),
	}
	for id, def := range artifacts {
		set := make(map[string]struct{}, len(def.Inputs))
		for _, dep := range def.Inputs {
			set[dep] = struct{}{}
		}
		g.deps[id] = set
	}
	for id, set := range g.deps {
		for dep := range set {
			g.dependents[dep] = append(g.dependents[dep], id)
		}
	}
	for _, ids := range g.dependents {
		sort.Strings(ids)
	}
	return g
}

// Validate rejects dangling references and cycles. It must be called before
// the first ReadySet call; both checks run in O(V+E) and report the
// offending artifact IDs.
func (g *ExecutionDAG) Validate() error {
	var dangling []string
	seen := make(map[string]struct{})
	for id, set := range g.deps {
		for dep := range set {
			if _, defined := g.deps[dep]; !defined {
				key := id + " -> " + dep
				if _, dup := seen[key]; !dup {
					seen[key] = struct{}{}
					dangling = append(dangling, key)
				}
			}
		}
	}
	if len(dangling) > 0 {
		sort.Strings(dangling)
		ids := make([]string, 0, len(dangling))
		for _, ref := range dangling {
			ids = append(ids, strings.SplitN(ref, " -> ", 2)[0])
		}
		return &PlanError{
			Kind:        PlanErrDanglingReference,
			ArtifactIDs: ids,
			Detail:      fmt.Sprintf("inputs reference undefined artifacts: %s", strings.Join(dangling, ", ")),
		}
	}

	if cycle := g.findCycle(); len(cycle) > 0 {
		return &PlanError{
			Kind:        PlanErrCycle,
			ArtifactIDs: cycle,
			Detail:      fmt.Sprintf("dependency cycle: %s", strings.Join(cycle, " -> ")),
		}
	}

	g.validated = true
	return nil
}

// findCycle runs a depth-first search tracking a recursion stack over every
// node and returns one participating path on the first cycle found.
func (g *ExecutionDAG) findCycle() []string {
	visited := make(map[string]bool, len(g.deps))
	onStack := make(map[string]bool, len(g.deps))
	var path []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		path = append(path, id)

		for dep := range g.deps[id] {
			if onStack[dep] {
				// Slice the path from the first occurrence of dep to
				// report the cycle itself, closed on dep.
				for i, p := range path {
					if p == dep {
						cycle = append(append(cycle, path[i:]...), dep)
						return true
					}
				}
			}
			if !visited[dep] && visit(dep) {
				return true
			}
		}

		onStack[id] = false
		path = path[:len(path)-1]
		return false
	}

	ids := make([]string, 0, len(g.deps))
	for id := range g.deps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if !visited[id] && visit(id) {
			return cycle
		}
	}
	return nil
}

// ReadySet returns every artifact whose dependencies are all done and which
// is not done itself: the full ready frontier, sorted, so the executor can
// dispatch all of it concurrently.
func (g *ExecutionDAG) ReadySet() []string {
	var ready []string
	for id, set := range g.deps {
		if _, isDone := g.done[id]; isDone {
			continue
		}
		blocked := false
		for dep := range set {
			if _, depDone := g.done[dep]; !depDone {
				blocked = true
				break
			}
		}
		if !blocked {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)
	return ready
}

// MarkDone records completion of an artifact, which may grow the frontier.
func (g *ExecutionDAG) MarkDone(id string) {
	g.done[id] = struct{}{}
}

// Remaining reports how many artifacts are not yet done.
func (g *ExecutionDAG) Remaining() int {
	return len(g.deps) - len(g.done)
}

// Dependencies returns the direct dependencies of an artifact, sorted.
func (g *ExecutionDAG) Dependencies(id string) []string {
	set := g.deps[id]
	deps := make([]string, 0, len(set))
	for dep := range set {
		deps = append(deps, dep)
	}
	sort.Strings(deps)
	return deps
}

// Dependents returns the artifacts that directly depend on id, sorted.
func (g *ExecutionDAG) Dependents(id string) []string {
	return g.dependents[id]
}

// Size returns the number of artifacts in the graph.
func (g *ExecutionDAG) Size() int {
	return len(g.deps)
}
