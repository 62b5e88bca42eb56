package orchestrator

import (
	"fmt"

	"github.com/stratumflow/stratum/pkg/models"
)

// validateGraph checks the structural invariants of a definition graph:
// edges reference declared nodes, compensation nodes stay out of the forward
// flow, and the forward graph is acyclic. Back-edges into LOOP nodes are the
// one sanctioned exception; their iteration is bounded internally.
func validateGraph(def *models.WorkflowDefinition) error {
	var problems []string

	nodesByID := make(map[string]*models.DefinitionNode, len(def.Nodes))

	for _, n := range def.Nodes {
		if _, dup := nodesByID[n.ID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate node id '%s'", n.ID))
		}

		nodesByID[n.ID] = n
	}

	for _, e := range def.Edges {
		from, fromOK := nodesByID[e.From]
		to, toOK := nodesByID[e.To]

		if !fromOK {
			problems = append(problems, fmt.Sprintf("edge '%s' references unknown node '%s'", e.ID, e.From))
		}

		if !toOK {
			problems = append(problems, fmt.Sprintf("edge '%s' references unknown node '%s'", e.ID, e.To))

			continue
		}

		if to.Type == models.NodeTypeCompensation {
			problems = append(problems, fmt.Sprintf("edge '%s' routes forward flow into compensation node '%s'", e.ID, e.To))
		}

		if fromOK && from.Type == models.NodeTypeCompensation {
			problems = append(problems, fmt.Sprintf("compensation node '%s' has outbound edge '%s'", e.From, e.ID))
		}
	}

	if cycle := findCycle(def, nodesByID); cycle != "" {
		problems = append(problems, cycle)
	}

	if len(forwardEntryNodes(def)) == 0 {
		problems = append(problems, "graph has no entry node")
	}

	if len(problems) > 0 {
		return &ValidationError{DefinitionID: def.ID, Problems: problems}
	}

	return nil
}

// findCycle runs a DFS over the forward graph, ignoring edges that re-enter
// a LOOP node.
func findCycle(def *models.WorkflowDefinition, nodesByID map[string]*models.DefinitionNode) string {
	adjacency := make(map[string][]string, len(def.Nodes))

	for _, e := range def.Edges {
		target, ok := nodesByID[e.To]
		if !ok {
			continue
		}

		if target.Type == models.NodeTypeLoop && hasPath(def, e.To, e.From) {
			continue
		}

		adjacency[e.From] = append(adjacency[e.From], e.To)
	}

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)

	state := make(map[string]int, len(def.Nodes))

	var visit func(id string) string

	visit = func(id string) string {
		state[id] = inStack

		for _, next := range adjacency[id] {
			switch state[next] {
			case inStack:
				return fmt.Sprintf("cycle through node '%s'", next)
			case unvisited:
				if found := visit(next); found != "" {
					return found
				}
			}
		}

		state[id] = done

		return ""
	}

	for _, n := range def.Nodes {
		if state[n.ID] == unvisited {
			if found := visit(n.ID); found != "" {
				return found
			}
		}
	}

	return ""
}

// hasPath reports whether to is reachable from from over forward edges.
func hasPath(def *models.WorkflowDefinition, from, to string) bool {
	seen := map[string]bool{from: true}
	queue := []string{from}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current == to {
			return true
		}

		for _, e := range def.Edges {
			if e.From == current && !seen[e.To] {
				seen[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}

	return false
}

// forwardEntryNodes returns entry nodes of the forward graph, excluding
// compensation declarations.
func forwardEntryNodes(def *models.WorkflowDefinition) []*models.DefinitionNode {
	var entries []*models.DefinitionNode

	for _, n := range def.EntryNodes() {
		if n.Type != models.NodeTypeCompensation && n.Enabled {
			entries = append(entries, n)
		}
	}

	return entries
}
