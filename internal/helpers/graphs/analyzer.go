package graphs

import (
	"log/slog"

	"github.com/eleven-am/flux/internal/domain"
)

// ComputeAffectedNodes returns the set of nodes forward-reachable from the
// start node, always including the start node itself. Pure and deterministic
// for a given graph and start; O(V+E). A visited-set guard keeps the
// traversal terminating on cyclic graphs, which are logged as an anomaly
// rather than failed.
func ComputeAffectedNodes(graph *domain.GraphDefinition, startNodeID string, logger *slog.Logger) map[string]struct{} {
	visited := make(map[string]struct{})
	if !graph.HasNode(startNodeID) {
		return visited
	}

	adjacency := make(map[string][]string, len(graph.Nodes))
	for _, conn := range graph.Connections {
		adjacency[conn.SourceNodeID] = append(adjacency[conn.SourceNodeID], conn.TargetNodeID)
	}

	frontier := []string{startNodeID}
	visited[startNodeID] = struct{}{}

	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]

		for _, target := range adjacency[current] {
			if _, seen := visited[target]; seen {
				continue
			}
			if !graph.HasNode(target) {
				continue
			}
			visited[target] = struct{}{}
			frontier = append(frontier, target)
		}
	}

	if logger != nil && hasCycle(adjacency, visited, startNodeID) {
		logger.Warn("cycle detected in graph reachable from trigger",
			"graph_id", graph.ID,
			"start_node_id", startNodeID)
	}

	return visited
}

// hasCycle runs a three-color DFS over the affected subgraph looking for a
// back edge. Detection only; the engine treats unresolvable nodes as skipped.
func hasCycle(adjacency map[string][]string, affected map[string]struct{}, startNodeID string) bool {
	const (
		white = 0
		grey  = 1
		black = 2
	)

	color := make(map[string]int, len(affected))

	var visit func(nodeID string) bool
	visit = func(nodeID string) bool {
		color[nodeID] = grey
		for _, target := range adjacency[nodeID] {
			if _, ok := affected[target]; !ok {
				continue
			}
			switch color[target] {
			case grey:
				return true
			case white:
				if visit(target) {
					return true
				}
			}
		}
		color[nodeID] = black
		return false
	}

	return visit(startNodeID)
}
