// SPDX-License-Identifier: MPL-2.0

// Package dag provides directed graph operations for topological sorting
// and cycle detection. It orders modules so that every module appears after
// the modules it imports, and orders chunks for load calls.
package dag

import (
	"fmt"
	"strings"
)

const (
	unvisited color = iota
	inProgress
	done
)

type (
	color int

	// CycleError indicates that the graph contains a cycle, preventing topological ordering.
	CycleError struct {
		// Cycle is the cycle path. The first node is repeated at the end.
		Cycle []string
	}

	// Graph is a directed graph for topological sorting.
	// Nodes are identified by string keys. An edge from A to B means A must
	// come before B in the sorted order.
	Graph struct {
		// before maps each node to the nodes that must precede it, in edge insertion order.
		before map[string][]string
		// nodes tracks all nodes in insertion order for deterministic output.
		nodes []string
		// nodeSet provides O(1) lookup for node existence.
		nodeSet map[string]bool
	}
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		before:  make(map[string][]string),
		nodeSet: make(map[string]bool),
	}
}

// AddNode adds a node to the graph. If the node already exists, this is a no-op.
func (g *Graph) AddNode(name string) {
	if g.nodeSet[name] {
		return
	}
	g.nodeSet[name] = true
	g.nodes = append(g.nodes, name)
}

// AddEdge adds a directed edge from -> to, meaning "from" must come before "to".
// Both nodes are implicitly added if they don't exist.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	g.before[to] = append(g.before[to], from)
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// TopologicalSort returns an order in which every node follows its
// predecessors, using a depth-first search that visits nodes and their
// predecessors in insertion order. A node with no ordering constraint keeps
// its insertion position relative to the nodes visited before it.
//
// Returns CycleError with the offending path if the graph contains a cycle.
// The path reads in "depends on" direction: for modules, `a -> b -> a`
// means a imports b and b imports a.
func (g *Graph) TopologicalSort() ([]string, error) {
	if len(g.nodes) == 0 {
		return nil, nil
	}

	state := make(map[string]color, len(g.nodes))
	result := make([]string, 0, len(g.nodes))
	var stack []string

	var visit func(node string) error
	visit = func(node string) error {
		state[node] = inProgress
		stack = append(stack, node)

		for _, pred := range g.before[node] {
			switch state[pred] {
			case inProgress:
				return &CycleError{Cycle: cyclePath(stack, pred)}
			case unvisited:
				if err := visit(pred); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[node] = done
		result = append(result, node)
		return nil
	}

	for _, node := range g.nodes {
		if state[node] != unvisited {
			continue
		}
		if err := visit(node); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// cyclePath extracts the cycle closed by a back edge to target from the
// current DFS stack.
func cyclePath(stack []string, target string) []string {
	start := 0
	for i, n := range stack {
		if n == target {
			start = i
			break
		}
	}
	cycle := make([]string, 0, len(stack)-start+1)
	cycle = append(cycle, stack[start:]...)
	return append(cycle, target)
}
