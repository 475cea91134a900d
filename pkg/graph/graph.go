package graph

import (
	"fmt"
	"sort"

	"github.com/cloudseed-io/seedctl/pkg/errors"
)

// Graph is the set of declared resources plus their reference edges.
// Required to be acyclic; Build enforces that before any apply is attempted.
type Graph struct {
	// Nodes keyed by logical name.
	Nodes map[string]*Node

	// Deployment name.
	Deployment string
}

// NewGraph creates a new empty graph.
func NewGraph(deployment string) *Graph {
	return &Graph{
		Nodes:      make(map[string]*Node),
		Deployment: deployment,
	}
}

// AddNode adds a node to the graph.
func (g *Graph) AddNode(node *Node) error {
	if _, exists := g.Nodes[node.Name]; exists {
		return fmt.Errorf("node %s already exists", node.Name)
	}
	g.Nodes[node.Name] = node
	return nil
}

// GetNode returns a node by name.
func (g *Graph) GetNode(name string) *Node {
	return g.Nodes[name]
}

// AddEdge adds a dependency edge: dependent is applied after dependency.
func (g *Graph) AddEdge(dependentName, dependencyName string) error {
	dependent := g.GetNode(dependentName)
	if dependent == nil {
		return fmt.Errorf("dependent node %s not found", dependentName)
	}

	dependency := g.GetNode(dependencyName)
	if dependency == nil {
		return fmt.Errorf("dependency node %s not found", dependencyName)
	}

	dependent.AddDependency(dependencyName)
	dependency.AddDependent(dependentName)

	return nil
}

// Sorted returns all nodes in declaration order.
func (g *Graph) Sorted() []*Node {
	nodes := make([]*Node, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Order < nodes[j].Order
	})
	return nodes
}

// dfs coloring
const (
	colorWhite = 0 // unvisited
	colorGray  = 1 // on the recursion stack
	colorBlack = 2 // fully explored
)

// CheckAcyclic verifies no resource transitively depends on itself, via
// depth-first search with recursion-stack coloring. On failure it returns a
// CycleError naming every node on the offending stack segment.
func (g *Graph) CheckAcyclic() error {
	colors := make(map[string]int, len(g.Nodes))
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		colors[name] = colorGray
		stack = append(stack, name)

		node := g.Nodes[name]
		deps := append([]string(nil), node.DependsOn...)
		sort.Strings(deps)

		for _, dep := range deps {
			switch colors[dep] {
			case colorWhite:
				if err := visit(dep); err != nil {
					return err
				}
			case colorGray:
				// Everything from dep's position on the stack participates.
				var members []string
				for i := len(stack) - 1; i >= 0; i-- {
					members = append(members, stack[i])
					if stack[i] == dep {
						break
					}
				}
				return errors.CycleError(members)
			}
		}

		stack = stack[:len(stack)-1]
		colors[name] = colorBlack
		return nil
	}

	// Visit in declaration order for deterministic error messages.
	for _, node := range g.Sorted() {
		if colors[node.Name] == colorWhite {
			if err := visit(node.Name); err != nil {
				return err
			}
		}
	}

	return nil
}

// AllTerminal returns true once every node reached an end state.
func (g *Graph) AllTerminal() bool {
	for _, node := range g.Nodes {
		if !node.State.Terminal() {
			return false
		}
	}
	return true
}

// HasFailed returns true if any node has failed.
func (g *Graph) HasFailed() bool {
	for _, node := range g.Nodes {
		if node.State == StateFailed {
			return true
		}
	}
	return false
}
