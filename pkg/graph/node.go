// Package graph provides dependency graph construction and cycle detection
// for declared resources.
package graph

import (
	"github.com/cloudseed-io/seedctl/pkg/expression"
)

// State tracks a resource's lifecycle through a run.
type State string

const (
	// StateDeclared: parsed from the declaration, not yet scheduled.
	StateDeclared State = "declared"
	// StatePending: scheduled, waiting for its batch.
	StatePending State = "pending"
	// StateApplying: handed to a driver; terminal only if the run is
	// cancelled mid-flight, in which case the resource must be reconciled
	// by a re-run.
	StateApplying State = "applying"
	// StateApplied: the driver converged the resource.
	StateApplied State = "applied"
	// StateFailed: the driver surfaced a failure.
	StateFailed State = "failed"
	// StateSkipped: never attempted because a dependency failed.
	StateSkipped State = "skipped"
)

// Terminal reports whether a state is an end state for a run.
func (s State) Terminal() bool {
	return s == StateApplied || s == StateFailed || s == StateSkipped
}

// Node represents a declared resource in the dependency graph.
type Node struct {
	// Name is the logical name, unique within the graph.
	Name string

	// Kind selects the driver.
	Kind string

	// Order is the declaration index, used for stable scheduling.
	Order int

	// Attributes are the parsed attribute expressions.
	Attributes map[string]*expression.Expression

	// Outputs is the set of attribute names the resource declares as
	// referenceable outputs.
	Outputs map[string]bool

	// DependsOn holds names of nodes this node depends on.
	DependsOn []string

	// DependedOnBy holds names of nodes that depend on this node.
	DependedOnBy []string

	State State
}

// NewNode creates a graph node for a declared resource.
func NewNode(name, kind string, order int) *Node {
	return &Node{
		Name:       name,
		Kind:       kind,
		Order:      order,
		Attributes: make(map[string]*expression.Expression),
		Outputs:    make(map[string]bool),
		State:      StateDeclared,
	}
}

// AddDependency records a dependency, deduplicating repeats.
func (n *Node) AddDependency(name string) {
	for _, dep := range n.DependsOn {
		if dep == name {
			return
		}
	}
	n.DependsOn = append(n.DependsOn, name)
}

// AddDependent records a dependent, deduplicating repeats.
func (n *Node) AddDependent(name string) {
	for _, dep := range n.DependedOnBy {
		if dep == name {
			return
		}
	}
	n.DependedOnBy = append(n.DependedOnBy, name)
}
