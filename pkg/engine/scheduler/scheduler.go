// Package scheduler arranges a resource graph into batches for parallel
// application. All nodes in a batch are mutually independent, and every
// dependency of a node appears in a strictly earlier batch.
package scheduler

import (
	"github.com/cloudseed-io/seedctl/pkg/errors"
	"github.com/cloudseed-io/seedctl/pkg/graph"
)

// Schedule computes the batch layering of g. Within a batch, nodes are
// ordered by their declaration position so runs with the same input
// produce the same plan.
func Schedule(g *graph.Graph) ([][]*graph.Node, error) {
	if err := g.CheckAcyclic(); err != nil {
		return nil, err
	}

	remaining := make(map[string]int, len(g.Nodes))
	for name, node := range g.Nodes {
		remaining[name] = len(node.DependsOn)
	}

	placed := make(map[string]bool, len(g.Nodes))
	var batches [][]*graph.Node

	for len(placed) < len(g.Nodes) {
		var batch []*graph.Node
		for _, node := range g.Sorted() {
			if !placed[node.Name] && remaining[node.Name] == 0 {
				batch = append(batch, node)
			}
		}
		if len(batch) == 0 {
			// CheckAcyclic should have caught this
			return nil, errors.New(errors.ErrCodeCycle, "no schedulable resources remain")
		}
		for _, node := range batch {
			node.State = graph.StatePending
			placed[node.Name] = true
			for _, dependent := range node.DependedOnBy {
				remaining[dependent]--
			}
		}
		batches = append(batches, batch)
	}

	return batches, nil
}

// Depth returns the number of batches required to apply g, or 0 when the
// graph is empty or cyclic.
func Depth(g *graph.Graph) int {
	batches, err := Schedule(g)
	if err != nil {
		return 0
	}
	return len(batches)
}
