package graph

import (
	"fmt"

	"github.com/cloudseed-io/seedctl/pkg/deployment"
	"github.com/cloudseed-io/seedctl/pkg/errors"
	"github.com/cloudseed-io/seedctl/pkg/expression"
)

// Build constructs the dependency graph for a deployment.
//
// Edges come from two places: attribute expressions referencing another
// resource's output (producer -> consumer), and the explicit depends_on
// list for ordering requirements with no data flow. Every reference must
// target an attribute its producer declares as an output; violations are
// rejected here so an unresolved reference at apply time always indicates
// an engine bug rather than a bad declaration.
func Build(dep *deployment.Deployment) (*Graph, error) {
	g := NewGraph(dep.Name)

	for i, res := range dep.Resources {
		node := NewNode(res.Name, res.Kind, i)
		for _, out := range res.Outputs {
			node.Outputs[out] = true
		}
		for attr, raw := range res.Attributes {
			expr, err := expression.Parse(raw)
			if err != nil {
				return nil, errors.ValidationError(
					fmt.Sprintf("resource %q attribute %q: %v", res.Name, attr, err), nil)
			}
			node.Attributes[attr] = expr
		}
		if err := g.AddNode(node); err != nil {
			return nil, errors.ValidationError(err.Error(), nil)
		}
	}

	for _, res := range dep.Resources {
		node := g.GetNode(res.Name)

		for attr, expr := range node.Attributes {
			for _, ref := range expr.ResourceReferences() {
				if err := checkReference(g, res.Name, attr, ref); err != nil {
					return nil, err
				}
				if err := g.AddEdge(res.Name, ref.Resource); err != nil {
					return nil, errors.ValidationError(err.Error(), nil)
				}
			}
		}

		for _, depName := range res.DependsOn {
			if g.GetNode(depName) == nil {
				return nil, errors.ValidationError(
					fmt.Sprintf("resource %q depends on undeclared resource %q", res.Name, depName),
					map[string]interface{}{"resource": res.Name, "dependency": depName})
			}
			if depName == res.Name {
				return nil, errors.CycleError([]string{res.Name})
			}
			if err := g.AddEdge(res.Name, depName); err != nil {
				return nil, errors.ValidationError(err.Error(), nil)
			}
		}
	}

	// Deployment outputs reference resource outputs too, and collection
	// fails closed, so a bad reference must be rejected here rather than
	// surface after every resource has applied.
	for name, raw := range dep.Outputs {
		expr, err := expression.Parse(raw)
		if err != nil {
			return nil, errors.ValidationError(
				fmt.Sprintf("deployment output %q: %v", name, err), nil)
		}
		for _, ref := range expr.ResourceReferences() {
			if err := checkOutputReference(g, name, ref); err != nil {
				return nil, err
			}
		}
	}

	if err := g.CheckAcyclic(); err != nil {
		return nil, err
	}

	return g, nil
}

func checkOutputReference(g *Graph, output string, ref expression.ResourceRef) error {
	producer := g.GetNode(ref.Resource)
	if producer == nil {
		return errors.UnresolvedReferenceError(ref.String(),
			fmt.Sprintf("referenced by deployment output %q but no such resource is declared", output))
	}

	if ref.Attribute == "" {
		return errors.UnresolvedReferenceError(ref.String(),
			fmt.Sprintf("reference in deployment output %q names no attribute", output))
	}

	if !producer.Outputs[ref.Attribute] {
		return errors.UnresolvedReferenceError(ref.String(),
			fmt.Sprintf("%q does not declare %q as an output", ref.Resource, ref.Attribute))
	}

	return nil
}

func checkReference(g *Graph, consumer, attr string, ref expression.ResourceRef) error {
	if ref.Resource == consumer {
		return errors.CycleError([]string{consumer})
	}

	producer := g.GetNode(ref.Resource)
	if producer == nil {
		return errors.UnresolvedReferenceError(ref.String(),
			fmt.Sprintf("referenced by %q attribute %q but no such resource is declared", consumer, attr))
	}

	if ref.Attribute == "" {
		return errors.UnresolvedReferenceError(ref.String(),
			fmt.Sprintf("reference in %q attribute %q names no attribute", consumer, attr))
	}

	if !producer.Outputs[ref.Attribute] {
		return errors.UnresolvedReferenceError(ref.String(),
			fmt.Sprintf("%q does not declare %q as an output", ref.Resource, ref.Attribute))
	}

	return nil
}
