package deployment

import (
	"fmt"

	"github.com/cloudseed-io/seedctl/pkg/errors"
	"github.com/cloudseed-io/seedctl/pkg/expression"
)

// Validate checks a deployment's structure before graph construction:
// unique non-empty names, non-empty kinds, parseable attribute and output
// expressions, and explicit dependencies naming declared resources.
// Reference targets (output flags, cycles) are the graph builder's job.
func Validate(dep *Deployment) error {
	if dep.Name == "" {
		return errors.ValidationError("deployment name is required", nil)
	}

	if len(dep.Resources) == 0 {
		return errors.ValidationError("deployment declares no resources", map[string]interface{}{
			"deployment": dep.Name,
		})
	}

	seen := make(map[string]bool)
	for _, r := range dep.Resources {
		if r.Name == "" {
			return errors.ValidationError("resource with empty logical name", map[string]interface{}{
				"kind": r.Kind,
			})
		}
		if r.Kind == "" {
			return errors.ValidationError(fmt.Sprintf("resource %q has no kind", r.Name), map[string]interface{}{
				"resource": r.Name,
			})
		}
		if seen[r.Name] {
			return errors.ValidationError(fmt.Sprintf("duplicate resource name %q", r.Name), map[string]interface{}{
				"resource": r.Name,
			})
		}
		seen[r.Name] = true

		for attr, raw := range r.Attributes {
			if _, err := expression.Parse(raw); err != nil {
				return errors.ValidationError(
					fmt.Sprintf("resource %q attribute %q: %v", r.Name, attr, err),
					map[string]interface{}{
						"resource":  r.Name,
						"attribute": attr,
					})
			}
		}
	}

	for _, r := range dep.Resources {
		for _, depName := range r.DependsOn {
			if !seen[depName] {
				return errors.ValidationError(
					fmt.Sprintf("resource %q depends on undeclared resource %q", r.Name, depName),
					map[string]interface{}{
						"resource":   r.Name,
						"dependency": depName,
					})
			}
		}
	}

	for name, raw := range dep.Outputs {
		if _, err := expression.Parse(raw); err != nil {
			return errors.ValidationError(
				fmt.Sprintf("output %q: %v", name, err),
				map[string]interface{}{
					"output": name,
				})
		}
	}

	return nil
}
