// Package deployment defines the declared-resource input format and its
// loaders.
package deployment

// Resource is one declared unit of infrastructure.
type Resource struct {
	// Name is the logical name, unique within the deployment.
	Name string `yaml:"name"`

	// Kind selects the driver (e.g. "storage/account", "compute/function").
	Kind string `yaml:"kind"`

	// Attributes map attribute names to expressions. Expressions may embed
	// the identifier suffix, variables, secrets, and other resources'
	// outputs; see the expression package for syntax.
	Attributes map[string]string `yaml:"attributes"`

	// DependsOn lists logical names this resource must be applied after,
	// for ordering requirements with no data flow.
	DependsOn []string `yaml:"depends_on"`

	// Outputs names the driver-produced attributes other resources may
	// reference. A reference to anything not listed here is rejected at
	// graph build.
	Outputs []string `yaml:"outputs"`
}

// DeclaresOutput reports whether name is a declared output attribute.
func (r Resource) DeclaresOutput(name string) bool {
	for _, out := range r.Outputs {
		if out == name {
			return true
		}
	}
	return false
}

// Deployment is a complete declared desired state.
type Deployment struct {
	// Name identifies the deployment; run records are stored under it.
	Name string `yaml:"name"`

	// Variables are defaults, overridable per run.
	Variables map[string]string `yaml:"variables"`

	// Resources in declaration order. Order matters: the scheduler
	// tie-breaks within a batch by declaration order.
	Resources []Resource `yaml:"resources"`

	// Outputs are the deployment's designated outputs, collected after a
	// successful run (name -> expression).
	Outputs map[string]string `yaml:"outputs"`
}

// Resource returns the declared resource with the given logical name.
func (d *Deployment) Resource(name string) (Resource, bool) {
	for _, r := range d.Resources {
		if r.Name == name {
			return r, true
		}
	}
	return Resource{}, false
}

// Kinds returns the set of distinct resource kinds in declaration order.
func (d *Deployment) Kinds() []string {
	seen := make(map[string]bool)
	var kinds []string
	for _, r := range d.Resources {
		if !seen[r.Kind] {
			seen[r.Kind] = true
			kinds = append(kinds, r.Kind)
		}
	}
	return kinds
}
