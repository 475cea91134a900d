// Package driver defines the provisioning driver contract and the registry
// that maps resource kinds to their implementations.
package driver

import (
	"context"
	"sort"
	"sync"

	"github.com/cloudseed-io/seedctl/pkg/errors"
)

// ApplyRequest carries the fully resolved inputs for one resource.
type ApplyRequest struct {
	// Resource is the declared resource name.
	Resource string

	// Kind is the resource kind string, e.g. "storage/container".
	Kind string

	// Attributes holds the resolved attribute values. Every expression
	// has already been evaluated; drivers never see reference syntax.
	Attributes map[string]interface{}

	// Outputs lists the attribute names the resource declares as
	// consumable by dependents. The driver must populate each one.
	Outputs []string

	// DryRun indicates the driver should report what it would do
	// without mutating anything.
	DryRun bool
}

// Outputs is the attribute map a driver produces after convergence.
type Outputs map[string]interface{}

// Driver converges a resource kind toward its declared attributes.
// Apply must be idempotent: applying the same request twice yields the
// same outputs with no duplicate side effects.
type Driver interface {
	// Kind returns the resource kind this driver handles.
	Kind() string

	// Apply creates or converges the resource and returns its outputs.
	Apply(ctx context.Context, req ApplyRequest) (Outputs, error)

	// Read fetches the current outputs of an existing resource, or
	// errors.ErrCodeNotFound when it does not exist.
	Read(ctx context.Context, resource string) (Outputs, error)

	// Delete removes the resource. Deleting an absent resource is not
	// an error.
	Delete(ctx context.Context, resource string) error
}

// Registry resolves kind strings to drivers.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]Driver)}
}

// Register adds a driver for its kind, replacing any previous driver
// for the same kind.
func (r *Registry) Register(d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[d.Kind()] = d
}

// Get returns the driver for kind. The resource name is only used to
// build a useful error when the kind is unknown.
func (r *Registry) Get(kind, resource string) (Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[kind]
	if !ok {
		return nil, errors.UnknownKindError(kind, resource)
	}
	return d, nil
}

// Kinds returns the registered kind strings in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.drivers))
	for k := range r.drivers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Validate checks that every kind in kinds has a registered driver.
// It reports the first missing kind so a run can fail before any
// resource is touched.
func (r *Registry) Validate(kinds map[string][]string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sorted := make([]string, 0, len(kinds))
	for k := range kinds {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	for _, kind := range sorted {
		if _, ok := r.drivers[kind]; !ok {
			resources := kinds[kind]
			resource := ""
			if len(resources) > 0 {
				resource = resources[0]
			}
			return errors.UnknownKindError(kind, resource)
		}
	}
	return nil
}
