// Package static provides an in-memory driver that converges resources
// without touching any external system. It backs dry runs and tests, and
// demonstrates the full driver contract including delegated credential
// outputs.
package static

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cloudseed-io/seedctl/pkg/credentials"
	"github.com/cloudseed-io/seedctl/pkg/driver"
	"github.com/cloudseed-io/seedctl/pkg/errors"
)

// Clock abstracts time for deterministic tests.
type Clock func() time.Time

// Driver stores applied resources in memory, keyed by resource name.
// Re-applying an identical request is a no-op that returns the stored
// outputs.
type Driver struct {
	kind  string
	clock Clock

	mu        sync.Mutex
	resources map[string]record
}

type record struct {
	attributes map[string]interface{}
	outputs    driver.Outputs
	applyCount int
}

// New returns a static driver for the given kind.
func New(kind string) *Driver {
	return &Driver{
		kind:      kind,
		clock:     time.Now,
		resources: make(map[string]record),
	}
}

// NewWithClock returns a static driver whose credential windows are
// anchored to the given clock.
func NewWithClock(kind string, clock Clock) *Driver {
	d := New(kind)
	d.clock = clock
	return d
}

func (d *Driver) Kind() string { return d.kind }

// Apply converges the resource. Declared outputs echo the matching
// attribute when one exists, otherwise a synthetic value derived from
// the resource name. When the resource carries a token_validity
// attribute, a scoped access window is computed at apply time and
// exposed through the token, token_start and token_expiry outputs.
func (d *Driver) Apply(ctx context.Context, req driver.ApplyRequest) (driver.Outputs, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeCancelled, "apply cancelled", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	prev, exists := d.resources[req.Resource]
	if exists && attributesEqual(prev.attributes, req.Attributes) {
		prev.applyCount++
		d.resources[req.Resource] = prev
		return prev.outputs, nil
	}

	outputs := make(driver.Outputs, len(req.Outputs))
	for _, name := range req.Outputs {
		if v, ok := req.Attributes[name]; ok {
			outputs[name] = v
			continue
		}
		outputs[name] = fmt.Sprintf("%s-%s", req.Resource, name)
	}

	if raw, ok := req.Attributes["token_validity"]; ok {
		validity, err := parseValidity(raw)
		if err != nil {
			return nil, errors.DriverError(d.kind, req.Resource, err, false)
		}
		window, err := credentials.NewWindow(d.clock(), validity)
		if err != nil {
			return nil, errors.DriverError(d.kind, req.Resource, err, false)
		}
		outputs["token"] = window.QueryString()
		outputs["token_start"] = window.FormatStart()
		outputs["token_expiry"] = window.FormatExpiry()
	}

	if req.DryRun {
		return outputs, nil
	}

	d.resources[req.Resource] = record{
		attributes: cloneAttributes(req.Attributes),
		outputs:    outputs,
		applyCount: 1,
	}
	return outputs, nil
}

func (d *Driver) Read(ctx context.Context, resource string) (driver.Outputs, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.resources[resource]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, fmt.Sprintf("resource %q does not exist", resource))
	}
	return rec.outputs, nil
}

func (d *Driver) Delete(ctx context.Context, resource string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.resources, resource)
	return nil
}

// ApplyCount returns how many times the resource has been applied,
// counting converged no-ops.
func (d *Driver) ApplyCount(resource string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resources[resource].applyCount
}

func parseValidity(raw interface{}) (time.Duration, error) {
	switch v := raw.(type) {
	case string:
		dur, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid token_validity %q: %w", v, err)
		}
		return dur, nil
	case time.Duration:
		return v, nil
	default:
		return 0, fmt.Errorf("token_validity must be a duration string, got %T", raw)
	}
}

func attributesEqual(a, b map[string]interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || fmt.Sprint(av) != fmt.Sprint(bv) {
			return false
		}
	}
	return true
}

func cloneAttributes(attrs map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
