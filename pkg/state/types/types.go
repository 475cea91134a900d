// Package types defines the run record format persisted after each
// provisioning run.
package types

import "time"

// RunStatus summarizes how a run ended.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusApplied   RunStatus = "applied"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// ResourceStatus is the terminal per-resource outcome.
type ResourceStatus string

const (
	ResourceStatusApplied ResourceStatus = "applied"
	ResourceStatusFailed  ResourceStatus = "failed"
	ResourceStatusSkipped ResourceStatus = "skipped"
)

// RunRecord is the persisted outcome of one run.
type RunRecord struct {
	// ID uniquely identifies the run.
	ID string `json:"id"`

	// Deployment is the deployment name the run applied.
	Deployment string `json:"deployment"`

	// IdentifierSuffix is the naming suffix drawn for this run.
	IdentifierSuffix string `json:"identifier_suffix"`

	Status     RunStatus `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`

	// Resources maps resource name to its outcome. Secret-derived
	// values are never written here.
	Resources map[string]*ResourceRecord `json:"resources"`

	// Outputs are the deployment-level outputs, present only when the
	// run fully applied.
	Outputs map[string]interface{} `json:"outputs,omitempty"`
}

// RunRef is a lightweight listing entry for a stored run.
type RunRef struct {
	ID         string    `json:"id"`
	Deployment string    `json:"deployment"`
	Status     RunStatus `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// ResourceRecord is one resource's outcome within a run.
type ResourceRecord struct {
	Name   string         `json:"name"`
	Kind   string         `json:"kind"`
	Status ResourceStatus `json:"status"`

	// Outputs are the driver-produced attributes, recorded for applied
	// resources only.
	Outputs map[string]interface{} `json:"outputs,omitempty"`

	// Error describes the failure or the failed dependency for skips.
	Error string `json:"error,omitempty"`

	// Attempts counts driver Apply calls, including retries.
	Attempts int `json:"attempts,omitempty"`

	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Counts tallies resources by terminal status.
func (r *RunRecord) Counts() (applied, failed, skipped int) {
	for _, res := range r.Resources {
		switch res.Status {
		case ResourceStatusApplied:
			applied++
		case ResourceStatusFailed:
			failed++
		case ResourceStatusSkipped:
			skipped++
		}
	}
	return
}

// FullyApplied reports whether every resource reached applied.
func (r *RunRecord) FullyApplied() bool {
	_, failed, skipped := r.Counts()
	return failed == 0 && skipped == 0
}
