// Package state persists run records and coordinates per-deployment
// locking across concurrent invocations.
package state

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/cloudseed-io/seedctl/pkg/state/backend"
	"github.com/cloudseed-io/seedctl/pkg/state/types"
)

// Manager provides high-level run-record operations.
type Manager interface {
	GetRun(ctx context.Context, deployment, runID string) (*types.RunRecord, error)
	SaveRun(ctx context.Context, record *types.RunRecord) error
	DeleteRun(ctx context.Context, deployment, runID string) error
	ListRuns(ctx context.Context, deployment string) ([]types.RunRef, error)

	// LatestRun returns the most recently started run for a deployment,
	// or backend.ErrNotFound when none exist.
	LatestRun(ctx context.Context, deployment string) (*types.RunRecord, error)

	// Lock serializes runs against the same deployment.
	Lock(ctx context.Context, deployment, who, operation string) (backend.Lock, error)

	Backend() backend.Backend
}

type manager struct {
	backend backend.Backend
}

// NewManager creates a state manager over the given backend.
func NewManager(b backend.Backend) Manager {
	return &manager{backend: b}
}

// NewManagerFromConfig creates a state manager from backend configuration.
func NewManagerFromConfig(config backend.Config) (Manager, error) {
	b, err := backend.Create(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend: %w", err)
	}
	return NewManager(b), nil
}

func (m *manager) Backend() backend.Backend {
	return m.backend
}

func (m *manager) GetRun(ctx context.Context, deployment, runID string) (*types.RunRecord, error) {
	return readJSON[types.RunRecord](ctx, m.backend, runPath(deployment, runID))
}

func (m *manager) SaveRun(ctx context.Context, record *types.RunRecord) error {
	return writeJSON(ctx, m.backend, runPath(record.Deployment, record.ID), record)
}

func (m *manager) DeleteRun(ctx context.Context, deployment, runID string) error {
	return m.backend.Delete(ctx, runPath(deployment, runID))
}

func (m *manager) ListRuns(ctx context.Context, deployment string) ([]types.RunRef, error) {
	prefix := path.Join("deployments", deployment, "runs") + "/"
	paths, err := m.backend.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var refs []types.RunRef
	for _, p := range paths {
		// Path format: deployments/<name>/runs/<id>.run.json
		base := path.Base(p)
		id, ok := strings.CutSuffix(base, ".run.json")
		if !ok || id == "" {
			continue
		}
		record, err := m.GetRun(ctx, deployment, id)
		if err != nil {
			continue // Skip records that can't be read
		}
		refs = append(refs, types.RunRef{
			ID:         record.ID,
			Deployment: record.Deployment,
			Status:     record.Status,
			StartedAt:  record.StartedAt,
			FinishedAt: record.FinishedAt,
		})
	}

	sort.Slice(refs, func(i, j int) bool {
		return refs[i].StartedAt.After(refs[j].StartedAt)
	})
	return refs, nil
}

func (m *manager) LatestRun(ctx context.Context, deployment string) (*types.RunRecord, error) {
	refs, err := m.ListRuns(ctx, deployment)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, backend.ErrNotFound
	}
	return m.GetRun(ctx, deployment, refs[0].ID)
}

func (m *manager) Lock(ctx context.Context, deployment, who, operation string) (backend.Lock, error) {
	lockPath := path.Join("deployments", deployment)
	return m.backend.Lock(ctx, lockPath, backend.LockInfo{
		Who:       who,
		Operation: operation,
	})
}

func runPath(deployment, runID string) string {
	return path.Join("deployments", deployment, "runs", runID+".run.json")
}

func readJSON[T any](ctx context.Context, b backend.Backend, p string) (*T, error) {
	reader, err := b.Read(ctx, p)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var result T
	if err := json.NewDecoder(reader).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}

	return &result, nil
}

func writeJSON(ctx context.Context, b backend.Backend, p string, data interface{}) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return b.Write(ctx, p, bytes.NewReader(content))
}
