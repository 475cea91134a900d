// Package engine orchestrates provisioning runs: it loads declarations,
// builds the dependency graph, schedules batches, drives the executor,
// and persists the run record.
package engine

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cloudseed-io/seedctl/internal/logging"
	"github.com/cloudseed-io/seedctl/pkg/deployment"
	"github.com/cloudseed-io/seedctl/pkg/driver"
	"github.com/cloudseed-io/seedctl/pkg/engine/executor"
	"github.com/cloudseed-io/seedctl/pkg/engine/scheduler"
	"github.com/cloudseed-io/seedctl/pkg/errors"
	"github.com/cloudseed-io/seedctl/pkg/expression"
	"github.com/cloudseed-io/seedctl/pkg/graph"
	"github.com/cloudseed-io/seedctl/pkg/identifier"
	"github.com/cloudseed-io/seedctl/pkg/secrets"
	"github.com/cloudseed-io/seedctl/pkg/state"
	"github.com/cloudseed-io/seedctl/pkg/state/types"
)

// Engine drives provisioning runs.
type Engine struct {
	stateManager state.Manager
	registry     *driver.Registry
	secrets      *secrets.Manager
}

// New creates an engine.
func New(stateManager state.Manager, registry *driver.Registry, secretManager *secrets.Manager) *Engine {
	if secretManager == nil {
		secretManager = secrets.NewManager()
	}
	return &Engine{
		stateManager: stateManager,
		registry:     registry,
		secrets:      secretManager,
	}
}

// RunOptions configures one run.
type RunOptions struct {
	// Deployment is the declared desired state to apply.
	Deployment *deployment.Deployment

	// Variables override the deployment's declared variable defaults.
	Variables map[string]string

	// Seed, when set, makes identifier suffixes reproducible.
	Seed *int64

	// Parallelism caps concurrent applies within a batch.
	Parallelism int

	// DryRun resolves and schedules everything but tells drivers not to
	// mutate.
	DryRun bool

	// Who names the lock holder, typically user@host.
	Who string

	// Output receives the progress summary. Nil disables it.
	Output io.Writer
}

// RunResult is the outcome of a run.
type RunResult struct {
	Record    *types.RunRecord
	Execution *executor.Result
	Batches   [][]*graph.Node
	Success   bool
	Duration  time.Duration
}

// Run applies the deployment. A nil error with Success false means the
// run started but some resources failed or were skipped; a non-nil
// error means the run was rejected before any resource was attempted.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	startTime := time.Now()

	if opts.Deployment == nil {
		return nil, errors.New(errors.ErrCodeValidation, "no deployment provided")
	}
	dep := opts.Deployment

	g, err := graph.Build(dep)
	if err != nil {
		return nil, err
	}

	// Every kind needs a driver before anything is touched
	if err := e.validateKinds(dep); err != nil {
		return nil, err
	}

	batches, err := scheduler.Schedule(g)
	if err != nil {
		return nil, err
	}

	pool, err := e.newPool(opts.Seed)
	if err != nil {
		return nil, err
	}

	lock, err := e.stateManager.Lock(ctx, dep.Name, opts.Who, "apply")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeLocked, fmt.Sprintf("deployment %q is locked", dep.Name), err)
	}
	defer func() {
		if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
			logging.Warn("failed to release deployment lock", "deployment", dep.Name, "error", err.Error())
		}
	}()

	evalCtx := expression.NewEvalContext()
	evalCtx.IdentifierSuffix = pool.Suffix()
	evalCtx.Secrets = e.secrets.Resolver(ctx)
	for k, v := range dep.Variables {
		evalCtx.Variables[k] = v
	}
	for k, v := range opts.Variables {
		evalCtx.Variables[k] = v
	}

	logging.Info("starting run",
		"deployment", dep.Name,
		"resources", len(g.Nodes),
		"batches", len(batches),
		"suffix", pool.Suffix(),
		"dry_run", opts.DryRun)

	execOpts := executor.DefaultOptions()
	if opts.Parallelism > 0 {
		execOpts.Parallelism = opts.Parallelism
	}
	execOpts.DryRun = opts.DryRun

	exec := executor.New(e.registry, execOpts)
	execResult, err := exec.Execute(ctx, batches, evalCtx)
	if err != nil {
		return nil, err
	}

	record, collectErr := e.buildRecord(dep, pool.Suffix(), execResult, evalCtx, startTime)
	if collectErr != nil {
		execResult.Success = false
		execResult.Errors = append(execResult.Errors, collectErr)
		logging.Error("run failed during output collection",
			"deployment", dep.Name, "error", collectErr.Error())
	}

	if !opts.DryRun {
		if err := e.stateManager.SaveRun(ctx, record); err != nil {
			execResult.Errors = append(execResult.Errors,
				errors.BackendError(e.stateManager.Backend().Type(), "save run record", err))
		}
	}

	if opts.Output != nil {
		e.printSummary(opts.Output, record, execResult)
	}

	return &RunResult{
		Record:    record,
		Execution: execResult,
		Batches:   batches,
		Success:   execResult.Success,
		Duration:  time.Since(startTime),
	}, nil
}

func (e *Engine) newPool(seed *int64) (*identifier.Pool, error) {
	if seed != nil {
		return identifier.NewSeededPool(*seed), nil
	}
	return identifier.NewPool()
}

func (e *Engine) validateKinds(dep *deployment.Deployment) error {
	usage := make(map[string][]string)
	for _, r := range dep.Resources {
		usage[r.Kind] = append(usage[r.Kind], r.Name)
	}
	return e.registry.Validate(usage)
}

func (e *Engine) buildRecord(dep *deployment.Deployment, suffix string, execResult *executor.Result, evalCtx *expression.EvalContext, startTime time.Time) (*types.RunRecord, error) {
	record := &types.RunRecord{
		ID:               uuid.New().String(),
		Deployment:       dep.Name,
		IdentifierSuffix: suffix,
		StartedAt:        startTime,
		FinishedAt:       time.Now(),
		Resources:        make(map[string]*types.ResourceRecord, len(execResult.NodeResults)),
	}

	for name, nr := range execResult.NodeResults {
		res := &types.ResourceRecord{
			Name:       name,
			Kind:       nr.Kind,
			Attempts:   nr.Attempts,
			StartedAt:  nr.StartedAt,
			FinishedAt: nr.FinishedAt,
		}
		switch nr.State {
		case graph.StateApplied:
			res.Status = types.ResourceStatusApplied
			res.Outputs = nr.Outputs
		case graph.StateSkipped:
			res.Status = types.ResourceStatusSkipped
			res.Error = nr.Error.Error()
		default:
			res.Status = types.ResourceStatusFailed
			if nr.Error != nil {
				res.Error = nr.Error.Error()
			}
		}
		record.Resources[name] = res
	}

	switch {
	case execResult.Cancelled:
		record.Status = types.RunStatusCancelled
	case execResult.Success:
		record.Status = types.RunStatusApplied
	case execResult.Applied > 0:
		record.Status = types.RunStatusPartial
	default:
		record.Status = types.RunStatusFailed
	}

	// Deployment outputs are only meaningful when everything applied.
	// Collection fails closed: one unresolvable output fails the run
	// rather than reporting a partial outputs map as applied.
	var collectErr error
	if execResult.Success && len(dep.Outputs) > 0 {
		record.Outputs, collectErr = e.collectOutputs(dep, evalCtx)
		if collectErr != nil {
			record.Outputs = nil
			record.Status = types.RunStatusFailed
		}
	}

	return record, collectErr
}

// collectOutputs evaluates the deployment's declared outputs against the
// final resource values. References were validated at graph build, so a
// failure here means a producer never delivered a declared output; the
// whole map is withheld rather than returned incomplete.
func (e *Engine) collectOutputs(dep *deployment.Deployment, evalCtx *expression.EvalContext) (map[string]interface{}, error) {
	evaluator := expression.NewEvaluator()
	outputs := make(map[string]interface{}, len(dep.Outputs))
	for name, raw := range dep.Outputs {
		expr, err := expression.Parse(raw)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeValidation,
				fmt.Sprintf("malformed deployment output %q", name), err)
		}
		value, err := evaluator.Evaluate(expr, evalCtx)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeUnresolved,
				fmt.Sprintf("failed to evaluate deployment output %q", name), err)
		}
		outputs[name] = value
	}
	return outputs, nil
}

func (e *Engine) printSummary(w io.Writer, record *types.RunRecord, execResult *executor.Result) {
	applied, failed, skipped := record.Counts()
	fmt.Fprintf(w, "\nRun %s (%s)\n", record.ID, record.Status)
	fmt.Fprintf(w, "  Deployment: %s\n", record.Deployment)
	fmt.Fprintf(w, "  Suffix:     %s\n", record.IdentifierSuffix)
	fmt.Fprintf(w, "  Applied: %d, Failed: %d, Skipped: %d\n", applied, failed, skipped)

	if failed > 0 || skipped > 0 {
		fmt.Fprintf(w, "\nProblems:\n")
		for _, name := range sortedResourceNames(record) {
			res := record.Resources[name]
			if res.Status != types.ResourceStatusApplied {
				fmt.Fprintf(w, "  %s %s: %s\n", statusSymbol(res.Status), name, res.Error)
			}
		}
	}

	if len(record.Outputs) > 0 {
		fmt.Fprintf(w, "\nOutputs:\n")
		for name, value := range record.Outputs {
			fmt.Fprintf(w, "  %s = %v\n", name, value)
		}
	}

	fmt.Fprintf(w, "\nDuration: %s\n", execResult.Duration.Round(time.Millisecond))
}

func statusSymbol(s types.ResourceStatus) string {
	switch s {
	case types.ResourceStatusFailed:
		return "✗"
	case types.ResourceStatusSkipped:
		return "-"
	default:
		return "✓"
	}
}

func sortedResourceNames(record *types.RunRecord) []string {
	names := make([]string, 0, len(record.Resources))
	for name := range record.Resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
