// Package executor applies scheduled batches of resources. All nodes in
// a batch run concurrently; the next batch starts only after every node
// in the current batch has finished. A failed resource never stops
// independent branches, but everything downstream of it is skipped.
package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudseed-io/seedctl/internal/logging"
	"github.com/cloudseed-io/seedctl/pkg/driver"
	"github.com/cloudseed-io/seedctl/pkg/errors"
	"github.com/cloudseed-io/seedctl/pkg/expression"
	"github.com/cloudseed-io/seedctl/pkg/graph"
)

// Options configures the executor.
type Options struct {
	// Parallelism caps concurrent driver applies within a batch.
	Parallelism int

	// DryRun propagates to drivers, which report without mutating.
	DryRun bool

	// Retry bounds the per-resource retry loop.
	Retry driver.RetryPolicy
}

// DefaultOptions returns the standard executor configuration.
func DefaultOptions() Options {
	return Options{
		Parallelism: 10,
		Retry:       driver.DefaultRetryPolicy,
	}
}

// NodeResult is the outcome of one resource.
type NodeResult struct {
	Resource string
	Kind     string
	State    graph.State
	Outputs  driver.Outputs
	Error    error
	Attempts int
	Duration time.Duration

	StartedAt  time.Time
	FinishedAt time.Time
}

// Result aggregates a full execution.
type Result struct {
	Success   bool
	Cancelled bool
	Applied   int
	Failed    int
	Skipped   int
	Duration  time.Duration
	Errors    []error

	NodeResults map[string]*NodeResult
}

// Executor applies batches through registered drivers.
type Executor struct {
	registry *driver.Registry
	options  Options
}

// New creates an executor.
func New(registry *driver.Registry, options Options) *Executor {
	if options.Parallelism <= 0 {
		options.Parallelism = 10
	}
	return &Executor{
		registry: registry,
		options:  options,
	}
}

// Execute applies the batches in order, resolving each node's attribute
// expressions against evalCtx immediately before its driver call.
// Outputs of applied resources are folded into evalCtx between batches,
// so dependents always see their producers' real values.
func (e *Executor) Execute(ctx context.Context, batches [][]*graph.Node, evalCtx *expression.EvalContext) (*Result, error) {
	startTime := time.Now()

	result := &Result{
		Success:     true,
		NodeResults: make(map[string]*NodeResult),
	}

	evaluator := expression.NewEvaluator()

	// failedAt maps a resource that failed or was skipped to the
	// resource whose failure caused it.
	failedAt := make(map[string]string)

	for _, batch := range batches {
		if ctx.Err() != nil {
			e.cancelRemaining(result, batch, failedAt)
			continue
		}

		type job struct {
			node *graph.Node
			req  driver.ApplyRequest
			drv  driver.Driver
		}
		var jobs []job

		// Resolve skips, lookups and expressions serially so goroutines
		// only touch their own request.
		for _, node := range batch {
			if cause, skipped := e.skipCause(node, failedAt); skipped {
				node.State = graph.StateSkipped
				err := errors.CascadeSkippedError(node.Name, cause)
				result.NodeResults[node.Name] = &NodeResult{
					Resource: node.Name,
					Kind:     node.Kind,
					State:    graph.StateSkipped,
					Error:    err,
				}
				result.Skipped++
				result.Success = false
				failedAt[node.Name] = cause
				logging.Warn("skipping resource", "resource", node.Name, "failed_dependency", cause)
				continue
			}

			drv, err := e.registry.Get(node.Kind, node.Name)
			if err != nil {
				e.recordFailure(result, node, err, 0, time.Time{})
				failedAt[node.Name] = node.Name
				continue
			}

			attrs, err := e.resolveAttributes(evaluator, node, evalCtx)
			if err != nil {
				e.recordFailure(result, node, err, 0, time.Time{})
				failedAt[node.Name] = node.Name
				continue
			}

			jobs = append(jobs, job{
				node: node,
				drv:  drv,
				req: driver.ApplyRequest{
					Resource:   node.Name,
					Kind:       node.Kind,
					Attributes: attrs,
					Outputs:    outputNames(node),
					DryRun:     e.options.DryRun,
				},
			})
		}

		var mu sync.Mutex
		sem := make(chan struct{}, e.options.Parallelism)
		var wg sync.WaitGroup

		for _, j := range jobs {
			j.node.State = graph.StateApplying

			wg.Add(1)
			sem <- struct{}{}

			go func(j job) {
				defer wg.Done()
				defer func() { <-sem }()

				started := time.Now()
				counted := &countingDriver{Driver: j.drv}
				outputs, err := driver.ApplyWithRetry(ctx, counted, j.req, e.options.Retry)
				finished := time.Now()

				mu.Lock()
				defer mu.Unlock()

				if err != nil {
					j.node.State = graph.StateFailed
					result.NodeResults[j.node.Name] = &NodeResult{
						Resource:   j.node.Name,
						Kind:       j.node.Kind,
						State:      graph.StateFailed,
						Error:      err,
						Attempts:   counted.attempts(),
						Duration:   finished.Sub(started),
						StartedAt:  started,
						FinishedAt: finished,
					}
					result.Failed++
					result.Success = false
					result.Errors = append(result.Errors, err)
					failedAt[j.node.Name] = j.node.Name
					logging.Error("resource apply failed",
						"resource", j.node.Name, "kind", j.node.Kind, "error", err.Error())
					return
				}

				j.node.State = graph.StateApplied
				result.NodeResults[j.node.Name] = &NodeResult{
					Resource:   j.node.Name,
					Kind:       j.node.Kind,
					State:      graph.StateApplied,
					Outputs:    outputs,
					Attempts:   counted.attempts(),
					Duration:   finished.Sub(started),
					StartedAt:  started,
					FinishedAt: finished,
				}
				result.Applied++
				logging.Info("resource applied",
					"resource", j.node.Name, "kind", j.node.Kind, "duration", finished.Sub(started).String())
			}(j)
		}

		// Batch barrier
		wg.Wait()

		// Fold applied outputs into the evaluation context for the next
		// batch's expressions.
		for _, j := range jobs {
			if j.node.State != graph.StateApplied {
				continue
			}
			nr := result.NodeResults[j.node.Name]
			resolved := make(map[string]interface{}, len(nr.Outputs))
			for k, v := range nr.Outputs {
				resolved[k] = v
			}
			evalCtx.Resources[j.node.Name] = resolved
		}
	}

	if ctx.Err() != nil {
		result.Cancelled = true
		result.Success = false
	}

	result.Duration = time.Since(startTime)
	return result, nil
}

// skipCause returns the root failed dependency when any of the node's
// dependencies failed or was itself skipped.
func (e *Executor) skipCause(node *graph.Node, failedAt map[string]string) (string, bool) {
	for _, dep := range node.DependsOn {
		if cause, ok := failedAt[dep]; ok {
			return cause, true
		}
	}
	return "", false
}

func (e *Executor) resolveAttributes(evaluator *expression.Evaluator, node *graph.Node, evalCtx *expression.EvalContext) (map[string]interface{}, error) {
	attrs := make(map[string]interface{}, len(node.Attributes))
	for name, expr := range node.Attributes {
		value, err := evaluator.Evaluate(expr, evalCtx)
		if err != nil {
			return nil, err
		}
		attrs[name] = value
	}
	return attrs, nil
}

func (e *Executor) recordFailure(result *Result, node *graph.Node, err error, attempts int, started time.Time) {
	node.State = graph.StateFailed
	result.NodeResults[node.Name] = &NodeResult{
		Resource:  node.Name,
		Kind:      node.Kind,
		State:     graph.StateFailed,
		Error:     err,
		Attempts:  attempts,
		StartedAt: started,
	}
	result.Failed++
	result.Success = false
	result.Errors = append(result.Errors, err)
	logging.Error("resource apply failed", "resource", node.Name, "kind", node.Kind, "error", err.Error())
}

func (e *Executor) cancelRemaining(result *Result, batch []*graph.Node, failedAt map[string]string) {
	for _, node := range batch {
		if node.State.Terminal() {
			continue
		}
		node.State = graph.StateSkipped
		err := errors.New(errors.ErrCodeCancelled, "run cancelled before resource was attempted").
			WithDetail("resource", node.Name)
		result.NodeResults[node.Name] = &NodeResult{
			Resource: node.Name,
			Kind:     node.Kind,
			State:    graph.StateSkipped,
			Error:    err,
		}
		result.Skipped++
		result.Success = false
		failedAt[node.Name] = node.Name
	}
}

func outputNames(node *graph.Node) []string {
	names := make([]string, 0, len(node.Outputs))
	for name := range node.Outputs {
		names = append(names, name)
	}
	return names
}

// countingDriver counts Apply calls so retry attempts land in the record.
type countingDriver struct {
	driver.Driver
	count atomic.Int32
}

func (c *countingDriver) Apply(ctx context.Context, req driver.ApplyRequest) (driver.Outputs, error) {
	c.count.Add(1)
	return c.Driver.Apply(ctx, req)
}

func (c *countingDriver) attempts() int {
	return int(c.count.Load())
}
