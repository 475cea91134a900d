package expression

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudseed-io/seedctl/pkg/errors"
)

// SecretResolver resolves a secret reference at apply time. Implementations
// are expected to be bound to a run-scoped context by the caller.
type SecretResolver func(key string) (string, error)

// EvalContext provides values for expression evaluation.
//
// Resources holds output tables for producers that have reached the applied
// state only. Referencing a resource absent from the table is an
// unresolved-reference error, never a silent placeholder: the executor
// guarantees producers land in the table strictly before any dependent
// evaluates.
type EvalContext struct {
	IdentifierSuffix string
	Variables        map[string]interface{}
	Secrets          SecretResolver
	Resources        map[string]map[string]interface{}
}

// NewEvalContext creates an empty evaluation context.
func NewEvalContext() *EvalContext {
	return &EvalContext{
		Variables: make(map[string]interface{}),
		Resources: make(map[string]map[string]interface{}),
	}
}

// Evaluator evaluates parsed expressions.
type Evaluator struct {
	functions map[string]PipeFuncImpl
}

// PipeFuncImpl is the implementation of a pipe function.
type PipeFuncImpl func(value interface{}, args []string) (interface{}, error)

// NewEvaluator creates a new expression evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		functions: map[string]PipeFuncImpl{
			"lower": lowerFunc,
			"upper": upperFunc,
			"trim":  trimFunc,
			"trunc": truncFunc,
		},
	}
}

// Evaluate evaluates an expression in the given context.
func (e *Evaluator) Evaluate(expr *Expression, ctx *EvalContext) (interface{}, error) {
	if len(expr.Segments) == 0 {
		return "", nil
	}

	// A single reference segment returns the actual value (not stringified)
	if len(expr.Segments) == 1 {
		if ref, ok := expr.Segments[0].(ReferenceSegment); ok {
			return e.evaluateReference(ref, ctx)
		}
		if lit, ok := expr.Segments[0].(LiteralSegment); ok {
			return lit.Value, nil
		}
	}

	// Multiple segments - interpolate as string. A missing value anywhere
	// fails the whole expression; there is no empty-string substitution.
	var result strings.Builder
	for _, seg := range expr.Segments {
		switch s := seg.(type) {
		case LiteralSegment:
			result.WriteString(s.Value)
		case ReferenceSegment:
			val, err := e.evaluateReference(s, ctx)
			if err != nil {
				return nil, err
			}
			result.WriteString(fmt.Sprintf("%v", val))
		}
	}

	return result.String(), nil
}

// EvaluateString evaluates an expression and returns a string result.
func (e *Evaluator) EvaluateString(expr *Expression, ctx *EvalContext) (string, error) {
	val, err := e.Evaluate(expr, ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%v", val), nil
}

func (e *Evaluator) evaluateReference(ref ReferenceSegment, ctx *EvalContext) (interface{}, error) {
	if len(ref.Path) == 0 {
		return nil, errors.UnresolvedReferenceError("<empty>", "empty reference path")
	}

	var value interface{}
	var err error

	switch ref.Path[0] {
	case "identifier":
		value, err = e.resolveIdentifier(ref.Path[1:], ctx)
	case "resources":
		value, err = e.resolveResource(ref.Path[1:], ctx)
	case "variables":
		value, err = e.resolveVariable(ref.Path[1:], ctx)
	case "secrets":
		value, err = e.resolveSecret(ref.Path[1:], ctx)
	default:
		return nil, errors.UnresolvedReferenceError(
			strings.Join(ref.Path, "."),
			fmt.Sprintf("unknown reference type %q", ref.Path[0]))
	}

	if err != nil {
		return nil, err
	}

	// Apply pipe functions
	for _, pf := range ref.Pipes {
		fn, ok := e.functions[pf.Name]
		if !ok {
			return nil, fmt.Errorf("unknown pipe function: %s", pf.Name)
		}
		value, err = fn(value, pf.Args)
		if err != nil {
			return nil, fmt.Errorf("pipe function %s failed: %w", pf.Name, err)
		}
	}

	return value, nil
}

func (e *Evaluator) resolveIdentifier(path []string, ctx *EvalContext) (interface{}, error) {
	if ctx.IdentifierSuffix == "" {
		return nil, errors.UnresolvedReferenceError("identifier.suffix", "no identifier pool in context")
	}
	if len(path) != 1 || path[0] != "suffix" {
		return nil, errors.UnresolvedReferenceError(
			"identifier."+strings.Join(path, "."), "only identifier.suffix is defined")
	}
	return ctx.IdentifierSuffix, nil
}

func (e *Evaluator) resolveResource(path []string, ctx *EvalContext) (interface{}, error) {
	if len(path) < 2 {
		return nil, errors.UnresolvedReferenceError(
			"resources."+strings.Join(path, "."), "need resource name and attribute")
	}

	name := path[0]
	attr := path[1]
	reference := fmt.Sprintf("resources.%s.%s", name, attr)

	outputs, ok := ctx.Resources[name]
	if !ok {
		return nil, errors.UnresolvedReferenceError(reference,
			fmt.Sprintf("resource %q has not been applied", name))
	}

	val, ok := outputs[attr]
	if !ok {
		return nil, errors.UnresolvedReferenceError(reference,
			fmt.Sprintf("resource %q produced no output %q", name, attr))
	}

	return val, nil
}

func (e *Evaluator) resolveVariable(path []string, ctx *EvalContext) (interface{}, error) {
	if len(path) < 1 {
		return nil, errors.UnresolvedReferenceError("variables", "need variable name")
	}

	name := path[0]
	val, ok := ctx.Variables[name]
	if !ok {
		return nil, errors.UnresolvedReferenceError("variables."+name,
			fmt.Sprintf("variable %q not defined", name))
	}

	return val, nil
}

func (e *Evaluator) resolveSecret(path []string, ctx *EvalContext) (interface{}, error) {
	if len(path) < 1 {
		return nil, errors.UnresolvedReferenceError("secrets", "need secret name")
	}

	// Dotted keys pass through whole, e.g. secrets.db.password -> "db.password"
	name := strings.Join(path, ".")
	if ctx.Secrets == nil {
		return nil, errors.UnresolvedReferenceError("secrets."+name, "no secret resolver in context")
	}

	val, err := ctx.Secrets(name)
	if err != nil {
		return nil, errors.SecretError(name, err)
	}

	return val, nil
}

func lowerFunc(value interface{}, _ []string) (interface{}, error) {
	return strings.ToLower(fmt.Sprintf("%v", value)), nil
}

func upperFunc(value interface{}, _ []string) (interface{}, error) {
	return strings.ToUpper(fmt.Sprintf("%v", value)), nil
}

func trimFunc(value interface{}, _ []string) (interface{}, error) {
	return strings.TrimSpace(fmt.Sprintf("%v", value)), nil
}

// truncFunc caps a string at n characters, for naming limits like the
// 24-character storage account cap.
func truncFunc(value interface{}, args []string) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("trunc requires a length argument")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return nil, fmt.Errorf("trunc length must be a non-negative integer, got %q", args[0])
	}
	s := fmt.Sprintf("%v", value)
	if len(s) > n {
		s = s[:n]
	}
	return s, nil
}
