// Package expression parses and evaluates attribute expressions.
//
// An attribute value is a plain string with zero or more ${{ ... }}
// markers. Each marker holds a dotted reference path and an optional chain
// of pipe functions:
//
//	appdata${{ identifier.suffix }}
//	https://${{ resources.store.host }}/${{ resources.container.name | lower }}
//	${{ secrets.db_password }}
package expression

import (
	"fmt"
	"strings"
)

// Expression is a parsed attribute value.
type Expression struct {
	// Raw is the original source string, kept for error messages.
	Raw string

	Segments []Segment
}

// Segment is either a LiteralSegment or a ReferenceSegment.
type Segment interface {
	isSegment()
}

// LiteralSegment is a run of plain text.
type LiteralSegment struct {
	Value string
}

func (LiteralSegment) isSegment() {}

// ReferenceSegment is a single ${{ ... }} marker.
type ReferenceSegment struct {
	// Path is the dotted reference, split (e.g. ["resources", "store", "host"]).
	Path []string

	// Pipes are applied left to right after the reference resolves.
	Pipes []PipeCall
}

func (ReferenceSegment) isSegment() {}

// PipeCall is one function in a reference's pipe chain.
type PipeCall struct {
	Name string
	Args []string
}

const (
	markerOpen  = "${{"
	markerClose = "}}"
)

// Parse splits raw into literal and reference segments.
func Parse(raw string) (*Expression, error) {
	expr := &Expression{Raw: raw}

	rest := raw
	for {
		open := strings.Index(rest, markerOpen)
		if open < 0 {
			if rest != "" {
				expr.Segments = append(expr.Segments, LiteralSegment{Value: rest})
			}
			break
		}

		if open > 0 {
			expr.Segments = append(expr.Segments, LiteralSegment{Value: rest[:open]})
		}

		closing := strings.Index(rest[open:], markerClose)
		if closing < 0 {
			return nil, fmt.Errorf("unterminated ${{ in %q", raw)
		}

		inner := rest[open+len(markerOpen) : open+closing]
		ref, err := parseReference(inner)
		if err != nil {
			return nil, fmt.Errorf("invalid reference in %q: %w", raw, err)
		}
		expr.Segments = append(expr.Segments, ref)

		rest = rest[open+closing+len(markerClose):]
	}

	return expr, nil
}

// MustParse is a test helper that panics on parse failure.
func MustParse(raw string) *Expression {
	expr, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return expr
}

func parseReference(inner string) (ReferenceSegment, error) {
	parts := strings.Split(inner, "|")

	pathStr := strings.TrimSpace(parts[0])
	if pathStr == "" {
		return ReferenceSegment{}, fmt.Errorf("empty reference path")
	}

	path := strings.Split(pathStr, ".")
	for i, p := range path {
		p = strings.TrimSpace(p)
		if p == "" {
			return ReferenceSegment{}, fmt.Errorf("empty path component in %q", pathStr)
		}
		path[i] = p
	}

	ref := ReferenceSegment{Path: path}

	for _, pipe := range parts[1:] {
		fields := strings.Fields(pipe)
		if len(fields) == 0 {
			return ReferenceSegment{}, fmt.Errorf("empty pipe function in %q", inner)
		}
		ref.Pipes = append(ref.Pipes, PipeCall{Name: fields[0], Args: fields[1:]})
	}

	return ref, nil
}

// IsLiteral reports whether the expression contains no references.
func (e *Expression) IsLiteral() bool {
	for _, seg := range e.Segments {
		if _, ok := seg.(ReferenceSegment); ok {
			return false
		}
	}
	return true
}

// References returns every reference path in the expression, in order.
func (e *Expression) References() [][]string {
	var refs [][]string
	for _, seg := range e.Segments {
		if ref, ok := seg.(ReferenceSegment); ok {
			refs = append(refs, ref.Path)
		}
	}
	return refs
}

// ResourceReferences returns the (resource, attribute) pairs referenced via
// the resources root. Used by the graph builder to infer dependency edges.
func (e *Expression) ResourceReferences() []ResourceRef {
	var refs []ResourceRef
	for _, path := range e.References() {
		if path[0] != "resources" {
			continue
		}
		ref := ResourceRef{}
		if len(path) > 1 {
			ref.Resource = path[1]
		}
		if len(path) > 2 {
			ref.Attribute = path[2]
		}
		refs = append(refs, ref)
	}
	return refs
}

// ResourceRef names another resource's output attribute.
type ResourceRef struct {
	Resource  string
	Attribute string
}

func (r ResourceRef) String() string {
	return fmt.Sprintf("resources.%s.%s", r.Resource, r.Attribute)
}
