// Span graph validation: required edges, forbidden edges, acyclicity
// Edges are proven by parent_span_id references between named span groups
package validate

import (
	"fmt"
	"strings"

	"github.com/andrewh/attest/pkg/expect"
	"github.com/andrewh/attest/pkg/trace"
)

// maxParentDepth bounds the parent-chain walk during cycle detection.
// Exceeding it is reported as a structural failure, never a crash.
const maxParentDepth = 1000

type graphValidator struct{}

func (graphValidator) Family() string { return "graph" }

func (graphValidator) Enabled(set *expect.Set) bool { return set.Graph != nil }

func (graphValidator) Check(repo *trace.Repository, set *expect.Set) Result {
	g := set.Graph
	var errs []string
	edges := 0

	for _, e := range g.MustInclude {
		edges++
		if msg := checkEdgeExists(repo, e); msg != "" {
			errs = append(errs, msg)
		}
	}

	for _, e := range g.MustNotCross {
		edges++
		if edgeExists(repo, e) {
			errs = append(errs, fmt.Sprintf("forbidden edge %q -> %q exists (isolation violation)", e.Parent, e.Child))
		}
	}

	if g.Acyclic {
		if msg := checkAcyclic(repo); msg != "" {
			errs = append(errs, msg)
		}
	}

	if len(errs) > 0 {
		return fail("graph", errs)
	}
	return pass("graph", fmt.Sprintf("%d edges checked, graph constraints hold", edges))
}

// checkEdgeExists requires at least one child-named span whose parent
// pointer resolves to a parent-named span. A missing name is reported as
// such rather than as a generic edge failure.
func checkEdgeExists(repo *trace.Repository, e expect.Edge) string {
	parents := repo.ByName(e.Parent)
	if len(parents) == 0 {
		return fmt.Sprintf("edge %q -> %q: parent span %q not found", e.Parent, e.Child, e.Parent)
	}
	children := repo.ByName(e.Child)
	if len(children) == 0 {
		return fmt.Sprintf("edge %q -> %q: child span %q not found", e.Parent, e.Child, e.Child)
	}
	if !edgeBetween(parents, children) {
		return fmt.Sprintf("required edge %q -> %q not found", e.Parent, e.Child)
	}
	return ""
}

// edgeExists is the forbidden-edge probe: absent names make it vacuously false.
func edgeExists(repo *trace.Repository, e expect.Edge) bool {
	parents := repo.ByName(e.Parent)
	children := repo.ByName(e.Child)
	if len(parents) == 0 || len(children) == 0 {
		return false
	}
	return edgeBetween(parents, children)
}

func edgeBetween(parents, children []*trace.Span) bool {
	ids := make(map[string]bool, len(parents))
	for _, p := range parents {
		ids[p.SpanID] = true
	}
	for _, c := range children {
		if c.ParentSpanID != "" && ids[c.ParentSpanID] {
			return true
		}
	}
	return false
}

// checkAcyclic walks parent pointers from every span, tracking the current
// path. Reaching an on-path span is a cycle, reported with the full name
// path. Dangling parent references terminate a walk; they are tolerated.
func checkAcyclic(repo *trace.Repository) string {
	visited := make(map[string]bool, repo.Len())

	spans := repo.Spans()
	for i := range spans {
		start := &spans[i]
		if visited[start.SpanID] {
			continue
		}

		onPath := make(map[string]bool)
		var path []string
		depth := 0

		for s := start; s != nil; s = repo.Parent(s) {
			if depth++; depth > maxParentDepth {
				return fmt.Sprintf("parent chain starting at %q exceeds depth limit %d; trace structure is pathological",
					start.Name, maxParentDepth)
			}
			if onPath[s.SpanID] {
				path = append(path, s.Name)
				return fmt.Sprintf("cycle detected in span graph: %s", strings.Join(path, " -> "))
			}
			if visited[s.SpanID] {
				break
			}
			visited[s.SpanID] = true
			onPath[s.SpanID] = true
			path = append(path, s.Name)
		}
	}
	return ""
}
