// Typed expectation entities consumed by the validation engine
// Constructed once from configuration and never mutated afterwards
package expect

import (
	"fmt"
	"path"
	"strings"

	"github.com/andrewh/attest/pkg/trace"
)

// SpanExpectation describes constraints on spans matching a name pattern.
type SpanExpectation struct {
	// Name is a glob pattern; at least one span must match it.
	Name string
	// Parent, when set, is a glob the resolved parent name must match.
	Parent string
	// Kind, when set, must be carried by some matching span.
	Kind trace.Kind
	// AttrsAll must all be present, with equal values, on every matching span.
	AttrsAll map[string]string
	// AttrsAny is a list of key=value entries; one must match on some span.
	AttrsAny []string
	// EventsAny names events; one must be present on some matching span.
	EventsAny []string
	// Duration bounds in milliseconds, checked against end-start.
	DurationMinMs *float64
	DurationMaxMs *float64
}

// Edge is an ordered parent→child name pair.
type Edge struct {
	Parent string
	Child  string
}

// GraphExpectation describes required structure of the span graph.
type GraphExpectation struct {
	MustInclude  []Edge
	MustNotCross []Edge
	Acyclic      bool
}

// Bound constrains a count. Any subset of fields may be set; all present
// bounds must hold simultaneously.
type Bound struct {
	Gte *int
	Lte *int
	Eq  *int
}

// Check reports whether the actual count satisfies every present bound.
func (b Bound) Check(actual int) error {
	if b.Eq != nil && actual != *b.Eq {
		return fmt.Errorf("expected exactly %d but found %d", *b.Eq, actual)
	}
	if b.Gte != nil && actual < *b.Gte {
		return fmt.Errorf("expected at least %d but found %d", *b.Gte, actual)
	}
	if b.Lte != nil && actual > *b.Lte {
		return fmt.Errorf("expected at most %d but found %d", *b.Lte, actual)
	}
	return nil
}

func (b Bound) empty() bool { return b.Gte == nil && b.Lte == nil && b.Eq == nil }

// CountExpectation bounds span cardinalities.
type CountExpectation struct {
	SpansTotal  *Bound
	EventsTotal *Bound
	ErrorsTotal *Bound
	// ByName maps a name glob to a bound on the matched span count.
	ByName map[string]Bound
}

// WindowExpectation requires inner spans to be temporally contained in an
// outer span, boundary-inclusive.
type WindowExpectation struct {
	Outer    string
	Contains []string
}

// NamePair is an ordered pair of span names for precedence constraints.
type NamePair struct {
	First  string
	Second string
}

// OrderExpectation describes global precedence constraints.
type OrderExpectation struct {
	MustPrecede []NamePair
	MustFollow  []NamePair
}

// StatusExpectation constrains effective span status codes.
type StatusExpectation struct {
	// All, when set, requires every span to resolve to this status.
	All *trace.Status
	// ByName maps a name glob to the status every matching span must have.
	// Overlapping patterns are each enforced as authored.
	ByName map[string]trace.Status
}

// HermeticityExpectation asserts the absence of external dependencies.
type HermeticityExpectation struct {
	NoExternalServices     bool
	ResourceAttrsMustMatch map[string]string
	ForbidSpanAttrKeys     []string
}

// Set aggregates every expectation family for one validation run.
type Set struct {
	Spans       []SpanExpectation
	Graph       *GraphExpectation
	Counts      *CountExpectation
	Windows     []WindowExpectation
	Order       *OrderExpectation
	Status      *StatusExpectation
	Hermeticity *HermeticityExpectation
}

// CheckPattern rejects malformed glob patterns. Matching follows
// path.Match semantics: `*`, `?`, and character classes.
func CheckPattern(pattern string) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	return nil
}

// MatchPattern reports whether a name matches a pre-validated glob pattern.
func MatchPattern(pattern, name string) bool {
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}

// Validate rejects malformed expectation sets before any validator runs:
// bad glob patterns, inverted bounds, empty constraints. This is the
// malformed-input boundary; failures here are engine errors, not
// structural expectation failures.
func (s *Set) Validate() error {
	for i, se := range s.Spans {
		if se.Name == "" {
			return fmt.Errorf("span expectation %d: name pattern is required", i)
		}
		if err := CheckPattern(se.Name); err != nil {
			return fmt.Errorf("span expectation %d: %w", i, err)
		}
		if se.Parent != "" {
			if err := CheckPattern(se.Parent); err != nil {
				return fmt.Errorf("span expectation %q: parent: %w", se.Name, err)
			}
		}
		for _, entry := range se.AttrsAny {
			if key, _, ok := strings.Cut(entry, "="); !ok || key == "" {
				return fmt.Errorf("span expectation %q: attrs.any entry %q is not key=value", se.Name, entry)
			}
		}
		if se.DurationMinMs != nil && se.DurationMaxMs != nil && *se.DurationMinMs > *se.DurationMaxMs {
			return fmt.Errorf("span expectation %q: duration min %.3fms exceeds max %.3fms",
				se.Name, *se.DurationMinMs, *se.DurationMaxMs)
		}
	}

	if s.Counts != nil {
		for pattern, bound := range s.Counts.ByName {
			if err := CheckPattern(pattern); err != nil {
				return fmt.Errorf("count expectation: %w", err)
			}
			if bound.empty() {
				return fmt.Errorf("count expectation for %q has no bounds", pattern)
			}
		}
		for label, bound := range map[string]*Bound{
			"spans_total":  s.Counts.SpansTotal,
			"events_total": s.Counts.EventsTotal,
			"errors_total": s.Counts.ErrorsTotal,
		} {
			if bound != nil && bound.Gte != nil && bound.Lte != nil && *bound.Gte > *bound.Lte {
				return fmt.Errorf("count expectation %s: gte %d exceeds lte %d", label, *bound.Gte, *bound.Lte)
			}
		}
	}

	for i, w := range s.Windows {
		if w.Outer == "" {
			return fmt.Errorf("window expectation %d: outer span name is required", i)
		}
		if len(w.Contains) == 0 {
			return fmt.Errorf("window expectation %q: contains list is empty", w.Outer)
		}
	}

	if s.Status != nil {
		for pattern := range s.Status.ByName {
			if err := CheckPattern(pattern); err != nil {
				return fmt.Errorf("status expectation: %w", err)
			}
		}
	}

	return nil
}
