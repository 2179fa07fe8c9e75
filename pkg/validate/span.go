// Span existence and attribute validation
// Checks name patterns, kind, attributes, events, duration, and parent links
package validate

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/andrewh/attest/pkg/expect"
	"github.com/andrewh/attest/pkg/trace"
)

type spanValidator struct{}

func (spanValidator) Family() string { return "span" }

func (spanValidator) Enabled(set *expect.Set) bool { return len(set.Spans) > 0 }

func (spanValidator) Check(repo *trace.Repository, set *expect.Set) Result {
	var errs []string
	checked := 0
	for _, se := range set.Spans {
		checked++
		errs = append(errs, checkSpanExpectation(repo, se)...)
	}
	if len(errs) > 0 {
		return fail("span", errs)
	}
	return pass("span", fmt.Sprintf("%d span expectations satisfied", checked))
}

func checkSpanExpectation(repo *trace.Repository, se expect.SpanExpectation) []string {
	spans := repo.Spans()
	var matching []*trace.Span
	for i := range spans {
		if expect.MatchPattern(se.Name, spans[i].Name) {
			matching = append(matching, &spans[i])
		}
	}
	if len(matching) == 0 {
		return []string{fmt.Sprintf("no spans match pattern %q", se.Name)}
	}

	var errs []string

	if se.Kind != trace.KindUnspecified {
		found := false
		for _, s := range matching {
			if s.Kind == se.Kind {
				found = true
				break
			}
		}
		if !found {
			errs = append(errs, fmt.Sprintf("no span matching %q has kind %q", se.Name, se.Kind))
		}
	}

	// Every matching span must carry every required attribute.
	for _, key := range slices.Sorted(maps.Keys(se.AttrsAll)) {
		want := se.AttrsAll[key]
		for _, s := range matching {
			got, ok := s.Attributes[key]
			if !ok {
				errs = append(errs, fmt.Sprintf("span %q (id %s): attribute %q not found", s.Name, s.SpanID, key))
				continue
			}
			if trace.ValueString(got) != want {
				errs = append(errs, fmt.Sprintf("span %q (id %s): attribute %q has value %q but expected %q",
					s.Name, s.SpanID, key, trace.ValueString(got), want))
			}
		}
	}

	if len(se.AttrsAny) > 0 && !anyAttrMatches(matching, se.AttrsAny) {
		errs = append(errs, fmt.Sprintf("no span matching %q has any attribute of [%s]",
			se.Name, strings.Join(se.AttrsAny, ", ")))
	}

	if len(se.EventsAny) > 0 && !anyEventMatches(matching, se.EventsAny) {
		errs = append(errs, fmt.Sprintf("no span matching %q has any event of [%s]",
			se.Name, strings.Join(se.EventsAny, ", ")))
	}

	if se.DurationMinMs != nil || se.DurationMaxMs != nil {
		if msg := checkDuration(matching, se); msg != "" {
			errs = append(errs, msg)
		}
	}

	if se.Parent != "" {
		found := false
		for _, s := range matching {
			if p := repo.Parent(s); p != nil && expect.MatchPattern(se.Parent, p.Name) {
				found = true
				break
			}
		}
		if !found {
			errs = append(errs, fmt.Sprintf("no span matching %q has a parent matching %q", se.Name, se.Parent))
		}
	}

	return errs
}

func anyAttrMatches(spans []*trace.Span, patterns []string) bool {
	for _, pattern := range patterns {
		key, want, ok := strings.Cut(pattern, "=")
		if !ok {
			continue
		}
		for _, s := range spans {
			if got, present := s.Attributes[key]; present && trace.ValueString(got) == want {
				return true
			}
		}
	}
	return false
}

func anyEventMatches(spans []*trace.Span, names []string) bool {
	for _, s := range spans {
		for _, ev := range s.Events {
			for _, want := range names {
				if ev.Name == want {
					return true
				}
			}
		}
	}
	return false
}

// checkDuration requires at least one matching span with both timestamps
// whose duration lies within the bounds. Spans without timestamps cannot
// satisfy the check; if none has timestamps, that is an explicit failure.
func checkDuration(spans []*trace.Span, se expect.SpanExpectation) string {
	sawTimestamps := false
	for _, s := range spans {
		d, ok := s.DurationMillis()
		if !ok {
			continue
		}
		sawTimestamps = true
		if se.DurationMinMs != nil && d < *se.DurationMinMs {
			continue
		}
		if se.DurationMaxMs != nil && d > *se.DurationMaxMs {
			continue
		}
		return ""
	}
	if !sawTimestamps {
		return fmt.Sprintf("duration bound on %q cannot be checked: no matching span has both timestamps", se.Name)
	}
	return fmt.Sprintf("no span matching %q has duration within bounds [%s, %s]",
		se.Name, boundLabel(se.DurationMinMs), boundLabel(se.DurationMaxMs))
}

func boundLabel(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.3fms", *v)
}
