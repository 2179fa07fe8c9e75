// Status code validation with glob pattern overrides
// Effective status resolves from attributes first, then the recorded field
package validate

import (
	"fmt"
	"maps"
	"slices"

	"github.com/andrewh/attest/pkg/expect"
	"github.com/andrewh/attest/pkg/trace"
)

// effectiveStatus resolves a span's status in priority order: the explicit
// otel.status_code attribute, the generic status attribute, the recorded
// status field, else UNSET. Unparseable attribute values fall through to
// the next source.
func effectiveStatus(s *trace.Span) trace.Status {
	for _, key := range [...]string{"otel.status_code", "status"} {
		if v, ok := s.Attributes[key]; ok {
			if st, err := trace.ParseStatus(trace.ValueString(v)); err == nil {
				return st
			}
		}
	}
	if s.Status != "" {
		return s.Status
	}
	return trace.StatusUnset
}

type statusValidator struct{}

func (statusValidator) Family() string { return "status" }

func (statusValidator) Enabled(set *expect.Set) bool { return set.Status != nil }

func (statusValidator) Check(repo *trace.Repository, set *expect.Set) Result {
	st := set.Status
	spans := repo.Spans()
	var errs []string
	checked := 0

	if st.All != nil {
		for i := range spans {
			checked++
			if got := effectiveStatus(&spans[i]); got != *st.All {
				errs = append(errs, fmt.Sprintf("span %q (id %s) has status %s but expected %s",
					spans[i].Name, spans[i].SpanID, got, *st.All))
			}
		}
	}

	// Overlapping patterns are each enforced as authored; a span caught by
	// two conflicting patterns fails both ways rather than being an error.
	for _, pattern := range slices.Sorted(maps.Keys(st.ByName)) {
		want := st.ByName[pattern]
		matched := false
		for i := range spans {
			if !expect.MatchPattern(pattern, spans[i].Name) {
				continue
			}
			matched = true
			checked++
			if got := effectiveStatus(&spans[i]); got != want {
				errs = append(errs, fmt.Sprintf("span %q (id %s) has status %s but pattern %q expects %s",
					spans[i].Name, spans[i].SpanID, got, pattern, want))
			}
		}
		if !matched {
			errs = append(errs, fmt.Sprintf("no spans match status pattern %q", pattern))
		}
	}

	if len(errs) > 0 {
		return fail("status", errs)
	}
	return pass("status", fmt.Sprintf("%d status checks satisfied", checked))
}
