// Cardinality validation: span, event, and error totals plus glob-matched
// per-name counts
package validate

import (
	"fmt"
	"maps"
	"slices"

	"github.com/andrewh/attest/pkg/expect"
	"github.com/andrewh/attest/pkg/trace"
)

type countValidator struct{}

func (countValidator) Family() string { return "counts" }

func (countValidator) Enabled(set *expect.Set) bool { return set.Counts != nil }

func (countValidator) Check(repo *trace.Repository, set *expect.Set) Result {
	c := set.Counts
	spans := repo.Spans()

	spansTotal := len(spans)
	eventsTotal := 0
	errorsTotal := 0
	for i := range spans {
		eventsTotal += len(spans[i].Events)
		if effectiveStatus(&spans[i]) == trace.StatusError {
			errorsTotal++
		}
	}

	var errs []string
	checkBound := func(bound *expect.Bound, actual int, label string) {
		if bound == nil {
			return
		}
		if err := bound.Check(actual); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", label, err))
		}
	}
	checkBound(c.SpansTotal, spansTotal, "total spans")
	checkBound(c.EventsTotal, eventsTotal, "total events")
	checkBound(c.ErrorsTotal, errorsTotal, "total errors")

	// A pattern matching zero spans yields count 0, checked normally.
	for _, pattern := range slices.Sorted(maps.Keys(c.ByName)) {
		count := 0
		for i := range spans {
			if expect.MatchPattern(pattern, spans[i].Name) {
				count++
			}
		}
		if err := c.ByName[pattern].Check(count); err != nil {
			errs = append(errs, fmt.Sprintf("spans matching %q: %v", pattern, err))
		}
	}

	if len(errs) > 0 {
		return fail("counts", errs)
	}
	return pass("counts", fmt.Sprintf("%d spans, %d events, %d errors within bounds",
		spansTotal, eventsTotal, errorsTotal))
}
