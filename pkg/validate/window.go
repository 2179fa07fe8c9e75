// Temporal containment validation: inner spans inside an outer span's window
// Boundary-inclusive; missing timestamps fail explicitly
package validate

import (
	"fmt"
	"strings"

	"github.com/andrewh/attest/pkg/expect"
	"github.com/andrewh/attest/pkg/trace"
)

type windowValidator struct{}

func (windowValidator) Family() string { return "windows" }

func (windowValidator) Enabled(set *expect.Set) bool { return len(set.Windows) > 0 }

func (windowValidator) Check(repo *trace.Repository, set *expect.Set) Result {
	var errs []string
	var satisfied []string
	for _, w := range set.Windows {
		for _, inner := range w.Contains {
			pair, msg := checkContainment(repo, w.Outer, inner)
			if msg != "" {
				errs = append(errs, msg)
				continue
			}
			satisfied = append(satisfied, pair)
		}
	}
	if len(errs) > 0 {
		return fail("windows", errs)
	}
	return pass("windows", strings.Join(satisfied, "; "))
}

// checkContainment requires at least one (outer, inner) pair where both
// spans have timestamps and inner lies inside outer, boundary-inclusive.
// On success the chosen pair is reported by span id.
func checkContainment(repo *trace.Repository, outerName, innerName string) (pair, msg string) {
	outers := repo.ByName(outerName)
	if len(outers) == 0 {
		return "", fmt.Sprintf("window %q: outer span not found", outerName)
	}
	inners := repo.ByName(innerName)
	if len(inners) == 0 {
		return "", fmt.Sprintf("window %q: inner span %q not found", outerName, innerName)
	}

	sawTimestamps := false
	for _, inner := range inners {
		if inner.Start == nil || inner.End == nil {
			continue
		}
		for _, outer := range outers {
			if outer.Start == nil || outer.End == nil {
				continue
			}
			sawTimestamps = true
			if *inner.Start >= *outer.Start && *inner.End <= *outer.End {
				return fmt.Sprintf("%s (id %s) contains %s (id %s)",
					outerName, outer.SpanID, innerName, inner.SpanID), ""
			}
		}
	}

	if !sawTimestamps {
		return "", fmt.Sprintf("window %q: cannot check containment of %q, timestamps missing on every candidate pair",
			outerName, innerName)
	}
	return "", fmt.Sprintf("window %q: no span named %q is temporally contained within it", outerName, innerName)
}
