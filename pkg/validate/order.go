// Temporal ordering validation between named span pairs
// must_precede requires end(first) <= start(second); must_follow swaps operands
package validate

import (
	"fmt"

	"github.com/andrewh/attest/pkg/expect"
	"github.com/andrewh/attest/pkg/trace"
)

type orderValidator struct{}

func (orderValidator) Family() string { return "order" }

func (orderValidator) Enabled(set *expect.Set) bool { return set.Order != nil }

func (orderValidator) Check(repo *trace.Repository, set *expect.Set) Result {
	o := set.Order
	var errs []string
	checked := 0

	for _, p := range o.MustPrecede {
		checked++
		if msg := checkPrecedes(repo, p.First, p.Second); msg != "" {
			errs = append(errs, msg)
		}
	}
	for _, p := range o.MustFollow {
		checked++
		// first follows second == second precedes first
		if msg := checkPrecedes(repo, p.Second, p.First); msg != "" {
			errs = append(errs, fmt.Sprintf("%q must follow %q: %s", p.First, p.Second, msg))
		}
	}

	if len(errs) > 0 {
		return fail("order", errs)
	}
	return pass("order", fmt.Sprintf("%d ordering constraints satisfied", checked))
}

// checkPrecedes requires at least one (before, after) pair with
// end(before) <= start(after), boundary-inclusive. Missing names or
// timestamps fail explicitly.
func checkPrecedes(repo *trace.Repository, beforeName, afterName string) string {
	befores := repo.ByName(beforeName)
	if len(befores) == 0 {
		return fmt.Sprintf("ordering %q before %q: span %q not found", beforeName, afterName, beforeName)
	}
	afters := repo.ByName(afterName)
	if len(afters) == 0 {
		return fmt.Sprintf("ordering %q before %q: span %q not found", beforeName, afterName, afterName)
	}

	sawTimestamps := false
	for _, b := range befores {
		if b.End == nil {
			continue
		}
		for _, a := range afters {
			if a.Start == nil {
				continue
			}
			sawTimestamps = true
			if *b.End <= *a.Start {
				return ""
			}
		}
	}

	if !sawTimestamps {
		return fmt.Sprintf("ordering %q before %q cannot be checked: timestamps missing on every candidate pair",
			beforeName, afterName)
	}
	return fmt.Sprintf("%q does not precede %q", beforeName, afterName)
}
