// Validator family abstraction and result types
// Each family checks one expectation kind against the span repository
package validate

import (
	"strings"

	"github.com/andrewh/attest/pkg/expect"
	"github.com/andrewh/attest/pkg/trace"
)

// Result is the outcome of one validator family.
type Result struct {
	Family  string `json:"family"`
	Passed  bool   `json:"passed"`
	Skipped bool   `json:"skipped,omitempty"`
	Message string `json:"message"`
}

// Validator checks one expectation family against the repository. Families
// are stateless; all inputs arrive through Check. New families plug into
// the orchestrator without changing it.
type Validator interface {
	// Family returns the stable family name used in reports.
	Family() string
	// Enabled reports whether the expectation set exercises this family.
	Enabled(set *expect.Set) bool
	// Check evaluates the family. Structural failures are reported in the
	// Result, never as Go errors.
	Check(repo *trace.Repository, set *expect.Set) Result
}

// families returns all validator families in their fixed execution order.
func families() []Validator {
	return []Validator{
		spanValidator{},
		graphValidator{},
		countValidator{},
		windowValidator{},
		orderValidator{},
		statusValidator{},
		hermeticityValidator{},
	}
}

func pass(family, message string) Result {
	return Result{Family: family, Passed: true, Message: message}
}

func fail(family string, errs []string) Result {
	return Result{Family: family, Passed: false, Message: strings.Join(errs, "; ")}
}

func skipped(family string) Result {
	return Result{Family: family, Skipped: true, Message: "not evaluated (fail-fast)"}
}
