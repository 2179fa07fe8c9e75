// Validation orchestration: fixed-order family execution, aggregation,
// digest computation, and the final report
package validate

import (
	"context"
	"fmt"

	"github.com/andrewh/attest/pkg/digest"
	"github.com/andrewh/attest/pkg/expect"
	"github.com/andrewh/attest/pkg/trace"
	"github.com/google/uuid"
)

// Report is the immutable outcome of one validation run.
type Report struct {
	RunID   string
	Results []Result
	Passed  bool
	Digest  string
}

// Options configures one validation run.
type Options struct {
	// FailFast halts family execution after the first failure; remaining
	// families are reported as not evaluated rather than silently passing.
	FailFast bool
}

// State tracks runner progress. A report only exists once the run reaches
// StateCompleted; cancellation mid-run yields no report.
type State int

const (
	StatePending State = iota
	StateRunning
	StateCompleted
)

// Runner executes one validation run. Runners are single-use: each run
// owns its repository and report, so independent runs may proceed on
// separate goroutines with no shared mutable state.
type Runner struct {
	opts  Options
	state State
}

// NewRunner returns a runner in StatePending.
func NewRunner(opts Options) *Runner {
	return &Runner{opts: opts, state: StatePending}
}

// State returns the runner's current state.
func (r *Runner) State() State { return r.state }

// Run validates one span set against one expectation set and returns the
// report. Malformed input (bad glob patterns) is returned as an error
// before any family runs, distinct from structural failures inside the
// report. The digest is always computed, pass or fail. A cancelled
// context aborts the run with an error and no partial report.
func (r *Runner) Run(ctx context.Context, spans []trace.Span, set *expect.Set) (*Report, error) {
	if r.state != StatePending {
		return nil, fmt.Errorf("runner already used; create a new one per run")
	}
	if set == nil {
		return nil, fmt.Errorf("expectation set is required")
	}
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("malformed expectations: %w", err)
	}

	r.state = StateRunning
	repo := trace.NewRepository(spans)

	var results []Result
	failed := false

	// An empty trace can never be certified as executed, whatever the
	// expectations say.
	if repo.Len() == 0 {
		results = append(results, Result{
			Family:  "collection",
			Passed:  false,
			Message: "no spans collected; execution cannot be certified",
		})
		failed = true
	}

	for _, v := range families() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("validation aborted: %w", err)
		}
		if !v.Enabled(set) {
			continue
		}
		if r.opts.FailFast && failed {
			results = append(results, skipped(v.Family()))
			continue
		}
		res := v.Check(repo, set)
		if !res.Passed && !res.Skipped {
			failed = true
		}
		results = append(results, res)
	}

	dg, err := digest.Compute(spans, set)
	if err != nil {
		return nil, fmt.Errorf("computing digest: %w", err)
	}

	r.state = StateCompleted
	return &Report{
		RunID:   uuid.NewString(),
		Results: results,
		Passed:  !failed,
		Digest:  dg,
	}, nil
}

// Run is a convenience wrapper creating a single-use Runner.
func Run(ctx context.Context, spans []trace.Span, set *expect.Set, opts Options) (*Report, error) {
	return NewRunner(opts).Run(ctx, spans, set)
}
