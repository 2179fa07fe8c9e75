// Tests for temporal containment validation
package validate

import (
	"testing"

	"github.com/andrewh/attest/pkg/expect"
	"github.com/andrewh/attest/pkg/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func windowSet(outer string, inners ...string) *expect.Set {
	return &expect.Set{Windows: []expect.WindowExpectation{
		{Outer: outer, Contains: inners},
	}}
}

func TestWindowContainment(t *testing.T) {
	t.Parallel()

	t.Run("boundary-equal window passes", func(t *testing.T) {
		t.Parallel()
		repo := trace.NewRepository([]trace.Span{
			mkSpan("o", "", "run.root", 100, 200),
			mkSpan("i", "o", "step.one", 100, 200),
		})
		res := windowValidator{}.Check(repo, windowSet("run.root", "step.one"))
		require.True(t, res.Passed)
		assert.Contains(t, res.Message, "run.root (id o) contains step.one (id i)")
	})

	t.Run("one nanosecond early fails", func(t *testing.T) {
		t.Parallel()
		repo := trace.NewRepository([]trace.Span{
			mkSpan("o", "", "run.root", 100, 200),
			mkSpan("i", "o", "step.one", 99, 200),
		})
		res := windowValidator{}.Check(repo, windowSet("run.root", "step.one"))
		require.False(t, res.Passed)
		assert.Contains(t, res.Message, "is temporally contained")
	})

	t.Run("one qualifying pair suffices", func(t *testing.T) {
		t.Parallel()
		repo := trace.NewRepository([]trace.Span{
			mkSpan("o1", "", "run.root", 100, 200),
			mkSpan("o2", "", "run.root", 300, 400),
			mkSpan("i1", "o2", "step.one", 310, 390),
		})
		res := windowValidator{}.Check(repo, windowSet("run.root", "step.one"))
		require.True(t, res.Passed)
		assert.Contains(t, res.Message, "(id o2) contains step.one (id i1)")
	})

	t.Run("missing outer span", func(t *testing.T) {
		t.Parallel()
		repo := trace.NewRepository([]trace.Span{
			mkSpan("i", "", "step.one", 100, 200),
		})
		res := windowValidator{}.Check(repo, windowSet("run.root", "step.one"))
		require.False(t, res.Passed)
		assert.Contains(t, res.Message, `window "run.root": outer span not found`)
	})

	t.Run("missing inner span", func(t *testing.T) {
		t.Parallel()
		repo := trace.NewRepository([]trace.Span{
			mkSpan("o", "", "run.root", 100, 200),
		})
		res := windowValidator{}.Check(repo, windowSet("run.root", "step.one"))
		require.False(t, res.Passed)
		assert.Contains(t, res.Message, `inner span "step.one" not found`)
	})

	t.Run("missing timestamps fail explicitly", func(t *testing.T) {
		t.Parallel()
		outer := mkSpan("o", "", "run.root", 100, 200)
		inner := trace.Span{SpanID: "i", ParentSpanID: "o", Name: "step.one", Status: trace.StatusOK}
		repo := trace.NewRepository([]trace.Span{outer, inner})
		res := windowValidator{}.Check(repo, windowSet("run.root", "step.one"))
		require.False(t, res.Passed)
		assert.Contains(t, res.Message, "timestamps missing")
	})

	t.Run("every inner name is checked", func(t *testing.T) {
		t.Parallel()
		repo := trace.NewRepository([]trace.Span{
			mkSpan("o", "", "run.root", 100, 200),
			mkSpan("i1", "o", "step.one", 110, 190),
			mkSpan("i2", "o", "step.two", 150, 250),
		})
		res := windowValidator{}.Check(repo, windowSet("run.root", "step.one", "step.two"))
		require.False(t, res.Passed)
		assert.Contains(t, res.Message, `no span named "step.two"`)
	})
}
