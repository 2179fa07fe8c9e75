// Tests for the attest CLI commands
package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const traceDoc = `[
  {
    "trace_id": "t1",
    "span_id": "a",
    "name": "run.root",
    "kind": "server",
    "start_time_ns": 100000000,
    "end_time_ns": 500000000,
    "status": "OK",
    "resource_attributes": {"service.name": "runner"}
  },
  {
    "trace_id": "t1",
    "span_id": "b",
    "parent_span_id": "a",
    "name": "step.one",
    "kind": "internal",
    "start_time_ns": 110000000,
    "end_time_ns": 200000000,
    "status": "OK"
  }
]`

const passingExpectations = `
expect:
  spans:
    - name: "run.root"
      kind: server
    - name: "step.*"
      parent: "run.root"
  counts:
    spans_total:
      eq: 2
  status:
    all: OK
`

const failingExpectations = `
expect:
  counts:
    spans_total:
      eq: 5
`

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestValidateCommand(t *testing.T) {
	t.Parallel()

	t.Run("passing trace", func(t *testing.T) {
		t.Parallel()
		tracePath := writeTestFile(t, "trace.json", traceDoc)
		expectPath := writeTestFile(t, "expect.yaml", passingExpectations)

		root := rootCmd()
		root.SetArgs([]string{"validate", "--expect", expectPath, tracePath})
		var out bytes.Buffer
		root.SetOut(&out)

		require.NoError(t, root.Execute())
		assert.Contains(t, out.String(), "PASS")
		assert.Contains(t, out.String(), "digest:")
	})

	t.Run("failing trace exits nonzero", func(t *testing.T) {
		t.Parallel()
		tracePath := writeTestFile(t, "trace.json", traceDoc)
		expectPath := writeTestFile(t, "expect.yaml", failingExpectations)

		root := rootCmd()
		root.SetArgs([]string{"validate", "--expect", expectPath, tracePath})
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetErr(&out)

		err := root.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validation failed for 1 of 1")
		assert.Contains(t, out.String(), "FAIL")
	})

	t.Run("json output", func(t *testing.T) {
		t.Parallel()
		tracePath := writeTestFile(t, "trace.json", traceDoc)
		expectPath := writeTestFile(t, "expect.yaml", passingExpectations)

		root := rootCmd()
		root.SetArgs([]string{"validate", "--json", "--expect", expectPath, tracePath})
		var out bytes.Buffer
		root.SetOut(&out)

		require.NoError(t, root.Execute())

		var reports []fileReport
		require.NoError(t, json.Unmarshal(out.Bytes(), &reports))
		require.Len(t, reports, 1)
		assert.Equal(t, tracePath, reports[0].File)
		assert.True(t, reports[0].Passed)
		assert.Len(t, reports[0].Digest, 64)
		assert.NotEmpty(t, reports[0].Results)
	})

	t.Run("multiple trace files", func(t *testing.T) {
		t.Parallel()
		first := writeTestFile(t, "first.json", traceDoc)
		second := writeTestFile(t, "second.json", traceDoc)
		expectPath := writeTestFile(t, "expect.yaml", passingExpectations)

		root := rootCmd()
		root.SetArgs([]string{"validate", "--json", "--expect", expectPath, first, second})
		var out bytes.Buffer
		root.SetOut(&out)

		require.NoError(t, root.Execute())

		var reports []fileReport
		require.NoError(t, json.Unmarshal(out.Bytes(), &reports))
		require.Len(t, reports, 2)
		assert.Equal(t, first, reports[0].File)
		assert.Equal(t, second, reports[1].File)
		// identical content, identical digest
		assert.Equal(t, reports[0].Digest, reports[1].Digest)
	})

	t.Run("missing expect flag", func(t *testing.T) {
		t.Parallel()
		tracePath := writeTestFile(t, "trace.json", traceDoc)

		root := rootCmd()
		root.SetArgs([]string{"validate", tracePath})
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})

		err := root.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing expectation document")
	})

	t.Run("missing trace file argument", func(t *testing.T) {
		t.Parallel()
		root := rootCmd()
		root.SetArgs([]string{"validate"})
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})

		err := root.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing trace file")
	})

	t.Run("unreadable trace file", func(t *testing.T) {
		t.Parallel()
		expectPath := writeTestFile(t, "expect.yaml", passingExpectations)

		root := rootCmd()
		root.SetArgs([]string{"validate", "--expect", expectPath, "/nonexistent/trace.json"})
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})

		err := root.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "opening trace file")
	})
}

func TestRecordAndDiff(t *testing.T) {
	t.Parallel()

	tracePath := writeTestFile(t, "smoke.json", traceDoc)
	expectPath := writeTestFile(t, "expect.yaml", passingExpectations)
	dbPath := filepath.Join(t.TempDir(), "attest.db")

	record := rootCmd()
	record.SetArgs([]string{"record", "--expect", expectPath, "--baseline", dbPath, tracePath})
	var recordOut bytes.Buffer
	record.SetOut(&recordOut)
	require.NoError(t, record.Execute())
	assert.Contains(t, recordOut.String(), `Recorded baseline "smoke" (PASS)`)

	diff := rootCmd()
	diff.SetArgs([]string{"diff", "--expect", expectPath, "--baseline", dbPath, tracePath})
	var diffOut bytes.Buffer
	diff.SetOut(&diffOut)
	require.NoError(t, diff.Execute())
	assert.Contains(t, diffOut.String(), `Baseline "smoke" matches`)
}

func TestDiffDetectsDrift(t *testing.T) {
	t.Parallel()

	tracePath := writeTestFile(t, "smoke.json", traceDoc)
	expectPath := writeTestFile(t, "expect.yaml", passingExpectations)
	dbPath := filepath.Join(t.TempDir(), "attest.db")

	record := rootCmd()
	record.SetArgs([]string{"record", "--expect", expectPath, "--baseline", dbPath, "--name", "smoke", tracePath})
	record.SetOut(&bytes.Buffer{})
	require.NoError(t, record.Execute())

	// same expectations, drifted trace content
	drifted := writeTestFile(t, "drifted.json", `[
	  {"trace_id": "t1", "span_id": "a", "name": "run.root", "kind": "server",
	   "start_time_ns": 100000000, "end_time_ns": 500000000, "status": "OK",
	   "resource_attributes": {"service.name": "runner"}},
	  {"trace_id": "t1", "span_id": "b", "parent_span_id": "a", "name": "step.changed",
	   "kind": "internal", "start_time_ns": 110000000, "end_time_ns": 200000000, "status": "OK"}
	]`)

	diff := rootCmd()
	diff.SetArgs([]string{"diff", "--expect", expectPath, "--baseline", dbPath, "--name", "smoke", drifted})
	diff.SetOut(&bytes.Buffer{})
	diff.SetErr(&bytes.Buffer{})

	err := diff.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "digest mismatch")
}

func TestDiffUnknownBaseline(t *testing.T) {
	t.Parallel()

	tracePath := writeTestFile(t, "smoke.json", traceDoc)
	expectPath := writeTestFile(t, "expect.yaml", passingExpectations)
	dbPath := filepath.Join(t.TempDir(), "attest.db")

	diff := rootCmd()
	diff.SetArgs([]string{"diff", "--expect", expectPath, "--baseline", dbPath, tracePath})
	diff.SetOut(&bytes.Buffer{})
	diff.SetErr(&bytes.Buffer{})

	err := diff.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "baseline not found")
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	root := rootCmd()
	root.SetArgs([]string{"version"})
	var out bytes.Buffer
	root.SetOut(&out)

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "attest dev")
}

func TestBaselineName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "smoke", baselineName("/tmp/traces/smoke.json"))
	assert.Equal(t, "trace", baselineName("trace"))
}
