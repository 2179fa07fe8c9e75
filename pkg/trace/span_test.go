// Tests for trace document parsing
package trace

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const spanArrayDoc = `[
  {
    "trace_id": "t1",
    "span_id": "aaa",
    "name": "run.root",
    "kind": "internal",
    "start_time_ns": 100000000,
    "end_time_ns": 200000000,
    "status": "ok",
    "attributes": {"step.count": 2, "dry_run": false},
    "resource_attributes": {"service.name": "runner"}
  },
  {
    "trace_id": "t1",
    "span_id": "bbb",
    "parent_span_id": "aaa",
    "name": "step.one",
    "kind": "internal",
    "start_time_ns": 110000000,
    "end_time_ns": 150000000,
    "status": "OK",
    "events": [{"name": "step.started"}]
  }
]`

func TestParseSpanArray(t *testing.T) {
	t.Parallel()

	spans, err := ParseSpans(strings.NewReader(spanArrayDoc), FormatAuto)
	require.NoError(t, err)
	require.Len(t, spans, 2)

	root := spans[0]
	assert.Equal(t, "run.root", root.Name)
	assert.Equal(t, KindInternal, root.Kind)
	assert.Equal(t, StatusOK, root.Status)
	assert.Equal(t, "", root.ParentSpanID)
	require.NotNil(t, root.Start)
	assert.Equal(t, int64(100000000), *root.Start)
	assert.Equal(t, int64(2), root.Attributes["step.count"])
	assert.Equal(t, false, root.Attributes["dry_run"])
	assert.Equal(t, "runner", root.Resource["service.name"])

	child := spans[1]
	assert.Equal(t, "aaa", child.ParentSpanID)
	require.Len(t, child.Events, 1)
	assert.Equal(t, "step.started", child.Events[0].Name)
}

func TestParseSpanArrayWireWrappedValues(t *testing.T) {
	t.Parallel()

	doc := `[{
	  "span_id": "a",
	  "name": "op",
	  "attributes": {
	    "s": {"stringValue": "x"},
	    "i": {"intValue": "7"},
	    "n": {"intValue": 9},
	    "b": {"boolValue": true},
	    "d": {"doubleValue": 2.5},
	    "whole": {"doubleValue": 3.0},
	    "arr": {"arrayValue": {"values": [{"intValue": "1"}, {"stringValue": "two"}]}}
	  }
	}]`

	spans, err := ParseSpans(strings.NewReader(doc), FormatSpans)
	require.NoError(t, err)
	require.Len(t, spans, 1)

	attrs := spans[0].Attributes
	assert.Equal(t, "x", attrs["s"])
	assert.Equal(t, int64(7), attrs["i"])
	assert.Equal(t, int64(9), attrs["n"])
	assert.Equal(t, true, attrs["b"])
	assert.Equal(t, 2.5, attrs["d"])
	assert.Equal(t, int64(3), attrs["whole"])
	assert.Equal(t, []any{int64(1), "two"}, attrs["arr"])
}

func TestParseSpanArrayStructuredValues(t *testing.T) {
	t.Parallel()

	doc := `[{
	  "span_id": "a",
	  "name": "op",
	  "attributes": {
	    "retry": {"count": 2, "reason": "timeout"},
	    "nested": {"outer": {"inner": [1, null]}},
	    "absent": null
	  }
	}]`

	spans, err := ParseSpans(strings.NewReader(doc), FormatSpans)
	require.NoError(t, err)
	require.Len(t, spans, 1)

	attrs := spans[0].Attributes
	assert.Equal(t, map[string]any{"count": int64(2), "reason": "timeout"}, attrs["retry"])
	assert.Equal(t, map[string]any{"outer": map[string]any{"inner": []any{int64(1), nil}}}, attrs["nested"])
	val, present := attrs["absent"]
	assert.True(t, present)
	assert.Nil(t, val)
}

func TestParseSpanArrayErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"missing span_id", `[{"name": "op"}]`, "missing span_id"},
		{"missing name", `[{"span_id": "a"}]`, "missing name"},
		{"bad kind", `[{"span_id": "a", "name": "op", "kind": "bogus"}]`, "unknown span kind"},
		{"bad status", `[{"span_id": "a", "name": "op", "status": "bogus"}]`, "invalid status"},
		{"bad int wrapper", `[{"span_id": "a", "name": "op", "attributes": {"k": {"intValue": "xx"}}}]`, "intValue"},
		{"empty input", ``, "empty trace document"},
		{"not json", `hello`, "cannot detect format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseSpans(strings.NewReader(tt.doc), FormatAuto)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// protojson decodes bytes fields from base64: trace id is bytes 1..16,
// span ids are bytes 1..8 and 17..24
const otlpDoc = `{
  "resourceSpans": [{
    "resource": {
      "attributes": [{"key": "service.name", "value": {"stringValue": "runner"}}]
    },
    "scopeSpans": [{
      "spans": [{
        "traceId": "AQIDBAUGBwgJCgsMDQ4PEA==",
        "spanId": "AQIDBAUGBwg=",
        "name": "run.root",
        "kind": 1,
        "startTimeUnixNano": "100000000",
        "endTimeUnixNano": "200000000",
        "status": {"code": 1},
        "attributes": [{"key": "step.count", "value": {"intValue": "2"}}]
      }, {
        "traceId": "AQIDBAUGBwgJCgsMDQ4PEA==",
        "spanId": "ERITFBUWFxg=",
        "parentSpanId": "AQIDBAUGBwg=",
        "name": "step.one",
        "kind": 1,
        "startTimeUnixNano": "110000000",
        "endTimeUnixNano": "150000000",
        "status": {"code": 2}
      }]
    }]
  }]
}`

func TestParseOTLP(t *testing.T) {
	t.Parallel()

	spans, err := ParseSpans(strings.NewReader(otlpDoc), FormatAuto)
	require.NoError(t, err)
	require.Len(t, spans, 2)

	root := spans[0]
	assert.Equal(t, "run.root", root.Name)
	assert.Equal(t, KindInternal, root.Kind)
	assert.Equal(t, StatusOK, root.Status)
	assert.Equal(t, "", root.ParentSpanID)
	assert.Equal(t, int64(2), root.Attributes["step.count"])
	assert.Equal(t, "runner", root.Resource["service.name"])

	child := spans[1]
	assert.Equal(t, "0102030405060708", child.ParentSpanID)
	assert.Equal(t, StatusError, child.Status)
}

func TestParseOTLPMissingTimestamps(t *testing.T) {
	t.Parallel()

	doc := `{
	  "resourceSpans": [{
	    "scopeSpans": [{
	      "spans": [{
	        "traceId": "AQIDBAUGBwgJCgsMDQ4PEA==",
	        "spanId": "AQIDBAUGBwg=",
	        "name": "run.root",
	        "endTimeUnixNano": "200000000"
	      }]
	    }]
	  }]
	}`

	spans, err := ParseSpans(strings.NewReader(doc), FormatOTLP)
	require.NoError(t, err)
	require.Len(t, spans, 1)

	// Zero nanos means unset, not an epoch start.
	assert.Nil(t, spans[0].Start)
	require.NotNil(t, spans[0].End)
	assert.Equal(t, int64(200000000), *spans[0].End)

	_, ok := spans[0].DurationMillis()
	assert.False(t, ok)
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	format, err := detectFormat([]byte(`[]`))
	require.NoError(t, err)
	assert.Equal(t, FormatSpans, format)

	format, err = detectFormat([]byte(`{"resourceSpans": []}`))
	require.NoError(t, err)
	assert.Equal(t, FormatOTLP, format)

	_, err = detectFormat([]byte(`{"other": 1}`))
	require.Error(t, err)
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	kind, err := ParseKind("SERVER")
	require.NoError(t, err)
	assert.Equal(t, KindServer, kind)

	kind, err = ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindUnspecified, kind)

	_, err = ParseKind("sideways")
	require.Error(t, err)
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	status, err := ParseStatus("error")
	require.NoError(t, err)
	assert.Equal(t, StatusError, status)

	status, err = ParseStatus("")
	require.NoError(t, err)
	assert.Equal(t, StatusUnset, status)

	_, err = ParseStatus("maybe")
	require.Error(t, err)
}

func TestDurationMillis(t *testing.T) {
	t.Parallel()

	start, end := int64(100_000_000), int64(150_000_000)
	s := Span{Start: &start, End: &end}
	d, ok := s.DurationMillis()
	require.True(t, ok)
	assert.InDelta(t, 50.0, d, 0.001)

	_, ok = (&Span{Start: &start}).DurationMillis()
	assert.False(t, ok)
}

func TestValueString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "x", ValueString("x"))
	assert.Equal(t, "7", ValueString(int64(7)))
	assert.Equal(t, "2.5", ValueString(2.5))
	assert.Equal(t, "true", ValueString(true))
}
