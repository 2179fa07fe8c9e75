// Normalised span type and format-specific parsers for collected trace documents
// Handles both flat span-array JSON and OTLP protobuf JSON formats
package trace

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/encoding/protojson"
)

// Kind mirrors the OTel span kind for collected spans.
type Kind string

const (
	KindUnspecified Kind = ""
	KindInternal    Kind = "internal"
	KindServer      Kind = "server"
	KindClient      Kind = "client"
	KindProducer    Kind = "producer"
	KindConsumer    Kind = "consumer"
)

// ParseKind parses a span kind string, tolerating case variations.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(s)) {
	case KindUnspecified, KindInternal, KindServer, KindClient, KindProducer, KindConsumer:
		return Kind(strings.ToLower(s)), nil
	}
	return KindUnspecified, fmt.Errorf("unknown span kind %q, valid kinds: internal, server, client, producer, consumer", s)
}

// Status is the recorded span status.
type Status string

const (
	StatusUnset Status = "UNSET"
	StatusOK    Status = "OK"
	StatusError Status = "ERROR"
)

// ParseStatus parses a status string, tolerating case variations.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToUpper(s)) {
	case StatusUnset, StatusOK, StatusError:
		return Status(strings.ToUpper(s)), nil
	case "":
		return StatusUnset, nil
	}
	return StatusUnset, fmt.Errorf("invalid status %q, must be UNSET, OK, or ERROR", s)
}

// Event is a point-in-time annotation on a span.
type Event struct {
	Name       string
	Attributes map[string]any
}

// Span is the format-independent representation of one collected span.
// Start and End are unix nanoseconds; nil means the timestamp was not
// recorded. ParentSpanID may be empty (root) or dangle (parent not in
// the collected set); neither is an error at this layer.
type Span struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Name         string
	Kind         Kind
	Start        *int64
	End          *int64
	Status       Status
	Attributes   map[string]any
	Events       []Event
	Resource     map[string]any
}

// DurationMillis returns the span duration in milliseconds. The second
// return is false when either timestamp is missing.
func (s *Span) DurationMillis() (float64, bool) {
	if s.Start == nil || s.End == nil {
		return 0, false
	}
	return float64(*s.End-*s.Start) / 1e6, true
}

// Format identifies the input trace document format.
type Format string

const (
	FormatAuto  Format = "auto"
	FormatSpans Format = "spans"
	FormatOTLP  Format = "otlp"
)

// maxInputSize is the maximum input size to prevent OOM on large trace exports.
const maxInputSize = 256 * 1024 * 1024 // 256 MB

// ParseSpans reads a trace document from the given reader in the specified
// format. FormatAuto inspects the document shape: a top-level array is the
// flat span-array format, an object with resourceSpans is OTLP JSON.
func ParseSpans(r io.Reader, format Format) ([]Span, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxInputSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	if len(data) > maxInputSize {
		return nil, fmt.Errorf("input exceeds maximum size of %d MB", maxInputSize/(1024*1024))
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty trace document")
	}

	if format == FormatAuto {
		format, err = detectFormat(data)
		if err != nil {
			return nil, err
		}
	}

	switch format {
	case FormatSpans:
		return parseSpanArray(data)
	case FormatOTLP:
		return parseOTLP(data)
	default:
		return nil, fmt.Errorf("unknown format %q, valid formats: auto, spans, otlp", format)
	}
}

// detectFormat examines the input to determine the document format.
func detectFormat(data []byte) (Format, error) {
	switch data[0] {
	case '[':
		return FormatSpans, nil
	case '{':
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(data, &probe); err == nil {
			if _, ok := probe["resourceSpans"]; ok {
				return FormatOTLP, nil
			}
		}
	}
	return "", fmt.Errorf("cannot detect format: input is neither a span array nor OTLP JSON (resourceSpans)")
}

// rawSpan mirrors one element of the flat span-array document.
type rawSpan struct {
	TraceID      string                     `json:"trace_id"`
	SpanID       string                     `json:"span_id"`
	ParentSpanID string                     `json:"parent_span_id"`
	Name         string                     `json:"name"`
	Kind         string                     `json:"kind"`
	Start        *int64                     `json:"start_time_ns"`
	End          *int64                     `json:"end_time_ns"`
	Status       string                     `json:"status"`
	Attributes   map[string]json.RawMessage `json:"attributes"`
	Events       []rawEvent                 `json:"events"`
	Resource     map[string]json.RawMessage `json:"resource_attributes"`
}

type rawEvent struct {
	Name       string                     `json:"name"`
	Attributes map[string]json.RawMessage `json:"attributes"`
}

func parseSpanArray(data []byte) ([]Span, error) {
	var raws []rawSpan
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("parsing span array: %w", err)
	}

	spans := make([]Span, 0, len(raws))
	for i, raw := range raws {
		if raw.SpanID == "" {
			return nil, fmt.Errorf("span %d: missing span_id", i)
		}
		if raw.Name == "" {
			return nil, fmt.Errorf("span %d (id %s): missing name", i, raw.SpanID)
		}
		kind, err := ParseKind(raw.Kind)
		if err != nil {
			return nil, fmt.Errorf("span %d (id %s): %w", i, raw.SpanID, err)
		}
		status, err := ParseStatus(raw.Status)
		if err != nil {
			return nil, fmt.Errorf("span %d (id %s): %w", i, raw.SpanID, err)
		}

		attrs, err := decodeAttributes(raw.Attributes)
		if err != nil {
			return nil, fmt.Errorf("span %d (id %s): %w", i, raw.SpanID, err)
		}
		res, err := decodeAttributes(raw.Resource)
		if err != nil {
			return nil, fmt.Errorf("span %d (id %s): resource: %w", i, raw.SpanID, err)
		}

		events := make([]Event, 0, len(raw.Events))
		for j, re := range raw.Events {
			evAttrs, evErr := decodeAttributes(re.Attributes)
			if evErr != nil {
				return nil, fmt.Errorf("span %d (id %s): event %d: %w", i, raw.SpanID, j, evErr)
			}
			events = append(events, Event{Name: re.Name, Attributes: evAttrs})
		}
		if len(events) == 0 {
			events = nil
		}

		spans = append(spans, Span{
			TraceID:      raw.TraceID,
			SpanID:       raw.SpanID,
			ParentSpanID: raw.ParentSpanID,
			Name:         raw.Name,
			Kind:         kind,
			Start:        raw.Start,
			End:          raw.End,
			Status:       status,
			Attributes:   attrs,
			Events:       events,
			Resource:     res,
		})
	}
	return spans, nil
}

// decodeAttributes resolves a raw attribute map into logical values,
// accepting plain scalars, wire-wrapped forms such as {"stringValue": "x"}
// or {"intValue": "7"}, and arbitrary structured values.
func decodeAttributes(raw map[string]json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		val, err := decodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}

func decodeValue(raw json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return normalizeValue(v)
}

// normalizeValue converts a decoded JSON value into a logical value:
// string, int64, float64, bool, null, or a structured array/object.
// Wire-wrapped objects are unwrapped; other objects pass through with
// their members normalised. Whole floats become int64 so that 7 and 7.0
// compare equal.
func normalizeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil, string, bool:
		return val, nil
	case float64:
		if val == float64(int64(val)) {
			return int64(val), nil
		}
		return val, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			norm, err := normalizeValue(elem)
			if err != nil {
				return nil, err
			}
			out[i] = norm
		}
		return out, nil
	case map[string]any:
		if unwrapped, ok, err := unwrapWireValue(val); ok || err != nil {
			return unwrapped, err
		}
		out := make(map[string]any, len(val))
		for k, elem := range val {
			norm, err := normalizeValue(elem)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			out[k] = norm
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported attribute value type %T", v)
	}
}

// unwrapWireValue resolves OTLP wire-wrapped attribute values. The second
// return is false when the object carries none of the wrapper keys, in
// which case it is a plain structured value, not an error.
func unwrapWireValue(obj map[string]any) (any, bool, error) {
	if s, ok := obj["stringValue"].(string); ok {
		return s, true, nil
	}
	if iv, ok := obj["intValue"]; ok {
		// protojson encodes int64 as a JSON string
		switch n := iv.(type) {
		case string:
			parsed, err := strconv.ParseInt(n, 10, 64)
			if err != nil {
				return nil, true, fmt.Errorf("intValue %q: %w", n, err)
			}
			return parsed, true, nil
		case float64:
			return int64(n), true, nil
		}
		return nil, true, fmt.Errorf("intValue has unsupported type %T", iv)
	}
	if b, ok := obj["boolValue"].(bool); ok {
		return b, true, nil
	}
	if d, ok := obj["doubleValue"].(float64); ok {
		norm, err := normalizeValue(d)
		return norm, true, err
	}
	if arr, ok := obj["arrayValue"].(map[string]any); ok {
		values, _ := arr["values"].([]any)
		norm, err := normalizeValue(values)
		return norm, true, err
	}
	return nil, false, nil
}

func parseOTLP(data []byte) ([]Span, error) {
	var req coltracepb.ExportTraceServiceRequest
	opts := protojson.UnmarshalOptions{DiscardUnknown: true}
	if err := opts.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parsing OTLP: %w", err)
	}

	var spans []Span
	for _, rs := range req.ResourceSpans {
		resource := attrsFromProto(rs.Resource.GetAttributes())

		for _, ss := range rs.ScopeSpans {
			for _, span := range ss.Spans {
				parentID := hex.EncodeToString(span.ParentSpanId)
				if isZeroID(parentID) || len(span.ParentSpanId) == 0 {
					parentID = ""
				}

				// Zero nanos means the timestamp was never recorded.
				var start, end *int64
				if span.StartTimeUnixNano != 0 {
					v := int64(span.StartTimeUnixNano) //nolint:gosec // nanosecond timestamps are always positive
					start = &v
				}
				if span.EndTimeUnixNano != 0 {
					v := int64(span.EndTimeUnixNano) //nolint:gosec // nanosecond timestamps are always positive
					end = &v
				}

				var events []Event
				for _, ev := range span.Events {
					events = append(events, Event{
						Name:       ev.Name,
						Attributes: attrsFromProto(ev.Attributes),
					})
				}

				spans = append(spans, Span{
					TraceID:      hex.EncodeToString(span.TraceId),
					SpanID:       hex.EncodeToString(span.SpanId),
					ParentSpanID: parentID,
					Name:         span.Name,
					Kind:         kindFromProto(span.Kind),
					Start:        start,
					End:          end,
					Status:       statusFromProto(span.Status),
					Attributes:   attrsFromProto(span.Attributes),
					Events:       events,
					Resource:     resource,
				})
			}
		}
	}
	return spans, nil
}

func kindFromProto(k tracepb.Span_SpanKind) Kind {
	switch k {
	case tracepb.Span_SPAN_KIND_INTERNAL:
		return KindInternal
	case tracepb.Span_SPAN_KIND_SERVER:
		return KindServer
	case tracepb.Span_SPAN_KIND_CLIENT:
		return KindClient
	case tracepb.Span_SPAN_KIND_PRODUCER:
		return KindProducer
	case tracepb.Span_SPAN_KIND_CONSUMER:
		return KindConsumer
	default:
		return KindUnspecified
	}
}

func statusFromProto(s *tracepb.Status) Status {
	if s == nil {
		return StatusUnset
	}
	switch s.Code {
	case tracepb.Status_STATUS_CODE_OK:
		return StatusOK
	case tracepb.Status_STATUS_CODE_ERROR:
		return StatusError
	default:
		return StatusUnset
	}
}

func attrsFromProto(kvs []*commonpb.KeyValue) map[string]any {
	if len(kvs) == 0 {
		return nil
	}
	out := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		out[kv.Key] = anyValueFromProto(kv.Value)
	}
	return out
}

func anyValueFromProto(v *commonpb.AnyValue) any {
	switch val := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return val.StringValue
	case *commonpb.AnyValue_IntValue:
		return val.IntValue
	case *commonpb.AnyValue_BoolValue:
		return val.BoolValue
	case *commonpb.AnyValue_DoubleValue:
		if val.DoubleValue == float64(int64(val.DoubleValue)) {
			return int64(val.DoubleValue)
		}
		return val.DoubleValue
	case *commonpb.AnyValue_ArrayValue:
		out := make([]any, 0, len(val.ArrayValue.Values))
		for _, elem := range val.ArrayValue.Values {
			out = append(out, anyValueFromProto(elem))
		}
		return out
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ValueString renders a logical attribute value for comparison and display.
func ValueString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// isZeroID checks if a hex-encoded ID is all zeros.
func isZeroID(id string) bool {
	for _, c := range id {
		if c != '0' {
			return false
		}
	}
	return len(id) > 0
}
