// Conversion from OTel SDK spans to the collected span model
// Lets in-process harnesses validate spans they just recorded via tracetest
package trace

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	apitrace "go.opentelemetry.io/otel/trace"
)

// FromReadOnlySpans converts spans captured by the OTel SDK (for example
// via a tracetest exporter) into the collected span model.
func FromReadOnlySpans(ros []sdktrace.ReadOnlySpan) []Span {
	spans := make([]Span, 0, len(ros))
	for _, ro := range ros {
		sc := ro.SpanContext()

		parentID := ""
		if ro.Parent().HasSpanID() {
			parentID = ro.Parent().SpanID().String()
		}

		start := ro.StartTime().UnixNano()
		end := ro.EndTime().UnixNano()

		var events []Event
		for _, ev := range ro.Events() {
			events = append(events, Event{
				Name:       ev.Name,
				Attributes: attrsFromKeyValues(ev.Attributes),
			})
		}

		spans = append(spans, Span{
			TraceID:      sc.TraceID().String(),
			SpanID:       sc.SpanID().String(),
			ParentSpanID: parentID,
			Name:         ro.Name(),
			Kind:         kindFromSDK(ro.SpanKind()),
			Start:        &start,
			End:          &end,
			Status:       statusFromSDK(ro.Status().Code),
			Attributes:   attrsFromKeyValues(ro.Attributes()),
			Events:       events,
			Resource:     attrsFromKeyValues(ro.Resource().Attributes()),
		})
	}
	return spans
}

func kindFromSDK(k apitrace.SpanKind) Kind {
	switch k {
	case apitrace.SpanKindInternal:
		return KindInternal
	case apitrace.SpanKindServer:
		return KindServer
	case apitrace.SpanKindClient:
		return KindClient
	case apitrace.SpanKindProducer:
		return KindProducer
	case apitrace.SpanKindConsumer:
		return KindConsumer
	default:
		return KindUnspecified
	}
}

func statusFromSDK(c codes.Code) Status {
	switch c {
	case codes.Ok:
		return StatusOK
	case codes.Error:
		return StatusError
	default:
		return StatusUnset
	}
}

func attrsFromKeyValues(kvs []attribute.KeyValue) map[string]any {
	if len(kvs) == 0 {
		return nil
	}
	out := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		switch kv.Value.Type() {
		case attribute.STRING:
			out[string(kv.Key)] = kv.Value.AsString()
		case attribute.INT64:
			out[string(kv.Key)] = kv.Value.AsInt64()
		case attribute.FLOAT64:
			f := kv.Value.AsFloat64()
			if f == float64(int64(f)) {
				out[string(kv.Key)] = int64(f)
			} else {
				out[string(kv.Key)] = f
			}
		case attribute.BOOL:
			out[string(kv.Key)] = kv.Value.AsBool()
		default:
			out[string(kv.Key)] = kv.Value.Emit()
		}
	}
	return out
}
