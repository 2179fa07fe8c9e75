package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	apitrace "go.opentelemetry.io/otel/trace"
)

func TestFromReadOnlySpans(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	tracer := tp.Tracer("test")
	ctx, root := tracer.Start(context.Background(), "run.root",
		apitrace.WithSpanKind(apitrace.SpanKindServer))
	root.SetAttributes(
		attribute.String("runner.id", "r1"),
		attribute.Int64("step.count", 1),
		attribute.Float64("ratio", 2.5),
		attribute.Bool("dry_run", false),
	)

	_, child := tracer.Start(ctx, "step.one")
	child.AddEvent("step.started")
	child.SetStatus(codes.Error, "boom")
	child.End()
	root.SetStatus(codes.Ok, "")
	root.End()

	spans := FromReadOnlySpans(exporter.GetSpans().Snapshots())
	require.Len(t, spans, 2)

	byName := map[string]Span{}
	for _, s := range spans {
		byName[s.Name] = s
	}

	rootSpan, ok := byName["run.root"]
	require.True(t, ok)
	assert.Equal(t, KindServer, rootSpan.Kind)
	assert.Equal(t, StatusOK, rootSpan.Status)
	assert.Equal(t, "", rootSpan.ParentSpanID)
	assert.Equal(t, "r1", rootSpan.Attributes["runner.id"])
	assert.Equal(t, int64(1), rootSpan.Attributes["step.count"])
	assert.Equal(t, 2.5, rootSpan.Attributes["ratio"])
	assert.Equal(t, false, rootSpan.Attributes["dry_run"])
	require.NotNil(t, rootSpan.Start)
	require.NotNil(t, rootSpan.End)
	assert.LessOrEqual(t, *rootSpan.Start, *rootSpan.End)

	childSpan, ok := byName["step.one"]
	require.True(t, ok)
	assert.Equal(t, rootSpan.SpanID, childSpan.ParentSpanID)
	assert.Equal(t, StatusError, childSpan.Status)
	require.Len(t, childSpan.Events, 1)
	assert.Equal(t, "step.started", childSpan.Events[0].Name)
}
