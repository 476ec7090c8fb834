package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope for pipeline spans
const TracerName = "github.com/docsync/backend"

// Span attribute keys
const (
	AttrFileEventID = "docsync.file_event.id"
	AttrEventType   = "docsync.file_event.type"
	AttrProjectID   = "docsync.project_id"
	AttrPONumber    = "docsync.po_number"
	AttrFileType    = "docsync.file_type"
	AttrJobType     = "docsync.job.type"
	AttrService     = "docsync.external.service"
)

// StartSpan starts a span on the global tracer. Callers must End it.
func StartSpan(ctx context.Context, name string, kv ...any) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(TracerName).Start(ctx, name)
	SetAttributes(span, kv...)
	return ctx, span
}

// StartClientSpan starts a span for an outbound call to an external service
func StartClientSpan(ctx context.Context, service, operation string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(TracerName).Start(ctx, service+"."+operation, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String(AttrService, service))
	return ctx, span
}

// SetAttributes adds key/value pairs to the span. Odd trailing keys are ignored.
func SetAttributes(span trace.Span, kv ...any) {
	if !span.IsRecording() {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, toAttribute(key, kv[i+1]))
	}
	span.SetAttributes(attrs...)
}

// RecordError marks the span failed. A nil error is a no-op.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceID returns the trace id in ctx, or an empty string
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	}
	return attribute.String(key, fmt.Sprint(value))
}
