// Package monitoring instruments hook invocations with OpenTelemetry spans.
// Without a registered TracerProvider the tracer is a noop, so instrumentation
// is zero-cost in the default configuration.
package monitoring

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name registered with OTel.
const tracerName = "upf-operator"

// Tracer is the package-level OTel tracer for the operator.
var Tracer = otel.Tracer(tracerName)

// StartHookSpan starts a span covering one lifecycle event invocation. The
// span is annotated with the event kind and the application and model it
// runs in. Callers must call span.End() when the invocation completes.
func StartHookSpan(ctx context.Context, event, application, model string) (context.Context, trace.Span) {
	ctx, span := Tracer.Start(ctx, "upf.dispatch",
		trace.WithAttributes(
			attribute.String("juju.event", event),
			attribute.String("juju.application", application),
			attribute.String("juju.model", model),
		),
	)
	return ctx, span
}

// RecordSpanError records an error on a span and sets the span status to
// Error. If err is nil, this is a no-op.
func RecordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
