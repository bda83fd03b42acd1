package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/negotium-ai/negotium/pkg/observability"
)

// startSpan opens a named span under the negotium.engine tracer, tagging
// it with the negotiation id so spans from concurrent sessions are
// distinguishable in any collector watching the process. Grounded on the
// teacher's pkg/agent/instrumentation.go startAgentSpan helper.
func startSpan(ctx context.Context, negotiationID, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := observability.Tracer("negotium.engine")
	allAttrs := append([]attribute.KeyValue{attribute.String("negotiation_id", negotiationID)}, attrs...)
	return tracer.Start(ctx, name, trace.WithAttributes(allAttrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
