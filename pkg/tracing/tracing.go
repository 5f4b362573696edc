// Package tracing wraps the process tracer and exposes span/trace helpers.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	reqctx "github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/context"
)

var (
	tracer     trace.Tracer
	propagator = propagation.TraceContext{}
)

// SetTracer sets the tracer used by StartSpan. Until it is called spans are no-ops.
func SetTracer(t trace.Tracer) {
	tracer = t
}

// StartSpan starts a child span tagged with the request's tenant, when known.
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	var opts []trace.SpanStartOption
	if tenantID := reqctx.GetTenantID(ctx); tenantID != "" {
		opts = append(opts, trace.WithAttributes(attribute.String("tenant.id", tenantID)))
	}
	return tracer.Start(ctx, spanName, opts...)
}

// Fail marks span as failed with err.
func Fail(span trace.Span, err error, description string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, description)
}

// Inject writes the W3C trace headers of the active span through set.
// Nothing is written when there is no valid span.
func Inject(ctx context.Context, set func(key, value string)) {
	if !trace.SpanContextFromContext(ctx).IsValid() {
		return
	}
	carrier := propagation.MapCarrier{}
	propagator.Inject(ctx, carrier)
	for _, key := range carrier.Keys() {
		set(key, carrier.Get(key))
	}
}

// GetTraceID returns the trace id of the active span, or "".
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
