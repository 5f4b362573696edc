package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	reqctx "github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/context"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	SetTracer(provider.Tracer("test"))
	t.Cleanup(func() { SetTracer(nil) })
	return recorder
}

func TestStartSpan_WithoutTracer(t *testing.T) {
	SetTracer(nil)
	ctx, span := StartSpan(context.Background(), "noop")
	defer span.End()

	assert.Empty(t, GetTraceID(ctx))

	called := false
	Inject(ctx, func(string, string) { called = true })
	assert.False(t, called)
}

func TestStartSpan_TagsTenant(t *testing.T) {
	recorder := withRecorder(t)

	ctx := reqctx.SetTenantID(context.Background(), "tenant-1")
	ctx, span := StartSpan(ctx, "Engine.Reconcile")
	assert.Len(t, GetTraceID(ctx), 32)
	Fail(span, errors.New("boom"), "reconcile failed")
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "Engine.Reconcile", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("tenant.id", "tenant-1"))
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestInject(t *testing.T) {
	withRecorder(t)

	ctx, span := StartSpan(context.Background(), "publish")
	defer span.End()

	headers := map[string]string{}
	Inject(ctx, func(k, v string) { headers[k] = v })
	require.Contains(t, headers, "traceparent")
	assert.Contains(t, headers["traceparent"], GetTraceID(ctx))
}
