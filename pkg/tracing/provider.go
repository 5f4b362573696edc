package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/tracing/exporters"
)

// ProviderConfig controls tracer provider construction.
type ProviderConfig struct {
	ServiceName string
	OTLPEnabled bool
	OTLP        exporters.OTLPConfig
}

// Setup installs a global tracer provider and returns its shutdown function.
// Without OTLP export spans are still created so trace ids reach logs and error responses.
func Setup(ctx context.Context, cfg ProviderConfig) (func(context.Context) error, error) {
	res := sdkresource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.OTLPEnabled {
		exporter, err := exporters.NewOTLPExporter(ctx, cfg.OTLP)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	SetTracer(provider.Tracer(cfg.ServiceName))

	return provider.Shutdown, nil
}
