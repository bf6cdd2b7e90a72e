// Package otelx wires OTLP trace export for the bot.
package otelx

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"github.com/bakkerme/giftcard-bot/internal/config"
)

type ShutdownFunc func(context.Context) error

// Init installs a batching OTLP tracer provider when cfg.Enabled. The returned shutdown
// flushes pending spans and is safe to call when tracing is disabled.
func Init(ctx context.Context, logger *slog.Logger, cfg config.OTelEnvConfig) (ShutdownFunc, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "giftcard-bot"
	}

	exp, err := newTraceExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(
		ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithProcess(),
		resource.WithHost(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(2*time.Second)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("otel initialized",
		"service_name", serviceName,
		"otlp_endpoint", endpointOrDefault(cfg),
		"otlp_protocol", protocolOrDefault(cfg),
		"sample_ratio", cfg.SampleRatio,
	)
	return tp.Shutdown, nil
}

func newTraceExporter(ctx context.Context, cfg config.OTelEnvConfig) (*otlptrace.Exporter, error) {
	switch protocolOrDefault(cfg) {
	case "http/protobuf":
		return otlptracehttp.New(ctx, httpOptions(cfg)...)
	case "grpc":
		opts, err := grpcOptions(cfg)
		if err != nil {
			return nil, err
		}
		return otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTEL_EXPORTER_OTLP_PROTOCOL %q (expected grpc or http/protobuf)", cfg.Protocol)
	}
}

func httpOptions(cfg config.OTelEnvConfig) []otlptracehttp.Option {
	var opts []otlptracehttp.Option
	endpoint := endpointOrDefault(cfg)
	if strings.Contains(endpoint, "://") {
		opts = append(opts, otlptracehttp.WithEndpointURL(endpoint))
	} else {
		opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	return opts
}

func grpcOptions(cfg config.OTelEnvConfig) ([]otlptracegrpc.Option, error) {
	endpoint, err := grpcEndpoint(endpointOrDefault(cfg))
	if err != nil {
		return nil, err
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	return opts, nil
}

// grpcEndpoint reduces a URL-style endpoint to host:port for the gRPC exporter.
func grpcEndpoint(endpoint string) (string, error) {
	if !strings.Contains(endpoint, "://") {
		return endpoint, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse OTEL_EXPORTER_OTLP_ENDPOINT: %w", err)
	}
	return u.Host, nil
}

func endpointOrDefault(cfg config.OTelEnvConfig) string {
	if v := strings.TrimSpace(cfg.Endpoint); v != "" {
		return v
	}
	if protocolOrDefault(cfg) == "http/protobuf" {
		return "localhost:4318"
	}
	return "localhost:4317"
}

func protocolOrDefault(cfg config.OTelEnvConfig) string {
	v := strings.ToLower(strings.TrimSpace(cfg.Protocol))
	switch v {
	case "":
		return "grpc"
	case "http":
		return "http/protobuf"
	default:
		return v
	}
}
