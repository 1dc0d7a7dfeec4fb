package trace

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/amoylab/sessionkv/pkg/version"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config represents OpenTelemetry tracing configuration
type Config struct {
	Enabled     bool              `yaml:"enabled" toml:"enabled"`
	ServiceName string            `yaml:"service_name" toml:"service_name"`
	Endpoint    string            `yaml:"endpoint" toml:"endpoint"`         // e.g. localhost:4317 or http://localhost:4318
	Protocol    string            `yaml:"protocol" toml:"protocol"`         // grpc or http
	Insecure    bool              `yaml:"insecure" toml:"insecure"`         // allow insecure connection
	SamplerRate float64           `yaml:"sampler_rate" toml:"sampler_rate"` // 0.0~1.0
	Environment string            `yaml:"environment" toml:"environment"`   // env tag: dev/staging/prod
	Headers     map[string]string `yaml:"headers" toml:"headers"`
}

// swapped in tests
var (
	newResource      = resource.New
	newOTLPTraceHTTP = otlptracehttp.New
	newOTLPTraceGRPC = otlptracegrpc.New
)

const (
	protocolGRPC = "grpc"
	protocolHTTP = "http"
)

// endpointFor returns the configured collector endpoint or the OTLP default
// port for the protocol
func endpointFor(cfg *Config) (protocol, endpoint string) {
	protocol = strings.ToLower(cfg.Protocol)
	if protocol != protocolHTTP {
		protocol = protocolGRPC
	}
	switch {
	case cfg.Endpoint != "":
		endpoint = cfg.Endpoint
	case protocol == protocolHTTP:
		endpoint = "localhost:4318"
	default:
		endpoint = "localhost:4317"
	}
	return protocol, endpoint
}

func newExporter(ctx context.Context, cfg *Config, protocol, endpoint string) (*otlptrace.Exporter, error) {
	if protocol == protocolHTTP {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		return newOTLPTraceHTTP(ctx, opts...)
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	return newOTLPTraceGRPC(ctx, opts...)
}

// samplerFor keeps the ratio within [0, 1]; parent decisions win
func samplerFor(rate float64) sdktrace.Sampler {
	rate = math.Max(0, math.Min(1, rate))
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

// InitTracing installs the global tracer provider used by the session engine
// and output cache spans, and returns its shutdown func. When tracing is
// disabled the global no-op provider stays in place.
func InitTracing(ctx context.Context, cfg *Config, lg *zap.Logger) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	protocol, endpoint := endpointFor(cfg)

	res, err := newResource(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(version.Get()),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	exp, err := newExporter(ctx, cfg, protocol, endpoint)
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(samplerFor(cfg.SamplerRate)),
		sdktrace.WithResource(res),
	}
	if exp != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exp))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	lg.Info("Tracing enabled",
		zap.String("endpoint", endpoint),
		zap.String("protocol", protocol),
		zap.Float64("sampler_rate", cfg.SamplerRate),
	)
	return tp.Shutdown, nil
}

// Builder is a small wrapper to access a named tracer with fluent helpers
type Builder struct {
	tracer trace.Tracer
}

// Tracer creates a Builder for a named tracer
func Tracer(name string) *Builder {
	return &Builder{tracer: otel.Tracer(name)}
}

// SpanScope holds span and context, with fluent helpers
type SpanScope struct {
	Ctx  context.Context
	Span trace.Span
}

// Start starts a new span and returns a scope
func (b *Builder) Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) *SpanScope {
	nctx, sp := b.tracer.Start(ctx, spanName, opts...)
	return &SpanScope{Ctx: nctx, Span: sp}
}

// WithAttrs sets attributes on the span and returns the scope for chaining
func (s *SpanScope) WithAttrs(attrs ...attribute.KeyValue) *SpanScope {
	if s != nil && s.Span != nil {
		s.Span.SetAttributes(attrs...)
	}
	return s
}

// Fail records err on the span and marks it as failed; nil errors are ignored
func (s *SpanScope) Fail(err error) *SpanScope {
	if s != nil && s.Span != nil && err != nil {
		s.Span.RecordError(err)
		s.Span.SetStatus(codes.Error, err.Error())
	}
	return s
}

// End ends the span if present
func (s *SpanScope) End() {
	if s != nil && s.Span != nil {
		s.Span.End()
	}
}
